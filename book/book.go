// Package book implements the opening book: master-game statistics seeded
// from the Lichess masters database, overlaid with the engine's own
// self-play experience. Lookups run during search and must be cheap; the
// book mutates only when a finished game is learned, and persists itself
// as a single JSON document.
package book

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	_ "embed"

	"github.com/rs/zerolog/log"
	"lukechampine.com/frand"

	"github.com/domino14/ajedrez/board"
	"github.com/domino14/ajedrez/chess"
)

//go:embed lichess_seed.json
var lichessSeedData []byte

// GameResult is the outcome of a finished game.
type GameResult int

const (
	ResultUnknown GameResult = iota
	ResultWhiteWins
	ResultBlackWins
	ResultDraw
)

func (r GameResult) String() string {
	switch r {
	case ResultWhiteWins:
		return "white"
	case ResultBlackWins:
		return "black"
	case ResultDraw:
		return "draw"
	}
	return "unknown"
}

// Graduated book bonus in centipawns. Book knowledge is worth the most in
// the opening and nothing once the game is out of theory.
const (
	BonusEarly = 30
	BonusMid   = 20
	BonusLate  = 10
)

// BonusForPly returns the base book bonus for a game phase.
func BonusForPly(ply int) int {
	switch {
	case ply <= 12:
		return BonusEarly
	case ply <= 24:
		return BonusMid
	case ply <= 36:
		return BonusLate
	default:
		return 0
	}
}

// DrawWeight is how much of a win a draw counts for when scoring self-play
// experience. Both colors are the same learner, so the weight is symmetric.
const DrawWeight = 0.5

// MoveStats holds one move's master tallies and our own self-play record.
type MoveStats struct {
	UCI         string `json:"uci"`
	SAN         string `json:"san,omitempty"`
	MasterGames int    `json:"master_games"`
	MasterWhite int    `json:"master_white"`
	MasterDraws int    `json:"master_draws"`
	MasterBlack int    `json:"master_black"`
	OurGames    int    `json:"our_games"`
	OurWins     int    `json:"our_wins"`
	OurLosses   int    `json:"our_losses"`
	OurDraws    int    `json:"our_draws"`
}

// Entry is everything the book knows about one position: candidate moves
// plus position-level outcome aggregates accumulated from our own games.
type Entry struct {
	FEN   string      `json:"fen"`
	ECO   string      `json:"eco,omitempty"`
	Name  string      `json:"name,omitempty"`
	Moves []MoveStats `json:"moves"`

	PosWhiteWins int `json:"pos_white_wins,omitempty"`
	PosBlackWins int `json:"pos_black_wins,omitempty"`
	PosDraws     int `json:"pos_draws,omitempty"`
}

// GameRecord logs one finished game for later review.
type GameRecord struct {
	Date      string   `json:"date"`
	Moves     []string `json:"moves"`
	Result    string   `json:"result"`
	MoveCount int      `json:"move_count"`
}

// Book is the opening book. Positions are keyed by normalized FEN; a
// Zobrist index sits in front for the hot lookup path. Reads take the read
// lock and copy out, so callers never hold book memory.
type Book struct {
	Source    string            `json:"source"`
	SourceURL string            `json:"source_url"`
	License   string            `json:"license"`
	Generated string            `json:"generated"`
	Positions map[string]*Entry `json:"positions"`
	Games     []GameRecord      `json:"games,omitempty"`

	mu        sync.RWMutex
	path      string
	hashIndex map[uint64]string
	training  bool
	randFloat func() float64

	recorded      atomic.Int64
	skippedCap    atomic.Int64
	skippedStable atomic.Int64
}

// New returns an empty book that will persist to path. An empty path makes
// the book memory-only; Save becomes a no-op.
func New(path string) *Book {
	return &Book{
		Positions: make(map[string]*Entry),
		path:      path,
		hashIndex: make(map[uint64]string),
		randFloat: frand.Float64,
	}
}

// Load reads the book at path, or seeds a fresh one from the embedded
// Lichess masters data when the file is missing or carries no provenance.
// Learning data in a provenance-free file survives the reseed. Load always
// returns a usable book.
func Load(path string) *Book {
	bk := New(path)

	var existing *Book
	if data, err := os.ReadFile(path); err == nil {
		existing = &Book{Positions: make(map[string]*Entry)}
		if err := json.Unmarshal(data, existing); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("unreadable book file, reseeding")
			existing = nil
		}
	}

	if existing != nil && existing.Source != "" {
		existing.path = path
		existing.hashIndex = make(map[uint64]string)
		existing.randFloat = frand.Float64
		existing.buildHashIndex()
		log.Info().Str("path", path).
			Int("positions", len(existing.Positions)).
			Int("games", len(existing.Games)).
			Msg("loaded opening book")
		return existing
	}

	if err := json.Unmarshal(lichessSeedData, bk); err != nil {
		log.Error().Err(err).Msg("embedded book seed failed to parse")
		return bk
	}
	if existing != nil {
		bk.mergeLearned(existing)
	}
	if err := bk.Save(); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("could not persist seeded book")
	}
	bk.buildHashIndex()
	log.Info().Str("path", path).
		Int("positions", len(bk.Positions)).
		Msg("seeded opening book from embedded data")
	return bk
}

// Save writes the whole book to its path.
func (b *Book) Save() error {
	if b == nil || b.path == "" {
		return nil
	}
	b.mu.RLock()
	data, err := json.MarshalIndent(b, "", "  ")
	b.mu.RUnlock()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(b.path), 0755); err != nil {
		return err
	}
	return os.WriteFile(b.path, data, 0644)
}

// SetRand overrides the randomness source for move sampling. Tests install
// a deterministic one.
func (b *Book) SetRand(f func() float64) {
	b.mu.Lock()
	b.randFloat = f
	b.mu.Unlock()
}

// SetTrainingMode switches PickBookMove from weighted-random to
// softmax-with-temperature sampling, flattening the distribution so
// self-play games explore sidelines.
func (b *Book) SetTrainingMode(enabled bool) {
	b.mu.Lock()
	b.training = enabled
	b.mu.Unlock()
}

// mergeLearned folds the self-play data of src into b, which already holds
// master data. Master tallies in b win; src contributes our_* stats,
// unknown moves, position aggregates, and the game log.
func (b *Book) mergeLearned(src *Book) {
	b.Games = append(b.Games, src.Games...)

	for fen, srcEntry := range src.Positions {
		entry, ok := b.Positions[fen]
		if !ok {
			b.Positions[fen] = srcEntry
			continue
		}

		byUCI := make(map[string]*MoveStats, len(entry.Moves))
		for i := range entry.Moves {
			byUCI[entry.Moves[i].UCI] = &entry.Moves[i]
		}
		for _, sm := range srcEntry.Moves {
			if dm, ok := byUCI[sm.UCI]; ok {
				dm.OurGames = sm.OurGames
				dm.OurWins = sm.OurWins
				dm.OurLosses = sm.OurLosses
				dm.OurDraws = sm.OurDraws
			} else {
				entry.Moves = append(entry.Moves, sm)
			}
		}

		entry.PosWhiteWins = srcEntry.PosWhiteWins
		entry.PosBlackWins = srcEntry.PosBlackWins
		entry.PosDraws = srcEntry.PosDraws
	}
}

// buildHashIndex maps Zobrist hashes to position keys so the search's hot
// path skips FEN construction.
func (b *Book) buildHashIndex() {
	for fen := range b.Positions {
		bd, err := board.FromFEN(fen)
		if err != nil {
			log.Warn().Err(err).Str("fen", fen).Msg("unparseable book position")
			continue
		}
		b.hashIndex[bd.ZobristHash()] = fen
	}
}

// normalizeFEN strips the halfmove and fullmove counters so book keys match
// regardless of when a position was reached. Master data is stored with
// counters zeroed; live game FENs carry real ones.
func normalizeFEN(fen string) string {
	parts := strings.Split(fen, " ")
	if len(parts) >= 4 {
		return parts[0] + " " + parts[1] + " " + parts[2] + " " + parts[3] + " 0 1"
	}
	return fen
}

// lookupLocked finds an entry by FEN, preferring entries that actually have
// moves: normalized key first, then the exact string, then either without
// moves (learning data lives in otherwise-empty entries).
func (b *Book) lookupLocked(fen string) (*Entry, bool) {
	normalized := normalizeFEN(fen)
	if e, ok := b.Positions[normalized]; ok && len(e.Moves) > 0 {
		return e, true
	}
	if e, ok := b.Positions[fen]; ok && len(e.Moves) > 0 {
		return e, true
	}
	if e, ok := b.Positions[normalized]; ok {
		return e, true
	}
	if e, ok := b.Positions[fen]; ok {
		return e, true
	}
	return nil, false
}

func copyEntry(e *Entry) Entry {
	cp := *e
	cp.Moves = append([]MoveStats(nil), e.Moves...)
	return cp
}

// LookupFEN returns a snapshot of the book entry for a position.
func (b *Book) LookupFEN(fen string) (Entry, bool) {
	if b == nil {
		return Entry{}, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.lookupLocked(fen)
	if !ok {
		return Entry{}, false
	}
	return copyEntry(e), true
}

// LookupHash returns a snapshot of the entry whose position hashes to hash.
// Only entries with moves are indexed hits.
func (b *Book) LookupHash(hash uint64) (Entry, bool) {
	if b == nil {
		return Entry{}, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	fen, ok := b.hashIndex[hash]
	if !ok {
		return Entry{}, false
	}
	e, ok := b.Positions[fen]
	if !ok || len(e.Moves) == 0 {
		return Entry{}, false
	}
	return copyEntry(e), true
}

// GetBookMoves returns the book's move list for a position.
func (b *Book) GetBookMoves(fen string) []MoveStats {
	e, ok := b.LookupFEN(fen)
	if !ok {
		return nil
	}
	return e.Moves
}

// IsInBook reports whether a move appears in the book for a position.
func (b *Book) IsInBook(fen, uci string) bool {
	e, ok := b.LookupFEN(fen)
	if !ok {
		return false
	}
	for _, bm := range e.Moves {
		if bm.UCI == uci {
			return true
		}
	}
	return false
}

// GetBookBonus converts a move's historical win rate into a centipawn
// bonus. fen is the position before the move. The base bonus decays with
// ply; the win rate scales it, blended with our own experience once that
// move has self-play games behind it (our data capped at half the blend).
func (b *Book) GetBookBonus(fen, uci string, ply int) int {
	if b == nil {
		return 0
	}
	base := BonusForPly(ply)
	if base == 0 {
		return 0
	}
	e, ok := b.LookupFEN(fen)
	if !ok {
		return 0
	}

	for _, bm := range e.Moves {
		if bm.UCI != uci {
			continue
		}
		total := bm.MasterWhite + bm.MasterDraws + bm.MasterBlack
		if total == 0 {
			return base / 2
		}

		// fen is the position before the move, so its side to move is the
		// side playing it.
		var winRate float64
		parts := strings.Split(fen, " ")
		if len(parts) >= 2 && parts[1] == "w" {
			winRate = float64(bm.MasterWhite) + 0.5*float64(bm.MasterDraws)
		} else {
			winRate = float64(bm.MasterBlack) + 0.5*float64(bm.MasterDraws)
		}
		winRate /= float64(total)

		// 55% is a strong master score; moves at or above it earn the
		// full bonus, capped at 150%.
		scale := winRate / 0.55
		if scale > 1.5 {
			scale = 1.5
		}

		if bm.OurGames > 0 {
			// Positions that masters often draw make draws more
			// acceptable for us too.
			masterDrawRate := float64(bm.MasterDraws) / float64(total)
			adjustedDrawWeight := DrawWeight + (0.5-DrawWeight)*masterDrawRate

			ourWinRate := float64(bm.OurWins) + adjustedDrawWeight*float64(bm.OurDraws)
			ourWinRate /= float64(bm.OurGames)

			blend := min(float64(bm.OurGames)/20.0, 0.5)
			winRate = winRate*(1-blend) + ourWinRate*blend
			scale = winRate / 0.55
		}

		return int(float64(base) * scale)
	}
	return 0
}

// GetPositionPenalty scores a position by how games reaching it have gone
// for the given side, from our own aggregate outcomes. Losing positions
// cost up to 30 centipawns; winning ones earn up to 15.
func (b *Book) GetPositionPenalty(fen string, side chess.Color) int {
	if b == nil {
		return 0
	}
	e, ok := b.LookupFEN(fen)
	if !ok {
		return 0
	}

	total := e.PosWhiteWins + e.PosBlackWins + e.PosDraws
	if total < 5 {
		return 0
	}

	var winRate float64
	if side == chess.White {
		winRate = float64(e.PosWhiteWins) / float64(total)
	} else {
		winRate = float64(e.PosBlackWins) / float64(total)
	}

	if winRate < 0.5 {
		return -int((0.5 - winRate) * 60)
	}
	return int((winRate - 0.5) * 30)
}
