package book

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/matryer/is"
	"github.com/rs/zerolog"

	"github.com/domino14/ajedrez/board"
	"github.com/domino14/ajedrez/chess"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	os.Exit(m.Run())
}

// testBook builds an in-memory book from move stats keyed by FEN.
func testBook(t *testing.T, entries map[string][]MoveStats) *Book {
	t.Helper()
	b := New("")
	b.mu.Lock()
	for fen, moves := range entries {
		e := b.getOrCreateLocked(normalizeFEN(fen))
		e.Moves = append(e.Moves, moves...)
	}
	b.mu.Unlock()
	return b
}

func TestLoadSeedsFromEmbedded(t *testing.T) {
	is := is.New(t)
	path := filepath.Join(t.TempDir(), "book.json")

	b := Load(path)
	is.Equal(b.Source, "Lichess Masters Database")
	is.True(len(b.Positions) > 0)

	entry, ok := b.LookupFEN(board.StartFEN)
	is.True(ok)
	is.True(len(entry.Moves) >= 4)

	// Seeding persists the book to disk.
	_, err := os.Stat(path)
	is.NoErr(err)
}

func TestLoadIsIdempotent(t *testing.T) {
	is := is.New(t)
	path := filepath.Join(t.TempDir(), "book.json")

	first := Load(path)
	second := Load(path)

	fj, err := json.Marshal(first)
	is.NoErr(err)
	sj, err := json.Marshal(second)
	is.NoErr(err)
	is.Equal(string(fj), string(sj))
}

func TestLoadPreservesLearnedData(t *testing.T) {
	is := is.New(t)
	path := filepath.Join(t.TempDir(), "book.json")

	// A book written by an older build: no provenance header, but it holds
	// self-play experience that a reseed must not wipe out.
	old := &Book{
		Positions: map[string]*Entry{
			board.StartFEN: {
				FEN: board.StartFEN,
				Moves: []MoveStats{
					{UCI: "e2e4", OurGames: 7, OurWins: 5, OurLosses: 1, OurDraws: 1},
					{UCI: "a2a4", OurGames: 2, OurLosses: 2},
				},
				PosWhiteWins: 4,
				PosBlackWins: 2,
				PosDraws:     1,
			},
		},
		Games: []GameRecord{{Date: "2025-01-01T00:00:00Z", Moves: []string{"e2e4"}, Result: "white", MoveCount: 1}},
	}
	data, err := json.Marshal(old)
	is.NoErr(err)
	is.NoErr(os.WriteFile(path, data, 0644))

	b := Load(path)
	is.Equal(b.Source, "Lichess Masters Database")
	is.Equal(len(b.Games), 1)

	entry, ok := b.LookupFEN(board.StartFEN)
	is.True(ok)

	var e4, a4 *MoveStats
	for i := range entry.Moves {
		switch entry.Moves[i].UCI {
		case "e2e4":
			e4 = &entry.Moves[i]
		case "a2a4":
			a4 = &entry.Moves[i]
		}
	}
	is.True(e4 != nil)
	is.True(a4 != nil)
	is.Equal(e4.OurGames, 7)
	is.Equal(e4.OurWins, 5)
	is.True(e4.MasterGames > 0) // master data comes from the seed
	is.Equal(a4.OurGames, 2)
	is.Equal(a4.MasterGames, 0) // a2a4 is ours alone
	is.Equal(entry.PosWhiteWins, 4)
}

func TestNormalizeFEN(t *testing.T) {
	is := is.New(t)
	is.Equal(
		normalizeFEN("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 12 34"),
		board.StartFEN,
	)
	is.Equal(normalizeFEN(board.StartFEN), board.StartFEN)
	is.Equal(normalizeFEN("not a fen"), "not a fen")
}

func TestLookupHash(t *testing.T) {
	is := is.New(t)
	b := Load(filepath.Join(t.TempDir(), "book.json"))

	entry, ok := b.LookupHash(board.StartingPosition().ZobristHash())
	is.True(ok)
	is.Equal(entry.FEN, board.StartFEN)
	is.True(len(entry.Moves) > 0)

	_, ok = b.LookupHash(0xdeadbeef)
	is.True(!ok)
}

func TestLookupPrefersEntriesWithMoves(t *testing.T) {
	is := is.New(t)
	raw := "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 3 5"

	b := New("")
	b.Positions[board.StartFEN] = &Entry{FEN: board.StartFEN, PosDraws: 9}
	b.Positions[raw] = &Entry{FEN: raw, Moves: []MoveStats{{UCI: "e2e4", MasterGames: 1}}}

	// The normalized entry exists but is move-less learning data; the exact
	// key carries the moves and wins.
	entry, ok := b.LookupFEN(raw)
	is.True(ok)
	is.Equal(len(entry.Moves), 1)

	// With no moves anywhere, the normalized entry is still returned.
	entry, ok = b.LookupFEN(normalizeFEN(raw))
	is.True(ok)
	is.Equal(entry.PosDraws, 9)
}

func TestGetBookBonus(t *testing.T) {
	is := is.New(t)
	b := testBook(t, map[string][]MoveStats{
		board.StartFEN: {
			{UCI: "e2e4", MasterGames: 1000, MasterWhite: 550, MasterBlack: 450},
			{UCI: "g1f3", MasterGames: 1000, MasterWhite: 1000},
			{UCI: "a2a4"},
		},
	})

	// A 55% score earns exactly the base bonus for the phase.
	is.Equal(b.GetBookBonus(board.StartFEN, "e2e4", 0), BonusEarly)
	is.Equal(b.GetBookBonus(board.StartFEN, "e2e4", 13), BonusMid)
	is.Equal(b.GetBookBonus(board.StartFEN, "e2e4", 25), BonusLate)
	is.Equal(b.GetBookBonus(board.StartFEN, "e2e4", 37), 0)

	// A perfect score runs into the 150% cap.
	is.Equal(b.GetBookBonus(board.StartFEN, "g1f3", 0), BonusEarly*3/2)

	// In book but with no outcome data: half the base.
	is.Equal(b.GetBookBonus(board.StartFEN, "a2a4", 0), BonusEarly/2)

	// Not in book at all.
	is.Equal(b.GetBookBonus(board.StartFEN, "h2h4", 0), 0)
	is.Equal(b.GetBookBonus("unknown fen", "e2e4", 0), 0)
}

func TestGetBookBonusUsesMoverWinRate(t *testing.T) {
	is := is.New(t)
	afterE4 := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"
	b := testBook(t, map[string][]MoveStats{
		afterE4: {
			{UCI: "c7c5", MasterGames: 1000, MasterWhite: 450, MasterBlack: 550},
		},
	})

	// Black is to move, so c7c5 is scored by Black's 55% result.
	is.Equal(b.GetBookBonus(afterE4, "c7c5", 1), BonusEarly)
}

func TestGetBookBonusBlendsOurExperience(t *testing.T) {
	is := is.New(t)
	b := testBook(t, map[string][]MoveStats{
		board.StartFEN: {
			{
				UCI: "e2e4", MasterGames: 1000, MasterWhite: 550, MasterBlack: 450,
				OurGames: 10, OurLosses: 10,
			},
		},
	})

	// Ten straight losses at blend 0.5 halve a 55% master rate, and with it
	// the bonus.
	is.Equal(b.GetBookBonus(board.StartFEN, "e2e4", 0), BonusEarly/2)
}

func TestGetPositionPenalty(t *testing.T) {
	is := is.New(t)
	b := New("")
	b.Positions[board.StartFEN] = &Entry{
		FEN:          board.StartFEN,
		PosWhiteWins: 1,
		PosBlackWins: 7,
	}

	// White scores 12.5% here: penalized on the steeper losing slope.
	is.Equal(b.GetPositionPenalty(board.StartFEN, chess.White), -22)
	// Black scores 87.5%: rewarded on the shallower winning slope.
	is.Equal(b.GetPositionPenalty(board.StartFEN, chess.Black), 11)

	// Below the sample floor nothing is concluded.
	b.Positions[board.StartFEN].PosBlackWins = 2
	is.Equal(b.GetPositionPenalty(board.StartFEN, chess.White), 0)
}

func TestBonusForPly(t *testing.T) {
	is := is.New(t)
	is.Equal(BonusForPly(0), BonusEarly)
	is.Equal(BonusForPly(12), BonusEarly)
	is.Equal(BonusForPly(13), BonusMid)
	is.Equal(BonusForPly(24), BonusMid)
	is.Equal(BonusForPly(25), BonusLate)
	is.Equal(BonusForPly(36), BonusLate)
	is.Equal(BonusForPly(37), 0)
}

func TestMemoryOnlyBookSkipsSave(t *testing.T) {
	is := is.New(t)
	b := New("")
	is.NoErr(b.Save())
}

func TestIsInBook(t *testing.T) {
	is := is.New(t)
	b := testBook(t, map[string][]MoveStats{
		board.StartFEN: {{UCI: "e2e4", MasterGames: 1}},
	})
	is.True(b.IsInBook(board.StartFEN, "e2e4"))
	is.True(!b.IsInBook(board.StartFEN, "d2d4"))
	is.True(!b.IsInBook("unknown fen", "e2e4"))
}
