package engine

import (
	"math"
	"sync/atomic"

	"github.com/pbnjay/memory"
	"github.com/rs/zerolog/log"

	"github.com/domino14/ajedrez/chess"
)

// Bound kinds for table entries. Zero is reserved for empty slots.
const (
	TTExact uint8 = 0x01
	TTLower uint8 = 0x02
	TTUpper uint8 = 0x03
)

const ttEntrySize = 16

// tableEntry is one slot: full hash for collision verification, a packed
// best move, the score, the search depth, and the bound kind. 16 bytes.
//
// The score is 32 bits because mate scores exceed int16.
type tableEntry struct {
	hash  uint64
	score int32
	play  uint16
	depth int8
	flag  uint8
}

func (t tableEntry) valid() bool {
	return t.flag != 0
}

// TranspositionTable is a single-slot, power-of-two sized cache of search
// results keyed by zobrist hash. Entries are read and written by all
// workers without locks; a torn entry fails the hash verification and reads
// as a miss, which is safe.
type TranspositionTable struct {
	table        []tableEntry
	sizePowerOf2 int
	sizeMask     uint64

	created  atomic.Uint64
	lookups  atomic.Uint64
	hits     atomic.Uint64
	filtered atomic.Uint64
	// A type 2 collision happens when two positions share the same table
	// slot. Type 1 collisions (same full hash, different position) exist
	// but are essentially undetectable and vanishingly rare.
	t2collisions atomic.Uint64
}

// NewTranspositionTable allocates a table with 2^powerOf2 entries.
func NewTranspositionTable(powerOf2 int) *TranspositionTable {
	t := &TranspositionTable{}
	t.resize(powerOf2)
	return t
}

// NewTranspositionTableForMemFraction sizes the table to roughly the given
// fraction of total system memory, rounded down to a power of two.
func NewTranspositionTableForMemFraction(fraction float64) *TranspositionTable {
	totalMem := memory.TotalMemory()
	desiredNElems := fraction * (float64(totalMem) / float64(ttEntrySize))
	powerOf2 := int(math.Log2(desiredNElems))
	if powerOf2 < 16 {
		powerOf2 = 16
	}
	t := &TranspositionTable{}
	t.resize(powerOf2)
	log.Info().Int("num-elems", 1<<powerOf2).
		Float64("desired-num-elems", desiredNElems).
		Int("estimated-total-memory-bytes", (1<<powerOf2)*ttEntrySize).
		Uint64("total-system-memory-bytes", totalMem).
		Msg("transposition-table-size")
	return t
}

func (t *TranspositionTable) resize(powerOf2 int) {
	numElems := 1 << powerOf2
	t.sizePowerOf2 = powerOf2
	t.sizeMask = uint64(numElems - 1)
	t.table = make([]tableEntry, numElems)
	t.resetCounters()
}

// Reset clears all entries and counters, keeping the allocation.
func (t *TranspositionTable) Reset() {
	clear(t.table)
	t.resetCounters()
}

func (t *TranspositionTable) resetCounters() {
	t.created.Store(0)
	t.lookups.Store(0)
	t.hits.Store(0)
	t.filtered.Store(0)
	t.t2collisions.Store(0)
}

// Probe looks up hash. It returns (score, move, true) when the entry is
// deep enough and its bound resolves against the window. On a verified hit
// with insufficient depth it returns (0, move, false): the move is still
// worth trying first. sideToMove colors a decoded promotion piece.
func (t *TranspositionTable) Probe(hash uint64, depth, alpha, beta int, sideToMove chess.Color) (int, chess.Move, bool) {
	t.lookups.Add(1)
	entry := t.table[hash&t.sizeMask]

	if !entry.valid() || entry.hash != hash {
		if entry.valid() {
			t.t2collisions.Add(1)
		}
		return 0, chess.NullMove, false
	}

	bestMove := decodeMove(entry.play, sideToMove)

	if int(entry.depth) >= depth {
		score := int(entry.score)
		switch entry.flag {
		case TTExact:
			t.hits.Add(1)
			return score, bestMove, true
		case TTLower:
			if score >= beta {
				t.hits.Add(1)
				return score, bestMove, true
			}
		case TTUpper:
			if score <= alpha {
				t.hits.Add(1)
				return score, bestMove, true
			}
		}
	}

	t.filtered.Add(1)
	return 0, bestMove, false
}

// Store writes a result, replacing when the slot holds a different position
// or a search no deeper than this one.
func (t *TranspositionTable) Store(hash uint64, depth, score int, flag uint8, bestMove chess.Move) {
	idx := hash & t.sizeMask
	entry := t.table[idx]
	if entry.valid() && entry.hash == hash && int(entry.depth) > depth {
		return
	}
	t.table[idx] = tableEntry{
		hash:  hash,
		score: int32(score),
		play:  encodeMove(bestMove),
		depth: int8(depth),
		flag:  flag,
	}
	t.created.Add(1)
}

// Stats logs table utilization at debug level.
func (t *TranspositionTable) Stats() {
	log.Debug().
		Uint64("created", t.created.Load()).
		Uint64("lookups", t.lookups.Load()).
		Uint64("hits", t.hits.Load()).
		Uint64("move-only", t.filtered.Load()).
		Uint64("t2collisions", t.t2collisions.Load()).
		Int("size-power-of-2", t.sizePowerOf2).
		Msg("transposition-table-stats")
}

// Hits returns the number of probes that produced a usable score.
func (t *TranspositionTable) Hits() uint64 { return t.hits.Load() }

// Lookups returns the total number of probes.
func (t *TranspositionTable) Lookups() uint64 { return t.lookups.Load() }

// encodeMove packs a move into 16 bits: from(6) | to(6) | promo(4), with
// promotion kinds mapped Q=1 R=2 B=3 N=4.
func encodeMove(m chess.Move) uint16 {
	promo := uint16(0)
	switch m.Promotion.Kind() {
	case chess.Queen:
		promo = 1
	case chess.Rook:
		promo = 2
	case chess.Bishop:
		promo = 3
	case chess.Knight:
		promo = 4
	}
	return uint16(m.From) | uint16(m.To)<<6 | promo<<12
}

// decodeMove unpacks a 16-bit move. The promotion piece color comes from
// the probing side; callers must still match the move against the legal
// move list before trusting it.
func decodeMove(encoded uint16, sideToMove chess.Color) chess.Move {
	m := chess.Move{
		From: chess.Square(encoded & 0x3F),
		To:   chess.Square((encoded >> 6) & 0x3F),
	}
	switch (encoded >> 12) & 0xF {
	case 1:
		m.Promotion = chess.PieceFor(chess.Queen, sideToMove)
	case 2:
		m.Promotion = chess.PieceFor(chess.Rook, sideToMove)
	case 3:
		m.Promotion = chess.PieceFor(chess.Bishop, sideToMove)
	case 4:
		m.Promotion = chess.PieceFor(chess.Knight, sideToMove)
	}
	return m
}
