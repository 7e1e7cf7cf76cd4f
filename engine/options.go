package engine

import (
	"runtime"
	"time"

	"github.com/domino14/ajedrez/chess"
)

// Infinity bounds the alpha-beta window. Larger than any mate score.
const Infinity = 1000000

// SearchOptions controls one Search call. Zero values mean "use the
// default"; call DefaultSearchOptions and adjust rather than building one
// from scratch.
type SearchOptions struct {
	// MaxDepth is the final iterative-deepening horizon, in plies.
	MaxDepth int

	// MaxWorkers caps the parallel scheduler. Depth 1-2 iterations and
	// MaxWorkers <= 1 run sequentially.
	MaxWorkers int

	// DepthParallelThreshold is the remaining depth at or below which a
	// subtree is solved inline instead of fanned out into tasks.
	DepthParallelThreshold int

	// TimeLimit bounds the whole search. Zero means no limit. The search
	// returns the best result of the deepest completed iteration.
	TimeLimit time.Duration

	// Deterministic makes the parallel search reproducible: round-robin
	// steal victims, creation-time windows, and ordered result combining.
	// It costs some pruning.
	Deterministic bool

	// Contempt overrides the engine's contempt (centipawns) for both sides
	// when positive.
	Contempt int

	// Work-stealing knobs.
	StealDepthMin  int
	ChunkStealSize int

	// QueuePressureHigh stops a node from fanning out when its own deque
	// already holds this many tasks; children run inline instead.
	// QueuePressureLow is the level at which fanning out resumes.
	QueuePressureLow  int
	QueuePressureHigh int

	// MetricsHook, when set, receives scheduler snapshots every
	// MetricsInterval during parallel iterations, and a final snapshot
	// when the search ends.
	MetricsHook     func(SearchMetrics)
	MetricsInterval time.Duration
}

// DefaultSearchOptions returns the tuned defaults.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		MaxDepth:               6,
		MaxWorkers:             runtime.NumCPU(),
		DepthParallelThreshold: 3,
		StealDepthMin:          1,
		ChunkStealSize:         2,
		QueuePressureLow:       4,
		QueuePressureHigh:      32,
		MetricsInterval:        5 * time.Second,
	}
}

// withDefaults fills zero-valued fields from DefaultSearchOptions so a
// partially filled struct still searches sensibly.
func (o SearchOptions) withDefaults() SearchOptions {
	def := DefaultSearchOptions()
	if o.MaxDepth <= 0 {
		o.MaxDepth = def.MaxDepth
	}
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = def.MaxWorkers
	}
	if o.DepthParallelThreshold <= 0 {
		o.DepthParallelThreshold = def.DepthParallelThreshold
	}
	if o.StealDepthMin <= 0 {
		o.StealDepthMin = def.StealDepthMin
	}
	if o.ChunkStealSize <= 0 {
		o.ChunkStealSize = def.ChunkStealSize
	}
	if o.QueuePressureLow <= 0 {
		o.QueuePressureLow = def.QueuePressureLow
	}
	if o.QueuePressureHigh <= 0 {
		o.QueuePressureHigh = def.QueuePressureHigh
	}
	return o
}

// SearchMetrics is a snapshot of search counters. During a parallel search
// the live counters are atomics; this is the plain copy handed to callers.
type SearchMetrics struct {
	NodesSearched uint64
	TasksPushed   uint64
	TasksPopped   uint64
	Steals        uint64
	StealChunks   uint64
	Cutoffs       uint64
	QueueHighHits uint64
	QueueLenMax   uint64
	IdleYields    uint64
	ElapsedMs     int64
}

// SearchResult is what a Search call returns. BestMove is the null move
// only when the position has no legal moves or nothing completed before
// the deadline.
type SearchResult struct {
	BestMove chess.Move
	Score    int
	Depth    int
	Metrics  SearchMetrics
}
