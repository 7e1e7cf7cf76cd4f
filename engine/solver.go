// Package engine implements the game-tree search: iterative deepening
// alpha-beta with a transposition table, quiescence, null-move pruning, late
// move reductions, and a work-stealing parallel mode. Scores are always in
// centipawns from White's perspective; White maximizes and Black minimizes.
package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"lukechampine.com/frand"

	"github.com/domino14/ajedrez/book"
	"github.com/domino14/ajedrez/chess"
	"github.com/domino14/ajedrez/eval"
)

// Evaluator scores a position in centipawns from White's perspective.
type Evaluator func(chess.Position) int

// NullMoveR is the null-move depth reduction, and also the minimum depth at
// which a null move is tried.
const NullMoveR = 3

// MaxQDepth caps quiescence recursion.
const MaxQDepth = 8

const (
	aspirationInitialWindow = 50
	aspirationMaxWindow     = 500
)

// Engine owns the search state: the shared transposition table, the killer
// and history tables, the evaluator, contempt, and an optional opening book.
// One Engine runs one Search at a time; build one per concurrent caller.
// The transposition table may be shared between engines.
type Engine struct {
	tt       *TranspositionTable
	heur     *Heuristics
	evaluate Evaluator
	book     *book.Book

	contemptWhite int
	contemptBlack int
	repPenalty    int
	training      bool

	nodes     atomic.Uint64
	randFloat func() float64
}

func New(tt *TranspositionTable) *Engine {
	return &Engine{
		tt:         tt,
		heur:       &Heuristics{},
		evaluate:   eval.Evaluate,
		repPenalty: DefaultRepetitionPenalty,
		randFloat:  frand.Float64,
	}
}

// SetEvaluator swaps the position evaluator. Tests use cheap ones.
func (e *Engine) SetEvaluator(ev Evaluator) {
	e.evaluate = ev
}

// SetBook attaches an opening book for SearchWithBook.
func (e *Engine) SetBook(b *book.Book) {
	e.book = b
}

// Book returns the attached opening book, or nil.
func (e *Engine) Book() *book.Book {
	return e.book
}

// SetContempt derives both sides' contempt from a draw valuation between
// 0.0 (hates draws) and 0.5 (neutral). Contempt never goes negative; the
// engine does not reward draws.
func (e *Engine) SetContempt(drawValue float64) {
	c := contemptFromDrawValue(drawValue)
	e.contemptWhite = c
	e.contemptBlack = c
}

// SetAsymmetricContempt gives each side its own draw valuation. Self-play
// uses this so the two sides fight over draws differently.
func (e *Engine) SetAsymmetricContempt(whiteDrawValue, blackDrawValue float64) {
	e.contemptWhite = contemptFromDrawValue(whiteDrawValue)
	e.contemptBlack = contemptFromDrawValue(blackDrawValue)
}

func contemptFromDrawValue(drawValue float64) int {
	c := int((0.5 - drawValue) * 100)
	if c < 0 {
		c = 0
	}
	return c
}

// ContemptFor returns the contempt in centipawns for a side.
func (e *Engine) ContemptFor(side chess.Color) int {
	if side == chess.White {
		return e.contemptWhite
	}
	return e.contemptBlack
}

// DefaultRepetitionPenalty multiplies contempt when a repeated position is
// scored mid-search.
const DefaultRepetitionPenalty = 10

// SetRepetitionPenalty overrides how strongly repeated positions are scored
// against the side with contempt.
func (e *Engine) SetRepetitionPenalty(factor int) {
	e.repPenalty = factor
}

// repetitionScore is the White-perspective score of a repeated position with
// the given side to move. The repetition was created by the opponent's last
// move, so the score favors the side to move, scaled by its contempt.
func (e *Engine) repetitionScore(side chess.Color) int {
	penalty := e.ContemptFor(side) * e.repPenalty
	if side == chess.White {
		return penalty
	}
	return -penalty
}

// SetTrainingMode switches move selection from greedy to softmax sampling
// in SearchWithBook, so self-play games diverge.
func (e *Engine) SetTrainingMode(enabled bool) {
	e.training = enabled
}

// SetRand overrides the randomness source for move sampling. Tests install
// a deterministic one.
func (e *Engine) SetRand(f func() float64) {
	e.randFloat = f
}

// Nodes returns nodes visited by the most recent Search.
func (e *Engine) Nodes() uint64 {
	return e.nodes.Load()
}

// ResetForNewGame clears the transposition table and heuristics.
func (e *Engine) ResetForNewGame() {
	e.tt.Reset()
	e.heur.Clear()
}

// Search runs iterative deepening to opts.MaxDepth. Depths 1 and 2 run
// sequentially, deeper iterations fan out to the work-stealing scheduler
// unless MaxWorkers <= 1. A context or time limit ends the search after the
// current iteration's in-flight tasks drain; the result carries the deepest
// completed iteration.
func (e *Engine) Search(ctx context.Context, pos chess.Position, opts SearchOptions) SearchResult {
	start := time.Now()
	opts = opts.withDefaults()

	if opts.TimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.TimeLimit)
		defer cancel()
	}

	if opts.Contempt > 0 {
		ow, ob := e.contemptWhite, e.contemptBlack
		e.contemptWhite, e.contemptBlack = opts.Contempt, opts.Contempt
		defer func() { e.contemptWhite, e.contemptBlack = ow, ob }()
	}

	e.nodes.Store(0)
	result := SearchResult{}
	prevScore := 0

iterate:
	for depth := 1; depth <= opts.MaxDepth; depth++ {
		select {
		case <-ctx.Done():
			break iterate
		default:
		}

		var score int
		var move chess.Move

		if depth <= 2 || opts.MaxWorkers <= 1 {
			if depth == 1 {
				score, move = e.sequentialAlphaBeta(pos, depth, 0, -Infinity, Infinity, true)
			} else {
				score, move = e.aspirationSearch(pos, depth, prevScore)
			}
			if !move.IsNull() {
				result.BestMove = move
				result.Score = score
				result.Depth = depth
				prevScore = score
			}
		} else {
			move, score, metrics, complete := e.parallelSearch(ctx, pos, depth, opts)
			if complete && !move.IsNull() {
				result.BestMove = move
				result.Score = score
				result.Depth = depth
				result.Metrics = metrics
				prevScore = score
			}
		}

		log.Debug().Int("depth", depth).
			Int("score", result.Score).
			Str("best-move", result.BestMove.String()).
			Uint64("nodes", e.nodes.Load()).
			Dur("elapsed", time.Since(start)).
			Msg("iteration-done")
	}

	result.Metrics.NodesSearched = e.nodes.Load()
	result.Metrics.ElapsedMs = time.Since(start).Milliseconds()
	if opts.MetricsHook != nil {
		opts.MetricsHook(result.Metrics)
	}
	return result
}

// aspirationSearch retries with a widening window around the previous
// iteration's score, falling back to a full window when it gets too wide.
func (e *Engine) aspirationSearch(pos chess.Position, depth, expected int) (int, chess.Move) {
	window := aspirationInitialWindow
	alpha := expected - window
	beta := expected + window

	for window <= aspirationMaxWindow {
		score, move := e.sequentialAlphaBeta(pos, depth, 0, alpha, beta, true)
		if score > alpha && score < beta {
			return score, move
		}
		if score <= alpha {
			alpha = expected - window*2
			window *= 2
			continue
		}
		beta = expected + window*2
		window *= 2
	}
	return e.sequentialAlphaBeta(pos, depth, 0, -Infinity, Infinity, true)
}

// sequentialAlphaBeta searches one subtree recursively. The side to move
// determines whether this node maximizes or minimizes; canNullMove blocks
// back-to-back null moves. Returns a White-perspective score and the best
// move found at this node.
func (e *Engine) sequentialAlphaBeta(pos chess.Position, depth, ply, alpha, beta int, canNullMove bool) (int, chess.Move) {
	e.nodes.Add(1)
	origAlpha := alpha
	side := pos.SideToMove()
	maximizing := side == chess.White

	// A repeated position scores as a draw adjusted by contempt, signed
	// against the side whose move created the repetition.
	if pos.IsRepetition() {
		return e.repetitionScore(side), chess.NullMove
	}

	hash := pos.ZobristHash()
	ttScore, ttMove, hit := e.tt.Probe(hash, depth, alpha, beta, side)
	if hit {
		return ttScore, ttMove
	}

	if pos.IsCheckmate() || pos.IsDraw() {
		return e.evaluate(pos), chess.NullMove
	}

	if depth == 0 {
		return e.quiescence(pos, alpha, beta, 0), chess.NullMove
	}

	inCheck := pos.InCheck()

	// Null-move pruning: hand the opponent a free move at reduced depth; if
	// the score still clears the window, this node can't matter. Skipped in
	// check and without non-pawn material, where zugzwang breaks the logic.
	if canNullMove && !inCheck && depth >= NullMoveR && pos.HasNonPawnMaterial(side) {
		pos.MakeNullMove()
		var nullScore int
		if maximizing {
			nullScore, _ = e.sequentialAlphaBeta(pos, depth-NullMoveR, ply+1, beta-1, beta, false)
		} else {
			nullScore, _ = e.sequentialAlphaBeta(pos, depth-NullMoveR, ply+1, alpha, alpha+1, false)
		}
		pos.UnmakeNullMove()

		if maximizing && nullScore >= beta {
			return beta, chess.NullMove
		}
		if !maximizing && nullScore <= alpha {
			return alpha, chess.NullMove
		}
	}

	moves := e.heur.OrderMovesWithHeuristics(pos, pos.GenerateLegalMoves(), ply, ttMove)
	if len(moves) == 0 {
		if inCheck {
			// Mate scores are offset by remaining depth so nearer mates
			// win comparisons.
			if maximizing {
				return -eval.MateValue - depth, chess.NullMove
			}
			return eval.MateValue + depth, chess.NullMove
		}
		return 0, chess.NullMove
	}

	const (
		lmrFullDepthMoves = 4
		lmrReductionLimit = 3
		lmrReduction      = 1
	)

	var bestMove chess.Move
	var bestScore int

	if maximizing {
		bestScore = -Infinity
		for i, m := range moves {
			reduce := i >= lmrFullDepthMoves && depth >= lmrReductionLimit &&
				!pos.IsCapture(m) && m.Promotion == chess.Empty && !inCheck

			pos.MakeMove(m)
			var score int
			if reduce {
				score, _ = e.sequentialAlphaBeta(pos, depth-1-lmrReduction, ply+1, alpha, beta, true)
				if score > alpha {
					score, _ = e.sequentialAlphaBeta(pos, depth-1, ply+1, alpha, beta, true)
				}
			} else {
				score, _ = e.sequentialAlphaBeta(pos, depth-1, ply+1, alpha, beta, true)
			}
			pos.UnmakeMove(m)

			if score > bestScore {
				bestScore = score
				bestMove = m
			}
			alpha = max(alpha, score)
			if beta <= alpha {
				e.heur.RecordCutoff(pos, ply, depth, m)
				break
			}
		}
	} else {
		bestScore = Infinity
		for i, m := range moves {
			reduce := i >= lmrFullDepthMoves && depth >= lmrReductionLimit &&
				!pos.IsCapture(m) && m.Promotion == chess.Empty && !inCheck

			pos.MakeMove(m)
			var score int
			if reduce {
				score, _ = e.sequentialAlphaBeta(pos, depth-1-lmrReduction, ply+1, alpha, beta, true)
				if score < beta {
					score, _ = e.sequentialAlphaBeta(pos, depth-1, ply+1, alpha, beta, true)
				}
			} else {
				score, _ = e.sequentialAlphaBeta(pos, depth-1, ply+1, alpha, beta, true)
			}
			pos.UnmakeMove(m)

			if score < bestScore {
				bestScore = score
				bestMove = m
			}
			beta = min(beta, score)
			if beta <= alpha {
				e.heur.RecordCutoff(pos, ply, depth, m)
				break
			}
		}
	}

	var flag uint8
	if maximizing {
		switch {
		case bestScore <= origAlpha:
			flag = TTUpper
		case bestScore >= beta:
			flag = TTLower
		default:
			flag = TTExact
		}
	} else {
		switch {
		case bestScore >= beta:
			flag = TTLower
		case bestScore <= origAlpha:
			flag = TTUpper
		default:
			flag = TTExact
		}
	}
	e.tt.Store(hash, depth, bestScore, flag, bestMove)

	return bestScore, bestMove
}

// quiescence extends the search through captures and promotions until the
// position is quiet, so the evaluator never scores mid-exchange.
func (e *Engine) quiescence(pos chess.Position, alpha, beta, qdepth int) int {
	e.nodes.Add(1)
	standPat := e.evaluate(pos)

	if pos.IsCheckmate() {
		if pos.SideToMove() == chess.White {
			return -eval.MateValue
		}
		return eval.MateValue
	}
	if pos.IsDraw() {
		return 0
	}
	if qdepth >= MaxQDepth {
		return standPat
	}

	maximizing := pos.SideToMove() == chess.White
	if maximizing {
		if standPat >= beta {
			return beta
		}
		if standPat > alpha {
			alpha = standPat
		}
	} else {
		if standPat <= alpha {
			return alpha
		}
		if standPat < beta {
			beta = standPat
		}
	}

	moves := pos.GenerateLegalMoves()
	captures := moves[:0]
	for _, m := range moves {
		if pos.IsCapture(m) || m.Promotion != chess.Empty {
			captures = append(captures, m)
		}
	}
	captures = OrderMoves(pos, captures)

	if maximizing {
		for _, m := range captures {
			// Delta pruning: even winning this piece plus a margin can't
			// lift the score to alpha.
			if standPat+capturedValue(pos, m)+200 < alpha {
				continue
			}
			pos.MakeMove(m)
			score := e.quiescence(pos, alpha, beta, qdepth+1)
			pos.UnmakeMove(m)
			if score >= beta {
				return beta
			}
			if score > alpha {
				alpha = score
			}
		}
		return alpha
	}

	for _, m := range captures {
		if standPat-capturedValue(pos, m)-200 > beta {
			continue
		}
		pos.MakeMove(m)
		score := e.quiescence(pos, alpha, beta, qdepth+1)
		pos.UnmakeMove(m)
		if score <= alpha {
			return alpha
		}
		if score < beta {
			beta = score
		}
	}
	return beta
}

// capturedValue is the victim's material value for delta pruning. The
// destination square is empty for en passant; that's still a pawn.
func capturedValue(pos chess.Position, m chess.Move) int {
	if pc := pos.PieceAt(m.To); pc != chess.Empty {
		return eval.PieceValue[pc.Kind()]
	}
	if pos.IsCapture(m) {
		return eval.PieceValue[chess.Pawn]
	}
	return 0
}
