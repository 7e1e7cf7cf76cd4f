package engine

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/domino14/ajedrez/book"
	"github.com/domino14/ajedrez/chess"
)

const (
	// bookPlyLimit is the last ply at which a book move may be played
	// outright.
	bookPlyLimit = 36

	// shallowDepth is the depth of the quick searches that sanity-check
	// book moves and rank candidates for training exploration.
	shallowDepth = 3

	// bookRejectMargin rejects a picked book move scoring this many
	// centipawns below even; bookOverrideMargin is how far below the
	// search's best a bonused book move may sit and still take over.
	bookRejectMargin   = 150
	bookOverrideMargin = 100

	trainingPlyLimit = 30
	trainingDecayPly = 20
	trainingTopN     = 5
)

// SearchWithBook is Search plus opening knowledge. Inside the book horizon
// it plays a weighted book move when one passes a shallow sanity search;
// through the bonus phase it lets book moves with strong historical results
// override the search choice when they are tactically close. ply is the
// number of half-moves already played. Works like Search when no book is
// attached.
func (e *Engine) SearchWithBook(ctx context.Context, pos chess.Position, ply int, opts SearchOptions) SearchResult {
	opts = opts.withDefaults()
	moves := pos.GenerateLegalMoves()
	if len(moves) == 0 {
		return SearchResult{}
	}
	side := pos.SideToMove()
	contempt := e.ContemptFor(side)

	// With contempt on, drop moves that walk straight into a repetition,
	// unless they are all we have.
	if contempt > 0 && len(moves) > 1 {
		nonRep := make([]chess.Move, 0, len(moves))
		for _, m := range moves {
			pos.MakeMove(m)
			rep := pos.IsRepetition()
			pos.UnmakeMove(m)
			if !rep {
				nonRep = append(nonRep, m)
			}
		}
		if len(nonRep) > 0 {
			moves = nonRep
		}
	}

	if e.book != nil && ply <= bookPlyLimit {
		if bookMove, ok := e.book.PickBookMove(pos, moves, ply, contempt); ok {
			score := e.shallowScore(pos, bookMove)
			moverScore := score
			if side == chess.Black {
				moverScore = -score
			}
			// A book move that loses material to a shallow search is a
			// gambit we don't trust; fall through to the real search.
			if moverScore >= -bookRejectMargin {
				log.Debug().Str("move", bookMove.String()).
					Int("score", score).
					Int("ply", ply).
					Msg("book-move")
				return SearchResult{BestMove: bookMove, Score: score, Depth: shallowDepth}
			}
			log.Debug().Str("move", bookMove.String()).
				Int("mover-score", moverScore).
				Msg("book-move-rejected")
		}
	}

	if e.book != nil && book.BonusForPly(ply) > 0 {
		return e.searchWithBookBonus(ctx, pos, moves, ply, opts)
	}

	result := e.Search(ctx, pos, opts)

	// Training games sample among the top moves instead of always playing
	// the best one, so self-play lines diverge.
	if e.training && ply <= trainingPlyLimit && len(moves) > 1 {
		temperature := 1.0
		if ply > trainingDecayPly {
			temperature = 1.0 - 0.09*float64(ply-trainingDecayPly)
		}
		topMoves, topScores := e.topMovesWithScores(pos, moves, trainingTopN)
		if len(topMoves) > 1 {
			selected := e.SoftmaxSelect(topMoves, topScores, temperature)
			selectedScore := topScores[0]
			for i, m := range topMoves {
				if m == selected {
					selectedScore = topScores[i]
					break
				}
			}
			if side == chess.Black {
				selectedScore = -selectedScore
			}
			return SearchResult{
				BestMove: selected,
				Score:    selectedScore,
				Depth:    result.Depth,
				Metrics:  result.Metrics,
			}
		}
	}

	return result
}

// searchWithBookBonus runs one full search, then lets a book move with a
// big enough bonus take over when it sits within tactical range of the
// search's choice. Bonuses are precomputed per move so the search runs
// exactly once. The returned score is the search score, not the
// bonus-inflated total.
func (e *Engine) searchWithBookBonus(ctx context.Context, pos chess.Position, moves []chess.Move, ply int, opts SearchOptions) SearchResult {
	start := time.Now()
	fen := pos.ToFEN()
	side := pos.SideToMove()
	sign := 1
	if side == chess.Black {
		sign = -1
	}
	base := book.BonusForPly(ply)

	bonuses := make(map[string]int, len(moves))
	for _, m := range moves {
		uci := m.String()
		bonus := e.book.GetBookBonus(fen, uci, ply)
		if bonus == 0 && e.book.IsInBook(fen, uci) {
			bonus = base / 2
		}
		pos.MakeMove(m)
		bonus += e.book.GetPositionPenalty(pos.ToFEN(), side)
		pos.UnmakeMove(m)
		bonuses[uci] = bonus
	}

	result := e.Search(ctx, pos, opts)

	bestMove := result.BestMove
	bestTotal := sign*result.Score + bonuses[bestMove.String()]
	for _, m := range moves {
		if m == bestMove {
			continue
		}
		moveBonus := bonuses[m.String()]
		if moveBonus <= 0 {
			continue
		}
		moverScore := sign * e.shallowScore(pos, m)
		if moverScore < sign*result.Score-bookOverrideMargin {
			continue
		}
		if total := moverScore + moveBonus; total > bestTotal {
			bestTotal = total
			bestMove = m
		}
	}

	if bestMove != result.BestMove {
		log.Debug().Str("search-move", result.BestMove.String()).
			Str("book-move", bestMove.String()).
			Int("ply", ply).
			Msg("book-bonus-override")
	}
	result.BestMove = bestMove
	result.Metrics.ElapsedMs = time.Since(start).Milliseconds()
	return result
}

// shallowScore plays m and searches the reply at a fixed shallow depth,
// returning the White-perspective score of the move.
func (e *Engine) shallowScore(pos chess.Position, m chess.Move) int {
	pos.MakeMove(m)
	score, _ := e.sequentialAlphaBeta(pos, shallowDepth, 0, -Infinity, Infinity, true)
	pos.UnmakeMove(m)
	return score
}

// topMovesWithScores shallow-scores every move and returns the best n with
// their scores from the mover's perspective, descending.
func (e *Engine) topMovesWithScores(pos chess.Position, moves []chess.Move, n int) ([]chess.Move, []int) {
	if len(moves) == 0 {
		return nil, nil
	}
	if n > len(moves) {
		n = len(moves)
	}
	sign := 1
	if pos.SideToMove() == chess.Black {
		sign = -1
	}
	sorted := make([]chess.Move, len(moves))
	copy(sorted, moves)
	scores := make(map[chess.Move]int, len(moves))
	for _, m := range sorted {
		scores[m] = sign * e.shallowScore(pos, m)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return scores[sorted[i]] > scores[sorted[j]]
	})
	top := sorted[:n]
	topScores := make([]int, n)
	for i, m := range top {
		topScores[i] = scores[m]
	}
	return top, topScores
}

// SoftmaxSelect samples a move with probability proportional to
// exp(score/temperature), scores in centipawns and temperature in pawn
// units. Near-zero temperatures collapse to greedy selection.
func (e *Engine) SoftmaxSelect(moves []chess.Move, scores []int, temperature float64) chess.Move {
	if len(moves) == 0 {
		return chess.NullMove
	}
	if len(moves) == 1 || temperature <= 0.01 {
		best := 0
		for i, s := range scores {
			if s > scores[best] {
				best = i
			}
		}
		return moves[best]
	}

	maxScore := scores[0]
	for _, s := range scores {
		if s > maxScore {
			maxScore = s
		}
	}
	weights := make([]float64, len(moves))
	var total float64
	for i, s := range scores {
		w := math.Exp(float64(s-maxScore) / (temperature * 100))
		weights[i] = w
		total += w
	}
	r := e.randFloat() * total
	for i, w := range weights {
		r -= w
		if r <= 0 {
			return moves[i]
		}
	}
	return moves[0]
}
