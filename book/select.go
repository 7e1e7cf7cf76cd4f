package book

import (
	"math"

	"github.com/rs/zerolog/log"

	"github.com/domino14/ajedrez/board"
	"github.com/domino14/ajedrez/chess"
)

const (
	// minCandidateWeight drops moves with no evidence of success;
	// learnedBadWeight is what a move earns once self-play has shown it
	// loses and no master ever played it.
	minCandidateWeight = 0.1
	learnedBadWeight   = 0.01

	// selfPlayBoost scales the quadratic win-rate reward for moves our
	// own games keep winning with.
	selfPlayBoost   = 15
	goodWinRate     = 0.4
	bookTempStart   = 1.5
	bookTempDecayAt = 20
)

type candidate struct {
	move   chess.Move
	weight float64
}

// PickBookMove selects a move by weighted random choice among the legal
// moves the book knows. Master game counts set the base weight; self-play
// wins boost it quadratically, and moves self-play has learned to be bad
// drop out. When contempt is nonzero, moves that walk into an immediate
// repetition are excluded. In training mode the weights pass through a
// softmax with a ply-decaying temperature so openings vary across games.
func (b *Book) PickBookMove(pos chess.Position, legalMoves []chess.Move, ply, contempt int) (chess.Move, bool) {
	if b == nil {
		return chess.NullMove, false
	}

	entry, ok := b.LookupHash(pos.ZobristHash())
	if !ok {
		entry, ok = b.LookupFEN(pos.ToFEN())
		if !ok || len(entry.Moves) == 0 {
			return chess.NullMove, false
		}
	}

	var candidates []candidate
	for _, bm := range entry.Moves {
		for _, lm := range legalMoves {
			if lm.String() != bm.UCI {
				continue
			}
			if contempt > 0 {
				pos.MakeMove(lm)
				rep := pos.IsRepetition()
				pos.UnmakeMove(lm)
				if rep {
					break
				}
			}

			weight := float64(bm.MasterGames)
			if bm.OurGames > 0 {
				winRate := float64(bm.OurWins) / float64(bm.OurGames)
				if winRate > goodWinRate {
					weight += float64(bm.OurWins) * winRate * winRate * selfPlayBoost
				} else if bm.MasterGames == 0 {
					weight = learnedBadWeight
				}
				// A poor self-play record against master backing keeps
				// the master weight; our sample may just be small.
			}
			if weight < minCandidateWeight {
				break
			}

			candidates = append(candidates, candidate{move: lm, weight: weight})
			break
		}
	}
	if len(candidates) == 0 {
		return chess.NullMove, false
	}

	b.mu.RLock()
	training := b.training
	randFloat := b.randFloat
	b.mu.RUnlock()

	if training && len(candidates) > 1 {
		return b.softmaxPick(candidates, ply, randFloat), true
	}

	var total float64
	for _, c := range candidates {
		total += c.weight
	}
	r := randFloat() * total
	for _, c := range candidates {
		r -= c.weight
		if r <= 0 {
			return c.move, true
		}
	}
	return candidates[0].move, true
}

// softmaxPick flattens the raw weights on a log scale before sampling.
// Without it the most popular master move dominates every training game;
// with it 1.e4's million games and 1.d4's nine hundred thousand come out
// nearly even.
func (b *Book) softmaxPick(candidates []candidate, ply int, randFloat func() float64) chess.Move {
	temperature := bookTempStart
	if ply > bookTempDecayAt {
		temperature = bookTempStart - 0.1*float64(ply-bookTempDecayAt)
	}

	maxLogW := math.Inf(-1)
	for _, c := range candidates {
		if lw := math.Log(c.weight); lw > maxLogW {
			maxLogW = lw
		}
	}

	weights := make([]float64, len(candidates))
	var total float64
	for i, c := range candidates {
		w := math.Exp((math.Log(c.weight) - maxLogW) / temperature)
		weights[i] = w
		total += w
	}

	r := randFloat() * total
	for i, w := range weights {
		r -= w
		if r <= 0 {
			log.Debug().Str("move", candidates[i].move.String()).
				Float64("temperature", temperature).
				Msg("book-training-pick")
			return candidates[i].move
		}
	}
	return candidates[0].move
}

var (
	sqF2 = chess.SquareAt(1, 5)
	sqF7 = chess.SquareAt(6, 5)
	sqG2 = chess.SquareAt(1, 6)
	sqG7 = chess.SquareAt(6, 6)
)

// IsWeakeningMove reports whether a move is a known early-game mistake: an
// f-pawn or early queen sortie before ply 10, or a g-pawn push before
// castling is settled. Captures are always allowed through.
func IsWeakeningMove(b *board.Board, m chess.Move, ply int) bool {
	if b.IsCapture(m) {
		return false
	}

	if ply <= 10 {
		if (m.From == sqF2 && b.SideToMove() == chess.White) ||
			(m.From == sqF7 && b.SideToMove() == chess.Black) {
			return true
		}
		if b.PieceAt(m.From).Kind() == chess.Queen {
			return true
		}
	}

	if ply <= 12 && b.CastlingRights() != 0 {
		if (m.From == sqG2 && b.SideToMove() == chess.White) ||
			(m.From == sqG7 && b.SideToMove() == chess.Black) {
			return true
		}
	}

	return false
}

// FilterWeakeningMoves removes known early mistakes from a move list,
// unless that would remove everything.
func FilterWeakeningMoves(b *board.Board, moves []chess.Move, ply int) []chess.Move {
	if ply > 12 {
		return moves
	}
	filtered := make([]chess.Move, 0, len(moves))
	for _, m := range moves {
		if !IsWeakeningMove(b, m, ply) {
			filtered = append(filtered, m)
		}
	}
	if len(filtered) == 0 {
		return moves
	}
	return filtered
}
