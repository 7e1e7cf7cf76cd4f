package engine

import (
	"github.com/domino14/ajedrez/chess"
	"github.com/domino14/ajedrez/eval"
)

// MaxPly caps killer-move bookkeeping depth.
const MaxPly = 64

// Move ordering tiers. Within a tier, MVV-LVA or history break ties.
const (
	scoreTTMove    = 10000000
	scoreCapture   = 1000000
	scorePromotion = 900000
	scoreKiller    = 800000
	historyCap     = 10000
)

// Heuristics holds the killer-move and history tables for one engine.
// Workers share an instance and update it without locks; lost or torn
// writes only perturb move ordering, never correctness.
type Heuristics struct {
	killers [MaxPly][2]chess.Move
	history [2][64][64]int
}

// RecordCutoff credits a move that caused a beta cutoff. Captures are
// skipped; MVV-LVA already ranks them.
func (h *Heuristics) RecordCutoff(pos chess.Position, ply, depth int, m chess.Move) {
	if pos.IsCapture(m) {
		return
	}
	if ply < MaxPly && h.killers[ply][0] != m {
		h.killers[ply][1] = h.killers[ply][0]
		h.killers[ply][0] = m
	}

	side := pos.SideToMove()
	h.history[side][m.From][m.To] += depth * depth
	if h.history[side][m.From][m.To] > historyCap {
		// Age everything instead of clamping one cell, so relative order
		// survives.
		for s := 0; s < 2; s++ {
			for f := 0; f < 64; f++ {
				for t := 0; t < 64; t++ {
					h.history[s][f][t] /= 2
				}
			}
		}
	}
}

func (h *Heuristics) isKiller(ply int, m chess.Move) bool {
	if ply >= MaxPly {
		return false
	}
	return h.killers[ply][0] == m || h.killers[ply][1] == m
}

func (h *Heuristics) historyScore(side chess.Color, m chess.Move) int {
	return h.history[side][m.From][m.To]
}

// Clear resets both tables. Call between games, not between searches;
// carrying them across iterations is the point.
func (h *Heuristics) Clear() {
	for i := range h.killers {
		h.killers[i][0] = chess.NullMove
		h.killers[i][1] = chess.NullMove
	}
	for s := 0; s < 2; s++ {
		for f := 0; f < 64; f++ {
			for t := 0; t < 64; t++ {
				h.history[s][f][t] = 0
			}
		}
	}
}

// MVVLVA scores a capture: most valuable victim times ten, minus the
// attacker's value. Non-captures score 0; a non-capturing promotion gets a
// bump so it sorts above quiet moves. En-passant captures land on the bare
// capture floor because the target square is empty.
func MVVLVA(pos chess.Position, m chess.Move) int {
	captured := pos.PieceAt(m.To)
	if captured == chess.Empty {
		if m.Promotion != chess.Empty {
			return 800 + eval.PieceValue[m.Promotion.Kind()]
		}
		return 0
	}
	attacker := pos.PieceAt(m.From)
	return eval.PieceValue[captured.Kind()]*10 - eval.PieceValue[attacker.Kind()]
}

// MoveScore ranks a move for ordering: TT move, then captures by MVV-LVA,
// then promotions, then killers, then history.
func (h *Heuristics) MoveScore(pos chess.Position, m chess.Move, ply int, ttMove chess.Move) int {
	if m == ttMove && !ttMove.IsNull() {
		return scoreTTMove
	}
	if pos.IsCapture(m) {
		return scoreCapture + MVVLVA(pos, m)
	}
	if m.Promotion != chess.Empty {
		return scorePromotion + eval.PieceValue[m.Promotion.Kind()]
	}
	if h.isKiller(ply, m) {
		return scoreKiller
	}
	return h.historyScore(pos.SideToMove(), m)
}

// OrderMoves sorts in place by MVV-LVA alone, highest first. The parallel
// fan-out uses it where killers and history don't apply.
func OrderMoves(pos chess.Position, moves []chess.Move) []chess.Move {
	scores := make([]int, len(moves))
	for i, m := range moves {
		scores[i] = MVVLVA(pos, m)
	}
	insertionSort(moves, scores)
	return moves
}

// OrderMovesWithHeuristics sorts in place using the full tier scoring.
func (h *Heuristics) OrderMovesWithHeuristics(pos chess.Position, moves []chess.Move, ply int, ttMove chess.Move) []chess.Move {
	scores := make([]int, len(moves))
	for i, m := range moves {
		scores[i] = h.MoveScore(pos, m, ply, ttMove)
	}
	insertionSort(moves, scores)
	return moves
}

// insertionSort sorts moves by score, descending and stable. Move lists are
// short; this beats sort.Slice and keeps equal-scored moves in generation
// order, which the deterministic mode relies on.
func insertionSort(moves []chess.Move, scores []int) {
	for i := 1; i < len(moves); i++ {
		m, s := moves[i], scores[i]
		j := i - 1
		for j >= 0 && scores[j] < s {
			moves[j+1] = moves[j]
			scores[j+1] = scores[j]
			j--
		}
		moves[j+1] = m
		scores[j+1] = s
	}
}
