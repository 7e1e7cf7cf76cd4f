// Package eval scores positions in centipawns from White's perspective.
// Material plus piece-square tables, a small mobility term, and the bishop
// pair. The search treats it as a plugin; see engine.Evaluator.
package eval

import "github.com/domino14/ajedrez/chess"

// MateValue is the magnitude of a checkmate score. The search offsets it by
// depth so faster mates score higher.
const MateValue = 100000

// PieceValue is indexed by piece kind (chess.Pawn..chess.King). Kings carry
// no material value; losing one ends the game instead.
var PieceValue = [7]int{0, 100, 320, 330, 500, 900, 0}

// Piece-square tables from White's perspective, index 0 = a1. Black pieces
// read them through a vertical flip.

var pawnPST = [64]int{
	0, 0, 0, 0, 0, 0, 0, 0,
	5, 10, 10, -20, -20, 10, 10, 5,
	5, -5, -10, 0, 0, -10, -5, 5,
	0, 0, 0, 20, 20, 0, 0, 0,
	5, 5, 10, 25, 25, 10, 5, 5,
	10, 10, 20, 30, 30, 20, 10, 10,
	50, 50, 50, 50, 50, 50, 50, 50,
	0, 0, 0, 0, 0, 0, 0, 0,
}

var knightPST = [64]int{
	-50, -40, -30, -30, -30, -30, -40, -50,
	-40, -20, 0, 5, 5, 0, -20, -40,
	-30, 5, 10, 15, 15, 10, 5, -30,
	-30, 0, 15, 20, 20, 15, 0, -30,
	-30, 5, 15, 20, 20, 15, 5, -30,
	-30, 0, 10, 15, 15, 10, 0, -30,
	-40, -20, 0, 0, 0, 0, -20, -40,
	-50, -40, -30, -30, -30, -30, -40, -50,
}

var bishopPST = [64]int{
	-20, -10, -10, -10, -10, -10, -10, -20,
	-10, 5, 0, 0, 0, 0, 5, -10,
	-10, 10, 10, 10, 10, 10, 10, -10,
	-10, 0, 10, 10, 10, 10, 0, -10,
	-10, 5, 5, 10, 10, 5, 5, -10,
	-10, 0, 5, 10, 10, 5, 0, -10,
	-10, 0, 0, 0, 0, 0, 0, -10,
	-20, -10, -10, -10, -10, -10, -10, -20,
}

var rookPST = [64]int{
	0, 0, 0, 5, 5, 0, 0, 0,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	5, 10, 10, 10, 10, 10, 10, 5,
	0, 0, 0, 0, 0, 0, 0, 0,
}

var queenPST = [64]int{
	-20, -10, -10, -5, -5, -10, -10, -20,
	-10, 0, 0, 0, 0, 0, 0, -10,
	-10, 5, 5, 5, 5, 5, 0, -10,
	0, 0, 5, 5, 5, 5, 0, -5,
	-5, 0, 5, 5, 5, 5, 0, -5,
	-10, 0, 5, 5, 5, 5, 0, -10,
	-10, 0, 0, 0, 0, 0, 0, -10,
	-20, -10, -10, -5, -5, -10, -10, -20,
}

// Middlegame king table rewards castling; the endgame table pulls the king
// toward the center.
var kingMiddlegamePST = [64]int{
	20, 30, 10, 0, 0, 10, 30, 20,
	20, 20, 0, 0, 0, 0, 20, 20,
	-10, -20, -20, -20, -20, -20, -20, -10,
	-20, -30, -30, -40, -40, -30, -30, -20,
	-30, -40, -40, -50, -50, -40, -40, -30,
	-30, -40, -40, -50, -50, -40, -40, -30,
	-30, -40, -40, -50, -50, -40, -40, -30,
	-30, -40, -40, -50, -50, -40, -40, -30,
}

var kingEndgamePST = [64]int{
	-50, -30, -30, -30, -30, -30, -30, -50,
	-30, -30, 0, 0, 0, 0, -30, -30,
	-30, -10, 20, 30, 30, 20, -10, -30,
	-30, -10, 30, 40, 40, 30, -10, -30,
	-30, -10, 30, 40, 40, 30, -10, -30,
	-30, -10, 20, 30, 30, 20, -10, -30,
	-30, -20, -10, 0, 0, -10, -20, -30,
	-50, -40, -30, -20, -20, -30, -40, -50,
}

var kindPST = [7]*[64]int{nil, &pawnPST, &knightPST, &bishopPST, &rookPST, &queenPST, &kingMiddlegamePST}

func flipSquare(sq chess.Square) chess.Square {
	return chess.Square(56 - 8*(int(sq)/8) + int(sq)%8)
}

// IsEndgame reports whether the position should use endgame king placement:
// both queens off, or either side below a rook plus a minor.
func IsEndgame(p chess.Position) bool {
	hasWQueen, hasBQueen := false, false
	whiteMaterial, blackMaterial := 0, 0

	for sq := chess.Square(0); sq < 64; sq++ {
		pc := p.PieceAt(sq)
		if pc == chess.Empty {
			continue
		}
		val := PieceValue[pc.Kind()]
		if pc.IsWhite() {
			whiteMaterial += val
			if pc == chess.WQueen {
				hasWQueen = true
			}
		} else {
			blackMaterial += val
			if pc == chess.BQueen {
				hasBQueen = true
			}
		}
	}

	if !hasWQueen && !hasBQueen {
		return true
	}
	return whiteMaterial < 1300 || blackMaterial < 1300
}

// Evaluate returns a static score in centipawns, positive for White.
// Checkmate and draws are detected here so quiescence leaves are exact.
func Evaluate(p chess.Position) int {
	if p.IsCheckmate() {
		if p.SideToMove() == chess.White {
			return -MateValue
		}
		return MateValue
	}
	if p.IsDraw() {
		return 0
	}

	score := 0
	endgame := IsEndgame(p)
	whiteBishops, blackBishops := 0, 0

	for sq := chess.Square(0); sq < 64; sq++ {
		pc := p.PieceAt(sq)
		if pc == chess.Empty {
			continue
		}
		kind := pc.Kind()

		val := PieceValue[kind]
		idx := int(sq)
		if pc.IsBlack() {
			idx = int(flipSquare(sq))
		}

		pst := kindPST[kind]
		if kind == chess.King && endgame {
			pst = &kingEndgamePST
		}
		val += pst[idx]

		if pc.IsWhite() {
			score += val
		} else {
			score -= val
		}

		if pc == chess.WBishop {
			whiteBishops++
		} else if pc == chess.BBishop {
			blackBishops++
		}
	}

	// Two centipawns per pseudo-legal move.
	score += (p.Mobility(chess.White) - p.Mobility(chess.Black)) * 2

	if whiteBishops >= 2 {
		score += 30
	}
	if blackBishops >= 2 {
		score -= 30
	}
	return score
}
