package board

import "github.com/domino14/ajedrez/chess"

var (
	knightDeltas = [8][2]int{{2, 1}, {2, -1}, {-2, 1}, {-2, -1}, {1, 2}, {1, -2}, {-1, 2}, {-1, -2}}
	kingDeltas   = [8][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}, {1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
	rookDirs     = [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	bishopDirs   = [4][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
)

// GenerateLegalMoves returns every legal move for the side to move, in a
// stable square-scan order. Captures carry no special marking; IsCapture
// answers that.
func (b *Board) GenerateLegalMoves() []chess.Move {
	pseudo := b.generatePseudo(b.side)
	legal := pseudo[:0]
	for _, m := range pseudo {
		u := b.apply(m)
		// side already flipped, so the mover is the other side now
		safe := !b.isAttacked(b.kingSq[b.side.Other()], b.side)
		b.revert(m, u)
		if safe {
			legal = append(legal, m)
		}
	}
	return legal
}

// Mobility counts pseudo-legal moves for a side. Used by the evaluator; it
// does not mutate the board.
func (b *Board) Mobility(side chess.Color) int {
	return len(b.generatePseudo(side))
}

// FindMove looks up a UCI string like "e2e4" among the legal moves.
func (b *Board) FindMove(uci string) (chess.Move, bool) {
	for _, m := range b.GenerateLegalMoves() {
		if m.String() == uci {
			return m, true
		}
	}
	return chess.NullMove, false
}

func (b *Board) generatePseudo(side chess.Color) []chess.Move {
	moves := make([]chess.Move, 0, 48)
	for sq := chess.Square(0); sq < 64; sq++ {
		pc := b.squares[sq]
		if pc == chess.Empty || pc.Color() != side {
			continue
		}
		switch pc.Kind() {
		case chess.Pawn:
			moves = b.genPawnMoves(sq, side, moves)
		case chess.Knight:
			moves = b.genStepMoves(sq, side, knightDeltas[:], moves)
		case chess.Bishop:
			moves = b.genSlideMoves(sq, side, bishopDirs[:], moves)
		case chess.Rook:
			moves = b.genSlideMoves(sq, side, rookDirs[:], moves)
		case chess.Queen:
			moves = b.genSlideMoves(sq, side, rookDirs[:], moves)
			moves = b.genSlideMoves(sq, side, bishopDirs[:], moves)
		case chess.King:
			moves = b.genStepMoves(sq, side, kingDeltas[:], moves)
			moves = b.genCastleMoves(side, moves)
		}
	}
	return moves
}

func (b *Board) genPawnMoves(from chess.Square, side chess.Color, moves []chess.Move) []chess.Move {
	r, f := from.Rank(), from.File()
	dir, startRank, promoRank := 1, 1, 7
	if side == chess.Black {
		dir, startRank, promoRank = -1, 6, 0
	}

	appendPawn := func(to chess.Square) []chess.Move {
		if to.Rank() == promoRank {
			for _, kind := range [4]int{chess.Queen, chess.Rook, chess.Bishop, chess.Knight} {
				moves = append(moves, chess.Move{From: from, To: to, Promotion: chess.PieceFor(kind, side)})
			}
			return moves
		}
		return append(moves, chess.Move{From: from, To: to})
	}

	if to := chess.SquareAt(r+dir, f); to.Valid() && b.squares[to] == chess.Empty {
		moves = appendPawn(to)
		if r == startRank {
			if to2 := chess.SquareAt(r+2*dir, f); b.squares[to2] == chess.Empty {
				moves = append(moves, chess.Move{From: from, To: to2})
			}
		}
	}

	for _, df := range [2]int{-1, 1} {
		to := chess.SquareAt(r+dir, f+df)
		if !to.Valid() {
			continue
		}
		target := b.squares[to]
		if target != chess.Empty && target.Color() != side {
			moves = appendPawn(to)
		} else if to == b.epSquare && b.epSquare != chess.NoSquare {
			moves = append(moves, chess.Move{From: from, To: to})
		}
	}
	return moves
}

func (b *Board) genStepMoves(from chess.Square, side chess.Color, deltas [][2]int, moves []chess.Move) []chess.Move {
	r, f := from.Rank(), from.File()
	for _, d := range deltas {
		to := chess.SquareAt(r+d[0], f+d[1])
		if !to.Valid() {
			continue
		}
		if target := b.squares[to]; target == chess.Empty || target.Color() != side {
			moves = append(moves, chess.Move{From: from, To: to})
		}
	}
	return moves
}

func (b *Board) genSlideMoves(from chess.Square, side chess.Color, dirs [][2]int, moves []chess.Move) []chess.Move {
	r, f := from.Rank(), from.File()
	for _, d := range dirs {
		for step := 1; ; step++ {
			to := chess.SquareAt(r+d[0]*step, f+d[1]*step)
			if !to.Valid() {
				break
			}
			target := b.squares[to]
			if target == chess.Empty {
				moves = append(moves, chess.Move{From: from, To: to})
				continue
			}
			if target.Color() != side {
				moves = append(moves, chess.Move{From: from, To: to})
			}
			break
		}
	}
	return moves
}

func (b *Board) genCastleMoves(side chess.Color, moves []chess.Move) []chess.Move {
	if side == chess.White {
		if b.castling&chess.CastleWK != 0 &&
			b.squares[chess.F1] == chess.Empty && b.squares[chess.G1] == chess.Empty &&
			!b.isAttacked(chess.E1, chess.Black) && !b.isAttacked(chess.F1, chess.Black) &&
			!b.isAttacked(chess.G1, chess.Black) {
			moves = append(moves, chess.Move{From: chess.E1, To: chess.G1})
		}
		if b.castling&chess.CastleWQ != 0 &&
			b.squares[chess.D1] == chess.Empty && b.squares[chess.C1] == chess.Empty &&
			b.squares[chess.B1] == chess.Empty &&
			!b.isAttacked(chess.E1, chess.Black) && !b.isAttacked(chess.D1, chess.Black) &&
			!b.isAttacked(chess.C1, chess.Black) {
			moves = append(moves, chess.Move{From: chess.E1, To: chess.C1})
		}
		return moves
	}
	if b.castling&chess.CastleBK != 0 &&
		b.squares[chess.F8] == chess.Empty && b.squares[chess.G8] == chess.Empty &&
		!b.isAttacked(chess.E8, chess.White) && !b.isAttacked(chess.F8, chess.White) &&
		!b.isAttacked(chess.G8, chess.White) {
		moves = append(moves, chess.Move{From: chess.E8, To: chess.G8})
	}
	if b.castling&chess.CastleBQ != 0 &&
		b.squares[chess.D8] == chess.Empty && b.squares[chess.C8] == chess.Empty &&
		b.squares[chess.B8] == chess.Empty &&
		!b.isAttacked(chess.E8, chess.White) && !b.isAttacked(chess.D8, chess.White) &&
		!b.isAttacked(chess.C8, chess.White) {
		moves = append(moves, chess.Move{From: chess.E8, To: chess.C8})
	}
	return moves
}

// isAttacked reports whether side `by` attacks sq.
func (b *Board) isAttacked(sq chess.Square, by chess.Color) bool {
	if !sq.Valid() {
		return false
	}
	r, f := sq.Rank(), sq.File()

	// Pawns attack toward higher ranks for White, lower for Black.
	pawnRank := r - 1
	if by == chess.Black {
		pawnRank = r + 1
	}
	pawn := chess.PieceFor(chess.Pawn, by)
	for _, df := range [2]int{-1, 1} {
		if psq := chess.SquareAt(pawnRank, f+df); psq.Valid() && b.squares[psq] == pawn {
			return true
		}
	}

	knight := chess.PieceFor(chess.Knight, by)
	for _, d := range knightDeltas {
		if nsq := chess.SquareAt(r+d[0], f+d[1]); nsq.Valid() && b.squares[nsq] == knight {
			return true
		}
	}

	king := chess.PieceFor(chess.King, by)
	for _, d := range kingDeltas {
		if ksq := chess.SquareAt(r+d[0], f+d[1]); ksq.Valid() && b.squares[ksq] == king {
			return true
		}
	}

	rook := chess.PieceFor(chess.Rook, by)
	queen := chess.PieceFor(chess.Queen, by)
	for _, d := range rookDirs {
		for step := 1; ; step++ {
			tsq := chess.SquareAt(r+d[0]*step, f+d[1]*step)
			if !tsq.Valid() {
				break
			}
			if pc := b.squares[tsq]; pc != chess.Empty {
				if pc == rook || pc == queen {
					return true
				}
				break
			}
		}
	}

	bishop := chess.PieceFor(chess.Bishop, by)
	for _, d := range bishopDirs {
		for step := 1; ; step++ {
			tsq := chess.SquareAt(r+d[0]*step, f+d[1]*step)
			if !tsq.Valid() {
				break
			}
			if pc := b.squares[tsq]; pc != chess.Empty {
				if pc == bishop || pc == queen {
					return true
				}
				break
			}
		}
	}
	return false
}
