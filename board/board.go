// Package board implements the chess rules: position state, move making and
// unmaking, legality, repetition detection, and FEN. It is the concrete
// implementation of chess.Position that the engine searches.
package board

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/domino14/ajedrez/chess"
	"github.com/domino14/ajedrez/zobrist"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// The key tables are immutable, so every board shares one hasher.
var hasher = zobrist.New()

// undoState is what MakeMove saves so UnmakeMove can restore the position.
// Moves themselves stay plain from/to/promotion values.
type undoState struct {
	captured   chess.Piece
	capturedSq chess.Square
	castling   uint8
	epSquare   chess.Square
	halfMoves  int
}

// Board is a mailbox position with a move-undo stack and a hash history for
// repetition detection.
type Board struct {
	squares   [64]chess.Piece
	side      chess.Color
	castling  uint8
	epSquare  chess.Square
	halfMoves int
	fullMoves int
	kingSq    [2]chess.Square

	// history holds the zobrist hash after every made move, oldest first.
	history  []uint64
	undo     []undoState
	nullUndo []chess.Square
}

// StartingPosition returns a board set up for a new game.
func StartingPosition() *Board {
	b, err := FromFEN(StartFEN)
	if err != nil {
		panic(err)
	}
	return b
}

// FromFEN parses a FEN string. The halfmove and fullmove counters are
// optional; missing fields default to "0 1".
func FromFEN(fen string) (*Board, error) {
	fields := strings.Fields(fen)
	if len(fields) < 4 {
		return nil, fmt.Errorf("fen %q: want at least 4 fields, got %d", fen, len(fields))
	}
	b := &Board{
		epSquare:  chess.NoSquare,
		fullMoves: 1,
		kingSq:    [2]chess.Square{chess.NoSquare, chess.NoSquare},
	}

	ranks := strings.Split(fields[0], "/")
	if len(ranks) != 8 {
		return nil, fmt.Errorf("fen %q: want 8 ranks, got %d", fen, len(ranks))
	}
	for r := 0; r < 8; r++ {
		file := 0
		for i := 0; i < len(ranks[r]); i++ {
			ch := ranks[r][i]
			if ch >= '1' && ch <= '8' {
				file += int(ch - '0')
				continue
			}
			pc, ok := chess.PieceFromLetter(ch)
			if !ok || file > 7 {
				return nil, fmt.Errorf("fen %q: bad rank %q", fen, ranks[r])
			}
			sq := chess.SquareAt(7-r, file)
			b.squares[sq] = pc
			if pc == chess.WKing {
				b.kingSq[chess.White] = sq
			} else if pc == chess.BKing {
				b.kingSq[chess.Black] = sq
			}
			file++
		}
		if file != 8 {
			return nil, fmt.Errorf("fen %q: rank %q does not cover 8 files", fen, ranks[r])
		}
	}

	switch fields[1] {
	case "w":
		b.side = chess.White
	case "b":
		b.side = chess.Black
	default:
		return nil, fmt.Errorf("fen %q: bad side %q", fen, fields[1])
	}

	if fields[2] != "-" {
		for i := 0; i < len(fields[2]); i++ {
			switch fields[2][i] {
			case 'K':
				b.castling |= chess.CastleWK
			case 'Q':
				b.castling |= chess.CastleWQ
			case 'k':
				b.castling |= chess.CastleBK
			case 'q':
				b.castling |= chess.CastleBQ
			default:
				return nil, fmt.Errorf("fen %q: bad castling %q", fen, fields[2])
			}
		}
	}

	if fields[3] != "-" {
		sq, err := chess.ParseSquare(fields[3])
		if err != nil {
			return nil, fmt.Errorf("fen %q: %w", fen, err)
		}
		b.epSquare = sq
	}

	if len(fields) > 4 {
		hm, err := strconv.Atoi(fields[4])
		if err != nil {
			return nil, fmt.Errorf("fen %q: bad halfmove clock: %w", fen, err)
		}
		b.halfMoves = hm
	}
	if len(fields) > 5 {
		fm, err := strconv.Atoi(fields[5])
		if err != nil {
			return nil, fmt.Errorf("fen %q: bad fullmove counter: %w", fen, err)
		}
		b.fullMoves = fm
	}
	return b, nil
}

// ToFEN renders the position as a FEN string.
func (b *Board) ToFEN() string {
	var sb strings.Builder
	for r := 7; r >= 0; r-- {
		empty := 0
		for f := 0; f < 8; f++ {
			pc := b.squares[chess.SquareAt(r, f)]
			if pc == chess.Empty {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteByte(byte('0' + empty))
				empty = 0
			}
			sb.WriteByte(pc.Letter())
		}
		if empty > 0 {
			sb.WriteByte(byte('0' + empty))
		}
		if r > 0 {
			sb.WriteByte('/')
		}
	}

	sb.WriteByte(' ')
	if b.side == chess.White {
		sb.WriteByte('w')
	} else {
		sb.WriteByte('b')
	}

	sb.WriteByte(' ')
	if b.castling == 0 {
		sb.WriteByte('-')
	} else {
		if b.castling&chess.CastleWK != 0 {
			sb.WriteByte('K')
		}
		if b.castling&chess.CastleWQ != 0 {
			sb.WriteByte('Q')
		}
		if b.castling&chess.CastleBK != 0 {
			sb.WriteByte('k')
		}
		if b.castling&chess.CastleBQ != 0 {
			sb.WriteByte('q')
		}
	}

	sb.WriteByte(' ')
	sb.WriteString(b.epSquare.String())
	fmt.Fprintf(&sb, " %d %d", b.halfMoves, b.fullMoves)
	return sb.String()
}

func (b *Board) PieceAt(sq chess.Square) chess.Piece { return b.squares[sq] }
func (b *Board) SideToMove() chess.Color             { return b.side }
func (b *Board) CastlingRights() uint8               { return b.castling }
func (b *Board) HalfMoveClock() int                  { return b.halfMoves }
func (b *Board) FullMoveNumber() int                 { return b.fullMoves }

// EnPassantTarget reports the en-passant square only when a pawn of the side
// to move can actually capture onto it. Positions that differ only in an
// unusable en-passant square hash identically.
func (b *Board) EnPassantTarget() (chess.Square, bool) {
	ep := b.epSquare
	if ep == chess.NoSquare {
		return chess.NoSquare, false
	}
	var pawn chess.Piece
	var pawnRank int
	if b.side == chess.White {
		pawn = chess.WPawn
		pawnRank = ep.Rank() - 1
	} else {
		pawn = chess.BPawn
		pawnRank = ep.Rank() + 1
	}
	for _, df := range [2]int{-1, 1} {
		sq := chess.SquareAt(pawnRank, ep.File()+df)
		if sq.Valid() && b.squares[sq] == pawn {
			return ep, true
		}
	}
	return chess.NoSquare, false
}

// ZobristHash computes the position hash from scratch.
func (b *Board) ZobristHash() uint64 {
	return hasher.Hash(b)
}

// Copy returns a deep copy, including the undo stack and hash history.
func (b *Board) Copy() chess.Position {
	return b.clone()
}

func (b *Board) clone() *Board {
	nb := &Board{
		squares:   b.squares,
		side:      b.side,
		castling:  b.castling,
		epSquare:  b.epSquare,
		halfMoves: b.halfMoves,
		fullMoves: b.fullMoves,
		kingSq:    b.kingSq,
	}
	nb.history = append(nb.history, b.history...)
	nb.undo = append(nb.undo, b.undo...)
	nb.nullUndo = append(nb.nullUndo, b.nullUndo...)
	return nb
}

// IsCapture reports whether m captures, including en passant.
func (b *Board) IsCapture(m chess.Move) bool {
	if b.squares[m.To] != chess.Empty {
		return true
	}
	pc := b.squares[m.From]
	return (pc == chess.WPawn || pc == chess.BPawn) &&
		m.To == b.epSquare && b.epSquare != chess.NoSquare
}

// MakeMove applies a legal move and appends the resulting hash to the game
// history. Calling it with an illegal move corrupts the position.
func (b *Board) MakeMove(m chess.Move) {
	u := b.apply(m)
	b.undo = append(b.undo, u)
	b.history = append(b.history, b.ZobristHash())
}

// UnmakeMove takes back the most recent move, which must be m.
func (b *Board) UnmakeMove(m chess.Move) {
	u := b.undo[len(b.undo)-1]
	b.undo = b.undo[:len(b.undo)-1]
	b.history = b.history[:len(b.history)-1]
	b.revert(m, u)
}

// apply mutates the position without touching the undo stack or history.
// The legality filter uses it directly to avoid hashing throwaway states.
func (b *Board) apply(m chess.Move) undoState {
	u := undoState{
		captured:   b.squares[m.To],
		capturedSq: m.To,
		castling:   b.castling,
		epSquare:   b.epSquare,
		halfMoves:  b.halfMoves,
	}

	pc := b.squares[m.From]
	isPawn := pc == chess.WPawn || pc == chess.BPawn

	// En passant: the captured pawn is not on the destination square.
	if isPawn && m.To == b.epSquare && u.captured == chess.Empty {
		if b.side == chess.White {
			u.capturedSq = m.To - 8
		} else {
			u.capturedSq = m.To + 8
		}
		u.captured = b.squares[u.capturedSq]
		b.squares[u.capturedSq] = chess.Empty
	}

	b.squares[m.To] = pc
	b.squares[m.From] = chess.Empty
	if m.Promotion != chess.Empty {
		b.squares[m.To] = m.Promotion
	}

	// Castling moves the rook too.
	if pc == chess.WKing || pc == chess.BKing {
		b.kingSq[b.side] = m.To
		switch {
		case m.From == chess.E1 && m.To == chess.G1:
			b.squares[chess.F1] = b.squares[chess.H1]
			b.squares[chess.H1] = chess.Empty
		case m.From == chess.E1 && m.To == chess.C1:
			b.squares[chess.D1] = b.squares[chess.A1]
			b.squares[chess.A1] = chess.Empty
		case m.From == chess.E8 && m.To == chess.G8:
			b.squares[chess.F8] = b.squares[chess.H8]
			b.squares[chess.H8] = chess.Empty
		case m.From == chess.E8 && m.To == chess.C8:
			b.squares[chess.D8] = b.squares[chess.A8]
			b.squares[chess.A8] = chess.Empty
		}
	}

	b.castling &= castleRightsMask[m.From] & castleRightsMask[m.To]

	b.epSquare = chess.NoSquare
	if isPawn {
		if diff := int(m.To) - int(m.From); diff == 16 {
			b.epSquare = m.From + 8
		} else if diff == -16 {
			b.epSquare = m.From - 8
		}
	}

	if isPawn || u.captured != chess.Empty {
		b.halfMoves = 0
	} else {
		b.halfMoves++
	}
	if b.side == chess.Black {
		b.fullMoves++
	}
	b.side = b.side.Other()
	return u
}

func (b *Board) revert(m chess.Move, u undoState) {
	b.side = b.side.Other()
	if b.side == chess.Black {
		b.fullMoves--
	}

	pc := b.squares[m.To]
	if m.Promotion != chess.Empty {
		pc = chess.PieceFor(chess.Pawn, b.side)
	}
	b.squares[m.From] = pc
	b.squares[m.To] = chess.Empty
	if u.captured != chess.Empty {
		b.squares[u.capturedSq] = u.captured
	}

	if pc == chess.WKing || pc == chess.BKing {
		b.kingSq[b.side] = m.From
		switch {
		case m.From == chess.E1 && m.To == chess.G1:
			b.squares[chess.H1] = b.squares[chess.F1]
			b.squares[chess.F1] = chess.Empty
		case m.From == chess.E1 && m.To == chess.C1:
			b.squares[chess.A1] = b.squares[chess.D1]
			b.squares[chess.D1] = chess.Empty
		case m.From == chess.E8 && m.To == chess.G8:
			b.squares[chess.H8] = b.squares[chess.F8]
			b.squares[chess.F8] = chess.Empty
		case m.From == chess.E8 && m.To == chess.C8:
			b.squares[chess.A8] = b.squares[chess.D8]
			b.squares[chess.D8] = chess.Empty
		}
	}

	b.castling = u.castling
	b.epSquare = u.epSquare
	b.halfMoves = u.halfMoves
}

// MakeNullMove passes the turn. Null moves do not enter the game history, so
// they never create artificial repetitions.
func (b *Board) MakeNullMove() {
	b.nullUndo = append(b.nullUndo, b.epSquare)
	b.epSquare = chess.NoSquare
	b.side = b.side.Other()
}

func (b *Board) UnmakeNullMove() {
	b.epSquare = b.nullUndo[len(b.nullUndo)-1]
	b.nullUndo = b.nullUndo[:len(b.nullUndo)-1]
	b.side = b.side.Other()
}

// castleRightsMask clears castling rights when a move touches a king or rook
// home square. ANDing both endpoints handles moves and captures alike.
var castleRightsMask = func() [64]uint8 {
	var m [64]uint8
	for i := range m {
		m[i] = 0xF
	}
	m[chess.A1] = ^chess.CastleWQ & 0xF
	m[chess.E1] = ^(chess.CastleWK | chess.CastleWQ) & 0xF
	m[chess.H1] = ^chess.CastleWK & 0xF
	m[chess.A8] = ^chess.CastleBQ & 0xF
	m[chess.E8] = ^(chess.CastleBK | chess.CastleBQ) & 0xF
	m[chess.H8] = ^chess.CastleBK & 0xF
	return m
}()

// HasNonPawnMaterial reports whether side has a knight, bishop, rook, or
// queen left.
func (b *Board) HasNonPawnMaterial(side chess.Color) bool {
	for sq := chess.Square(0); sq < 64; sq++ {
		pc := b.squares[sq]
		if pc == chess.Empty || pc.Color() != side {
			continue
		}
		switch pc.Kind() {
		case chess.Knight, chess.Bishop, chess.Rook, chess.Queen:
			return true
		}
	}
	return false
}

// IsRepetition reports whether the current position already occurred in the
// game history. A single prior occurrence counts; the search penalizes
// repeats well before the threefold rule would end the game.
func (b *Board) IsRepetition() bool {
	if len(b.history) < 4 {
		return false
	}
	cur := b.history[len(b.history)-1]
	for i := len(b.history) - 2; i >= 0; i-- {
		if b.history[i] == cur {
			return true
		}
	}
	return false
}

// RepetitionCount counts occurrences of the current position, including the
// present one.
func (b *Board) RepetitionCount() int {
	if len(b.history) == 0 {
		return 1
	}
	count := 1
	cur := b.history[len(b.history)-1]
	for i := len(b.history) - 2; i >= 0; i-- {
		if b.history[i] == cur {
			count++
		}
	}
	return count
}

func (b *Board) InCheck() bool {
	return b.isAttacked(b.kingSq[b.side], b.side.Other())
}

func (b *Board) IsCheckmate() bool {
	return b.InCheck() && len(b.GenerateLegalMoves()) == 0
}

func (b *Board) IsStalemate() bool {
	return !b.InCheck() && len(b.GenerateLegalMoves()) == 0
}

// IsDraw covers stalemate and the fifty-move rule. The halfmove clock counts
// plies, so fifty full moves is 100.
func (b *Board) IsDraw() bool {
	if b.halfMoves >= 100 {
		return true
	}
	return b.IsStalemate()
}

// String renders the board for debug output, rank 8 at the top.
func (b *Board) String() string {
	var sb strings.Builder
	for r := 7; r >= 0; r-- {
		fmt.Fprintf(&sb, "%d ", r+1)
		for f := 0; f < 8; f++ {
			sb.WriteByte(b.squares[chess.SquareAt(r, f)].Letter())
			sb.WriteByte(' ')
		}
		sb.WriteByte('\n')
	}
	sb.WriteString("  a b c d e f g h\n")
	return sb.String()
}
