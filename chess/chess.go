// Package chess defines the primitive types shared by every layer of the
// engine: colors, pieces, squares, moves, and the Position interface that the
// search core consumes. It deliberately contains no rules logic; that lives in
// the board package.
package chess

import "fmt"

// Color is the side to move, or the owner of a piece.
type Color uint8

const (
	White Color = iota
	Black
)

func (c Color) Other() Color {
	if c == White {
		return Black
	}
	return White
}

func (c Color) String() string {
	if c == White {
		return "white"
	}
	return "black"
}

// Piece encodes both the piece kind and its color in a single byte.
type Piece uint8

const (
	Empty Piece = iota
	WPawn
	WKnight
	WBishop
	WRook
	WQueen
	WKing
	BPawn
	BKnight
	BBishop
	BRook
	BQueen
	BKing
)

// Piece kinds, color-independent. These index value and piece-square tables.
const (
	NoPiece = iota
	Pawn
	Knight
	Bishop
	Rook
	Queen
	King
)

// Kind strips the color, returning Pawn..King (or NoPiece for Empty).
func (p Piece) Kind() int {
	if p == Empty {
		return NoPiece
	}
	if p >= BPawn {
		return int(p) - 6
	}
	return int(p)
}

func (p Piece) Color() Color {
	if p >= BPawn {
		return Black
	}
	return White
}

func (p Piece) IsWhite() bool { return p >= WPawn && p <= WKing }
func (p Piece) IsBlack() bool { return p >= BPawn }

// PieceFor returns the colored piece for a kind.
func PieceFor(kind int, c Color) Piece {
	if kind == NoPiece {
		return Empty
	}
	if c == Black {
		return Piece(kind + 6)
	}
	return Piece(kind)
}

var pieceLetters = [13]byte{'.', 'P', 'N', 'B', 'R', 'Q', 'K', 'p', 'n', 'b', 'r', 'q', 'k'}

// Letter returns the FEN letter for the piece ('.' for Empty).
func (p Piece) Letter() byte {
	return pieceLetters[p]
}

// PieceFromLetter parses a FEN piece letter.
func PieceFromLetter(b byte) (Piece, bool) {
	for i := 1; i < len(pieceLetters); i++ {
		if pieceLetters[i] == b {
			return Piece(i), true
		}
	}
	return Empty, false
}

// Square indexes the board a1=0 .. h8=63, file-major within each rank.
type Square int8

const NoSquare Square = -1

// Named squares that the rules code refers to (castling, initial rooks).
const (
	A1 Square = 0
	B1 Square = 1
	C1 Square = 2
	D1 Square = 3
	E1 Square = 4
	F1 Square = 5
	G1 Square = 6
	H1 Square = 7
	A8 Square = 56
	B8 Square = 57
	C8 Square = 58
	D8 Square = 59
	E8 Square = 60
	F8 Square = 61
	G8 Square = 62
	H8 Square = 63
)

func (s Square) Rank() int { return int(s) / 8 }
func (s Square) File() int { return int(s) % 8 }

func (s Square) Valid() bool { return s >= 0 && s < 64 }

// SquareAt builds a square from rank and file, returning NoSquare when either
// is off the board.
func SquareAt(rank, file int) Square {
	if rank < 0 || rank > 7 || file < 0 || file > 7 {
		return NoSquare
	}
	return Square(rank*8 + file)
}

func (s Square) String() string {
	if !s.Valid() {
		return "-"
	}
	return string([]byte{byte('a' + s.File()), byte('1' + s.Rank())})
}

// ParseSquare parses algebraic notation like "e4".
func ParseSquare(str string) (Square, error) {
	if len(str) != 2 || str[0] < 'a' || str[0] > 'h' || str[1] < '1' || str[1] > '8' {
		return NoSquare, fmt.Errorf("bad square %q", str)
	}
	return Square(int(str[1]-'1')*8 + int(str[0]-'a')), nil
}

// Castling rights bits, stored together in a uint8.
const (
	CastleWK uint8 = 1 << iota
	CastleWQ
	CastleBK
	CastleBQ
)
