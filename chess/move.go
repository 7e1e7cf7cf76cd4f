package chess

import "fmt"

// Move is a from/to square pair plus an optional promotion piece. It carries
// no undo or search bookkeeping; boards remember whatever they need to take a
// move back, and search state stays in the search.
type Move struct {
	From      Square
	To        Square
	Promotion Piece
}

// NullMove is the zero Move. No legal chess move has From == To == a1.
var NullMove = Move{}

func (m Move) IsNull() bool {
	return m.From == 0 && m.To == 0
}

// String renders UCI notation, e.g. "e2e4" or "e7e8q".
func (m Move) String() string {
	if m.IsNull() {
		return "0000"
	}
	s := m.From.String() + m.To.String()
	if m.Promotion != Empty {
		switch m.Promotion.Kind() {
		case Queen:
			s += "q"
		case Rook:
			s += "r"
		case Bishop:
			s += "b"
		case Knight:
			s += "n"
		}
	}
	return s
}

// ParseMove parses UCI notation. The promotion piece color is inferred from
// the destination rank.
func ParseMove(str string) (Move, error) {
	if len(str) != 4 && len(str) != 5 {
		return NullMove, fmt.Errorf("bad move %q", str)
	}
	from, err := ParseSquare(str[:2])
	if err != nil {
		return NullMove, fmt.Errorf("bad move %q: %w", str, err)
	}
	to, err := ParseSquare(str[2:4])
	if err != nil {
		return NullMove, fmt.Errorf("bad move %q: %w", str, err)
	}
	m := Move{From: from, To: to}
	if len(str) == 5 {
		color := White
		if to.Rank() == 0 {
			color = Black
		}
		switch str[4] {
		case 'q':
			m.Promotion = PieceFor(Queen, color)
		case 'r':
			m.Promotion = PieceFor(Rook, color)
		case 'b':
			m.Promotion = PieceFor(Bishop, color)
		case 'n':
			m.Promotion = PieceFor(Knight, color)
		default:
			return NullMove, fmt.Errorf("bad promotion in %q", str)
		}
	}
	return m, nil
}
