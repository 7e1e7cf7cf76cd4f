package chess

// Position is the game-state contract the search engine is written against.
// The board package provides the real implementation; tests are free to
// substitute their own.
//
// Implementations are not safe for concurrent mutation. The parallel search
// gives every task its own Copy and never shares one position across
// goroutines.
type Position interface {
	// GenerateLegalMoves returns all strictly legal moves in a stable,
	// implementation-defined order.
	GenerateLegalMoves() []Move

	// MakeMove applies a legal move. UnmakeMove takes back the most recent
	// move, which must be the one passed in. Positions keep their own undo
	// stack; callers only replay moves in LIFO order.
	MakeMove(Move)
	UnmakeMove(Move)

	// MakeNullMove passes the turn without moving, for null-move pruning.
	MakeNullMove()
	UnmakeNullMove()

	// Copy returns a deep copy sharing no mutable state with the receiver.
	Copy() Position

	PieceAt(Square) Piece
	SideToMove() Color

	// IsCapture reports whether a move captures, including en passant.
	IsCapture(Move) bool

	// Mobility counts pseudo-legal moves for a side without mutating the
	// position.
	Mobility(Color) int

	InCheck() bool
	IsCheckmate() bool

	// IsDraw covers stalemate and the fifty-move rule.
	IsDraw() bool

	// IsRepetition reports whether the current position occurred before in
	// the game history. RepetitionCount counts occurrences including the
	// present one.
	IsRepetition() bool
	RepetitionCount() int

	// HasNonPawnMaterial reports whether a side has any piece besides king
	// and pawns, the usual zugzwang guard for null-move pruning.
	HasNonPawnMaterial(Color) bool

	ZobristHash() uint64
	ToFEN() string
}
