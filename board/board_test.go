package board

import (
	"os"
	"testing"

	"github.com/matryer/is"
	"github.com/rs/zerolog"

	"github.com/domino14/ajedrez/chess"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	os.Exit(m.Run())
}

func perft(b *Board, depth int) int {
	if depth == 0 {
		return 1
	}
	moves := b.GenerateLegalMoves()
	if depth == 1 {
		return len(moves)
	}
	total := 0
	for _, m := range moves {
		b.MakeMove(m)
		total += perft(b, depth-1)
		b.UnmakeMove(m)
	}
	return total
}

func TestPerft(t *testing.T) {
	// Reference node counts for positions exercising castling, en passant,
	// promotions, and pins.
	cases := []struct {
		fen   string
		depth int
		nodes int
	}{
		{StartFEN, 1, 20},
		{StartFEN, 2, 400},
		{StartFEN, 3, 8902},
		{"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1", 1, 48},
		{"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1", 2, 2039},
		{"8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 0 1", 1, 14},
		{"8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 0 1", 2, 191},
		{"8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 0 1", 3, 2812},
		{"r3k2r/Pppp1ppp/1b3nbN/nP6/BBP1P3/q4N2/Pp1P2PP/R2Q1RK1 w kq - 0 1", 1, 6},
		{"r3k2r/Pppp1ppp/1b3nbN/nP6/BBP1P3/q4N2/Pp1P2PP/R2Q1RK1 w kq - 0 1", 2, 264},
		{"rnbq1k1r/pp1Pbppp/2p5/8/2B5/8/PPP1NnPP/RNBQK2R w KQ - 1 8", 1, 44},
		{"rnbq1k1r/pp1Pbppp/2p5/8/2B5/8/PPP1NnPP/RNBQK2R w KQ - 1 8", 2, 1486},
	}
	for _, tc := range cases {
		b, err := FromFEN(tc.fen)
		if err != nil {
			t.Fatalf("FromFEN(%q): %v", tc.fen, err)
		}
		if got := perft(b, tc.depth); got != tc.nodes {
			t.Errorf("perft(%q, %d) = %d, want %d", tc.fen, tc.depth, got, tc.nodes)
		}
	}
}

func TestFENRoundTrip(t *testing.T) {
	is := is.New(t)
	fens := []string{
		StartFEN,
		"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1",
		"8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 3 42",
		"rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1",
	}
	for _, fen := range fens {
		b, err := FromFEN(fen)
		is.NoErr(err)
		is.Equal(b.ToFEN(), fen)
	}
}

func TestMakeUnmakeRestores(t *testing.T) {
	is := is.New(t)
	b := StartingPosition()
	fen0 := b.ToFEN()
	hash0 := b.ZobristHash()

	var made []chess.Move
	// A Berlin defense line with captures and a castle.
	for _, uci := range []string{"e2e4", "e7e5", "g1f3", "b8c6", "f1b5", "g8f6", "e1g1", "f6e4", "f1e1", "e4d6", "f3e5", "f8e7"} {
		m, ok := b.FindMove(uci)
		is.True(ok)
		b.MakeMove(m)
		made = append(made, m)
	}
	for i := len(made) - 1; i >= 0; i-- {
		b.UnmakeMove(made[i])
	}
	is.Equal(b.ToFEN(), fen0)
	is.Equal(b.ZobristHash(), hash0)
}

func TestPromotionMakeUnmake(t *testing.T) {
	is := is.New(t)
	b, err := FromFEN("8/P6k/8/8/8/8/8/K7 w - - 0 1")
	is.NoErr(err)
	fen0 := b.ToFEN()

	m, ok := b.FindMove("a7a8q")
	is.True(ok)
	b.MakeMove(m)
	is.Equal(b.PieceAt(chess.A8), chess.WQueen)
	b.UnmakeMove(m)
	is.Equal(b.ToFEN(), fen0)
}

func TestEnPassantCapture(t *testing.T) {
	is := is.New(t)
	b, err := FromFEN("rnbqkbnr/ppp1pppp/8/8/3pP3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 3")
	is.NoErr(err)

	m, ok := b.FindMove("d4e3")
	is.True(ok)
	is.True(b.IsCapture(m))

	fen0 := b.ToFEN()
	b.MakeMove(m)
	is.Equal(b.PieceAt(chess.Square(20)), chess.BPawn) // e3
	is.Equal(b.PieceAt(chess.Square(28)), chess.Empty) // e4 pawn gone
	b.UnmakeMove(m)
	is.Equal(b.ToFEN(), fen0)
}

func TestEnPassantHashedOnlyWhenCapturable(t *testing.T) {
	is := is.New(t)

	// After 1. e4 no black pawn can take on e3, so the en-passant square
	// must not contribute to the hash.
	withEP, err := FromFEN("rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1")
	is.NoErr(err)
	withoutEP, err := FromFEN("rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1")
	is.NoErr(err)
	_, ok := withEP.EnPassantTarget()
	is.True(!ok)
	is.Equal(withEP.ZobristHash(), withoutEP.ZobristHash())

	// With a black pawn on d4 the capture is real and the hash must differ.
	capturable, err := FromFEN("rnbqkbnr/ppp1pppp/8/8/3pP3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 3")
	is.NoErr(err)
	plain, err := FromFEN("rnbqkbnr/ppp1pppp/8/8/3pP3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 3")
	is.NoErr(err)
	_, ok = capturable.EnPassantTarget()
	is.True(ok)
	is.True(capturable.ZobristHash() != plain.ZobristHash())
}

func TestRepetitionDetection(t *testing.T) {
	is := is.New(t)
	b := StartingPosition()

	for _, uci := range []string{"g1f3", "g8f6", "f3g1", "f6g8"} {
		m, ok := b.FindMove(uci)
		is.True(ok)
		is.True(!b.IsRepetition())
		b.MakeMove(m)
	}
	// Knights returned home: the starting position occurred again.
	is.True(b.IsRepetition())
	is.Equal(b.RepetitionCount(), 2)
}

func TestNullMove(t *testing.T) {
	is := is.New(t)
	b, err := FromFEN("rnbqkbnr/ppp1pppp/8/8/3pP3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 3")
	is.NoErr(err)
	fen0 := b.ToFEN()
	hash0 := b.ZobristHash()

	b.MakeNullMove()
	is.Equal(b.SideToMove(), chess.White)
	is.True(b.ZobristHash() != hash0)
	b.UnmakeNullMove()
	is.Equal(b.ToFEN(), fen0)
	is.Equal(b.ZobristHash(), hash0)
}

func TestCheckmateStalemateDraw(t *testing.T) {
	is := is.New(t)

	// Fool's mate.
	b := StartingPosition()
	for _, uci := range []string{"f2f3", "e7e5", "g2g4", "d8h4"} {
		m, ok := b.FindMove(uci)
		is.True(ok)
		b.MakeMove(m)
	}
	is.True(b.InCheck())
	is.True(b.IsCheckmate())

	stale, err := FromFEN("7k/5Q2/6K1/8/8/8/8/8 b - - 0 1")
	is.NoErr(err)
	is.True(!stale.InCheck())
	is.True(stale.IsStalemate())
	is.True(stale.IsDraw())

	fifty, err := FromFEN("7k/8/6K1/8/8/8/8/1R6 w - - 100 80")
	is.NoErr(err)
	is.True(fifty.IsDraw())
}

func TestHasNonPawnMaterial(t *testing.T) {
	is := is.New(t)
	b := StartingPosition()
	is.True(b.HasNonPawnMaterial(chess.White))
	is.True(b.HasNonPawnMaterial(chess.Black))

	pawnsOnly, err := FromFEN("4k3/pppp4/8/8/8/8/4PPPP/4K3 w - - 0 1")
	is.NoErr(err)
	is.True(!pawnsOnly.HasNonPawnMaterial(chess.White))
	is.True(!pawnsOnly.HasNonPawnMaterial(chess.Black))
}

func TestCopyIsIndependent(t *testing.T) {
	is := is.New(t)
	b := StartingPosition()
	cp := b.Copy()

	m, ok := b.FindMove("e2e4")
	is.True(ok)
	b.MakeMove(m)
	is.True(cp.ToFEN() != b.ToFEN())
	is.Equal(cp.ToFEN(), StartFEN)
}

func TestCastlingRightsLostByRookCapture(t *testing.T) {
	is := is.New(t)
	b, err := FromFEN("r3k2r/8/6N1/8/8/8/8/R3K2R w KQkq - 0 1")
	is.NoErr(err)

	// A knight capturing on h8 clears black's kingside right even though
	// black never moved.
	m, ok := b.FindMove("g6h8")
	is.True(ok)
	b.MakeMove(m)
	is.Equal(b.CastlingRights()&chess.CastleBK, uint8(0))
	is.True(b.CastlingRights()&chess.CastleBQ != 0)
}
