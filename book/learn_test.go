package book

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/matryer/is"

	"github.com/domino14/ajedrez/board"
	"github.com/domino14/ajedrez/chess"
)

// playGame applies UCI moves from the starting position, returning the move
// history and the FEN before each move plus the final position.
func playGame(t *testing.T, ucis ...string) ([]chess.Move, []string) {
	t.Helper()
	bd := board.StartingPosition()
	history := make([]chess.Move, 0, len(ucis))
	fens := []string{bd.ToFEN()}
	for _, u := range ucis {
		m, ok := bd.FindMove(u)
		if !ok {
			t.Fatalf("no legal move %s at %s", u, bd.ToFEN())
		}
		bd.MakeMove(m)
		history = append(history, m)
		fens = append(fens, bd.ToFEN())
	}
	return history, fens
}

func moveStats(t *testing.T, b *Book, fen, uci string) MoveStats {
	t.Helper()
	entry, ok := b.LookupFEN(fen)
	if !ok {
		t.Fatalf("no book entry for %s", fen)
	}
	for _, ms := range entry.Moves {
		if ms.UCI == uci {
			return ms
		}
	}
	t.Fatalf("no stats for %s at %s", uci, fen)
	return MoveStats{}
}

func TestLearnFromGameAttribution(t *testing.T) {
	is := is.New(t)
	b := New("")
	history, fens := playGame(t, "e2e4", "e7e5", "g1f3", "b8c6")

	b.LearnFromGame(history, fens, ResultWhiteWins)

	// White's moves count as wins, Black's as losses.
	e4 := moveStats(t, b, fens[0], "e2e4")
	is.Equal(e4.OurGames, 1)
	is.Equal(e4.OurWins, 1)
	is.Equal(e4.OurLosses, 0)

	e5 := moveStats(t, b, fens[1], "e7e5")
	is.Equal(e5.OurGames, 1)
	is.Equal(e5.OurLosses, 1)

	nf3 := moveStats(t, b, fens[2], "g1f3")
	is.Equal(nf3.OurWins, 1)

	// Every reached position's aggregate records the game outcome.
	after, ok := b.LookupFEN(fens[1])
	is.True(ok)
	is.Equal(after.PosWhiteWins, 1)
	is.Equal(after.PosBlackWins, 0)

	last, ok := b.LookupFEN(fens[4])
	is.True(ok)
	is.Equal(last.PosWhiteWins, 1)

	// The game itself is logged.
	is.Equal(len(b.Games), 1)
	is.Equal(b.Games[0].Result, "white")
	is.Equal(b.Games[0].MoveCount, 4)
	is.Equal(b.Games[0].Moves[0], "e2e4")
}

func TestLearnFromGameDraw(t *testing.T) {
	is := is.New(t)
	b := New("")
	history, fens := playGame(t, "e2e4", "e7e5")

	b.LearnFromGame(history, fens, ResultDraw)

	e4 := moveStats(t, b, fens[0], "e2e4")
	is.Equal(e4.OurDraws, 1)
	is.Equal(e4.OurWins, 0)
	is.Equal(e4.OurLosses, 0)

	e5 := moveStats(t, b, fens[1], "e7e5")
	is.Equal(e5.OurDraws, 1)
}

func TestLearnFromGameIgnoresBadInput(t *testing.T) {
	is := is.New(t)
	b := New("")
	history, fens := playGame(t, "e2e4")

	b.LearnFromGame(nil, fens, ResultWhiteWins)
	b.LearnFromGame(history, fens, ResultUnknown)
	is.Equal(len(b.Positions), 0)
	is.Equal(len(b.Games), 0)
}

func TestLearnStopsSamplingStableMoves(t *testing.T) {
	is := is.New(t)
	b := New("")
	history, fens := playGame(t, "e2e4")

	// 25 straight wins: after ten samples the win rate is clearly stable
	// and further games stop counting.
	for i := 0; i < 25; i++ {
		b.LearnFromGame(history, fens, ResultWhiteWins)
	}

	e4 := moveStats(t, b, fens[0], "e2e4")
	is.Equal(e4.OurGames, learnStableSamples)
	is.Equal(e4.OurWins, learnStableSamples)

	recorded, skipped := b.LearningStats()
	is.Equal(recorded, int64(10))
	is.Equal(skipped, int64(15))

	// Position aggregates keep counting; only move sampling is capped.
	after, ok := b.LookupFEN(fens[1])
	is.True(ok)
	is.Equal(after.PosWhiteWins, 25)
}

func TestLearnHardCap(t *testing.T) {
	is := is.New(t)
	b := New("")
	history, fens := playGame(t, "e2e4")

	// Alternating results keep the win rate near 50%, so stability never
	// kicks in and sampling runs to the hard cap.
	for i := 0; i < 30; i++ {
		result := ResultWhiteWins
		if i%2 == 1 {
			result = ResultBlackWins
		}
		b.LearnFromGame(history, fens, result)
	}

	e4 := moveStats(t, b, fens[0], "e2e4")
	is.Equal(e4.OurGames, learnHardCap)
	is.True(e4.OurGames <= 20)
	is.Equal(e4.OurWins, 10)
	is.Equal(e4.OurLosses, 10)
}

func TestLearnUsesNormalizedKeys(t *testing.T) {
	is := is.New(t)
	b := New("")
	history, fens := playGame(t, "e2e4", "e7e5", "g1f3", "b8c6")

	// fens[3] carries real clock counters after two knight developments.
	is.True(fens[3] != normalizeFEN(fens[3]))

	b.LearnFromGame(history, fens, ResultDraw)

	b.mu.RLock()
	_, rawKey := b.Positions[fens[3]]
	_, normKey := b.Positions[normalizeFEN(fens[3])]
	b.mu.RUnlock()
	is.True(!rawKey)
	is.True(normKey)
}

func TestLearnTruncatesLongGames(t *testing.T) {
	is := is.New(t)
	b := New("")

	// A knight shuffle long enough to blow past the learning horizon.
	ucis := make([]string, 0, 40)
	for i := 0; i < 10; i++ {
		ucis = append(ucis, "g1f3", "g8f6", "f3g1", "f6g8")
	}
	history, fens := playGame(t, ucis...)

	b.LearnFromGame(history, fens, ResultDraw)

	is.Equal(len(b.Games), 1)
	is.Equal(b.Games[0].MoveCount, 40)

	// Only the first learnMaxPlies moves feed the book. The shuffle visits
	// four distinct positions plus their aggregates.
	stats := moveStats(t, b, fens[0], "g1f3")
	// g1f3 recurs at plies 0,4,8,...,28: eight samples within the horizon.
	is.Equal(stats.OurGames, 8)
	is.Equal(stats.OurDraws, 8)
}

func TestLearnedDataSurvivesReload(t *testing.T) {
	is := is.New(t)
	dir := t.TempDir()

	b := Load(filepath.Join(dir, "book.json"))
	history, fens := playGame(t, "e2e4", "e7e5")
	b.LearnFromGame(history, fens, ResultWhiteWins)

	// Snapshot to a fresh path so the reload below cannot observe the
	// learner's own background save mid-write.
	snapshot := filepath.Join(dir, "snapshot.json")
	data, err := json.Marshal(b)
	is.NoErr(err)
	is.NoErr(os.WriteFile(snapshot, data, 0644))

	reloaded := Load(snapshot)
	is.True(reloaded.Source != "")
	e4 := moveStats(t, reloaded, fens[0], "e2e4")
	is.Equal(e4.OurGames, 1)
	is.Equal(e4.OurWins, 1)
	is.Equal(len(reloaded.Games), 1)
}

func TestResetLearningStats(t *testing.T) {
	is := is.New(t)
	b := New("")
	history, fens := playGame(t, "e2e4")
	b.LearnFromGame(history, fens, ResultWhiteWins)

	recorded, _ := b.LearningStats()
	is.Equal(recorded, int64(1))

	b.ResetLearningStats()
	recorded, skipped := b.LearningStats()
	is.Equal(recorded, int64(0))
	is.Equal(skipped, int64(0))
}
