package selfplay

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/domino14/ajedrez/book"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	os.Exit(m.Run())
}

func testArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := OpenArchive(filepath.Join(t.TempDir(), "games.db"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestArchiveRecordAndCount(t *testing.T) {
	a := testArchive(t)

	fresh, err := a.Record(GameOutcome{
		Result: book.ResultWhiteWins,
		Moves:  []string{"e2e4", "e7e5", "f1c4", "b8c6", "d1h5", "g8f6", "h5f7"},
	})
	require.NoError(t, err)
	assert.True(t, fresh)

	n, err := a.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestArchiveDeduplicatesIdenticalGames(t *testing.T) {
	a := testArchive(t)
	game := GameOutcome{
		Result: book.ResultDraw,
		Moves:  []string{"g1f3", "g8f6", "f3g1", "f6g8"},
	}

	fresh, err := a.Record(game)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = a.Record(game)
	require.NoError(t, err)
	assert.False(t, fresh)

	n, err := a.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// A different move list is a different game, same result or not.
	fresh, err = a.Record(GameOutcome{
		Result: book.ResultDraw,
		Moves:  []string{"e2e4", "e7e5"},
	})
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestArchiveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "games.db")
	a, err := OpenArchive(path)
	require.NoError(t, err)
	_, err = a.Record(GameOutcome{Result: book.ResultWhiteWins, Moves: []string{"e2e4"}})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	a, err = OpenArchive(path)
	require.NoError(t, err)
	defer a.Close()
	n, err := a.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
