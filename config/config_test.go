package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	os.Exit(m.Run())
}

func TestDefaults(t *testing.T) {
	c, err := load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 6, c.SearchDepth)
	assert.Equal(t, 3, c.ParallelThreshold)
	assert.Equal(t, 20, c.TTExponent)
	assert.Equal(t, 0.5, c.DrawValue)
	assert.Equal(t, 10, c.RepetitionPenalty)
	assert.Equal(t, 200, c.MaxGamePlies)
	assert.Contains(t, c.BookPath, "opening_book.json")
}

func TestConfigFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	yaml := "search-depth: 8\ndraw-value: 0.2\nbook-path: /tmp/testbook.json\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	c, err := load(dir)
	require.NoError(t, err)

	assert.Equal(t, 8, c.SearchDepth)
	assert.Equal(t, 0.2, c.DrawValue)
	assert.Equal(t, "/tmp/testbook.json", c.BookPath)
	// Untouched keys keep their defaults.
	assert.Equal(t, 3, c.ParallelThreshold)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	yaml := "search-depth: 8\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("AJEDREZ_SEARCH_DEPTH", "4")
	t.Setenv("AJEDREZ_WORKERS", "2")

	c, err := load(dir)
	require.NoError(t, err)

	assert.Equal(t, 4, c.SearchDepth)
	assert.Equal(t, 2, c.Workers)
}

func TestMalformedFileFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("search-depth: [unclosed"), 0644))

	_, err := load(dir)
	assert.Error(t, err)
}
