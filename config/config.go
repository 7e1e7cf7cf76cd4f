// Package config holds process configuration: file paths and the search and
// training tuning knobs. Values come from defaults, an optional YAML file at
// ~/.config/ajedrez/config.yaml, and AJEDREZ_* environment variables, in
// increasing order of precedence.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config is the resolved configuration. The tuning fields are playing-strength
// choices, not rules; changing them changes how the engine plays, nothing
// more.
type Config struct {
	// BookPath is where the opening book JSON lives.
	BookPath string `mapstructure:"book-path"`

	// SearchDepth is the default iterative-deepening horizon in plies.
	SearchDepth int `mapstructure:"search-depth"`
	// Workers is the parallel search pool size. Zero means use every CPU.
	Workers int `mapstructure:"workers"`
	// ParallelThreshold is the remaining depth at or below which subtrees
	// run inline instead of fanning out.
	ParallelThreshold int `mapstructure:"parallel-threshold"`
	// TTExponent sizes the transposition table at 2^n entries.
	TTExponent int `mapstructure:"tt-exponent"`

	// DrawValue is how much the engine likes draws, 0.0 (hates them) to
	// 0.5 (neutral). Contempt in centipawns is (0.5 - DrawValue) * 100.
	DrawValue float64 `mapstructure:"draw-value"`
	// RepetitionPenalty multiplies contempt when a repeated position is
	// scored mid-search.
	RepetitionPenalty int `mapstructure:"repetition-penalty"`

	// Self-play training knobs.
	SelfplayGames   int    `mapstructure:"selfplay-games"`
	SelfplayWorkers int    `mapstructure:"selfplay-workers"`
	ArchivePath     string `mapstructure:"archive-path"`
	MaxGamePlies    int    `mapstructure:"max-game-plies"`
}

// ConfigDir is where ajedrez keeps its files by default.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "ajedrez")
}

func setDefaults(v *viper.Viper, dir string) {
	v.SetDefault("book-path", filepath.Join(dir, "opening_book.json"))
	v.SetDefault("search-depth", 6)
	v.SetDefault("workers", 0)
	v.SetDefault("parallel-threshold", 3)
	v.SetDefault("tt-exponent", 20)
	v.SetDefault("draw-value", 0.5)
	v.SetDefault("repetition-penalty", 10)
	v.SetDefault("selfplay-games", 100)
	v.SetDefault("selfplay-workers", 1)
	v.SetDefault("archive-path", filepath.Join(dir, "games.db"))
	v.SetDefault("max-game-plies", 200)
}

// Load resolves the configuration from the default config directory.
func Load() (*Config, error) {
	return load(ConfigDir())
}

// load reads from an explicit directory; tests point it at a temp dir. A
// missing config file is fine, a present but unreadable one is an error.
func load(dir string) (*Config, error) {
	v := viper.New()
	setDefaults(v, dir)

	v.SetEnvPrefix("AJEDREZ")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	} else {
		log.Debug().Str("file", v.ConfigFileUsed()).Msg("config-file-loaded")
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	return &c, nil
}
