// Command ajedrez is the chess engine CLI: position analysis, self-play
// training runs, and opening-book maintenance.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/domino14/ajedrez/board"
	"github.com/domino14/ajedrez/book"
	"github.com/domino14/ajedrez/config"
	"github.com/domino14/ajedrez/engine"
	"github.com/domino14/ajedrez/selfplay"
)

func usage(w io.Writer) {
	io.WriteString(w, "usage: ajedrez <command> [flags]\n\n")
	io.WriteString(w, "commands:\n")
	io.WriteString(w, "  analyze   - search a position given as FEN\n")
	io.WriteString(w, "  selfplay  - play training games and learn openings\n")
	io.WriteString(w, "  fetchbook - crawl the Lichess masters explorer into a book\n")
}

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if os.Getenv("AJEDREZ_DEBUG") != "" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "analyze":
		err = runAnalyze(ctx, cfg, os.Args[2:])
	case "selfplay":
		err = runSelfplay(ctx, cfg, os.Args[2:])
	case "fetchbook":
		err = runFetchBook(ctx, cfg, os.Args[2:])
	case "help", "-h", "--help":
		usage(os.Stdout)
		return
	default:
		usage(os.Stderr)
		os.Exit(2)
	}
	if err != nil {
		log.Fatal().Err(err).Str("command", os.Args[1]).Msg("command failed")
	}
}

func runAnalyze(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	fen := fs.String("fen", board.StartFEN, "position to analyze")
	depth := fs.Int("depth", cfg.SearchDepth, "search depth in plies")
	workers := fs.Int("workers", cfg.Workers, "parallel workers; 0 means all CPUs")
	timeLimit := fs.Duration("time", 0, "time limit; 0 means none")
	deterministic := fs.Bool("deterministic", false, "reproducible parallel search")
	useBook := fs.Bool("book", true, "consult the opening book")
	ply := fs.Int("ply", 0, "half-moves already played, for book phase")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pos, err := board.FromFEN(*fen)
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}

	eng := engine.New(engine.NewTranspositionTable(cfg.TTExponent))
	eng.SetContempt(cfg.DrawValue)
	eng.SetRepetitionPenalty(cfg.RepetitionPenalty)
	if *useBook {
		eng.SetBook(book.Load(cfg.BookPath))
	}

	opts := engine.SearchOptions{
		MaxDepth:               *depth,
		MaxWorkers:             *workers,
		DepthParallelThreshold: cfg.ParallelThreshold,
		TimeLimit:              *timeLimit,
		Deterministic:          *deterministic,
	}

	start := time.Now()
	var result engine.SearchResult
	if *useBook {
		result = eng.SearchWithBook(ctx, pos, *ply, opts)
	} else {
		result = eng.Search(ctx, pos, opts)
	}

	if result.BestMove.IsNull() {
		fmt.Println("no legal moves: game over")
		return nil
	}
	fmt.Printf("bestmove %s  score %d cp  depth %d  nodes %d  time %s\n",
		result.BestMove, result.Score, result.Depth,
		result.Metrics.NodesSearched, time.Since(start).Round(time.Millisecond))
	if result.Metrics.TasksPushed > 0 {
		fmt.Printf("tasks %d  steals %d  cutoffs %d\n",
			result.Metrics.TasksPushed, result.Metrics.Steals, result.Metrics.Cutoffs)
	}
	return nil
}

func runSelfplay(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("selfplay", flag.ExitOnError)
	games := fs.Int("games", cfg.SelfplayGames, "number of training games")
	workers := fs.Int("workers", cfg.SelfplayWorkers, "concurrent games")
	depth := fs.Int("depth", 4, "search depth per move")
	searchWorkers := fs.Int("search-workers", 2, "parallel workers per search")
	if err := fs.Parse(args); err != nil {
		return err
	}

	bk := book.Load(cfg.BookPath)
	archive, err := selfplay.OpenArchive(cfg.ArchivePath)
	if err != nil {
		return err
	}
	defer archive.Close()

	opts := selfplay.DefaultOptions()
	opts.Games = *games
	opts.Workers = *workers
	opts.SearchDepth = *depth
	opts.SearchWorkers = *searchWorkers
	opts.MaxGamePlies = cfg.MaxGamePlies
	opts.TTExponent = cfg.TTExponent

	log.Info().Int("games", opts.Games).
		Int("workers", opts.Workers).
		Int("depth", opts.SearchDepth).
		Msg("starting training run")

	summary, err := selfplay.NewTrainer(bk, archive, opts).Run(ctx)
	if err != nil {
		return err
	}
	if err := summary.WriteReport(os.Stdout); err != nil {
		return err
	}

	recorded, skipped := bk.LearningStats()
	log.Info().Int64("samples-recorded", recorded).
		Int64("samples-skipped", skipped).
		Msg("training run complete")
	return bk.Save()
}

func runFetchBook(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("fetchbook", flag.ExitOnError)
	depth := fs.Int("depth", 10, "crawl depth in plies")
	branch := fs.Int("branch", 4, "top moves to follow per position")
	minGames := fs.Int("min-games", 1000, "drop positions with fewer master games")
	out := fs.String("out", cfg.BookPath, "output path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	bk, err := book.FetchMasters(ctx, *out, book.FetchOptions{
		MaxDepth:  *depth,
		MaxBranch: *branch,
		MinGames:  *minGames,
	})
	if err != nil {
		return err
	}
	log.Info().Int("positions", len(bk.Positions)).Str("path", *out).Msg("book fetched")
	return nil
}
