// Package selfplay runs engine-vs-engine training games. Each finished game
// feeds the opening book's learning step and lands in a SQLite archive; a run
// ends with summary statistics over every game played.
package selfplay

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/domino14/ajedrez/board"
	"github.com/domino14/ajedrez/book"
	"github.com/domino14/ajedrez/chess"
	"github.com/domino14/ajedrez/engine"
)

// Options controls one training run.
type Options struct {
	// Games is how many games to play.
	Games int
	// Workers is how many games run concurrently. Each worker owns its own
	// engine and transposition table; only the book is shared.
	Workers int

	// SearchDepth and SearchWorkers configure each move's search.
	SearchDepth   int
	SearchWorkers int

	// MaxGamePlies stops runaway games; a capped game counts as unfinished
	// and teaches the book nothing.
	MaxGamePlies int

	// Per-side draw valuations, 0.0 (hates draws) to 0.5 (neutral). Giving
	// the sides different values keeps training games from petering out
	// into agreed shuffles.
	WhiteDrawValue float64
	BlackDrawValue float64

	// TTExponent sizes each worker's transposition table at 2^n entries.
	TTExponent int
}

// DefaultOptions returns sensible training defaults.
func DefaultOptions() Options {
	return Options{
		Games:          100,
		Workers:        1,
		SearchDepth:    4,
		SearchWorkers:  2,
		MaxGamePlies:   200,
		WhiteDrawValue: 0.15,
		BlackDrawValue: 0.35,
		TTExponent:     20,
	}
}

// GameOutcome is one completed game.
type GameOutcome struct {
	Result     book.GameResult
	Moves      []string
	FinalScore int
}

// Trainer plays training games and feeds the results into the book and the
// archive. The archive may be nil for runs that only learn.
type Trainer struct {
	book    *book.Book
	archive *Archive
	opts    Options
}

func NewTrainer(bk *book.Book, archive *Archive, opts Options) *Trainer {
	if opts.Games <= 0 {
		opts.Games = 1
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.MaxGamePlies <= 0 {
		opts.MaxGamePlies = 200
	}
	if opts.TTExponent <= 0 {
		opts.TTExponent = 20
	}
	return &Trainer{book: bk, archive: archive, opts: opts}
}

// Run plays the configured number of games and returns the run summary.
// Cancelling the context stops the run after the in-flight games finish;
// whatever completed is still summarized.
func (t *Trainer) Run(ctx context.Context) (*RunSummary, error) {
	if t.book != nil {
		t.book.SetTrainingMode(true)
		defer t.book.SetTrainingMode(false)
	}

	jobs := make(chan int, t.opts.Games)
	outcomes := make(chan GameOutcome, t.opts.Games)

	for i := 0; i < t.opts.Games; i++ {
		jobs <- i
	}
	close(jobs)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < t.opts.Workers; w++ {
		g.Go(func() error {
			eng := t.newEngine()
			for gameNum := range jobs {
				select {
				case <-gctx.Done():
					return nil
				default:
				}
				outcome, err := t.playGame(gctx, eng)
				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return nil
					}
					return err
				}
				log.Info().Int("game", gameNum+1).
					Str("result", outcome.Result.String()).
					Int("plies", len(outcome.Moves)).
					Msg("training-game-done")
				outcomes <- outcome
				eng.ResetForNewGame()
			}
			return nil
		})
	}

	err := g.Wait()
	close(outcomes)

	var all []GameOutcome
	for o := range outcomes {
		all = append(all, o)
		t.absorb(o)
	}
	if err != nil {
		return Summarize(all), err
	}
	return Summarize(all), nil
}

func (t *Trainer) newEngine() *engine.Engine {
	eng := engine.New(engine.NewTranspositionTable(t.opts.TTExponent))
	eng.SetBook(t.book)
	eng.SetTrainingMode(true)
	eng.SetAsymmetricContempt(t.opts.WhiteDrawValue, t.opts.BlackDrawValue)
	return eng
}

// playGame plays one full game. The move and FEN histories are kept in step:
// fens[i] is the position history[i] was played from, which is exactly what
// LearnFromGame wants.
func (t *Trainer) playGame(ctx context.Context, eng *engine.Engine) (GameOutcome, error) {
	pos := board.StartingPosition()
	var history []chess.Move
	var fens []string
	var lastScore int

	searchOpts := engine.SearchOptions{
		MaxDepth:   t.opts.SearchDepth,
		MaxWorkers: t.opts.SearchWorkers,
	}

	result := book.ResultUnknown
	for ply := 0; ply < t.opts.MaxGamePlies; ply++ {
		if err := ctx.Err(); err != nil {
			return GameOutcome{}, err
		}

		if pos.IsCheckmate() {
			if pos.SideToMove() == chess.White {
				result = book.ResultBlackWins
			} else {
				result = book.ResultWhiteWins
			}
			break
		}
		// The board's IsDraw covers stalemate and the fifty-move rule;
		// threefold repetition is the game loop's to call, since the search
		// scores repetitions with contempt instead of ending on them.
		if pos.IsDraw() || pos.RepetitionCount() >= 3 {
			result = book.ResultDraw
			break
		}

		fens = append(fens, pos.ToFEN())
		sr := eng.SearchWithBook(ctx, pos, ply, searchOpts)
		if sr.BestMove.IsNull() {
			fens = fens[:len(fens)-1]
			break
		}
		pos.MakeMove(sr.BestMove)
		history = append(history, sr.BestMove)
		lastScore = sr.Score
	}

	outcome := GameOutcome{Result: result, FinalScore: lastScore}
	outcome.Moves = make([]string, len(history))
	for i, m := range history {
		outcome.Moves[i] = m.String()
	}

	if result != book.ResultUnknown && t.book != nil && len(history) > 0 {
		t.book.LearnFromGame(history, fens, result)
	}
	return outcome, nil
}

// absorb archives one outcome. Learning already happened in playGame, on the
// worker, so the book is current even if archiving fails.
func (t *Trainer) absorb(o GameOutcome) {
	if t.archive == nil || len(o.Moves) == 0 {
		return
	}
	fresh, err := t.archive.Record(o)
	if err != nil {
		log.Error().Err(err).Msg("archive-record-failed")
		return
	}
	if !fresh {
		log.Debug().Int("plies", len(o.Moves)).Msg("duplicate-game-skipped")
	}
}
