package selfplay

import (
	"fmt"
	"io"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"

	"github.com/domino14/ajedrez/book"
)

// RunSummary aggregates one training run.
type RunSummary struct {
	Games      int
	WhiteWins  int
	BlackWins  int
	Draws      int
	Unfinished int

	MeanPlies   float64
	StddevPlies float64

	plies []float64
}

// Summarize computes the run summary from the played games.
func Summarize(outcomes []GameOutcome) *RunSummary {
	s := &RunSummary{Games: len(outcomes)}
	if len(outcomes) == 0 {
		return s
	}

	s.WhiteWins = lo.CountBy(outcomes, func(o GameOutcome) bool { return o.Result == book.ResultWhiteWins })
	s.BlackWins = lo.CountBy(outcomes, func(o GameOutcome) bool { return o.Result == book.ResultBlackWins })
	s.Draws = lo.CountBy(outcomes, func(o GameOutcome) bool { return o.Result == book.ResultDraw })
	s.Unfinished = s.Games - s.WhiteWins - s.BlackWins - s.Draws

	s.plies = lo.Map(outcomes, func(o GameOutcome, _ int) float64 { return float64(len(o.Moves)) })
	s.MeanPlies = stat.Mean(s.plies, nil)
	s.StddevPlies = stat.StdDev(s.plies, nil)
	return s
}

// WriteReport renders the summary, including a game-length histogram, to w.
func (s *RunSummary) WriteReport(w io.Writer) error {
	fmt.Fprintf(w, "games: %d  white: %d  black: %d  draws: %d  unfinished: %d\n",
		s.Games, s.WhiteWins, s.BlackWins, s.Draws, s.Unfinished)
	fmt.Fprintf(w, "game length (plies): mean %.1f, stddev %.1f\n", s.MeanPlies, s.StddevPlies)
	if len(s.plies) < 2 {
		return nil
	}
	hist := histogram.Hist(10, s.plies)
	return histogram.Fprint(w, hist, histogram.Linear(40))
}
