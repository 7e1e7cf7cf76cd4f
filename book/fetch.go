package book

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"

	"github.com/domino14/ajedrez/board"
)

const explorerURL = "https://explorer.lichess.ovh/masters"

// Lichess rate-limits unauthenticated clients to about one request per
// second.
const fetchPause = 1100 * time.Millisecond

// FetchOptions controls the opening crawl.
type FetchOptions struct {
	// MaxDepth is how many plies deep to crawl from the starting position.
	MaxDepth int
	// MaxBranch is the number of top moves to keep and follow per position.
	MaxBranch int
	// MinGames drops positions and moves below this master-game count.
	MinGames int
}

func DefaultFetchOptions() FetchOptions {
	return FetchOptions{MaxDepth: 10, MaxBranch: 4, MinGames: 1000}
}

type explorerResponse struct {
	White   int              `json:"white"`
	Draws   int              `json:"draws"`
	Black   int              `json:"black"`
	Moves   []explorerMove   `json:"moves"`
	Opening *explorerOpening `json:"opening"`
}

type explorerMove struct {
	UCI   string `json:"uci"`
	SAN   string `json:"san"`
	White int    `json:"white"`
	Draws int    `json:"draws"`
	Black int    `json:"black"`
}

type explorerOpening struct {
	ECO  string `json:"eco"`
	Name string `json:"name"`
}

type fetcher struct {
	client  *http.Client
	opts    FetchOptions
	book    *Book
	visited map[string]bool
}

// FetchMasters crawls the Lichess masters opening explorer breadth-first
// from the starting position, building a fresh book and saving it to path.
// The crawl respects the public API's rate limit, so a full run takes
// minutes. The data is CC0; provenance is recorded in the book header.
func FetchMasters(ctx context.Context, path string, opts FetchOptions) (*Book, error) {
	if opts.MaxDepth <= 0 || opts.MaxBranch <= 0 {
		opts = DefaultFetchOptions()
	}

	bk := New(path)
	bk.Source = "Lichess Masters Database"
	bk.SourceURL = "https://lichess.org"
	bk.License = "CC0 Public Domain"
	bk.Generated = time.Now().Format("2006-01-02")

	f := &fetcher{
		client:  &http.Client{Timeout: 15 * time.Second},
		opts:    opts,
		book:    bk,
		visited: make(map[string]bool),
	}

	log.Info().Int("max-depth", opts.MaxDepth).
		Int("max-branch", opts.MaxBranch).
		Int("min-games", opts.MinGames).
		Msg("fetching opening book")

	if err := f.crawl(ctx, board.StartingPosition(), 0); err != nil {
		return nil, err
	}

	log.Info().Int("positions", len(bk.Positions)).Msg("fetch complete")
	if err := bk.Save(); err != nil {
		return nil, err
	}
	bk.buildHashIndex()
	return bk, nil
}

func (f *fetcher) crawl(ctx context.Context, bd *board.Board, depth int) error {
	if depth >= f.opts.MaxDepth {
		return nil
	}
	fen := normalizeFEN(bd.ToFEN())
	if f.visited[fen] {
		return nil
	}
	f.visited[fen] = true

	resp, err := f.fetch(ctx, fen)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Str("fen", fen).Msg("explorer fetch failed, skipping")
		return nil
	}

	if resp.White+resp.Draws+resp.Black < f.opts.MinGames {
		return nil
	}

	entry := &Entry{FEN: fen}
	if resp.Opening != nil {
		entry.ECO = resp.Opening.ECO
		entry.Name = resp.Opening.Name
	}
	for _, m := range resp.Moves {
		games := m.White + m.Draws + m.Black
		if games < f.opts.MinGames {
			continue
		}
		entry.Moves = append(entry.Moves, MoveStats{
			UCI:         m.UCI,
			SAN:         m.SAN,
			MasterGames: games,
			MasterWhite: m.White,
			MasterDraws: m.Draws,
			MasterBlack: m.Black,
		})
		if len(entry.Moves) >= f.opts.MaxBranch {
			break
		}
	}
	if len(entry.Moves) == 0 {
		return nil
	}
	f.book.Positions[fen] = entry

	log.Info().Int("depth", depth).
		Str("opening", entry.Name).
		Int("moves", len(entry.Moves)).
		Int("positions", len(f.book.Positions)).
		Msg("crawled position")

	for _, bm := range entry.Moves {
		mv, ok := bd.FindMove(bm.UCI)
		if !ok {
			log.Warn().Str("uci", bm.UCI).Str("fen", fen).Msg("explorer move not legal here")
			continue
		}
		bd.MakeMove(mv)
		err := f.crawl(ctx, bd, depth+1)
		bd.UnmakeMove(mv)
		if err != nil {
			return err
		}
	}
	return nil
}

func (f *fetcher) fetch(ctx context.Context, fen string) (*explorerResponse, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(fetchPause):
	}

	apiURL := explorerURL + "?fen=" + url.QueryEscape(fen)
	var result explorerResponse
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			resp, err := f.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				err := fmt.Errorf("explorer status %d", resp.StatusCode)
				if resp.StatusCode == http.StatusTooManyRequests {
					return err
				}
				return retry.Unrecoverable(err)
			}
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			return json.Unmarshal(body, &result)
		},
		retry.Attempts(4),
		retry.Context(ctx),
		retry.DelayType(func(n uint, err error, config *retry.Config) time.Duration {
			log.Warn().Err(err).Uint("attempt", n).Msg("explorer-retrying")
			return retry.BackOffDelay(n, err, config)
		}),
	)
	if err != nil {
		return nil, err
	}
	return &result, nil
}
