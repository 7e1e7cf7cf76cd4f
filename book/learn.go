package book

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/domino14/ajedrez/board"
	"github.com/domino14/ajedrez/chess"
)

// Adaptive sampling thresholds. Every move's first games are recorded;
// once a move's win rate has clearly stabilized there is nothing left to
// learn from it, and a hard cap bounds the sample outright.
const (
	learnMaxPlies      = 30
	learnMinSamples    = 5
	learnStableSamples = 10
	learnHardCap       = 20
)

// LearnFromGame folds a finished game into the book. Both sides learn:
// each of the first learnMaxPlies moves is credited as a win or loss for
// the side that played it, and every reached position's outcome aggregate
// is updated. fens[i] is the position before history[i] was played. The
// book saves itself asynchronously afterwards.
func (b *Book) LearnFromGame(history []chess.Move, fens []string, result GameResult) {
	if b == nil || len(history) == 0 || result == ResultUnknown {
		return
	}

	b.mu.Lock()

	maxPly := min(len(history), learnMaxPlies, len(fens))
	for i := 0; i < maxPly; i++ {
		fen := normalizeFEN(fens[i])
		uci := history[i].String()

		entry := b.getOrCreateLocked(fen)
		var found bool
		for j := range entry.Moves {
			if entry.Moves[j].UCI == uci {
				b.updateMoveStats(&entry.Moves[j], result, i)
				found = true
				break
			}
		}
		if !found {
			ms := MoveStats{UCI: uci}
			b.updateMoveStats(&ms, result, i)
			entry.Moves = append(entry.Moves, ms)
		}

		if i+1 < len(fens) {
			reached := b.getOrCreateLocked(normalizeFEN(fens[i+1]))
			switch result {
			case ResultWhiteWins:
				reached.PosWhiteWins++
			case ResultBlackWins:
				reached.PosBlackWins++
			case ResultDraw:
				reached.PosDraws++
			}
		}
	}

	b.recordGameLocked(history, result)
	b.mu.Unlock()

	log.Debug().Str("result", result.String()).
		Int("plies-learned", maxPly).
		Msg("book-learned-game")

	go func() {
		if err := b.Save(); err != nil {
			log.Warn().Err(err).Msg("book save failed")
		}
	}()
}

// getOrCreateLocked returns the entry for a normalized FEN, creating and
// hash-indexing it if the position is new. Caller holds the write lock.
func (b *Book) getOrCreateLocked(fen string) *Entry {
	if e, ok := b.Positions[fen]; ok {
		return e
	}
	e := &Entry{FEN: fen}
	b.Positions[fen] = e
	if bd, err := board.FromFEN(fen); err == nil {
		b.hashIndex[bd.ZobristHash()] = fen
	}
	return e
}

// shouldRecord implements the adaptive sample policy.
func (b *Book) shouldRecord(ms *MoveStats) bool {
	if ms.OurGames < learnMinSamples {
		return true
	}
	if ms.OurGames >= learnHardCap {
		return false
	}
	if ms.OurGames >= learnStableSamples {
		winRate := float64(ms.OurWins) / float64(ms.OurGames)
		if winRate > 0.60 || winRate < 0.40 {
			return false
		}
	}
	return true
}

func (b *Book) updateMoveStats(ms *MoveStats, result GameResult, ply int) {
	if !b.shouldRecord(ms) {
		if ms.OurGames >= learnHardCap {
			b.skippedCap.Add(1)
		} else {
			b.skippedStable.Add(1)
		}
		return
	}
	b.recorded.Add(1)
	ms.OurGames++

	// Even plies are White's moves. Wins and losses are from the mover's
	// point of view.
	whiteMoved := ply%2 == 0
	switch result {
	case ResultWhiteWins:
		if whiteMoved {
			ms.OurWins++
		} else {
			ms.OurLosses++
		}
	case ResultBlackWins:
		if whiteMoved {
			ms.OurLosses++
		} else {
			ms.OurWins++
		}
	case ResultDraw:
		ms.OurDraws++
	}
}

func (b *Book) recordGameLocked(history []chess.Move, result GameResult) {
	moves := make([]string, len(history))
	for i, m := range history {
		moves[i] = m.String()
	}
	b.Games = append(b.Games, GameRecord{
		Date:      time.Now().Format(time.RFC3339),
		Moves:     moves,
		Result:    result.String(),
		MoveCount: len(history),
	})
}

// LearningStats returns how many move samples were recorded and skipped
// since the last reset.
func (b *Book) LearningStats() (recorded, skipped int64) {
	return b.recorded.Load(), b.skippedCap.Load() + b.skippedStable.Load()
}

// ResetLearningStats clears the sampling counters.
func (b *Book) ResetLearningStats() {
	b.recorded.Store(0)
	b.skippedCap.Store(0)
	b.skippedStable.Store(0)
}
