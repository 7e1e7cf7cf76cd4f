package engine

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"lukechampine.com/frand"

	"github.com/domino14/ajedrez/chess"
	"github.com/domino14/ajedrez/eval"
)

const idleSleep = 50 * time.Microsecond

// parallelTask is one subtree handed to the scheduler: a position to solve
// at the given remaining depth, inside the window it was created with. When
// a sibling tightens the shared bound after creation, the task picks the
// tighter window up at dequeue time.
type parallelTask struct {
	pos   chess.Position
	depth int
	alpha int
	beta  int

	// rootIndex is the move's index in the root ordering, or -1 for
	// interior tasks. The root combiner scans results in root order so the
	// chosen move never depends on completion order.
	rootIndex int

	parentID uint64
	taskID   uint64

	resultCh chan<- taskResult

	// sharedBound carries the parent's best score so far: its alpha when
	// the parent maximizes, its beta when it minimizes. Nil for root tasks,
	// whose window is frozen at seed time.
	sharedBound  *atomic.Int64
	boundIsAlpha bool
}

type taskResult struct {
	rootIndex int
	score     int
	cancelled bool
}

type schedulerMetrics struct {
	tasksPushed   atomic.Uint64
	tasksPopped   atomic.Uint64
	steals        atomic.Uint64
	stealChunks   atomic.Uint64
	cutoffs       atomic.Uint64
	queueHighHits atomic.Uint64
	queueLenMax   atomic.Uint64
	idleYields    atomic.Uint64
}

func (m *schedulerMetrics) snapshot() SearchMetrics {
	return SearchMetrics{
		TasksPushed:   m.tasksPushed.Load(),
		TasksPopped:   m.tasksPopped.Load(),
		Steals:        m.steals.Load(),
		StealChunks:   m.stealChunks.Load(),
		Cutoffs:       m.cutoffs.Load(),
		QueueHighHits: m.queueHighHits.Load(),
		QueueLenMax:   m.queueLenMax.Load(),
		IdleYields:    m.idleYields.Load(),
	}
}

func (m *schedulerMetrics) noteQueueLen(n int) {
	for {
		cur := m.queueLenMax.Load()
		if uint64(n) <= cur || m.queueLenMax.CompareAndSwap(cur, uint64(n)) {
			return
		}
	}
}

// scheduler is the per-search work-stealing state. It lives for one
// parallel iteration and is not reused.
type scheduler struct {
	e    *Engine
	opts SearchOptions
	ctx  context.Context

	deques  []*taskDeque
	tasksWG sync.WaitGroup

	// cancelled records parent task IDs whose remaining children are moot
	// after a cutoff. Children check it at dequeue and answer with a
	// cancellation sentinel instead of searching.
	cancelled sync.Map
	taskIDs   atomic.Uint64

	met schedulerMetrics
}

func (s *scheduler) nextTaskID() uint64 {
	return s.taskIDs.Add(1)
}

func (s *scheduler) cancelChildren(taskID uint64) {
	s.cancelled.Store(taskID, struct{}{})
	s.met.cutoffs.Add(1)
}

func (s *scheduler) isCancelled(taskID uint64) bool {
	_, ok := s.cancelled.Load(taskID)
	return ok
}

func (s *scheduler) push(workerID int, t parallelTask) {
	n := s.deques[workerID].PushTop(t)
	s.met.tasksPushed.Add(1)
	s.met.noteQueueLen(n)
}

// clampWindow turns a fail-soft score into a fail-hard one. Task results
// cross worker boundaries clamped to the task's window, so a parent combines
// the same values no matter how far outside the window a subtree wandered.
func clampWindow(score, alpha, beta int) int {
	if score < alpha {
		return alpha
	}
	if score > beta {
		return beta
	}
	return score
}

// parallelSearch runs one iteration at maxDepth across opts.MaxWorkers
// workers. The first root move is searched inline on a full window to seed a
// bound (the young-brothers rule), the rest become tasks seeded round-robin
// across the deques. Returns the iteration's best move and score, and
// whether the iteration ran to completion; a timed-out iteration drains its
// tasks as cancellations and reports complete=false so the caller keeps the
// previous depth's result.
func (e *Engine) parallelSearch(ctx context.Context, pos chess.Position, maxDepth int, opts SearchOptions) (chess.Move, int, SearchMetrics, bool) {
	moves := e.heur.OrderMovesWithHeuristics(pos, pos.GenerateLegalMoves(), 0, chess.NullMove)
	if len(moves) == 0 {
		return chess.NullMove, e.evaluate(pos), SearchMetrics{}, true
	}

	maximizing := pos.SideToMove() == chess.White

	first := pos.Copy()
	first.MakeMove(moves[0])
	firstScore, _ := e.sequentialAlphaBeta(first, maxDepth-1, 0, -Infinity, Infinity, true)

	bestMove, bestScore := moves[0], firstScore
	if len(moves) == 1 {
		return bestMove, bestScore, SearchMetrics{}, ctx.Err() == nil
	}

	innerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := &scheduler{
		e:      e,
		opts:   opts,
		ctx:    innerCtx,
		deques: make([]*taskDeque, opts.MaxWorkers),
	}
	for i := range s.deques {
		s.deques[i] = newTaskDeque()
	}

	rootResultCh := make(chan taskResult, len(moves)-1)
	for i, m := range moves[1:] {
		childPos := pos.Copy()
		childPos.MakeMove(m)
		alpha, beta := bestScore, Infinity
		if !maximizing {
			alpha, beta = -Infinity, bestScore
		}
		s.tasksWG.Add(1)
		s.push(i%opts.MaxWorkers, parallelTask{
			pos:       childPos,
			depth:     maxDepth - 1,
			alpha:     alpha,
			beta:      beta,
			rootIndex: i + 1,
			taskID:    s.nextTaskID(),
			resultCh:  rootResultCh,
		})
	}

	log.Debug().Int("depth", maxDepth).
		Int("workers", opts.MaxWorkers).
		Int("root-moves", len(moves)).
		Msg("parallel-iteration-start")

	if opts.MetricsHook != nil && opts.MetricsInterval > 0 {
		go s.reportMetrics(time.Now())
	}

	var g errgroup.Group
	for i := 0; i < opts.MaxWorkers; i++ {
		id := i
		g.Go(func() error {
			s.worker(id)
			return nil
		})
	}

	// Once every task has been answered the workers have nothing left to
	// do; cancelling the inner context sends them home.
	go func() {
		s.tasksWG.Wait()
		cancel()
	}()
	_ = g.Wait()
	close(rootResultCh)

	scores := make([]int, len(moves))
	got := make([]bool, len(moves))
	for r := range rootResultCh {
		if r.cancelled {
			continue
		}
		scores[r.rootIndex] = r.score
		got[r.rootIndex] = true
	}
	for i := 1; i < len(moves); i++ {
		if !got[i] {
			continue
		}
		if maximizing {
			if scores[i] > bestScore {
				bestScore = scores[i]
				bestMove = moves[i]
			}
		} else if scores[i] < bestScore {
			bestScore = scores[i]
			bestMove = moves[i]
		}
	}

	met := s.met.snapshot()
	complete := ctx.Err() == nil
	log.Debug().Int("depth", maxDepth).
		Uint64("tasks", met.TasksPushed).
		Uint64("steals", met.Steals).
		Uint64("cutoffs", met.Cutoffs).
		Bool("complete", complete).
		Msg("parallel-iteration-done")
	return bestMove, bestScore, met, complete
}

// worker pops its own deque, steals when that runs dry, and naps when the
// whole pool looks idle. On shutdown it drains its own deque so every
// outstanding task is answered and the waitgroup settles.
func (s *scheduler) worker(id int) {
	for {
		select {
		case <-s.ctx.Done():
			s.drainOwn(id)
			return
		default:
		}

		if t, ok := s.deques[id].PopTop(); ok {
			s.met.tasksPopped.Add(1)
			s.processTask(t, id)
			continue
		}
		if s.trySteal(id) {
			continue
		}

		select {
		case <-s.ctx.Done():
			s.drainOwn(id)
			return
		default:
			s.met.idleYields.Add(1)
			time.Sleep(idleSleep)
		}
	}
}

func (s *scheduler) drainOwn(id int) {
	for {
		t, ok := s.deques[id].PopTop()
		if !ok {
			return
		}
		t.resultCh <- taskResult{rootIndex: t.rootIndex, cancelled: true}
		s.tasksWG.Done()
	}
}

// trySteal moves work from another deque into this worker's own. In
// deterministic mode victims are scanned in fixed order; otherwise they are
// picked at random, which spreads contention.
func (s *scheduler) trySteal(id int) bool {
	if s.opts.Deterministic {
		for v := range s.deques {
			if v != id && s.stealFrom(v, id) {
				return true
			}
		}
		return false
	}
	for tries := len(s.deques) - 1; tries > 0; tries-- {
		v := frand.Intn(len(s.deques))
		if v != id && s.stealFrom(v, id) {
			return true
		}
	}
	return false
}

func (s *scheduler) stealFrom(victim, id int) bool {
	if s.opts.ChunkStealSize > 1 {
		chunk, ok := s.deques[victim].StealChunkBottom(s.opts.ChunkStealSize, s.opts.StealDepthMin)
		if !ok {
			return false
		}
		s.met.steals.Add(1)
		if len(chunk) > 1 {
			s.met.stealChunks.Add(1)
		}
		for _, t := range chunk {
			n := s.deques[id].PushTop(t)
			s.met.noteQueueLen(n)
		}
		return true
	}
	t, ok := s.deques[victim].StealBottom(s.opts.StealDepthMin)
	if !ok {
		return false
	}
	s.met.steals.Add(1)
	n := s.deques[id].PushTop(t)
	s.met.noteQueueLen(n)
	return true
}

// helpOnce makes progress while a parent waits on its children: run one of
// our own tasks, else steal one, else yield the processor.
func (s *scheduler) helpOnce(id int) {
	if t, ok := s.deques[id].PopTop(); ok {
		s.met.tasksPopped.Add(1)
		s.processTask(t, id)
		return
	}
	if s.trySteal(id) {
		return
	}
	runtime.Gosched()
}

// processTask answers one task: a cancellation sentinel when the search is
// shutting down or the parent already cut off, otherwise the subtree's score
// clamped to the task window.
func (s *scheduler) processTask(t parallelTask, id int) {
	if s.ctx.Err() != nil || (t.parentID != 0 && s.isCancelled(t.parentID)) {
		t.resultCh <- taskResult{rootIndex: t.rootIndex, cancelled: true}
		s.tasksWG.Done()
		return
	}

	if t.sharedBound != nil && !s.opts.Deterministic {
		b := int(t.sharedBound.Load())
		if t.boundIsAlpha {
			if b > t.alpha {
				t.alpha = b
			}
		} else if b < t.beta {
			t.beta = b
		}
	}

	var score int
	if t.depth > s.opts.DepthParallelThreshold {
		score = s.processNode(t, id)
	} else {
		raw, _ := s.e.sequentialAlphaBeta(t.pos, t.depth, 0, t.alpha, t.beta, true)
		score = clampWindow(raw, t.alpha, t.beta)
	}
	t.resultCh <- taskResult{rootIndex: t.rootIndex, score: score}
	s.tasksWG.Done()
}

// processNode solves one interior node by searching the first child on this
// worker, then fanning the rest out as tasks and combining their results as
// they land. The node maximizes or minimizes by its side to move; scores
// stay White-perspective throughout, and the return is clamped to the
// node's window.
func (s *scheduler) processNode(t parallelTask, id int) int {
	s.e.nodes.Add(1)
	side := t.pos.SideToMove()
	maximizing := side == chess.White

	if t.pos.IsRepetition() {
		return clampWindow(s.e.repetitionScore(side), t.alpha, t.beta)
	}
	if t.pos.IsCheckmate() || t.pos.IsDraw() {
		return clampWindow(s.e.evaluate(t.pos), t.alpha, t.beta)
	}

	moves := s.e.heur.OrderMovesWithHeuristics(t.pos, t.pos.GenerateLegalMoves(), 0, chess.NullMove)
	if len(moves) == 0 {
		if t.pos.InCheck() {
			mate := eval.MateValue + t.depth
			if maximizing {
				mate = -mate
			}
			return clampWindow(mate, t.alpha, t.beta)
		}
		return clampWindow(0, t.alpha, t.beta)
	}

	// Young brothers wait: the first child runs before any sibling is
	// spawned, so the fan-out starts with a real bound instead of the
	// parent's loose window.
	first := t.pos.Copy()
	first.MakeMove(moves[0])
	var bestScore int
	if t.depth-1 > s.opts.DepthParallelThreshold {
		bestScore = s.processNode(parallelTask{
			pos:      first,
			depth:    t.depth - 1,
			alpha:    t.alpha,
			beta:     t.beta,
			parentID: t.taskID,
			taskID:   s.nextTaskID(),
		}, id)
	} else {
		raw, _ := s.e.sequentialAlphaBeta(first, t.depth-1, 0, t.alpha, t.beta, true)
		bestScore = clampWindow(raw, t.alpha, t.beta)
	}

	alpha, beta := t.alpha, t.beta
	if maximizing {
		if bestScore >= beta {
			return beta
		}
		alpha = max(alpha, bestScore)
	} else {
		if bestScore <= alpha {
			return alpha
		}
		beta = min(beta, bestScore)
	}
	if len(moves) == 1 {
		return clampWindow(bestScore, t.alpha, t.beta)
	}

	shared := &atomic.Int64{}
	if maximizing {
		shared.Store(int64(alpha))
	} else {
		shared.Store(int64(beta))
	}

	childCount := len(moves) - 1
	childCh := make(chan taskResult, childCount)
	pressured := false
	for _, m := range moves[1:] {
		childPos := t.pos.Copy()
		childPos.MakeMove(m)
		child := parallelTask{
			pos:          childPos,
			depth:        t.depth - 1,
			alpha:        alpha,
			beta:         beta,
			rootIndex:    -1,
			parentID:     t.taskID,
			taskID:       s.nextTaskID(),
			resultCh:     childCh,
			sharedBound:  shared,
			boundIsAlpha: maximizing,
		}
		s.tasksWG.Add(1)

		qlen := s.deques[id].Len()
		if pressured {
			if qlen < s.opts.QueuePressureLow {
				pressured = false
			}
		} else if qlen >= s.opts.QueuePressureHigh {
			pressured = true
			s.met.queueHighHits.Add(1)
		}
		if pressured {
			s.processTask(child, id)
		} else {
			s.push(id, child)
		}
	}

	// Wait for the brood, helping with queued work in the meantime. After a
	// cutoff the remaining children still get drained; they answer fast as
	// cancellation sentinels.
	received := 0
	cutoff := false
	for received < childCount {
		select {
		case r := <-childCh:
			received++
			if r.cancelled || cutoff {
				continue
			}
			if maximizing {
				if r.score > bestScore {
					bestScore = r.score
				}
				if bestScore >= t.beta {
					s.cancelChildren(t.taskID)
					cutoff = true
					continue
				}
				if bestScore > alpha {
					alpha = bestScore
					shared.Store(int64(alpha))
				}
			} else {
				if r.score < bestScore {
					bestScore = r.score
				}
				if bestScore <= t.alpha {
					s.cancelChildren(t.taskID)
					cutoff = true
					continue
				}
				if bestScore < beta {
					beta = bestScore
					shared.Store(int64(beta))
				}
			}
		default:
			s.helpOnce(id)
		}
	}
	return clampWindow(bestScore, t.alpha, t.beta)
}

func (s *scheduler) reportMetrics(start time.Time) {
	ticker := time.NewTicker(s.opts.MetricsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			m := s.met.snapshot()
			m.NodesSearched = s.e.nodes.Load()
			m.ElapsedMs = time.Since(start).Milliseconds()
			s.opts.MetricsHook(m)
		}
	}
}
