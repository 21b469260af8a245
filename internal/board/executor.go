package board

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/zkorenberg/tboard/internal/logger"
	"github.com/zkorenberg/tboard/internal/metrics"
)

// execRole distinguishes the primary executor (which also steals from
// secondaries) from a secondary executor (spec.md §3 exec_t, §4.1).
type execRole int

const (
	rolePrimary execRole = iota
	roleSecondary
)

// executor is one scheduling thread: it repeatedly dequeues a task,
// resumes its coroutine, and dispatches on how it suspended
// (spec.md §4.3).
type executor struct {
	board *Board
	role  execRole
	index int // -1 for primary
	queue *readyQueue
	label string
	log   zerolog.Logger
}

func newExecutor(b *Board, role execRole, index int, queue *readyQueue) *executor {
	label := "primary"
	if role == roleSecondary {
		label = fmt.Sprintf("secondary-%d", index)
	}
	return &executor{board: b, role: role, index: index, queue: queue, label: label, log: logger.WithExecutor(label)}
}

// run is the executor's main loop (spec.md §4.3 step 1: "each executor
// repeatedly"). It returns once its queue is closed and drained.
func (e *executor) run(ctx context.Context) {
	e.log.Info().Msg("executor started")
	for {
		t := e.dequeue()
		if t == nil {
			e.log.Info().Msg("executor exiting")
			return
		}
		e.runOnce(ctx, t)
	}
}

// dequeue picks the next runnable task for this executor, blocking until
// one is available or the board is shutting down (spec.md §4.1, §4.3).
func (e *executor) dequeue() *Task {
	if e.role == rolePrimary {
		return e.dequeuePrimary()
	}
	return e.dequeueSecondary()
}

// dequeuePrimary pops from the primary queue; if empty, it attempts to
// steal from every secondary in ascending index order before waiting,
// matching spec.md §5's lock-ordering rule for stealing.
func (e *executor) dequeuePrimary() *Task {
	b := e.board
	for {
		b.primary.mu.Lock()
		if t := b.primary.popHeadLocked(); t != nil {
			b.primary.mu.Unlock()
			return t
		}
		closed := b.primary.closed
		b.primary.mu.Unlock()

		if t := e.steal(); t != nil {
			return t
		}
		if closed {
			return nil
		}

		b.primary.mu.Lock()
		if len(b.primary.items) == 0 && !b.primary.closed {
			b.primary.cond.Wait()
		}
		b.primary.mu.Unlock()
	}
}

// steal inspects every secondary queue's depth and takes from whichever
// one is deepest at the moment of inspection (spec.md §4.3: "the secondary
// queue whose depth is greatest"), retrying against the remaining
// candidates if that queue is emptied by a concurrent pop before the lock
// is acquired.
func (e *executor) steal() *Task {
	for {
		var deepest *readyQueue
		deepestLen := 0
		for _, q := range e.board.secondaries {
			if l := q.len(); l > deepestLen {
				deepestLen = l
				deepest = q
			}
		}
		if deepest == nil {
			return nil
		}

		deepest.mu.Lock()
		t := deepest.popHeadLocked()
		deepest.mu.Unlock()
		if t != nil {
			metrics.RecordSteal(fmt.Sprintf("secondary-%d", deepest.index))
			return t
		}
	}
}

// dequeueSecondary blocks on its own queue only; secondaries never steal
// (spec.md §4.1).
func (e *executor) dequeueSecondary() *Task {
	q := e.queue
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		if q.closed {
			return nil
		}
		q.cond.Wait()
	}
	return q.popHeadLocked()
}

// runOnce resumes t exactly once and dispatches on the outcome
// (spec.md §4.3 steps 2-6).
func (e *executor) runOnce(ctx context.Context, t *Task) {
	b := e.board

	t.Status = Running
	metrics.SetExecutorBusy(e.label, true)
	start := time.Now()
	s := t.resume(ctx)
	t.CPUTime += time.Since(start)
	metrics.SetExecutorBusy(e.label, false)
	b.watchdog.markProgress()

	if s.done {
		e.finish(t, s)
		return
	}

	t.Yields++
	b.history.recordYield(t)

	switch s.reason {
	case yieldPlain, yieldRemoteNonBlocking:
		b.requeueAfterYield(t)
	case yieldBlockingChild:
		child := t.pendingChild
		t.pendingChild = nil
		b.placeBlockingChild(child)
		// t itself stays parked: it is resumed by onTaskFinished once
		// child completes.
	case yieldRemoteBlocking:
		// t stays parked until the sequencer re-admits it.
	}
}

// finish runs the completion-side bookkeeping for a task whose Func
// returned or panicked (spec.md §4.3 step 3, §4.7).
func (e *executor) finish(t *Task, s suspend) {
	b := e.board
	t.Status = Completed

	status := "ok"
	if s.panicVal != nil {
		status = "panic"
		e.log.Error().
			Str("task_id", t.ID).
			Str("fn", t.FnName).
			Interface("panic", s.panicVal).
			Msg("task panicked")
	}

	b.history.recordCompletion(t, t.CPUTime)
	metrics.RecordTaskCompletion(t.FnName, status, t.CPUTime.Seconds(), t.Yields)

	if t.Parent == nil {
		b.releaseSlot()
	}
	b.onTaskFinished(t)
}
