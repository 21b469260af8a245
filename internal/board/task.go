package board

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Func is the task body signature. It receives a context carrying the
// task's own handle (so board.Yield/board.Args can find it), derived from
// the context of the executor that first resumes the task (for a started
// board, the board's run context, which Kill cancels).
type Func func(ctx context.Context)

// yieldReason is the side channel a task sets (implicitly, by which API it
// called) before suspending, telling the executor how to dispose of it
// (spec.md §4.3 step 6).
type yieldReason int

const (
	yieldNone yieldReason = iota
	yieldPlain
	yieldBlockingChild
	yieldRemoteNonBlocking
	yieldRemoteBlocking
)

// suspend is what a task goroutine sends to its executor when it stops
// running, either because it yielded or because its Func returned/panicked.
type suspend struct {
	done     bool
	reason   yieldReason
	panicVal any
}

// coroutine is the goroutine-based stand-in for the reference's minicoro
// stackful coroutine (SPEC_FULL.md §3). Exactly one side of the resume/
// yield channel pair is ever runnable at a time, which preserves the
// "single task running per executor" invariant without a native fiber
// primitive.
type coroutine struct {
	resume  chan struct{}
	yield   chan suspend
	started bool
	once    sync.Once
}

func newCoroutine() *coroutine {
	return &coroutine{
		resume: make(chan struct{}),
		yield:  make(chan suspend, 1),
	}
}

// Task represents one unit of user work (spec.md §3).
type Task struct {
	ID     string
	Class  Class
	Status Status

	FnName string
	fn     Func

	Args any

	CPUTime time.Duration
	Yields  int

	hist *historyEntry

	// Parent is set for blocking children (spec.md §4.4); nil otherwise.
	Parent *Task
	// pendingChild is stashed by blocking_task_create and consumed by the
	// executor's yield handler, which is the one that actually places the
	// child into a ready queue (spec.md §4.4).
	pendingChild *Task

	// originQueue is the ready queue this task re-inserts into on a plain
	// yield or non-blocking remote yield (spec.md §4.3, §5 ordering rules).
	originQueue *readyQueue

	// pendingYieldReason is set by BlockingTaskCreate/RemoteTaskCreate just
	// before calling Yield, since Go has no way to pass an extra argument
	// through the coroutine boundary other than task-local state.
	pendingYieldReason yieldReason

	co *coroutine

	// executionRecorded guards the "increment total executions once per
	// task-lifetime, on first yield only" rule (spec.md §4.7).
	executionRecorded bool

	lastErr error
}

func newTask(class Class, fnName string, fn Func, args any) *Task {
	return &Task{
		ID:     uuid.New().String(),
		Class:  class,
		Status: Initialized,
		FnName: fnName,
		fn:     fn,
		Args:   args,
		co:     newCoroutine(),
	}
}

// taskCtxKey is the context key carrying the currently-resuming task. Go
// has no thread-locals; spec.md §9 names exactly this substitution
// ("a board-owned context passed explicitly... thread-locals may be used
// only to let task_yield/task_get_args find the currently-resuming task").
type taskCtxKey struct{}

func withTask(ctx context.Context, t *Task) context.Context {
	return context.WithValue(ctx, taskCtxKey{}, t)
}

func taskFromContext(ctx context.Context) (*Task, bool) {
	t, ok := ctx.Value(taskCtxKey{}).(*Task)
	return t, ok
}

// resume starts the task's goroutine on first call and hands control to it
// on every subsequent call, blocking until the task yields or returns.
func (t *Task) resume(ctx context.Context) suspend {
	t.co.once.Do(func() {
		runCtx := withTask(ctx, t)
		go func() {
			<-t.co.resume
			defer func() {
				if r := recover(); r != nil {
					t.co.yield <- suspend{done: true, panicVal: r}
					return
				}
			}()
			t.fn(runCtx)
			t.co.yield <- suspend{done: true}
		}()
	})
	t.co.resume <- struct{}{}
	return <-t.co.yield
}

// Yield suspends the currently-running task back to its executor
// (spec.md §4.9 task_yield). Undefined (no-op) outside a task.
func Yield(ctx context.Context) {
	t, ok := taskFromContext(ctx)
	if !ok {
		return
	}
	reason := t.pendingYieldReason
	if reason == yieldNone {
		reason = yieldPlain
	}
	t.pendingYieldReason = yieldNone
	t.co.yield <- suspend{reason: reason}
	<-t.co.resume
}

// Args returns the argument blob attached to the currently-running task
// (spec.md §4.9 task_get_args). Undefined (nil) outside a task.
func Args(ctx context.Context) any {
	t, ok := taskFromContext(ctx)
	if !ok {
		return nil
	}
	return t.Args
}

// CurrentTask exposes the task handle for APIs that need more than Args,
// namely BlockingTaskCreate and RemoteTaskCreate.
func CurrentTask(ctx context.Context) (*Task, bool) {
	return taskFromContext(ctx)
}

func (t *Task) String() string {
	return fmt.Sprintf("task(%s fn=%s class=%s status=%s)", t.ID, t.FnName, t.Class, t.Status)
}
