package board

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zkorenberg/tboard/internal/logger"
	"github.com/zkorenberg/tboard/internal/metrics"
)

// lifecycleStatus tracks the board's own Created/Started/Destroyed state
// (spec.md §3 Board, §4.8).
type lifecycleStatus int

const (
	boardCreated lifecycleStatus = iota
	boardStarted
	boardShuttingDown
	boardDestroyed
)

// Config configures a Board at creation time (spec.md §4.8 board_create,
// §6 tunables table).
type Config struct {
	// SecondaryCount must be in [1, MaxSecondaries].
	SecondaryCount int
	// MaxConcurrentTasks overrides MaxTasks for tests; zero means MaxTasks.
	MaxConcurrentTasks int
	// Transport is the remote-task rendezvous transport. A loopback
	// transport is used if nil.
	Transport Transport
	// OnLeakedEnvelope, if set, is called once per pending remote-task
	// envelope that never got a response before Destroy tore the board
	// down (spec.md §9). internal/remote's LeakedLedger plugs in here.
	OnLeakedEnvelope func(envelopeID, message string, blocking bool)
}

// Board owns the primary executor, secondary executors, their ready
// queues, the message queues (via Transport), the history table, and the
// synchronization primitives described in spec.md §3 and §5. A board is
// single-use: Created -> Started -> (Shutting-down) -> Destroyed.
type Board struct {
	cfg Config

	mu     sync.Mutex // board mutex: counter / status / task_count (spec.md §5 lock order #1)
	status lifecycleStatus

	taskCount int
	maxTasks  int

	primary     *readyQueue
	secondaries []*readyQueue
	rrNext      int // round-robin pointer for task_create's secondary selection (spec.md §4.2)

	history *historyTable

	transport Transport
	pendingMu sync.Mutex // message-queue mutex (spec.md §5 lock order #4)
	pending   map[string]*envelope
	// resolvedResponses holds wire-level response payloads for blocking
	// remote calls whose originator has not yet been resumed by the
	// executor; guarded by pendingMu alongside pending.
	resolvedResponses map[string][]byte
	msgCond           *sync.Cond

	executors []*executor

	shutdown atomic.Bool

	exitMu         sync.Mutex // exit mutex (spec.md §5 lock order #5)
	terminatedCond *sync.Cond
	executorsLeft  int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	watchdog *Watchdog

	lastErr error

	log zerolog.Logger
}

// Create allocates and initializes a Board (spec.md §4.8 board_create).
// secondary_count must be in [1, MaxSecondaries].
func Create(cfg Config) (*Board, error) {
	if cfg.SecondaryCount < 1 || cfg.SecondaryCount > MaxSecondaries {
		return nil, ErrInvalidSecondaryCount
	}

	maxTasks := cfg.MaxConcurrentTasks
	if maxTasks <= 0 {
		maxTasks = MaxTasks
	}

	transport := cfg.Transport
	if transport == nil {
		transport = NewLoopbackTransport()
	}

	b := &Board{
		cfg:               cfg,
		status:            boardCreated,
		maxTasks:          maxTasks,
		primary:           newReadyQueue(-1),
		history:           newHistoryTable(),
		transport:         transport,
		pending:           make(map[string]*envelope),
		resolvedResponses: make(map[string][]byte),
		log:               logger.WithComponent("board"),
	}
	b.msgCond = sync.NewCond(&b.pendingMu)
	b.terminatedCond = sync.NewCond(&b.exitMu)

	b.secondaries = make([]*readyQueue, cfg.SecondaryCount)
	for i := range b.secondaries {
		b.secondaries[i] = newReadyQueue(i)
	}
	if SignalPrimaryOnSecondaryPush {
		for _, q := range b.secondaries {
			q.onPush = func() {
				b.primary.mu.Lock()
				b.primary.cond.Signal()
				b.primary.mu.Unlock()
			}
		}
	}

	b.watchdog = newWatchdog(b, DefaultWatchdogProgressTimeout)

	b.log.Info().Int("secondary_count", cfg.SecondaryCount).Msg("board created")
	return b, nil
}

// Start spawns one primary executor and SecondaryCount secondary executors
// (spec.md §4.8 board_start).
func (b *Board) Start() error {
	b.mu.Lock()
	if b.status != boardCreated {
		b.mu.Unlock()
		return ErrAlreadyStarted
	}
	b.status = boardStarted
	b.mu.Unlock()

	b.ctx, b.cancel = context.WithCancel(context.Background())

	b.executors = append(b.executors, newExecutor(b, rolePrimary, -1, b.primary))
	for i, q := range b.secondaries {
		b.executors = append(b.executors, newExecutor(b, roleSecondary, i, q))
	}

	b.exitMu.Lock()
	b.executorsLeft = len(b.executors)
	b.exitMu.Unlock()

	for _, ex := range b.executors {
		b.wg.Add(1)
		go func(e *executor) {
			defer b.wg.Done()
			e.run(b.ctx)
			b.exitMu.Lock()
			b.executorsLeft--
			if b.executorsLeft == 0 {
				b.terminatedCond.Broadcast()
			}
			b.exitMu.Unlock()
		}(ex)
	}

	seq := newSequencer(b)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		seq.run(b.ctx)
	}()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.watchdog.run()
	}()

	metrics.SetActiveExecutors(float64(len(b.executors)))
	b.log.Info().Msg("board started")
	return nil
}

// Kill sets the shutdown flag, cancels every executor, broadcasts every
// condition variable (including the message-available condvar, so
// external adapters unblock), and waits for all executors to join
// (spec.md §4.8 board_kill).
//
// Kill acquires the board mutex itself; a caller that already holds it
// deadlocks.
func (b *Board) Kill() bool {
	b.mu.Lock()
	if b.status != boardStarted && b.status != boardShuttingDown {
		b.mu.Unlock()
		return false
	}
	alreadyShuttingDown := b.status == boardShuttingDown
	b.status = boardShuttingDown
	b.mu.Unlock()

	if alreadyShuttingDown {
		return false
	}

	b.shutdown.Store(true)
	if b.cancel != nil {
		b.cancel()
	}

	b.primary.closeQueue()
	for _, q := range b.secondaries {
		q.closeQueue()
	}

	b.pendingMu.Lock()
	b.msgCond.Broadcast()
	b.pendingMu.Unlock()

	b.exitMu.Lock()
	for b.executorsLeft > 0 {
		b.terminatedCond.Wait()
	}
	b.exitMu.Unlock()

	b.log.Info().Msg("board killed")
	return true
}

// Destroy joins threads (a no-op if Kill already drained them), destroys
// ready and message queues (freeing whatever tasks/envelopes were still
// parked in them), destroys the history table, and releases the board
// (spec.md §4.8 board_destroy). If Kill has not run yet, Destroy calls it
// first.
func (b *Board) Destroy() {
	b.mu.Lock()
	if b.status == boardDestroyed {
		b.mu.Unlock()
		return
	}
	wasShuttingDown := b.status == boardShuttingDown
	b.mu.Unlock()

	if !wasShuttingDown {
		b.Kill()
	}

	if b.watchdog != nil {
		b.watchdog.Stop()
	}
	b.wg.Wait()

	b.primary.mu.Lock()
	b.primary.drainLocked()
	b.primary.mu.Unlock()
	for _, q := range b.secondaries {
		q.mu.Lock()
		q.drainLocked()
		q.mu.Unlock()
	}

	b.pendingMu.Lock()
	leaked := b.pending
	b.pending = make(map[string]*envelope)
	b.pendingMu.Unlock()

	if b.cfg.OnLeakedEnvelope != nil {
		for id, env := range leaked {
			b.cfg.OnLeakedEnvelope(id, env.message, env.blocking)
		}
	}

	if b.transport != nil {
		_ = b.transport.Close()
	}
	if b.watchdog != nil {
		b.watchdog.Stop()
	}

	b.mu.Lock()
	b.status = boardDestroyed
	b.mu.Unlock()

	b.log.Info().Msg("board destroyed")
}

// ConcurrentTaskCount returns the number of concurrently running tasks the
// board currently accounts for (spec.md §4.8 tboard_get_concurrent);
// blocking children never contribute to this count.
func (b *Board) ConcurrentTaskCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.taskCount
}

// reserveSlot performs tboard_add_concurrent()'s check-and-increment as a
// single atomic step under the board mutex. This resolves the Open
// Question spec.md §9 raises about the reference source sometimes reading
// task_count without cmutex: here it is always one critical section.
func (b *Board) reserveSlot() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.taskCount >= b.maxTasks {
		return false
	}
	b.taskCount++
	return true
}

func (b *Board) releaseSlot() {
	b.mu.Lock()
	b.taskCount--
	b.mu.Unlock()
}

func (b *Board) isStarted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status == boardStarted
}

func (b *Board) isShuttingDown() bool {
	return b.shutdown.Load()
}

// CreateTask validates board state, reserves a concurrent-task slot,
// builds the task and places it on the appropriate ready queue
// (spec.md §4.2 task_create). Returns false (no side effects) if the
// board isn't accepting work or MAX_TASKS would be exceeded.
func (b *Board) CreateTask(class Class, fnName string, fn Func, args any) bool {
	if !b.isStarted() || b.isShuttingDown() {
		b.lastErr = ErrBoardNotStarted
		return false
	}
	if !b.reserveSlot() {
		b.lastErr = ErrCapacity
		return false
	}

	t := newTask(class, fnName, fn, args)
	t.hist = b.history.lookupOrInsert(fnName)
	b.placeNewTask(t)

	metrics.RecordTaskCreated(fnName, class.String())
	return true
}

// placeNewTask implements the per-class placement rules of spec.md §4.2.
func (b *Board) placeNewTask(t *Task) {
	switch t.Class {
	case Priority:
		t.originQueue = b.primary
		b.primary.pushHead(t)
	case Primary:
		t.originQueue = b.primary
		b.primary.pushTail(t)
	case Secondary:
		q := b.pickSecondaryRoundRobin()
		t.originQueue = q
		q.pushTail(t)
	}
}

// pickSecondaryRoundRobin implements task_create's "simple round-robin
// pointer maintained by the board" secondary selection (spec.md §4.2).
func (b *Board) pickSecondaryRoundRobin() *readyQueue {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.secondaries[b.rrNext]
	b.rrNext = (b.rrNext + 1) % len(b.secondaries)
	return q
}

// pickSecondaryLeastLoaded implements blocking_task_create's "tail of
// least-loaded secondary" selection (spec.md §4.4), which is intentionally
// a different policy from plain task_create's round robin.
func (b *Board) pickSecondaryLeastLoaded() *readyQueue {
	best := b.secondaries[0]
	bestLen := best.len()
	for _, q := range b.secondaries[1:] {
		if l := q.len(); l < bestLen {
			best, bestLen = q, l
		}
	}
	return best
}

// placeBlockingChild admits a blocking child onto its class's queue,
// mirroring placeNewTask but using the least-loaded secondary policy
// (spec.md §4.4). Called by the executor after the parent has yielded
// with reason yieldBlockingChild.
func (b *Board) placeBlockingChild(child *Task) {
	switch child.Class {
	case Priority:
		child.originQueue = b.primary
		b.primary.pushHead(child)
	case Primary:
		child.originQueue = b.primary
		b.primary.pushTail(child)
	case Secondary:
		q := b.pickSecondaryLeastLoaded()
		child.originQueue = q
		q.pushTail(child)
	}
}

// requeueAfterYield re-admits t to its origin queue using the class's
// reinsertion rule (spec.md §4.1, §4.3): priority tasks go to the head,
// everything else to the tail.
func (b *Board) requeueAfterYield(t *Task) {
	if t.Class == Priority && ReinsertPriorityAtHead {
		t.originQueue.pushHead(t)
	} else {
		t.originQueue.pushTail(t)
	}
}

// onTaskFinished runs the bookkeeping that follows a task's completion: if
// it was a blocking child, its parent is re-admitted to the ready queue it
// was parked from, since a blocking child's completion is exactly the
// resumption signal for its parent (spec.md §4.4).
func (b *Board) onTaskFinished(t *Task) {
	if t.Parent != nil {
		b.requeueAfterYield(t.Parent)
	}
}

// BlockingTaskCreate must be called from within a running task
// (spec.md §4.4); it creates a child task that substitutes for the caller
// in the scheduling budget, yields the caller, and returns only once the
// child has completed.
func (b *Board) BlockingTaskCreate(ctx context.Context, class Class, fnName string, fn Func, args any) bool {
	caller, ok := CurrentTask(ctx)
	if !ok {
		b.lastErr = ErrNotInTask
		return false
	}
	if b.isShuttingDown() {
		b.lastErr = ErrShuttingDown
		return false
	}

	child := newTask(class, fnName, fn, args)
	child.hist = b.history.lookupOrInsert(fnName)
	child.Parent = caller

	caller.pendingChild = child
	caller.pendingYieldReason = yieldBlockingChild
	Yield(ctx)

	return true
}

// RemoteTaskCreate must be called from within a running task (spec.md
// §4.5). It builds an envelope for the caller, pushes it to the outbound
// queue, and yields. If blocking, it returns only once the sequencer has
// re-admitted the caller after the inbound response arrives; response is
// populated by then. If non-blocking, the caller is re-queued immediately
// by the executor and RemoteTaskCreate returns on its next resumption.
func (b *Board) RemoteTaskCreate(ctx context.Context, message string, response *[]byte, blocking bool) bool {
	caller, ok := CurrentTask(ctx)
	if !ok {
		b.lastErr = ErrNotInTask
		return false
	}
	if len(message) > MaxMessageLength {
		b.lastErr = ErrMessageTooLong
		return false
	}
	if b.isShuttingDown() {
		b.lastErr = ErrShuttingDown
		return false
	}

	env := &envelope{id: newEnvelopeID(), message: message, blocking: blocking, callingTask: caller}

	b.pendingMu.Lock()
	b.pending[env.id] = env
	b.pendingMu.Unlock()

	if err := b.transport.Send(ctx, &WireEnvelope{ID: env.id, Message: message, Blocking: blocking}); err != nil {
		b.pendingMu.Lock()
		delete(b.pending, env.id)
		b.pendingMu.Unlock()
		b.lastErr = err
		return false
	}
	metrics.RecordRemoteEnvelopeSent(blocking)

	reason := yieldRemoteNonBlocking
	if blocking {
		reason = yieldRemoteBlocking
	}
	caller.pendingYieldReason = reason
	Yield(ctx)

	if blocking && response != nil {
		b.pendingMu.Lock()
		if cached, ok := b.resolvedResponses[env.id]; ok {
			*response = cached
			delete(b.resolvedResponses, env.id)
		}
		b.pendingMu.Unlock()
	}

	return true
}

// LastError returns the detailed error behind the most recent bool-false
// return from this board, matching spec.md §7's "no per-task error
// channel" constraint while still giving operators something actionable.
func (b *Board) LastError() error {
	return b.lastErr
}

// History returns a point-in-time snapshot of the execution-history table
// for diagnostics/reporting (spec.md §6 history_print and SPEC_FULL.md §6
// JSON variant).
func (b *Board) History() []HistoryRecord {
	entries := b.history.snapshot()
	out := make([]HistoryRecord, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryRecord{
			FnName:      e.fnName,
			Completions: e.completions,
			Executions:  e.executions,
			Yields:      e.yields,
			MeanCPUTime: e.meanCPUTime,
			MeanYields:  e.meanYields,
		})
	}
	return out
}

// HistoryRecord is the public, serializable projection of a historyEntry.
type HistoryRecord struct {
	FnName      string        `json:"fn_name"`
	Completions int64         `json:"completions"`
	Executions  int64         `json:"executions"`
	Yields      int64         `json:"yields"`
	MeanCPUTime time.Duration `json:"mean_cpu_time"`
	MeanYields  float64       `json:"mean_yields"`
}

// WriteHistoryText renders the spec.md §6 text format.
func (b *Board) WriteHistoryText(w io.Writer) error {
	return b.history.writeText(w)
}

// QueueDepths reports the live length of every ready queue, for admin/
// diagnostic surfaces.
func (b *Board) QueueDepths() (primary int, secondary []int) {
	return b.primary.len(), depthsOf(b.secondaries)
}

func depthsOf(qs []*readyQueue) []int {
	out := make([]int, len(qs))
	for i, q := range qs {
		out[i] = q.len()
	}
	return out
}

func newEnvelopeID() string {
	return fmt.Sprintf("env-%s", uuid.New().String())
}
