package board

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/zkorenberg/tboard/internal/metrics"
)

// historyEntry is keyed by function name (spec.md §3, §4.7). The key
// string is owned by the entry; task_t.hist is a non-owning, cached
// pointer into this table, valid for the lifetime of the board.
type historyEntry struct {
	fnName      string
	meanCPUTime time.Duration
	meanYields  float64
	yields      int64
	executions  int64
	completions int64
}

// historyTable is the board's execution-history map (spec.md §4.7). All
// mutations are serialized by mu ("history mutex"); reads through a task's
// cached pointer are safe because entries are only ever removed at board
// destroy, which cancels executors first.
type historyTable struct {
	mu      sync.Mutex
	entries map[string]*historyEntry
}

func newHistoryTable() *historyTable {
	return &historyTable{entries: make(map[string]*historyEntry)}
}

// lookupOrInsert returns the entry for fnName, lazily creating it on first
// execution (spec.md §3: "Entries are created lazily on first execution").
func (h *historyTable) lookupOrInsert(fnName string) *historyEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.entries[fnName]
	if !ok {
		e = &historyEntry{fnName: fnName}
		h.entries[fnName] = e
	}
	return e
}

// recordYield increments the per-entry yield counters. Per spec.md §4.7,
// "executions" is incremented once per task-lifetime, on the task's first
// yield only; every yield (first or not) accumulates the total yield
// count.
func (h *historyTable) recordYield(t *Task) {
	e := t.hist
	if e == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	e.yields++
	if !t.executionRecorded {
		e.executions++
		t.executionRecorded = true
	}
}

// recordCompletion updates the Welford-style running means for CPU time
// and yield count, and increments completions (spec.md §4.7).
func (h *historyTable) recordCompletion(t *Task, cpuTime time.Duration) {
	e := t.hist
	if e == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	e.completions++
	n := float64(e.completions)

	// Welford running mean: mean += (x - mean) / n
	e.meanCPUTime += time.Duration((float64(cpuTime) - float64(e.meanCPUTime)) / n)
	e.meanYields += (float64(t.Yields) - e.meanYields) / n

	metrics.SetHistoryStats(e.fnName, e.meanCPUTime.Seconds(), e.meanYields)
}

// snapshot returns a stable, sorted copy of every entry for reporting.
func (h *historyTable) snapshot() []historyEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]historyEntry, 0, len(h.entries))
	for _, e := range h.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].fnName < out[j].fnName })
	return out
}

// writeText renders the original tboard history_print_records() narrative
// line format verbatim (spec.md §6, SPEC_FULL.md §10):
//
//	task 'fn_name' completed %d/%d times, yielding %ld times with mean execution time %ld
func (h *historyTable) writeText(w io.Writer) error {
	for _, e := range h.snapshot() {
		_, err := fmt.Fprintf(w, "task '%s' completed %d/%d times, yielding %d times with mean execution time %d\n",
			e.fnName, e.completions, e.executions, e.yields, e.meanCPUTime.Nanoseconds())
		if err != nil {
			return err
		}
	}
	return nil
}
