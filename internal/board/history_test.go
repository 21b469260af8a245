package board

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryLookupOrInsertCreatesOnce(t *testing.T) {
	h := newHistoryTable()
	e1 := h.lookupOrInsert("fn")
	e2 := h.lookupOrInsert("fn")
	assert.Same(t, e1, e2)
}

func TestHistoryRecordYieldCountsExecutionsOnceOnly(t *testing.T) {
	h := newHistoryTable()
	tsk := newTask(Primary, "fn", func(ctx context.Context) {}, nil)
	tsk.hist = h.lookupOrInsert("fn")

	h.recordYield(tsk)
	h.recordYield(tsk)
	h.recordYield(tsk)

	assert.EqualValues(t, 3, tsk.hist.yields)
	assert.EqualValues(t, 1, tsk.hist.executions)
}

func TestHistoryRecordCompletionUpdatesRunningMean(t *testing.T) {
	h := newHistoryTable()
	e := h.lookupOrInsert("fn")

	t1 := newTask(Primary, "fn", func(ctx context.Context) {}, nil)
	t1.hist = e
	t1.Yields = 2
	h.recordCompletion(t1, 100*time.Millisecond)

	t2 := newTask(Primary, "fn", func(ctx context.Context) {}, nil)
	t2.hist = e
	t2.Yields = 4
	h.recordCompletion(t2, 300*time.Millisecond)

	require.EqualValues(t, 2, e.completions)
	assert.InDelta(t, 3, e.meanYields, 0.0001)
	assert.InDelta(t, 200*time.Millisecond, e.meanCPUTime, float64(time.Millisecond))
}

func TestHistorySnapshotSortedByName(t *testing.T) {
	h := newHistoryTable()
	h.lookupOrInsert("zeta")
	h.lookupOrInsert("alpha")
	h.lookupOrInsert("mid")

	snap := h.snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "alpha", snap[0].fnName)
	assert.Equal(t, "mid", snap[1].fnName)
	assert.Equal(t, "zeta", snap[2].fnName)
}

func TestHistoryWriteTextContainsFields(t *testing.T) {
	h := newHistoryTable()
	e := h.lookupOrInsert("myfunc")
	tsk := newTask(Primary, "myfunc", func(ctx context.Context) {}, nil)
	tsk.hist = e
	tsk.Yields = 1
	h.recordYield(tsk)
	h.recordCompletion(tsk, 10*time.Millisecond)

	var buf bytes.Buffer
	require.NoError(t, h.writeText(&buf))

	out := buf.String()
	assert.True(t, strings.Contains(out, "myfunc"))
	assert.True(t, strings.Contains(out, "1")) // completions/executions/yields all 1
}
