package board

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskResumeYieldRoundTrip(t *testing.T) {
	tsk := newTask(Primary, "roundtrip", func(ctx context.Context) {
		got := Args(ctx)
		assert.Equal(t, 42, got)
		Yield(ctx)
		Yield(ctx)
	}, 42)

	s := tsk.resume(context.Background())
	require.False(t, s.done)
	require.Equal(t, yieldPlain, s.reason)

	s = tsk.resume(context.Background())
	require.False(t, s.done)

	s = tsk.resume(context.Background())
	require.True(t, s.done)
	require.Nil(t, s.panicVal)
}

func TestTaskResumeCompletesWithoutYield(t *testing.T) {
	ran := false
	tsk := newTask(Primary, "noyield", func(ctx context.Context) {
		ran = true
	}, nil)

	s := tsk.resume(context.Background())
	require.True(t, s.done)
	require.True(t, ran)
}

func TestTaskResumeCapturesPanic(t *testing.T) {
	tsk := newTask(Primary, "panicker", func(ctx context.Context) {
		panic("boom")
	}, nil)

	s := tsk.resume(context.Background())
	require.True(t, s.done)
	require.Equal(t, "boom", s.panicVal)
}

func TestYieldOutsideTaskIsNoop(t *testing.T) {
	assert.NotPanics(t, func() {
		Yield(context.Background())
	})
}

func TestArgsOutsideTaskIsNil(t *testing.T) {
	assert.Nil(t, Args(context.Background()))
}

func TestCurrentTaskFoundInsideResume(t *testing.T) {
	var found bool
	tsk := newTask(Secondary, "selflookup", func(ctx context.Context) {
		_, found = CurrentTask(ctx)
	}, nil)
	s := tsk.resume(context.Background())
	require.True(t, s.done)
	assert.True(t, found)
}

func TestYieldReasonIsConsumedOnce(t *testing.T) {
	var reasons []yieldReason
	tsk := newTask(Primary, "reasons", func(ctx context.Context) {
		self, _ := CurrentTask(ctx)
		self.pendingYieldReason = yieldBlockingChild
		Yield(ctx)
		Yield(ctx) // second yield must fall back to plain
	}, nil)

	s := tsk.resume(context.Background())
	reasons = append(reasons, s.reason)
	s = tsk.resume(context.Background())
	reasons = append(reasons, s.reason)

	require.Equal(t, []yieldReason{yieldBlockingChild, yieldPlain}, reasons)
}
