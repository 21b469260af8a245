package board

import "time"

// Compile-time tunables from the reference implementation (spec.md §6).
// StackSize is carried for fidelity with the C source's fixed coroutine
// stack; Go's goroutine stacks grow and shrink automatically so the
// scheduler itself does not consume it, but it is kept as documented
// default sizing advice for task functions that want to size their own
// local buffers conservatively.
const (
	MaxTasks       = 65536 // MAX_TASKS
	MaxSecondaries = 10    // MAX_SECONDARIES
	StackSize      = 57344 // STACK_SIZE, bytes

	// ReinsertPriorityAtHead mirrors REINSERT_PRIORITY_AT_HEAD: priority-class
	// tasks jump the primary queue's head instead of its tail.
	ReinsertPriorityAtHead = true

	// SignalPrimaryOnSecondaryPush mirrors SIGNAL_PRIMARY_ON_NEW_SECONDARY_TASK.
	SignalPrimaryOnSecondaryPush = true

	// MaxMessageLength is the remote-task envelope message bound (254 + NUL).
	MaxMessageLength = 254

	// DefaultWatchdogProgressTimeout is the reference source's 10s stall window.
	DefaultWatchdogProgressTimeout = 10 * time.Second
)
