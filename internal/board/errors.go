package board

import "errors"

// Error definitions used internally; the public API surface (task_create,
// blocking_task_create, remote_task_create, board_kill, ...) reports these
// as bool per spec, but Board.LastError exposes the detail for
// callers that want it without crossing the task/executor boundary with a
// raised exception.
var (
	ErrBoardNotStarted       = errors.New("board: not started")
	ErrShuttingDown          = errors.New("board: shutting down")
	ErrCapacity              = errors.New("board: concurrent task limit reached")
	ErrNotInTask             = errors.New("board: not called from within a running task")
	ErrStackAlloc            = errors.New("board: failed to allocate task context")
	ErrAlreadyStarted        = errors.New("board: already started")
	ErrInvalidSecondaryCount = errors.New("board: secondary_count out of range")
	ErrMessageTooLong        = errors.New("board: remote message exceeds 254 bytes")
	ErrNilBoard              = errors.New("board: nil board")
)
