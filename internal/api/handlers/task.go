package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/zkorenberg/tboard/internal/board"
	"github.com/zkorenberg/tboard/internal/events"
	"github.com/zkorenberg/tboard/internal/logger"
)

// FuncRegistry maps a task function name, as named in a POST /tasks body,
// to the board.Func that runs it.
type FuncRegistry map[string]board.Func

// TaskHandler handles task submission and lookup over a running board.
type TaskHandler struct {
	brd       *board.Board
	registry  FuncRegistry
	publisher *events.RedisPubSub
	results   *resultRegistry
}

// NewTaskHandler creates a new task handler.
func NewTaskHandler(brd *board.Board, registry FuncRegistry, publisher *events.RedisPubSub) *TaskHandler {
	return &TaskHandler{
		brd:       brd,
		registry:  registry,
		publisher: publisher,
		results:   newResultRegistry(),
	}
}

// CreateTaskRequest is the POST /tasks body. Exactly one of a registered
// fn_name or a remote message drives which board entry point is used.
type CreateTaskRequest struct {
	FnName   string          `json:"fn_name,omitempty"`
	Class    string          `json:"class,omitempty"`
	Blocking bool            `json:"blocking,omitempty"`
	Remote   bool            `json:"remote,omitempty"`
	Message  string          `json:"message,omitempty"`
	Args     json.RawMessage `json:"args,omitempty"`
}

// CreateTaskResponse is returned from POST /tasks.
type CreateTaskResponse struct {
	ID     string `json:"id"`
	FnName string `json:"fn_name"`
	Class  string `json:"class"`
	Status string `json:"status"`
}

// Create handles POST /tasks.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Remote {
		h.createRemote(w, r, &req)
		return
	}

	if req.FnName == "" {
		h.respondError(w, http.StatusBadRequest, "fn_name is required")
		return
	}

	fn, ok := h.registry[req.FnName]
	if !ok {
		h.respondError(w, http.StatusBadRequest, "unknown fn_name: "+req.FnName)
		return
	}

	class, ok := parseClass(req.Class)
	if !ok {
		h.respondError(w, http.StatusBadRequest, "invalid class: must be priority, primary, or secondary")
		return
	}

	var args any
	if len(req.Args) > 0 {
		var decoded map[string]interface{}
		if err := json.Unmarshal(req.Args, &decoded); err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid args")
			return
		}
		args = decoded
	}

	id := uuid.New().String()
	h.results.start(id, req.FnName, class.String())

	wrapped := h.wrap(id, req.FnName, class.String(), fn)

	var created bool
	if req.Blocking {
		// BlockingTaskCreate must be called from inside a running task
		// (spec.md §4.4), never from the HTTP handler goroutine itself, so
		// the child is dispatched from a throwaway dispatcher task the same
		// way createRemote wraps RemoteTaskCreate below.
		dispatch := func(ctx context.Context) {
			if !h.brd.BlockingTaskCreate(ctx, class, req.FnName, wrapped, args) {
				h.results.fail(id, h.brd.LastError())
			}
		}
		created = h.brd.CreateTask(class, "blocking-dispatch", dispatch, nil)
	} else {
		created = h.brd.CreateTask(class, req.FnName, wrapped, args)
	}
	if !created {
		h.results.fail(id, h.brd.LastError())
		h.respondError(w, http.StatusServiceUnavailable, "failed to create task: "+errString(h.brd.LastError()))
		return
	}

	h.publishTaskEvent(r.Context(), events.EventTaskCreated, id, req.FnName, class.String(), nil)

	logger.Info().
		Str("task_id", id).
		Str("fn_name", req.FnName).
		Str("class", class.String()).
		Msg("task created")

	h.respondJSON(w, http.StatusCreated, CreateTaskResponse{ID: id, FnName: req.FnName, Class: class.String(), Status: "running"})
}

// createRemote handles a POST /tasks body with remote=true: it wraps
// board.RemoteTaskCreate in an ordinary secondary task, since the board's
// remote entry point must be called from within a running task (spec.md
// §4.5), not directly from an HTTP handler goroutine.
func (h *TaskHandler) createRemote(w http.ResponseWriter, r *http.Request, req *CreateTaskRequest) {
	if req.Message == "" {
		h.respondError(w, http.StatusBadRequest, "message is required for remote tasks")
		return
	}

	id := uuid.New().String()
	h.results.start(id, "remote", board.Secondary.String())
	blocking := req.Blocking

	fn := func(ctx context.Context) {
		var response []byte
		if !h.brd.RemoteTaskCreate(ctx, req.Message, &response, blocking) {
			h.results.fail(id, h.brd.LastError())
			return
		}
		h.results.completeWithResponse(id, response)
		h.publishTaskEvent(context.Background(), events.EventTaskCompleted, id, "remote", board.Secondary.String(), nil)
	}

	h.publishTaskEvent(r.Context(), events.EventTaskRemotePending, id, "remote", board.Secondary.String(), map[string]interface{}{"blocking": blocking})

	if !h.brd.CreateTask(board.Secondary, "remote", fn, nil) {
		h.results.fail(id, h.brd.LastError())
		h.respondError(w, http.StatusServiceUnavailable, "failed to create remote task: "+errString(h.brd.LastError()))
		return
	}

	h.respondJSON(w, http.StatusAccepted, CreateTaskResponse{ID: id, FnName: "remote", Class: board.Secondary.String(), Status: "running"})
}

// wrap records completion/failure of a registered task function against
// the result registry and publishes the corresponding board event, without
// swallowing a panic: the board's own coroutine machinery still captures it.
func (h *TaskHandler) wrap(id, fnName, class string, fn board.Func) board.Func {
	return func(ctx context.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				h.results.fail(id, fmt.Errorf("panic: %v", rec))
				panic(rec)
			}
		}()
		fn(ctx)
		h.results.complete(id)
		h.publishTaskEvent(context.Background(), events.EventTaskCompleted, id, fnName, class, nil)
	}
}

func (h *TaskHandler) publishTaskEvent(ctx context.Context, eventType events.EventType, taskID, fnName, class string, extra map[string]interface{}) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.PublishTaskEvent(ctx, eventType, taskID, fnName, class, extra); err != nil {
		logger.Warn().Err(err).Str("task_id", taskID).Msg("failed to publish task event")
	}
}

// Get handles GET /tasks/{taskID}.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		h.respondError(w, http.StatusBadRequest, "task ID is required")
		return
	}

	res, ok := h.results.get(taskID)
	if !ok {
		h.respondError(w, http.StatusNotFound, "task not found")
		return
	}

	h.respondJSON(w, http.StatusOK, res)
}

// List handles GET /tasks, reporting live ready-queue depths since the
// board does not keep a durable, queryable list of individual tasks.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	primary, secondary := h.brd.QueueDepths()
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"primary_depth":    primary,
		"secondary_depths": secondary,
	})
}

func parseClass(s string) (board.Class, bool) {
	switch s {
	case "", "secondary":
		return board.Secondary, true
	case "primary":
		return board.Primary, true
	case "priority":
		return board.Priority, true
	default:
		return board.Secondary, false
	}
}

func errString(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (h *TaskHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func (h *TaskHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}
