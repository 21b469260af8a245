package handlers

import (
	"sync"
	"time"
)

// maxResults bounds the in-memory result registry; once full, the oldest
// completed entries are evicted to make room for new submissions.
const maxResults = 10000

// TaskResult is the API-visible projection of a submitted task's progress.
// It is keyed by the correlation ID the handler assigns at submission time,
// which is distinct from the board's own internal Task.ID.
type TaskResult struct {
	ID          string    `json:"id"`
	FnName      string    `json:"fn_name"`
	Class       string    `json:"class"`
	Status      string    `json:"status"` // running, completed, failed
	Response    []byte    `json:"response,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

type resultRegistry struct {
	mu      sync.Mutex
	results map[string]*TaskResult
	order   []string
}

func newResultRegistry() *resultRegistry {
	return &resultRegistry{results: make(map[string]*TaskResult)}
}

func (r *resultRegistry) start(id, fnName, class string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.results) >= maxResults {
		r.evictOldestLocked()
	}

	r.results[id] = &TaskResult{
		ID:        id,
		FnName:    fnName,
		Class:     class,
		Status:    "running",
		CreatedAt: time.Now().UTC(),
	}
	r.order = append(r.order, id)
}

func (r *resultRegistry) complete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if res, ok := r.results[id]; ok {
		res.Status = "completed"
		res.CompletedAt = time.Now().UTC()
	}
}

func (r *resultRegistry) completeWithResponse(id string, response []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if res, ok := r.results[id]; ok {
		res.Status = "completed"
		res.Response = response
		res.CompletedAt = time.Now().UTC()
	}
}

func (r *resultRegistry) fail(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if res, ok := r.results[id]; ok {
		res.Status = "failed"
		if err != nil {
			res.Error = err.Error()
		}
		res.CompletedAt = time.Now().UTC()
	}
}

func (r *resultRegistry) get(id string) (*TaskResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.results[id]
	return res, ok
}

// evictOldestLocked drops the oldest completed/failed entry, or the oldest
// entry outright if every tracked task is still running. Must be called
// with r.mu held.
func (r *resultRegistry) evictOldestLocked() {
	for i, id := range r.order {
		res, ok := r.results[id]
		if !ok {
			continue
		}
		if res.Status != "running" {
			delete(r.results, id)
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
	if len(r.order) > 0 {
		delete(r.results, r.order[0])
		r.order = r.order[1:]
	}
}
