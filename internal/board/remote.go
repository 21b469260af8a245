package board

import (
	"context"
	"sync"
)

// WireEnvelope is the process-boundary-safe projection of a remote-task
// envelope (spec.md §3, §4.5): everything an external adapter needs to do
// its I/O and hand a response back, with no pointer back into this
// process's task objects. Transport implementations (in-memory for tests,
// Redis Streams in internal/remote for production) move these across the
// outbound/inbound message queues.
type WireEnvelope struct {
	ID       string
	Message  string
	Response []byte
	Blocking bool
}

// Transport is the board-side half of the remote-task rendezvous
// (spec.md §4.5, §6 adapter contract). Send pushes an envelope onto the
// outbound queue; Drain pops whatever has arrived on the inbound queue
// without blocking, matching the sequencer's "drains every inbound
// envelope" behavior (spec.md §4.6).
type Transport interface {
	Send(ctx context.Context, env *WireEnvelope) error
	Drain(ctx context.Context) ([]*WireEnvelope, error)
	Close() error
}

// envelope is the in-process remote-task envelope (spec.md §3): it owns a
// non-owning pointer back to the originating task so the sequencer can
// re-admit it once the wire-level response arrives.
type envelope struct {
	id          string
	message     string
	blocking    bool
	callingTask *Task
}

// inMemoryTransport is a trivial loopback Transport usable for tests and
// for embedding the board without a real external adapter: every send is
// immediately echoed back on drain with an empty response, so blocking
// remote calls complete but carry no adapter-filled data. Production
// deployments use internal/remote's Redis Streams transport instead.
type inMemoryTransport struct {
	mu      sync.Mutex
	pending []*WireEnvelope
	closed  bool
}

// NewLoopbackTransport returns a Transport that echoes every outbound
// envelope straight to inbound, useful for tests that exercise the
// blocking/non-blocking remote-task control flow without a real adapter.
func NewLoopbackTransport() Transport {
	return &inMemoryTransport{}
}

func (lt *inMemoryTransport) Send(_ context.Context, env *WireEnvelope) error {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	if lt.closed {
		return ErrShuttingDown
	}
	lt.pending = append(lt.pending, env)
	return nil
}

func (lt *inMemoryTransport) Drain(_ context.Context) ([]*WireEnvelope, error) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	out := lt.pending
	lt.pending = nil
	return out, nil
}

func (lt *inMemoryTransport) Close() error {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.closed = true
	return nil
}
