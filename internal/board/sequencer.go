package board

import (
	"context"
	"time"

	"github.com/zkorenberg/tboard/internal/logger"
	"github.com/zkorenberg/tboard/internal/metrics"
)

// sequencerPollInterval bounds how long a blocking remote task can sit
// resolved-but-not-yet-re-admitted before the sequencer notices it.
const sequencerPollInterval = 5 * time.Millisecond

// sequencer drains the inbound message queue and re-admits the tasks that
// originated each envelope, exactly as spec.md §4.6 describes: "it drains
// every inbound envelope, looks up the originating task by ID, and places
// it back on its origin queue (head if priority, tail otherwise)".
type sequencer struct {
	board *Board
}

func newSequencer(b *Board) *sequencer {
	return &sequencer{board: b}
}

func (s *sequencer) run(ctx context.Context) {
	ticker := time.NewTicker(sequencerPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.drainOnce(context.Background())
			return
		case <-ticker.C:
			s.drainOnce(ctx)
		}
	}
}

// drainOnce performs a single non-blocking drain-and-readmit pass.
func (s *sequencer) drainOnce(ctx context.Context) {
	b := s.board
	envs, err := b.transport.Drain(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("sequencer drain failed")
		return
	}

	for _, we := range envs {
		b.pendingMu.Lock()
		env, ok := b.pending[we.ID]
		if ok {
			delete(b.pending, we.ID)
			if env.blocking {
				b.resolvedResponses[we.ID] = we.Response
			}
		}
		b.pendingMu.Unlock()

		if !ok {
			logger.Warn().Str("envelope_id", we.ID).Msg("sequencer: unknown envelope id, dropping")
			continue
		}
		metrics.RecordRemoteEnvelopeResolved()

		t := env.callingTask
		if t == nil {
			continue
		}
		if !env.blocking {
			// The non-blocking caller was already re-admitted by the
			// executor at yield time; nothing further to do but note the
			// round trip completed.
			continue
		}
		b.requeueAfterYield(t)
	}
}
