package board

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/zkorenberg/tboard/internal/logger"
)

// Watchdog force-kills the board if no task completes or yields for
// longer than its timeout (spec.md §5: "a watchdog thread that triggers
// kill after 10s of no progress"). Progress is any executor completing a
// resume cycle, whether the task yielded or finished.
type Watchdog struct {
	board    *Board
	timeout  time.Duration
	progress atomic.Int64
	stop     chan struct{}
	stopOnce sync.Once
}

func newWatchdog(b *Board, timeout time.Duration) *Watchdog {
	return &Watchdog{board: b, timeout: timeout, stop: make(chan struct{})}
}

// markProgress is called by every executor after each resume cycle.
func (w *Watchdog) markProgress() {
	w.progress.Add(1)
}

// run polls the progress counter at a quarter of the timeout and triggers
// Kill once it has seen no movement for a full timeout window.
func (w *Watchdog) run() {
	interval := w.timeout / 4
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := w.progress.Load()
	var stalledFor time.Duration

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			cur := w.progress.Load()
			if cur == last {
				stalledFor += interval
				if stalledFor >= w.timeout {
					logger.Error().Dur("stalled_for", stalledFor).Msg("watchdog: no progress, killing board")
					w.board.Kill()
					return
				}
				continue
			}
			last = cur
			stalledFor = 0
		}
	}
}

// Stop halts the watchdog without touching the board (used by Destroy
// once the board is already being torn down).
func (w *Watchdog) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}
