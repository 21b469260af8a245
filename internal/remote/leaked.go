package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zkorenberg/tboard/internal/metrics"
)

const (
	leakedStreamName = "tboard:remote:leaked"
	leakedSetName    = "tboard:remote:leaked:set"
)

// LeakedEntry records an envelope whose originating task never got
// re-admitted before the board shut down (spec.md §9, Open Question
// about leaked envelopes on shutdown): the board's pending map is torn
// down by Destroy before a late adapter response can resolve it, so
// without a ledger that work would vanish without a trace.
type LeakedEntry struct {
	EnvelopeID string    `json:"envelope_id"`
	Message    string    `json:"message"`
	Blocking   bool      `json:"blocking"`
	LeakedAt   time.Time `json:"leaked_at"`
}

// LeakedLedger persists LeakedEntry records to Redis using a dead-letter
// pattern: a stream for ordered history plus a set for quick membership
// checks.
type LeakedLedger struct {
	client *redis.Client
}

// NewLeakedLedger wraps an existing Redis client (normally the one a
// RedisTransport already holds) with the leaked-envelope ledger.
func NewLeakedLedger(client *redis.Client) *LeakedLedger {
	return &LeakedLedger{client: client}
}

// Record appends an entry for an envelope that was abandoned at shutdown.
func (l *LeakedLedger) Record(ctx context.Context, entry LeakedEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("remote: failed to marshal leaked entry: %w", err)
	}

	_, err = l.client.XAdd(ctx, &redis.XAddArgs{
		Stream: leakedStreamName,
		Values: map[string]interface{}{
			"envelope_id": entry.EnvelopeID,
			"data":        string(data),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("remote: failed to append to leaked stream: %w", err)
	}

	l.client.SAdd(ctx, leakedSetName, entry.EnvelopeID)
	metrics.SetRemoteEnvelopesLeaked(float64(l.count(ctx)))
	return nil
}

func (l *LeakedLedger) count(ctx context.Context) int64 {
	n, _ := l.client.SCard(ctx, leakedSetName).Result()
	return n
}

// List returns up to count leaked entries, most recent first.
func (l *LeakedLedger) List(ctx context.Context, count int64) ([]LeakedEntry, error) {
	messages, err := l.client.XRevRangeN(ctx, leakedStreamName, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("remote: failed to list leaked entries: %w", err)
	}

	entries := make([]LeakedEntry, 0, len(messages))
	for _, msg := range messages {
		raw, ok := msg.Values["data"].(string)
		if !ok {
			continue
		}
		var e LeakedEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}
