// Package remote implements the board's remote-task rendezvous transport
// across a process boundary (spec.md §4.5, §4.6), the way the reference
// source's msg_t queues hand envelopes to an external adapter process.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zkorenberg/tboard/internal/board"
	"github.com/zkorenberg/tboard/internal/logger"
	"github.com/zkorenberg/tboard/internal/metrics"
)

// streamEnvelope is the wire format stored in Redis: the fields of
// board.WireEnvelope plus nothing else, since Redis Streams fields are
// already a flat string map.
type streamEnvelope struct {
	ID       string `json:"id"`
	Message  string `json:"message"`
	Response []byte `json:"response,omitempty"`
	Blocking bool   `json:"blocking"`
}

// Config configures a RedisTransport.
type Config struct {
	Addr          string
	Password      string
	DB            int
	OutboundName  string // stream the board writes to, the adapter reads from
	InboundName   string // stream the adapter writes to, the board reads from
	ConsumerGroup string
	Consumer      string
	BlockTimeout  time.Duration
	// Concurrency bounds how many envelopes an Adapter processes at once.
	// Unused by RedisTransport itself; zero means Adapter picks its own
	// default. Has no bearing on the board side.
	Concurrency int
}

// RedisTransport implements board.Transport on top of two Redis Streams,
// using the standard XAdd/XReadGroup/XAck consumer-group pattern, here
// simplified to a single outbound and a single inbound stream since the
// board has no notion of stream priority.
type RedisTransport struct {
	client   *redis.Client
	cfg      Config
	outGroup string
}

// NewRedisTransport connects to Redis and ensures both streams/groups
// exist before returning.
func NewRedisTransport(cfg Config) (*RedisTransport, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("remote: failed to connect to redis: %w", err)
	}

	rt := &RedisTransport{client: client, cfg: cfg, outGroup: cfg.ConsumerGroup}

	for _, stream := range []string{cfg.OutboundName, cfg.InboundName} {
		err := client.XGroupCreateMkStream(ctx, stream, cfg.ConsumerGroup, "0").Err()
		if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
			return nil, fmt.Errorf("remote: failed to create consumer group for %s: %w", stream, err)
		}
	}

	return rt, nil
}

// Send pushes an outbound envelope for the external adapter to consume
// (spec.md §4.5: "the board pushes the envelope onto the outbound queue").
func (rt *RedisTransport) Send(ctx context.Context, env *board.WireEnvelope) error {
	start := time.Now()
	data, err := json.Marshal(streamEnvelope{ID: env.ID, Message: env.Message, Blocking: env.Blocking})
	if err != nil {
		return fmt.Errorf("remote: failed to marshal envelope: %w", err)
	}

	_, err = rt.client.XAdd(ctx, &redis.XAddArgs{
		Stream: rt.cfg.OutboundName,
		Values: map[string]interface{}{"data": string(data)},
	}).Result()
	metrics.RecordRedisOperation("xadd_outbound", time.Since(start).Seconds())
	if err != nil {
		metrics.RecordRedisError("xadd_outbound")
		return fmt.Errorf("remote: failed to add to outbound stream: %w", err)
	}
	return nil
}

// Drain reads whatever has arrived on the inbound stream since the last
// drain, non-blocking, and acknowledges every message it successfully
// parses (spec.md §4.6: "the sequencer drains every inbound envelope").
func (rt *RedisTransport) Drain(ctx context.Context) ([]*board.WireEnvelope, error) {
	start := time.Now()
	streams, err := rt.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    rt.cfg.ConsumerGroup,
		Consumer: rt.cfg.Consumer,
		Streams:  []string{rt.cfg.InboundName, ">"},
		Count:    100,
		Block:    -1, // go-redis sends BLOCK 0 (wait forever) for 0; a negative value omits BLOCK
	}).Result()
	metrics.RecordRedisOperation("xreadgroup_inbound", time.Since(start).Seconds())

	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		metrics.RecordRedisError("xreadgroup_inbound")
		return nil, fmt.Errorf("remote: failed to read inbound stream: %w", err)
	}
	if len(streams) == 0 {
		return nil, nil
	}

	var out []*board.WireEnvelope
	for _, msg := range streams[0].Messages {
		raw, ok := msg.Values["data"].(string)
		if !ok {
			logger.Warn().Str("message_id", msg.ID).Msg("remote: malformed inbound message, acking and dropping")
			rt.client.XAck(ctx, rt.cfg.InboundName, rt.cfg.ConsumerGroup, msg.ID)
			continue
		}

		var se streamEnvelope
		if err := json.Unmarshal([]byte(raw), &se); err != nil {
			logger.Warn().Err(err).Str("message_id", msg.ID).Msg("remote: failed to unmarshal inbound envelope")
			rt.client.XAck(ctx, rt.cfg.InboundName, rt.cfg.ConsumerGroup, msg.ID)
			continue
		}

		out = append(out, &board.WireEnvelope{ID: se.ID, Message: se.Message, Response: se.Response, Blocking: se.Blocking})
		rt.client.XAck(ctx, rt.cfg.InboundName, rt.cfg.ConsumerGroup, msg.ID)
	}

	return out, nil
}

// Close closes the underlying Redis connection.
func (rt *RedisTransport) Close() error {
	return rt.client.Close()
}

// Client exposes the underlying Redis client, for the reference adapter
// and for admin diagnostics.
func (rt *RedisTransport) Client() *redis.Client {
	return rt.client
}
