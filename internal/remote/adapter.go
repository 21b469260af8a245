package remote

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zkorenberg/tboard/internal/logger"
)

// defaultAdapterConcurrency bounds how many envelopes an Adapter processes
// at once when Config.Concurrency is left at zero, via a buffered semaphore.
const defaultAdapterConcurrency = 16

// Handler computes a response for an outbound envelope. Reference
// adapters plug in whatever external system integration they need; the
// board only cares that every envelope it sends eventually comes back
// through the inbound stream (spec.md §6 adapter contract).
type Handler func(ctx context.Context, message string) []byte

// Adapter is the external-process counterpart to RedisTransport: it
// consumes the outbound stream the board writes to and produces the
// inbound stream the board reads from. It is not used by the board
// itself — cmd/remote-adapter runs it as a separate process, exactly the
// "external adapter" spec.md §6 describes as living outside the board's
// process boundary.
type Adapter struct {
	client  *redis.Client
	cfg     Config
	handler Handler

	sem chan struct{} // bounds concurrent handleMessage calls
	wg  sync.WaitGroup
}

// NewAdapter builds an Adapter over the same two streams a RedisTransport
// uses, but with inbound/outbound read from the adapter's point of view.
func NewAdapter(cfg Config, handler Handler) (*Adapter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	for _, stream := range []string{cfg.OutboundName, cfg.InboundName} {
		err := client.XGroupCreateMkStream(ctx, stream, cfg.ConsumerGroup, "0").Err()
		if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
			return nil, err
		}
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultAdapterConcurrency
	}

	return &Adapter{
		client:  client,
		cfg:     cfg,
		handler: handler,
		sem:     make(chan struct{}, concurrency),
	}, nil
}

// Run blocks, consuming the outbound stream and publishing a response for
// every envelope (blocking or not — the adapter doesn't distinguish; only
// the board cares whether the caller was parked waiting on one). Messages
// are handled concurrently up to Config.Concurrency in flight at once, so
// one slow handler call doesn't stall the rest of the batch.
func (a *Adapter) Run(ctx context.Context) error {
	defer a.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		streams, err := a.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    a.cfg.ConsumerGroup,
			Consumer: a.cfg.Consumer,
			Streams:  []string{a.cfg.OutboundName, ">"},
			Count:    10,
			Block:    a.cfg.BlockTimeout,
		}).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			logger.Error().Err(err).Msg("remote adapter: read failed")
			continue
		}
		if len(streams) == 0 {
			continue
		}

		for _, msg := range streams[0].Messages {
			select {
			case a.sem <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}

			a.wg.Add(1)
			go func(msg redis.XMessage) {
				defer a.wg.Done()
				defer func() { <-a.sem }()
				a.handleMessage(ctx, msg)
			}(msg)
		}
	}
}

func (a *Adapter) handleMessage(ctx context.Context, msg redis.XMessage) {
	defer a.client.XAck(ctx, a.cfg.OutboundName, a.cfg.ConsumerGroup, msg.ID)

	raw, ok := msg.Values["data"].(string)
	if !ok {
		logger.Warn().Str("message_id", msg.ID).Msg("remote adapter: malformed outbound message")
		return
	}

	var se streamEnvelope
	if err := json.Unmarshal([]byte(raw), &se); err != nil {
		logger.Warn().Err(err).Msg("remote adapter: failed to unmarshal envelope")
		return
	}

	se.Response = a.handler(ctx, se.Message)

	data, err := json.Marshal(se)
	if err != nil {
		logger.Error().Err(err).Msg("remote adapter: failed to marshal response")
		return
	}

	if _, err := a.client.XAdd(ctx, &redis.XAddArgs{
		Stream: a.cfg.InboundName,
		Values: map[string]interface{}{"data": string(data)},
	}).Result(); err != nil {
		logger.Error().Err(err).Msg("remote adapter: failed to publish response")
	}
}

// Close releases the adapter's Redis connection.
func (a *Adapter) Close() error {
	return a.client.Close()
}

// EchoHandler is a trivial reference Handler: it returns the message it
// was given, unchanged. Useful for smoke-testing the transport without a
// real external system behind it.
func EchoHandler(_ context.Context, message string) []byte {
	return []byte(message)
}
