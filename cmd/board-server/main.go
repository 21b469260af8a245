package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zkorenberg/tboard/internal/api"
	"github.com/zkorenberg/tboard/internal/api/handlers"
	"github.com/zkorenberg/tboard/internal/board"
	"github.com/zkorenberg/tboard/internal/config"
	"github.com/zkorenberg/tboard/internal/events"
	"github.com/zkorenberg/tboard/internal/logger"
	"github.com/zkorenberg/tboard/internal/remote"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, os.Getenv("ENV") != "production")
	log := logger.Get()
	log.Info().Msg("Starting board server...")

	redisClient := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close Redis client")
		}
	}()

	publisher := events.NewRedisPubSub(redisClient)
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close event publisher")
		}
	}()

	ledger := remote.NewLeakedLedger(redisClient)

	transport, err := remote.NewRedisTransport(remote.Config{
		Addr:          cfg.Redis.Addr,
		Password:      cfg.Redis.Password,
		DB:            cfg.Redis.DB,
		OutboundName:  cfg.Remote.OutboundStream,
		InboundName:   cfg.Remote.InboundStream,
		ConsumerGroup: cfg.Remote.ConsumerGroup,
		Consumer:      cfg.Remote.Consumer,
		BlockTimeout:  cfg.Remote.BlockTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create remote transport")
	}
	defer func() {
		if err := transport.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close remote transport")
		}
	}()

	brd, err := board.Create(board.Config{
		SecondaryCount:     cfg.Board.SecondaryCount,
		MaxConcurrentTasks: cfg.Board.MaxConcurrentTasks,
		Transport:          transport,
		OnLeakedEnvelope: func(envelopeID, message string, blocking bool) {
			entry := remote.LeakedEntry{
				EnvelopeID: envelopeID,
				Message:    message,
				Blocking:   blocking,
				LeakedAt:   time.Now().UTC(),
			}
			if err := ledger.Record(context.Background(), entry); err != nil {
				log.Error().Err(err).Str("envelope_id", envelopeID).Msg("failed to record leaked envelope")
			}
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create board")
	}

	if err := brd.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start board")
	}

	registry := handlers.FuncRegistry{
		"echo":    echoFunc,
		"sleep":   sleepFunc,
		"compute": computeFunc,
		"fail":    failFunc,
	}

	server := api.NewServer(cfg, brd, registry, ledger, publisher)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	server.Start(ctx)

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down board server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	server.Stop()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	brd.Destroy()

	log.Info().Msg("Board server stopped")
}

// Reference task functions registered for POST /tasks fn_name dispatch.

func echoFunc(ctx context.Context) {
	args := board.Args(ctx)
	logger.Info().Interface("args", args).Msg("echo task running")
}

func sleepFunc(ctx context.Context) {
	duration := 1 * time.Second
	if m, ok := board.Args(ctx).(map[string]interface{}); ok {
		if d, ok := m["duration_ms"].(float64); ok {
			duration = time.Duration(d) * time.Millisecond
		}
	}

	select {
	case <-time.After(duration):
	case <-ctx.Done():
	}
}

func computeFunc(ctx context.Context) {
	iterations := 1000000
	if m, ok := board.Args(ctx).(map[string]interface{}); ok {
		if n, ok := m["iterations"].(float64); ok {
			iterations = int(n)
		}
	}

	sum := 0
	for i := 0; i < iterations; i++ {
		select {
		case <-ctx.Done():
			return
		default:
			sum += i
		}
	}

	logger.Debug().Int("result", sum).Msg("compute task finished")
}

func failFunc(ctx context.Context) {
	panic("intentional failure for testing")
}
