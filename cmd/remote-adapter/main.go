package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/zkorenberg/tboard/internal/config"
	"github.com/zkorenberg/tboard/internal/logger"
	"github.com/zkorenberg/tboard/internal/remote"
)

// remote-adapter is the reference external-process counterpart to the
// board's remote-task transport (spec.md §4.5, §4.6): it consumes the
// envelopes the board pushes to the outbound stream and answers them on
// the inbound stream. Operators swap EchoHandler for whatever downstream
// integration the task-board's remote tasks actually target.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, os.Getenv("ENV") != "production")
	log := logger.Get()
	log.Info().Msg("Starting remote adapter...")

	policy := remote.DefaultRetryPolicy()
	handler := remote.RetryingHandler(policy, func(ctx context.Context, message string) ([]byte, error) {
		return remote.EchoHandler(ctx, message), nil
	})

	adapter, err := remote.NewAdapter(remote.Config{
		Addr:          cfg.Redis.Addr,
		Password:      cfg.Redis.Password,
		DB:            cfg.Redis.DB,
		OutboundName:  cfg.Remote.OutboundStream,
		InboundName:   cfg.Remote.InboundStream,
		ConsumerGroup: cfg.Remote.ConsumerGroup,
		Consumer:      cfg.Remote.Consumer,
		BlockTimeout:  cfg.Remote.BlockTimeout,
		Concurrency:   cfg.Remote.Concurrency,
	}, handler)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create remote adapter")
	}
	defer func() {
		if err := adapter.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close remote adapter")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- adapter.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("Shutting down remote adapter...")
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("remote adapter stopped")
		}
	}

	log.Info().Msg("Remote adapter stopped")
}
