package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Matrixxboy/MatrixAlphaForge/cmd/generator/internal/generator"
	"github.com/Matrixxboy/MatrixAlphaForge/pkg/config"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()

	admin := &kafka.Client{Addr: kafka.TCP(cfg.Kafka.Brokers...), Timeout: 10 * time.Second}
	setupCtx, cancelSetup := context.WithTimeout(ctx, 30*time.Second)
	// Best effort: the writer surfaces a missing topic on its own.
	if err := generator.EnsureTopic(setupCtx, admin, clock, logger, cfg.Kafka.Topic, cfg.Generator.Partitions); err != nil {
		logger.Warn("Topic provisioning failed", zap.String("topic", cfg.Kafka.Topic), zap.Error(err))
	}
	cancelSetup()

	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.Hash{}, // same symbol, same partition
		// Send batches to reduce network IO
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
	}

	rnd := rand.New(rand.NewSource(clock.Now().UnixNano()))
	gen := generator.NewStockGenerator(logger, writer, cfg.Generator.Tickers, generator.DefaultBasePrices, rnd, clock, cfg.Generator.Interval)

	logger.Info("Generator starting", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	gen.Run(ctx)

	logger.Info("Shutdown signal received")

	// Async writer: Close flushes the buffer
	if err := writer.Close(); err != nil {
		logger.Error("Error closing Kafka writer", zap.Error(err))
	} else {
		logger.Info("Kafka writer closed cleanly")
	}
}
