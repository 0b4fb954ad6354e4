package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/api"
	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/gateway"
	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/hub"
	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/llm"
	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/news"
	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/quotes"
	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/repository"
	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/scheduler"
	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/watchlist"
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

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	store := repository.NewRedisStore(rdb)
	defer store.Close()

	// Redis only backs the cache and snapshots, so the gateway still starts without it.
	if err := store.Ping(ctx); err != nil {
		logger.Warn("Redis unreachable, quote cache degraded", zap.Error(err))
	}

	source := newQuoteSource(cfg, store, logger)

	wsHub := hub.NewHub(cfg.Stream.BenchmarkSymbols, logger,
		hub.WithEvictAfterSendFailures(cfg.Stream.EvictAfterSendFailures))

	sched := scheduler.New(scheduler.Config{
		Interval:        cfg.Stream.Interval,
		IdleInterval:    cfg.Stream.IdleInterval,
		BackoffInterval: cfg.Stream.BackoffInterval,
		FetchTimeout:    cfg.Stream.FetchTimeout,
		Concurrency:     cfg.Stream.FetchConcurrency,
	}, wsHub, wsHub, source, logger, clockwork.NewRealClock())
	sched.Start(ctx)

	var wl api.WatchlistStore
	if cfg.Database.URL != "" {
		pool, err := watchlist.Connect(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("Failed to connect to Postgres", zap.Error(err))
		}
		defer pool.Close()

		pg := watchlist.NewPostgresStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal("Failed to prepare watchlist schema", zap.Error(err))
		}
		wl = pg
	} else {
		logger.Info("No database URL, watchlist API disabled")
	}

	headlines := news.NewGoogleNews(cfg.News.FeedURL, cfg.News.MaxItems, cfg.News.Timeout)
	history := quotes.NewYahooHistory(nil, clockwork.NewRealClock(), cfg.Quotes.RequestsPerSecond)

	var chat api.ChatClient
	if cfg.LLM.APIKey != "" {
		chat = llm.New(cfg.LLM, llm.Tools{Quotes: source, News: headlines, Analyst: history}, logger)
	} else {
		logger.Info("No LLM API key, chat API disabled")
	}

	streamOpts := gateway.Options{
		SendBuffer:     cfg.Stream.SendBuffer,
		WriteWait:      cfg.Stream.WriteWait,
		PongWait:       cfg.Stream.PongWait,
		PingPeriod:     cfg.Stream.PingPeriod,
		MaxMessageSize: cfg.Stream.MaxMessageSize,
	}

	router := api.NewRouter(api.Config{
		Logger:      logger,
		CORSOrigins: cfg.App.CORSOrigins,
		Quotes:      source,
		Indices:     cfg.Stream.BenchmarkSymbols,
		Watchlist:   wl,
		News:        headlines,
		History:     history,
		Chat:        chat,
		Health:      store,
		Stream:      gateway.Handler(wsHub, logger, streamOpts),
	})

	srv := &http.Server{
		Addr:              cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server Started", zap.String("port", cfg.App.Port), zap.String("env", cfg.App.Env),
			zap.String("quote_provider", cfg.Quotes.Provider))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP Error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	sched.Wait()
	logger.Info("Shutdown Complete")
}

// newQuoteSource picks the provider and puts the Redis quote cache in front of it.
func newQuoteSource(cfg *config.Config, store *repository.RedisStore, logger *zap.Logger) quotes.Source {
	var src quotes.Source
	switch cfg.Quotes.Provider {
	case "feed":
		src = quotes.NewFeedSource(store)
	default:
		src = quotes.NewYahooSource(quotes.YahooOptions{
			RequestsPerSecond: cfg.Quotes.RequestsPerSecond,
			Burst:             cfg.Quotes.Burst,
			BreakerFailures:   cfg.Quotes.BreakerFailures,
			BreakerTimeout:    cfg.Quotes.BreakerTimeout,
		}, logger)
	}

	if cfg.Quotes.CacheTTL <= 0 {
		return src
	}
	return quotes.NewCachedSource(src, store, cfg.Quotes.CacheTTL, logger)
}
