// Package scheduler runs the price stream loop: every tick it fetches the symbols the
// connected clients need and hands the batch to the hub for fan-out.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/hub"
	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/metrics"
	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/quotes"
	"github.com/Matrixxboy/MatrixAlphaForge/pkg/models"
)

// Registry is the part of the hub the scheduler reads once per tick.
type Registry interface {
	Len() int
	AllInterestedSymbols() hub.SymbolSet
}

// Dispatcher fans a tick's batch out to clients.
type Dispatcher interface {
	Broadcast(updates []models.QuoteUpdate) hub.BroadcastResult
}

type Config struct {
	Interval        time.Duration // between polling ticks
	IdleInterval    time.Duration // between checks while no client is connected
	BackoffInterval time.Duration // after a tick that failed outright
	FetchTimeout    time.Duration // per symbol; zero means no timeout
	Concurrency     int           // max in-flight fetches per tick
}

// Scheduler owns the stream loop. It is started at most once and stops when the context
// passed to Start is cancelled.
type Scheduler struct {
	cfg        Config
	registry   Registry
	dispatcher Dispatcher
	source     quotes.Source
	logger     *zap.Logger
	clock      clockwork.Clock

	started atomic.Bool
	done    chan struct{}
}

func New(cfg Config, registry Registry, dispatcher Dispatcher, source quotes.Source, logger *zap.Logger, clock clockwork.Clock) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Scheduler{
		cfg:        cfg,
		registry:   registry,
		dispatcher: dispatcher,
		source:     source,
		logger:     logger,
		clock:      clock,
		done:       make(chan struct{}),
	}
}

// Start launches the loop and reports whether this call started it. Later calls are no-ops.
func (s *Scheduler) Start(ctx context.Context) bool {
	if !s.started.CompareAndSwap(false, true) {
		s.logger.Debug("Stream scheduler already running")
		return false
	}

	go s.run(ctx)

	s.logger.Info("Stream scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Int("concurrency", s.cfg.Concurrency),
	)
	return true
}

// Done is closed once the loop has exited.
func (s *Scheduler) Done() <-chan struct{} { return s.done }

// Wait blocks until the loop exits. It must only be called after Start.
func (s *Scheduler) Wait() { <-s.done }

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	for {
		wait := s.Step(ctx)

		select {
		case <-ctx.Done():
			s.logger.Info("Stream scheduler stopped")
			return
		case <-s.clock.After(wait):
		}
	}
}

// Step runs one tick and returns how long to sleep before the next one.
func (s *Scheduler) Step(ctx context.Context) (next time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Stream tick failed", zap.Any("panic", r), zap.Stack("stack"))
			metrics.StreamTicksTotal.WithLabelValues("error").Inc()
			next = s.cfg.BackoffInterval
		}
	}()

	if s.registry.Len() == 0 {
		metrics.StreamTicksTotal.WithLabelValues("idle").Inc()
		return s.cfg.IdleInterval
	}

	start := s.clock.Now()
	symbols := s.registry.AllInterestedSymbols().Sorted()
	metrics.StreamSymbolsTracked.Set(float64(len(symbols)))

	updates, failed := s.fetchAll(ctx, symbols)
	if ctx.Err() != nil {
		return s.cfg.Interval
	}

	var res hub.BroadcastResult
	if len(updates) > 0 {
		res = s.dispatcher.Broadcast(updates)
	}

	metrics.StreamTicksTotal.WithLabelValues("ok").Inc()
	metrics.StreamTickDuration.Observe(s.clock.Since(start).Seconds())

	s.logger.Debug("Stream tick complete",
		zap.Int("symbols", len(symbols)),
		zap.Int("fetched", len(updates)),
		zap.Int("fetch_errors", failed),
		zap.Int("delivered", res.Delivered),
		zap.Int("send_failures", res.Failed),
		zap.Duration("duration", s.clock.Since(start)),
	)
	return s.cfg.Interval
}

// fetchAll queries every symbol concurrently. The batch keeps the order of symbols and
// leaves out the ones that failed.
func (s *Scheduler) fetchAll(ctx context.Context, symbols []string) ([]models.QuoteUpdate, int) {
	results := make([]*models.QuoteUpdate, len(symbols))

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)

	var failed atomic.Int64
	for i, sym := range symbols {
		i, sym := i, sym
		g.Go(func() error {
			u, err := s.fetchOne(ctx, sym)
			if err != nil {
				s.logger.Warn("Quote fetch failed", zap.String("symbol", sym), zap.Error(err))
				metrics.StreamFetchErrorsTotal.Inc()
				failed.Add(1)
				return nil
			}
			results[i] = &u
			return nil
		})
	}
	_ = g.Wait()

	updates := make([]models.QuoteUpdate, 0, len(symbols))
	for _, u := range results {
		if u != nil {
			updates = append(updates, *u)
		}
	}
	return updates, int(failed.Load())
}

func (s *Scheduler) fetchOne(ctx context.Context, symbol string) (u models.QuoteUpdate, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("quote source panicked: %v", r)
		}
	}()

	if s.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.FetchTimeout)
		defer cancel()
	}

	q, err := s.source.FetchQuote(ctx, symbol)
	if err != nil {
		return models.QuoteUpdate{}, err
	}
	q.Symbol = symbol
	return models.NewQuoteUpdate(q), nil
}
