package quotes

import (
	"context"
	"errors"
	"fmt"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/quote"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/metrics"
	"github.com/Matrixxboy/MatrixAlphaForge/pkg/models"
)

const yahooProvider = "yahoo"

// FetchFunc is the blocking provider call. It defaults to quote.Get.
type FetchFunc func(symbol string) (*finance.Quote, error)

type YahooOptions struct {
	RequestsPerSecond float64
	Burst             int
	BreakerFailures   uint32
	BreakerTimeout    time.Duration
	Fetch             FetchFunc
}

// YahooSource reads quotes from Yahoo Finance, rate limited and behind a circuit breaker.
type YahooSource struct {
	fetch   FetchFunc
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

var _ Source = (*YahooSource)(nil)

func NewYahooSource(opts YahooOptions, logger *zap.Logger) *YahooSource {
	fetch := opts.Fetch
	if fetch == nil {
		fetch = quote.Get
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}

	failures := opts.BreakerFailures
	if failures == 0 {
		failures = 5
	}

	y := &YahooSource{
		fetch:   fetch,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
	y.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        yahooProvider,
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// A symbol without data is a normal answer, not a provider fault.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoData)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
		},
	})
	return y
}

func (y *YahooSource) FetchQuote(ctx context.Context, symbol string) (models.Quote, error) {
	if err := y.limiter.Wait(ctx); err != nil {
		return models.Quote{}, err
	}

	res, err := y.breaker.Execute(func() (interface{}, error) {
		return y.call(ctx, symbol)
	})
	if err != nil {
		return models.Quote{}, fmt.Errorf("yahoo %s: %w", symbol, err)
	}
	return res.(models.Quote), nil
}

// State exposes the breaker state for health reporting.
func (y *YahooSource) State() gobreaker.State {
	return y.breaker.State()
}

// call runs the blocking provider request and gives up when ctx ends.
func (y *YahooSource) call(ctx context.Context, symbol string) (models.Quote, error) {
	type result struct {
		q   *finance.Quote
		err error
	}
	done := make(chan result, 1)
	go func() {
		q, err := y.fetch(symbol)
		done <- result{q, err}
	}()

	select {
	case <-ctx.Done():
		return models.Quote{}, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return models.Quote{}, r.err
		}
		return fromFinance(symbol, r.q)
	}
}

func fromFinance(symbol string, q *finance.Quote) (models.Quote, error) {
	if q == nil || q.RegularMarketPrice <= 0 {
		return models.Quote{}, ErrNoData
	}
	out := models.Quote{Symbol: symbol, LastPrice: q.RegularMarketPrice}
	if q.RegularMarketPreviousClose > 0 {
		prev := q.RegularMarketPreviousClose
		out.PreviousClose = &prev
	}
	return out, nil
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
