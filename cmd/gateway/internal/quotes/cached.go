package quotes

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/metrics"
	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/repository"
	"github.com/Matrixxboy/MatrixAlphaForge/pkg/models"
)

// QuoteCache stores recently fetched quotes with a TTL.
type QuoteCache interface {
	GetQuote(ctx context.Context, symbol string) (models.Quote, error)
	SaveQuote(ctx context.Context, q models.Quote, ttl time.Duration) error
}

// CachedSource answers from the cache when it can and collapses concurrent misses for the
// same symbol into one upstream call. Cache failures fall through to the upstream source.
type CachedSource struct {
	next   Source
	cache  QuoteCache
	ttl    time.Duration
	group  singleflight.Group
	logger *zap.Logger
}

var _ Source = (*CachedSource)(nil)

func NewCachedSource(next Source, cache QuoteCache, ttl time.Duration, logger *zap.Logger) *CachedSource {
	return &CachedSource{next: next, cache: cache, ttl: ttl, logger: logger}
}

func (c *CachedSource) FetchQuote(ctx context.Context, symbol string) (models.Quote, error) {
	q, err := c.cache.GetQuote(ctx, symbol)
	switch {
	case err == nil:
		metrics.QuoteCacheTotal.WithLabelValues("hit").Inc()
		return q, nil
	case errors.Is(err, repository.ErrNotFound):
		metrics.QuoteCacheTotal.WithLabelValues("miss").Inc()
	default:
		metrics.QuoteCacheTotal.WithLabelValues("error").Inc()
		c.logger.Debug("Quote cache read failed", zap.String("symbol", symbol), zap.Error(err))
	}

	v, err, _ := c.group.Do(symbol, func() (any, error) {
		q, err := c.next.FetchQuote(ctx, symbol)
		if err != nil {
			return nil, err
		}
		if err := c.cache.SaveQuote(ctx, q, c.ttl); err != nil {
			c.logger.Debug("Quote cache write failed", zap.String("symbol", symbol), zap.Error(err))
		}
		return q, nil
	})
	if err != nil {
		return models.Quote{}, err
	}
	return v.(models.Quote), nil
}
