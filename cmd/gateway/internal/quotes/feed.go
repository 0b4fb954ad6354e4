package quotes

import (
	"context"
	"errors"
	"fmt"

	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/repository"
	"github.com/Matrixxboy/MatrixAlphaForge/pkg/models"
)

// TickReader reads the processor's latest tick for a symbol.
type TickReader interface {
	GetFeedTick(ctx context.Context, symbol string) (models.StockUpdate, error)
}

// FeedSource serves quotes from the simulated market feed the processor keeps in Redis.
type FeedSource struct {
	ticks TickReader
}

var _ Source = (*FeedSource)(nil)

func NewFeedSource(ticks TickReader) *FeedSource {
	return &FeedSource{ticks: ticks}
}

func (f *FeedSource) FetchQuote(ctx context.Context, symbol string) (models.Quote, error) {
	tick, err := f.ticks.GetFeedTick(ctx, symbol)
	if errors.Is(err, repository.ErrNotFound) {
		return models.Quote{}, ErrNoData
	}
	if err != nil {
		return models.Quote{}, fmt.Errorf("feed %s: %w", symbol, err)
	}
	if tick.Price <= 0 {
		return models.Quote{}, ErrNoData
	}
	q := tick.Quote()
	q.Symbol = symbol
	return q, nil
}
