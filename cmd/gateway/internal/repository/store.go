package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Matrixxboy/MatrixAlphaForge/pkg/models"
)

// ErrNotFound is returned when a key is absent or expired.
var ErrNotFound = errors.New("repository: not found")

// PriceStore is the gateway's view of Redis: feed ticks written by the processor and
// quotes cached by the gateway itself.
type PriceStore interface {
	GetFeedTick(ctx context.Context, symbol string) (models.StockUpdate, error)
	GetQuote(ctx context.Context, symbol string) (models.Quote, error)
	SaveQuote(ctx context.Context, q models.Quote, ttl time.Duration) error
	Ping(ctx context.Context) error
	Close() error
}
