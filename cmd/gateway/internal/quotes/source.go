// Package quotes provides the quote sources the stream scheduler and REST handlers read from.
package quotes

import (
	"context"
	"errors"

	"github.com/Matrixxboy/MatrixAlphaForge/pkg/models"
)

// ErrNoData means the provider answered but had no usable price for the symbol.
var ErrNoData = errors.New("quotes: no data for symbol")

// Source fetches the latest quote for one symbol. Implementations must be safe for concurrent use
// and must honour ctx cancellation.
type Source interface {
	FetchQuote(ctx context.Context, symbol string) (models.Quote, error)
}
