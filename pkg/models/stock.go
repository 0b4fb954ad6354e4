package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// StockUpdate represents a single market tick for a stock symbol
type StockUpdate struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	PrevClose float64 `json:"prev_close,omitempty"`
	Timestamp int64   `json:"timestamp"` // unix micro
	SeqID     int64   `json:"seq_id"`    // monotonic counter per symbol
}

// Quote converts a feed tick into a provider quote. A zero PrevClose means "unknown".
func (u StockUpdate) Quote() Quote {
	q := Quote{Symbol: u.Symbol, LastPrice: u.Price}
	if u.PrevClose != 0 {
		prev := u.PrevClose
		q.PreviousClose = &prev
	}
	return q
}

// Quote is what a quote provider returns for one symbol.
type Quote struct {
	Symbol        string   `json:"symbol"`
	LastPrice     float64  `json:"last_price"`
	PreviousClose *float64 `json:"previous_close,omitempty"`
}

// QuoteUpdate is one entry of a PRICE_UPDATE frame.
type QuoteUpdate struct {
	Symbol        string  `json:"ticker"`
	Price         float64 `json:"price"`
	ChangePercent float64 `json:"-"`
	Change        string  `json:"change"` // e.g. "1.23%", "5.0%"
	Positive      bool    `json:"positive"`
}

// ChangePercent is (last-prev)/prev*100, or 0 when prev is absent or zero.
func ChangePercent(last float64, prevClose *float64) float64 {
	if prevClose == nil || *prevClose == 0 {
		return 0
	}
	return (last - *prevClose) / *prevClose * 100
}

// NewQuoteUpdate rounds price and change to two decimals for the wire. Positive follows the
// unrounded change, so a tiny loss that rounds to zero is still not positive.
func NewQuoteUpdate(q Quote) QuoteUpdate {
	raw := ChangePercent(q.LastPrice, q.PreviousClose)
	pct := decimal.NewFromFloat(raw).Round(2)
	return QuoteUpdate{
		Symbol:        q.Symbol,
		Price:         decimal.NewFromFloat(q.LastPrice).Round(2).InexactFloat64(),
		ChangePercent: pct.InexactFloat64(),
		Change:        formatPercent(pct),
		Positive:      raw >= 0,
	}
}

// formatPercent keeps at least one fractional digit: 5 -> "5.0%", 2.94 -> "2.94%".
func formatPercent(d decimal.Decimal) string {
	s := d.String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s + "%"
}
