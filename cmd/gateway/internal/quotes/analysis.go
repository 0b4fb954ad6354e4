package quotes

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	rsiWindow = 14
	smaWindow = 50
)

// Analysis is a daily-close technical snapshot used by the assistant.
type Analysis struct {
	Ticker string  `json:"ticker"`
	Price  float64 `json:"price"`
	RSI    float64 `json:"rsi"`
	SMA50  float64 `json:"sma_50"`
	Signal string  `json:"signal"` // BUY, SELL or HOLD
}

// Analyze computes RSI(14) and SMA(50) over six months of daily closes.
func (h *YahooHistory) Analyze(ctx context.Context, symbol string) (Analysis, error) {
	bars, err := h.History(ctx, symbol, "6mo")
	if err != nil {
		return Analysis{}, err
	}
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return analyzeCloses(symbol, closes)
}

func analyzeCloses(symbol string, closes []float64) (Analysis, error) {
	if len(closes) < smaWindow || len(closes) < rsiWindow+1 {
		return Analysis{}, fmt.Errorf("%w: %d closes for %s", ErrNoData, len(closes), symbol)
	}

	price := closes[len(closes)-1]
	rsi := relativeStrength(closes[len(closes)-rsiWindow-1:])
	sma := mean(closes[len(closes)-smaWindow:])

	signal := "HOLD"
	switch {
	case rsi < 30 && price > sma:
		signal = "BUY"
	case rsi > 70 && price < sma:
		signal = "SELL"
	}

	return Analysis{
		Ticker: symbol,
		Price:  round2(price),
		RSI:    round2(rsi),
		SMA50:  round2(sma),
		Signal: signal,
	}, nil
}

// relativeStrength uses simple averages of gains and losses over consecutive closes.
func relativeStrength(closes []float64) float64 {
	var gain, loss float64
	for i := 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	switch {
	case gain == 0 && loss == 0:
		return 50
	case loss == 0:
		return 100
	}
	rs := gain / loss
	return 100 - 100/(1+rs)
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func round2(f float64) float64 {
	return decimal.NewFromFloat(f).Round(2).InexactFloat64()
}
