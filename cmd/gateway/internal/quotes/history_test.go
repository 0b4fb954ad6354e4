package quotes_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/quotes"
)

var historyNow = time.Date(2026, time.October, 19, 10, 0, 0, 0, time.UTC)

func bar(day int, open, high, low, close float64, volume int) finance.ChartBar {
	return finance.ChartBar{
		Open:      decimal.NewFromFloat(open),
		High:      decimal.NewFromFloat(high),
		Low:       decimal.NewFromFloat(low),
		Close:     decimal.NewFromFloat(close),
		Volume:    volume,
		Timestamp: int(time.Date(2026, time.October, day, 3, 45, 0, 0, time.UTC).Unix()),
	}
}

func closesChart(closes []float64) quotes.ChartFunc {
	return func(*chart.Params) ([]finance.ChartBar, error) {
		bars := make([]finance.ChartBar, len(closes))
		for i, c := range closes {
			bars[i] = finance.ChartBar{Close: decimal.NewFromFloat(c)}
		}
		return bars, nil
	}
}

func TestYahooHistory_MapsBars(t *testing.T) {
	var got *chart.Params
	h := quotes.NewYahooHistory(func(p *chart.Params) ([]finance.ChartBar, error) {
		got = p
		return []finance.ChartBar{
			bar(16, 3401.234, 3450.5, 3390, 3440.777, 1200000),
			bar(17, 3440, 3460, 3420.111, 3455.555, 900000),
		}, nil
	}, clockwork.NewFakeClockAt(historyNow), 0)

	bars, err := h.History(context.Background(), "TCS.NS", "1mo")
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, "TCS.NS", got.Symbol)
	assert.Equal(t, "1d", string(got.Interval))
	assert.Equal(t, 9, got.Start.Month)
	assert.Equal(t, 19, got.Start.Day)
	assert.Equal(t, 2026, got.Start.Year)

	assert.Equal(t, []quotes.Bar{
		{Date: "2026-10-16", Open: 3401.23, High: 3450.5, Low: 3390, Close: 3440.78, Volume: 1200000},
		{Date: "2026-10-17", Open: 3440, High: 3460, Low: 3420.11, Close: 3455.56, Volume: 900000},
	}, bars)
}

func TestYahooHistory_Periods(t *testing.T) {
	cases := []struct {
		period string
		month  int
		day    int
		year   int
	}{
		{"5d", 10, 14, 2026},
		{"6mo", 4, 19, 2026},
		{"1y", 10, 19, 2025},
		{"ytd", 1, 1, 2026},
	}
	for _, tc := range cases {
		t.Run(tc.period, func(t *testing.T) {
			var got *chart.Params
			h := quotes.NewYahooHistory(func(p *chart.Params) ([]finance.ChartBar, error) {
				got = p
				return []finance.ChartBar{bar(1, 1, 1, 1, 1, 1)}, nil
			}, clockwork.NewFakeClockAt(historyNow), 0)

			_, err := h.History(context.Background(), "^NSEI", tc.period)
			require.NoError(t, err)
			assert.Equal(t, []int{tc.year, tc.month, tc.day}, []int{got.Start.Year, got.Start.Month, got.Start.Day})
		})
	}
}

func TestYahooHistory_InvalidPeriod(t *testing.T) {
	called := false
	h := quotes.NewYahooHistory(func(*chart.Params) ([]finance.ChartBar, error) {
		called = true
		return nil, nil
	}, clockwork.NewFakeClockAt(historyNow), 0)

	_, err := h.History(context.Background(), "TCS.NS", "7w")
	assert.ErrorIs(t, err, quotes.ErrInvalidPeriod)
	assert.False(t, called)
}

func TestYahooHistory_EmptyAndFailing(t *testing.T) {
	empty := quotes.NewYahooHistory(closesChart(nil), clockwork.NewFakeClockAt(historyNow), 0)
	_, err := empty.History(context.Background(), "NOPE", "1mo")
	assert.ErrorIs(t, err, quotes.ErrNoData)

	boom := errors.New("chart down")
	failing := quotes.NewYahooHistory(func(*chart.Params) ([]finance.ChartBar, error) {
		return nil, boom
	}, clockwork.NewFakeClockAt(historyNow), 0)
	_, err = failing.History(context.Background(), "TCS.NS", "1mo")
	assert.ErrorIs(t, err, boom)
}

func TestYahooHistory_AnalyzeBuySignal(t *testing.T) {
	// Long uptrend then a two-week pullback that stays above the 50-day average.
	var closes []float64
	for v := 100.0; v <= 190; v += 2 {
		closes = append(closes, v)
	}
	for v := 189.0; v >= 176; v-- {
		closes = append(closes, v)
	}
	require.Len(t, closes, 60)

	h := quotes.NewYahooHistory(closesChart(closes), clockwork.NewFakeClockAt(historyNow), 0)
	a, err := h.Analyze(context.Background(), "RELIANCE.NS")
	require.NoError(t, err)

	assert.Equal(t, quotes.Analysis{Ticker: "RELIANCE.NS", Price: 176, RSI: 0, SMA50: 162.7, Signal: "BUY"}, a)
}

func TestYahooHistory_AnalyzeHoldsOnSteadyRise(t *testing.T) {
	var closes []float64
	for i := 0; i < 60; i++ {
		closes = append(closes, 100+float64(i))
	}

	h := quotes.NewYahooHistory(closesChart(closes), clockwork.NewFakeClockAt(historyNow), 0)
	a, err := h.Analyze(context.Background(), "TCS.NS")
	require.NoError(t, err)

	assert.Equal(t, 100.0, a.RSI)
	assert.Equal(t, 134.5, a.SMA50)
	assert.Equal(t, "HOLD", a.Signal)
}

func TestYahooHistory_AnalyzeNeedsFiftyCloses(t *testing.T) {
	h := quotes.NewYahooHistory(closesChart(make([]float64, 30)), clockwork.NewFakeClockAt(historyNow), 0)
	_, err := h.Analyze(context.Background(), "NEW.NS")
	assert.ErrorIs(t, err, quotes.ErrNoData)
}
