package quotes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"golang.org/x/time/rate"
)

var ErrInvalidPeriod = errors.New("quotes: invalid history period")

const dailyInterval = datetime.Interval("1d")

// Bar is one daily candle, rounded to two decimals.
type Bar struct {
	Date   string  `json:"date"` // YYYY-MM-DD
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// ChartFunc runs a chart query and returns its bars. It defaults to chart.Get.
type ChartFunc func(params *chart.Params) ([]finance.ChartBar, error)

// YahooHistory serves daily candles from the Yahoo chart API. Nothing is stored.
type YahooHistory struct {
	chart   ChartFunc
	clock   clockwork.Clock
	limiter *rate.Limiter
}

func NewYahooHistory(fetch ChartFunc, clock clockwork.Clock, requestsPerSecond float64) *YahooHistory {
	if fetch == nil {
		fetch = getChart
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &YahooHistory{chart: fetch, clock: clock, limiter: rate.NewLimiter(limit, 1)}
}

// History returns daily bars for period: 1d, 5d, 1mo, 3mo, 6mo, 1y, 2y, 5y, 10y, ytd or max.
func (h *YahooHistory) History(ctx context.Context, symbol, period string) ([]Bar, error) {
	start, err := periodStart(h.clock.Now(), period)
	if err != nil {
		return nil, err
	}
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := &chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&start),
		End:      datetime.New(ptrTime(h.clock.Now())),
		Interval: dailyInterval,
	}

	type result struct {
		bars []finance.ChartBar
		err  error
	}
	done := make(chan result, 1)
	go func() {
		bars, err := h.chart(params)
		done <- result{bars, err}
	}()

	var r result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r = <-done:
	}
	if r.err != nil {
		return nil, fmt.Errorf("yahoo chart %s: %w", symbol, r.err)
	}
	if len(r.bars) == 0 {
		return nil, ErrNoData
	}

	out := make([]Bar, 0, len(r.bars))
	for _, b := range r.bars {
		out = append(out, Bar{
			Date:   time.Unix(int64(b.Timestamp), 0).UTC().Format(time.DateOnly),
			Open:   b.Open.Round(2).InexactFloat64(),
			High:   b.High.Round(2).InexactFloat64(),
			Low:    b.Low.Round(2).InexactFloat64(),
			Close:  b.Close.Round(2).InexactFloat64(),
			Volume: int64(b.Volume),
		})
	}
	return out, nil
}

func periodStart(now time.Time, period string) (time.Time, error) {
	switch period {
	case "1d":
		return now.AddDate(0, 0, -1), nil
	case "5d":
		return now.AddDate(0, 0, -5), nil
	case "1mo", "":
		return now.AddDate(0, -1, 0), nil
	case "3mo":
		return now.AddDate(0, -3, 0), nil
	case "6mo":
		return now.AddDate(0, -6, 0), nil
	case "1y":
		return now.AddDate(-1, 0, 0), nil
	case "2y":
		return now.AddDate(-2, 0, 0), nil
	case "5y":
		return now.AddDate(-5, 0, 0), nil
	case "10y":
		return now.AddDate(-10, 0, 0), nil
	case "ytd":
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location()), nil
	case "max":
		return time.Unix(0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}
}

func getChart(params *chart.Params) ([]finance.ChartBar, error) {
	iter := chart.Get(params)
	var bars []finance.ChartBar
	for iter.Next() {
		bars = append(bars, *iter.Bar())
	}
	return bars, iter.Err()
}

func ptrTime(t time.Time) *time.Time { return &t }
