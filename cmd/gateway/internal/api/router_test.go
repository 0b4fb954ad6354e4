package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/api"
	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/llm"
	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/news"
	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/quotes"
	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/testutils"
	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/watchlist"
)

type fakeWatchlist struct {
	mu    sync.Mutex
	items []watchlist.Item
	err   error
}

func (f *fakeWatchlist) List(context.Context) ([]watchlist.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]watchlist.Item(nil), f.items...), f.err
}

func (f *fakeWatchlist) Add(_ context.Context, ticker string) (watchlist.Item, error) {
	ticker, err := watchlist.NormalizeTicker(ticker)
	if err != nil {
		return watchlist.Item{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.items {
		if it.Ticker == ticker {
			return watchlist.Item{}, watchlist.ErrAlreadyExists
		}
	}
	it := watchlist.Item{ID: int64(len(f.items) + 1), Ticker: ticker}
	f.items = append(f.items, it)
	return it, nil
}

func (f *fakeWatchlist) Remove(_ context.Context, ticker string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, it := range f.items {
		if it.Ticker == ticker {
			f.items = append(f.items[:i], f.items[i+1:]...)
			break
		}
	}
	return nil
}

type fakeNews struct {
	queries []string
	err     error
}

func (f *fakeNews) Fetch(_ context.Context, query string) ([]news.Article, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return []news.Article{{Title: "Markets rally", Link: "https://x/1", PubDate: "Mon", Source: "Reuters"}}, nil
}

type fakeChat struct {
	history []llm.Turn
	tools   []string
	err     error
}

func (f *fakeChat) Chat(_ context.Context, history []llm.Turn, message string) (llm.Reply, error) {
	if strings.TrimSpace(message) == "" {
		return llm.Reply{}, llm.ErrEmptyMessage
	}
	f.history = history
	if f.err != nil {
		return llm.Reply{}, f.err
	}
	return llm.Reply{Text: "echo: " + message, ToolsUsed: f.tools}, nil
}

type fakeHistory struct {
	symbol, period string
	err            error
}

func (f *fakeHistory) History(_ context.Context, symbol, period string) ([]quotes.Bar, error) {
	f.symbol, f.period = symbol, period
	if f.err != nil {
		return nil, f.err
	}
	return []quotes.Bar{{Date: "2026-10-16", Open: 3401.23, High: 3450.5, Low: 3390, Close: 3440.78, Volume: 1200000}}, nil
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type envelope struct {
	Status  int             `json:"status"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func newRouter(mutate func(*api.Config)) (http.Handler, *testutils.MockQuoteSource) {
	src := testutils.NewMockQuoteSource()
	cfg := api.Config{
		Logger:      zap.NewNop(),
		CORSOrigins: []string{"http://localhost:3000"},
		Quotes:      src,
		Indices:     []string{"^NSEI", "^BSESN", "^NSEBANK", "^INDIAVIX"},
		Watchlist:   &fakeWatchlist{},
		News:        &fakeNews{},
		History:     &fakeHistory{},
		Chat:        &fakeChat{},
		Health:      fakePinger{},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return api.NewRouter(cfg), src
}

func TestMarketSummary(t *testing.T) {
	h, src := newRouter(nil)
	src.Set("^NSEI", 22100, 22000)
	src.Set("^BSESN", 72000, 72500)
	src.Set("^INDIAVIX", 13.5, 13.5)
	src.Fail["^NSEBANK"] = errors.New("upstream timeout")

	rec, env := do(t, h, http.MethodGet, "/api/stock/market/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, api.CodeOK, env.Code)

	var rows []api.IndexSummary
	require.NoError(t, json.Unmarshal(env.Data, &rows))
	require.Len(t, rows, 3, "failed index is skipped")

	assert.Equal(t, "Nifty 50", rows[0].Title)
	assert.Equal(t, 22100.0, rows[0].Value)
	assert.Equal(t, "0.45%", rows[0].Change)
	assert.True(t, rows[0].Positive)

	assert.Equal(t, "Sensex", rows[1].Title)
	assert.Equal(t, "-0.69%", rows[1].Change)
	assert.False(t, rows[1].Positive)

	assert.Equal(t, "India VIX", rows[2].Title)
	assert.Equal(t, "0.0%", rows[2].Change)
	assert.True(t, rows[2].Positive)
}

func TestWatchlist_CRUD(t *testing.T) {
	h, src := newRouter(nil)
	src.Set("TCS.NS", 3500, 3400)
	src.Fail["INFY.NS"] = errors.New("no data")

	rec, env := do(t, h, http.MethodPost, "/api/stock/watchlist", `{"ticker":"tcs.ns"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, api.CodeCreated, env.Code)
	assert.Equal(t, "Added TCS.NS to watchlist", env.Message)
	assert.JSONEq(t, `{"ticker":"TCS.NS"}`, string(env.Data))

	rec, env = do(t, h, http.MethodPost, "/api/stock/watchlist", `{"ticker":"TCS.NS"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, api.CodeDataExist, env.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/stock/watchlist", `{"ticker":"INFY.NS"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, env = do(t, h, http.MethodGet, "/api/stock/watchlist", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []api.WatchlistRow
	require.NoError(t, json.Unmarshal(env.Data, &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, api.WatchlistRow{ID: 1, Symbol: "TCS.NS", Price: 3500, Change: 2.94}, rows[0])
	assert.Equal(t, api.WatchlistRow{ID: 2, Symbol: "INFY.NS"}, rows[1], "failed quote leaves the row at zero")

	rec, env = do(t, h, http.MethodDelete, "/api/stock/watchlist/tcs.ns", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Removed TCS.NS from watchlist", env.Message)

	_, env = do(t, h, http.MethodGet, "/api/stock/watchlist", "")
	require.NoError(t, json.Unmarshal(env.Data, &rows))
	assert.Len(t, rows, 1)
}

func TestWatchlist_BadInput(t *testing.T) {
	h, _ := newRouter(nil)

	rec, env := do(t, h, http.MethodPost, "/api/stock/watchlist", `{"ticker":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, api.CodeBadRequest, env.Code)

	rec, env = do(t, h, http.MethodPost, "/api/stock/watchlist", `{"ticker":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, api.CodeDataExist, env.Code)
}

func TestWatchlist_Disabled(t *testing.T) {
	h, _ := newRouter(func(c *api.Config) { c.Watchlist = nil })

	rec, env := do(t, h, http.MethodGet, "/api/stock/watchlist", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, api.CodeServiceUnavailable, env.Code)
}

func TestWatchlist_StoreErrorHidesDetails(t *testing.T) {
	h, _ := newRouter(func(c *api.Config) {
		c.Watchlist = &fakeWatchlist{err: errors.New("pq: connection refused")}
	})

	rec, env := do(t, h, http.MethodGet, "/api/stock/watchlist", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, env.Error)
}

func TestNews(t *testing.T) {
	feed := &fakeNews{}
	h, _ := newRouter(func(c *api.Config) { c.News = feed })

	rec, env := do(t, h, http.MethodGet, "/api/news/latest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var articles []news.Article
	require.NoError(t, json.Unmarshal(env.Data, &articles))
	require.Len(t, articles, 1)
	assert.Equal(t, "Reuters", articles[0].Source)

	rec, _ = do(t, h, http.MethodGet, "/api/news/reliance.ns", "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []string{"Stock Market", "RELIANCE.NS stock news"}, feed.queries)
}

func TestNews_UpstreamFailure(t *testing.T) {
	h, _ := newRouter(func(c *api.Config) { c.News = &fakeNews{err: errors.New("status 503")} })

	rec, env := do(t, h, http.MethodGet, "/api/news/latest", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, api.CodeBadGateway, env.Code)
}

func TestChat(t *testing.T) {
	bot := &fakeChat{}
	h, _ := newRouter(func(c *api.Config) { c.Chat = bot })

	rec, env := do(t, h, http.MethodPost, "/api/chat",
		`{"message":"How is TCS?","history":[{"role":"user","content":"hi"},{"role":"assistant","content":"hello"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"response":"echo: How is TCS?"}`, string(env.Data))
	assert.Len(t, bot.history, 2)

	rec, env = do(t, h, http.MethodPost, "/api/chat", `{"message":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, api.CodeBadRequest, env.Code)
}

func TestChat_ReportsTools(t *testing.T) {
	bot := &fakeChat{tools: []string{"get_stock_price", "get_stock_news"}}
	h, _ := newRouter(func(c *api.Config) { c.Chat = bot })

	rec, env := do(t, h, http.MethodPost, "/api/chat", `{"message":"TCS price and news"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Multi-tool execution successful", env.Message)
	assert.JSONEq(t, `{"response":"echo: TCS price and news","tools_used":["get_stock_price","get_stock_news"]}`, string(env.Data))
}

func TestStockHistory(t *testing.T) {
	hist := &fakeHistory{}
	h, _ := newRouter(func(c *api.Config) { c.History = hist })

	rec, env := do(t, h, http.MethodGet, "/api/stock/tcs.ns/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "History for TCS.NS fetched successfully", env.Message)
	assert.Equal(t, "TCS.NS", hist.symbol)
	assert.Equal(t, "1mo", hist.period)
	assert.JSONEq(t, `[{"date":"2026-10-16","open":3401.23,"high":3450.5,"low":3390,"close":3440.78,"volume":1200000}]`, string(env.Data))

	do(t, h, http.MethodGet, "/api/stock/%5ENSEI/history?period=ytd", "")
	assert.Equal(t, "^NSEI", hist.symbol)
	assert.Equal(t, "ytd", hist.period)
}

func TestStockHistory_Errors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"bad period", fmt.Errorf("%w: %q", quotes.ErrInvalidPeriod, "7w"), http.StatusBadRequest, api.CodeBadRequest},
		{"no data", quotes.ErrNoData, http.StatusNotFound, api.CodeNotFound},
		{"upstream", errors.New("yahoo chart: 502"), http.StatusBadGateway, api.CodeBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, _ := newRouter(func(c *api.Config) { c.History = &fakeHistory{err: tc.err} })
			rec, env := do(t, h, http.MethodGet, "/api/stock/TCS.NS/history?period=7w", "")
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, env.Code)
		})
	}

	h, _ := newRouter(func(c *api.Config) { c.History = nil })
	rec, _ := do(t, h, http.MethodGet, "/api/stock/TCS.NS/history", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestChat_NotConfigured(t *testing.T) {
	h, _ := newRouter(func(c *api.Config) { c.Chat = nil })

	rec, env := do(t, h, http.MethodPost, "/api/chat", `{"message":"hi"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, api.CodeServiceUnavailable, env.Code)
}

func TestHealth(t *testing.T) {
	h, _ := newRouter(nil)
	rec, env := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, api.CodeOK, env.Code)

	h, _ = newRouter(func(c *api.Config) { c.Health = fakePinger{err: errors.New("dial tcp: refused")} })
	rec, _ = do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newRouter(nil)
	rec, _ := do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestCORSPreflight(t *testing.T) {
	h, _ := newRouter(nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/stock/watchlist", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDIsAssigned(t *testing.T) {
	var seen string
	h, _ := newRouter(func(c *api.Config) {
		c.Stream = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = middleware.GetReqID(r.Context())
			w.WriteHeader(http.StatusTeapot)
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/api/ws/prices", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code, "stream handler is mounted")
	assert.Equal(t, "abc-123", seen)
}
