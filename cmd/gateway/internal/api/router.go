// Package api exposes the dashboard REST surface and mounts the price stream.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/llm"
	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/news"
	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/quotes"
	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/watchlist"
)

const requestTimeout = 60 * time.Second

type WatchlistStore interface {
	List(ctx context.Context) ([]watchlist.Item, error)
	Add(ctx context.Context, ticker string) (watchlist.Item, error)
	Remove(ctx context.Context, ticker string) error
}

type NewsFetcher interface {
	Fetch(ctx context.Context, query string) ([]news.Article, error)
}

type ChatClient interface {
	Chat(ctx context.Context, history []llm.Turn, message string) (llm.Reply, error)
}

type HistorySource interface {
	History(ctx context.Context, symbol, period string) ([]quotes.Bar, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Config wires the router. Watchlist, History and Chat may be nil, in which case their routes
// answer 503.
type Config struct {
	Logger      *zap.Logger
	CORSOrigins []string
	Quotes      quotes.Source
	Indices     []string
	Watchlist   WatchlistStore
	News        NewsFetcher
	History     HistorySource
	Chat        ChatClient
	Health      Pinger
	Stream      http.Handler
}

type server struct {
	cfg     Config
	logger  *zap.Logger
	summary singleflight.Group
}

// NewRouter builds the HTTP handler for the gateway.
func NewRouter(cfg Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	s := &server{cfg: cfg, logger: cfg.Logger}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(cfg.Logger, "/health", "/metrics"))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.Handler())

	if cfg.Stream != nil {
		// Long-lived; kept out of the request timeout group.
		r.Handle("/api/ws/prices", cfg.Stream)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Route("/api/stock", func(r chi.Router) {
			r.Get("/market/summary", s.marketSummary)
			r.Get("/watchlist", s.listWatchlist)
			r.Post("/watchlist", s.addWatchlist)
			r.Delete("/watchlist/{ticker}", s.removeWatchlist)
			r.Get("/{ticker}/history", s.stockHistory)
		})

		r.Route("/api/news", func(r chi.Router) {
			r.Get("/latest", s.latestNews)
			r.Get("/{ticker}", s.tickerNews)
		})

		r.Post("/api/chat", s.chat)
	})

	return r
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.cfg.Health.Ping(ctx); err != nil {
			writeError(w, r, s.logger, http.StatusServiceUnavailable, CodeServiceUnavailable, "Redis unreachable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, CodeOK, "Healthy", map[string]string{"status": "ok"})
}
