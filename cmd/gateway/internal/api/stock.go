package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/quotes"
	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/watchlist"
	"github.com/Matrixxboy/MatrixAlphaForge/pkg/models"
)

const (
	quoteTimeout     = 8 * time.Second
	quoteConcurrency = 8
)

// indexNames maps benchmark symbols to their dashboard titles.
var indexNames = map[string]string{
	"^NSEI":     "Nifty 50",
	"^BSESN":    "Sensex",
	"^NSEBANK":  "Nifty Bank",
	"^INDIAVIX": "India VIX",
}

type IndexSummary struct {
	Title    string  `json:"title"`
	Symbol   string  `json:"symbol"`
	Value    float64 `json:"value"`
	Change   string  `json:"change"`
	Positive bool    `json:"positive"`
}

type WatchlistRow struct {
	ID     int64   `json:"id"`
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Change float64 `json:"change"`
}

type addWatchlistRequest struct {
	Ticker string `json:"ticker"`
}

func (s *server) marketSummary(w http.ResponseWriter, r *http.Request) {
	// Concurrent dashboard loads share one round of provider calls.
	v, err, _ := s.summary.Do("summary", func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), quoteTimeout)
		defer cancel()
		return s.loadSummary(ctx), nil
	})
	if err != nil {
		writeError(w, r, s.logger, http.StatusInternalServerError, CodeInternalServerError, "Failed to load market summary", err)
		return
	}
	writeJSON(w, http.StatusOK, CodeOK, "Market summary", v)
}

// loadSummary fetches every index concurrently. Failed indices are left out.
func (s *server) loadSummary(ctx context.Context) []IndexSummary {
	results := make([]*IndexSummary, len(s.cfg.Indices))

	var g errgroup.Group
	g.SetLimit(quoteConcurrency)
	for i, sym := range s.cfg.Indices {
		i, sym := i, sym
		g.Go(func() error {
			q, err := s.cfg.Quotes.FetchQuote(ctx, sym)
			if err != nil {
				s.logger.Warn("Index quote failed", zap.String("symbol", sym), zap.Error(err))
				return nil
			}
			u := models.NewQuoteUpdate(q)
			title, ok := indexNames[sym]
			if !ok {
				title = sym
			}
			results[i] = &IndexSummary{Title: title, Symbol: sym, Value: u.Price, Change: u.Change, Positive: u.Positive}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]IndexSummary, 0, len(results))
	for _, res := range results {
		if res != nil {
			out = append(out, *res)
		}
	}
	return out
}

func (s *server) listWatchlist(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Watchlist == nil {
		writeError(w, r, s.logger, http.StatusServiceUnavailable, CodeServiceUnavailable, "Watchlist is disabled", nil)
		return
	}

	items, err := s.cfg.Watchlist.List(r.Context())
	if err != nil {
		writeError(w, r, s.logger, http.StatusInternalServerError, CodeInternalServerError, "Failed to load watchlist", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), quoteTimeout)
	defer cancel()

	rows := make([]WatchlistRow, len(items))
	var g errgroup.Group
	g.SetLimit(quoteConcurrency)
	for i, it := range items {
		i, it := i, it
		rows[i] = WatchlistRow{ID: it.ID, Symbol: it.Ticker}
		g.Go(func() error {
			q, err := s.cfg.Quotes.FetchQuote(ctx, it.Ticker)
			if err != nil {
				// Row stays at 0/0 so the dashboard still lists it.
				s.logger.Debug("Watchlist quote failed", zap.String("symbol", it.Ticker), zap.Error(err))
				return nil
			}
			u := models.NewQuoteUpdate(q)
			rows[i].Price = u.Price
			rows[i].Change = u.ChangePercent
			return nil
		})
	}
	_ = g.Wait()

	writeJSON(w, http.StatusOK, CodeOK, "Watchlist", rows)
}

func (s *server) addWatchlist(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Watchlist == nil {
		writeError(w, r, s.logger, http.StatusServiceUnavailable, CodeServiceUnavailable, "Watchlist is disabled", nil)
		return
	}

	var req addWatchlistRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeError(w, r, s.logger, http.StatusBadRequest, CodeBadRequest, "Invalid request body", err)
		return
	}

	item, err := s.cfg.Watchlist.Add(r.Context(), req.Ticker)
	switch {
	case errors.Is(err, watchlist.ErrAlreadyExists), errors.Is(err, watchlist.ErrInvalidTicker):
		writeError(w, r, s.logger, http.StatusBadRequest, CodeDataExist, "Ticker already exists or invalid", err)
		return
	case err != nil:
		writeError(w, r, s.logger, http.StatusInternalServerError, CodeInternalServerError, "Failed to add ticker", err)
		return
	}

	writeJSON(w, http.StatusCreated, CodeCreated, fmt.Sprintf("Added %s to watchlist", item.Ticker),
		map[string]string{"ticker": item.Ticker})
}

func (s *server) removeWatchlist(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Watchlist == nil {
		writeError(w, r, s.logger, http.StatusServiceUnavailable, CodeServiceUnavailable, "Watchlist is disabled", nil)
		return
	}

	ticker, err := watchlist.NormalizeTicker(chi.URLParam(r, "ticker"))
	if err != nil {
		writeError(w, r, s.logger, http.StatusBadRequest, CodeBadRequest, "Invalid ticker", err)
		return
	}

	if err := s.cfg.Watchlist.Remove(r.Context(), ticker); err != nil {
		writeError(w, r, s.logger, http.StatusInternalServerError, CodeInternalServerError, "Failed to remove ticker", err)
		return
	}

	writeJSON(w, http.StatusOK, CodeOK, fmt.Sprintf("Removed %s from watchlist", ticker), nil)
}

// stockHistory serves daily candles for charts. ?period defaults to 1mo.
func (s *server) stockHistory(w http.ResponseWriter, r *http.Request) {
	if s.cfg.History == nil {
		writeError(w, r, s.logger, http.StatusServiceUnavailable, CodeServiceUnavailable, "History is not configured", nil)
		return
	}

	ticker, err := watchlist.NormalizeTicker(chi.URLParam(r, "ticker"))
	if err != nil {
		writeError(w, r, s.logger, http.StatusBadRequest, CodeBadRequest, "Invalid ticker", err)
		return
	}
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "1mo"
	}

	bars, err := s.cfg.History.History(r.Context(), ticker, period)
	switch {
	case errors.Is(err, quotes.ErrInvalidPeriod):
		writeError(w, r, s.logger, http.StatusBadRequest, CodeBadRequest, "Invalid period", err)
		return
	case errors.Is(err, quotes.ErrNoData):
		writeError(w, r, s.logger, http.StatusNotFound, CodeNotFound, fmt.Sprintf("No history for %s", ticker), err)
		return
	case err != nil:
		writeError(w, r, s.logger, http.StatusBadGateway, CodeBadGateway, "Failed to fetch stock history", err)
		return
	}

	writeJSON(w, http.StatusOK, CodeOK, fmt.Sprintf("History for %s fetched successfully", ticker), bars)
}
