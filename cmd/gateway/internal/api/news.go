package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

func (s *server) latestNews(w http.ResponseWriter, r *http.Request) {
	s.serveNews(w, r, "Stock Market")
}

func (s *server) tickerNews(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "ticker")))
	if ticker == "" {
		writeError(w, r, s.logger, http.StatusBadRequest, CodeBadRequest, "Ticker is required", nil)
		return
	}
	s.serveNews(w, r, ticker+" stock news")
}

func (s *server) serveNews(w http.ResponseWriter, r *http.Request, query string) {
	if s.cfg.News == nil {
		writeError(w, r, s.logger, http.StatusServiceUnavailable, CodeServiceUnavailable, "News is disabled", nil)
		return
	}

	articles, err := s.cfg.News.Fetch(r.Context(), query)
	if err != nil {
		writeError(w, r, s.logger, http.StatusBadGateway, CodeBadGateway, "Failed to fetch news", err)
		return
	}
	writeJSON(w, http.StatusOK, CodeOK, "News", articles)
}
