// Package watchlist persists the dashboard's watchlist in PostgreSQL.
package watchlist

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Matrixxboy/MatrixAlphaForge/pkg/config"
)

var (
	ErrAlreadyExists = errors.New("watchlist: ticker already exists")
	ErrInvalidTicker = errors.New("watchlist: invalid ticker")
)

// DefaultTickers seed an empty watchlist.
var DefaultTickers = []string{"RELIANCE.NS", "TCS.NS", "INFY.NS", "HDFCBANK.NS"}

type Item struct {
	ID     int64  `json:"id"`
	Ticker string `json:"ticker"`
}

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Connect creates a pool and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the table and seeds it with DefaultTickers when empty.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS watchlist (
			id         BIGSERIAL PRIMARY KEY,
			ticker     TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("create watchlist table: %w", err)
	}

	var count int
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM watchlist`).Scan(&count); err != nil {
		return fmt.Errorf("count watchlist: %w", err)
	}
	if count > 0 {
		return nil
	}

	for _, t := range DefaultTickers {
		if _, err := s.db.Exec(ctx, `INSERT INTO watchlist (ticker) VALUES ($1) ON CONFLICT (ticker) DO NOTHING`, t); err != nil {
			return fmt.Errorf("seed watchlist %s: %w", t, err)
		}
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Item, error) {
	rows, err := s.db.Query(ctx, `SELECT id, ticker FROM watchlist ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query watchlist: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Ticker); err != nil {
			return nil, fmt.Errorf("scan watchlist: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return items, nil
}

// Add inserts an upper-cased ticker. A duplicate returns ErrAlreadyExists.
func (s *PostgresStore) Add(ctx context.Context, ticker string) (Item, error) {
	ticker, err := NormalizeTicker(ticker)
	if err != nil {
		return Item{}, err
	}

	it := Item{Ticker: ticker}
	err = s.db.QueryRow(ctx, `INSERT INTO watchlist (ticker) VALUES ($1) RETURNING id`, ticker).Scan(&it.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return Item{}, ErrAlreadyExists
		}
		return Item{}, fmt.Errorf("insert watchlist %s: %w", ticker, err)
	}
	return it, nil
}

// Remove deletes a ticker. Removing an absent ticker is not an error.
func (s *PostgresStore) Remove(ctx context.Context, ticker string) error {
	ticker, err := NormalizeTicker(ticker)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM watchlist WHERE ticker = $1`, ticker); err != nil {
		return fmt.Errorf("delete watchlist %s: %w", ticker, err)
	}
	return nil
}

// NormalizeTicker trims and upper-cases a ticker, rejecting empty or oversized input.
func NormalizeTicker(ticker string) (string, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" || len(ticker) > 32 || strings.ContainsAny(ticker, " \t\n/") {
		return "", ErrInvalidTicker
	}
	return ticker, nil
}
