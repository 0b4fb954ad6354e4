package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Matrixxboy/MatrixAlphaForge/pkg/models"
)

const (
	tickPrefix  = "stock:" // written by the processor
	quotePrefix = "quote:" // written by the gateway quote cache
)

// Compile-time check to ensure RedisStore implements PriceStore
var _ PriceStore = (*RedisStore)(nil)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// GetFeedTick reads the latest simulated tick for a symbol.
func (r *RedisStore) GetFeedTick(ctx context.Context, symbol string) (models.StockUpdate, error) {
	var tick models.StockUpdate
	if err := r.getJSON(ctx, tickPrefix+symbol, &tick); err != nil {
		return models.StockUpdate{}, err
	}
	return tick, nil
}

func (r *RedisStore) GetQuote(ctx context.Context, symbol string) (models.Quote, error) {
	var q models.Quote
	if err := r.getJSON(ctx, quotePrefix+symbol, &q); err != nil {
		return models.Quote{}, err
	}
	return q, nil
}

func (r *RedisStore) SaveQuote(ctx context.Context, q models.Quote, ttl time.Duration) error {
	payload, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("marshal quote %s: %w", q.Symbol, err)
	}
	return r.client.Set(ctx, quotePrefix+q.Symbol, payload, ttl).Err()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) getJSON(ctx context.Context, key string, dst any) error {
	payload, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
