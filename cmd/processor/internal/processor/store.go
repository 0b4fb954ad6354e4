package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Matrixxboy/MatrixAlphaForge/pkg/models"
)

const (
	tickKeyPrefix = "stock:"
	seqHashKey    = "stock:seq" // symbol -> last applied SeqID
)

// RedisTickStore writes the latest tick per symbol where the gateway's feed source reads it.
type RedisTickStore struct {
	rdb redis.Cmdable
}

var _ TickStore = (*RedisTickStore)(nil)

func NewRedisTickStore(rdb redis.Cmdable) *RedisTickStore {
	return &RedisTickStore{rdb: rdb}
}

// Save replaces the symbol's tick and records its SeqID in one MULTI/EXEC.
func (s *RedisTickStore) Save(ctx context.Context, update models.StockUpdate, ttl time.Duration) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshal tick %s: %w", update.Symbol, err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, tickKeyPrefix+update.Symbol, payload, ttl)
		pipe.HSet(ctx, seqHashKey, update.Symbol, strconv.FormatInt(update.SeqID, 10))
		return nil
	})
	if err != nil {
		return fmt.Errorf("save tick %s: %w", update.Symbol, err)
	}
	return nil
}

// LastSeq returns the last SeqID stored for the symbol, or 0 if none was.
func (s *RedisTickStore) LastSeq(ctx context.Context, symbol string) (int64, error) {
	seq, err := s.rdb.HGet(ctx, seqHashKey, symbol).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read seq %s: %w", symbol, err)
	}
	return seq, nil
}
