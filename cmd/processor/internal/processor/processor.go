// Package processor consumes simulated market ticks from Kafka and keeps the latest tick per
// symbol in Redis, where the gateway's feed quote source reads it.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Matrixxboy/MatrixAlphaForge/pkg/config"
	"github.com/Matrixxboy/MatrixAlphaForge/pkg/models"
)

const (
	workerBuffer  = 100
	commitTimeout = 5 * time.Second

	fetchBackoffMin = 100 * time.Millisecond
	fetchBackoffMax = 5 * time.Second
)

var errInvalidUpdate = errors.New("invalid update")

// TickStream is the consumer group side of the tick topic. *kafka.Reader satisfies it.
type TickStream interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// TickStore keeps the latest tick per symbol.
type TickStore interface {
	Save(ctx context.Context, update models.StockUpdate, ttl time.Duration) error
	LastSeq(ctx context.Context, symbol string) (int64, error)
}

type Processor struct {
	logger      *zap.Logger
	store       TickStore
	stream      TickStream
	numWorkers  int
	snapshotTTL time.Duration

	offsets  *offsetTracker
	commitMu sync.Mutex // keeps commits per partition in offset order
}

func NewProcessor(cfg *config.Config, logger *zap.Logger, store TickStore, stream TickStream) *Processor {
	numWorkers := cfg.Processor.NumWorkers
	if numWorkers < 1 {
		numWorkers = 1
	}
	ttl := cfg.Processor.SnapshotTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Processor{
		logger:      logger,
		store:       store,
		stream:      stream,
		numWorkers:  numWorkers,
		snapshotTTL: ttl,
		offsets:     newOffsetTracker(),
	}
}

// Run shards messages by key over the worker pool until ctx is cancelled, then drains the
// workers before returning. A partition is committed up to the last offset below which every
// message has been stored or rejected.
func (p *Processor) Run(ctx context.Context) error {
	workerChans := make([]chan kafka.Message, p.numWorkers)
	var wg sync.WaitGroup

	for i := range workerChans {
		workerChans[i] = make(chan kafka.Message, workerBuffer)
		wg.Add(1)
		go p.worker(i, workerChans[i], &wg)
	}

	p.logger.Info("Processor Started", zap.Int("workers", p.numWorkers))

	backoff := time.Duration(0)
	for {
		m, err := p.stream.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				break
			}
			backoff = nextBackoff(backoff)
			p.logger.Error("Kafka Fetch Error", zap.Error(err), zap.Duration("retry_in", backoff))
			select {
			case <-time.After(backoff):
				continue
			case <-ctx.Done():
			}
			break
		}
		backoff = 0

		p.offsets.track(m)

		// Same symbol always goes to the same worker so per-symbol order holds.
		workerID := getWorkerID(m.Key, p.numWorkers)

		select {
		case workerChans[workerID] <- m:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}

	p.logger.Info("Shutdown signal received, stopping processor...")
	for _, ch := range workerChans {
		close(ch)
	}
	p.logger.Info("Waiting for workers to drain...")
	wg.Wait()

	return nil
}

func (p *Processor) worker(id int, msgs <-chan kafka.Message, wg *sync.WaitGroup) {
	defer wg.Done()
	// Background context so a shutdown does not cut a Redis write in half.
	ctx := context.Background()

	lastSeq := make(map[string]int64)

	for m := range msgs {
		p.handle(ctx, id, m, lastSeq)
		p.commit(m)
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d <= 0 {
		return fetchBackoffMin
	}
	return min(d*2, fetchBackoffMax)
}

func (p *Processor) handle(ctx context.Context, workerID int, m kafka.Message, lastSeq map[string]int64) {
	update, err := decodeUpdate(m.Value)
	if err != nil {
		p.logger.Error("Rejected update", zap.Error(err), zap.Int64("offset", m.Offset))
		return
	}

	last, seen := lastSeq[update.Symbol]
	if !seen {
		// Resume from what an earlier run stored so replays after a restart stay idempotent.
		if last, err = p.store.LastSeq(ctx, update.Symbol); err != nil {
			p.logger.Warn("Failed to load last seq", zap.String("symbol", update.Symbol), zap.Error(err))
		}
		lastSeq[update.Symbol] = last
	}

	if update.SeqID <= last {
		p.logger.Debug("Skipping stale update", zap.String("symbol", update.Symbol),
			zap.Int64("seq_id", update.SeqID), zap.Int64("last_seq", last))
		return
	}

	if err := p.store.Save(ctx, update, p.snapshotTTL); err != nil {
		p.logger.Error("Redis Save Error", zap.Error(err), zap.String("symbol", update.Symbol))
		return
	}

	p.logger.Debug("Processed", zap.String("symbol", update.Symbol), zap.Int("worker_id", workerID))
	lastSeq[update.Symbol] = update.SeqID
}

func (p *Processor) commit(m kafka.Message) {
	p.commitMu.Lock()
	defer p.commitMu.Unlock()

	upTo, ok := p.offsets.finish(m)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commitTimeout)
	defer cancel()
	if err := p.stream.CommitMessages(ctx, upTo); err != nil {
		p.logger.Warn("Kafka Commit Error", zap.Error(err), zap.Int("partition", upTo.Partition), zap.Int64("offset", upTo.Offset))
	}
}

// decodeUpdate parses a tick and trims its symbol. Ticks without a symbol or a positive
// price are rejected.
func decodeUpdate(payload []byte) (models.StockUpdate, error) {
	var update models.StockUpdate
	if err := json.Unmarshal(payload, &update); err != nil {
		return models.StockUpdate{}, fmt.Errorf("%w: %v", errInvalidUpdate, err)
	}
	update.Symbol = strings.TrimSpace(update.Symbol)
	if update.Symbol == "" {
		return models.StockUpdate{}, fmt.Errorf("%w: missing symbol", errInvalidUpdate)
	}
	if update.Price <= 0 {
		return models.StockUpdate{}, fmt.Errorf("%w: non-positive price for %s", errInvalidUpdate, update.Symbol)
	}
	return update, nil
}

func getWorkerID(key []byte, numWorkers int) int {
	h := fnv.New32a()
	h.Write(key)
	return int(h.Sum32() % uint32(numWorkers))
}
