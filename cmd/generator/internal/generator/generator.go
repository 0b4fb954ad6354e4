// Package generator publishes a simulated NSE market feed to Kafka.
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Matrixxboy/MatrixAlphaForge/pkg/models"
)

const (
	// maxStepPct bounds a single tick's move as a fraction of the last price.
	maxStepPct   = 0.002
	defaultPrice = 100.0
)

// DefaultBasePrices seeds the random walk; they double as each symbol's previous close.
var DefaultBasePrices = map[string]float64{
	"RELIANCE.NS": 2950.0,
	"TCS.NS":      3900.0,
	"INFY.NS":     1500.0,
	"HDFCBANK.NS": 1450.0,
	"^NSEI":       22000.0,
	"^BSESN":      72500.0,
	"^NSEBANK":    47000.0,
	"^INDIAVIX":   14.0,
}

// Rand is the randomness source of the walk. *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
}

type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type walk struct {
	symbol    string
	prevClose float64
	last      float64
	seq       int64
}

type StockGenerator struct {
	logger   *zap.Logger
	writer   KafkaWriter
	rand     Rand
	clock    clockwork.Clock
	interval time.Duration
	walks    []*walk
}

// NewStockGenerator prepares one walk per distinct ticker. SeqIDs start at the current time in
// microseconds so they keep increasing across restarts of the generator.
func NewStockGenerator(
	logger *zap.Logger,
	writer KafkaWriter,
	tickers []string,
	basePrices map[string]float64,
	rnd Rand,
	clock clockwork.Clock,
	interval time.Duration,
) *StockGenerator {
	seed := clock.Now().UnixMicro()
	seen := make(map[string]bool, len(tickers))

	var walks []*walk
	for _, t := range tickers {
		sym := strings.ToUpper(strings.TrimSpace(t))
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true

		base, ok := basePrices[sym]
		if !ok || base <= 0 {
			base = defaultPrice
		}
		walks = append(walks, &walk{symbol: sym, prevClose: base, last: base, seq: seed})
	}

	return &StockGenerator{
		logger:   logger,
		writer:   writer,
		rand:     rnd,
		clock:    clock,
		interval: interval,
		walks:    walks,
	}
}

// Run publishes a tick every interval until ctx is cancelled. Write errors are logged and the
// walk carries on.
func (sg *StockGenerator) Run(ctx context.Context) {
	if len(sg.walks) == 0 {
		sg.logger.Warn("Generator has no tickers, nothing to publish")
		return
	}

	symbols := make([]string, len(sg.walks))
	for i, w := range sg.walks {
		symbols[i] = w.symbol
	}
	sg.logger.Info("Generator Started", zap.Strings("tickers", symbols), zap.Duration("interval", sg.interval))

	for {
		if err := sg.Tick(ctx); err != nil && ctx.Err() == nil {
			sg.logger.Error("Kafka Write Error", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-sg.clock.After(sg.interval):
		}
	}
}

// Tick advances every symbol by one bounded random step and writes the batch.
func (sg *StockGenerator) Tick(ctx context.Context) error {
	now := sg.clock.Now().UnixMicro()

	msgs := make([]kafka.Message, 0, len(sg.walks))
	for _, w := range sg.walks {
		update := w.step(sg.rand.Float64(), now)

		payload, err := json.Marshal(update)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", update.Symbol, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(update.Symbol), // Key keeps a symbol on one partition
			Value: payload,
		})
	}

	if err := sg.writer.WriteMessages(ctx, msgs...); err != nil {
		return err
	}
	sg.logger.Debug("Sent ticks", zap.Int("count", len(msgs)))
	return nil
}

// step maps r in [0,1) to a move in [-maxStepPct, +maxStepPct); 0.5 leaves the price unchanged.
func (w *walk) step(r float64, now int64) models.StockUpdate {
	move := (r*2 - 1) * maxStepPct
	price := decimal.NewFromFloat(w.last * (1 + move)).Round(2).InexactFloat64()
	if price <= 0 {
		price = w.last
	}
	w.last = price
	w.seq++

	return models.StockUpdate{
		Symbol:    w.symbol,
		Price:     price,
		PrevClose: w.prevClose,
		Timestamp: now,
		SeqID:     w.seq,
	}
}
