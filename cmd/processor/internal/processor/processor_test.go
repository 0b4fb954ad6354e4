package processor_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Matrixxboy/MatrixAlphaForge/cmd/processor/internal/processor"
	"github.com/Matrixxboy/MatrixAlphaForge/cmd/processor/internal/testutils"
	"github.com/Matrixxboy/MatrixAlphaForge/pkg/config"
	"github.com/Matrixxboy/MatrixAlphaForge/pkg/models"
)

func toMessages(t *testing.T, updates ...models.StockUpdate) []kafka.Message {
	t.Helper()
	var msgs []kafka.Message
	for _, u := range updates {
		val, err := json.Marshal(u)
		if err != nil {
			t.Fatal(err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(u.Symbol), Value: val})
	}
	return msgs
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *processor.RedisTickStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, processor.NewRedisTickStore(rdb)
}

func newProcessor(workers int, ttl time.Duration, store processor.TickStore, stream processor.TickStream) *processor.Processor {
	cfg := &config.Config{}
	cfg.Processor.NumWorkers = workers
	cfg.Processor.SnapshotTTL = ttl
	return processor.NewProcessor(cfg, zap.NewNop(), store, stream)
}

// runFor returns after Run has drained its workers.
func runFor(proc *processor.Processor, d time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	proc.Run(ctx)
}

func storedPrice(t *testing.T, mr *miniredis.Miniredis, symbol string) float64 {
	t.Helper()
	raw, err := mr.Get("stock:" + symbol)
	if err != nil {
		t.Fatalf("Missing stock:%s: %v", symbol, err)
	}
	var u models.StockUpdate
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		t.Fatal(err)
	}
	return u.Price
}

func TestProcessor_WorkerLogic(t *testing.T) {
	mr, store := setupRedis(t)
	stream := &testutils.MockTickStream{Messages: toMessages(t,
		models.StockUpdate{Symbol: "TCS.NS", Price: 3500.0, SeqID: 1},
		models.StockUpdate{Symbol: "TCS.NS", Price: 3499.0, SeqID: 1},
		models.StockUpdate{Symbol: "TCS.NS", Price: 3501.0, SeqID: 2},
		models.StockUpdate{Symbol: "INFY.NS", Price: 1500.0, SeqID: 1},
	)}

	runFor(newProcessor(2, 30*time.Minute, store, stream), 300*time.Millisecond)

	if got := storedPrice(t, mr, "TCS.NS"); got != 3501.0 {
		t.Errorf("Expected latest TCS.NS price 3501, got %v", got)
	}
	if got := storedPrice(t, mr, "INFY.NS"); got != 1500.0 {
		t.Errorf("Expected INFY.NS price 1500, got %v", got)
	}
	if seq := mr.HGet("stock:seq", "TCS.NS"); seq != "2" {
		t.Errorf("Expected TCS.NS seq 2, got %q", seq)
	}
	if ttl := mr.TTL("stock:TCS.NS"); ttl != 30*time.Minute {
		t.Errorf("Expected snapshot TTL 30m, got %v", ttl)
	}
	if off := stream.LastCommitted(0); off != 3 {
		t.Errorf("Expected the partition committed through offset 3, got %d", off)
	}
}

func TestProcessor_ResumesSeqFromRedis(t *testing.T) {
	mr, store := setupRedis(t)
	mr.HSet("stock:seq", "TCS.NS", "10")

	stream := &testutils.MockTickStream{Messages: toMessages(t,
		models.StockUpdate{Symbol: "TCS.NS", Price: 1.0, SeqID: 5},
		models.StockUpdate{Symbol: "TCS.NS", Price: 3600.0, SeqID: 11},
	)}

	runFor(newProcessor(1, time.Minute, store, stream), 300*time.Millisecond)

	if got := storedPrice(t, mr, "TCS.NS"); got != 3600.0 {
		t.Errorf("Replay below the stored seq overwrote the tick: got %v", got)
	}
	if seq := mr.HGet("stock:seq", "TCS.NS"); seq != "11" {
		t.Errorf("Expected seq 11, got %q", seq)
	}
}

func TestProcessor_InvalidJSON(t *testing.T) {
	mr, store := setupRedis(t)
	stream := &testutils.MockTickStream{Messages: []kafka.Message{
		{Key: []byte("TCS.NS"), Value: []byte("{broken-json")},
	}}

	runFor(newProcessor(1, time.Minute, store, stream), 200*time.Millisecond)

	if mr.Exists("stock:TCS.NS") {
		t.Error("Should not write anything for invalid JSON")
	}
	if stream.LastCommitted(0) != 0 {
		t.Error("Poison messages are committed so they are not redelivered")
	}
}

func TestProcessor_RejectsInvalidTicks(t *testing.T) {
	mr, store := setupRedis(t)
	stream := &testutils.MockTickStream{Messages: toMessages(t,
		models.StockUpdate{Symbol: "", Price: 10, SeqID: 1},
		models.StockUpdate{Symbol: "TCS.NS", Price: 0, SeqID: 1},
		models.StockUpdate{Symbol: "TCS.NS", Price: -3, SeqID: 2},
	)}

	runFor(newProcessor(1, time.Minute, store, stream), 200*time.Millisecond)

	if keys := mr.Keys(); len(keys) != 0 {
		t.Errorf("Expected invalid ticks to be dropped, got keys %v", keys)
	}
}

func TestProcessor_TrimsSymbolKeepingCase(t *testing.T) {
	mr, store := setupRedis(t)
	stream := &testutils.MockTickStream{Messages: toMessages(t,
		models.StockUpdate{Symbol: " infy.ns ", Price: 1500, SeqID: 1},
	)}

	runFor(newProcessor(1, time.Minute, store, stream), 200*time.Millisecond)

	if !mr.Exists("stock:infy.ns") {
		t.Error("Expected the symbol to be trimmed with its case kept")
	}
	if mr.Exists("stock:INFY.NS") {
		t.Error("Expected no upper-cased key")
	}
}

func TestProcessor_StoreFailureStillCommits(t *testing.T) {
	store := &testutils.FailingTickStore{}
	stream := &testutils.MockTickStream{Messages: toMessages(t,
		models.StockUpdate{Symbol: "TCS.NS", Price: 3500, SeqID: 1},
		models.StockUpdate{Symbol: "TCS.NS", Price: 3501, SeqID: 2},
	)}

	runFor(newProcessor(1, time.Minute, store, stream), 200*time.Millisecond)

	if store.Saves != 2 {
		t.Errorf("Expected a save attempt per tick, got %d", store.Saves)
	}
	if off := stream.LastCommitted(0); off != 1 {
		t.Errorf("Expected both messages committed, got offset %d", off)
	}
}

func TestProcessor_CommitWaitsForEarlierOffsets(t *testing.T) {
	gate := make(chan struct{})
	store := &testutils.GatedTickStore{Gates: map[string]chan struct{}{"SLOW": gate}}

	// SLOW and FAST shard to different workers and share partition 0.
	slow, fast := "SLOW", "FAST"
	for i := 0; getWorkerIDForTest(slow) == getWorkerIDForTest(fast); i++ {
		fast = fmt.Sprintf("FAST%d", i)
	}
	stream := &testutils.MockTickStream{Messages: toMessages(t,
		models.StockUpdate{Symbol: slow, Price: 10, SeqID: 1},
		models.StockUpdate{Symbol: fast, Price: 20, SeqID: 1},
	)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		newProcessor(2, time.Minute, store, stream).Run(ctx)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for store.SavedCount() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if store.SavedCount() != 1 {
		t.Fatalf("Expected the fast tick stored while the slow one is held, got %d saves", store.SavedCount())
	}
	time.Sleep(50 * time.Millisecond)
	if n := stream.CommitCount(); n != 0 {
		t.Fatalf("Committed %d message(s) ahead of an unhandled offset: %v", n, stream.Committed)
	}

	close(gate)
	deadline = time.Now().Add(2 * time.Second)
	for stream.LastCommitted(0) != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if off := stream.LastCommitted(0); off != 1 {
		t.Errorf("Expected commit through offset 1 once the slow tick finished, got %d", off)
	}

	cancel()
	<-done
}

func TestProcessor_FetchErrorsBackOff(t *testing.T) {
	_, store := setupRedis(t)
	stream := &testutils.MockTickStream{FetchErr: errors.New("broker unavailable")}

	runFor(newProcessor(1, time.Minute, store, stream), 350*time.Millisecond)

	// 100ms, 200ms, 400ms between attempts.
	if n := stream.FetchCount(); n < 2 || n > 4 {
		t.Errorf("Expected a handful of fetch attempts with backoff, got %d", n)
	}
}

// getWorkerIDForTest mirrors the processor's key sharding for two workers.
func getWorkerIDForTest(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32() % 2
}
