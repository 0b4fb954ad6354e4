package testutils

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Matrixxboy/MatrixAlphaForge/pkg/models"
)

// MockTickStream replays Messages in order, then blocks until the context ends like a real
// consumer waiting for new data. While FetchErr is set every fetch fails with it.
type MockTickStream struct {
	Messages   []kafka.Message
	Committed  []kafka.Message
	CommitErr  error
	FetchErr   error
	FetchCalls int
	Mu         sync.Mutex
	next       int
}

func (m *MockTickStream) FetchMessage(ctx context.Context) (kafka.Message, error) {
	m.Mu.Lock()
	m.FetchCalls++
	if m.FetchErr != nil {
		m.Mu.Unlock()
		return kafka.Message{}, m.FetchErr
	}
	if m.next < len(m.Messages) {
		msg := m.Messages[m.next]
		msg.Offset = int64(m.next)
		m.next++
		m.Mu.Unlock()
		return msg, nil
	}
	m.Mu.Unlock()

	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (m *MockTickStream) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.CommitErr != nil {
		return m.CommitErr
	}
	m.Committed = append(m.Committed, msgs...)
	return nil
}

func (m *MockTickStream) CommitCount() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return len(m.Committed)
}

// LastCommitted is the highest offset committed on partition, or -1.
func (m *MockTickStream) LastCommitted(partition int) int64 {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	last := int64(-1)
	for _, c := range m.Committed {
		if c.Partition == partition && c.Offset > last {
			last = c.Offset
		}
	}
	return last
}

func (m *MockTickStream) FetchCount() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.FetchCalls
}

// GatedTickStore holds saves for symbols listed in Gates until the gate channel is closed.
type GatedTickStore struct {
	Gates map[string]chan struct{}
	Saved []string
	Mu    sync.Mutex
}

func (g *GatedTickStore) Save(ctx context.Context, update models.StockUpdate, ttl time.Duration) error {
	if gate, ok := g.Gates[update.Symbol]; ok {
		<-gate
	}
	g.Mu.Lock()
	defer g.Mu.Unlock()
	g.Saved = append(g.Saved, update.Symbol)
	return nil
}

func (g *GatedTickStore) LastSeq(ctx context.Context, symbol string) (int64, error) {
	return 0, nil
}

func (g *GatedTickStore) SavedCount() int {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	return len(g.Saved)
}

// FailingTickStore fails every call, for exercising error paths.
type FailingTickStore struct {
	Saves int
	Mu    sync.Mutex
}

var ErrStoreDown = errors.New("store down")

func (f *FailingTickStore) Save(ctx context.Context, update models.StockUpdate, ttl time.Duration) error {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	f.Saves++
	return ErrStoreDown
}

func (f *FailingTickStore) LastSeq(ctx context.Context, symbol string) (int64, error) {
	return 0, ErrStoreDown
}
