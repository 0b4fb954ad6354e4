package testutils

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/protocol"
	"github.com/Matrixxboy/MatrixAlphaForge/pkg/models"
)

var ErrMockSend = errors.New("mock send failure")

// MockClient simulates a connected websocket client
type MockClient struct {
	IDVal    string
	Messages []protocol.PriceUpdateMessage // Stores decoded PRICE_UPDATE frames
	RawBytes []string                      // Stores raw frames
	FailSend bool
	Closed   bool
	Mu       sync.Mutex
}

func NewMockClient(id string) *MockClient {
	return &MockClient{IDVal: id}
}

func (m *MockClient) ID() string { return m.IDVal }

func (m *MockClient) Close() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
}

func (m *MockClient) Send(b []byte) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	if m.FailSend {
		return ErrMockSend
	}
	m.RawBytes = append(m.RawBytes, string(b))

	var msg protocol.PriceUpdateMessage
	if err := json.Unmarshal(b, &msg); err == nil {
		m.Messages = append(m.Messages, msg)
	}
	return nil
}

func (m *MockClient) SetFailSend(fail bool) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.FailSend = fail
}

func (m *MockClient) IsClosed() bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Closed
}

func (m *MockClient) MessageCount() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return len(m.Messages)
}

// LastTickers returns the symbols of the most recent PRICE_UPDATE frame, in order.
func (m *MockClient) LastTickers() []string {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if len(m.Messages) == 0 {
		return nil
	}
	last := m.Messages[len(m.Messages)-1]
	out := make([]string, 0, len(last.Data))
	for _, u := range last.Data {
		out = append(out, u.Symbol)
	}
	return out
}

// MockQuoteSource returns canned quotes and fails for symbols listed in Fail.
type MockQuoteSource struct {
	Quotes map[string]models.Quote
	Fail   map[string]error
	Panic  map[string]bool
	calls  atomic.Int64
	Mu     sync.Mutex
	Seen   []string
}

func NewMockQuoteSource() *MockQuoteSource {
	return &MockQuoteSource{
		Quotes: make(map[string]models.Quote),
		Fail:   make(map[string]error),
		Panic:  make(map[string]bool),
	}
}

// Set registers a quote with a previous close.
func (m *MockQuoteSource) Set(symbol string, last, prevClose float64) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	prev := prevClose
	m.Quotes[symbol] = models.Quote{Symbol: symbol, LastPrice: last, PreviousClose: &prev}
}

func (m *MockQuoteSource) FetchQuote(ctx context.Context, symbol string) (models.Quote, error) {
	m.calls.Add(1)

	m.Mu.Lock()
	m.Seen = append(m.Seen, symbol)
	q, ok := m.Quotes[symbol]
	failErr := m.Fail[symbol]
	shouldPanic := m.Panic[symbol]
	m.Mu.Unlock()

	if shouldPanic {
		panic("mock provider exploded for " + symbol)
	}
	if failErr != nil {
		return models.Quote{}, failErr
	}
	if !ok {
		return models.Quote{Symbol: symbol, LastPrice: 100}, nil
	}
	return q, nil
}

func (m *MockQuoteSource) Calls() int64 { return m.calls.Load() }
