package hub

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/metrics"
)

// Client is one live stream connection as seen by the hub.
type Client interface {
	ID() string
	// Send queues one frame. It must not block on network I/O.
	Send(msg []byte) error
	// Close asks the connection to shut down; the connection unregisters itself.
	Close()
}

// SymbolSet is a set of opaque symbol tokens.
type SymbolSet map[string]struct{}

func (s SymbolSet) Has(symbol string) bool {
	_, ok := s[symbol]
	return ok
}

// Sorted returns the members in lexical order.
func (s SymbolSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for sym := range s {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Hub is the subscription registry and broadcast dispatcher for the price stream.
// Every method is atomic with respect to every other; the lock never covers network I/O.
type Hub struct {
	mu           sync.RWMutex
	clientSubs   map[Client]map[string]struct{}
	sendFailures map[Client]int

	benchmark  []string
	evictAfter int
	logger     *zap.Logger
}

// Option customises a Hub.
type Option func(*Hub)

// WithEvictAfterSendFailures closes a client after n consecutive failed sends. Zero disables it.
func WithEvictAfterSendFailures(n int) Option {
	return func(h *Hub) { h.evictAfter = n }
}

func NewHub(benchmark []string, logger *zap.Logger, opts ...Option) *Hub {
	h := &Hub{
		clientSubs:   make(map[Client]map[string]struct{}),
		sendFailures: make(map[Client]int),
		benchmark:    append([]string(nil), benchmark...),
		logger:       logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds a client with no subscriptions. Registering twice keeps the existing set.
func (h *Hub) Register(client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clientSubs[client]; ok {
		return
	}
	h.clientSubs[client] = make(map[string]struct{})
	metrics.StreamConnectedClients.Set(float64(len(h.clientSubs)))

	h.logger.Info("Client registered", zap.String("client", client.ID()), zap.Int("total", len(h.clientSubs)))
}

// Unregister drops the client and its subscriptions. Unknown clients are ignored.
func (h *Hub) Unregister(client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clientSubs[client]; !ok {
		return
	}
	delete(h.clientSubs, client)
	delete(h.sendFailures, client)
	metrics.StreamConnectedClients.Set(float64(len(h.clientSubs)))

	h.logger.Info("Client unregistered", zap.String("client", client.ID()), zap.Int("total", len(h.clientSubs)))
}

// Subscribe adds symbols to the client's set and returns the ones that were not there before.
func (h *Hub) Subscribe(client Client, symbols []string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.clientSubs[client]
	if !ok {
		return nil
	}

	var added []string
	for _, sym := range symbols {
		if _, exists := subs[sym]; exists {
			continue
		}
		subs[sym] = struct{}{}
		added = append(added, sym)
	}

	if len(added) > 0 {
		h.logger.Debug("Client subscribed", zap.String("client", client.ID()), zap.Strings("symbols", added))
	}
	return added
}

// Unsubscribe removes symbols from the client's set. Absent symbols are ignored.
func (h *Hub) Unsubscribe(client Client, symbols []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.clientSubs[client]
	if !ok {
		return
	}
	var removed []string
	for _, sym := range symbols {
		if _, ok := subs[sym]; ok {
			delete(subs, sym)
			removed = append(removed, sym)
		}
	}

	if len(removed) > 0 {
		h.logger.Debug("Client unsubscribed", zap.String("client", client.ID()), zap.Strings("symbols", removed))
	}
}

// EffectiveInterest is the benchmark set plus the client's own subscriptions.
func (h *Hub) EffectiveInterest(client Client) SymbolSet {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.effectiveInterestLocked(h.clientSubs[client])
}

// AllInterestedSymbols is the benchmark set plus every registered client's subscriptions.
func (h *Hub) AllInterestedSymbols() SymbolSet {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := h.effectiveInterestLocked(nil)
	for _, subs := range h.clientSubs {
		for sym := range subs {
			out[sym] = struct{}{}
		}
	}
	return out
}

// Len reports how many clients are registered.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clientSubs)
}

func (h *Hub) effectiveInterestLocked(subs map[string]struct{}) SymbolSet {
	out := make(SymbolSet, len(h.benchmark)+len(subs))
	for _, sym := range h.benchmark {
		out[sym] = struct{}{}
	}
	for sym := range subs {
		out[sym] = struct{}{}
	}
	return out
}
