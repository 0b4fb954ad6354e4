package hub

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/metrics"
	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/protocol"
	"github.com/Matrixxboy/MatrixAlphaForge/pkg/models"
)

// BroadcastResult summarises one Broadcast call.
type BroadcastResult struct {
	Delivered int
	Failed    int
	Skipped   int // clients with no matching update
}

type delivery struct {
	client  Client
	updates []models.QuoteUpdate
}

// Broadcast sends each registered client one PRICE_UPDATE frame holding the updates that match
// its effective interest. A failed send is logged and does not stop delivery to the others.
func (h *Hub) Broadcast(updates []models.QuoteUpdate) BroadcastResult {
	var res BroadcastResult
	if len(updates) == 0 {
		return res
	}

	deliveries, registered := h.plan(updates)
	res.Skipped = registered - len(deliveries)

	failed := make(map[Client]bool, len(deliveries))
	for _, d := range deliveries {
		msg, err := json.Marshal(protocol.PriceUpdateMessage{Type: protocol.TypePriceUpdate, Data: d.updates})
		if err == nil {
			err = d.client.Send(msg)
		}
		if err != nil {
			h.logger.Warn("Broadcast error", zap.String("client", d.client.ID()), zap.Error(err))
			metrics.StreamSendFailuresTotal.Inc()
			failed[d.client] = true
			res.Failed++
			continue
		}
		metrics.StreamMessagesSentTotal.Inc()
		failed[d.client] = false
		res.Delivered++
	}

	h.recordSendResults(failed)
	return res
}

// plan computes every client's filtered batch from one consistent view of the registry.
func (h *Hub) plan(updates []models.QuoteUpdate) ([]delivery, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	deliveries := make([]delivery, 0, len(h.clientSubs))
	for client, subs := range h.clientSubs {
		interest := h.effectiveInterestLocked(subs)

		var filtered []models.QuoteUpdate
		for _, u := range updates {
			if interest.Has(u.Symbol) {
				filtered = append(filtered, u)
			}
		}
		if len(filtered) > 0 {
			deliveries = append(deliveries, delivery{client: client, updates: filtered})
		}
	}
	return deliveries, len(h.clientSubs)
}

func (h *Hub) recordSendResults(failed map[Client]bool) {
	var evict []Client

	h.mu.Lock()
	for client, didFail := range failed {
		if _, ok := h.clientSubs[client]; !ok {
			continue
		}
		if !didFail {
			delete(h.sendFailures, client)
			continue
		}
		h.sendFailures[client]++
		if h.evictAfter > 0 && h.sendFailures[client] >= h.evictAfter {
			evict = append(evict, client)
		}
	}
	h.mu.Unlock()

	for _, client := range evict {
		h.logger.Warn("Closing client after repeated send failures",
			zap.String("client", client.ID()), zap.Int("threshold", h.evictAfter))
		client.Close()
	}
}

// SendFailures reports the client's current run of consecutive failed sends.
func (h *Hub) SendFailures(client Client) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sendFailures[client]
}
