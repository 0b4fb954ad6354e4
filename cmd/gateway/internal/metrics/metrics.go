package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stream metrics
var (
	// StreamConnectedClients tracks currently registered stream clients
	StreamConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stream_connected_clients",
			Help: "Number of registered price stream clients",
		},
	)

	// StreamSymbolsTracked tracks the size of the last tick's symbol universe
	StreamSymbolsTracked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stream_symbols_tracked",
			Help: "Symbols fetched during the last scheduler tick",
		},
	)

	StreamTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_ticks_total",
			Help: "Scheduler ticks by outcome (idle, ok, error)",
		},
		[]string{"outcome"},
	)

	StreamTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stream_tick_duration_seconds",
			Help:    "Duration of a polling tick including fetch and broadcast",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	StreamFetchErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stream_fetch_errors_total",
			Help: "Quote fetches that failed and were left out of a batch",
		},
	)

	StreamMessagesSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stream_messages_sent_total",
			Help: "PRICE_UPDATE frames queued to clients",
		},
	)

	StreamSendFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stream_send_failures_total",
			Help: "PRICE_UPDATE frames that could not be queued to a client",
		},
	)
)

// Quote provider metrics
var (
	QuoteCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quote_cache_lookups_total",
			Help: "Quote cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)

	// CircuitBreakerState tracks the provider breaker (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "quote_circuit_breaker_state",
			Help: "Current provider circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"provider"},
	)
)
