// Package metrics holds the Prometheus collectors and the /healthz status.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the signal engine.
type Metrics struct {
	// Ingestion
	TicksTotal        prometheus.Counter
	MalformedMessages prometheus.Counter
	WSReconnects      prometheus.Counter
	SubscribeBatches  prometheus.Counter
	FallbackPolls     *prometheus.CounterVec // labels: result=ok|error
	IngestState       prometheus.Gauge       // ingest.State value
	QuoteStaleness    prometheus.Gauge

	// Listener registry backpressure
	ListenerDrops         *prometheus.CounterVec // labels: listener
	ListenerPanics        *prometheus.CounterVec // labels: listener
	ListenerSaturationPct *prometheus.GaugeVec   // labels: listener

	// Signal pipeline
	AnalysisDur     prometheus.Histogram
	SignalsTotal    *prometheus.CounterVec // labels: direction
	RejectionsTotal *prometheus.CounterVec // labels: reason
	DataQuality     prometheus.Histogram
	SinkErrors      *prometheus.CounterVec // labels: sink

	// Redis publisher
	RedisWriteDur            prometheus.Histogram
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter

	// Forex session
	MarketState prometheus.Gauge // 0=closed, 1=open
}

// NewMetrics creates every collector and registers it with reg
// (prometheus.DefaultRegisterer when nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_ticks_total",
			Help: "Total price ticks applied to the quote cache",
		}),
		MalformedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_malformed_messages_total",
			Help: "Inbound provider messages dropped as malformed",
		}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_ws_reconnects_total",
			Help: "Total WebSocket reconnection attempts",
		}),
		SubscribeBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_subscribe_batches_total",
			Help: "Subscription batch frames sent to the provider",
		}),
		FallbackPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalengine_fallback_polls_total",
			Help: "REST fallback polls by result",
		}, []string{"result"}),
		IngestState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalengine_ingest_state",
			Help: "Ingest state (0=disconnected, 1=connecting, 2=subscribing, 3=streaming, 4=reconnecting, 5=fallback)",
		}),
		QuoteStaleness: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalengine_quote_staleness_seconds",
			Help: "Seconds since the last quote cache update",
		}),

		ListenerDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalengine_listener_drops_total",
			Help: "Quotes dropped for a slow listener",
		}, []string{"listener"}),
		ListenerPanics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalengine_listener_panics_total",
			Help: "Recovered listener panics",
		}, []string{"listener"}),
		ListenerSaturationPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signalengine_listener_saturation_pct",
			Help: "Listener mailbox fill percentage (len/cap * 100)",
		}, []string{"listener"}),

		AnalysisDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalengine_analysis_duration_seconds",
			Help:    "Duration of one AnalyzeAll pass",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalengine_signals_total",
			Help: "Signals emitted by direction",
		}, []string{"direction"}),
		RejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalengine_rejections_total",
			Help: "Analysis passes that produced no signal, by reason",
		}, []string{"reason"}),
		DataQuality: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalengine_data_quality_score",
			Help:    "Data quality score per analysis pass",
			Buckets: []float64{40, 50, 60, 70, 80, 90, 95, 100},
		}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalengine_sink_errors_total",
			Help: "Signal sink failures or dropped results, by sink",
		}, []string{"sink"}),

		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalengine_redis_write_duration_seconds",
			Help:    "Redis publish latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalengine_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),

		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalengine_market_state",
			Help: "Forex session state (0=closed, 1=open)",
		}),
	}

	reg.MustRegister(
		m.TicksTotal,
		m.MalformedMessages,
		m.WSReconnects,
		m.SubscribeBatches,
		m.FallbackPolls,
		m.IngestState,
		m.QuoteStaleness,
		m.ListenerDrops,
		m.ListenerPanics,
		m.ListenerSaturationPct,
		m.AnalysisDur,
		m.SignalsTotal,
		m.RejectionsTotal,
		m.DataQuality,
		m.SinkErrors,
		m.RedisWriteDur,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.MarketState,
	)

	return m
}
