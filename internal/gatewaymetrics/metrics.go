// Package gatewaymetrics is the single process-wide Prometheus registry
// (spec.md §9 "Global mutable state"): initialized once at process start,
// never mutated thereafter beyond counter increments. Modeled on the
// teacher's root-level metrics.go.
package gatewaymetrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every counter/gauge/histogram the gateway core touches.
type Metrics struct {
	AuthFailures    *prometheus.CounterVec // {reason}
	RateLimitHits   *prometheus.CounterVec // {surface,reason}
	WSDisconnects   *prometheus.CounterVec // {reason}
	EventsEmitted   *prometheus.CounterVec // {scope,event_type}
	EventsDropped   *prometheus.CounterVec // {scope,event_type,reason}
	SerializeErrors prometheus.Counter
	ParseErrors     *prometheus.CounterVec // {surface}
	UnknownEvents   *prometheus.CounterVec // {surface}

	ConnectionsActive prometheus.Gauge
	VoiceParticipants prometheus.Gauge

	SearchBatchSize    prometheus.Histogram
	SearchApplyLatency prometheus.Histogram
	SearchQueryLatency prometheus.Histogram
}

// New registers every metric against reg and returns the bundle. Call once
// at process start; reg is typically prometheus.NewRegistry() or
// prometheus.DefaultRegisterer wrapped in a *prometheus.Registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_auth_failures_total",
			Help: "Authentication failures by reason.",
		}, []string{"reason"}),
		RateLimitHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_rate_limit_hits_total",
			Help: "Rate limit rejections by surface and reason.",
		}, []string{"surface", "reason"}),
		WSDisconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_ws_disconnects_total",
			Help: "WebSocket disconnects by reason.",
		}, []string{"reason"}),
		EventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_events_emitted_total",
			Help: "Gateway events delivered to at least one listener.",
		}, []string{"scope", "event_type"}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_events_dropped_total",
			Help: "Gateway events dropped before or during fan-out.",
		}, []string{"scope", "event_type", "reason"}),
		SerializeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_serialize_errors_total",
			Help: "Envelope serialization failures.",
		}),
		ParseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_parse_errors_total",
			Help: "Ingress frames that failed to parse.",
		}, []string{"surface"}),
		UnknownEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_unknown_events_total",
			Help: "Ingress commands with an unrecognized event type.",
		}, []string{"surface"}),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_connections_active",
			Help: "Currently registered connections.",
		}),
		VoiceParticipants: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_voice_participants_active",
			Help: "Currently tracked voice participants.",
		}),
		SearchBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gateway_search_batch_size",
			Help:    "Number of commands applied per search writer batch.",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128},
		}),
		SearchApplyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gateway_search_apply_latency_seconds",
			Help:    "Time to apply and commit one search writer batch.",
			Buckets: prometheus.DefBuckets,
		}),
		SearchQueryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gateway_search_query_latency_seconds",
			Help:    "Time to execute one search query on the blocking worker.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.AuthFailures, m.RateLimitHits, m.WSDisconnects, m.EventsEmitted,
		m.EventsDropped, m.SerializeErrors, m.ParseErrors, m.UnknownEvents,
		m.ConnectionsActive, m.VoiceParticipants, m.SearchBatchSize,
		m.SearchApplyLatency, m.SearchQueryLatency,
	)
	return m
}
