// Package metrics provides Prometheus metrics for monitoring the gatherer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all Prometheus metrics for the gatherer.
type Registry struct {
	registry *prometheus.Registry

	// WebSocket metrics
	WSMessages    *prometheus.CounterVec
	WSParseErrors *prometheus.CounterVec
	WSReconnects  *prometheus.CounterVec
	SeqGaps       *prometheus.CounterVec
	ConnState     *prometheus.GaugeVec

	// Buffer metrics
	BufferDepth *prometheus.GaugeVec

	// Writer metrics
	FlushDuration *prometheus.HistogramVec
	RowsInserted  *prometheus.CounterVec
	RowConflicts  *prometheus.CounterVec

	// Poller metrics
	PollCycles      prometheus.Counter
	PollErrors      prometheus.Counter
	SnapshotsPolled prometheus.Counter
}

// NewRegistry creates a registry with all gatherer metrics registered.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		WSMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatherer_ws_messages_total",
				Help: "Total WebSocket messages received by channel",
			},
			[]string{"channel"},
		),

		WSParseErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatherer_ws_parse_errors_total",
				Help: "Total WebSocket messages that failed to parse",
			},
			[]string{"channel"},
		),

		WSReconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatherer_ws_reconnects_total",
				Help: "Total WebSocket reconnects by connection",
			},
			[]string{"conn_id"},
		),

		SeqGaps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatherer_seq_gaps_total",
				Help: "Total feed sequence gaps detected by channel",
			},
			[]string{"channel"},
		),

		ConnState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gatherer_connection_up",
				Help: "WebSocket connection state (1 = connected)",
			},
			[]string{"conn_id"},
		),

		BufferDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gatherer_buffer_depth",
				Help: "Current depth of router output buffers",
			},
			[]string{"buffer"},
		),

		FlushDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatherer_flush_duration_seconds",
				Help:    "Duration of writer batch flushes in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"writer"},
		),

		RowsInserted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatherer_rows_inserted_total",
				Help: "Total rows inserted by writer",
			},
			[]string{"writer"},
		),

		RowConflicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatherer_row_conflicts_total",
				Help: "Total duplicate rows skipped by ON CONFLICT",
			},
			[]string{"writer"},
		),

		PollCycles: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gatherer_poll_cycles_total",
				Help: "Total REST snapshot poll cycles completed",
			},
		),

		PollErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gatherer_poll_errors_total",
				Help: "Total REST snapshot poll failures",
			},
		),

		SnapshotsPolled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gatherer_snapshots_polled_total",
				Help: "Total REST snapshots fetched",
			},
		),
	}

	r.registry.MustRegister(
		r.WSMessages,
		r.WSParseErrors,
		r.WSReconnects,
		r.SeqGaps,
		r.ConnState,
		r.BufferDepth,
		r.FlushDuration,
		r.RowsInserted,
		r.RowConflicts,
		r.PollCycles,
		r.PollErrors,
		r.SnapshotsPolled,
	)

	return r
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
