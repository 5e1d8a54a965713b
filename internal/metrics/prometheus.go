package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the viewer server
type Metrics struct {
	// Session metrics
	ActiveSessions   prometheus.Gauge
	SessionsCreated  prometheus.Counter
	CreationFailures *prometheus.CounterVec
	BuildDuration    prometheus.Histogram

	// Connection metrics
	Connections *prometheus.GaugeVec
	Refused     *prometheus.CounterVec

	// Streaming metrics
	ChunksSent   *prometheus.CounterVec
	BytesSent    *prometheus.CounterVec
	SendFailures *prometheus.CounterVec

	// Control channel metrics
	ControlMessages *prometheus.CounterVec
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "gprimview_active_sessions",
			Help: "Current number of viewing sessions in the registry",
		}),
		SessionsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "gprimview_sessions_created_total",
			Help: "Total number of sessions created",
		}),
		CreationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gprimview_session_failures_total",
			Help: "Session creation or geometry build failures by error class",
		}, []string{"class"}),
		BuildDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "gprimview_build_duration_seconds",
			Help:    "Time spent populating session geometry",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4 minutes
		}),

		Connections: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gprimview_connections",
			Help: "Current number of open WebSocket connections by subprotocol",
		}, []string{"protocol"}),
		Refused: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gprimview_connections_refused_total",
			Help: "WebSocket connections refused before or after upgrade by error class",
		}, []string{"class"}),

		ChunksSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gprimview_chunks_sent_total",
			Help: "Encoded chunks delivered by send phase",
		}, []string{"phase"}),
		BytesSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gprimview_bytes_sent_total",
			Help: "Encoded bytes delivered by send phase",
		}, []string{"phase"}),
		SendFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gprimview_send_failures_total",
			Help: "Aborted send cycles by send phase",
		}, []string{"phase"}),

		ControlMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gprimview_control_messages_total",
			Help: "Text channel messages by outcome",
		}, []string{"outcome"}),
	}
}
