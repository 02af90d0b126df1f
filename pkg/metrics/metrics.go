// Package metrics exposes Prometheus instrumentation for rehearsal
// sessions. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors of the service.
type Metrics struct {
	registry *prometheus.Registry

	SessionsActive prometheus.Gauge
	SessionsTotal  *prometheus.CounterVec

	ConversationsTotal   *prometheus.CounterVec
	ConversationDuration *prometheus.HistogramVec
	ConnectFallbacks     prometheus.Counter
	ConversationMessages *prometheus.CounterVec
	ConversationAudio    *prometheus.CounterVec

	RecordingsTotal   *prometheus.CounterVec
	RecordingDuration prometheus.Histogram

	TranscriptionsTotal *prometheus.CounterVec

	WorkflowRunsTotal *prometheus.CounterVec
	WorkflowDuration  prometheus.Histogram

	ErrorsTotal *prometheus.CounterVec

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New creates a Metrics instance with all collectors registered on a
// private registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "rehearse"
	}
	limitBuckets := []float64{15, 30, 60, 120, 300, 600, 900}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of live rehearsal sessions",
		}),
		SessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total sessions created",
		}, []string{"kind"}),
		ConversationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversations_total",
			Help:      "Voice conversations by outcome",
		}, []string{"kind", "outcome"}),
		ConversationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "conversation_duration_seconds",
			Help:      "Voice conversation duration by end reason",
			Buckets:   limitBuckets,
		}, []string{"kind", "reason"}),
		ConnectFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_fallbacks_total",
			Help:      "Connections that fell back from a signed URL to the direct agent",
		}),
		ConversationMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversation_messages_total",
			Help:      "Voice provider messages by direction",
		}, []string{"kind", "direction"}),
		ConversationAudio: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversation_audio_bytes_total",
			Help:      "Voice provider PCM bytes by direction",
		}, []string{"kind", "direction"}),
		RecordingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_total",
			Help:      "Finished declaration recordings",
		}, []string{"stop"}),
		RecordingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recording_duration_seconds",
			Help:      "Declaration recording duration",
			Buckets:   limitBuckets,
		}),
		TranscriptionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcriptions_total",
			Help:      "Declaration transcriptions by result",
		}, []string{"result"}),
		WorkflowRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_runs_total",
			Help:      "Post-session workflow attempts by result",
		}, []string{"kind", "result"}),
		WorkflowDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_duration_seconds",
			Help:      "Post-session workflow duration",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120},
		}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Recovered session errors by code",
		}, []string{"code"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP API requests",
		}, []string{"method", "route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP API request duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		m.SessionsActive,
		m.SessionsTotal,
		m.ConversationsTotal,
		m.ConversationDuration,
		m.ConnectFallbacks,
		m.ConversationMessages,
		m.ConversationAudio,
		m.RecordingsTotal,
		m.RecordingDuration,
		m.TranscriptionsTotal,
		m.WorkflowRunsTotal,
		m.WorkflowDuration,
		m.ErrorsTotal,
		m.RequestsTotal,
		m.RequestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SessionStarted records a new session.
func (m *Metrics) SessionStarted(kind string) {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
	m.SessionsTotal.WithLabelValues(kind).Inc()
}

// SessionClosed records a closed session.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

// ConversationConnected records an established conversation.
func (m *Metrics) ConversationConnected(kind string) {
	if m == nil {
		return
	}
	m.ConversationsTotal.WithLabelValues(kind, "connected").Inc()
}

// ConversationFailed records a conversation that could not be established.
func (m *Metrics) ConversationFailed(kind string) {
	if m == nil {
		return
	}
	m.ConversationsTotal.WithLabelValues(kind, "failed").Inc()
}

// ConversationEnded records the duration and reason of a conversation.
func (m *Metrics) ConversationEnded(kind, reason string, d time.Duration) {
	if m == nil {
		return
	}
	m.ConversationDuration.WithLabelValues(kind, reason).Observe(d.Seconds())
}

// ConversationTraffic records what one conversation exchanged with the
// voice provider.
func (m *Metrics) ConversationTraffic(kind string, sent, received, audioSent, audioReceived int64) {
	if m == nil {
		return
	}
	m.ConversationMessages.WithLabelValues(kind, "sent").Add(float64(sent))
	m.ConversationMessages.WithLabelValues(kind, "received").Add(float64(received))
	m.ConversationAudio.WithLabelValues(kind, "sent").Add(float64(audioSent))
	m.ConversationAudio.WithLabelValues(kind, "received").Add(float64(audioReceived))
}

// Fallback records a signed-URL fallback.
func (m *Metrics) Fallback() {
	if m == nil {
		return
	}
	m.ConnectFallbacks.Inc()
}

// RecordingFinished records a recording artifact.
func (m *Metrics) RecordingFinished(auto bool, d time.Duration) {
	if m == nil {
		return
	}
	stop := "manual"
	if auto {
		stop = "limit"
	}
	m.RecordingsTotal.WithLabelValues(stop).Inc()
	m.RecordingDuration.Observe(d.Seconds())
}

// Transcription records a transcription result: "ok", "empty" or "error".
func (m *Metrics) Transcription(result string) {
	if m == nil {
		return
	}
	m.TranscriptionsTotal.WithLabelValues(result).Inc()
}

// WorkflowRun records a workflow attempt.
func (m *Metrics) WorkflowRun(kind, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.WorkflowRunsTotal.WithLabelValues(kind, result).Inc()
	m.WorkflowDuration.Observe(d.Seconds())
}

// Error records a recovered error code.
func (m *Metrics) Error(code string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(code).Inc()
}

// Request records a completed HTTP request.
func (m *Metrics) Request(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
