package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const DefaultNamespace = "vibevote"

// Metrics holds all Prometheus metrics for the server. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RateLimitHits   *prometheus.CounterVec

	// App
	SessionsActive prometheus.Gauge
	LoginsTotal    *prometheus.CounterVec
	VotesTotal     *prometheus.CounterVec

	// AI panels
	ChatTurnsTotal *prometheus.CounterVec
	ImagesTotal    *prometheus.CounterVec
	VideoJobsTotal *prometheus.CounterVec

	// Live voice
	LiveSessionsActive  prometheus.Gauge
	LiveSessionsTotal   *prometheus.CounterVec
	LiveSessionDuration prometheus.Histogram
	LiveAudioBytesTotal *prometheus.CounterVec
	LiveInterruptions   prometheus.Counter
	LiveFramesDropped   prometheus.Counter
}

// New registers every metric on a private registry so several servers can
// coexist in one process (tests).
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(registry)

	return &Metrics{
		registry: registry,
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"route", "method", "status"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"route"}),
		RateLimitHits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Total number of rejected requests by limit type",
		}, []string{"limit_type"}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of client sessions held in memory",
		}),
		LoginsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by result",
		}, []string{"result"}),
		VotesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_total",
			Help:      "Votes cast by choice",
		}, []string{"choice"}),
		ChatTurnsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_turns_total",
			Help:      "Chat turns by mode and result",
		}, []string{"mode", "result"}),
		ImagesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_total",
			Help:      "Image generations and edits by result",
		}, []string{"op", "result"}),
		VideoJobsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "video_jobs_total",
			Help:      "Finished video jobs by status",
		}, []string{"status"}),
		LiveSessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_sessions_active",
			Help:      "Number of active live voice sessions",
		}),
		LiveSessionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_sessions_total",
			Help:      "Finished live voice sessions by final state",
		}, []string{"status"}),
		LiveSessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "live_session_duration_seconds",
			Help:      "Live session duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		LiveAudioBytesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_audio_bytes_total",
			Help:      "PCM bytes relayed in live sessions",
		}, []string{"direction"}),
		LiveInterruptions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_interruptions_total",
			Help:      "Barge-in interruptions reported by the vendor",
		}),
		LiveFramesDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_outbound_frames_dropped_total",
			Help:      "Outbound websocket frames dropped because the client queue was full",
		}),
	}
}

// Handler serves the exposition format for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.RequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

func (m *Metrics) RecordRateLimitHit(limitType string) {
	if m == nil {
		return
	}
	m.RateLimitHits.WithLabelValues(limitType).Inc()
}

func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(n))
}

func (m *Metrics) RecordLogin(ok bool) {
	if m == nil {
		return
	}
	m.LoginsTotal.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) RecordVote(liked bool) {
	if m == nil {
		return
	}
	choice := "skip"
	if liked {
		choice = "like"
	}
	m.VotesTotal.WithLabelValues(choice).Inc()
}

func (m *Metrics) RecordChatTurn(mode string, ok bool) {
	if m == nil {
		return
	}
	m.ChatTurnsTotal.WithLabelValues(mode, result(ok)).Inc()
}

func (m *Metrics) RecordImage(op string, ok bool) {
	if m == nil {
		return
	}
	m.ImagesTotal.WithLabelValues(op, result(ok)).Inc()
}

func (m *Metrics) RecordVideoJob(status string) {
	if m == nil {
		return
	}
	m.VideoJobsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordLiveSessionStart() {
	if m == nil {
		return
	}
	m.LiveSessionsActive.Inc()
}

func (m *Metrics) RecordLiveSessionEnd(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.LiveSessionsActive.Dec()
	m.LiveSessionsTotal.WithLabelValues(status).Inc()
	m.LiveSessionDuration.Observe(duration.Seconds())
}

// RecordLiveAudio counts relayed bytes; direction is "in" or "out".
func (m *Metrics) RecordLiveAudio(direction string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.LiveAudioBytesTotal.WithLabelValues(direction).Add(float64(n))
}

func (m *Metrics) RecordLiveInterruption() {
	if m == nil {
		return
	}
	m.LiveInterruptions.Inc()
}

func (m *Metrics) RecordLiveFrameDropped() {
	if m == nil {
		return
	}
	m.LiveFramesDropped.Inc()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
