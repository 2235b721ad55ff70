package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains the Prometheus metrics of the recognition sessions.
// All methods are safe on a nil receiver so callers can leave metrics disabled.
type Metrics struct {
	// Session lifecycle
	SessionsOpened  prometheus.Counter
	ConnectFailures prometheus.Counter
	ActiveSessions  prometheus.Gauge
	JoinTimeouts    prometheus.Counter

	// Stream traffic
	AudioFrames  prometheus.Counter
	AudioBytes   prometheus.Counter
	SendFailures prometheus.Counter
	Messages     *prometheus.CounterVec
	DecodeErrors prometheus.Counter

	// Results
	Detections      prometheus.Counter
	Results         *prometheus.CounterVec
	RecognitionTime prometheus.Histogram
	RecordTime      prometheus.Histogram

	gatherer prometheus.Gatherer
}

// New creates all metrics and registers them with reg. A nil reg uses a
// fresh private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	latencyBuckets := []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

	return &Metrics{
		SessionsOpened: f.NewCounter(prometheus.CounterOpts{
			Name: "streamhwd_sessions_opened_total",
			Help: "Total number of recognition sessions opened",
		}),
		ConnectFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "streamhwd_connect_failures_total",
			Help: "Total number of failed connections to the recognition server",
		}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "streamhwd_active_sessions",
			Help: "Current number of sessions with a running worker",
		}),
		JoinTimeouts: f.NewCounter(prometheus.CounterOpts{
			Name: "streamhwd_join_timeouts_total",
			Help: "Total number of sessions whose worker missed the end-of-stream deadline",
		}),

		AudioFrames: f.NewCounter(prometheus.CounterOpts{
			Name: "streamhwd_audio_frames_total",
			Help: "Total number of audio frames sent",
		}),
		AudioBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "streamhwd_audio_bytes_total",
			Help: "Total number of audio bytes sent",
		}),
		SendFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "streamhwd_send_failures_total",
			Help: "Total number of failed audio frame sends",
		}),
		Messages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "streamhwd_messages_total",
			Help: "Total number of server messages received by kind",
		}, []string{"kind"}),
		DecodeErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "streamhwd_decode_errors_total",
			Help: "Total number of server messages that were not valid JSON",
		}),

		Detections: f.NewCounter(prometheus.CounterOpts{
			Name: "streamhwd_detections_total",
			Help: "Total number of armed to triggered transitions",
		}),
		Results: f.NewCounterVec(prometheus.CounterOpts{
			Name: "streamhwd_results_total",
			Help: "Total number of finished sessions by outcome",
		}, []string{"ok"}),
		RecognitionTime: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "streamhwd_recognition_seconds",
			Help:    "Time from end-of-stream to the final result",
			Buckets: latencyBuckets,
		}),
		RecordTime: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "streamhwd_record_seconds",
			Help:    "Time from the first detection to the final result",
			Buckets: latencyBuckets,
		}),

		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.SessionsOpened.Inc()
	m.ActiveSessions.Inc()
}

func (m *Metrics) ConnectFailed() {
	if m == nil {
		return
	}
	m.ConnectFailures.Inc()
}

func (m *Metrics) JoinTimedOut() {
	if m == nil {
		return
	}
	m.JoinTimeouts.Inc()
}

func (m *Metrics) AudioSent(n int) {
	if m == nil {
		return
	}
	m.AudioFrames.Inc()
	m.AudioBytes.Add(float64(n))
}

func (m *Metrics) SendFailed() {
	if m == nil {
		return
	}
	m.SendFailures.Inc()
}

func (m *Metrics) MessageReceived(kind string) {
	if m == nil {
		return
	}
	m.Messages.WithLabelValues(kind).Inc()
}

func (m *Metrics) DecodeFailed() {
	if m == nil {
		return
	}
	m.DecodeErrors.Inc()
}

func (m *Metrics) Detected() {
	if m == nil {
		return
	}
	m.Detections.Inc()
}

// SessionFinished records the outcome of a worker exit.
func (m *Metrics) SessionFinished(ok bool, recognition, record time.Duration) {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
	label := "false"
	if ok {
		label = "true"
	}
	m.Results.WithLabelValues(label).Inc()
	if record > 0 {
		m.RecordTime.Observe(record.Seconds())
	}
	if recognition > 0 {
		m.RecognitionTime.Observe(recognition.Seconds())
	}
}
