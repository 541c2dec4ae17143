package speechstream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors updated by sessions.
type Metrics struct {
	SessionsStarted prometheus.Counter
	SessionsFailed  *prometheus.CounterVec
	ActiveSessions  prometheus.Gauge
	FramesSent      prometheus.Counter
	BytesSent       prometheus.Counter
	ResultsReceived *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "speechstream_sessions_started_total",
			Help: "Total number of streaming sessions whose config was accepted",
		}),
		SessionsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "speechstream_sessions_failed_total",
			Help: "Total number of streaming sessions that ended in error, by error kind",
		}, []string{"kind"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "speechstream_active_sessions",
			Help: "Number of sessions currently holding an open channel",
		}),
		FramesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "speechstream_audio_frames_sent_total",
			Help: "Total number of audio frames written",
		}),
		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "speechstream_audio_bytes_sent_total",
			Help: "Total number of audio bytes written",
		}),
		ResultsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "speechstream_results_received_total",
			Help: "Total number of recognition results received, by type",
		}, []string{"type"}),
	}
}

func (m *Metrics) sessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
	m.ActiveSessions.Inc()
}

func (m *Metrics) sessionEnded() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

func (m *Metrics) sessionFailed(kind string) {
	if m == nil {
		return
	}
	m.SessionsFailed.WithLabelValues(kind).Inc()
}

func (m *Metrics) frameSent(n int) {
	if m == nil {
		return
	}
	m.FramesSent.Inc()
	m.BytesSent.Add(float64(n))
}

func (m *Metrics) resultReceived(res *RecognitionResult) {
	if m == nil || res == nil {
		return
	}
	kind := "partial"
	if res.IsFinal {
		kind = "final"
	}
	m.ResultsReceived.WithLabelValues(kind).Inc()
}
