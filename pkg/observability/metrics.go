package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultStale   = "stale"
)

// Metrics holds the Prometheus metrics of a documind session.
type Metrics struct {
	UploadsTotal      *prometheus.CounterVec
	QuestionsTotal    *prometheus.CounterVec
	CapabilitySeconds *prometheus.HistogramVec
	SeekCommandsTotal prometheus.Counter
	PlaybackMounted   prometheus.Gauge
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		UploadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "documind_uploads_total",
				Help: "Uploads by content kind and result",
			},
			[]string{"kind", "result"},
		),
		QuestionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "documind_questions_total",
				Help: "Questions asked by result",
			},
			[]string{"result"},
		),
		CapabilitySeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "documind_capability_seconds",
				Help:    "Remote capability latency",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"operation"},
		),
		SeekCommandsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "documind_seek_commands_total",
				Help: "Seek commands published",
			},
		),
		PlaybackMounted: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "documind_playback_mounted",
				Help: "1 while a playback surface is mounted",
			},
		),
	}
}

// RecordUpload records a finished upload.
func (m *Metrics) RecordUpload(kind, result string) {
	m.UploadsTotal.WithLabelValues(kind, result).Inc()
}

// RecordQuestion records a finished question.
func (m *Metrics) RecordQuestion(result string) {
	m.QuestionsTotal.WithLabelValues(result).Inc()
}

// RecordLatency records how long a capability call took.
func (m *Metrics) RecordLatency(operation string, seconds float64) {
	m.CapabilitySeconds.WithLabelValues(operation).Observe(seconds)
}

// RecordSeek counts a published seek command.
func (m *Metrics) RecordSeek() {
	m.SeekCommandsTotal.Inc()
}

// SetPlaybackMounted sets the mounted gauge.
func (m *Metrics) SetPlaybackMounted(mounted bool) {
	if mounted {
		m.PlaybackMounted.Set(1)
		return
	}
	m.PlaybackMounted.Set(0)
}
