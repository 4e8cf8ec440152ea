package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds pipeline instrumentation.
type Metrics struct {
	Received      prometheus.Counter
	DecodeErrors  prometheus.Counter
	EventsWritten prometheus.Counter
	AlertsEmitted prometheus.Counter
	FlushFailures *prometheus.CounterVec
	BatchSize     prometheus.Histogram
}

// NewMetrics registers pipeline metrics with reg. A nil reg creates
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Received: f.NewCounter(prometheus.CounterOpts{
			Namespace: "memtrace",
			Subsystem: "pipeline",
			Name:      "payloads_received_total",
			Help:      "Total number of raw payloads popped from the input queue.",
		}),
		DecodeErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "memtrace",
			Subsystem: "pipeline",
			Name:      "decode_errors_total",
			Help:      "Total number of payloads dropped because they failed to decode.",
		}),
		EventsWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: "memtrace",
			Subsystem: "pipeline",
			Name:      "events_written_total",
			Help:      "Total number of decoded events written to the event sink.",
		}),
		AlertsEmitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "memtrace",
			Subsystem: "pipeline",
			Name:      "alerts_emitted_total",
			Help:      "Total number of deferred-pressure alerts emitted.",
		}),
		FlushFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "memtrace",
			Subsystem: "pipeline",
			Name:      "flush_failures_total",
			Help:      "Total number of failed sink writes, by sink.",
		}, []string{"sink"}),
		BatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "memtrace",
			Subsystem: "pipeline",
			Name:      "flush_batch_size",
			Help:      "Number of events per flushed batch.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}
}
