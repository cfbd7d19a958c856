package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/selfrecall/selfrecall/internal/recall"
)

var (
	RecallScheduledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "selfrecall_recall_scheduled_total", Help: "Recalls scheduled, by chat type"},
		[]string{"chat_type"},
	)
	RecallFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "selfrecall_recall_finished_total", Help: "Recalls finished, by outcome"},
		[]string{"outcome"},
	)
	RecallInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "selfrecall_recall_inflight", Help: "Recalls waiting or deleting"},
	)
	RecallDelaySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "selfrecall_recall_delay_seconds", Help: "Delay applied to scheduled recalls", Buckets: prometheus.ExponentialBuckets(5, 2, 8)},
	)
)

var initOnce sync.Once

// Init registers the collectors with the default registry. Safe to call repeatedly.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(RecallScheduledTotal)
		prometheus.MustRegister(RecallFinishedTotal)
		prometheus.MustRegister(RecallInflight)
		prometheus.MustRegister(RecallDelaySeconds)
	})
}

// Observer feeds scheduler events into the collectors.
type Observer struct{}

var _ recall.Observer = Observer{}

func (Observer) Scheduled(a *recall.Action) {
	RecallScheduledTotal.WithLabelValues(string(a.Session().Type)).Inc()
	RecallDelaySeconds.Observe(a.Delay().Seconds())
	RecallInflight.Inc()
}

func (Observer) Finished(a *recall.Action) {
	RecallFinishedTotal.WithLabelValues(a.Outcome()).Inc()
	RecallInflight.Dec()
}
