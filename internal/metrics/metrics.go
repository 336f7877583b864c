// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the campaign collectors. A nil *Metrics is valid and
// records nothing, so callers never need to guard instrumentation sites.
type Metrics struct {
	messagesSent   *prometheus.CounterVec
	messagesFailed *prometheus.CounterVec
	leadsSkipped   prometheus.Counter
	runsTotal      *prometheus.CounterVec
	runDuration    prometheus.Histogram
}

// New registers the collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		messagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "outreach_messages_sent_total",
			Help: "Messages accepted by the delivery channel, by sender.",
		}, []string{"sender"}),
		messagesFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "outreach_messages_failed_total",
			Help: "Failed send attempts, by error category.",
		}, []string{"category"}),
		leadsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "outreach_leads_skipped_total",
			Help: "Leads skipped because they were already messaged today.",
		}),
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "outreach_runs_total",
			Help: "Campaign runs, by terminal status.",
		}, []string{"status"}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "outreach_run_duration_seconds",
			Help:    "Wall-clock duration of campaign runs.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}
}

func (m *Metrics) MessageSent(sender string) {
	if m == nil {
		return
	}
	m.messagesSent.WithLabelValues(sender).Inc()
}

func (m *Metrics) MessageFailed(category string) {
	if m == nil {
		return
	}
	m.messagesFailed.WithLabelValues(category).Inc()
}

func (m *Metrics) LeadSkipped() {
	if m == nil {
		return
	}
	m.leadsSkipped.Inc()
}

func (m *Metrics) RunFinished(status string, seconds float64) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.Observe(seconds)
}
