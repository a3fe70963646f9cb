// Package metrics holds the reconciliation Prometheus instruments. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	depositsIngested  *prometheus.CounterVec
	matchesCommitted  *prometheus.CounterVec
	matchScores       *prometheus.HistogramVec
	unmatches         prometheus.Counter
	auditFailures     prometheus.Counter
	publishFailures   prometheus.Counter
	webhookRejections *prometheus.CounterVec
}

// New registers the instruments on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		depositsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reconciliation_deposits_ingested_total",
			Help: "Deposit notifications processed, by provider and outcome.",
		}, []string{"provider", "outcome"}),
		matchesCommitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reconciliation_matches_committed_total",
			Help: "Deposit to order matches committed, by match type.",
		}, []string{"match_type"}),
		matchScores: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reconciliation_match_score",
			Help:    "Score of committed matches.",
			Buckets: []float64{0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		}, []string{"match_type"}),
		unmatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reconciliation_unmatches_total",
			Help: "Matches invalidated by an explicit unmatch.",
		}),
		auditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reconciliation_audit_write_failures_total",
			Help: "Audit log entries that could not be written.",
		}),
		publishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reconciliation_event_publish_failures_total",
			Help: "Match events that could not be published.",
		}),
		webhookRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reconciliation_webhook_rejections_total",
			Help: "Webhook deliveries rejected before ingestion, by provider and reason.",
		}, []string{"provider", "reason"}),
	}

	collectors := []prometheus.Collector{
		m.depositsIngested,
		m.matchesCommitted,
		m.matchScores,
		m.unmatches,
		m.auditFailures,
		m.publishFailures,
		m.webhookRejections,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) RecordIngest(provider, outcome string) {
	if m == nil {
		return
	}
	m.depositsIngested.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) RecordMatch(matchType string, score float64) {
	if m == nil {
		return
	}
	m.matchesCommitted.WithLabelValues(matchType).Inc()
	m.matchScores.WithLabelValues(matchType).Observe(score)
}

func (m *Metrics) RecordUnmatch() {
	if m == nil {
		return
	}
	m.unmatches.Inc()
}

func (m *Metrics) RecordAuditFailure() {
	if m == nil {
		return
	}
	m.auditFailures.Inc()
}

func (m *Metrics) RecordPublishFailure() {
	if m == nil {
		return
	}
	m.publishFailures.Inc()
}

func (m *Metrics) RecordWebhookRejection(provider, reason string) {
	if m == nil {
		return
	}
	m.webhookRejections.WithLabelValues(provider, reason).Inc()
}
