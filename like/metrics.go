package like

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// reconcile outcomes, used as the outcome label
const (
	OutcomeEmpty     = "empty"
	OutcomeNoop      = "noop"
	OutcomeCommitted = "committed"
	OutcomeFailed    = "failed"
	OutcomeParked    = "parked"
	OutcomeDropped   = "dropped"
)

// Metrics are the prometheus collectors of the like engine.
// A nil *Metrics records nothing.
type Metrics struct {
	toggles           *prometheus.CounterVec
	reconciles        *prometheus.CounterVec
	reconcileDuration prometheus.Histogram
	notifications     *prometheus.CounterVec
	pending           prometheus.Gauge
	parked            prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		toggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "likesync_toggles_total",
			Help: "Toggles applied to the cache, by resulting status",
		}, []string{"status"}),
		reconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "likesync_reconcile_total",
			Help: "Reconciliation cycles, by outcome",
		}, []string{"outcome"}),
		reconcileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "likesync_reconcile_duration_seconds",
			Help:    "Duration of reconciliation cycles that drained a tweet",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "likesync_notifications_total",
			Help: "Like notifications dispatched, by result",
		}, []string{"result"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "likesync_pending_queue_length",
			Help: "Tweets waiting in the pending queue at the last sample",
		}),
		parked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "likesync_parked_entities",
			Help: "Tweets parked after exhausting reconciliation attempts at the last sample",
		}),
	}
	reg.MustRegister(m.toggles, m.reconciles, m.reconcileDuration, m.notifications, m.pending, m.parked)
	return m
}

func (m *Metrics) toggled(s Status) {
	if m == nil {
		return
	}
	m.toggles.WithLabelValues(string(s)).Inc()
}

func (m *Metrics) reconciled(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.reconciles.WithLabelValues(outcome).Inc()
	if outcome != OutcomeEmpty && outcome != OutcomeNoop {
		m.reconcileDuration.Observe(took.Seconds())
	}
}

func (m *Metrics) notified(sent, failed int) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues("sent").Add(float64(sent))
	m.notifications.WithLabelValues("failed").Add(float64(failed))
}

func (m *Metrics) backlog(b Backlog) {
	if m == nil {
		return
	}
	m.pending.Set(float64(b.Pending))
	m.parked.Set(float64(b.Parked))
}
