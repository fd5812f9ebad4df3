package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the referral engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registrations       *prometheus.CounterVec
	RegistrationLatency prometheus.Histogram
	LedgerEntries       *prometheus.CounterVec
	LedgerAmount        *prometheus.CounterVec
	Withdrawals         *prometheus.CounterVec
	ReconcileMismatches prometheus.Gauge
	ReconcileRuns       *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "referral_registrations_total",
			Help: "Registrations by placement policy and outcome",
		}, []string{"policy", "outcome"}),

		RegistrationLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "referral_registration_duration_seconds",
			Help:    "Time spent in the registration transaction",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		LedgerEntries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "referral_ledger_entries_total",
			Help: "Ledger entries written by reason",
		}, []string{"reason"}),

		LedgerAmount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "referral_ledger_amount_minor_total",
			Help: "Amount moved in minor units by reason",
		}, []string{"reason"}),

		Withdrawals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "referral_withdrawals_total",
			Help: "Withdrawal state transitions",
		}, []string{"status"}),

		ReconcileMismatches: factory.NewGauge(prometheus.GaugeOpts{
			Name: "referral_reconcile_mismatched_accounts",
			Help: "Accounts whose cached balance differs from their ledger sum in the last run",
		}),

		ReconcileRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "referral_reconcile_runs_total",
			Help: "Reconciliation runs by result",
		}, []string{"result"}),
	}
}

// RecordRegistration counts a registration attempt and its latency.
func (m *Metrics) RecordRegistration(policy, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.Registrations.WithLabelValues(policy, outcome).Inc()
	m.RegistrationLatency.Observe(seconds)
}

// RecordLedgerEntry counts a committed ledger write.
func (m *Metrics) RecordLedgerEntry(reason string, amount int64) {
	if m == nil {
		return
	}
	m.LedgerEntries.WithLabelValues(reason).Inc()
	m.LedgerAmount.WithLabelValues(reason).Add(float64(amount))
}

func (m *Metrics) RecordWithdrawal(status string) {
	if m == nil {
		return
	}
	m.Withdrawals.WithLabelValues(status).Inc()
}

// RecordReconcile stores the mismatch count of a reconciliation run.
func (m *Metrics) RecordReconcile(mismatches int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ReconcileRuns.WithLabelValues("error").Inc()
		return
	}
	m.ReconcileRuns.WithLabelValues("ok").Inc()
	m.ReconcileMismatches.Set(float64(mismatches))
}
