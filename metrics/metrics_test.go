package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordRegistration("spillover", "ok", 0.1)
	m.RecordLedgerEntry("JOIN_BONUS", 100)
	m.RecordWithdrawal("PENDING")
	m.RecordReconcile(1, nil)
}

func TestRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordRegistration("spillover", "ok", 0.01)
	m.RecordRegistration("spillover", "ok", 0.02)
	m.RecordLedgerEntry("JOIN_BONUS", 500000)
	m.RecordReconcile(3, nil)
	m.RecordReconcile(0, errors.New("boom"))

	if got := testutil.ToFloat64(m.Registrations.WithLabelValues("spillover", "ok")); got != 2 {
		t.Errorf("registrations = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.LedgerAmount.WithLabelValues("JOIN_BONUS")); got != 500000 {
		t.Errorf("ledger amount = %v, want 500000", got)
	}
	if got := testutil.ToFloat64(m.ReconcileMismatches); got != 3 {
		t.Errorf("mismatches = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.ReconcileRuns.WithLabelValues("error")); got != 1 {
		t.Errorf("error runs = %v, want 1", got)
	}
}
