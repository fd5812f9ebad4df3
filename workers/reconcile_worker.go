// workers/reconcile_worker.go
package workers

import (
	"context"
	"fmt"
	"log"
	"time"

	"binary-referral-system/metrics"
	"binary-referral-system/services"

	"github.com/go-co-op/gocron/v2"
)

// ReconcileWorker periodically compares cached balances with ledger sums.
// It only reports; it never rewrites balances.
type ReconcileWorker struct {
	ledger   *services.LedgerService
	metrics  *metrics.Metrics
	interval time.Duration
	sched    gocron.Scheduler
}

func NewReconcileWorker(ledger *services.LedgerService, m *metrics.Metrics, interval time.Duration) *ReconcileWorker {
	return &ReconcileWorker{ledger: ledger, metrics: m, interval: interval}
}

// Start schedules the job and stops it when ctx is cancelled.
func (w *ReconcileWorker) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(w.interval),
		gocron.NewTask(func() { w.RunOnce(ctx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule reconcile job: %w", err)
	}

	w.sched = sched
	sched.Start()
	log.Printf("🔁 [RECONCILE] ledger reconciliation every %s", w.interval)

	go func() {
		<-ctx.Done()
		if err := sched.Shutdown(); err != nil {
			log.Printf("⚠️ [RECONCILE] scheduler shutdown: %v", err)
		}
		log.Println("[RECONCILE] stopped.")
	}()
	return nil
}

// RunOnce performs a single reconciliation pass and returns the mismatch count.
func (w *ReconcileWorker) RunOnce(ctx context.Context) int {
	mismatches, err := w.ledger.Reconcile(ctx)
	w.metrics.RecordReconcile(len(mismatches), err)
	if err != nil {
		log.Printf("❌ [RECONCILE] %v", err)
		return 0
	}
	if len(mismatches) > 0 {
		log.Printf("⚠️ [RECONCILE] %d account(s) disagree with their ledger", len(mismatches))
		return len(mismatches)
	}
	log.Println("✅ [RECONCILE] all accounts match their ledger")
	return 0
}
