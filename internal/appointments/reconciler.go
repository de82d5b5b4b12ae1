package appointments

import (
	"context"
	"time"

	"github.com/avalon-clinic/scheduling-engine/internal/observability/metrics"
	"github.com/avalon-clinic/scheduling-engine/pkg/logging"
)

// Reconciler periodically revisits appointments stuck in awaiting_payment
// past a threshold and re-polls the gateway for them. Approved transactions
// are confirmed; anything else is flagged for manual review, never
// auto-cancelled.
type Reconciler struct {
	svc       *Service
	logger    *logging.Logger
	metrics   *metrics.SchedulingMetrics
	interval  time.Duration
	threshold time.Duration
}

// NewReconciler creates a reconciliation worker.
func NewReconciler(svc *Service, logger *logging.Logger) *Reconciler {
	if svc == nil {
		panic("appointments: service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Reconciler{
		svc:       svc,
		logger:    logger,
		interval:  10 * time.Minute,
		threshold: 30 * time.Minute,
	}
}

// WithInterval sets how often the worker scans.
func (r *Reconciler) WithInterval(interval time.Duration) *Reconciler {
	if interval > 0 {
		r.interval = interval
	}
	return r
}

// WithThreshold sets how long an appointment may sit in awaiting_payment
// before it is considered stuck.
func (r *Reconciler) WithThreshold(threshold time.Duration) *Reconciler {
	if threshold > 0 {
		r.threshold = threshold
	}
	return r
}

// WithMetrics attaches booking metrics.
func (r *Reconciler) WithMetrics(m *metrics.SchedulingMetrics) *Reconciler {
	r.metrics = m
	return r
}

// Start runs the reconciler. Blocks until context is cancelled.
func (r *Reconciler) Start(ctx context.Context) {
	r.logger.Info("starting payment reconciler",
		"interval", r.interval.String(),
		"threshold", r.threshold.String(),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Run once immediately on startup
	r.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("payment reconciler shutting down")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single reconciliation pass.
func (r *Reconciler) RunOnce(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-r.threshold)
	stuck, err := r.svc.repo.ListStuckAwaitingPayment(ctx, cutoff)
	if err != nil {
		r.logger.Error("listing stuck appointments failed", "error", err)
		return
	}
	r.metrics.SetStuckPayments(len(stuck))
	if len(stuck) == 0 {
		return
	}

	r.logger.Info("reconciling stuck appointments", "count", len(stuck))
	for _, appt := range stuck {
		r.svc.reconcileOne(ctx, appt)
	}
}
