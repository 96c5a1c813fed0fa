package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ayo6706/custodial-ledger/internal/observability"
	"github.com/ayo6706/custodial-ledger/internal/service"
	"go.uber.org/zap"
)

const payoutLockKey = "payout-scheduler"

// PayoutRunner is the part of service.PayoutService the scheduler drives.
type PayoutRunner interface {
	ProcessDue(ctx context.Context) (service.PayoutRunResult, error)
}

// PayoutScheduler matures due investments on a fixed interval. With a Locker
// configured only one instance runs each tick; without one the per-investment
// claim still guarantees each payout happens once.
type PayoutScheduler struct {
	payouts      PayoutRunner
	locker       Locker
	pollInterval time.Duration
	stopCh       chan struct{}
	stopOnce     sync.Once
}

func NewPayoutScheduler(payouts PayoutRunner) *PayoutScheduler {
	return &PayoutScheduler{
		payouts:      payouts,
		pollInterval: 5 * time.Minute,
		stopCh:       make(chan struct{}),
	}
}

// WithPollInterval sets the tick interval.
func (w *PayoutScheduler) WithPollInterval(interval time.Duration) *PayoutScheduler {
	if interval > 0 {
		w.pollInterval = interval
	}
	return w
}

// WithLocker makes each tick acquire a shared lease first.
func (w *PayoutScheduler) WithLocker(locker Locker) *PayoutScheduler {
	w.locker = locker
	return w
}

// Start blocks until ctx is cancelled or Stop is called.
func (w *PayoutScheduler) Start(ctx context.Context) {
	zap.L().Info("payout scheduler starting", zap.Duration("interval", w.pollInterval), zap.Bool("locked", w.locker != nil))

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("payout scheduler context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("payout scheduler stop signal received")
			return
		case <-ticker.C:
			if _, err := w.ProcessOnce(ctx); err != nil {
				zap.L().Error("payout run failed", zap.Error(err))
			}
		}
	}
}

func (w *PayoutScheduler) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the scheduler in a goroutine and returns a stop function.
func (w *PayoutScheduler) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

// ProcessOnce runs a single pass immediately. ran is false when another
// instance holds the lease.
func (w *PayoutScheduler) ProcessOnce(ctx context.Context) (ran bool, err error) {
	if w.locker != nil {
		release, ok, err := w.locker.TryLock(ctx, payoutLockKey, w.pollInterval)
		if err != nil {
			observability.IncrementWorkerRun("payout", "failed")
			return false, err
		}
		if !ok {
			observability.IncrementWorkerRun("payout", "skipped")
			return false, nil
		}
		defer release(context.WithoutCancel(ctx))
	}

	result, err := w.payouts.ProcessDue(ctx)
	if err != nil {
		observability.IncrementWorkerRun("payout", "failed")
		return true, err
	}
	observability.IncrementWorkerRun("payout", "success")
	if result.Due > 0 {
		zap.L().Debug("payout tick", zap.Int("due", result.Due), zap.Int("paid", result.Paid))
	}
	return true, nil
}
