// Package scheduler runs the periodic discovery loop: scan the feed on an
// interval, requeue retryable failures, and support on-demand scans
// triggered through the API.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/edgar-monitor/internal/edgar"
)

// Scanner performs one discovery pass. *edgar.Scanner satisfies this.
type Scanner interface {
	Scan(ctx context.Context) (*edgar.ScanResult, error)
}

// Requeuer moves retryable failed filings back into the queue.
// store.Store satisfies this.
type Requeuer interface {
	RequeueRetryable(ctx context.Context, maxAttempts int) (int, error)
}

// Options tunes the scheduler loop.
type Options struct {
	Interval    time.Duration
	MaxAttempts int
}

// Counters is a snapshot of scheduler activity since start.
type Counters struct {
	ScansRun     int64 `json:"scans_run"`
	FilingsFound int64 `json:"filings_found"`
	Requeued     int64 `json:"requeued"`
}

// Scheduler ticks on a fixed interval and also accepts manual triggers.
// A trigger arriving while a scan is pending coalesces into one run.
type Scheduler struct {
	scanner  Scanner
	requeuer Requeuer
	opts     Options

	trigger chan struct{}

	scansRun     atomic.Int64
	filingsFound atomic.Int64
	requeued     atomic.Int64
}

func New(scanner Scanner, requeuer Requeuer, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 60 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	return &Scheduler{
		scanner:  scanner,
		requeuer: requeuer,
		opts:     opts,
		trigger:  make(chan struct{}, 1),
	}
}

// TriggerNow requests an immediate scan. Returns false when a manual scan
// is already pending.
func (s *Scheduler) TriggerNow() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Stats returns activity counters for the status surface.
func (s *Scheduler) Stats() Counters {
	return Counters{
		ScansRun:     s.scansRun.Load(),
		FilingsFound: s.filingsFound.Load(),
		Requeued:     s.requeued.Load(),
	}
}

// Run blocks until ctx is canceled. The first scan fires immediately so a
// fresh process does not wait a full interval before discovering anything.
func (s *Scheduler) Run(ctx context.Context) error {
	zap.L().Info("scheduler started", zap.Duration("interval", s.opts.Interval))

	s.cycle(ctx)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.cycle(ctx)
		case <-s.trigger:
			zap.L().Info("manual scan triggered")
			s.cycle(ctx)
		}
	}
}

// cycle runs one scan plus a requeue sweep. Errors are logged, not fatal:
// the next tick tries again.
func (s *Scheduler) cycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	result, err := s.scanner.Scan(ctx)
	if err != nil {
		zap.L().Error("scan failed", zap.Error(err))
	} else {
		s.scansRun.Add(1)
		s.filingsFound.Add(int64(result.New))
	}

	n, err := s.requeuer.RequeueRetryable(ctx, s.opts.MaxAttempts)
	if err != nil {
		zap.L().Error("requeue sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.requeued.Add(int64(n))
		zap.L().Info("requeued failed filings", zap.Int("count", n))
	}
}
