// Package queue drives the task queue: it polls for claimable tasks per
// pipeline stage and fans them out to bounded worker pools.
package queue

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/edgar-monitor/internal/model"
	"github.com/sells-group/edgar-monitor/internal/resilience"
	"github.com/sells-group/edgar-monitor/internal/store"
)

// Worker processes claimed tasks for one pipeline stage. Process must be
// idempotent: tasks are delivered at least once.
type Worker interface {
	Stage() model.TaskStage
	Process(ctx context.Context, task model.Task) error
}

// PoolConfig binds a worker to its concurrency limit.
type PoolConfig struct {
	Worker      Worker
	Concurrency int
}

// Options tunes dispatcher polling behavior.
type Options struct {
	PollInterval time.Duration
	Visibility   time.Duration
	RetryBase    time.Duration
}

// Dispatcher runs one polling loop per registered stage, each feeding a
// bounded errgroup of workers. It stops when its context is canceled and
// waits for in-flight tasks to finish.
type Dispatcher struct {
	store store.Store
	pools []PoolConfig
	opts  Options
}

func NewDispatcher(st store.Store, pools []PoolConfig, opts Options) *Dispatcher {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.Visibility <= 0 {
		opts.Visibility = 10 * time.Minute
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 30 * time.Second
	}
	return &Dispatcher{store: st, pools: pools, opts: opts}
}

// Run blocks until ctx is canceled, polling each stage on its own loop.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, pool := range d.pools {
		g.Go(func() error {
			return d.runPool(ctx, pool)
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (d *Dispatcher) runPool(ctx context.Context, pool PoolConfig) error {
	concurrency := pool.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	stage := pool.Worker.Stage()
	zap.L().Info("worker pool started",
		zap.String("stage", string(stage)),
		zap.Int("concurrency", concurrency))

	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()

	for {
		// Drain available work before sleeping so a burst of filings does
		// not wait one poll interval per batch.
		for {
			n, err := d.dispatchBatch(ctx, pool.Worker, stage, concurrency)
			if err != nil {
				return err
			}
			if n == 0 {
				break
			}
		}

		select {
		case <-ctx.Done():
			zap.L().Info("worker pool stopped", zap.String("stage", string(stage)))
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// dispatchBatch claims up to concurrency tasks and processes them in
// parallel. Returns how many tasks were claimed.
func (d *Dispatcher) dispatchBatch(ctx context.Context, w Worker, stage model.TaskStage, concurrency int) (int, error) {
	tasks, err := d.store.ClaimTasks(ctx, stage, concurrency, d.opts.Visibility)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		zap.L().Error("claim tasks failed",
			zap.String("stage", string(stage)), zap.Error(err))
		return 0, nil
	}
	if len(tasks) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, task := range tasks {
		g.Go(func() error {
			d.runTask(gctx, w, task)
			return nil
		})
	}
	_ = g.Wait()
	return len(tasks), nil
}

// runTask isolates one task: a worker error releases the task for a later
// attempt instead of propagating.
func (d *Dispatcher) runTask(ctx context.Context, w Worker, task model.Task) {
	err := w.Process(ctx, task)
	if err == nil {
		return
	}

	zap.L().Error("task processing failed",
		zap.String("stage", string(task.Stage)),
		zap.String("accession", task.AccessionNumber),
		zap.Int("attempts", task.Attempts),
		zap.Error(err))

	nextAttempt := resilience.NextRetryAt(time.Now().UTC(), task.Attempts, d.opts.RetryBase)
	if relErr := d.store.ReleaseTask(ctx, task.ID, nextAttempt); relErr != nil {
		zap.L().Error("release task failed",
			zap.String("task_id", task.ID), zap.Error(relErr))
	}
}
