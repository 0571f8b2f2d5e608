// Package schedule runs the pipeline on a cron spec.
package schedule

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner wraps robfig/cron and manages the recurring pipeline run.
type Runner struct {
	cron   *cron.Cron
	spec   string // cron spec, e.g. "@every 6h"
	run    func(ctx context.Context)
	logger *zap.Logger

	mu sync.Mutex
}

func New(spec string, run func(ctx context.Context), logger *zap.Logger) *Runner {
	return &Runner{
		cron:   cron.New(),
		spec:   spec,
		run:    run,
		logger: logger,
	}
}

// Start registers the job and starts ticking. The first run fires
// immediately so a fresh deployment does not wait for the first tick.
func (r *Runner) Start(ctx context.Context) error {
	_, err := r.cron.AddFunc(r.spec, func() {
		r.runOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	r.cron.Start()
	r.logger.Info("scheduler started", zap.String("spec", r.spec))

	go r.runOnce(ctx)

	return nil
}

// runOnce skips the tick when the previous run is still going: the pipeline
// must never overlap itself, or the at-most-once send check races.
func (r *Runner) runOnce(ctx context.Context) {
	if !r.mu.TryLock() {
		r.logger.Warn("previous run still in progress, skipping tick")
		return
	}
	defer r.mu.Unlock()

	if ctx.Err() != nil {
		return
	}

	r.run(ctx)
}

// Stop halts the scheduler and waits for a running job to finish.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
	r.mu.Lock() // wait out an in-flight run
	r.mu.Unlock()
	r.logger.Info("scheduler stopped")
}
