package sweep

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Job runs the sweep on a fixed interval. Each cycle runs under its own
// timeout and through the runner's lock, so a cycle overlapping a manual
// run (or a cycle on another instance) is skipped, not queued.
type Job struct {
	log      *slog.Logger
	runner   *Runner
	interval time.Duration
	timeout  time.Duration
}

func NewJob(log *slog.Logger, runner *Runner, interval time.Duration) *Job {
	return &Job{
		log:      log,
		runner:   runner,
		interval: interval,
		timeout:  25 * time.Minute, // must stay under the run lock TTL
	}
}

// Start blocks until ctx is cancelled. The first cycle runs immediately.
func (j *Job) Start(ctx context.Context) {
	j.runCycle(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info("sweep_job_stopped")
			return
		case <-ticker.C:
			j.runCycle(ctx)
		}
	}
}

func (j *Job) runCycle(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	if _, err := j.runner.Run(cctx); err != nil {
		if errors.Is(err, ErrRunInProgress) {
			j.log.Info("sweep_cycle_skipped_lock_held")
			return
		}
		j.log.Error("scheduled_sweep_failed", "error", err)
	}
}
