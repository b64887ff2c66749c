package sweep

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

const (
	lockKey = "sweep:run_lock"

	// LastReportKey is where the runner shares the latest real run with
	// other processes (the admin API reads it).
	LastReportKey = "sweep:last_report"

	lockTTL       = 30 * time.Minute
	lastReportTTL = 7 * 24 * time.Hour
)

// ErrRunInProgress is returned when another process already holds the run
// lock. Callers skip, they do not queue.
var ErrRunInProgress = errors.New("a sweep is already running")

// Store provides the cross-process coordination a runner needs: the run
// lock and a slot for the latest report.
type Store interface {
	AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, owner string) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// Runner serializes real sweeps behind the distributed lock and records
// finished runs in history and the shared report slot. Previews are
// read-only and bypass the runner entirely.
type Runner struct {
	log     *slog.Logger
	sweeper *Sweeper
	store   Store
	history *History
	owner   string
}

func NewRunner(log *slog.Logger, sweeper *Sweeper, store Store, history *History) *Runner {
	host, _ := os.Hostname()
	return &Runner{
		log:     log,
		sweeper: sweeper,
		store:   store,
		history: history,
		owner:   fmt.Sprintf("%s-%d", host, os.Getpid()),
	}
}

func (r *Runner) Run(ctx context.Context) (*Report, error) {
	ok, err := r.store.AcquireLock(ctx, lockKey, r.owner, lockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}
	defer func() {
		// release on a fresh context; the run context may be done
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.store.ReleaseLock(rctx, lockKey, r.owner); err != nil {
			r.log.Warn("run_lock_release_failed", "error", err)
		}
	}()

	report, err := r.sweeper.Run(ctx)
	if err != nil {
		return nil, err
	}

	r.history.Add(report)

	if payload, err := json.Marshal(report); err == nil {
		if err := r.store.Set(ctx, LastReportKey, payload, lastReportTTL); err != nil {
			r.log.Warn("last_report_store_failed", "error", err)
		}
	}

	return report, nil
}
