// Package sweep deactivates accounts that have been inactive for longer
// than a configured threshold. One run is a single sequential pass over a
// snapshot of the active-user set: protected accounts are skipped, users
// without a last-login record are left untouched, and everything stale gets
// one deactivation attempt. Per-user failures never abort the run.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"identity-sweeper/internal/directory"
)

// ProtectedUsername is always excluded from deactivation, on top of the
// account the sweep runs as.
const ProtectedUsername = "admin"

const DefaultThresholdDays = 60

type Action string

const (
	ActionDeactivated      Action = "deactivated"
	ActionWouldDeactivate  Action = "would_deactivate"
	ActionSkippedProtected Action = "skipped_protected"
	ActionNoLoginRecord    Action = "no_login_record"
	ActionFailed           Action = "deactivation_failed"
)

// Outcome records one non-no-op decision of a run. Users with a recent
// login produce no outcome.
type Outcome struct {
	Username  string     `json:"username"`
	Action    Action     `json:"action"`
	LastLogin *time.Time `json:"last_login,omitempty"`
	Error     string     `json:"error,omitempty"`
}

type Summary struct {
	TotalActive   int       `json:"total_active"`
	Deactivated   int       `json:"deactivated"`
	Skipped       int       `json:"skipped"`
	Failed        int       `json:"failed"`
	NoLoginRecord int       `json:"no_login_record"`
	DryRun        bool      `json:"dry_run"`
	Invoker       string    `json:"invoker"`
	Cutoff        time.Time `json:"cutoff"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

type Report struct {
	Summary  Summary   `json:"summary"`
	Outcomes []Outcome `json:"outcomes"`
}

type Sweeper struct {
	log       *slog.Logger
	dir       directory.Directory
	threshold time.Duration

	// overridable for tests
	now func() time.Time
}

func New(log *slog.Logger, dir directory.Directory, thresholdDays int) *Sweeper {
	if thresholdDays <= 0 {
		thresholdDays = DefaultThresholdDays
	}
	return &Sweeper{
		log:       log,
		dir:       dir,
		threshold: time.Duration(thresholdDays) * 24 * time.Hour,
		now:       time.Now,
	}
}

// Run performs a real sweep: every qualifying user is deactivated.
func (s *Sweeper) Run(ctx context.Context) (*Report, error) {
	return s.sweep(ctx, false)
}

// Preview performs the identical pass without mutating anything; candidates
// are reported as would_deactivate.
func (s *Sweeper) Preview(ctx context.Context) (*Report, error) {
	return s.sweep(ctx, true)
}

func (s *Sweeper) sweep(ctx context.Context, dryRun bool) (*Report, error) {
	started := s.now()
	cutoff := started.Add(-s.threshold)

	// the invoker must be known before anything is mutated
	invoker, err := s.dir.CurrentUsername(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve invoking user: %w", err)
	}

	// one snapshot; accounts changing state mid-run are not re-evaluated
	users, err := s.dir.ListActiveUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}

	s.log.Info("sweep_started",
		"total_active", len(users),
		"cutoff", cutoff,
		"invoker", invoker,
		"dry_run", dryRun,
	)

	summary := Summary{
		TotalActive: len(users),
		DryRun:      dryRun,
		Invoker:     invoker,
		Cutoff:      cutoff,
		StartedAt:   started,
	}
	var outcomes []Outcome

	for _, u := range users {
		if u.Name == ProtectedUsername || u.Name == invoker {
			summary.Skipped++
			outcomes = append(outcomes, Outcome{Username: u.Name, Action: ActionSkippedProtected})
			s.log.Info("skipping_protected_user", "username", u.Name)
			continue
		}

		lastLogin, ok, err := s.dir.LastLogin(ctx, u.Name)
		if err != nil {
			// a failed lookup leaves the user indeterminate, same as a
			// missing record
			summary.NoLoginRecord++
			outcomes = append(outcomes, Outcome{Username: u.Name, Action: ActionNoLoginRecord, Error: err.Error()})
			s.log.Warn("last_login_lookup_failed", "username", u.Name, "error", err)
			continue
		}
		if !ok {
			summary.NoLoginRecord++
			outcomes = append(outcomes, Outcome{Username: u.Name, Action: ActionNoLoginRecord})
			s.log.Warn("no_last_login_record", "username", u.Name)
			continue
		}

		if !lastLogin.Before(cutoff) {
			// logged in recently, nothing to do
			continue
		}

		ll := lastLogin
		if dryRun {
			summary.Deactivated++
			outcomes = append(outcomes, Outcome{Username: u.Name, Action: ActionWouldDeactivate, LastLogin: &ll})
			s.log.Info("would_deactivate_user", "username", u.Name, "last_login", lastLogin)
			continue
		}

		s.log.Info("deactivating_user", "username", u.Name, "last_login", lastLogin)
		if err := s.dir.DeactivateUser(ctx, u.Name); err != nil {
			summary.Failed++
			outcomes = append(outcomes, Outcome{Username: u.Name, Action: ActionFailed, LastLogin: &ll, Error: err.Error()})
			s.log.Error("deactivation_failed", "username", u.Name, "error", err)
			continue
		}
		summary.Deactivated++
		outcomes = append(outcomes, Outcome{Username: u.Name, Action: ActionDeactivated, LastLogin: &ll})
	}

	summary.FinishedAt = s.now()

	s.log.Info("sweep_completed",
		"total_active", summary.TotalActive,
		"deactivated", summary.Deactivated,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"no_login_record", summary.NoLoginRecord,
		"dry_run", dryRun,
	)

	return &Report{Summary: summary, Outcomes: outcomes}, nil
}
