package sweep

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"identity-sweeper/internal/logging"
)

type fakeStore struct {
	held     bool
	acquired int
	released int
	values   map[string]string
}

func (f *fakeStore) AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if f.held {
		return false, nil
	}
	f.held = true
	f.acquired++
	return true, nil
}

func (f *fakeStore) ReleaseLock(ctx context.Context, key, owner string) error {
	f.held = false
	f.released++
	return nil
}

func (f *fakeStore) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if f.values == nil {
		f.values = make(map[string]string)
	}
	switch v := value.(type) {
	case []byte:
		f.values[key] = string(v)
	case string:
		f.values[key] = v
	}
	return nil
}

func (f *fakeStore) Get(ctx context.Context, key string) (string, error) {
	v, ok := f.values[key]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func newTestRunner(dir *fakeDirectory, store Store) (*Runner, *History) {
	history := NewHistory(5)
	runner := NewRunner(logging.New("error"), newTestSweeper(dir), store, history)
	return runner, history
}

func TestRunner_RecordsHistoryAndSharedReport(t *testing.T) {
	dir := &fakeDirectory{
		invoker: "admin",
		users:   activeUsers("alice"),
		lastLogins: map[string]time.Time{
			"alice": daysAgo(90),
		},
	}
	store := &fakeStore{}
	runner, history := newTestRunner(dir, store)

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if store.acquired != 1 || store.released != 1 {
		t.Errorf("expected lock acquired and released once, got %d/%d", store.acquired, store.released)
	}
	if history.Last() != report {
		t.Error("expected the report to be recorded in history")
	}

	raw, err := store.Get(context.Background(), LastReportKey)
	if err != nil {
		t.Fatalf("expected a shared last report: %v", err)
	}
	var shared Report
	if err := json.Unmarshal([]byte(raw), &shared); err != nil {
		t.Fatalf("failed to decode shared report: %v", err)
	}
	if shared.Summary.Deactivated != 1 {
		t.Errorf("expected shared report to match the run, got %+v", shared.Summary)
	}
}

func TestRunner_SkipsWhenLockHeld(t *testing.T) {
	dir := &fakeDirectory{invoker: "admin"}
	store := &fakeStore{held: true}
	runner, history := newTestRunner(dir, store)

	_, err := runner.Run(context.Background())
	if !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
	if dir.listed {
		t.Error("expected no sweep while the lock is held")
	}
	if history.Len() != 0 {
		t.Error("expected no history entry for a skipped run")
	}
}

func TestRunner_ReleasesLockOnSweepFailure(t *testing.T) {
	dir := &fakeDirectory{invokerErr: errors.New("unauthorized")}
	store := &fakeStore{}
	runner, history := newTestRunner(dir, store)

	if _, err := runner.Run(context.Background()); err == nil {
		t.Fatal("expected the sweep error to surface")
	}
	if store.released != 1 {
		t.Error("expected the lock to be released after a failed run")
	}
	if history.Len() != 0 {
		t.Error("expected no history entry for a failed run")
	}
}
