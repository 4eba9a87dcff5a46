package listener

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"invsync/internal"
	"invsync/internal/config"
	"invsync/internal/storage"
)

type fakeRunner struct {
	results []internal.RunResult
	calls   []bool // force flag per call
}

func (f *fakeRunner) Run(ctx context.Context, force bool) (internal.RunResult, error) {
	f.calls = append(f.calls, force)
	if len(f.results) == 0 {
		return internal.RunResult{Outcome: internal.OutcomeSkipped}, nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result, nil
}

func newListenerFixture(t *testing.T, r *fakeRunner) (*Service, *storage.DB) {
	t.Helper()

	cfg := config.Config{
		CheckTimes:        []string{"08:05"},
		CheckToleranceMin: 120,
		SkipSunday:        true,
	}
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	loc := time.FixedZone("HKT", 8*3600)
	svc := NewService(cfg, r, db, loc, zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2026, 1, 15, 8, 5, 0, 0, loc) }
	return svc, db
}

func TestTickFiresOncePerWindow(t *testing.T) {
	r := &fakeRunner{}
	svc, db := newListenerFixture(t, r)
	ctx := context.Background()

	svc.tick(ctx)
	svc.tick(ctx)
	svc.tick(ctx)

	if len(r.calls) != 1 {
		t.Fatalf("calls=%d", len(r.calls))
	}
	if r.calls[0] {
		t.Fatal("scheduled run should not force")
	}

	window, err := db.LastWindow()
	if err != nil {
		t.Fatal(err)
	}
	if window != "2026-01-15 08:05" {
		t.Fatalf("window=%q", window)
	}
}

func TestTickOutsideWindowDoesNothing(t *testing.T) {
	r := &fakeRunner{}
	svc, _ := newListenerFixture(t, r)
	loc := time.FixedZone("HKT", 8*3600)
	svc.now = func() time.Time { return time.Date(2026, 1, 15, 23, 0, 0, 0, loc) }

	svc.tick(context.Background())
	if len(r.calls) != 0 {
		t.Fatalf("calls=%d", len(r.calls))
	}
}

func TestRetryResultArmsTimer(t *testing.T) {
	retryAt := time.Now().Add(10 * time.Millisecond)
	r := &fakeRunner{results: []internal.RunResult{
		{Outcome: internal.OutcomeNoMatch, RetryAt: &retryAt},
		{Outcome: internal.OutcomeWritten},
	}}
	svc, _ := newListenerFixture(t, r)
	ctx := context.Background()

	svc.tick(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for {
		svc.mu.Lock()
		calls := len(r.calls)
		svc.mu.Unlock()
		if calls == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("calls=%d", calls)
		}
		time.Sleep(5 * time.Millisecond)
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if !r.calls[1] {
		t.Fatal("retry run should force")
	}
}

func TestRearmPersistedRetry(t *testing.T) {
	r := &fakeRunner{results: []internal.RunResult{{Outcome: internal.OutcomeWritten}}}
	svc, db := newListenerFixture(t, r)

	if err := db.SetNextRetryAt(time.Now().Add(-time.Minute)); err != nil {
		t.Fatal(err)
	}
	svc.rearmPersistedRetry(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for {
		svc.mu.Lock()
		calls := len(r.calls)
		svc.mu.Unlock()
		if calls == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("calls=%d", calls)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
