package refresh

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dohr-michael/quotagate/internal/quota"
)

type fetchFunc func(ctx context.Context, name string) (quota.Usage, error)

func (f fetchFunc) Quota(ctx context.Context, name string) (quota.Usage, error) {
	return f(ctx, name)
}

type statusErr struct {
	code int
	msg  string
}

func (e *statusErr) Error() string   { return e.msg }
func (e *statusErr) HTTPStatus() int { return e.code }

func entryNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("entry-%02d", i)
	}
	return names
}

func TestRunDispatchesAllEntriesConcurrently(t *testing.T) {
	const total = 5

	var inFlight, peak atomic.Int64
	var release sync.Once
	barrier := make(chan struct{})

	fetch := fetchFunc(func(ctx context.Context, name string) (quota.Usage, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		if n == total {
			release.Do(func() { close(barrier) })
		}
		<-barrier
		inFlight.Add(-1)
		return quota.Usage{Used: 1, Total: 10}, nil
	})

	store := quota.NewStore()
	s := NewScheduler(store, fetch)

	var last Progress
	s.Run(context.Background(), entryNames(total), ScopeAll, Options{
		Concurrency: 10,
		OnProgress:  func(p Progress) { last = p },
	})

	// Concurrency above the entry count means every entry is in flight at once.
	if got := peak.Load(); got != total {
		t.Errorf("peak concurrency: got %d, want %d", got, total)
	}
	if last.Completed != total || last.Success != total || last.Stopped {
		t.Errorf("final progress: got %+v", last)
	}
	for _, name := range entryNames(total) {
		r, ok := store.Get(name)
		if !ok || r.State != quota.StateSuccess {
			t.Errorf("%s: got %+v, want success", name, r)
		}
	}
}

func TestRunSequentialWhenConcurrencyBelowOne(t *testing.T) {
	var inFlight, peak atomic.Int64

	fetch := fetchFunc(func(ctx context.Context, name string) (quota.Usage, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		inFlight.Add(-1)
		return quota.Usage{}, nil
	})

	s := NewScheduler(quota.NewStore(), fetch)
	s.Run(context.Background(), entryNames(20), ScopeAll, Options{Concurrency: 0})

	if got := peak.Load(); got != 1 {
		t.Errorf("peak concurrency: got %d, want 1", got)
	}
}

func TestRunReentrantCallIsNoop(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	var once sync.Once
	fetch := fetchFunc(func(ctx context.Context, name string) (quota.Usage, error) {
		once.Do(func() { close(started) })
		<-release
		return quota.Usage{}, nil
	})

	s := NewScheduler(quota.NewStore(), fetch)

	var loadingTrue atomic.Int64
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(context.Background(), entryNames(3), ScopeAll, Options{
			Concurrency: 1,
			OnLoading: func(active bool, scope Scope) {
				if active {
					loadingTrue.Add(1)
				}
			},
		})
	}()

	<-started
	if !s.Running() {
		t.Fatal("expected a running scheduler")
	}

	// Second call must return immediately with no side effects.
	s.Run(context.Background(), entryNames(3), ScopeAll, Options{
		Concurrency: 1,
		OnLoading: func(active bool, scope Scope) {
			if active {
				loadingTrue.Add(1)
			}
		},
	})

	close(release)
	<-done

	if got := loadingTrue.Load(); got != 1 {
		t.Errorf("loading notifications: got %d, want 1", got)
	}
	if s.Running() {
		t.Error("guard still set after teardown")
	}
}

func TestRunStaleGenerationDropsResults(t *testing.T) {
	fetching := make(chan struct{})
	release := make(chan struct{})

	fetch := fetchFunc(func(ctx context.Context, name string) (quota.Usage, error) {
		close(fetching)
		<-release
		return quota.Usage{Used: 99}, nil
	})

	store := quota.NewStore()
	s := NewScheduler(store, fetch)

	var settled atomic.Int64
	var progress []Progress
	var mu sync.Mutex

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(context.Background(), []string{"alpha"}, ScopePage, Options{
			Concurrency: 1,
			OnProgress: func(p Progress) {
				mu.Lock()
				progress = append(progress, p)
				mu.Unlock()
			},
			OnSettled: func(name string, r quota.Result) { settled.Add(1) },
		})
	}()

	<-fetching
	// Invalidate the run mid-fetch, as a successor taking over would.
	s.gens.begin()
	close(release)
	<-done

	if got := settled.Load(); got != 0 {
		t.Errorf("settled callbacks from a stale run: got %d, want 0", got)
	}
	r, ok := store.Get("alpha")
	if !ok || r.State != quota.StateLoading {
		t.Errorf("store: got %+v, want the pre-fetch loading entry", r)
	}
	mu.Lock()
	defer mu.Unlock()
	for _, p := range progress {
		if p.Completed != 0 {
			t.Errorf("stale run advanced progress: %+v", p)
		}
	}
	// The guard belongs to the successor now; a stale teardown must not clear it.
	if !s.Running() {
		t.Error("stale teardown cleared the run guard")
	}
}

func TestRunStopAfterThreeCompletions(t *testing.T) {
	var completed atomic.Int64
	var stop atomic.Bool

	fetch := fetchFunc(func(ctx context.Context, name string) (quota.Usage, error) {
		if completed.Add(1) == 3 {
			stop.Store(true)
		}
		return quota.Usage{}, nil
	})

	s := NewScheduler(quota.NewStore(), fetch)

	var last Progress
	s.Run(context.Background(), entryNames(10), ScopeAll, Options{
		Concurrency: 1,
		ShouldStop:  stop.Load,
		OnProgress:  func(p Progress) { last = p },
	})

	if !last.Stopped {
		t.Errorf("final progress not marked stopped: %+v", last)
	}
	if last.Completed != 3 {
		t.Errorf("completed: got %d, want 3", last.Completed)
	}
}

func TestRunRecordsEntryFailure(t *testing.T) {
	fetch := fetchFunc(func(ctx context.Context, name string) (quota.Usage, error) {
		if name == "entry-02" {
			return quota.Usage{}, fmt.Errorf("fetch %s: %w", name, &statusErr{code: 429, msg: "rate limited"})
		}
		return quota.Usage{Used: 5, Total: 10}, nil
	})

	store := quota.NewStore()
	s := NewScheduler(store, fetch)

	var last Progress
	s.Run(context.Background(), entryNames(5), ScopeAll, Options{
		Concurrency: 2,
		OnProgress:  func(p Progress) { last = p },
	})

	if last.Completed != 5 || last.Success != 4 || last.Failed != 1 {
		t.Errorf("final progress: got %+v", last)
	}

	r, ok := store.Get("entry-02")
	if !ok || r.State != quota.StateError {
		t.Fatalf("entry-02: got %+v, want error", r)
	}
	if r.StatusCode != 429 {
		t.Errorf("status code: got %d, want 429", r.StatusCode)
	}
	if !strings.Contains(r.Error, "rate limited") {
		t.Errorf("error message: got %q", r.Error)
	}
}

func TestRunRecoversFromFetchPanic(t *testing.T) {
	fetch := fetchFunc(func(ctx context.Context, name string) (quota.Usage, error) {
		if name == "entry-01" {
			panic("boom")
		}
		return quota.Usage{}, nil
	})

	store := quota.NewStore()
	s := NewScheduler(store, fetch)

	var last Progress
	s.Run(context.Background(), entryNames(3), ScopeAll, Options{
		Concurrency: 1,
		OnProgress:  func(p Progress) { last = p },
	})

	if last.Completed != 3 || last.Failed != 1 {
		t.Errorf("final progress: got %+v", last)
	}
	r, _ := store.Get("entry-01")
	if r.State != quota.StateError || !strings.Contains(r.Error, "panicked") {
		t.Errorf("entry-01: got %+v", r)
	}
}

func TestRunEmptyListIsImmediateNoop(t *testing.T) {
	fetch := fetchFunc(func(ctx context.Context, name string) (quota.Usage, error) {
		t.Error("fetch called for an empty run")
		return quota.Usage{}, nil
	})

	s := NewScheduler(quota.NewStore(), fetch)

	var loading []bool
	var snaps []Progress
	s.Run(context.Background(), nil, ScopePage, Options{
		OnLoading:  func(active bool, scope Scope) { loading = append(loading, active) },
		OnProgress: func(p Progress) { snaps = append(snaps, p) },
	})

	if len(loading) != 2 || !loading[0] || loading[1] {
		t.Errorf("loading transitions: got %v, want [true false]", loading)
	}
	if len(snaps) != 1 || snaps[0].Total != 0 || snaps[0].Completed != 0 {
		t.Errorf("snapshots: got %v", snaps)
	}
	if s.Running() {
		t.Error("guard still set")
	}
}

func TestDescribeError(t *testing.T) {
	msg, code := describeError(errors.New("plain failure"))
	if msg != "plain failure" || code != 0 {
		t.Errorf("plain: got %q %d", msg, code)
	}

	wrapped := fmt.Errorf("quota: %w", &statusErr{code: 503, msg: "unavailable"})
	msg, code = describeError(wrapped)
	if code != 503 {
		t.Errorf("wrapped status: got %d, want 503", code)
	}
	if !strings.Contains(msg, "unavailable") {
		t.Errorf("wrapped message: got %q", msg)
	}
}

func TestGenerateRunID(t *testing.T) {
	a, b := GenerateRunID(), GenerateRunID()
	if !strings.HasPrefix(a, "run_") {
		t.Errorf("missing prefix: %q", a)
	}
	if a == b {
		t.Error("expected unique run ids")
	}
}
