// Package refresh implements the bounded-concurrency quota refresh run: a
// worker pool over a fixed entry list, generation-stamped so superseded runs
// cannot touch state owned by their successor.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/dohr-michael/quotagate/internal/quota"
)

// Scope selects which subset of the entry list a run targets.
type Scope string

const (
	ScopePage Scope = "page"
	ScopeAll  Scope = "all"
)

// Fetcher is the per-entry fetch collaborator. A failure is terminal for that
// entry within the run; the scheduler imposes no retry policy.
type Fetcher interface {
	Quota(ctx context.Context, name string) (quota.Usage, error)
}

// statusCoder is implemented by errors that carry an HTTP status.
type statusCoder interface {
	HTTPStatus() int
}

// Options configures one scheduler run.
type Options struct {
	Concurrency int                             // clamped to [1, len(names)]; <1 means sequential
	ShouldStop  func() bool                     // advisory stop; checked before each claim
	OnProgress  func(Progress)                  // called with every published snapshot
	OnLoading   func(active bool, scope Scope)  // run start / teardown notification
	OnSettled   func(name string, r quota.Result) // per-entry terminal outcome
}

// Scheduler executes refresh runs against a quota store. At most one run is
// active per scheduler; a call to Run while one is active is a no-op.
type Scheduler struct {
	store *quota.Store
	fetch Fetcher

	mu      sync.Mutex
	running bool
	gens    tokenSource
}

// NewScheduler creates a scheduler writing into store via fetch.
func NewScheduler(store *quota.Store, fetch Fetcher) *Scheduler {
	return &Scheduler{store: store, fetch: fetch}
}

// Running reports whether a run is currently active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Run executes one refresh over names and blocks until it has fully torn
// down. Re-entrant calls return immediately without side effects. Per-entry
// fetch failures are recorded in the store and counted; they never abort
// sibling entries or the run.
func (s *Scheduler) Run(ctx context.Context, names []string, scope Scope, opts Options) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	gen := s.gens.begin()
	s.mu.Unlock()

	// Teardown always runs, but a superseded run must not clear the guard or
	// report loading=false on behalf of its successor.
	defer func() {
		s.mu.Lock()
		current := s.gens.isCurrent(gen)
		if current {
			s.running = false
		}
		s.mu.Unlock()

		if current && opts.OnLoading != nil {
			opts.OnLoading(false, scope)
		}
	}()

	if opts.OnLoading != nil {
		opts.OnLoading(true, scope)
	}

	tr := newTracker(len(names), opts.OnProgress)
	tr.publish() // observers can render 0/total immediately

	if len(names) == 0 {
		return
	}

	shouldStop := func() bool {
		if !s.gens.isCurrent(gen) {
			return true
		}
		return opts.ShouldStop != nil && opts.ShouldStop()
	}

	workers := effectiveConcurrency(opts.Concurrency, len(names))
	slog.Debug("refresh run started", "total", len(names), "workers", workers, "scope", string(scope))

	runPool(workers, len(names), shouldStop, func(i int) {
		s.runEntry(ctx, gen, names[i], tr, opts.OnSettled)
	})

	// Final snapshot, reconciling the stopped flag: the pool only exits with
	// unfinished indexes when a stop was observed. A stale run publishes
	// nothing — its progress now belongs to the successor.
	if s.gens.isCurrent(gen) {
		snap := tr.snapshot()
		tr.markStopped(snap.Completed < snap.Total)
		tr.publish()
	}
}

// runEntry executes one entry to completion. Results computed under a stale
// generation are dropped silently: they mutate neither the store nor the
// progress counters.
func (s *Scheduler) runEntry(ctx context.Context, gen uint64, name string, tr *tracker, onSettled func(string, quota.Result)) {
	if s.gens.isCurrent(gen) {
		s.store.SetLoading(name)
	}

	usage, err := s.fetchQuota(ctx, name)

	if !s.gens.isCurrent(gen) {
		return
	}

	var res quota.Result
	if err != nil {
		msg, status := describeError(err)
		s.store.SetError(name, msg, status)
		res = quota.Result{State: quota.StateError, Error: msg, StatusCode: status}
		tr.settle(false)
	} else {
		s.store.SetSuccess(name, usage)
		res = quota.Result{State: quota.StateSuccess, Usage: usage}
		tr.settle(true)
	}

	if onSettled != nil {
		onSettled(name, res)
	}
}

// fetchQuota calls the collaborator, converting a panic into an ordinary
// per-entry failure so one bad fetch cannot take down the pool.
func (s *Scheduler) fetchQuota(ctx context.Context, name string) (usage quota.Usage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("quota fetch panicked: %v", r)
		}
	}()
	return s.fetch.Quota(ctx, name)
}

// describeError flattens a fetch error into a message and, when the error
// carries one, an HTTP status code.
func describeError(err error) (string, int) {
	var sc statusCoder
	if errors.As(err, &sc) {
		return err.Error(), sc.HTTPStatus()
	}
	return err.Error(), 0
}

// GenerateRunID creates a unique run identifier.
func GenerateRunID() string {
	u := uuid.New().String()
	return "run_" + strings.ReplaceAll(u[:8], "-", "")
}
