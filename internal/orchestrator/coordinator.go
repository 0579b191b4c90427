// Package orchestrator coordinates entry-list refreshes with quota refresh
// runs: operator requests are parked in a single pending slot and consumed
// once the entry listing settles, so a run always targets a fresh list.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dohr-michael/quotagate/internal/events"
	"github.com/dohr-michael/quotagate/internal/files"
	"github.com/dohr-michael/quotagate/internal/history"
	"github.com/dohr-michael/quotagate/internal/quota"
	"github.com/dohr-michael/quotagate/internal/refresh"
)

// Status is the coordinator's externally visible state.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusRefreshing Status = "refreshing"
	StatusCompleted  Status = "completed"
	StatusStopped    Status = "stopped"
)

// ParseScope validates a scope string from the API or CLI.
func ParseScope(s string) (refresh.Scope, error) {
	switch refresh.Scope(s) {
	case refresh.ScopePage:
		return refresh.ScopePage, nil
	case refresh.ScopeAll, refresh.Scope(""):
		return refresh.ScopeAll, nil
	default:
		return "", fmt.Errorf("unknown scope %q (want %q or %q)", s, refresh.ScopePage, refresh.ScopeAll)
	}
}

// pendingRun is one parked refresh request.
type pendingRun struct {
	scope       refresh.Scope
	concurrency int
}

// Config holds dependencies for the coordinator.
type Config struct {
	Source  *files.Source
	Sched   *refresh.Scheduler
	Store   *quota.Store
	Bus     *events.Bus
	History *history.Store // nil-safe: runs are not persisted without a store

	Concurrency    int // default worker count when a request passes 0
	MaxConcurrency int // upper bound on requested concurrency
}

// Coordinator owns the pending slot and the run lifecycle. The slot holds at
// most one request; a newer request overwrites an older unconsumed one.
type Coordinator struct {
	source  *files.Source
	sched   *refresh.Scheduler
	store   *quota.Store
	bus     *events.Bus
	hist    *history.Store
	defConc int
	maxConc int

	mu        sync.Mutex
	pending   *pendingRun
	status    Status
	runID     string
	last      refresh.Progress
	startedAt time.Time

	stop atomic.Bool
}

// New creates a coordinator and wires it to the source's change notifications.
func New(cfg Config) *Coordinator {
	c := &Coordinator{
		source:  cfg.Source,
		sched:   cfg.Sched,
		store:   cfg.Store,
		bus:     cfg.Bus,
		hist:    cfg.History,
		defConc: cfg.Concurrency,
		maxConc: cfg.MaxConcurrency,
		status:  StatusIdle,
	}
	if c.defConc < 1 {
		c.defConc = 4
	}
	if c.maxConc < 1 {
		c.maxConc = 1000
	}

	// Entries that left the listing keep stale quota rows otherwise. Pruning
	// waits out any active run; its entries still need their store slots.
	c.source.OnChange(func() {
		if !c.sched.Running() {
			c.store.Prune(c.source.Names())
		}
	})
	return c
}

// RequestRefresh parks a refresh request and triggers an entry-list reload.
// The request is consumed when the listing settles; requesting again before
// that overwrites the parked request.
func (c *Coordinator) RequestRefresh(ctx context.Context, scope refresh.Scope, concurrency int) {
	concurrency = c.clampConcurrency(concurrency)

	c.mu.Lock()
	c.pending = &pendingRun{scope: scope, concurrency: concurrency}
	c.mu.Unlock()

	c.publish(events.RefreshRequestedPayload{Scope: string(scope), Concurrency: concurrency})

	c.source.OnLoaded(func(err error) { c.consumePending(ctx, err) })
	go func() {
		if err := c.source.Refresh(ctx); err != nil {
			slog.Warn("refresh request: entry listing failed", "error", err)
		}
	}()
}

// Stop asks the active run to stop. Entries already in flight finish; the run
// settles as stopped once its workers drain.
func (c *Coordinator) Stop() {
	c.stop.Store(true)
}

// Stopping reports whether a stop has been requested for the current run.
func (c *Coordinator) Stopping() bool {
	return c.stop.Load()
}

func (c *Coordinator) clampConcurrency(n int) int {
	if n < 1 {
		n = c.defConc
	}
	if n > c.maxConc {
		n = c.maxConc
	}
	return n
}

// consumePending takes the parked request, if any, and starts the run.
func (c *Coordinator) consumePending(ctx context.Context, listErr error) {
	c.mu.Lock()
	run := c.pending
	c.pending = nil
	c.mu.Unlock()

	if run == nil {
		return
	}
	if listErr != nil {
		slog.Warn("refresh request dropped: entry listing failed", "error", listErr)
		return
	}

	var names []string
	switch run.scope {
	case refresh.ScopePage:
		names = c.source.PageNames()
	default:
		names = c.source.Names()
	}
	if len(names) == 0 {
		slog.Info("refresh request dropped: no entries in scope", "scope", string(run.scope))
		return
	}
	if c.sched.Running() {
		slog.Info("refresh request dropped: run already active")
		return
	}

	c.stop.Store(false)
	runID := refresh.GenerateRunID()
	started := time.Now()

	c.mu.Lock()
	c.status = StatusRefreshing
	c.runID = runID
	c.last = refresh.Progress{Total: len(names)}
	c.startedAt = started
	c.mu.Unlock()

	if c.hist != nil {
		err := c.hist.RecordStart(history.Record{
			ID:          runID,
			Scope:       string(run.scope),
			Concurrency: run.concurrency,
			Total:       len(names),
			StartedAt:   started,
		})
		if err != nil {
			slog.Warn("record run start", "run_id", runID, "error", err)
		}
	}

	c.publish(events.RefreshStartedPayload{
		RunID:       runID,
		Scope:       string(run.scope),
		Total:       len(names),
		Concurrency: run.concurrency,
	})

	go c.sched.Run(ctx, names, run.scope, refresh.Options{
		Concurrency: run.concurrency,
		ShouldStop:  c.stop.Load,
		OnProgress:  func(p refresh.Progress) { c.onProgress(runID, p) },
		OnSettled:   func(name string, r quota.Result) { c.onSettled(runID, name, r) },
		OnLoading: func(active bool, scope refresh.Scope) {
			if !active {
				c.finishRun(runID)
			}
		},
	})
}

func (c *Coordinator) onProgress(runID string, p refresh.Progress) {
	c.mu.Lock()
	if c.runID == runID {
		c.last = p
	}
	c.mu.Unlock()

	c.publish(events.RefreshProgressPayload{
		RunID:     runID,
		Total:     p.Total,
		Completed: p.Completed,
		Success:   p.Success,
		Failed:    p.Failed,
		Stopped:   p.Stopped,
	})
}

func (c *Coordinator) onSettled(runID, name string, r quota.Result) {
	c.publish(events.EntrySettledPayload{
		RunID:      runID,
		Name:       name,
		State:      string(r.State),
		Error:      r.Error,
		StatusCode: r.StatusCode,
	})
}

func (c *Coordinator) finishRun(runID string) {
	c.mu.Lock()
	if c.runID != runID {
		c.mu.Unlock()
		return
	}
	p := c.last
	started := c.startedAt
	outcome := StatusCompleted
	if p.Stopped {
		outcome = StatusStopped
	}
	c.status = outcome
	c.mu.Unlock()

	duration := time.Since(started)

	if c.hist != nil {
		err := c.hist.RecordFinish(runID, p.Completed, p.Success, p.Failed, p.Stopped, time.Now())
		if err != nil {
			slog.Warn("record run finish", "run_id", runID, "error", err)
		}
	}

	c.publish(events.RefreshFinishedPayload{
		RunID:     runID,
		Outcome:   string(outcome),
		Total:     p.Total,
		Completed: p.Completed,
		Success:   p.Success,
		Failed:    p.Failed,
		Duration:  duration,
	})

	slog.Info("refresh run finished", "run_id", runID,
		"outcome", string(outcome), "completed", p.Completed, "failed", p.Failed,
		"duration", duration.Round(time.Millisecond))
}

// Snapshot is the coordinator state reported over the API.
type Snapshot struct {
	Status   Status           `json:"status"`
	RunID    string           `json:"run_id,omitempty"`
	Progress refresh.Progress `json:"progress"`
	Entries  int              `json:"entries"`
	Filter   string           `json:"filter,omitempty"`
	Loading  bool             `json:"loading"`
}

// StatusSnapshot returns the current coordinator state.
func (c *Coordinator) StatusSnapshot() Snapshot {
	c.mu.Lock()
	status := c.status
	runID := c.runID
	last := c.last
	c.mu.Unlock()

	return Snapshot{
		Status:   status,
		RunID:    runID,
		Progress: last,
		Entries:  len(c.source.Names()),
		Filter:   c.source.Filter(),
		Loading:  c.source.Loading(),
	}
}

func (c *Coordinator) publish(payload events.EventPayload) {
	if c.bus != nil {
		c.bus.Publish(events.NewTypedEvent(events.SourceOrchestrator, payload))
	}
}
