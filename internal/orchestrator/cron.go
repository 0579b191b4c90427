package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dohr-michael/quotagate/internal/refresh"
)

// CronExpr wraps a parsed cron schedule.
type CronExpr struct {
	raw      string
	schedule cron.Schedule
}

// ParseCron parses a standard 5-field (minute-based) cron expression.
func ParseCron(expr string) (*CronExpr, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron %q: %w", expr, err)
	}
	return &CronExpr{raw: expr, schedule: schedule}, nil
}

// Next returns the next activation time after t.
func (c *CronExpr) Next(t time.Time) time.Time {
	return c.schedule.Next(t)
}

// Matches reports whether t falls within the same minute as an activation.
func (c *CronExpr) Matches(t time.Time) bool {
	truncated := t.Truncate(time.Minute)
	next := c.schedule.Next(truncated.Add(-time.Minute))
	return next.Equal(truncated)
}

// String returns the raw cron expression.
func (c *CronExpr) String() string {
	return c.raw
}

// AutoRefresh triggers a full-scope refresh on a cron schedule.
type AutoRefresh struct {
	expr  *CronExpr
	coord *Coordinator
	done  chan struct{}
}

// NewAutoRefresh parses expr and binds it to the coordinator.
func NewAutoRefresh(expr string, coord *Coordinator) (*AutoRefresh, error) {
	parsed, err := ParseCron(expr)
	if err != nil {
		return nil, err
	}
	return &AutoRefresh{expr: parsed, coord: coord, done: make(chan struct{})}, nil
}

// Start begins the minute ticker.
func (a *AutoRefresh) Start(ctx context.Context) {
	slog.Info("auto refresh enabled", "cron", a.expr.String(), "next", a.expr.Next(time.Now()).Format(time.RFC3339))
	go a.loop(ctx)
}

// Stop halts the ticker.
func (a *AutoRefresh) Stop() {
	close(a.done)
}

func (a *AutoRefresh) loop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-a.done:
			return
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if a.expr.Matches(now) {
				slog.Info("auto refresh triggered", "cron", a.expr.String())
				a.coord.RequestRefresh(ctx, refresh.ScopeAll, 0)
			}
		}
	}
}
