package orchestrator

import (
	"testing"
	"time"
)

func TestParseCron_Valid(t *testing.T) {
	expr, err := ParseCron("*/10 * * * *")
	if err != nil {
		t.Fatalf("ParseCron: %v", err)
	}
	if expr.String() != "*/10 * * * *" {
		t.Fatalf("expected raw %q, got %q", "*/10 * * * *", expr.String())
	}
}

func TestParseCron_Invalid(t *testing.T) {
	_, err := ParseCron("not a cron")
	if err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestCronExpr_Next(t *testing.T) {
	expr, err := ParseCron("0 6 * * *") // every day at 06:00
	if err != nil {
		t.Fatalf("ParseCron: %v", err)
	}

	base := time.Date(2026, 8, 26, 4, 0, 0, 0, time.UTC)
	next := expr.Next(base)

	expected := time.Date(2026, 8, 26, 6, 0, 0, 0, time.UTC)
	if !next.Equal(expected) {
		t.Fatalf("expected next %v, got %v", expected, next)
	}
}

func TestCronExpr_Matches(t *testing.T) {
	expr, err := ParseCron("15 9 * * *") // daily at 09:15
	if err != nil {
		t.Fatalf("ParseCron: %v", err)
	}

	match := time.Date(2026, 8, 26, 9, 15, 30, 0, time.UTC)
	if !expr.Matches(match) {
		t.Fatal("expected Matches to return true for 09:15")
	}

	noMatch := time.Date(2026, 8, 26, 9, 16, 0, 0, time.UTC)
	if expr.Matches(noMatch) {
		t.Fatal("expected Matches to return false for 09:16")
	}
}

func TestNewAutoRefresh_InvalidExpr(t *testing.T) {
	if _, err := NewAutoRefresh("bogus", nil); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}
