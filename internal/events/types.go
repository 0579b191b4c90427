// Package events provides an in-memory event bus using Go channels.
package events

import (
	"fmt"
	"sync/atomic"
	"time"
)

// EventType represents the type of event.
type EventType string

const (
	// Entry list lifecycle
	EventEntriesLoading EventType = "entries.loading"
	EventEntriesUpdated EventType = "entries.updated"

	// Quota refresh lifecycle
	EventRefreshRequested EventType = "refresh.requested"
	EventRefreshStarted   EventType = "refresh.started"
	EventRefreshProgress  EventType = "refresh.progress"
	EventEntrySettled     EventType = "refresh.entry.settled"
	EventRefreshFinished  EventType = "refresh.finished"
)

// EventSource identifies the component that emitted an event.
type EventSource string

const (
	SourceFiles        EventSource = "files"
	SourceOrchestrator EventSource = "orchestrator"
	SourceGateway      EventSource = "gateway"
	SourceCron         EventSource = "cron"
	SourceCLI          EventSource = "cli"
)

// Event represents an event in the system.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Source    EventSource    `json:"source"`
	Payload   map[string]any `json:"payload"`
}

// eventIDCounter is used to generate sequential event IDs.
var eventIDCounter uint64

func generateEventID() string {
	seq := atomic.AddUint64(&eventIDCounter, 1)
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), seq)
}
