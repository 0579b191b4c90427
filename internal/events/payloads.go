package events

import (
	"encoding/json"
	"time"
)

// EventPayload is the interface all typed payloads implement.
type EventPayload interface {
	EventType() EventType
}

// EntriesLoadingPayload is published when an entry-list refresh begins.
type EntriesLoadingPayload struct {
	Filter string `json:"filter,omitempty"`
}

func (EntriesLoadingPayload) EventType() EventType { return EventEntriesLoading }

// EntriesUpdatedPayload is published when the filtered entry list changes.
type EntriesUpdatedPayload struct {
	Count  int    `json:"count"`
	Filter string `json:"filter,omitempty"`
}

func (EntriesUpdatedPayload) EventType() EventType { return EventEntriesUpdated }

// RefreshRequestedPayload records an operator request before it is consumed.
type RefreshRequestedPayload struct {
	Scope       string `json:"scope"`
	Concurrency int    `json:"concurrency"`
}

func (RefreshRequestedPayload) EventType() EventType { return EventRefreshRequested }

// RefreshStartedPayload marks the start of a scheduler run.
type RefreshStartedPayload struct {
	RunID       string `json:"run_id"`
	Scope       string `json:"scope"`
	Total       int    `json:"total"`
	Concurrency int    `json:"concurrency"`
}

func (RefreshStartedPayload) EventType() EventType { return EventRefreshStarted }

// RefreshProgressPayload is a live progress snapshot.
type RefreshProgressPayload struct {
	RunID     string `json:"run_id"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Success   int    `json:"success"`
	Failed    int    `json:"failed"`
	Stopped   bool   `json:"stopped"`
}

func (RefreshProgressPayload) EventType() EventType { return EventRefreshProgress }

// EntrySettledPayload reports a single entry reaching a terminal state.
type EntrySettledPayload struct {
	RunID      string `json:"run_id"`
	Name       string `json:"name"`
	State      string `json:"state"` // "success" | "error"
	Error      string `json:"error,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
}

func (EntrySettledPayload) EventType() EventType { return EventEntrySettled }

// RefreshFinishedPayload marks the end of a run.
type RefreshFinishedPayload struct {
	RunID     string        `json:"run_id"`
	Outcome   string        `json:"outcome"` // "completed" | "stopped"
	Total     int           `json:"total"`
	Completed int           `json:"completed"`
	Success   int           `json:"success"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration,omitempty"`
}

func (RefreshFinishedPayload) EventType() EventType { return EventRefreshFinished }

// NewTypedEvent creates an event from a typed payload.
func NewTypedEvent(source EventSource, payload EventPayload) Event {
	return Event{
		ID:        generateEventID(),
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

func toMap(v any) map[string]any {
	var result map[string]any
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

// ExtractPayload converts an event's generic payload back into a typed struct.
func ExtractPayload[T EventPayload](e Event) (T, bool) {
	var result T
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return result, false
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, false
	}
	return result, true
}
