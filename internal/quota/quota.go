// Package quota holds the keyed store of per-entry quota status.
package quota

import "time"

// Usage is the quota data returned by the management API for one entry.
type Usage struct {
	Used    int64 `json:"used"`
	Total   int64 `json:"total"`
	Objects int64 `json:"objects,omitempty"`
}

// State represents the lifecycle of one store entry.
type State string

const (
	StateLoading State = "loading"
	StateSuccess State = "success"
	StateError   State = "error"
)

// Result is the latest known status for one entry name.
type Result struct {
	State      State     `json:"state"`
	Usage      Usage     `json:"usage"`
	Error      string    `json:"error,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}
