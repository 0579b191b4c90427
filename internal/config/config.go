package config

import "time"

// Config is the root configuration for quotagate.
type Config struct {
	Gateway GatewayConfig `json:"gateway"`
	Remote  RemoteConfig  `json:"remote"`
	Refresh RefreshConfig `json:"refresh"`
	Events  EventsConfig  `json:"events"`
	History HistoryConfig `json:"history"`
}

// GatewayConfig holds the gateway server settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// RemoteConfig configures the management API the gateway wraps.
type RemoteConfig struct {
	BaseURL string   `json:"base_url"`
	Token   string   `json:"token,omitempty"` // direct token or ${{ .Env.VAR }} template
	Timeout Duration `json:"timeout,omitempty"`
}

// RefreshConfig holds quota refresh settings.
type RefreshConfig struct {
	Concurrency    int    `json:"concurrency"`      // default worker count per run
	MaxConcurrency int    `json:"max_concurrency"`  // soft cap enforced on operator input
	PageSize       int    `json:"page_size"`        // entries per page for scope=page
	Filter         string `json:"filter,omitempty"` // doublestar glob over entry names
	Auto           string `json:"auto,omitempty"`   // cron expression for periodic full refresh
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int `json:"buffer_size"`
}

// HistoryConfig configures the run-history database.
type HistoryConfig struct {
	Path string `json:"path,omitempty"` // sqlite file; empty = default under QuotagatePath
}

// Duration wraps time.Duration for JSON unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	// Remove quotes
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}
