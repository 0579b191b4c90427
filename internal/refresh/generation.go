package refresh

import "sync/atomic"

// tokenSource issues monotonically increasing run tokens. Beginning a new run
// invalidates every previously issued token; staleness is permanent. This is
// how a rapid second run makes the first run's in-flight results inert without
// aborting the underlying fetches.
type tokenSource struct {
	current atomic.Uint64
}

// begin issues a fresh token and invalidates all earlier ones.
func (s *tokenSource) begin() uint64 {
	return s.current.Add(1)
}

// isCurrent reports whether token is still the live generation.
func (s *tokenSource) isCurrent(token uint64) bool {
	return s.current.Load() == token
}
