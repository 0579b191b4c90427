package quota

import (
	"sync"
	"time"
)

// Store maps entry names to their latest quota result. Entries are created
// when a run dispatches the name, overwritten on terminal outcome, and pruned
// when the owning entry list changes while no run is active. Writes for the
// same name are last-write-wins.
type Store struct {
	mu      sync.RWMutex
	entries map[string]Result
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[string]Result)}
}

// SetLoading writes a loading placeholder for name.
func (s *Store) SetLoading(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[name] = Result{State: StateLoading, UpdatedAt: time.Now()}
}

// SetSuccess records a successful quota fetch for name.
func (s *Store) SetSuccess(name string, u Usage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[name] = Result{State: StateSuccess, Usage: u, UpdatedAt: time.Now()}
}

// SetError records a failed quota fetch for name. statusCode may be zero when
// the failure carried no HTTP status.
func (s *Store) SetError(name, message string, statusCode int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[name] = Result{
		State:      StateError,
		Error:      message,
		StatusCode: statusCode,
		UpdatedAt:  time.Now(),
	}
}

// Get returns the result for name, if present.
func (s *Store) Get(name string) (Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.entries[name]
	return r, ok
}

// Len returns the number of entries in the store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Snapshot returns a copy of all entries.
func (s *Store) Snapshot() map[string]Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Result, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// Prune drops every entry whose name is not in keep. Consumers must tolerate
// entries disappearing when the owning list changes.
func (s *Store) Prune(keep []string) {
	keepSet := make(map[string]struct{}, len(keep))
	for _, n := range keep {
		keepSet[n] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for name := range s.entries {
		if _, ok := keepSet[name]; !ok {
			delete(s.entries, name)
		}
	}
}
