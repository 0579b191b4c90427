// Package files maintains the entry listing fetched from the management API:
// filtering, pagination, and change notification for the rest of the gateway.
package files

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/dohr-michael/quotagate/internal/events"
	"github.com/dohr-michael/quotagate/internal/remote"
)

// Lister fetches the remote entry listing.
type Lister interface {
	ListEntries(ctx context.Context) ([]remote.Entry, error)
}

// Source holds the current entry list. A refresh transitions loading
// true -> false exactly once; listeners registered with OnLoaded fire on
// that falling edge whether the fetch succeeded or not, then are dropped.
type Source struct {
	lister Lister
	bus    *events.Bus

	mu       sync.Mutex
	raw      []remote.Entry
	filtered []remote.Entry
	filter   string
	pageSize int
	page     int
	loading  bool

	onLoaded []func(error)
	onChange []func()
}

// NewSource creates an empty source. pageSize below 1 disables pagination:
// the page view spans the whole filtered list.
func NewSource(lister Lister, bus *events.Bus, pageSize int) *Source {
	return &Source{lister: lister, bus: bus, pageSize: pageSize}
}

// Loading reports whether a listing fetch is in flight.
func (s *Source) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// OnLoaded registers a one-shot listener for the next loading falling edge.
// Registering while idle still waits for the next refresh to finish.
func (s *Source) OnLoaded(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLoaded = append(s.onLoaded, fn)
}

// OnChange registers a persistent listener fired whenever the filtered list
// changes, from a refresh or a filter update.
func (s *Source) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// Refresh fetches the listing and swaps it in. Concurrent calls while a fetch
// is in flight return immediately. The falling edge fires even when the fetch
// fails, so waiters never hang on an error.
func (s *Source) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return nil
	}
	s.loading = true
	filter := s.filter
	s.mu.Unlock()

	s.publish(events.EntriesLoadingPayload{Filter: filter})

	entries, err := s.lister.ListEntries(ctx)

	s.mu.Lock()
	s.loading = false
	if err == nil {
		s.raw = entries
		s.applyFilterLocked()
	}
	loaded := s.onLoaded
	s.onLoaded = nil
	changed := err == nil
	var change []func()
	if changed {
		change = append(change, s.onChange...)
	}
	count := len(s.filtered)
	s.mu.Unlock()

	if err != nil {
		slog.Warn("entry listing refresh failed", "error", err)
	} else {
		s.publish(events.EntriesUpdatedPayload{Count: count, Filter: filter})
	}

	for _, fn := range loaded {
		fn(err)
	}
	for _, fn := range change {
		fn()
	}
	return err
}

// SetFilter replaces the glob filter and resets pagination to the first page.
func (s *Source) SetFilter(pattern string) {
	s.mu.Lock()
	s.filter = pattern
	s.page = 0
	s.applyFilterLocked()
	change := append([]func(){}, s.onChange...)
	count := len(s.filtered)
	s.mu.Unlock()

	s.publish(events.EntriesUpdatedPayload{Count: count, Filter: pattern})
	for _, fn := range change {
		fn()
	}
}

// Filter returns the active glob pattern.
func (s *Source) Filter() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// SetPage moves the page cursor, clamped to the valid range.
func (s *Source) SetPage(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	last := s.pageCountLocked() - 1
	if n > last {
		n = last
	}
	if n < 0 {
		n = 0
	}
	s.page = n
}

// Page returns the current page index.
func (s *Source) Page() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// PageCount returns the number of pages in the filtered list, at least 1.
func (s *Source) PageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageCountLocked()
}

func (s *Source) pageCountLocked() int {
	if s.pageSize < 1 || len(s.filtered) == 0 {
		return 1
	}
	return (len(s.filtered) + s.pageSize - 1) / s.pageSize
}

// Names returns every filtered entry name.
func (s *Source) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return entryNames(s.filtered)
}

// PageNames returns the entry names on the current page.
func (s *Source) PageNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pageSize < 1 {
		return entryNames(s.filtered)
	}
	start := s.page * s.pageSize
	if start >= len(s.filtered) {
		return nil
	}
	end := start + s.pageSize
	if end > len(s.filtered) {
		end = len(s.filtered)
	}
	return entryNames(s.filtered[start:end])
}

// Entries returns a copy of the filtered listing.
func (s *Source) Entries() []remote.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]remote.Entry, len(s.filtered))
	copy(out, s.filtered)
	return out
}

func (s *Source) applyFilterLocked() {
	if s.filter == "" {
		s.filtered = s.raw
		return
	}
	filtered := make([]remote.Entry, 0, len(s.raw))
	for _, e := range s.raw {
		if matchEntry(s.filter, e) {
			filtered = append(filtered, e)
		}
	}
	s.filtered = filtered

	if last := s.pageCountLocked() - 1; s.page > last {
		s.page = last
	}
}

// matchEntry matches the glob against the entry name, falling back to the
// path for nested patterns. An invalid pattern degrades to substring match.
func matchEntry(pattern string, e remote.Entry) bool {
	if ok, err := doublestar.Match(pattern, e.Name); err != nil {
		return strings.Contains(e.Name, pattern) || strings.Contains(e.Path, pattern)
	} else if ok {
		return true
	}
	if e.Path == "" {
		return false
	}
	ok, _ := doublestar.Match(pattern, e.Path)
	return ok
}

func (s *Source) publish(payload events.EventPayload) {
	if s.bus != nil {
		s.bus.Publish(events.NewTypedEvent(events.SourceFiles, payload))
	}
}

func entryNames(entries []remote.Entry) []string {
	if len(entries) == 0 {
		return nil
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}
