package files

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/dohr-michael/quotagate/internal/remote"
)

type listFunc func(ctx context.Context) ([]remote.Entry, error)

func (f listFunc) ListEntries(ctx context.Context) ([]remote.Entry, error) {
	return f(ctx)
}

func fixedEntries(names ...string) listFunc {
	entries := make([]remote.Entry, len(names))
	for i, n := range names {
		entries[i] = remote.Entry{Name: n, Path: "data/" + n}
	}
	return func(ctx context.Context) ([]remote.Entry, error) {
		return entries, nil
	}
}

func TestRefreshSwapsListing(t *testing.T) {
	s := NewSource(fixedEntries("a.log", "b.log", "c.txt"), nil, 0)

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	want := []string{"a.log", "b.log", "c.txt"}
	if got := s.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("names: got %v, want %v", got, want)
	}
}

func TestFilterGlob(t *testing.T) {
	s := NewSource(fixedEntries("a.log", "b.log", "c.txt"), nil, 0)
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	s.SetFilter("*.log")
	want := []string{"a.log", "b.log"}
	if got := s.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("filtered names: got %v, want %v", got, want)
	}

	s.SetFilter("")
	if got := s.Names(); len(got) != 3 {
		t.Errorf("cleared filter: got %v", got)
	}
}

func TestFilterMatchesPath(t *testing.T) {
	s := NewSource(fixedEntries("a.log", "b.txt"), nil, 0)
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	s.SetFilter("data/*.txt")
	if got := s.Names(); !reflect.DeepEqual(got, []string{"b.txt"}) {
		t.Errorf("path-matched names: got %v", got)
	}
}

func TestOnLoadedFiresOnceEvenOnError(t *testing.T) {
	calls := 0
	var got error
	boom := errors.New("listing down")

	fail := true
	s := NewSource(listFunc(func(ctx context.Context) ([]remote.Entry, error) {
		if fail {
			return nil, boom
		}
		return []remote.Entry{{Name: "a"}}, nil
	}), nil, 0)

	s.OnLoaded(func(err error) {
		calls++
		got = err
	})

	if err := s.Refresh(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("refresh: got %v, want %v", err, boom)
	}
	if calls != 1 || !errors.Is(got, boom) {
		t.Fatalf("listener: calls=%d err=%v", calls, got)
	}

	// One-shot: a later successful refresh must not fire the old listener.
	fail = false
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if calls != 1 {
		t.Errorf("listener fired %d times, want 1", calls)
	}
}

func TestOnChangeFiresOnRefreshAndFilter(t *testing.T) {
	s := NewSource(fixedEntries("a", "b"), nil, 0)

	changes := 0
	s.OnChange(func() { changes++ })

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	s.SetFilter("a")

	if changes != 2 {
		t.Errorf("change notifications: got %d, want 2", changes)
	}
}

func TestRefreshWhileLoadingIsNoop(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	fetches := 0

	s := NewSource(listFunc(func(ctx context.Context) ([]remote.Entry, error) {
		fetches++
		close(started)
		<-release
		return nil, nil
	}), nil, 0)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Refresh(context.Background())
	}()

	<-started
	if !s.Loading() {
		t.Fatal("expected loading")
	}
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("re-entrant refresh: %v", err)
	}

	close(release)
	<-done

	if fetches != 1 {
		t.Errorf("fetches: got %d, want 1", fetches)
	}
}

func TestPagination(t *testing.T) {
	names := make([]string, 7)
	for i := range names {
		names[i] = fmt.Sprintf("f%d", i)
	}
	s := NewSource(fixedEntries(names...), nil, 3)
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if got := s.PageCount(); got != 3 {
		t.Fatalf("page count: got %d, want 3", got)
	}
	if got := s.PageNames(); !reflect.DeepEqual(got, []string{"f0", "f1", "f2"}) {
		t.Errorf("page 0: got %v", got)
	}

	s.SetPage(2)
	if got := s.PageNames(); !reflect.DeepEqual(got, []string{"f6"}) {
		t.Errorf("page 2: got %v", got)
	}

	// Out-of-range moves clamp.
	s.SetPage(99)
	if got := s.Page(); got != 2 {
		t.Errorf("clamped page: got %d, want 2", got)
	}
	s.SetPage(-1)
	if got := s.Page(); got != 0 {
		t.Errorf("clamped page: got %d, want 0", got)
	}
}

func TestFilterShrinkClampsPage(t *testing.T) {
	s := NewSource(fixedEntries("a.log", "b.log", "c.log", "d.txt"), nil, 2)
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	s.SetPage(1)
	s.SetFilter("d.txt")
	if got := s.Page(); got != 0 {
		t.Errorf("page after shrink: got %d, want 0", got)
	}
	if got := s.PageNames(); !reflect.DeepEqual(got, []string{"d.txt"}) {
		t.Errorf("page names: got %v", got)
	}
}
