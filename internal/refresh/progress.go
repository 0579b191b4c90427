package refresh

import "sync"

// Progress is one consistent snapshot of a refresh run. At every published
// snapshot, Success+Failed == Completed and Completed <= Total. Stopped is
// true only when the run ended before every task completed.
type Progress struct {
	Total     int  `json:"total"`
	Completed int  `json:"completed"`
	Success   int  `json:"success"`
	Failed    int  `json:"failed"`
	Stopped   bool `json:"stopped"`
}

// tracker owns the run counters. All mutation goes through the mutex; the
// sink always receives a value copy taken under it.
type tracker struct {
	mu   sync.Mutex
	p    Progress
	sink func(Progress)
}

func newTracker(total int, sink func(Progress)) *tracker {
	return &tracker{p: Progress{Total: total}, sink: sink}
}

// settle records one terminal task outcome and publishes a snapshot.
func (t *tracker) settle(success bool) {
	t.mu.Lock()
	if success {
		t.p.Success++
	} else {
		t.p.Failed++
	}
	t.p.Completed++
	snap := t.p
	t.mu.Unlock()

	t.send(snap)
}

// markStopped sets the stopped flag without publishing.
func (t *tracker) markStopped(stopped bool) {
	t.mu.Lock()
	t.p.Stopped = stopped
	t.mu.Unlock()
}

// snapshot returns the current counters.
func (t *tracker) snapshot() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.p
}

// publish sends the current snapshot to the sink.
func (t *tracker) publish() {
	t.mu.Lock()
	snap := t.p
	t.mu.Unlock()

	t.send(snap)
}

func (t *tracker) send(snap Progress) {
	if t.sink != nil {
		t.sink(snap)
	}
}
