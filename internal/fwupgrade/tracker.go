package fwupgrade

import (
	"sync"
)

// maxEventsPerTask is the most notifications a single worker delivers.
const maxEventsPerTask = 4

// Tracker keeps the delivered notifications of the most recent upgrades and
// fans them out to subscribers. It is a Sink.
type Tracker struct {
	mu      sync.Mutex
	size    int
	order   []string
	records map[string]*record

	// evicted holds running upgrades dropped to make room. Their remaining
	// notifications are ignored instead of re-creating a partial record.
	evicted map[string]struct{}
}

type record struct {
	events []Event
	subs   []chan Event
	done   bool
}

// Summary describes one tracked upgrade.
type Summary struct {
	TaskID string  `json:"id"`
	Last   *Event  `json:"last,omitempty"`
	Events []Event `json:"events"`
	Done   bool    `json:"done"`
}

var _ Sink = (*Tracker)(nil)

// NewTracker creates a Tracker remembering up to size upgrades.
func NewTracker(size int) *Tracker {
	if size < 1 {
		size = 1
	}
	return &Tracker{
		size:    size,
		records: make(map[string]*record),
		evicted: make(map[string]struct{}),
	}
}

// Track makes id known before its first notification arrives. Tracking an
// id twice is a no-op.
func (t *Tracker) Track(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recordLocked(id)
}

// Publish records ev and forwards it to the subscribers of its task. A
// terminal status closes all of them.
func (t *Tracker) Publish(ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := t.recordLocked(ev.TaskID)
	if r == nil {
		if ev.Status.Progress.IsTerminal() {
			delete(t.evicted, ev.TaskID)
		}
		return
	}
	if r.done {
		return
	}

	r.events = append(r.events, ev)
	for _, ch := range r.subs {
		ch <- ev
	}

	if ev.Status.Progress.IsTerminal() {
		r.done = true
		for _, ch := range r.subs {
			close(ch)
		}
		r.subs = nil
	}
}

// Get returns a snapshot of the upgrade id.
func (t *Tracker) Get(id string) (Summary, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.records[id]
	if !ok {
		return Summary{}, false
	}
	return r.summary(id), true
}

// List returns snapshots of all tracked upgrades, oldest first.
func (t *Tracker) List() []Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Summary, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.records[id].summary(id))
	}
	return out
}

// Subscribe returns a channel replaying the notifications of id delivered so
// far, followed by the ones still to come. The channel is closed after the
// terminal status, when the upgrade is evicted or when cancel is called.
func (t *Tracker) Subscribe(id string) (<-chan Event, func(), bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.records[id]
	if !ok {
		return nil, func() {}, false
	}

	// A worker delivers at most maxEventsPerTask notifications, so sends
	// into this buffer never block.
	ch := make(chan Event, maxEventsPerTask)
	for _, ev := range r.events {
		ch <- ev
	}
	if r.done {
		close(ch)
		return ch, func() {}, true
	}
	r.subs = append(r.subs, ch)

	cancel := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, c := range r.subs {
			if c == ch {
				r.subs = append(r.subs[:i], r.subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel, true
}

// recordLocked returns the record of id, creating it when needed. It returns
// nil for upgrades evicted while running.
func (t *Tracker) recordLocked(id string) *record {
	if r, ok := t.records[id]; ok {
		return r
	}
	if _, ok := t.evicted[id]; ok {
		return nil
	}

	r := &record{}
	t.records[id] = r
	t.order = append(t.order, id)

	for len(t.order) > t.size {
		t.evictLocked()
	}
	return r
}

// evictLocked drops the oldest finished upgrade, or the oldest one when all
// are still running.
func (t *Tracker) evictLocked() {
	i := 0
	for j, id := range t.order {
		if t.records[id].done {
			i = j
			break
		}
	}

	id := t.order[i]
	t.order = append(t.order[:i], t.order[i+1:]...)
	r := t.records[id]
	delete(t.records, id)

	for _, ch := range r.subs {
		close(ch)
	}
	r.subs = nil
	if !r.done {
		t.evicted[id] = struct{}{}
	}
}

func (r *record) summary(id string) Summary {
	s := Summary{
		TaskID: id,
		Events: append([]Event(nil), r.events...),
		Done:   r.done,
	}
	if n := len(r.events); n > 0 {
		last := r.events[n-1]
		s.Last = &last
	}
	return s
}
