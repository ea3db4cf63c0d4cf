// Package timeline merges a one-shot history page with an open-ended live
// event stream into a single ordered, de-duplicated message sequence.
package timeline

import (
	"sort"
	"sync"

	"chat-sync-client/internal/models"
	"chat-sync-client/internal/observability"
)

// Timeline is the merged message view for one room. Live events arriving
// before the history page resolves are buffered; once history is applied
// the buffer is drained through the same merge step as steady-state
// events.
type Timeline struct {
	mu       sync.Mutex
	entries  []models.Message
	index    map[models.Key]int
	ready    bool
	pending  []models.Message
	histErr  error
	watchers []chan []models.Message
	closed   bool
}

// New creates an empty Timeline awaiting its history page.
func New() *Timeline {
	return &Timeline{
		index: make(map[models.Key]int),
	}
}

// ApplyHistory installs the historical page. The page is re-sorted by
// CreatedAt even though the backend returns it ordered, since concurrent
// writes at the backend can produce out-of-order pages. err, if non-nil,
// is surfaced via Err; a failed fetch still leaves the timeline usable
// for live events.
func (t *Timeline) ApplyHistory(page []models.Message, err error) {
	t.mu.Lock()
	if t.closed || t.ready {
		t.mu.Unlock()
		return
	}
	t.histErr = err

	sorted := make([]models.Message, len(page))
	copy(sorted, page)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt.Time)
	})
	for _, m := range sorted {
		t.mergeLocked(m)
	}

	// Buffered live events take part in the initial merge: inserted in
	// timestamp order, after history entries and earlier live arrivals
	// with an equal timestamp. Only steady-state events append.
	pending := t.pending
	t.pending = nil
	t.ready = true
	for _, m := range pending {
		t.insertSortedLocked(m)
	}
	t.notifyLocked()
	t.mu.Unlock()
}

// Apply merges one live event. Before history resolves the event is
// buffered. A match on the identity tuple only updates the Deleted flag;
// new messages append at the end in arrival order, with no causal
// reordering for late arrivals.
func (t *Timeline) Apply(m models.Message) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	if !t.ready {
		t.pending = append(t.pending, m)
		t.mu.Unlock()
		return
	}
	t.mergeLocked(m)
	t.notifyLocked()
	t.mu.Unlock()
}

func (t *Timeline) mergeLocked(m models.Message) {
	key := m.Key()
	if i, ok := t.index[key]; ok {
		t.updateLocked(i, m)
		return
	}
	t.index[key] = len(t.entries)
	t.entries = append(t.entries, m)
	observability.IncTimelineMerge("appended")
}

func (t *Timeline) insertSortedLocked(m models.Message) {
	key := m.Key()
	if i, ok := t.index[key]; ok {
		t.updateLocked(i, m)
		return
	}
	pos := sort.Search(len(t.entries), func(i int) bool {
		return t.entries[i].CreatedAt.After(m.CreatedAt.Time)
	})
	t.entries = append(t.entries, models.Message{})
	copy(t.entries[pos+1:], t.entries[pos:])
	t.entries[pos] = m
	for k, idx := range t.index {
		if idx >= pos {
			t.index[k] = idx + 1
		}
	}
	t.index[key] = pos
	observability.IncTimelineMerge("appended")
}

// updateLocked applies a duplicate event to an existing entry. Soft delete
// is the only mutation the live stream performs; a duplicate without the
// flag never un-deletes.
func (t *Timeline) updateLocked(i int, m models.Message) {
	if m.Deleted && !t.entries[i].Deleted {
		t.entries[i].Deleted = true
		observability.IncTimelineMerge("deleted")
		return
	}
	observability.IncTimelineMerge("deduped")
}

// Snapshot returns a copy of the current ordered sequence.
func (t *Timeline) Snapshot() []models.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Err returns the history fetch error, if the page could not be loaded.
func (t *Timeline) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.histErr
}

// Ready reports whether the history page has been applied.
func (t *Timeline) Ready() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ready
}

// Len returns the number of entries, counting deleted ones, which keep
// their slot.
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Watch returns a channel receiving the updated sequence after every
// merge step. A slow receiver observes the latest snapshot rather than
// every intermediate one: a stale pending snapshot is replaced, never
// queued behind.
func (t *Timeline) Watch() <-chan []models.Message {
	ch := make(chan []models.Message, 1)
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		close(ch)
		return ch
	}
	if t.ready {
		ch <- t.snapshotLocked()
	}
	t.watchers = append(t.watchers, ch)
	t.mu.Unlock()
	return ch
}

// Close discards timeline state and stops watcher delivery. The timeline
// is not reusable afterwards.
func (t *Timeline) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	watchers := t.watchers
	t.watchers = nil
	t.entries = nil
	t.pending = nil
	t.index = nil
	t.mu.Unlock()

	for _, w := range watchers {
		close(w)
	}
}

func (t *Timeline) snapshotLocked() []models.Message {
	out := make([]models.Message, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *Timeline) notifyLocked() {
	snap := t.snapshotLocked()
	for _, w := range t.watchers {
		select {
		case w <- snap:
			continue
		default:
		}
		// Replace the stale pending snapshot with the fresh one.
		select {
		case <-w:
		default:
		}
		select {
		case w <- snap:
		default:
		}
	}
}
