package dedup

// Window is a bounded FIFO of identities. Once full, adding a new id evicts
// the oldest one. It is not safe for concurrent use.
type Window struct {
	capacity int
	ids      []string
	set      map[string]struct{}
}

// NewWindow creates a window holding at most capacity ids. A capacity below
// one is treated as one.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{
		capacity: capacity,
		ids:      make([]string, 0, capacity),
		set:      make(map[string]struct{}, capacity),
	}
}

// Contains reports whether id is currently held.
func (w *Window) Contains(id string) bool {
	_, ok := w.set[id]
	return ok
}

// Add inserts id. Returns false if it was already present.
func (w *Window) Add(id string) bool {
	if w.Contains(id) {
		return false
	}
	if len(w.ids) >= w.capacity {
		oldest := w.ids[0]
		w.ids = w.ids[1:]
		delete(w.set, oldest)
	}
	w.ids = append(w.ids, id)
	w.set[id] = struct{}{}
	return true
}

// IDs returns the held ids, oldest first.
func (w *Window) IDs() []string {
	out := make([]string, len(w.ids))
	copy(out, w.ids)
	return out
}

// Len returns the number of held ids.
func (w *Window) Len() int {
	return len(w.ids)
}

// Restore replaces the contents with ids (oldest first), keeping only the
// newest capacity entries and skipping duplicates.
func (w *Window) Restore(ids []string) {
	w.Reset()
	for _, id := range ids {
		if id != "" {
			w.Add(id)
		}
	}
}

// Reset drops every held id.
func (w *Window) Reset() {
	w.ids = w.ids[:0]
	w.set = make(map[string]struct{}, w.capacity)
}
