package orchestrator

import "github.com/google/uuid"

// seenWindow remembers the last N event ids in arrival order.
type seenWindow struct {
	size  int
	ring  []uuid.UUID
	next  int
	index map[uuid.UUID]struct{}
}

func newSeenWindow(size int) *seenWindow {
	if size < 1 {
		size = defaultDedupeWindow
	}
	return &seenWindow{
		size:  size,
		ring:  make([]uuid.UUID, 0, size),
		index: make(map[uuid.UUID]struct{}, size),
	}
}

// observe records id and reports whether it was already inside the window.
func (w *seenWindow) observe(id uuid.UUID) bool {
	if _, ok := w.index[id]; ok {
		return true
	}
	if len(w.ring) < w.size {
		w.ring = append(w.ring, id)
	} else {
		delete(w.index, w.ring[w.next])
		w.ring[w.next] = id
		w.next = (w.next + 1) % w.size
	}
	w.index[id] = struct{}{}
	return false
}
