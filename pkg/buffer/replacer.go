package buffer

import (
	"container/list"
	"sync"
)

// FrameID identifies a frame slot in the buffer pool's fixed-size frame
// array, as distinct from a PageID which identifies a page on disk.
type FrameID int

// Replacer selects a frame to evict once the buffer pool has no free
// frames left. BufferPoolManager only consults it for frames that are
// currently unpinned.
type Replacer interface {
	// Victim picks the least recently used unpinned frame, removes it from
	// replacer tracking, and reports it. It returns false if the replacer
	// has nothing to evict.
	Victim() (FrameID, bool)

	// Pin removes a frame from replacer tracking because the buffer pool
	// is handing it out and it must not be evicted while pinned.
	Pin(id FrameID)

	// Unpin adds a frame back to replacer tracking once its pin count
	// drops to zero, making it eligible for victimization again.
	Unpin(id FrameID)

	// Size reports how many frames are currently trackable as victims.
	Size() int
}

// LRUReplacer is a Replacer that victimizes the least recently used frame.
// Unpin marks a frame as recently touched by moving it to the front of an
// internal list; Victim takes from the back. A single mutex guards the
// list and index together since both structures change on every operation.
type LRUReplacer struct {
	mu    sync.Mutex
	list  *list.List
	index map[FrameID]*list.Element
}

// NewLRUReplacer creates an LRUReplacer tracking no frames.
func NewLRUReplacer() *LRUReplacer {
	return &LRUReplacer{
		list:  list.New(),
		index: make(map[FrameID]*list.Element),
	}
}

// Victim evicts the frame at the back of the list (the least recently
// unpinned one) and stops tracking it.
func (r *LRUReplacer) Victim() (FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	back := r.list.Back()
	if back == nil {
		return 0, false
	}

	id := back.Value.(FrameID)
	r.list.Remove(back)
	delete(r.index, id)
	return id, true
}

// Pin stops tracking id, e.g. because the buffer pool just handed it out.
// Pinning a frame the replacer isn't tracking is a no-op.
func (r *LRUReplacer) Pin(id FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if elem, ok := r.index[id]; ok {
		r.list.Remove(elem)
		delete(r.index, id)
	}
}

// Unpin starts tracking id as a victim candidate, pushing it to the front
// (most recently used end) of the list. Unpinning a frame that is already
// tracked is idempotent and does not move it.
func (r *LRUReplacer) Unpin(id FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.index[id]; ok {
		return
	}
	r.index[id] = r.list.PushFront(id)
}

// Size reports the number of frames currently eligible for victimization.
func (r *LRUReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.list.Len()
}
