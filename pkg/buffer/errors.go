package buffer

import "errors"

// ErrNoFreeFrame is returned when every frame is pinned and the replacer
// has no victim to evict, so a page cannot be brought into the pool.
var ErrNoFreeFrame = errors.New("buffer: no free frame or evictable victim available")

// ErrPageNotFound is returned when an operation addresses a page that is
// not currently resident in the pool.
var ErrPageNotFound = errors.New("buffer: page not found in buffer pool")

// ErrPagePinned is returned when DeletePage is called on a page that still
// has outstanding pins.
var ErrPagePinned = errors.New("buffer: page is pinned and cannot be deleted")

// ErrInvalidInstanceCount is returned when a ParallelBufferPoolManager is
// constructed with zero instances.
var ErrInvalidInstanceCount = errors.New("buffer: instance count must be greater than zero")
