package hashindex

import (
	"fmt"
	"sync"

	"github.com/rihuaaaaa/laura-db/pkg/buffer"
	"github.com/rihuaaaaa/laura-db/pkg/storage"
)

// numLatchStripes bounds the per-bucket-page latch pool. A bucket page id
// hashes into one of these stripes rather than getting its own mutex,
// trading occasional contention between unrelated pages for a fixed
// number of latches.
const numLatchStripes = 64

// HashTable is an extendible hash index built on top of a
// buffer.BufferPoolManager. One directory page tracks global depth and a
// bucket-page-id/local-depth array; bucket pages hold the actual key/value
// entries. tableLatch is held in shared mode by point operations (get,
// optimistic insert, remove) and in exclusive mode only by the rarer
// structural operations (split_insert, merge), so that splits/merges can
// never race each other or a reader mid-directory-mutation. Per-bucket
// latches, striped by page id, serialize concurrent mutation within a
// single bucket page without needing one mutex per page.
type HashTable struct {
	bpm             *buffer.BufferPoolManager
	directoryPageID storage.PageID
	tableLatch      sync.RWMutex
	stripes         [numLatchStripes]sync.RWMutex
}

// NewHashTable allocates a fresh directory page and a single bucket page
// at depth zero, and returns a HashTable ready to serve Get/Insert/Remove.
func NewHashTable(bpm *buffer.BufferPoolManager) (*HashTable, error) {
	dirPage, err := bpm.NewPage()
	if err != nil {
		return nil, fmt.Errorf("allocate directory page: %w", err)
	}
	dir, err := NewDirectoryPage(dirPage)
	if err != nil {
		bpm.Unpin(dirPage.ID, false)
		return nil, err
	}

	bucketPage, err := bpm.NewPage()
	if err != nil {
		bpm.Unpin(dirPage.ID, false)
		return nil, fmt.Errorf("allocate initial bucket page: %w", err)
	}
	if _, err := NewBucketPage(bucketPage); err != nil {
		bpm.Unpin(dirPage.ID, false)
		bpm.Unpin(bucketPage.ID, false)
		return nil, err
	}

	dir.SetBucketPageID(0, bucketPage.ID)
	dir.SetLocalDepth(0, 0)
	dir.Flush()

	bpm.Unpin(dirPage.ID, true)
	bpm.Unpin(bucketPage.ID, true)

	return &HashTable{bpm: bpm, directoryPageID: dirPage.ID}, nil
}

func (h *HashTable) bucketLatch(id storage.PageID) *sync.RWMutex {
	return &h.stripes[uint32(id)%numLatchStripes]
}

// GlobalDepth reports the directory's current global depth, for diagnostics.
func (h *HashTable) GlobalDepth() (uint32, error) {
	h.tableLatch.RLock()
	defer h.tableLatch.RUnlock()

	dirPage, err := h.bpm.Fetch(h.directoryPageID)
	if err != nil {
		return 0, err
	}
	defer h.bpm.Unpin(h.directoryPageID, false)

	dir, err := LoadDirectoryPage(dirPage)
	if err != nil {
		return 0, err
	}
	return dir.GlobalDepth(), nil
}

// Get returns every value stored under key.
func (h *HashTable) Get(key uint64) ([]uint64, error) {
	h.tableLatch.RLock()
	defer h.tableLatch.RUnlock()

	dirPage, err := h.bpm.Fetch(h.directoryPageID)
	if err != nil {
		return nil, err
	}
	defer h.bpm.Unpin(h.directoryPageID, false)

	dir, err := LoadDirectoryPage(dirPage)
	if err != nil {
		return nil, err
	}

	idx := hash32(key) & dir.GlobalDepthMask()
	bucketID := dir.GetBucketPageID(idx)

	bucketPage, err := h.bpm.Fetch(bucketID)
	if err != nil {
		return nil, err
	}
	defer h.bpm.Unpin(bucketID, false)

	latch := h.bucketLatch(bucketID)
	latch.RLock()
	defer latch.RUnlock()

	bucket, err := LoadBucketPage(bucketPage)
	if err != nil {
		return nil, err
	}
	return bucket.Get(key), nil
}

// Insert adds (key, value). It first tries the optimistic path (shared
// table latch, exclusive bucket latch); if the target bucket is full it
// falls back to the pessimistic splitInsert.
func (h *HashTable) Insert(key, value uint64) (bool, error) {
	h.tableLatch.RLock()

	dirPage, err := h.bpm.Fetch(h.directoryPageID)
	if err != nil {
		h.tableLatch.RUnlock()
		return false, err
	}
	dir, err := LoadDirectoryPage(dirPage)
	if err != nil {
		h.bpm.Unpin(h.directoryPageID, false)
		h.tableLatch.RUnlock()
		return false, err
	}

	idx := hash32(key) & dir.GlobalDepthMask()
	bucketID := dir.GetBucketPageID(idx)

	bucketPage, err := h.bpm.Fetch(bucketID)
	if err != nil {
		h.bpm.Unpin(h.directoryPageID, false)
		h.tableLatch.RUnlock()
		return false, err
	}

	latch := h.bucketLatch(bucketID)
	latch.Lock()

	bucket, err := LoadBucketPage(bucketPage)
	if err != nil {
		latch.Unlock()
		h.bpm.Unpin(bucketID, false)
		h.bpm.Unpin(h.directoryPageID, false)
		h.tableLatch.RUnlock()
		return false, err
	}

	if !bucket.IsFull() {
		ok := bucket.Insert(key, value)
		bucket.Flush()
		latch.Unlock()
		h.bpm.Unpin(bucketID, true)
		h.bpm.Unpin(h.directoryPageID, false)
		h.tableLatch.RUnlock()
		return ok, nil
	}

	latch.Unlock()
	h.bpm.Unpin(bucketID, false)
	h.bpm.Unpin(h.directoryPageID, false)
	h.tableLatch.RUnlock()

	return h.splitInsert(key, value)
}

// splitInsert handles the full bucket case: it takes the table latch
// exclusively, splits (or re-splits, in a loop) until the target bucket
// has room, then inserts.
func (h *HashTable) splitInsert(key, value uint64) (bool, error) {
	h.tableLatch.Lock()
	defer h.tableLatch.Unlock()

	for {
		dirPage, err := h.bpm.Fetch(h.directoryPageID)
		if err != nil {
			return false, err
		}
		dir, err := LoadDirectoryPage(dirPage)
		if err != nil {
			h.bpm.Unpin(h.directoryPageID, false)
			return false, err
		}

		idx := hash32(key) & dir.GlobalDepthMask()
		bucketID := dir.GetBucketPageID(idx)

		bucketPage, err := h.bpm.Fetch(bucketID)
		if err != nil {
			h.bpm.Unpin(h.directoryPageID, false)
			return false, err
		}
		bucket, err := LoadBucketPage(bucketPage)
		if err != nil {
			h.bpm.Unpin(bucketID, false)
			h.bpm.Unpin(h.directoryPageID, false)
			return false, err
		}

		if !bucket.IsFull() {
			ok := bucket.Insert(key, value)
			bucket.Flush()
			h.bpm.Unpin(bucketID, true)
			h.bpm.Unpin(h.directoryPageID, false)
			return ok, nil
		}

		gd := dir.GlobalDepth()
		ld := uint32(dir.GetLocalDepth(idx))

		if gd == ld && gd >= MaxDepth {
			h.bpm.Unpin(bucketID, false)
			h.bpm.Unpin(h.directoryPageID, false)
			return false, ErrDirectoryFull
		}

		newBucketPage, err := h.bpm.NewPage()
		if err != nil {
			h.bpm.Unpin(bucketID, false)
			h.bpm.Unpin(h.directoryPageID, false)
			return false, fmt.Errorf("allocate split bucket: %w", err)
		}
		newBucket, err := NewBucketPage(newBucketPage)
		if err != nil {
			h.bpm.Unpin(newBucketPage.ID, false)
			h.bpm.Unpin(bucketID, false)
			h.bpm.Unpin(h.directoryPageID, false)
			return false, err
		}

		if gd == ld {
			size := uint32(1) << gd
			for i := uint32(0); i < size; i++ {
				dir.SetBucketPageID(i+size, dir.GetBucketPageID(i))
				dir.SetLocalDepth(i+size, dir.GetLocalDepth(i))
			}
			dir.IncrGlobalDepth()
			dir.SetBucketPageID(idx+size, newBucketPage.ID)
			dir.IncrLocalDepth(idx)
			dir.IncrLocalDepth(idx + size)
		} else {
			step := uint32(1) << ld
			base := idx & (step - 1)
			size := uint32(1) << gd
			for i := base; i < size; i += step {
				dir.IncrLocalDepth(i)
				if i&step != 0 {
					dir.SetBucketPageID(i, newBucketPage.ID)
				}
			}
		}

		entries := bucket.AllEntries()
		bucket.Clear()
		newBucket.Clear()
		newMask := dir.GlobalDepthMask()
		for _, e := range entries {
			target := hash32(e.Key) & newMask
			if dir.GetBucketPageID(target) == bucketID {
				bucket.Insert(e.Key, e.Value)
			} else {
				newBucket.Insert(e.Key, e.Value)
			}
		}

		bucket.Flush()
		newBucket.Flush()
		dir.Flush()

		h.bpm.Unpin(newBucketPage.ID, true)
		h.bpm.Unpin(bucketID, true)
		h.bpm.Unpin(h.directoryPageID, true)
		// Loop: the key may still land on a full bucket after one split.
	}
}

// Remove deletes (key, value) if present. If that empties the bucket and
// its local depth is greater than zero, it triggers merge.
func (h *HashTable) Remove(key, value uint64) (bool, error) {
	h.tableLatch.RLock()

	dirPage, err := h.bpm.Fetch(h.directoryPageID)
	if err != nil {
		h.tableLatch.RUnlock()
		return false, err
	}
	dir, err := LoadDirectoryPage(dirPage)
	if err != nil {
		h.bpm.Unpin(h.directoryPageID, false)
		h.tableLatch.RUnlock()
		return false, err
	}

	idx := hash32(key) & dir.GlobalDepthMask()
	bucketID := dir.GetBucketPageID(idx)
	localDepth := dir.GetLocalDepth(idx)

	bucketPage, err := h.bpm.Fetch(bucketID)
	if err != nil {
		h.bpm.Unpin(h.directoryPageID, false)
		h.tableLatch.RUnlock()
		return false, err
	}

	latch := h.bucketLatch(bucketID)
	latch.Lock()
	bucket, err := LoadBucketPage(bucketPage)
	if err != nil {
		latch.Unlock()
		h.bpm.Unpin(bucketID, false)
		h.bpm.Unpin(h.directoryPageID, false)
		h.tableLatch.RUnlock()
		return false, err
	}

	removed := bucket.Remove(key, value)
	becameEmpty := bucket.IsEmpty()
	bucket.Flush()
	latch.Unlock()

	h.bpm.Unpin(bucketID, true)
	h.bpm.Unpin(h.directoryPageID, false)
	h.tableLatch.RUnlock()

	if removed && becameEmpty && localDepth > 0 {
		if err := h.merge(idx); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// merge collapses idx's bucket with its sibling if both are empty and
// share a local depth, then shrinks the global depth as far as it can.
func (h *HashTable) merge(idx uint32) error {
	h.tableLatch.Lock()
	defer h.tableLatch.Unlock()

	dirPage, err := h.bpm.Fetch(h.directoryPageID)
	if err != nil {
		return err
	}
	dir, err := LoadDirectoryPage(dirPage)
	if err != nil {
		h.bpm.Unpin(h.directoryPageID, false)
		return err
	}

	dirty := false
	defer func() {
		if dirty {
			dir.Flush()
		}
		h.bpm.Unpin(h.directoryPageID, dirty)
	}()

	ld := dir.GetLocalDepth(idx)
	if ld == 0 {
		return nil
	}
	bucketID := dir.GetBucketPageID(idx)

	bucketPage, err := h.bpm.Fetch(bucketID)
	if err != nil {
		return err
	}
	bucket, err := LoadBucketPage(bucketPage)
	if err != nil {
		h.bpm.Unpin(bucketID, false)
		return err
	}
	isEmpty := bucket.IsEmpty()
	h.bpm.Unpin(bucketID, false)
	if !isEmpty {
		return nil
	}

	siblingIdx := idx ^ (uint32(1) << (ld - 1))
	siblingID := dir.GetBucketPageID(siblingIdx)
	if dir.GetLocalDepth(siblingIdx) != ld || siblingID == bucketID {
		return nil
	}

	siblingPage, err := h.bpm.Fetch(siblingID)
	if err != nil {
		return err
	}
	siblingBucket, err := LoadBucketPage(siblingPage)
	if err != nil {
		h.bpm.Unpin(siblingID, false)
		return err
	}
	siblingEmpty := siblingBucket.IsEmpty()
	h.bpm.Unpin(siblingID, false)
	if !siblingEmpty {
		return nil
	}

	newLd := ld - 1
	step := uint32(1) << newLd
	base := idx & (step - 1)
	size := uint32(1) << dir.GlobalDepth()

	for i := base; i < size; i += step {
		dir.SetBucketPageID(i, siblingID)
		dir.SetLocalDepth(i, newLd)
	}
	dirty = true

	if err := h.bpm.Delete(bucketID); err != nil {
		return err
	}

	for dir.CanShrink() && dir.GlobalDepth() > 0 {
		dir.DecrGlobalDepth()
	}
	return nil
}
