package buffer

import (
	"fmt"
	"log"
	"sync"

	"github.com/rihuaaaaa/laura-db/pkg/storage"
)

// DiskManager is the external collaborator a BufferPoolManager reads pages
// from and writes them back to. *storage.DiskManager, *storage.MmapDiskManager
// and *encryption.EncryptedDiskManager all satisfy it.
type DiskManager interface {
	ReadPage(id storage.PageID) (*storage.Page, error)
	WritePage(page *storage.Page) error
	AllocatePage() (storage.PageID, error)
	DeallocatePage(id storage.PageID) error
}

// WAL is the optional write-ahead logging hook a BufferPoolManager can be
// given. When present, a checkpoint-style record is appended whenever a
// dirty page is written back, mirroring the log-before-data-page ordering
// a real log manager would enforce. A buffer pool with no WAL behaves
// exactly as one with a WAL that never runs.
type WAL interface {
	Append(record *storage.LogRecord) (uint64, error)
}

type frame struct {
	page *storage.Page
}

// BufferPoolManager is a single fixed-capacity page cache backed by a
// DiskManager. It keeps a page table mapping resident PageIDs to frame
// slots, a free list of frames that hold no page, and an LRU
// Replacer for frames that have been used and unpinned. One mutex guards
// the whole instance; callers that need higher throughput should use
// ParallelBufferPoolManager instead of sharding this type themselves.
type BufferPoolManager struct {
	mu sync.Mutex

	diskMgr  DiskManager
	wal      WAL
	replacer *LRUReplacer

	poolSize int
	frames   []frame
	freeList []FrameID
	pageTbl  map[storage.PageID]FrameID

	instanceIndex int
	numInstances  int

	hits      uint64
	misses    uint64
	evictions uint64
}

// NewBufferPoolManager creates a BufferPoolManager with poolSize frames.
// Page ids always come from diskMgr.AllocatePage; instanceIndex and
// numInstances are only reported by Stats and do not constrain which ids
// this instance hands out, so disjoint ids across the shards of a
// ParallelBufferPoolManager depend on the DiskManagers it is given. A
// standalone BufferPoolManager passes instanceIndex 0 and numInstances 1.
func NewBufferPoolManager(poolSize int, diskMgr DiskManager, instanceIndex, numInstances int) *BufferPoolManager {
	freeList := make([]FrameID, poolSize)
	for i := 0; i < poolSize; i++ {
		freeList[i] = FrameID(i)
	}

	return &BufferPoolManager{
		diskMgr:       diskMgr,
		replacer:      NewLRUReplacer(),
		poolSize:      poolSize,
		frames:        make([]frame, poolSize),
		freeList:      freeList,
		pageTbl:       make(map[storage.PageID]FrameID),
		instanceIndex: instanceIndex,
		numInstances:  numInstances,
	}
}

// SetWAL attaches a write-ahead log hook used on dirty writeback.
func (b *BufferPoolManager) SetWAL(wal WAL) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wal = wal
}

// PoolSize returns the number of frames this instance manages.
func (b *BufferPoolManager) PoolSize() int {
	return b.poolSize
}

// pickVictimLocked finds a frame to reuse: the free list first, then the
// replacer. Must be called with b.mu held.
func (b *BufferPoolManager) pickVictimLocked() (FrameID, bool) {
	if n := len(b.freeList); n > 0 {
		id := b.freeList[n-1]
		b.freeList = b.freeList[:n-1]
		return id, true
	}

	id, ok := b.replacer.Victim()
	if !ok {
		return 0, false
	}
	b.evictions++
	return id, true
}

// evictFrameLocked writes back the page currently in frameID if dirty and
// clears its page-table entry. Must be called with b.mu held.
func (b *BufferPoolManager) evictFrameLocked(frameID FrameID) error {
	victim := b.frames[frameID].page
	if victim == nil {
		return nil
	}

	if victim.IsDirty {
		if err := b.writeBackLocked(victim); err != nil {
			return fmt.Errorf("evict page %d: %w", victim.ID, err)
		}
	}

	delete(b.pageTbl, victim.ID)
	b.frames[frameID].page = nil
	log.Printf("buffer: evicted page %d from frame %d", victim.ID, frameID)
	return nil
}

func (b *BufferPoolManager) writeBackLocked(page *storage.Page) error {
	if b.wal != nil {
		if _, err := b.wal.Append(&storage.LogRecord{
			Type:   storage.LogRecordCheckpoint,
			PageID: page.ID,
		}); err != nil {
			return fmt.Errorf("wal append before writeback: %w", err)
		}
	}
	if err := b.diskMgr.WritePage(page); err != nil {
		return err
	}
	page.IsDirty = false
	return nil
}

// Fetch returns the page for id, pinning it. If the page is already
// resident its pin count is bumped and the replacer is told to stop
// treating the frame as a victim. Otherwise a frame is reused (free list,
// then LRU victim), the page is read from disk, and it is installed.
func (b *BufferPoolManager) Fetch(id storage.PageID) (*storage.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if frameID, ok := b.pageTbl[id]; ok {
		page := b.frames[frameID].page
		page.Pin()
		b.replacer.Pin(frameID)
		b.hits++
		return page, nil
	}

	b.misses++

	frameID, ok := b.pickVictimLocked()
	if !ok {
		return nil, ErrNoFreeFrame
	}

	if err := b.evictFrameLocked(frameID); err != nil {
		return nil, err
	}

	page, err := b.diskMgr.ReadPage(id)
	if err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", id, err)
	}

	page.Pin()
	b.frames[frameID].page = page
	b.pageTbl[id] = frameID
	return page, nil
}

// NewPage allocates a brand new page on disk, installs it in a frame
// pinned once, and returns it. Returns ErrNoFreeFrame if every frame is
// pinned and the replacer has no victim.
func (b *BufferPoolManager) NewPage() (*storage.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, ok := b.pickVictimLocked()
	if !ok {
		return nil, ErrNoFreeFrame
	}

	if err := b.evictFrameLocked(frameID); err != nil {
		return nil, err
	}

	pageID, err := b.diskMgr.AllocatePage()
	if err != nil {
		return nil, fmt.Errorf("allocate page: %w", err)
	}

	page := storage.NewPage(pageID, storage.PageTypeData)
	page.Pin()
	page.IsDirty = true

	b.frames[frameID].page = page
	b.pageTbl[pageID] = frameID
	return page, nil
}

// Unpin decrements id's pin count. isDirty, if true, marks the page dirty
// even if the caller didn't modify it through MarkDirty directly (it never
// clears a dirty flag already set by someone else). Once the pin count
// reaches zero the frame becomes a replacer victim candidate.
func (b *BufferPoolManager) Unpin(id storage.PageID, isDirty bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, ok := b.pageTbl[id]
	if !ok {
		return fmt.Errorf("unpin page %d: %w", id, ErrPageNotFound)
	}

	page := b.frames[frameID].page
	if isDirty {
		page.MarkDirty()
	}
	page.Unpin()

	if !page.IsPinned() {
		b.replacer.Unpin(frameID)
	}
	return nil
}

// Flush writes id's page back to disk regardless of its dirty flag.
func (b *BufferPoolManager) Flush(id storage.PageID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, ok := b.pageTbl[id]
	if !ok {
		return fmt.Errorf("flush page %d: %w", id, ErrPageNotFound)
	}

	return b.writeBackLocked(b.frames[frameID].page)
}

// FlushAll writes every resident page back to disk, dirty or not.
func (b *BufferPoolManager) FlushAll() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id := range b.pageTbl {
		frameID := b.pageTbl[id]
		if err := b.writeBackLocked(b.frames[frameID].page); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes id from the pool and deallocates it on disk. A pinned
// page cannot be deleted.
func (b *BufferPoolManager) Delete(id storage.PageID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, ok := b.pageTbl[id]
	if !ok {
		// Not resident; deallocate on disk directly.
		return b.diskMgr.DeallocatePage(id)
	}

	page := b.frames[frameID].page
	if page.IsPinned() {
		return ErrPagePinned
	}

	b.replacer.Pin(frameID) // stop tracking it as a victim
	delete(b.pageTbl, id)
	b.frames[frameID].page = nil
	b.freeList = append(b.freeList, frameID)

	return b.diskMgr.DeallocatePage(id)
}

// Stats reports hit/miss/eviction counters plus current occupancy, in the
// shape the admin surface and diagnostics schema expose.
func (b *BufferPoolManager) Stats() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	return map[string]interface{}{
		"capacity":       b.poolSize,
		"size":           len(b.pageTbl),
		"hits":           b.hits,
		"misses":         b.misses,
		"evictions":      b.evictions,
		"instance_index": b.instanceIndex,
		"num_instances":  b.numInstances,
	}
}
