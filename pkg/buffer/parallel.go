package buffer

import (
	"sync"

	"github.com/rihuaaaaa/laura-db/pkg/storage"
)

// ParallelBufferPoolManager shards pages across several BufferPoolManager
// instances by page id, so that unrelated pages don't contend on the same
// mutex. Routing is `page_id % num_instances`; new pages are handed out
// round-robin starting from startIdx so allocation pressure spreads evenly
// across instances instead of always hitting instance 0 first.
type ParallelBufferPoolManager struct {
	mu        sync.Mutex
	instances []*BufferPoolManager
	startIdx  int
}

// NewParallelBufferPoolManager creates numInstances BufferPoolManagers,
// each with poolSize frames, each wrapping its own DiskManager. The
// diskMgrs slice must have exactly numInstances entries since each shard
// needs a disk manager whose AllocatePage calls won't collide with a
// sibling shard's page ids (pkg/engine shares one on-disk file and gives
// shard i a DiskManager that only hands out ids with id % numInstances == i).
func NewParallelBufferPoolManager(numInstances, poolSize int, diskMgrs []DiskManager) (*ParallelBufferPoolManager, error) {
	if numInstances <= 0 {
		return nil, ErrInvalidInstanceCount
	}
	if len(diskMgrs) != numInstances {
		return nil, ErrInvalidInstanceCount
	}

	instances := make([]*BufferPoolManager, numInstances)
	for i := 0; i < numInstances; i++ {
		instances[i] = NewBufferPoolManager(poolSize, diskMgrs[i], i, numInstances)
	}

	return &ParallelBufferPoolManager{
		instances: instances,
		startIdx:  0,
	}, nil
}

// NumInstances returns how many BufferPoolManager shards this manager owns.
func (p *ParallelBufferPoolManager) NumInstances() int {
	return len(p.instances)
}

// SetWAL attaches the same write-ahead log hook to every shard.
func (p *ParallelBufferPoolManager) SetWAL(wal WAL) {
	for _, inst := range p.instances {
		inst.SetWAL(wal)
	}
}

// instanceFor returns the shard responsible for id.
func (p *ParallelBufferPoolManager) instanceFor(id storage.PageID) *BufferPoolManager {
	return p.instances[int(id)%len(p.instances)]
}

// Fetch routes to the shard responsible for id and fetches from it.
func (p *ParallelBufferPoolManager) Fetch(id storage.PageID) (*storage.Page, error) {
	return p.instanceFor(id).Fetch(id)
}

// NewPage tries each instance in round-robin order starting at startIdx,
// advancing startIdx to one past whichever instance succeeded so the next
// call starts somewhere else. If every instance fails, startIdx still
// advances by one so repeated failures don't starve the same instance.
func (p *ParallelBufferPoolManager) NewPage() (*storage.Page, error) {
	p.mu.Lock()
	start := p.startIdx
	n := len(p.instances)
	p.mu.Unlock()

	for i := 0; i < n; i++ {
		idx := (start + i) % n
		page, err := p.instances[idx].NewPage()
		if err == nil {
			p.mu.Lock()
			p.startIdx = (int(page.ID) + 1) % n
			p.mu.Unlock()
			return page, nil
		}
	}

	p.mu.Lock()
	p.startIdx = (p.startIdx + 1) % n
	p.mu.Unlock()
	return nil, ErrNoFreeFrame
}

// Unpin routes to the shard responsible for id.
func (p *ParallelBufferPoolManager) Unpin(id storage.PageID, isDirty bool) error {
	return p.instanceFor(id).Unpin(id, isDirty)
}

// Flush routes to the shard responsible for id.
func (p *ParallelBufferPoolManager) Flush(id storage.PageID) error {
	return p.instanceFor(id).Flush(id)
}

// FlushAll flushes every shard.
func (p *ParallelBufferPoolManager) FlushAll() error {
	for _, inst := range p.instances {
		if err := inst.FlushAll(); err != nil {
			return err
		}
	}
	return nil
}

// Delete routes to the shard responsible for id.
func (p *ParallelBufferPoolManager) Delete(id storage.PageID) error {
	return p.instanceFor(id).Delete(id)
}

// Stats aggregates per-shard stats plus a combined total.
func (p *ParallelBufferPoolManager) Stats() map[string]interface{} {
	perInstance := make([]map[string]interface{}, len(p.instances))
	var totalHits, totalMisses, totalEvictions uint64
	var totalSize, totalCapacity int

	for i, inst := range p.instances {
		s := inst.Stats()
		perInstance[i] = s
		totalHits += s["hits"].(uint64)
		totalMisses += s["misses"].(uint64)
		totalEvictions += s["evictions"].(uint64)
		totalSize += s["size"].(int)
		totalCapacity += s["capacity"].(int)
	}

	return map[string]interface{}{
		"num_instances": len(p.instances),
		"capacity":      totalCapacity,
		"size":          totalSize,
		"hits":          totalHits,
		"misses":        totalMisses,
		"evictions":     totalEvictions,
		"instances":     perInstance,
	}
}
