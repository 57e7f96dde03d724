package engine

import (
	"github.com/rihuaaaaa/laura-db/pkg/buffer"
	"github.com/rihuaaaaa/laura-db/pkg/storage"
)

// shardedDiskManager gives one ParallelBufferPoolManager shard a view onto
// a single shared DiskManager where every page id it hands out satisfies
// id % numInstances == index. Routing in a parallel buffer pool is
// `page_id % num_instances`; without this, each shard allocating from its
// own independent page-id sequence would produce ids that don't actually
// land back on that shard once routed, corrupting reads. Pages allocated
// for a different shard's bucket are held until an id in this shard's
// bucket turns up, then handed back to the shared free list rather than
// leaked.
type shardedDiskManager struct {
	shared       buffer.DiskManager
	index        int
	numInstances int
}

func newShardedDiskManager(shared buffer.DiskManager, index, numInstances int) *shardedDiskManager {
	return &shardedDiskManager{shared: shared, index: index, numInstances: numInstances}
}

func (s *shardedDiskManager) AllocatePage() (storage.PageID, error) {
	var rejected []storage.PageID
	for {
		id, err := s.shared.AllocatePage()
		if err != nil {
			return 0, err
		}
		if int(id)%s.numInstances == s.index {
			for _, r := range rejected {
				if err := s.shared.DeallocatePage(r); err != nil {
					return 0, err
				}
			}
			return id, nil
		}
		rejected = append(rejected, id)
	}
}

func (s *shardedDiskManager) ReadPage(id storage.PageID) (*storage.Page, error) {
	return s.shared.ReadPage(id)
}

func (s *shardedDiskManager) WritePage(page *storage.Page) error {
	return s.shared.WritePage(page)
}

func (s *shardedDiskManager) DeallocatePage(id storage.PageID) error {
	return s.shared.DeallocatePage(id)
}
