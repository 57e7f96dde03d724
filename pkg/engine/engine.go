package engine

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/rihuaaaaa/laura-db/pkg/buffer"
	"github.com/rihuaaaaa/laura-db/pkg/concurrent"
	"github.com/rihuaaaaa/laura-db/pkg/hashindex"
	"github.com/rihuaaaaa/laura-db/pkg/lockmgr"
	"github.com/rihuaaaaa/laura-db/pkg/storage"
)

// BufferPool is the subset of BufferPoolManager/ParallelBufferPoolManager
// that the engine's diagnostics surface needs. Both satisfy it already.
type BufferPool interface {
	Fetch(id storage.PageID) (*storage.Page, error)
	NewPage() (*storage.Page, error)
	Unpin(id storage.PageID, isDirty bool) error
	Flush(id storage.PageID) error
	FlushAll() error
	Delete(id storage.PageID) error
	Stats() map[string]interface{}
}

// Engine ties the storage core together: a general-purpose page pool (the
// data pool, optionally sharded), a dedicated single-instance pool backing
// the extendible hash index, and a lock manager coordinating access across
// both. It is the thing cmd/server and cmd/laura-cli drive.
type Engine struct {
	config *Config

	dataSharedDiskMgr buffer.DiskManager
	dataPool          BufferPool

	indexDiskMgr buffer.DiskManager
	indexPool    *buffer.BufferPoolManager
	hashTable    *hashindex.HashTable

	locks  *lockmgr.LockManager
	txnSeq *concurrent.Counter

	wal *storage.WAL
}

// Open builds a new Engine rooted at config.DataDir, creating the
// directory if needed.
func Open(config *Config) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.NumInstances < 1 {
		config.NumInstances = 1
	}

	if err := os.MkdirAll(config.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("engine: create data dir: %w", err)
	}

	dataPath := filepath.Join(config.DataDir, "data.db")
	sharedDataDiskMgr, err := config.buildDiskManager(dataPath)
	if err != nil {
		return nil, fmt.Errorf("engine: build data disk manager: %w", err)
	}

	var dataPool BufferPool
	if config.NumInstances == 1 {
		dataPool = buffer.NewBufferPoolManager(config.BufferPoolSize, sharedDataDiskMgr, 0, 1)
	} else {
		shardDiskMgrs := make([]buffer.DiskManager, config.NumInstances)
		for i := 0; i < config.NumInstances; i++ {
			shardDiskMgrs[i] = newShardedDiskManager(sharedDataDiskMgr, i, config.NumInstances)
		}
		ppool, err := buffer.NewParallelBufferPoolManager(config.NumInstances, config.BufferPoolSize, shardDiskMgrs)
		if err != nil {
			return nil, fmt.Errorf("engine: build parallel buffer pool: %w", err)
		}
		dataPool = ppool
	}

	indexPath := filepath.Join(config.DataDir, "index.db")
	indexDiskMgr, err := config.buildDiskManager(indexPath)
	if err != nil {
		return nil, fmt.Errorf("engine: build index disk manager: %w", err)
	}
	indexPool := buffer.NewBufferPoolManager(config.BufferPoolSize, indexDiskMgr, 0, 1)

	var wal *storage.WAL
	if config.EnableWAL {
		wal, err = storage.NewWAL(filepath.Join(config.DataDir, "wal.log"))
		if err != nil {
			return nil, fmt.Errorf("engine: open wal: %w", err)
		}
		if setter, ok := dataPool.(interface{ SetWAL(buffer.WAL) }); ok {
			setter.SetWAL(wal)
		}
		indexPool.SetWAL(wal)
	}

	hashTable, err := hashindex.NewHashTable(indexPool)
	if err != nil {
		return nil, fmt.Errorf("engine: build hash index: %w", err)
	}

	return &Engine{
		config:            config,
		dataSharedDiskMgr: sharedDataDiskMgr,
		dataPool:          dataPool,
		indexDiskMgr:      indexDiskMgr,
		indexPool:         indexPool,
		hashTable:         hashTable,
		locks:             lockmgr.NewLockManager(),
		txnSeq:            concurrent.NewCounter(),
		wal:               wal,
	}, nil
}

// buildDiskManager wires the optional page-boundary transforms in front of
// a plain on-disk file. Compression and encryption are mutually exclusive:
// encryption.NewEncryptedDiskManager opens its own storage.DiskManager from
// path, so nothing can be layered under it. When EnableEncryption is set it
// wins, and EnableCompression and UseMmapStorage are ignored (see DESIGN.md).
func (c *Config) buildDiskManager(path string) (buffer.DiskManager, error) {
	if c.EnableEncryption {
		return newPassphraseDiskManager(path, c.EncryptionPass)
	}

	var dm buffer.DiskManager
	if c.UseMmapStorage {
		mmapDM, err := storage.NewMmapDiskManager(path, storage.DefaultMmapConfig())
		if err != nil {
			return nil, fmt.Errorf("create mmap disk manager: %w", err)
		}
		dm = mmapDM
	} else {
		plainDM, err := storage.NewDiskManager(path)
		if err != nil {
			return nil, fmt.Errorf("create disk manager: %w", err)
		}
		dm = plainDM
	}

	if c.EnableCompression {
		return NewCompressingDiskManager(dm)
	}
	return dm, nil
}

// DataPool returns the general-purpose (possibly sharded) buffer pool.
func (e *Engine) DataPool() BufferPool { return e.dataPool }

// HashIndex returns the extendible hash index over e's dedicated index pool.
func (e *Engine) HashIndex() *hashindex.HashTable { return e.hashTable }

// Locks returns the lock manager shared by every transaction on this engine.
func (e *Engine) Locks() *lockmgr.LockManager { return e.locks }

// BeginTxn allocates a fresh, monotonically increasing transaction id and
// wraps it in a Transaction under the given isolation level. Wound-Wait
// depends on transaction ids being assigned in arrival order, so this is
// the only supported way to mint one against this engine.
func (e *Engine) BeginTxn(isolation lockmgr.IsolationLevel) *lockmgr.Transaction {
	id := e.txnSeq.Inc()
	return lockmgr.NewTransaction(lockmgr.TxnID(id), isolation)
}

// Stats aggregates buffer pool and hash index diagnostics for the admin
// surface.
func (e *Engine) Stats() map[string]interface{} {
	globalDepth, err := e.hashTable.GlobalDepth()
	hashStats := map[string]interface{}{
		"global_depth": globalDepth,
	}
	if err != nil {
		hashStats["error"] = err.Error()
	}

	return map[string]interface{}{
		"data_pool":  e.dataPool.Stats(),
		"index_pool": e.indexPool.Stats(),
		"hash_index": hashStats,
	}
}

// Close flushes every dirty page back to disk and releases file handles.
func (e *Engine) Close() error {
	if err := e.dataPool.FlushAll(); err != nil {
		log.Printf("engine: flush data pool on close: %v", err)
	}
	if err := e.indexPool.FlushAll(); err != nil {
		log.Printf("engine: flush index pool on close: %v", err)
	}

	var firstErr error
	closeOne := func(dm buffer.DiskManager) {
		closer, ok := dm.(interface{ Close() error })
		if !ok {
			return
		}
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	closeOne(e.dataSharedDiskMgr)
	closeOne(e.indexDiskMgr)
	if e.wal != nil {
		if err := e.wal.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
