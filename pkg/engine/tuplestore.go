package engine

import (
	"fmt"

	"github.com/rihuaaaaa/laura-db/pkg/storage"
)

// RID (record id) locates a tuple: the page it lives on plus its slot
// within that page's slot directory. This is the concrete page format the
// hash index's values point at in a full execution layer; this module
// stops short of providing operators over it (see spec.md's framing of
// "higher-level execution operators" as out of scope), but the format
// itself is exercised here so it isn't dead weight in the tree.
type RID struct {
	PageID storage.PageID
	SlotID uint16
}

// TupleStore lays SlottedPage tuples on top of an engine's data pool. Each
// Insert either reuses the current tail page or allocates a fresh one once
// the tail is full.
type TupleStore struct {
	pool BufferPool
	tail storage.PageID
}

// NewTupleStore allocates a fresh tail page from pool and returns a store
// backed by it.
func NewTupleStore(pool BufferPool) (*TupleStore, error) {
	page, err := pool.NewPage()
	if err != nil {
		return nil, fmt.Errorf("tuplestore: allocate tail page: %w", err)
	}
	if _, err := storage.NewSlottedPage(page); err != nil {
		pool.Unpin(page.ID, false)
		return nil, fmt.Errorf("tuplestore: init tail page: %w", err)
	}
	if err := pool.Unpin(page.ID, true); err != nil {
		return nil, err
	}
	return &TupleStore{pool: pool, tail: page.ID}, nil
}

// Insert writes data as a new tuple, allocating a fresh tail page if the
// current one has no room.
func (t *TupleStore) Insert(data []byte) (RID, error) {
	page, err := t.pool.Fetch(t.tail)
	if err != nil {
		return RID{}, fmt.Errorf("tuplestore: fetch tail: %w", err)
	}

	sp, err := storage.LoadSlottedPage(page)
	if err != nil {
		t.pool.Unpin(page.ID, false)
		return RID{}, fmt.Errorf("tuplestore: load tail: %w", err)
	}

	needed := uint16(len(data)) + storage.SlotEntrySize
	if sp.NeedsCompaction() {
		if err := sp.Compact(); err != nil {
			t.pool.Unpin(page.ID, false)
			return RID{}, fmt.Errorf("tuplestore: compact tail: %w", err)
		}
	}
	if sp.ContiguousFreeSpace() < needed {
		if uerr := t.pool.Unpin(page.ID, false); uerr != nil {
			return RID{}, uerr
		}
		fresh, ferr := t.pool.NewPage()
		if ferr != nil {
			return RID{}, fmt.Errorf("tuplestore: allocate overflow page: %w", ferr)
		}
		if _, ferr := storage.NewSlottedPage(fresh); ferr != nil {
			t.pool.Unpin(fresh.ID, false)
			return RID{}, fmt.Errorf("tuplestore: init overflow page: %w", ferr)
		}
		t.tail = fresh.ID
		if uerr := t.pool.Unpin(fresh.ID, true); uerr != nil {
			return RID{}, uerr
		}
		return t.Insert(data)
	}

	slotID, err := sp.InsertSlot(data)
	if err != nil {
		t.pool.Unpin(page.ID, false)
		return RID{}, fmt.Errorf("tuplestore: insert slot: %w", err)
	}

	if err := t.pool.Unpin(page.ID, true); err != nil {
		return RID{}, err
	}
	return RID{PageID: page.ID, SlotID: slotID}, nil
}

// Get reads the tuple at rid.
func (t *TupleStore) Get(rid RID) ([]byte, error) {
	page, err := t.pool.Fetch(rid.PageID)
	if err != nil {
		return nil, fmt.Errorf("tuplestore: fetch page %d: %w", rid.PageID, err)
	}
	defer t.pool.Unpin(rid.PageID, false)

	sp, err := storage.LoadSlottedPage(page)
	if err != nil {
		return nil, fmt.Errorf("tuplestore: load page %d: %w", rid.PageID, err)
	}
	return sp.GetSlot(rid.SlotID)
}

// Delete tombstones the tuple at rid.
func (t *TupleStore) Delete(rid RID) error {
	page, err := t.pool.Fetch(rid.PageID)
	if err != nil {
		return fmt.Errorf("tuplestore: fetch page %d: %w", rid.PageID, err)
	}

	sp, err := storage.LoadSlottedPage(page)
	if err != nil {
		t.pool.Unpin(rid.PageID, false)
		return fmt.Errorf("tuplestore: load page %d: %w", rid.PageID, err)
	}
	if err := sp.DeleteSlot(rid.SlotID); err != nil {
		t.pool.Unpin(rid.PageID, false)
		return err
	}
	return t.pool.Unpin(rid.PageID, true)
}
