package hashindex

import (
	"encoding/binary"
	"fmt"

	"github.com/rihuaaaaa/laura-db/pkg/storage"
)

const (
	// bucketEntrySize is 8 bytes of key plus 8 bytes of value.
	bucketEntrySize = 16

	// NumBucketSlots is the slot count B a bucket page can hold. Chosen so
	// two occupied/readable bitmaps plus the kv array fit comfortably in
	// one page's data area, leaving headroom for the directory's own page.
	NumBucketSlots = 248

	bucketBitmapBytes = (NumBucketSlots + 7) / 8

	bucketOccupiedOffset = 0
	bucketReadableOffset = bucketBitmapBytes
	bucketDataOffset     = bucketBitmapBytes * 2
)

// BucketPage is a structured view over a raw data page's bytes: two
// bitmaps (occupied, readable) of length NumBucketSlots followed by the
// key/value array. It does not own the underlying bytes; Flush must be
// called to push in-memory mutations back into the Page the buffer pool
// is tracking.
type BucketPage struct {
	page     *storage.Page
	occupied [bucketBitmapBytes]byte
	readable [bucketBitmapBytes]byte
	keys     [NumBucketSlots]uint64
	values   [NumBucketSlots]uint64
}

// NewBucketPage initializes an empty bucket view over page and writes that
// empty state back immediately.
func NewBucketPage(page *storage.Page) (*BucketPage, error) {
	if page.Type != storage.PageTypeData && page.Type != storage.PageTypeHashBucket {
		return nil, fmt.Errorf("new bucket page %d: %w", page.ID, ErrWrongPageType)
	}
	page.Type = storage.PageTypeHashBucket
	bp := &BucketPage{page: page}
	bp.Flush()
	return bp, nil
}

// LoadBucketPage reads an existing bucket page's bytes into a view.
func LoadBucketPage(page *storage.Page) (*BucketPage, error) {
	if page.Type != storage.PageTypeHashBucket {
		return nil, fmt.Errorf("load bucket page %d: %w", page.ID, ErrWrongPageType)
	}
	if len(page.Data) < bucketDataOffset+NumBucketSlots*bucketEntrySize {
		return nil, fmt.Errorf("load bucket page %d: page data too small", page.ID)
	}

	bp := &BucketPage{page: page}
	copy(bp.occupied[:], page.Data[bucketOccupiedOffset:bucketOccupiedOffset+bucketBitmapBytes])
	copy(bp.readable[:], page.Data[bucketReadableOffset:bucketReadableOffset+bucketBitmapBytes])

	for i := 0; i < NumBucketSlots; i++ {
		off := bucketDataOffset + i*bucketEntrySize
		bp.keys[i] = binary.LittleEndian.Uint64(page.Data[off : off+8])
		bp.values[i] = binary.LittleEndian.Uint64(page.Data[off+8 : off+16])
	}

	return bp, nil
}

func getBit(bitmap []byte, i int) bool {
	return bitmap[i/8]&(1<<uint(i%8)) != 0
}

func setBit(bitmap []byte, i int, v bool) {
	if v {
		bitmap[i/8] |= 1 << uint(i%8)
	} else {
		bitmap[i/8] &^= 1 << uint(i%8)
	}
}

func (bp *BucketPage) isOccupied(i int) bool { return getBit(bp.occupied[:], i) }
func (bp *BucketPage) isReadable(i int) bool { return getBit(bp.readable[:], i) }

// Get returns every value stored under key. Iteration stops at the first
// never-occupied slot; tombstones (occupied but not readable) are skipped
// over, not treated as a stopping point.
func (bp *BucketPage) Get(key uint64) []uint64 {
	var out []uint64
	for i := 0; i < NumBucketSlots; i++ {
		if !bp.isOccupied(i) {
			break
		}
		if bp.isReadable(i) && bp.keys[i] == key {
			out = append(out, bp.values[i])
		}
	}
	return out
}

// Insert writes (key, value) into the first reusable slot (one that is
// either a tombstone or has never been occupied). Scanning stops at the
// first never-occupied slot once a candidate has been recorded. Returns
// false if (key, value) is already present or no slot is available.
func (bp *BucketPage) Insert(key, value uint64) bool {
	candidate := -1
	for i := 0; i < NumBucketSlots; i++ {
		occ := bp.isOccupied(i)
		read := bp.isReadable(i)

		if candidate < 0 && (!read || !occ) {
			candidate = i
		}
		if read && bp.keys[i] == key && bp.values[i] == value {
			return false
		}
		if !occ {
			break
		}
	}

	if candidate < 0 {
		return false
	}

	setBit(bp.occupied[:], candidate, true)
	setBit(bp.readable[:], candidate, true)
	bp.keys[candidate] = key
	bp.values[candidate] = value
	return true
}

// Remove clears the readable bit (leaving a tombstone) for the first slot
// matching (key, value). Returns false if no such slot is found.
func (bp *BucketPage) Remove(key, value uint64) bool {
	for i := 0; i < NumBucketSlots; i++ {
		if !bp.isOccupied(i) {
			break
		}
		if bp.isReadable(i) && bp.keys[i] == key && bp.values[i] == value {
			setBit(bp.readable[:], i, false)
			return true
		}
	}
	return false
}

// IsFull reports whether every slot is currently readable.
func (bp *BucketPage) IsFull() bool {
	return bp.numReadable() == NumBucketSlots
}

// IsEmpty reports whether no slot is currently readable.
func (bp *BucketPage) IsEmpty() bool {
	return bp.numReadable() == 0
}

func (bp *BucketPage) numReadable() int {
	count := 0
	for i := 0; i < NumBucketSlots; i++ {
		if !bp.isOccupied(i) {
			break
		}
		if bp.isReadable(i) {
			count++
		}
	}
	return count
}

// Entry is a single live key/value pair, used when rehashing a bucket
// during split.
type Entry struct {
	Key   uint64
	Value uint64
}

// AllEntries returns every currently readable (key, value) pair.
func (bp *BucketPage) AllEntries() []Entry {
	var out []Entry
	for i := 0; i < NumBucketSlots; i++ {
		if !bp.isOccupied(i) {
			break
		}
		if bp.isReadable(i) {
			out = append(out, Entry{Key: bp.keys[i], Value: bp.values[i]})
		}
	}
	return out
}

// Clear resets the bucket to its empty state in memory; the caller must
// still call Flush to persist it. Used by split_insert's rehash step,
// which must compact tombstones rather than leave stale occupied bits
// behind — a straight mask-and-copy would leak occupied state across
// the split.
func (bp *BucketPage) Clear() {
	for i := range bp.occupied {
		bp.occupied[i] = 0
		bp.readable[i] = 0
	}
	for i := range bp.keys {
		bp.keys[i] = 0
		bp.values[i] = 0
	}
}

// Flush serializes the in-memory bitmaps and kv array back into the
// underlying Page's bytes and marks it dirty.
func (bp *BucketPage) Flush() {
	copy(bp.page.Data[bucketOccupiedOffset:bucketOccupiedOffset+bucketBitmapBytes], bp.occupied[:])
	copy(bp.page.Data[bucketReadableOffset:bucketReadableOffset+bucketBitmapBytes], bp.readable[:])

	for i := 0; i < NumBucketSlots; i++ {
		off := bucketDataOffset + i*bucketEntrySize
		binary.LittleEndian.PutUint64(bp.page.Data[off:off+8], bp.keys[i])
		binary.LittleEndian.PutUint64(bp.page.Data[off+8:off+16], bp.values[i])
	}

	bp.page.MarkDirty()
}
