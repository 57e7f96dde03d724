package hashindex

import (
	"encoding/binary"
	"fmt"

	"github.com/rihuaaaaa/laura-db/pkg/storage"
)

const (
	// MaxDepth bounds how many hash bits the directory can ever use, which
	// bounds the directory array at 2^MaxDepth entries so it still fits in
	// one page alongside the per-entry local-depth byte array.
	MaxDepth = 9

	// DirectorySize is 2^MaxDepth, the fixed length of the bucket-page-id
	// and local-depth arrays regardless of the current global depth.
	DirectorySize = 1 << MaxDepth

	directoryGlobalDepthOffset = 0
	directoryBucketIDsOffset   = 4
	directoryLocalDepthOffset  = directoryBucketIDsOffset + DirectorySize*4
)

// DirectoryPage is a structured view over a raw page holding the
// extendible hash table's directory: a global depth, an array of bucket
// page ids sized to the maximum possible directory, and a parallel array
// of per-entry local depths.
type DirectoryPage struct {
	page          *storage.Page
	globalDepth   uint32
	bucketPageIDs [DirectorySize]storage.PageID
	localDepths   [DirectorySize]uint8
}

// NewDirectoryPage initializes a directory at global depth 0 (a single
// entry, pointing nowhere until the caller assigns bucket 0) and persists it.
func NewDirectoryPage(page *storage.Page) (*DirectoryPage, error) {
	if page.Type != storage.PageTypeData && page.Type != storage.PageTypeHashDirectory {
		return nil, fmt.Errorf("new directory page %d: %w", page.ID, ErrWrongPageType)
	}
	page.Type = storage.PageTypeHashDirectory
	dp := &DirectoryPage{page: page}
	dp.Flush()
	return dp, nil
}

// LoadDirectoryPage reads an existing directory page's bytes into a view.
func LoadDirectoryPage(page *storage.Page) (*DirectoryPage, error) {
	if page.Type != storage.PageTypeHashDirectory {
		return nil, fmt.Errorf("load directory page %d: %w", page.ID, ErrWrongPageType)
	}
	if len(page.Data) < directoryLocalDepthOffset+DirectorySize {
		return nil, fmt.Errorf("load directory page %d: page data too small", page.ID)
	}

	dp := &DirectoryPage{page: page}
	dp.globalDepth = binary.LittleEndian.Uint32(page.Data[directoryGlobalDepthOffset : directoryGlobalDepthOffset+4])
	for i := 0; i < DirectorySize; i++ {
		off := directoryBucketIDsOffset + i*4
		dp.bucketPageIDs[i] = storage.PageID(binary.LittleEndian.Uint32(page.Data[off : off+4]))
		dp.localDepths[i] = page.Data[directoryLocalDepthOffset+i]
	}
	return dp, nil
}

// GlobalDepth returns the number of low-order hash bits currently used to
// index the directory.
func (dp *DirectoryPage) GlobalDepth() uint32 {
	return dp.globalDepth
}

// GlobalDepthMask returns (1 << global_depth) - 1.
func (dp *DirectoryPage) GlobalDepthMask() uint32 {
	return (uint32(1) << dp.globalDepth) - 1
}

// IncrGlobalDepth increments the global depth, doubling the addressable
// directory range (the caller is responsible for populating the newly
// addressable entries before or as part of this call).
func (dp *DirectoryPage) IncrGlobalDepth() {
	dp.globalDepth++
}

// DecrGlobalDepth decrements the global depth, halving the addressable
// directory range. Callers must have verified CanShrink first.
func (dp *DirectoryPage) DecrGlobalDepth() {
	if dp.globalDepth > 0 {
		dp.globalDepth--
	}
}

// GetBucketPageID returns the bucket page id stored at directory index idx.
func (dp *DirectoryPage) GetBucketPageID(idx uint32) storage.PageID {
	return dp.bucketPageIDs[idx]
}

// SetBucketPageID points directory index idx at id.
func (dp *DirectoryPage) SetBucketPageID(idx uint32, id storage.PageID) {
	dp.bucketPageIDs[idx] = id
}

// GetLocalDepth returns the local depth recorded at directory index idx.
func (dp *DirectoryPage) GetLocalDepth(idx uint32) uint8 {
	return dp.localDepths[idx]
}

// SetLocalDepth overwrites the local depth at directory index idx.
func (dp *DirectoryPage) SetLocalDepth(idx uint32, depth uint8) {
	dp.localDepths[idx] = depth
}

// IncrLocalDepth increments the local depth at directory index idx.
func (dp *DirectoryPage) IncrLocalDepth(idx uint32) {
	dp.localDepths[idx]++
}

// DecrLocalDepth decrements the local depth at directory index idx.
func (dp *DirectoryPage) DecrLocalDepth(idx uint32) {
	if dp.localDepths[idx] > 0 {
		dp.localDepths[idx]--
	}
}

// CanShrink reports whether every local depth in the addressable range is
// strictly less than the global depth, meaning global depth can safely
// be decremented without losing any bucket's distinction.
func (dp *DirectoryPage) CanShrink() bool {
	size := uint32(1) << dp.globalDepth
	for i := uint32(0); i < size; i++ {
		if dp.localDepths[i] >= uint8(dp.globalDepth) {
			return false
		}
	}
	return true
}

// Flush serializes the in-memory directory state back into the
// underlying Page's bytes and marks it dirty.
func (dp *DirectoryPage) Flush() {
	binary.LittleEndian.PutUint32(dp.page.Data[directoryGlobalDepthOffset:directoryGlobalDepthOffset+4], dp.globalDepth)
	for i := 0; i < DirectorySize; i++ {
		off := directoryBucketIDsOffset + i*4
		binary.LittleEndian.PutUint32(dp.page.Data[off:off+4], uint32(dp.bucketPageIDs[i]))
		dp.page.Data[directoryLocalDepthOffset+i] = dp.localDepths[i]
	}
	dp.page.MarkDirty()
}
