package engine

import (
	"encoding/binary"
	"fmt"

	"github.com/rihuaaaaa/laura-db/pkg/buffer"
	"github.com/rihuaaaaa/laura-db/pkg/compression"
	"github.com/rihuaaaaa/laura-db/pkg/storage"
)

// compressedPageHeaderSize is [1-byte flag][4-byte original size]. Unlike
// pkg/compression/page.go's CompressedPage, which hands back a
// variable-length blob for the caller to store wherever it likes, a disk
// manager only knows how to read/write full PageSize slots, so the
// compressed bytes get packed back into one here instead.
const compressedPageHeaderSize = 5

// CompressingDiskManager wraps a buffer.DiskManager with transparent
// compression at the page boundary, delegating the actual algorithm work
// to pkg/compression.Compressor.
type CompressingDiskManager struct {
	diskMgr  buffer.DiskManager
	compress *compression.Compressor
}

// NewCompressingDiskManager wraps diskMgr with zstd page compression.
func NewCompressingDiskManager(diskMgr buffer.DiskManager) (*CompressingDiskManager, error) {
	compressor, err := compression.NewCompressor(compression.ZstdConfig(3))
	if err != nil {
		return nil, fmt.Errorf("pagecompress: create compressor: %w", err)
	}
	return &CompressingDiskManager{diskMgr: diskMgr, compress: compressor}, nil
}

// ReadPage reads and, if flagged, decompresses a page.
func (c *CompressingDiskManager) ReadPage(id storage.PageID) (*storage.Page, error) {
	page, err := c.diskMgr.ReadPage(id)
	if err != nil {
		return nil, err
	}

	if len(page.Data) < compressedPageHeaderSize || page.Data[0] == 0 {
		return page, nil
	}

	originalSize := binary.LittleEndian.Uint32(page.Data[1:compressedPageHeaderSize])
	decompressed, err := c.compress.Decompress(page.Data[compressedPageHeaderSize:])
	if err != nil {
		return nil, fmt.Errorf("pagecompress: decompress page %d: %w", id, err)
	}
	if uint32(len(decompressed)) != originalSize {
		return nil, fmt.Errorf("pagecompress: size mismatch for page %d: expected %d, got %d",
			id, originalSize, len(decompressed))
	}

	pageDataSize := storage.PageSize - storage.PageHeaderSize
	restored := make([]byte, pageDataSize)
	copy(restored, decompressed)
	page.Data = restored
	return page, nil
}

// WritePage compresses page.Data and writes it through, flagged so ReadPage
// knows to reverse it. Fails closed with ErrCompressedPageTooLarge rather
// than silently falling back to an unflagged raw write, which would make
// the flag byte ambiguous with whatever a caller's own data happens to
// start with.
func (c *CompressingDiskManager) WritePage(page *storage.Page) error {
	compressed, err := c.compress.Compress(page.Data)
	if err != nil {
		return fmt.Errorf("pagecompress: compress page %d: %w", page.ID, err)
	}

	pageDataSize := storage.PageSize - storage.PageHeaderSize
	total := compressedPageHeaderSize + len(compressed)
	if total > pageDataSize {
		return fmt.Errorf("%w: page %d needs %d bytes, have %d", ErrCompressedPageTooLarge, page.ID, total, pageDataSize)
	}

	out := &storage.Page{
		ID:       page.ID,
		Type:     page.Type,
		Flags:    page.Flags,
		LSN:      page.LSN,
		IsDirty:  page.IsDirty,
		PinCount: page.PinCount,
		Data:     make([]byte, pageDataSize),
	}
	out.Data[0] = 1
	binary.LittleEndian.PutUint32(out.Data[1:compressedPageHeaderSize], uint32(len(page.Data)))
	copy(out.Data[compressedPageHeaderSize:], compressed)

	return c.diskMgr.WritePage(out)
}

// AllocatePage delegates to the wrapped disk manager.
func (c *CompressingDiskManager) AllocatePage() (storage.PageID, error) {
	return c.diskMgr.AllocatePage()
}

// DeallocatePage delegates to the wrapped disk manager.
func (c *CompressingDiskManager) DeallocatePage(id storage.PageID) error {
	return c.diskMgr.DeallocatePage(id)
}

// Close releases the compressor's zstd encoder/decoder and closes the
// wrapped disk manager, if it supports closing.
func (c *CompressingDiskManager) Close() error {
	c.compress.Close()
	if closer, ok := c.diskMgr.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
