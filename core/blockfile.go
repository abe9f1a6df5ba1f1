// blockfile.go implements a single append-only data segment.
// Records are [size u64][bytes size]; the size header is a durability/safety
// check, not the primary source of record length (the index is).
package core

import (
	"encoding/binary"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"synnergy-ledger/pkg/errs"
)

const recordHeaderSize = 8 // one u64 length prefix

// BlockFile is a fixed-capacity append-only segment, exclusively owned by
// at most one BlockStore at a time.
type BlockFile struct {
	mu       sync.Mutex
	f        *os.File
	path     string
	capacity uint64
	size     uint64
	log      *logrus.Logger
}

// OpenBlockFile opens or creates the segment at path. It fails if the file
// already on disk is larger than capacity.
func OpenBlockFile(path string, capacity uint64, log *logrus.Logger) (*BlockFile, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errs.IoErrorf(err, "open block file "+path)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errs.IoErrorf(err, "stat block file "+path)
	}
	size := uint64(info.Size())
	if size > capacity {
		f.Close()
		return nil, errs.StoreError("block file " + path + " exceeds configured capacity")
	}
	return &BlockFile{f: f, path: path, capacity: capacity, size: size, log: log}, nil
}

// Path returns the file's on-disk path.
func (bf *BlockFile) Path() string { return bf.path }

// Size returns the current on-disk size.
func (bf *BlockFile) Size() uint64 {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	return bf.size
}

// CanFit reports whether a payload of n bytes (plus its header) still fits
// under capacity.
func (bf *BlockFile) CanFit(n int) bool {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	return bf.size+recordHeaderSize+uint64(n) <= bf.capacity
}

// Append writes [size u64][payload], flushes durably, and returns the
// offset of the size header. On any partial write it truncates the file
// back to its pre-write size so the file remains consistent.
func (bf *BlockFile) Append(payload []byte) (offset uint64, err error) {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	preSize := bf.size
	offset = preSize

	var hdr [recordHeaderSize]byte
	binary.BigEndian.PutUint64(hdr[:], uint64(len(payload)))

	rollback := func() {
		_ = bf.f.Truncate(int64(preSize))
		bf.size = preSize
	}

	if _, err = bf.f.WriteAt(hdr[:], int64(preSize)); err != nil {
		rollback()
		return 0, errs.IoErrorf(err, "write record header")
	}
	if _, err = bf.f.WriteAt(payload, int64(preSize+recordHeaderSize)); err != nil {
		rollback()
		return 0, errs.IoErrorf(err, "write record payload")
	}
	if err = bf.f.Sync(); err != nil {
		rollback()
		return 0, errs.IoErrorf(err, "flush block file")
	}
	bf.size = preSize + recordHeaderSize + uint64(len(payload))
	return offset, nil
}

// ReadAt reads exactly size bytes of payload starting at offset+8. The
// stored size header is re-checked as a consistency guard; the index is the
// authoritative source of length.
func (bf *BlockFile) ReadAt(offset, size uint64) ([]byte, error) {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	var hdr [recordHeaderSize]byte
	if _, err := bf.f.ReadAt(hdr[:], int64(offset)); err != nil {
		return nil, errs.IoErrorf(err, "read record header")
	}
	if stored := binary.BigEndian.Uint64(hdr[:]); stored != size {
		return nil, errs.StoreError("record size header mismatch")
	}
	buf := make([]byte, size)
	if _, err := bf.f.ReadAt(buf, int64(offset+recordHeaderSize)); err != nil {
		return nil, errs.IoErrorf(err, "read record payload")
	}
	return buf, nil
}

// Close releases the underlying file handle.
func (bf *BlockFile) Close() error {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	return bf.f.Close()
}
