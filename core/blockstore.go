// blockstore.go implements the segmented block directory: an ordered
// sequence of BlockFiles plus a single index file mapping
// blockId -> (fileId, offset, size).
package core

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"synnergy-ledger/pkg/errs"
)

const (
	indexMagic   uint32 = 0x504C4944 // "PLID"
	indexVersion uint16 = 1
	indexHeader         = 4 + 2 + 2 + 8 // magic + version + reserved + headerSize
)

// StoreConfig parameterizes a BlockStore.
type StoreConfig struct {
	Dir          string
	FileCapacity uint64
}

func dataFileName(fileID uint32) string {
	return fmt.Sprintf("block_%06d.dat", fileID)
}

// BlockStore is an ordered set of BlockFiles plus an in-memory index mapping
// each block id to its file and offset. When managesChain is true it also
// owns the Chain rehydrated at startup and kept in lockstep with
// writes/evictions.
type BlockStore struct {
	mu sync.Mutex

	dir      string
	capacity uint64
	log      *logrus.Logger

	files       map[uint32]*BlockFile
	ranges      map[uint32]*FileBlockRange
	fileIDOrder []uint32
	blockIndex  map[uint64]BlockLocation

	managesChain bool
	chain        *Chain
}

// NewBlockStore creates or opens the directory at cfg.Dir. If managesChain is true, the in-memory Chain is rehydrated by
// replaying files in fileIdOrder.
func NewBlockStore(cfg StoreConfig, managesChain bool, log *logrus.Logger) (*BlockStore, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.FileCapacity == 0 {
		return nil, errs.ConfigError("store file capacity must be > 0")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errs.IoErrorf(err, "create store dir")
	}

	bs := &BlockStore{
		dir:          cfg.Dir,
		capacity:     cfg.FileCapacity,
		log:          log,
		files:        make(map[uint32]*BlockFile),
		ranges:       make(map[uint32]*FileBlockRange),
		blockIndex:   make(map[uint64]BlockLocation),
		managesChain: managesChain,
	}
	if managesChain {
		bs.chain = NewChain()
	}

	idxPath := bs.indexPath()
	if _, err := os.Stat(idxPath); err == nil {
		if err := bs.loadIndex(); err != nil {
			return nil, err
		}
	}

	if managesChain {
		if err := bs.rehydrateChain(); err != nil {
			return nil, err
		}
	}
	return bs, nil
}

func (bs *BlockStore) indexPath() string { return filepath.Join(bs.dir, "blocks.index") }

// Chain returns the rehydrated in-memory chain. Only valid when the store
// was opened with managesChain = true.
func (bs *BlockStore) Chain() *Chain { return bs.chain }

func (bs *BlockStore) rehydrateChain() error {
	for _, fid := range bs.fileIDOrder {
		rng := bs.ranges[fid]
		bf, err := bs.openOrGetFile(fid)
		if err != nil {
			return err
		}
		for i, e := range rng.Entries {
			raw, err := bf.ReadAt(uint64(e.Offset), e.Size)
			if err != nil {
				return err
			}
			var blk Block
			if err := Decode(raw, &blk); err != nil {
				return errs.CodecErrorf(err, "decode block during rehydration")
			}
			if blk.Index != rng.blockIDAt(i) {
				return errs.StoreError("on-disk block index does not match its location")
			}
			bs.chain.append(&blk)
		}
	}
	return nil
}

func (bs *BlockStore) openOrGetFile(fileID uint32) (*BlockFile, error) {
	if bf, ok := bs.files[fileID]; ok {
		return bf, nil
	}
	path := filepath.Join(bs.dir, dataFileName(fileID))
	if _, err := os.Stat(path); err != nil {
		return nil, errs.StoreErrorf(err, "indexed file missing on disk: "+path)
	}
	bf, err := OpenBlockFile(path, bs.capacity, bs.log)
	if err != nil {
		return nil, err
	}
	bs.files[fileID] = bf
	return bf, nil
}

// HasBlock reports whether blockID is present in the index.
func (bs *BlockStore) HasBlock(blockID uint64) bool {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	_, ok := bs.blockIndex[blockID]
	return ok
}

// ReadBlock looks up blockID and reads it back from disk.
func (bs *BlockStore) ReadBlock(blockID uint64) (*Block, error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	loc, ok := bs.blockIndex[blockID]
	if !ok {
		return nil, errs.NotFoundError(fmt.Sprintf("block %d not found", blockID))
	}
	bf, err := bs.openOrGetFile(loc.FileID)
	if err != nil {
		return nil, err
	}
	raw, err := bf.ReadAt(loc.Offset, loc.Size)
	if err != nil {
		return nil, err
	}
	var blk Block
	if err := Decode(raw, &blk); err != nil {
		return nil, errs.CodecErrorf(err, "decode block")
	}
	return &blk, nil
}

// WriteBlock encodes and appends block, selecting the active (last) file if
// it still fits or rotating to a new one otherwise. When the store manages
// a chain, the block is also appended to it as part of the same call so the
// in-memory chain never drifts from what is durably on disk.
func (bs *BlockStore) WriteBlock(block *Block) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	blockID := block.Index
	if _, dup := bs.blockIndex[blockID]; dup {
		return errs.StoreError(fmt.Sprintf("duplicate block id %d", blockID))
	}
	encoded, err := Encode(block)
	if err != nil {
		return errs.CodecErrorf(err, "encode block")
	}

	fileID, bf, err := bs.activeFileLocked(len(encoded))
	if err != nil {
		return err
	}

	offset, err := bf.Append(encoded)
	if err != nil {
		return err
	}

	rng, ok := bs.ranges[fileID]
	if !ok {
		rng = &FileBlockRange{StartBlockID: blockID}
		bs.ranges[fileID] = rng
	}
	rng.Entries = append(rng.Entries, rangeEntry{Offset: int64(offset), Size: uint64(len(encoded))})
	bs.blockIndex[blockID] = BlockLocation{FileID: fileID, Offset: offset, Size: uint64(len(encoded))}

	if err := bs.saveIndexLocked(); err != nil {
		return err
	}
	if bs.managesChain {
		bs.chain.append(block)
	}
	return nil
}

// activeFileLocked returns the file that should receive the next record: the
// last file in fileIdOrder if it still fits, otherwise a freshly rotated one.
// Caller holds bs.mu.
func (bs *BlockStore) activeFileLocked(payloadLen int) (uint32, *BlockFile, error) {
	if len(bs.fileIDOrder) > 0 {
		last := bs.fileIDOrder[len(bs.fileIDOrder)-1]
		bf, err := bs.openOrGetFile(last)
		if err != nil {
			return 0, nil, err
		}
		if bf.CanFit(payloadLen) {
			return last, bf, nil
		}
	}
	var next uint32
	if len(bs.fileIDOrder) > 0 {
		next = bs.fileIDOrder[len(bs.fileIDOrder)-1] + 1
	}
	path := filepath.Join(bs.dir, dataFileName(next))
	bf, err := OpenBlockFile(path, bs.capacity, bs.log)
	if err != nil {
		return 0, nil, err
	}
	bs.files[next] = bf
	bs.fileIDOrder = append(bs.fileIDOrder, next)
	bs.log.WithFields(logrus.Fields{"fileId": next}).Info("blockstore: rotated to new segment")
	return next, bf, nil
}

// PopFrontFile drops the oldest file from the store's maps and fileIdOrder,
// returning the closed BlockFile handle and the range it owned.
func (bs *BlockStore) PopFrontFile() (*BlockFile, *FileBlockRange, error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return bs.popFrontFileLocked()
}

func (bs *BlockStore) popFrontFileLocked() (*BlockFile, *FileBlockRange, error) {
	if len(bs.fileIDOrder) == 0 {
		return nil, nil, errs.StoreError("no files to pop")
	}
	fileID := bs.fileIDOrder[0]
	bf, err := bs.openOrGetFile(fileID)
	if err != nil {
		return nil, nil, err
	}
	rng := bs.ranges[fileID]

	bs.fileIDOrder = bs.fileIDOrder[1:]
	delete(bs.files, fileID)
	delete(bs.ranges, fileID)
	for i := 0; i < rng.Len(); i++ {
		delete(bs.blockIndex, rng.blockIDAt(i))
	}
	if err := bf.Close(); err != nil {
		return nil, nil, err
	}

	if bs.managesChain {
		bs.chain.trimFront(rng.Len())
	}

	if err := bs.saveIndexLocked(); err != nil {
		return nil, nil, err
	}
	return bf, rng, nil
}

// MoveFrontFileTo transfers ownership of the oldest file to other, renaming
// it on disk. If inserting into other fails after the in-memory copy is
// made, the copy is rolled back before returning the error.
func (bs *BlockStore) MoveFrontFileTo(other *BlockStore) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if other == bs {
		return errs.ConfigError("cannot move a file onto the same store")
	}
	other.mu.Lock()
	defer other.mu.Unlock()

	if len(bs.fileIDOrder) == 0 {
		return errs.StoreError("no files to move")
	}
	fileID := bs.fileIDOrder[0]
	rng := bs.ranges[fileID]
	bf, err := bs.openOrGetFile(fileID)
	if err != nil {
		return err
	}

	// (a) copy range + index entries into other.
	newFileID := fileID
	if _, collide := other.ranges[newFileID]; collide {
		if len(other.fileIDOrder) > 0 {
			newFileID = other.fileIDOrder[len(other.fileIDOrder)-1] + 1
		} else {
			newFileID = 0
		}
	}
	copied := &FileBlockRange{StartBlockID: rng.StartBlockID, Entries: append([]rangeEntry(nil), rng.Entries...)}
	other.ranges[newFileID] = copied
	other.fileIDOrder = append(other.fileIDOrder, newFileID)
	addedKeys := make([]uint64, 0, rng.Len())
	for i := 0; i < rng.Len(); i++ {
		bid := rng.blockIDAt(i)
		other.blockIndex[bid] = BlockLocation{FileID: newFileID, Offset: uint64(rng.Entries[i].Offset), Size: rng.Entries[i].Size}
		addedKeys = append(addedKeys, bid)
	}

	rollback := func() {
		delete(other.ranges, newFileID)
		other.fileIDOrder = other.fileIDOrder[:len(other.fileIDOrder)-1]
		for _, k := range addedKeys {
			delete(other.blockIndex, k)
		}
	}

	// (b) pop front locally.
	if err := bf.Close(); err != nil {
		rollback()
		return errs.IoErrorf(err, "close file before move")
	}
	bs.fileIDOrder = bs.fileIDOrder[1:]
	delete(bs.files, fileID)
	delete(bs.ranges, fileID)
	for i := 0; i < rng.Len(); i++ {
		delete(bs.blockIndex, rng.blockIDAt(i))
	}

	// (c) rename on disk.
	oldPath := filepath.Join(bs.dir, dataFileName(fileID))
	newPath := filepath.Join(other.dir, dataFileName(newFileID))
	if err := os.Rename(oldPath, newPath); err != nil {
		rollback()
		// Restore local bookkeeping too, since the move did not complete.
		bs.fileIDOrder = append([]uint32{fileID}, bs.fileIDOrder...)
		bs.ranges[fileID] = rng
		for i := 0; i < rng.Len(); i++ {
			bs.blockIndex[rng.blockIDAt(i)] = BlockLocation{FileID: fileID, Offset: uint64(rng.Entries[i].Offset), Size: rng.Entries[i].Size}
		}
		return errs.IoErrorf(err, "rename segment across stores")
	}

	if bs.managesChain {
		bs.chain.trimFront(rng.Len())
	}

	if err := bs.saveIndexLocked(); err != nil {
		return err
	}
	if err := other.saveIndexLocked(); err != nil {
		return err
	}
	return nil
}

// TotalStorageSize sums the on-disk size of every file the store owns.
func (bs *BlockStore) TotalStorageSize() uint64 {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	var total uint64
	for _, fid := range bs.fileIDOrder {
		bf, err := bs.openOrGetFile(fid)
		if err != nil {
			continue
		}
		total += bf.Size()
	}
	return total
}

// FileCount reports how many data segments the store currently owns.
func (bs *BlockStore) FileCount() int {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return len(bs.fileIDOrder)
}

// FileIDs returns a copy of the store's segment ids, oldest first.
func (bs *BlockStore) FileIDs() []uint32 {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return append([]uint32(nil), bs.fileIDOrder...)
}

// --- index persistence -------------------------------------------------

// saveIndexLocked performs a durable write-then-truncate of the index file:
// write to a temp file, fsync, then rename over the real path so a reader
// never observes a partially written index.
func (bs *BlockStore) saveIndexLocked() error {
	w := NewWriter()
	w.WriteU32(indexMagic)
	w.WriteU16(indexVersion)
	w.WriteU16(0) // reserved
	w.WriteU64(indexHeader)

	ids := append([]uint32(nil), bs.fileIDOrder...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	w.WriteU64(uint64(len(ids)))
	for _, fid := range ids {
		w.WriteU32(fid)
		_ = bs.ranges[fid].EncodeTo(w)
	}

	tmpPath := bs.indexPath() + ".tmp"
	if err := os.WriteFile(tmpPath, w.Bytes(), 0o644); err != nil {
		return errs.IoErrorf(err, "write index temp file")
	}
	f, err := os.OpenFile(tmpPath, os.O_RDWR, 0o644)
	if err != nil {
		return errs.IoErrorf(err, "reopen index temp file")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errs.IoErrorf(err, "flush index temp file")
	}
	f.Close()
	if err := os.Rename(tmpPath, bs.indexPath()); err != nil {
		return errs.IoErrorf(err, "rename index into place")
	}
	return nil
}

func (bs *BlockStore) loadIndex() error {
	raw, err := os.ReadFile(bs.indexPath())
	if err != nil {
		return errs.IoErrorf(err, "read index file")
	}
	r := NewReader(raw)
	magic, err := r.ReadU32()
	if err != nil {
		return errs.CodecErrorf(err, "read index magic")
	}
	if magic != indexMagic {
		return errs.StoreError("index file has wrong magic")
	}
	version, err := r.ReadU16()
	if err != nil {
		return errs.CodecErrorf(err, "read index version")
	}
	if version != indexVersion {
		return errs.StoreError(fmt.Sprintf("unsupported index version %d", version))
	}
	if _, err := r.ReadU16(); err != nil { // reserved
		return errs.CodecErrorf(err, "read index reserved field")
	}
	if _, err := r.ReadU64(); err != nil { // headerSize
		return errs.CodecErrorf(err, "read index header size")
	}

	count, err := r.ReadU64()
	if err != nil {
		return errs.CodecErrorf(err, "read index entry count")
	}
	for i := uint64(0); i < count; i++ {
		fileID, err := r.ReadU32()
		if err != nil {
			return errs.CodecErrorf(err, "read index file id")
		}
		var rng FileBlockRange
		if err := rng.DecodeFrom(r); err != nil {
			return errs.CodecErrorf(err, "read index file range")
		}
		bs.ranges[fileID] = &rng
		bs.fileIDOrder = append(bs.fileIDOrder, fileID)
		for i, e := range rng.Entries {
			bs.blockIndex[rng.blockIDAt(i)] = BlockLocation{FileID: fileID, Offset: uint64(e.Offset), Size: e.Size}
		}
	}
	sort.Slice(bs.fileIDOrder, func(i, j int) bool { return bs.fileIDOrder[i] < bs.fileIDOrder[j] })
	return nil
}

// Close closes every open file handle owned by the store.
func (bs *BlockStore) Close() error {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	var first error
	for _, bf := range bs.files {
		if err := bf.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
