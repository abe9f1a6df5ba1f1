// types.go declares the wire/disk record types: Block, SignedTx,
// Transaction, Wallet, and the BlockStore location records. Each type
// declares its own field order via EncodeTo/DecodeFrom (codec.go's
// "serialize(ar)" convention) instead of relying on reflection or JSON tags.
package core

import (
	"crypto/sha256"
)

// Hash is a 32-byte digest, encoded on the wire without a length prefix.
type Hash [32]byte

func (h Hash) Bytes() []byte { return h[:] }

func (h Hash) IsZero() bool { return h == Hash{} }

// Transaction is the unsigned transfer instruction: a sender, a receiver,
// an amount, and opaque caller metadata.
type Transaction struct {
	Type         uint16
	FromWalletID uint64
	ToWalletID   uint64
	Amount       int64
	Meta         []byte
}

func (tx *Transaction) EncodeTo(w *Writer) error {
	w.WriteU16(tx.Type)
	w.WriteU64(tx.FromWalletID)
	w.WriteU64(tx.ToWalletID)
	w.WriteI64(tx.Amount)
	w.WriteBytes(tx.Meta)
	return nil
}

func (tx *Transaction) DecodeFrom(r *Reader) error {
	var err error
	if tx.Type, err = r.ReadU16(); err != nil {
		return err
	}
	if tx.FromWalletID, err = r.ReadU64(); err != nil {
		return err
	}
	if tx.ToWalletID, err = r.ReadU64(); err != nil {
		return err
	}
	if tx.Amount, err = r.ReadI64(); err != nil {
		return err
	}
	if tx.Meta, err = r.ReadBytes(); err != nil {
		return err
	}
	return nil
}

// SignedTx pairs a Transaction with its signature. Signature
// verification itself is a pluggable capability (see signing.go); the
// default implementation is permissive.
type SignedTx struct {
	Tx        Transaction
	Signature []byte
}

func (s *SignedTx) EncodeTo(w *Writer) error {
	if err := s.Tx.EncodeTo(w); err != nil {
		return err
	}
	w.WriteBytes(s.Signature)
	return nil
}

func (s *SignedTx) DecodeFrom(r *Reader) error {
	if err := s.Tx.DecodeFrom(r); err != nil {
		return err
	}
	var err error
	s.Signature, err = r.ReadBytes()
	return err
}

// Block is the unit of chain progress. Hash and PreviousHash
// are wire-fixed 32-byte digests.
type Block struct {
	Index        uint64
	Timestamp    int64
	PreviousHash Hash
	Data         []byte
	Hash         Hash
	Slot         uint64
	SlotLeader   string
	SignedTxes   []SignedTx
}

// signingBytes returns the canonical big-endian, length-prefixed encoding
// hashed to produce Block.Hash. It excludes the Hash field itself.
func (b *Block) signingBytes() []byte {
	w := NewWriter()
	w.WriteU64(b.Index)
	w.WriteI64(b.Timestamp)
	w.WriteBytes(b.Data)
	w.WriteFixed(b.PreviousHash.Bytes())
	w.WriteU64(b.Slot)
	w.WriteString(b.SlotLeader)
	WriteContainer(w, b.SignedTxes, func(w *Writer, tx SignedTx) {
		_ = tx.EncodeTo(w)
	})
	return w.Bytes()
}

// ComputeHash returns H(index‖timestamp‖data‖previousHash‖slot‖slotLeader‖signedTxes).
func (b *Block) ComputeHash() Hash {
	return sha256.Sum256(b.signingBytes())
}

// Seal recomputes and stores Block.Hash.
func (b *Block) Seal() { b.Hash = b.ComputeHash() }

// VerifyHash reports whether the stored Hash matches the block's contents.
func (b *Block) VerifyHash() bool { return b.Hash == b.ComputeHash() }

func (b *Block) EncodeTo(w *Writer) error {
	w.WriteU64(b.Index)
	w.WriteI64(b.Timestamp)
	w.WriteFixed(b.PreviousHash.Bytes())
	w.WriteBytes(b.Data)
	w.WriteFixed(b.Hash.Bytes())
	w.WriteU64(b.Slot)
	w.WriteString(b.SlotLeader)
	WriteContainer(w, b.SignedTxes, func(w *Writer, tx SignedTx) {
		_ = tx.EncodeTo(w)
	})
	return nil
}

func (b *Block) DecodeFrom(r *Reader) error {
	var err error
	if b.Index, err = r.ReadU64(); err != nil {
		return err
	}
	if b.Timestamp, err = r.ReadI64(); err != nil {
		return err
	}
	prev, err := r.ReadFixed(32)
	if err != nil {
		return err
	}
	copy(b.PreviousHash[:], prev)
	if b.Data, err = r.ReadBytes(); err != nil {
		return err
	}
	h, err := r.ReadFixed(32)
	if err != nil {
		return err
	}
	copy(b.Hash[:], h)
	if b.Slot, err = r.ReadU64(); err != nil {
		return err
	}
	if b.SlotLeader, err = r.ReadString(); err != nil {
		return err
	}
	b.SignedTxes, err = ReadContainer(r, func(r *Reader) (SignedTx, error) {
		var s SignedTx
		err := s.DecodeFrom(r)
		return s, err
	})
	return err
}

// EncodeTxes encodes a slice of SignedTx the same way Block.Data is built
// for Ledger.Commit: a length-prefixed container of the pending buffer.
func EncodeTxes(txes []SignedTx) []byte {
	w := NewWriter()
	WriteContainer(w, txes, func(w *Writer, tx SignedTx) { _ = tx.EncodeTo(w) })
	return w.Bytes()
}

// DecodeTxes is the inverse of EncodeTxes.
func DecodeTxes(data []byte) ([]SignedTx, error) {
	r := NewReader(data)
	return ReadContainer(r, func(r *Reader) (SignedTx, error) {
		var s SignedTx
		err := s.DecodeFrom(r)
		return s, err
	})
}

// Wallet is a balance-bearing account. Balance invariants are
// enforced by Ledger, not by Wallet itself.
type Wallet struct {
	ID      uint64
	Balance int64
}

// BlockLocation records where a committed block lives on disk.
type BlockLocation struct {
	FileID uint32
	Offset uint64
	Size   uint64
}

// rangeEntry is one (offset, size) pair within a FileBlockRange.
type rangeEntry struct {
	Offset int64
	Size   uint64
}

// FileBlockRange is the contiguous block-id range owned by a single
// BlockFile, plus per-block offset/size entries.
type FileBlockRange struct {
	StartBlockID uint64
	Entries      []rangeEntry
}

func (f *FileBlockRange) EncodeTo(w *Writer) error {
	w.WriteU64(f.StartBlockID)
	WriteContainer(w, f.Entries, func(w *Writer, e rangeEntry) {
		w.WriteI64(e.Offset)
		w.WriteU64(e.Size)
	})
	return nil
}

func (f *FileBlockRange) DecodeFrom(r *Reader) error {
	var err error
	if f.StartBlockID, err = r.ReadU64(); err != nil {
		return err
	}
	f.Entries, err = ReadContainer(r, func(r *Reader) (rangeEntry, error) {
		var e rangeEntry
		var ierr error
		if e.Offset, ierr = r.ReadI64(); ierr != nil {
			return e, ierr
		}
		if e.Size, ierr = r.ReadU64(); ierr != nil {
			return e, ierr
		}
		return e, nil
	})
	return err
}

// Len reports how many blocks this range covers.
func (f *FileBlockRange) Len() int { return len(f.Entries) }

// blockIDAt returns the block id for the i-th entry in this range.
func (f *FileBlockRange) blockIDAt(i int) uint64 { return f.StartBlockID + uint64(i) }
