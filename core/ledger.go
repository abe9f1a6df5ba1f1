// ledger.go implements the Ledger: the wallet table, the pending-transaction
// buffer, block commit/validate, and hot -> cold tiering between an active
// and an archive BlockStore.
package core

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"synnergy-ledger/pkg/errs"
)

// LedgerConfig parameterizes a Ledger's two storage tiers and tiering
// policy.
type LedgerConfig struct {
	ActiveDir           string
	ArchiveDir          string
	ActiveFileCapacity  uint64
	ArchiveFileCapacity uint64
	MaxActiveSize       uint64
	// CheckpointAge additionally tiers out files whose oldest block is
	// older than this duration, supplementing the byte-size trigger.
	CheckpointAge time.Duration
}

// Validator checks a freshly-built block against the chain before it is
// committed (used by Ledger.Commit; Ledger.AddBlock takes no Validator).
type Validator func(candidate *Block, chain ChainReader) error

// Ledger owns the wallet table, the pending-tx buffer, and both storage
// tiers. It is the sole mutator of Wallets.
type Ledger struct {
	log      *logrus.Logger
	cfg      LedgerConfig
	verifier Verifier

	wallets *WalletTable

	active  *BlockStore
	archive *BlockStore

	mu      sync.Mutex
	pending []SignedTx
}

// NewLedger opens (or creates) the active and archive stores under
// cfg.ActiveDir / cfg.ArchiveDir and rehydrates the in-memory chain from
// the active store.
func NewLedger(cfg LedgerConfig, log *logrus.Logger) (*Ledger, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.ActiveFileCapacity == 0 || cfg.ArchiveFileCapacity == 0 {
		return nil, errs.ConfigError("ledger file capacities must be > 0")
	}

	active, err := NewBlockStore(StoreConfig{Dir: cfg.ActiveDir, FileCapacity: cfg.ActiveFileCapacity}, true, log)
	if err != nil {
		return nil, err
	}
	archive, err := NewBlockStore(StoreConfig{Dir: cfg.ArchiveDir, FileCapacity: cfg.ArchiveFileCapacity}, false, log)
	if err != nil {
		active.Close()
		return nil, err
	}

	l := &Ledger{
		log:      log,
		cfg:      cfg,
		verifier: PermissiveVerifier{},
		wallets:  NewWalletTable(),
		active:   active,
		archive:  archive,
	}
	log.WithFields(logrus.Fields{"chainSize": active.Chain().Size()}).Info("ledger: opened")
	return l, nil
}

// SetVerifier overrides the default permissive SignedTx verifier.
func (l *Ledger) SetVerifier(v Verifier) { l.verifier = v }

// Chain exposes the rehydrated in-memory chain as a read-only ChainReader.
func (l *Ledger) Chain() ChainReader { return l.active.Chain() }

// NextBlockID returns the id that will be assigned to the next committed or
// ingested block. Callers that need the chain's total length (status
// responses, sync's fetch-until-caught-up loop) must use this instead of
// Chain().Size(), which only reflects blocks still held in memory after
// tiering has trimmed the front.
func (l *Ledger) NextBlockID() uint64 { return l.active.Chain().NextIndex() }

// Wallet returns a snapshot of a wallet's current balance.
func (l *Ledger) Wallet(id uint64) Wallet { return l.wallets.Get(id) }

// SeedWallet sets an initial balance directly, bypassing transaction
// application (used for genesis / test fixtures).
func (l *Ledger) SeedWallet(id uint64, balance int64) { l.wallets.SetBalance(id, balance) }

// AddTransaction validates the signature, applies the balance effect, and —
// only on success — appends the transaction to the pending buffer.
// Rejection leaves Wallets and the buffer unchanged.
func (l *Ledger) AddTransaction(stx SignedTx) error {
	if !l.verifier.Verify(&stx) {
		return errs.ValidationError("signature verification failed")
	}
	if err := l.wallets.Transfer(stx.Tx.FromWalletID, stx.Tx.ToWalletID, stx.Tx.Amount); err != nil {
		return err
	}
	l.mu.Lock()
	l.pending = append(l.pending, stx)
	l.mu.Unlock()
	return nil
}

// PendingCount reports how many transactions are buffered.
func (l *Ledger) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Commit builds a block from the pending buffer and, on success, writes it
// through the active store and clears the buffer. If the
// buffer is empty, or validator rejects the candidate, state is unchanged.
func (l *Ledger) Commit(slot uint64, slotLeader string, validator Validator) (*Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.pending) == 0 {
		return nil, errs.ValidationError("no pending transactions to commit")
	}

	chain := l.active.Chain()
	txes := append([]SignedTx(nil), l.pending...)
	blk := &Block{
		Index:        chain.NextIndex(),
		Timestamp:    time.Now().Unix(),
		PreviousHash: chain.LastHash(),
		Data:         EncodeTxes(txes),
		Slot:         slot,
		SlotLeader:   slotLeader,
		SignedTxes:   txes,
	}
	blk.Seal()

	if validator != nil {
		if err := validator(blk, chain); err != nil {
			return nil, err
		}
	}

	if err := l.active.WriteBlock(blk); err != nil {
		return nil, err
	}
	l.pending = l.pending[:0]
	l.log.WithFields(logrus.Fields{"index": blk.Index, "slot": slot, "txes": len(txes)}).Info("ledger: committed block")
	if _, err := l.TierIfNeeded(); err != nil {
		l.log.WithError(err).Warn("ledger: tiering after commit failed")
	}
	return blk, nil
}

// AddBlock ingests a block produced elsewhere (Relay/Beacon's addBlock path).
// In strict mode it rejects a block whose index or previousHash do not
// extend the current chain tip.
func (l *Ledger) AddBlock(block *Block, strict bool) error {
	chain := l.active.Chain()
	if strict {
		if block.Index != chain.NextIndex() {
			return errs.ValidationError("block index does not extend the chain tip")
		}
		if block.PreviousHash != chain.LastHash() {
			return errs.ValidationError("block previousHash does not match chain tip")
		}
	}
	if !block.VerifyHash() {
		return errs.ValidationError("block hash does not match its contents")
	}
	if err := l.active.WriteBlock(block); err != nil {
		return err
	}
	// A mirrored block never passed through this Ledger's own
	// AddTransaction/Commit path, so its wallet effects have not been
	// applied here yet; replay them now so account.get stays meaningful on
	// relay/beacon nodes that only ever receive blocks, not transactions.
	for _, stx := range block.SignedTxes {
		l.wallets.Apply(stx.Tx.FromWalletID, stx.Tx.ToWalletID, stx.Tx.Amount)
	}
	if _, err := l.TierIfNeeded(); err != nil {
		l.log.WithError(err).Warn("ledger: tiering after block ingest failed")
	}
	return nil
}

// TierIfNeeded moves the oldest active file(s) to the archive store while
// either the active store's total size is at or above MaxActiveSize, or the
// oldest block still held on the active chain is older than CheckpointAge.
// It loops until both conditions clear.
func (l *Ledger) TierIfNeeded() (moved int, err error) {
	for {
		overSize := l.cfg.MaxActiveSize > 0 && l.active.TotalStorageSize() >= l.cfg.MaxActiveSize
		overAge, ageErr := l.oldestFileTooOld()
		if ageErr != nil {
			return moved, ageErr
		}
		if !overSize && !overAge {
			return moved, nil
		}
		if l.active.FileCount() == 0 {
			return moved, nil
		}
		if err := l.active.MoveFrontFileTo(l.archive); err != nil {
			return moved, err
		}
		moved++
		l.log.Info("ledger: tiered oldest active segment to archive")
	}
}

// oldestFileTooOld inspects the oldest block still on the active chain to
// decide whether CheckpointAge has elapsed for it.
func (l *Ledger) oldestFileTooOld() (bool, error) {
	if l.cfg.CheckpointAge <= 0 {
		return false, nil
	}
	chain := l.active.Chain()
	if chain.Size() == 0 {
		return false, nil
	}
	first := chain.Get(0)
	if first == nil {
		return false, nil
	}
	age := time.Since(time.Unix(first.Timestamp, 0))
	return age >= l.cfg.CheckpointAge, nil
}

// ReadBlock reads a block by id, checking the active store first, then the
// archive.
func (l *Ledger) ReadBlock(id uint64) (*Block, error) {
	if blk, err := l.active.ReadBlock(id); err == nil {
		return blk, nil
	}
	return l.archive.ReadBlock(id)
}

// ArchiveFileIDs returns the ids of every segment currently tiered out to
// the archive store, oldest first (used to answer the wire `status`
// response's checkpointIds field).
func (l *Ledger) ArchiveFileIDs() []uint32 { return l.archive.FileIDs() }

// Close releases both stores' file handles.
func (l *Ledger) Close() error {
	aerr := l.active.Close()
	rerr := l.archive.Close()
	if aerr != nil {
		return aerr
	}
	return rerr
}
