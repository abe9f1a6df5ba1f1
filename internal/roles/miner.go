// miner.go implements the Miner role: wakes each tick, refreshes the
// stakeholder list from Beacon, produces at most one block per slot when
// it is the elected leader, and broadcasts the result.
package roles

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"synnergy-ledger/core"
	"synnergy-ledger/internal/netio"
	"synnergy-ledger/pkg/errs"
)

// Miner produces blocks when it is elected slot leader, persisting
// lastProducedSlot across restarts so it never double-produces for a slot
// it has already handled.
type Miner struct {
	log       *logrus.Logger
	ledger    *core.Ledger
	scheduler *core.Scheduler
	selfID    string
	selfHost  string
	selfPort  uint16

	beaconAddr string
	dial       netio.Dial

	statePath string

	mu               sync.Mutex
	lastProducedSlot uint64
	haveProduced     bool

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMiner creates a Miner, loading any persisted lastProducedSlot from
// <workDir>/miner.state. selfHost/selfPort are the endpoint this miner's own
// Service listens on, announced to the Beacon via Register.
func NewMiner(ledger *core.Ledger, scheduler *core.Scheduler, selfID string, selfHost string, selfPort uint16, beaconAddr string, dial netio.Dial, workDir string, log *logrus.Logger) (*Miner, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	m := &Miner{
		log:        log,
		ledger:     ledger,
		scheduler:  scheduler,
		selfID:     selfID,
		selfHost:   selfHost,
		selfPort:   selfPort,
		beaconAddr: beaconAddr,
		dial:       dial,
		statePath:  filepath.Join(workDir, "miner.state"),
		stop:       make(chan struct{}),
	}
	if err := m.loadState(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Miner) loadState() error {
	raw, err := os.ReadFile(m.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errs.IoErrorf(err, "read miner state")
	}
	slot, err := decodeU64(raw)
	if err != nil {
		return errs.CodecErrorf(err, "decode miner state")
	}
	m.lastProducedSlot = slot
	m.haveProduced = true
	return nil
}

// saveState durably persists lastProducedSlot via write-then-rename, the
// same pattern BlockStore.saveIndexLocked uses for the block index.
func (m *Miner) saveState(slot uint64) error {
	tmp := m.statePath + ".tmp"
	if err := os.WriteFile(tmp, encodeU64(slot), 0o644); err != nil {
		return errs.IoErrorf(err, "write miner state temp file")
	}
	if err := os.Rename(tmp, m.statePath); err != nil {
		return errs.IoErrorf(err, "rename miner state into place")
	}
	return nil
}

// RefreshStakeholders pulls the current stakeholder list from the Beacon
// and adds or updates each listed stakeholder in the scheduler's registry;
// entries missing from the list are kept.
func (m *Miner) RefreshStakeholders(ctx context.Context) error {
	list, err := fetchStakeholders(ctx, m.dial, m.beaconAddr)
	if err != nil {
		return err
	}
	for _, st := range list {
		m.scheduler.AddStakeholder(st)
	}
	return nil
}

// Sync pulls every block this miner's own ledger is missing from the
// Beacon's canonical chain, so a freshly produced block always extends the
// real chain tip rather than a stale local one.
func (m *Miner) Sync(ctx context.Context) error {
	return syncLedger(ctx, m.dial, m.beaconAddr, m.ledger)
}

// Register announces this miner's own endpoint to the Beacon's
// active-servers table.
func (m *Miner) Register(ctx context.Context) error {
	return registerSelf(ctx, m.dial, m.beaconAddr, m.selfHost, m.selfPort)
}

// currentStatus reports this miner's own (synced) chain state, the same
// fields Beacon.currentStatus reports for the canonical one.
func (m *Miner) currentStatus() statusPayload {
	slot := m.scheduler.Clock().CurrentSlot(time.Now().Unix())
	return statusPayload{
		Slot:          slot,
		Epoch:         m.scheduler.Clock().CurrentEpoch(slot),
		NextBlockID:   m.ledger.NextBlockID(),
		CheckpointIDs: m.ledger.ArchiveFileIDs(),
	}
}

func (m *Miner) CurrentSlot() uint64     { return m.currentStatus().Slot }
func (m *Miner) CurrentEpoch() uint64    { return m.currentStatus().Epoch }
func (m *Miner) NextBlockID() uint64     { return m.currentStatus().NextBlockID }
func (m *Miner) CheckpointIDs() []uint32 { return m.currentStatus().CheckpointIDs }

// Handlers returns the request table a miner serves on its own Service:
// every read operation plus tx.add, so clients may submit transactions
// directly to a miner to have them considered for its next produced block.
// It excludes block.add and register, which only the Beacon accepts.
func (m *Miner) Handlers() map[uint16]netio.HandlerFunc {
	return map[uint16]netio.HandlerFunc{
		netio.ReqStatus:               statusHandler(m.currentStatus),
		netio.ReqBlockGet:             blockGetHandler(m.ledger),
		netio.ReqAccountGet:           accountGetHandler(m.ledger),
		netio.ReqTxAdd:                txAddHandler(m.ledger),
		netio.ReqTxGetByWallet:        txGetByWalletHandler(m.ledger),
		netio.ReqStakeholderList:      stakeholderListHandler(m.scheduler),
		netio.ReqConsensusCurrentSlot: consensusCurrentSlotHandler(m.scheduler),
	}
}

// slotNonDecreasingValidator enforces the chain-level invariant that a new
// block's slot never precedes its predecessor's.
func slotNonDecreasingValidator(candidate *core.Block, chain core.ChainReader) error {
	if latest := chain.Latest(); latest != nil && candidate.Slot < latest.Slot {
		return errs.ValidationError("block slot precedes the chain tip's slot")
	}
	return nil
}

// Tick runs one production attempt: if currentSlot has already been handled,
// or this miner is not the elected leader, or there is nothing pending, it
// is a no-op. Otherwise it commits a block and broadcasts it to the Beacon.
func (m *Miner) Tick(ctx context.Context) error {
	now := time.Now().Unix()
	slot := m.scheduler.Clock().CurrentSlot(now)

	m.mu.Lock()
	alreadyDone := m.haveProduced && slot <= m.lastProducedSlot
	m.mu.Unlock()
	if alreadyDone {
		return nil
	}
	if !m.scheduler.ShouldProduce(slot, m.selfID) {
		return nil
	}
	if m.ledger.PendingCount() == 0 {
		return nil
	}

	blk, err := m.ledger.Commit(slot, m.selfID, slotNonDecreasingValidator)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.lastProducedSlot = slot
	m.haveProduced = true
	m.mu.Unlock()
	if err := m.saveState(slot); err != nil {
		m.log.WithError(err).Warn("miner: failed to persist lastProducedSlot")
	}

	resp, err := broadcastBlock(ctx, m.dial, m.beaconAddr, blk)
	if err != nil {
		m.log.WithError(err).Warn("miner: failed to broadcast produced block")
		return nil
	}
	if resp.ErrorCode != 0 {
		m.log.WithFields(logrus.Fields{"errorCode": resp.ErrorCode}).Warn("miner: beacon rejected produced block")
	}
	return nil
}

// Run drives the tick loop until Stop is called or ctx is done: each tick
// resyncs from the Beacon, periodically refreshes the stakeholder list and
// re-registers this miner's endpoint, then attempts production.
func (m *Miner) Run(ctx context.Context, tick time.Duration, refreshEvery int) {
	if err := m.Register(ctx); err != nil {
		m.log.WithError(err).Warn("miner: initial register failed")
	}
	if err := m.RefreshStakeholders(ctx); err != nil {
		m.log.WithError(err).Warn("miner: initial stakeholder refresh failed")
	}
	if err := m.Sync(ctx); err != nil {
		m.log.WithError(err).Warn("miner: initial sync failed")
	}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	count := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			if count%refreshEvery == 0 {
				if err := m.RefreshStakeholders(ctx); err != nil {
					m.log.WithError(err).Warn("miner: failed to refresh stakeholders")
				}
				if err := m.Register(ctx); err != nil {
					m.log.WithError(err).Warn("miner: failed to re-register")
				}
			}
			count++
			if err := m.Sync(ctx); err != nil {
				m.log.WithError(err).Warn("miner: sync failed")
			}
			if err := m.Tick(ctx); err != nil {
				m.log.WithError(err).Warn("miner: tick failed")
			}
		}
	}
}

// Stop ends Run.
func (m *Miner) Stop() { m.stopOnce.Do(func() { close(m.stop) }) }
