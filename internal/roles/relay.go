// relay.go implements the Relay role: mirrors the Beacon's chain by
// pulling blocks from its own nextBlockId up to the Beacon's nextBlockId,
// at startup and periodically, and serves read requests without producing.
package roles

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"synnergy-ledger/core"
	"synnergy-ledger/internal/netio"
)

// Relay mirrors a Beacon's chain into its own Ledger and answers read-only
// wire requests from it, without ever producing a block itself.
type Relay struct {
	log       *logrus.Logger
	ledger    *core.Ledger
	scheduler *core.Scheduler
	selfHost  string
	selfPort  uint16

	beaconAddr string
	dial       netio.Dial

	backoffBase time.Duration
	backoffMax  time.Duration // capped at one slot duration

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRelay creates a Relay over an already-opened Ledger and Scheduler.
// selfHost/selfPort are the endpoint this relay's own Service listens on,
// announced to the Beacon via Register.
func NewRelay(ledger *core.Ledger, scheduler *core.Scheduler, selfHost string, selfPort uint16, beaconAddr string, dial netio.Dial, backoffBase, slotDuration time.Duration, log *logrus.Logger) *Relay {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Relay{
		log:         log,
		ledger:      ledger,
		scheduler:   scheduler,
		selfHost:    selfHost,
		selfPort:    selfPort,
		beaconAddr:  beaconAddr,
		dial:        dial,
		backoffBase: backoffBase,
		backoffMax:  slotDuration,
		stop:        make(chan struct{}),
	}
}

// Register announces this relay's own endpoint to the Beacon's
// active-servers table.
func (r *Relay) Register(ctx context.Context) error {
	return registerSelf(ctx, r.dial, r.beaconAddr, r.selfHost, r.selfPort)
}

// RefreshStakeholders mirrors Miner's: pulls the Beacon's stakeholder list
// and adds or updates each entry in the local scheduler's registry (entries
// missing from the list are kept), so Relay's
// stakeholder.list/consensus.currentSlot answers stay current.
func (r *Relay) RefreshStakeholders(ctx context.Context) error {
	list, err := fetchStakeholders(ctx, r.dial, r.beaconAddr)
	if err != nil {
		return err
	}
	for _, st := range list {
		r.scheduler.AddStakeholder(st)
	}
	return nil
}

// Sync pulls every block from this relay's ledger NextBlockID up to the
// Beacon's reported nextBlockId, applying each with strict chain-tip
// validation.
func (r *Relay) Sync(ctx context.Context) error {
	return syncLedger(ctx, r.dial, r.beaconAddr, r.ledger)
}

// Run drives the periodic sync loop until Stop is called or ctx is done,
// backing off with doubling on repeated Sync failures, capped at
// backoffMax (one slot duration).
func (r *Relay) Run(ctx context.Context, interval time.Duration, refreshEvery int) {
	if err := r.Register(ctx); err != nil {
		r.log.WithError(err).Warn("relay: initial register failed")
	}
	if err := r.RefreshStakeholders(ctx); err != nil {
		r.log.WithError(err).Warn("relay: initial stakeholder refresh failed")
	}
	if err := r.Sync(ctx); err != nil {
		r.log.WithError(err).Warn("relay: initial sync failed")
	}

	wait := r.backoffBase
	count := 0
	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-timer.C:
			if count%refreshEvery == 0 {
				if err := r.RefreshStakeholders(ctx); err != nil {
					r.log.WithError(err).Warn("relay: failed to refresh stakeholders")
				}
				if err := r.Register(ctx); err != nil {
					r.log.WithError(err).Warn("relay: failed to re-register")
				}
			}
			count++

			if err := r.Sync(ctx); err != nil {
				r.log.WithError(err).Warn("relay: sync failed, backing off")
				timer.Reset(wait)
				wait *= 2
				if wait > r.backoffMax {
					wait = r.backoffMax
				}
				continue
			}
			wait = r.backoffBase
			timer.Reset(interval)
		}
	}
}

// Stop ends Run.
func (r *Relay) Stop() { r.stopOnce.Do(func() { close(r.stop) }) }

// currentStatus mirrors Beacon.currentStatus for Relay's own, independently
// tiered Ledger.
func (r *Relay) currentStatus() statusPayload {
	slot := r.scheduler.Clock().CurrentSlot(time.Now().Unix())
	return statusPayload{
		Slot:          slot,
		Epoch:         r.scheduler.Clock().CurrentEpoch(slot),
		NextBlockID:   r.ledger.NextBlockID(),
		CheckpointIDs: r.ledger.ArchiveFileIDs(),
	}
}

func (r *Relay) CurrentSlot() uint64     { return r.currentStatus().Slot }
func (r *Relay) CurrentEpoch() uint64    { return r.currentStatus().Epoch }
func (r *Relay) NextBlockID() uint64     { return r.currentStatus().NextBlockID }
func (r *Relay) CheckpointIDs() []uint32 { return r.currentStatus().CheckpointIDs }

// Handlers returns the read-only subset of the stable request table: every
// lookup a client or relay-of-relays might need, but no block.add, tx.add,
// or register.
func (r *Relay) Handlers() map[uint16]netio.HandlerFunc {
	return map[uint16]netio.HandlerFunc{
		netio.ReqStatus:               statusHandler(r.currentStatus),
		netio.ReqBlockGet:             blockGetHandler(r.ledger),
		netio.ReqAccountGet:           accountGetHandler(r.ledger),
		netio.ReqTxGetByWallet:        txGetByWalletHandler(r.ledger),
		netio.ReqStakeholderList:      stakeholderListHandler(r.scheduler),
		netio.ReqConsensusCurrentSlot: consensusCurrentSlotHandler(r.scheduler),
	}
}
