// beacon.go implements the Beacon role: the authoritative source of truth,
// exposing all nine stable request types and maintaining the
// active-servers table of everyone who has `register`ed.
package roles

import (
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"synnergy-ledger/core"
	"synnergy-ledger/internal/netio"
)

// activeServer is one entry in Beacon's active-servers table.
type activeServer struct {
	host     string
	port     uint16
	lastSeen time.Time
}

// Beacon is the authoritative role: it owns the canonical Ledger and
// Scheduler and answers every request type in the stable wire set.
type Beacon struct {
	log       *logrus.Logger
	ledger    *core.Ledger
	scheduler *core.Scheduler

	registerTTL time.Duration
	mu          sync.Mutex
	servers     map[string]*activeServer
}

// NewBeacon creates a Beacon over an already-opened Ledger and Scheduler.
// registerTTL is how long a `register`ed server is kept in the active-
// servers table without a fresh announcement before SweepStale evicts it.
func NewBeacon(ledger *core.Ledger, scheduler *core.Scheduler, registerTTL time.Duration, log *logrus.Logger) *Beacon {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Beacon{
		log:         log,
		ledger:      ledger,
		scheduler:   scheduler,
		registerTTL: registerTTL,
		servers:     make(map[string]*activeServer),
	}
}

// Register records (or refreshes) addr's announcement in the active-servers
// table (the `register` request).
func (b *Beacon) Register(addr, host string, port uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.servers[addr] = &activeServer{host: host, port: port, lastSeen: time.Now()}
}

// SweepStale evicts every active-server entry whose lastSeen is older than
// registerTTL. Intended to be called periodically from a tick thread.
func (b *Beacon) SweepStale(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	evicted := 0
	for addr, s := range b.servers {
		if now.Sub(s.lastSeen) > b.registerTTL {
			delete(b.servers, addr)
			evicted++
		}
	}
	return evicted
}

// ActiveServerCount reports how many servers are currently registered.
func (b *Beacon) ActiveServerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.servers)
}

// currentStatus computes the status payload.
func (b *Beacon) currentStatus() statusPayload {
	slot := b.scheduler.Clock().CurrentSlot(time.Now().Unix())
	return statusPayload{
		Slot:          slot,
		Epoch:         b.scheduler.Clock().CurrentEpoch(slot),
		NextBlockID:   b.ledger.NextBlockID(),
		CheckpointIDs: b.ledger.ArchiveFileIDs(),
	}
}

// CurrentSlot, CurrentEpoch, NextBlockID, CheckpointIDs implement
// internal/diag.StatusProvider, giving the HTTP /status probe the same
// numbers the wire `status` handler reports.
func (b *Beacon) CurrentSlot() uint64     { return b.currentStatus().Slot }
func (b *Beacon) CurrentEpoch() uint64    { return b.currentStatus().Epoch }
func (b *Beacon) NextBlockID() uint64     { return b.currentStatus().NextBlockID }
func (b *Beacon) CheckpointIDs() []uint32 { return b.currentStatus().CheckpointIDs }

// registerHandler serves `register` (code 7): the connection's remote
// address is not available at the handler layer (handlers are pure
// functions of payload), so the endpoint announced in the payload itself
// is used as both the table key and the recorded address.
func (b *Beacon) registerHandler() netio.HandlerFunc {
	return func(payload []byte) ([]byte, error) {
		ep, err := decodeEndpoint(payload)
		if err != nil {
			return nil, err
		}
		addr := ep.Host + ":" + portString(ep.Port)
		b.Register(addr, ep.Host, ep.Port)
		return nil, nil
	}
}

func portString(p uint16) string { return strconv.Itoa(int(p)) }

// Handlers returns the full static type->handler table for all nine stable
// request types, ready to Register on a Service.
func (b *Beacon) Handlers() map[uint16]netio.HandlerFunc {
	return map[uint16]netio.HandlerFunc{
		netio.ReqStatus:               statusHandler(b.currentStatus),
		netio.ReqBlockGet:             blockGetHandler(b.ledger),
		netio.ReqBlockAdd:             blockAddHandler(b.ledger),
		netio.ReqAccountGet:           accountGetHandler(b.ledger),
		netio.ReqTxAdd:                txAddHandler(b.ledger),
		netio.ReqTxGetByWallet:        txGetByWalletHandler(b.ledger),
		netio.ReqRegister:             b.registerHandler(),
		netio.ReqStakeholderList:      stakeholderListHandler(b.scheduler),
		netio.ReqConsensusCurrentSlot: consensusCurrentSlotHandler(b.scheduler),
	}
}
