package roles

import (
	"context"
	"testing"

	"synnergy-ledger/core"
	"synnergy-ledger/internal/netio"
)

func TestMinerRefreshStakeholdersPopulatesScheduler(t *testing.T) {
	addr := fakeBeacon(t, func(reqType uint16, payload []byte) (uint16, []byte) {
		if reqType != netio.ReqStakeholderList {
			return 1, nil
		}
		return 0, encodeStakeholders([]core.Stakeholder{{ID: "m1", Host: "h", Port: 1, Stake: 5}})
	})

	scheduler := newTestScheduler(nil)
	m, err := NewMiner(newTestLedger(t), scheduler, "m1", "127.0.0.1", 19001, addr, testDial, t.TempDir(), testWriter(t))
	if err != nil {
		t.Fatalf("NewMiner: %v", err)
	}
	if err := m.RefreshStakeholders(context.Background()); err != nil {
		t.Fatalf("RefreshStakeholders: %v", err)
	}
	if scheduler.TotalStake() != 5 {
		t.Fatalf("totalStake=%d want 5", scheduler.TotalStake())
	}
}

func TestMinerTickProducesAndBroadcastsBlock(t *testing.T) {
	var broadcasted bool
	addr := fakeBeacon(t, func(reqType uint16, payload []byte) (uint16, []byte) {
		if reqType == netio.ReqBlockAdd {
			broadcasted = true
		}
		return 0, nil
	})

	ledger := newTestLedger(t)
	ledger.SeedWallet(1, 100)
	if err := ledger.AddTransaction(sampleTx(1, 2, 10)); err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}
	scheduler := newTestScheduler(map[string]uint64{"m1": 1})

	workDir := t.TempDir()
	m, err := NewMiner(ledger, scheduler, "m1", "127.0.0.1", 19001, addr, testDial, workDir, testWriter(t))
	if err != nil {
		t.Fatalf("NewMiner: %v", err)
	}
	if err := m.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if ledger.Chain().Size() != 1 {
		t.Fatalf("expected one committed block, chain size=%d", ledger.Chain().Size())
	}
	if !broadcasted {
		t.Fatalf("expected the produced block to be broadcast")
	}

	// A second Tick within the same slot must not double-produce.
	ledger.AddTransaction(sampleTx(1, 2, 5))
	if err := m.Tick(context.Background()); err != nil {
		t.Fatalf("second Tick: %v", err)
	}
	if ledger.Chain().Size() != 1 {
		t.Fatalf("expected no second block within the same slot, chain size=%d", ledger.Chain().Size())
	}

	// Reopening a Miner over the same work-dir must restore lastProducedSlot.
	m2, err := NewMiner(ledger, scheduler, "m1", "127.0.0.1", 19001, addr, testDial, workDir, testWriter(t))
	if err != nil {
		t.Fatalf("NewMiner (reopen): %v", err)
	}
	if err := m2.Tick(context.Background()); err != nil {
		t.Fatalf("Tick after reopen: %v", err)
	}
	if ledger.Chain().Size() != 1 {
		t.Fatalf("reopened miner must not re-produce for an already-handled slot")
	}
}

// TestMinerTickTiersCommittedBlocks drives tiering through the real
// production path (Miner.Tick -> Ledger.Commit) instead of calling
// Ledger.TierIfNeeded directly, covering the wiring a review previously
// found missing: a tightly capped active store must shed the committed
// block to archive as soon as Tick commits it.
func TestMinerTickTiersCommittedBlocks(t *testing.T) {
	addr := fakeBeacon(t, func(reqType uint16, payload []byte) (uint16, []byte) {
		return 0, nil
	})

	ledger := newTieringTestLedger(t)
	ledger.SeedWallet(1, 100)
	if err := ledger.AddTransaction(sampleTx(1, 2, 10)); err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}
	scheduler := newTestScheduler(map[string]uint64{"m1": 1})

	m, err := NewMiner(ledger, scheduler, "m1", "127.0.0.1", 19001, addr, testDial, t.TempDir(), testWriter(t))
	if err != nil {
		t.Fatalf("NewMiner: %v", err)
	}
	if err := m.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if len(ledger.ArchiveFileIDs()) == 0 {
		t.Fatalf("expected Tick's commit to tier the oversized active segment to archive")
	}
	blk, err := ledger.ReadBlock(0)
	if err != nil {
		t.Fatalf("ReadBlock(0) after tiering: %v", err)
	}
	if blk.Index != 0 {
		t.Fatalf("tiered block index=%d want 0", blk.Index)
	}
}

func TestMinerRegisterAnnouncesEndpoint(t *testing.T) {
	var gotHost string
	var gotPort uint16
	addr := fakeBeacon(t, func(reqType uint16, payload []byte) (uint16, []byte) {
		if reqType != netio.ReqRegister {
			return 1, nil
		}
		ep, err := decodeEndpoint(payload)
		if err != nil {
			return 1, nil
		}
		gotHost, gotPort = ep.Host, ep.Port
		return 0, nil
	})

	m, err := NewMiner(newTestLedger(t), newTestScheduler(nil), "m1", "127.0.0.1", 19001, addr, testDial, t.TempDir(), testWriter(t))
	if err != nil {
		t.Fatalf("NewMiner: %v", err)
	}
	if err := m.Register(context.Background()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if gotHost != "127.0.0.1" || gotPort != 19001 {
		t.Fatalf("beacon saw endpoint %s:%d, want 127.0.0.1:19001", gotHost, gotPort)
	}
}

func TestMinerSyncMirrorsBeaconChain(t *testing.T) {
	beaconLedger := newTestLedger(t)
	beaconLedger.SeedWallet(1, 100)
	beaconLedger.AddTransaction(sampleTx(1, 2, 10))
	beaconLedger.Commit(1, "other", nil)

	addr := fakeBeacon(t, func(reqType uint16, payload []byte) (uint16, []byte) {
		switch reqType {
		case netio.ReqStatus:
			return 0, encodeStatus(1, 0, beaconLedger.Chain().Size(), nil)
		case netio.ReqBlockGet:
			id, _ := decodeU64(payload)
			blk, err := beaconLedger.ReadBlock(id)
			if err != nil {
				return 2, nil
			}
			raw, _ := core.Encode(blk)
			return 0, raw
		default:
			return 1, nil
		}
	})

	m, err := NewMiner(newTestLedger(t), newTestScheduler(nil), "m1", "127.0.0.1", 19001, addr, testDial, t.TempDir(), testWriter(t))
	if err != nil {
		t.Fatalf("NewMiner: %v", err)
	}
	if err := m.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if m.NextBlockID() != 1 {
		t.Fatalf("nextBlockId=%d want 1", m.NextBlockID())
	}
}

func TestMinerTickSkipsWhenBufferEmpty(t *testing.T) {
	ledger := newTestLedger(t)
	scheduler := newTestScheduler(map[string]uint64{"m1": 1})
	m, err := NewMiner(ledger, scheduler, "m1", "127.0.0.1", 19001, "127.0.0.1:1", testDial, t.TempDir(), testWriter(t))
	if err != nil {
		t.Fatalf("NewMiner: %v", err)
	}
	if err := m.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if ledger.Chain().Size() != 0 {
		t.Fatalf("expected no block without pending transactions")
	}
}
