package roles

import (
	"context"
	"testing"
	"time"

	"synnergy-ledger/core"
	"synnergy-ledger/internal/netio"
)

func TestRelaySyncPullsBlocksFromBeacon(t *testing.T) {
	beaconLedger := newTestLedger(t)
	beaconLedger.SeedWallet(1, 100)
	beaconLedger.AddTransaction(sampleTx(1, 2, 10))
	beaconLedger.Commit(1, "m1", nil)
	beaconLedger.AddTransaction(sampleTx(1, 2, 5))
	beaconLedger.Commit(2, "m1", nil)

	addr := fakeBeacon(t, func(reqType uint16, payload []byte) (uint16, []byte) {
		switch reqType {
		case netio.ReqStatus:
			return 0, encodeStatus(2, 0, beaconLedger.Chain().Size(), nil)
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

	relayLedger := newTestLedger(t)
	relay := NewRelay(relayLedger, newTestScheduler(nil), "127.0.0.1", 19101, addr, testDial, time.Millisecond, time.Second, testWriter(t))

	if err := relay.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if relayLedger.Chain().Size() != 2 {
		t.Fatalf("relay chain size=%d want 2", relayLedger.Chain().Size())
	}
	if relayLedger.Wallet(2).Balance != 15 {
		t.Fatalf("mirrored wallet balance=%d want 15", relayLedger.Wallet(2).Balance)
	}
}

func TestRelayRegisterAnnouncesEndpoint(t *testing.T) {
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

	relay := NewRelay(newTestLedger(t), newTestScheduler(nil), "127.0.0.1", 19102, addr, testDial, time.Millisecond, time.Second, testWriter(t))
	if err := relay.Register(context.Background()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if gotHost != "127.0.0.1" || gotPort != 19102 {
		t.Fatalf("beacon saw endpoint %s:%d, want 127.0.0.1:19102", gotHost, gotPort)
	}
}

func TestRelayHandlersExcludeWriteOperations(t *testing.T) {
	relay := NewRelay(newTestLedger(t), newTestScheduler(nil), "127.0.0.1", 19102, "127.0.0.1:1", testDial, time.Millisecond, time.Second, testWriter(t))
	handlers := relay.Handlers()
	for _, writeType := range []uint16{netio.ReqBlockAdd, netio.ReqTxAdd, netio.ReqRegister} {
		if _, ok := handlers[writeType]; ok {
			t.Fatalf("relay must not register write handler %d", writeType)
		}
	}
	for _, readType := range []uint16{netio.ReqStatus, netio.ReqBlockGet, netio.ReqAccountGet, netio.ReqTxGetByWallet, netio.ReqStakeholderList, netio.ReqConsensusCurrentSlot} {
		if _, ok := handlers[readType]; !ok {
			t.Fatalf("relay missing read handler %d", readType)
		}
	}
}
