package roles

import (
	"context"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"synnergy-ledger/core"
	"synnergy-ledger/internal/netio"
)

func testWriter(t *testing.T) *logrus.Logger {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestLedger(t *testing.T) *core.Ledger {
	t.Helper()
	dir := t.TempDir()
	cfg := core.LedgerConfig{
		ActiveDir:           filepath.Join(dir, "active"),
		ArchiveDir:          filepath.Join(dir, "archive"),
		ActiveFileCapacity:  1 << 20,
		ArchiveFileCapacity: 1 << 20,
		MaxActiveSize:       1 << 20,
	}
	l, err := core.NewLedger(cfg, testWriter(t))
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

// newTieringTestLedger returns a ledger configured so that a single
// committed block already exceeds MaxActiveSize, forcing Ledger.Commit's
// automatic tiering on (almost) every commit.
func newTieringTestLedger(t *testing.T) *core.Ledger {
	t.Helper()
	dir := t.TempDir()
	cfg := core.LedgerConfig{
		ActiveDir:           filepath.Join(dir, "active"),
		ArchiveDir:          filepath.Join(dir, "archive"),
		ActiveFileCapacity:  256,
		ArchiveFileCapacity: 1 << 20,
		MaxActiveSize:       1,
	}
	l, err := core.NewLedger(cfg, testWriter(t))
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func newTestScheduler(stake map[string]uint64) *core.Scheduler {
	s := core.NewScheduler(core.ClockConfig{GenesisTime: 0, SlotDuration: 5, SlotsPerEpoch: 432})
	for id, st := range stake {
		s.AddStakeholder(core.Stakeholder{ID: id, Host: "localhost", Port: 9000, Stake: st})
	}
	return s
}

func sampleTx(from, to uint64, amount int64) core.SignedTx {
	return core.SignedTx{Tx: core.Transaction{FromWalletID: from, ToWalletID: to, Amount: amount}}
}

// fakeBeacon spins up a plain net.Listener that speaks just enough of the
// wire protocol to answer one request per connection with a canned
// response, for exercising Miner/Relay's outbound client calls without a
// real Service.
func fakeBeacon(t *testing.T, handle func(reqType uint16, payload []byte) (uint16, []byte)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				raw, err := io.ReadAll(c)
				if err != nil {
					return
				}
				env, err := netio.DecodeRequest(raw)
				if err != nil {
					return
				}
				code, payload := handle(env.Type, env.Payload)
				c.Write(netio.EncodeResponse(netio.ProtocolVersion, code, payload))
			}(conn)
		}
	}()
	return ln.Addr().String()
}

func testDial(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	d.Timeout = 2 * time.Second
	return d.DialContext(ctx, "tcp", addr)
}
