package core

import (
	"math"
	"testing"

	"synnergy-ledger/pkg/errs"
)

func TestWalletTableTransferMovesBalance(t *testing.T) {
	wt := NewWalletTable()
	wt.SetBalance(1, 100)

	if err := wt.Transfer(1, 2, 40); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if got := wt.Get(1).Balance; got != 60 {
		t.Fatalf("sender balance=%d want 60", got)
	}
	if got := wt.Get(2).Balance; got != 40 {
		t.Fatalf("recipient balance=%d want 40", got)
	}
}

func TestWalletTableTransferRejectsInsufficientBalance(t *testing.T) {
	wt := NewWalletTable()
	wt.SetBalance(1, 10)

	if err := wt.Transfer(1, 2, 20); err == nil {
		t.Fatalf("expected insufficient balance rejection")
	}
	if got := wt.Get(1).Balance; got != 10 {
		t.Fatalf("sender balance must be unchanged on rejection, got %d", got)
	}
	if got := wt.Get(2).Balance; got != 0 {
		t.Fatalf("recipient balance must be unchanged on rejection, got %d", got)
	}
}

func TestWalletTableTransferRejectsNegativeAmount(t *testing.T) {
	wt := NewWalletTable()
	wt.SetBalance(1, 10)

	if err := wt.Transfer(1, 2, -5); err == nil {
		t.Fatalf("expected negative amount rejection")
	}
}

// TestWalletTableTransferRejectsRecipientOverflow covers the i64 overflow
// invariant: a transfer that would push the recipient's balance past
// math.MaxInt64 must be rejected, leaving both wallets untouched.
func TestWalletTableTransferRejectsRecipientOverflow(t *testing.T) {
	wt := NewWalletTable()
	wt.SetBalance(1, 100)
	wt.SetBalance(2, math.MaxInt64-50)

	err := wt.Transfer(1, 2, 100)
	if err == nil {
		t.Fatalf("expected recipient overflow rejection")
	}
	if errs.KindOf(err) != errs.Validation {
		t.Fatalf("expected a Validation error kind")
	}
	if got := wt.Get(1).Balance; got != 100 {
		t.Fatalf("sender balance must be unchanged on rejection, got %d", got)
	}
	if got := wt.Get(2).Balance; got != math.MaxInt64-50 {
		t.Fatalf("recipient balance must be unchanged on rejection, got %d", got)
	}
}

// TestWalletTableTransferRejectsSelfTransfer guards against the
// from==to money-creation bug: ensureLocked returns the same *Wallet for
// both sides, so computing both new balances first and then assigning both
// leaves the credited value in place, a free balance increase instead of a
// no-op. Transfer must reject it outright.
func TestWalletTableTransferRejectsSelfTransfer(t *testing.T) {
	wt := NewWalletTable()
	wt.SetBalance(1, 100)

	if err := wt.Transfer(1, 1, 50); err == nil {
		t.Fatalf("expected self-transfer rejection")
	}
	if got := wt.Get(1).Balance; got != 100 {
		t.Fatalf("self-transfer must not mutate balance, got %d, want 100 (unchanged)", got)
	}
}

// TestWalletTableApplySelfReplayNetsToZero documents that Apply (the
// unconditional replay path used by Ledger.AddBlock) is safe for from==to
// even though Transfer rejects it: Apply's two independent read-modify-write
// statements on the same wallet net to zero, unlike Transfer's
// compute-both-then-assign-both sequencing.
func TestWalletTableApplySelfReplayNetsToZero(t *testing.T) {
	wt := NewWalletTable()
	wt.SetBalance(1, 100)

	wt.Apply(1, 1, 50)

	if got := wt.Get(1).Balance; got != 100 {
		t.Fatalf("self-replay via Apply must net to zero, balance=%d want 100", got)
	}
}

func TestWalletTableGetUnknownWalletIsZeroBalance(t *testing.T) {
	wt := NewWalletTable()
	if got := wt.Get(99); got.Balance != 0 || got.ID != 99 {
		t.Fatalf("unknown wallet = %+v, want zero-balance wallet with id 99", got)
	}
}
