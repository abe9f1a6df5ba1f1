package roles

import (
	"time"

	"synnergy-ledger/core"
	"synnergy-ledger/internal/netio"
)

// maxWalletTxResults bounds how far back tx.getByWallet scans the chain, so
// one request cannot force the worker thread to walk an unbounded history.
const maxWalletTxResults = 256

// statusHandler builds the `status` handler from a
// closure supplying the four fields; Beacon and Relay each supply their own
// closure, and both report their ledger's archive file ids as checkpointIds.
func statusHandler(fn func() statusPayload) netio.HandlerFunc {
	return func(payload []byte) ([]byte, error) {
		sp := fn()
		return encodeStatus(sp.Slot, sp.Epoch, sp.NextBlockID, sp.CheckpointIDs), nil
	}
}

// blockGetHandler serves `block.get` (code 2): a u64 block id in, the
// encoded Block out.
func blockGetHandler(ledger *core.Ledger) netio.HandlerFunc {
	return func(payload []byte) ([]byte, error) {
		id, err := decodeU64(payload)
		if err != nil {
			return nil, err
		}
		blk, err := ledger.ReadBlock(id)
		if err != nil {
			return nil, err
		}
		return core.Encode(blk)
	}
}

// blockAddHandler serves `block.add` (code 3): an encoded Block in, ingested
// with strict chain-tip validation.
func blockAddHandler(ledger *core.Ledger) netio.HandlerFunc {
	return func(payload []byte) ([]byte, error) {
		var blk core.Block
		if err := core.Decode(payload, &blk); err != nil {
			return nil, err
		}
		if err := ledger.AddBlock(&blk, true); err != nil {
			return nil, err
		}
		return nil, nil
	}
}

// accountGetHandler serves `account.get` (code 4): a u64 wallet id in, the
// encoded Wallet out.
func accountGetHandler(ledger *core.Ledger) netio.HandlerFunc {
	return func(payload []byte) ([]byte, error) {
		id, err := decodeU64(payload)
		if err != nil {
			return nil, err
		}
		return encodeWallet(ledger.Wallet(id)), nil
	}
}

// txAddHandler serves `tx.add` (code 5): an encoded SignedTx in, applied to
// the ledger's wallet table and pending buffer.
func txAddHandler(ledger *core.Ledger) netio.HandlerFunc {
	return func(payload []byte) ([]byte, error) {
		var stx core.SignedTx
		if err := core.Decode(payload, &stx); err != nil {
			return nil, err
		}
		if err := ledger.AddTransaction(stx); err != nil {
			return nil, err
		}
		return nil, nil
	}
}

// txGetByWalletHandler serves `tx.getByWallet` (code 6): walks backward from
// beforeBlockId collecting every SignedTx that touches walletId as sender or
// recipient, bounded by maxWalletTxResults. beforeBlockId is a global,
// stable block id (Block.Index), not a position in the in-memory chain, so
// blocks are fetched through Ledger.ReadBlock — which checks both the active
// and archive stores by id — rather than Chain.Get, whose slice positions
// shift once tiering trims blocks off the front.
func txGetByWalletHandler(ledger *core.Ledger) netio.HandlerFunc {
	return func(payload []byte) ([]byte, error) {
		q, err := decodeWalletQuery(payload)
		if err != nil {
			return nil, err
		}
		upper := q.BeforeBlockID
		if total := ledger.NextBlockID(); upper > total {
			upper = total
		}
		var matched []core.SignedTx
		for i := upper; i > 0 && len(matched) < maxWalletTxResults; i-- {
			blk, err := ledger.ReadBlock(i - 1)
			if err != nil {
				continue
			}
			for _, stx := range blk.SignedTxes {
				if stx.Tx.FromWalletID == q.WalletID || stx.Tx.ToWalletID == q.WalletID {
					matched = append(matched, stx)
					if len(matched) >= maxWalletTxResults {
						break
					}
				}
			}
		}
		return encodeSignedTxes(matched), nil
	}
}

// stakeholderListHandler serves `stakeholder.list` (code 8).
func stakeholderListHandler(scheduler *core.Scheduler) netio.HandlerFunc {
	return func(payload []byte) ([]byte, error) {
		return encodeStakeholders(scheduler.Stakeholders()), nil
	}
}

// consensusCurrentSlotHandler serves `consensus.currentSlot` (code 9).
//
// The wire table stabilizes only codes 1-9; the prose in §4.8
// also mentions consensus.currentEpoch/slotLeader and
// stakeholder.add/remove/updateStake, but those have no assigned code in
// the required set and remain construction/admin-time operations on
// core.Scheduler rather than wire-exposed handlers.
func consensusCurrentSlotHandler(scheduler *core.Scheduler) netio.HandlerFunc {
	return func(payload []byte) ([]byte, error) {
		slot := scheduler.Clock().CurrentSlot(time.Now().Unix())
		return encodeU64(slot), nil
	}
}
