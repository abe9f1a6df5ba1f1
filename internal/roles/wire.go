// Package roles implements the three deployable roles — Beacon, Miner,
// Relay — as glue over core.Ledger, core.Scheduler, and the internal/netio
// request pipeline. wire.go holds the payload encode/decode helpers for
// the nine stable request types, built on the same Writer/Reader
// convention as core/codec.go rather than JSON, since these payloads
// travel the same wire as Block/SignedTx.
package roles

import (
	"synnergy-ledger/core"
	"synnergy-ledger/pkg/errs"
)

func encodeStatus(slot, epoch, nextBlockID uint64, checkpointIDs []uint32) []byte {
	w := core.NewWriter()
	w.WriteU64(slot)
	w.WriteU64(epoch)
	w.WriteU64(nextBlockID)
	core.WriteContainer(w, checkpointIDs, func(w *core.Writer, v uint32) { w.WriteU32(v) })
	return w.Bytes()
}

type statusPayload struct {
	Slot          uint64
	Epoch         uint64
	NextBlockID   uint64
	CheckpointIDs []uint32
}

func decodeStatus(payload []byte) (statusPayload, error) {
	r := core.NewReader(payload)
	var sp statusPayload
	var err error
	if sp.Slot, err = r.ReadU64(); err != nil {
		return sp, err
	}
	if sp.Epoch, err = r.ReadU64(); err != nil {
		return sp, err
	}
	if sp.NextBlockID, err = r.ReadU64(); err != nil {
		return sp, err
	}
	sp.CheckpointIDs, err = core.ReadContainer(r, func(r *core.Reader) (uint32, error) { return r.ReadU32() })
	return sp, err
}

func encodeU64(v uint64) []byte {
	w := core.NewWriter()
	w.WriteU64(v)
	return w.Bytes()
}

func decodeU64(payload []byte) (uint64, error) {
	r := core.NewReader(payload)
	return r.ReadU64()
}

func encodeWallet(w core.Wallet) []byte {
	wr := core.NewWriter()
	wr.WriteU64(w.ID)
	wr.WriteI64(w.Balance)
	return wr.Bytes()
}

func decodeWallet(payload []byte) (core.Wallet, error) {
	r := core.NewReader(payload)
	var w core.Wallet
	var err error
	if w.ID, err = r.ReadU64(); err != nil {
		return w, err
	}
	bal, err := r.ReadI64()
	w.Balance = bal
	return w, err
}

func encodeEndpoint(host string, port uint16) []byte {
	w := core.NewWriter()
	w.WriteString(host)
	w.WriteU16(port)
	return w.Bytes()
}

type endpoint struct {
	Host string
	Port uint16
}

func decodeEndpoint(payload []byte) (endpoint, error) {
	r := core.NewReader(payload)
	var ep endpoint
	var err error
	if ep.Host, err = r.ReadString(); err != nil {
		return ep, err
	}
	ep.Port, err = r.ReadU16()
	return ep, err
}

type walletQuery struct {
	WalletID      uint64
	BeforeBlockID uint64
}

func encodeWalletQuery(q walletQuery) []byte {
	w := core.NewWriter()
	w.WriteU64(q.WalletID)
	w.WriteU64(q.BeforeBlockID)
	return w.Bytes()
}

func decodeWalletQuery(payload []byte) (walletQuery, error) {
	r := core.NewReader(payload)
	var q walletQuery
	var err error
	if q.WalletID, err = r.ReadU64(); err != nil {
		return q, err
	}
	q.BeforeBlockID, err = r.ReadU64()
	return q, err
}

func encodeStakeholders(list []core.Stakeholder) []byte {
	w := core.NewWriter()
	core.WriteContainer(w, list, func(w *core.Writer, s core.Stakeholder) {
		w.WriteString(s.ID)
		w.WriteString(s.Host)
		w.WriteU16(s.Port)
		w.WriteU64(s.Stake)
	})
	return w.Bytes()
}

func decodeStakeholders(payload []byte) ([]core.Stakeholder, error) {
	r := core.NewReader(payload)
	return core.ReadContainer(r, func(r *core.Reader) (core.Stakeholder, error) {
		var s core.Stakeholder
		var err error
		if s.ID, err = r.ReadString(); err != nil {
			return s, err
		}
		if s.Host, err = r.ReadString(); err != nil {
			return s, err
		}
		if s.Port, err = r.ReadU16(); err != nil {
			return s, err
		}
		s.Stake, err = r.ReadU64()
		return s, err
	})
}

func encodeSignedTxes(txes []core.SignedTx) []byte { return core.EncodeTxes(txes) }

func decodeSignedTxes(payload []byte) ([]core.SignedTx, error) {
	txes, err := core.DecodeTxes(payload)
	if err != nil {
		return nil, errs.CodecErrorf(err, "decode signed tx list")
	}
	return txes, nil
}
