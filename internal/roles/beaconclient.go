// beaconclient.go collects the outbound wire calls Miner and Relay both make
// against a Beacon endpoint, so the request/response plumbing is written
// once.
package roles

import (
	"context"

	"synnergy-ledger/core"
	"synnergy-ledger/internal/netio"
	"synnergy-ledger/pkg/errs"
)

func fetchStakeholders(ctx context.Context, dial netio.Dial, addr string) ([]core.Stakeholder, error) {
	resp, err := netio.SendRequest(ctx, dial, addr, netio.ProtocolVersion, netio.ReqStakeholderList, nil)
	if err != nil {
		return nil, err
	}
	if resp.ErrorCode != 0 {
		return nil, errs.ProtocolError("beacon rejected stakeholder.list")
	}
	return decodeStakeholders(resp.Payload)
}

func fetchStatus(ctx context.Context, dial netio.Dial, addr string) (statusPayload, error) {
	resp, err := netio.SendRequest(ctx, dial, addr, netio.ProtocolVersion, netio.ReqStatus, nil)
	if err != nil {
		return statusPayload{}, err
	}
	if resp.ErrorCode != 0 {
		return statusPayload{}, errs.ProtocolError("beacon rejected status")
	}
	return decodeStatus(resp.Payload)
}

func fetchBlock(ctx context.Context, dial netio.Dial, addr string, id uint64) (*core.Block, error) {
	resp, err := netio.SendRequest(ctx, dial, addr, netio.ProtocolVersion, netio.ReqBlockGet, encodeU64(id))
	if err != nil {
		return nil, err
	}
	if resp.ErrorCode != 0 {
		return nil, errs.ProtocolError("beacon rejected block.get")
	}
	var blk core.Block
	if err := core.Decode(resp.Payload, &blk); err != nil {
		return nil, err
	}
	return &blk, nil
}

func broadcastBlock(ctx context.Context, dial netio.Dial, addr string, blk *core.Block) (netio.ResponseEnvelope, error) {
	encoded, err := core.Encode(blk)
	if err != nil {
		return netio.ResponseEnvelope{}, errs.CodecErrorf(err, "encode block")
	}
	return netio.SendRequest(ctx, dial, addr, netio.ProtocolVersion, netio.ReqBlockAdd, encoded)
}

// registerSelf announces (host, port) to the Beacon's active-servers table
// via the `register` request — called by Miner and Relay at startup and
// periodically so they don't age out of SweepStale.
func registerSelf(ctx context.Context, dial netio.Dial, addr, host string, port uint16) error {
	resp, err := netio.SendRequest(ctx, dial, addr, netio.ProtocolVersion, netio.ReqRegister, encodeEndpoint(host, port))
	if err != nil {
		return err
	}
	if resp.ErrorCode != 0 {
		return errs.ProtocolError("beacon rejected register")
	}
	return nil
}

// syncLedger pulls every block from ledger's own next block id up to the
// Beacon's reported nextBlockId, applying each with strict chain-tip
// validation. Shared by Relay.Sync and Miner.Sync — both mirror the
// Beacon's canonical chain before they can answer reads or, for Miner,
// extend it with a freshly produced block. NextBlockID (not Chain().Size())
// is used since the local chain may already have tiered blocks out to its
// own archive.
func syncLedger(ctx context.Context, dial netio.Dial, addr string, ledger *core.Ledger) error {
	beaconStatus, err := fetchStatus(ctx, dial, addr)
	if err != nil {
		return err
	}
	own := ledger.NextBlockID()
	for own < beaconStatus.NextBlockID {
		blk, err := fetchBlock(ctx, dial, addr, own)
		if err != nil {
			return err
		}
		if err := ledger.AddBlock(blk, true); err != nil {
			return err
		}
		own++
	}
	return nil
}
