package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/magicns/lightwallet/provider"
)

// Receipt is the final status of a write.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	Status      uint64
	GasUsed     uint64
}

// Succeeded reports whether the write was accepted by the registry. A
// submitted write may still have failed.
func (r *Receipt) Succeeded() bool {
	return r.Status == types.ReceiptStatusSuccessful
}

// Err returns ErrTransactionReverted for a failed write.
func (r *Receipt) Err() error {
	if r.Succeeded() {
		return nil
	}

	return fmt.Errorf("%w: tx %v in block %d", ErrTransactionReverted,
		r.TxHash, r.BlockNumber)
}

// WriteHandle refers to a submitted write. Its result is only trusted after
// Wait returns.
type WriteHandle struct {
	// Hash is the transaction hash returned on submission.
	Hash common.Hash

	// Method is the contract method that was called.
	Method string

	// Name is the registry name the write targets.
	Name string

	// SubmittedAt is when the wallet accepted the write.
	SubmittedAt time.Time

	gateway      *provider.Gateway
	pollInterval time.Duration
	newTicker    func(time.Duration) ticker.Ticker
}

// Wait polls for the receipt until the write is mined or ctx is done. There
// is no timeout of its own: a stalled chain blocks until the caller gives up.
func (h *WriteHandle) Wait(ctx context.Context) (*Receipt, error) {
	// Check once before waiting for the first tick.
	receipt, err := h.poll(ctx)
	if err != nil || receipt != nil {
		return receipt, err
	}

	t := h.newTicker(h.pollInterval)
	t.Resume()
	defer t.Stop()

	for {
		select {
		case <-t.Ticks():
			receipt, err := h.poll(ctx)
			if err != nil || receipt != nil {
				return receipt, err
			}

		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// poll fetches the receipt once. Lookup failures are treated as not mined
// yet, unless ctx is done.
func (h *WriteHandle) poll(ctx context.Context) (*Receipt, error) {
	raw, err := h.gateway.TransactionReceipt(ctx, h.Hash)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		log.Debugf("Receipt lookup for %v failed, retrying: %v",
			h.Hash, err)
		return nil, nil
	}
	if raw == nil {
		return nil, nil
	}

	receipt := &Receipt{
		TxHash:  h.Hash,
		Status:  raw.Status,
		GasUsed: raw.GasUsed,
	}
	if raw.BlockNumber != nil {
		receipt.BlockNumber = raw.BlockNumber.Uint64()
	}

	log.Infof("%s(%s) tx %v mined in block %d (status=%d)", h.Method,
		h.Name, h.Hash, receipt.BlockNumber, receipt.Status)

	return receipt, nil
}
