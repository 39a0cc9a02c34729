package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/layer-3/agora/core"
	"github.com/layer-3/agora/ports"
)

type receiptReader interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// waitMined polls for the receipt of hash until it exists or ctx is done.
func waitMined(ctx context.Context, r receiptReader, hash common.Hash, interval time.Duration) (*ports.MinedTx, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := r.TransactionReceipt(ctx, hash)
		if err == nil {
			return &ports.MinedTx{
				Hash:        hash,
				BlockNumber: receipt.BlockNumber,
				Success:     receipt.Status == types.ReceiptStatusSuccessful,
			}, nil
		}
		switch {
		case core.IsTimeout(ctx, err):
			return nil, fmt.Errorf("%w: receipt %s not available", core.ErrTimeout, hash.Hex())
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case !errors.Is(err, ethereum.NotFound):
			return nil, fmt.Errorf("failed to fetch receipt %s: %w", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: receipt %s not available", core.ErrTimeout, hash.Hex())
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
