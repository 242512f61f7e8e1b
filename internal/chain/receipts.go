package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/surprise-envelope/backend/internal/claimlink"
	"go.uber.org/zap"
)

type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// ReceiptPoller waits for receipts by polling eth_getTransactionReceipt.
// A wait never lasts longer than timeout.
type ReceiptPoller struct {
	reader   ReceiptReader
	interval time.Duration
	timeout  time.Duration
	log      *zap.Logger
}

const defaultReceiptPollInterval = time.Second

func NewReceiptPoller(reader ReceiptReader, interval, timeout time.Duration, log *zap.Logger) *ReceiptPoller {
	if interval <= 0 {
		interval = defaultReceiptPollInterval
	}
	return &ReceiptPoller{reader: reader, interval: interval, timeout: timeout, log: log}
}

func (p *ReceiptPoller) WaitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		receipt, err := p.reader.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) && ctx.Err() == nil {
			// RPC hiccup; keep polling until the deadline
			p.log.Warn("receipt query failed", zap.String("tx_hash", txHash.Hex()), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s after %s", claimlink.ErrWaitTimeout, txHash.Hex(), p.timeout)
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
