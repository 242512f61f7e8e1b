package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/surprise-envelope/backend/internal/claimlink"
	"go.uber.org/zap"
)

type LogFilterer interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// LogDepositFinder finds a transaction's DepositEvent by querying the vault's
// logs for the receipt's block and matching the transaction hash. Log queries
// read finalized state, so failed queries are retried.
type LogDepositFinder struct {
	logs     LogFilterer
	attempts int
	backoff  time.Duration
	log      *zap.Logger
}

func NewLogDepositFinder(logs LogFilterer, attempts int, backoff time.Duration, log *zap.Logger) *LogDepositFinder {
	if attempts < 1 {
		attempts = 1
	}
	return &LogDepositFinder{logs: logs, attempts: attempts, backoff: backoff, log: log}
}

func (f *LogDepositFinder) FindDepositEvent(ctx context.Context, vault common.Address, receipt *types.Receipt) (*claimlink.DepositEvent, error) {
	q := ethereum.FilterQuery{
		FromBlock: receipt.BlockNumber,
		ToBlock:   receipt.BlockNumber,
		Addresses: []common.Address{vault},
		Topics:    [][]common.Hash{{claimlink.DepositEventID}},
	}

	logs, err := f.filterWithRetry(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query deposit logs for %s: %w", receipt.TxHash.Hex(), err)
	}

	for _, l := range logs {
		if l.TxHash != receipt.TxHash || l.Removed {
			continue
		}
		ev, err := claimlink.ParseDepositLog(l)
		if err != nil {
			f.log.Warn("skipping malformed deposit log",
				zap.String("tx_hash", l.TxHash.Hex()),
				zap.Uint("log_index", l.Index),
				zap.Error(err),
			)
			continue
		}
		return ev, nil
	}

	return nil, fmt.Errorf("%w: tx %s in block %s", claimlink.ErrDepositEventNotFound, receipt.TxHash.Hex(), receipt.BlockNumber)
}

// VaultReader reads deposit records straight from the vault contract.
type VaultReader struct {
	caller ContractCaller
}

func NewVaultReader(caller ContractCaller) *VaultReader {
	return &VaultReader{caller: caller}
}

func (r *VaultReader) ReadDeposit(ctx context.Context, vault common.Address, index uint64) (*claimlink.VaultDeposit, error) {
	data, err := claimlink.PackDepositQuery(index)
	if err != nil {
		return nil, err
	}
	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &vault, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call deposits(%d): %w", index, err)
	}
	dep, err := claimlink.UnpackDepositQuery(out)
	if err != nil {
		return nil, fmt.Errorf("decode deposits(%d): %w", index, err)
	}
	return dep, nil
}

func (f *LogDepositFinder) filterWithRetry(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	var lastErr error
	for attempt := 1; attempt <= f.attempts; attempt++ {
		logs, err := f.logs.FilterLogs(ctx, q)
		if err == nil {
			return logs, nil
		}
		lastErr = err
		if attempt == f.attempts {
			break
		}

		f.log.Warn("log query failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.backoff * time.Duration(attempt)):
		}
	}
	return nil, lastErr
}
