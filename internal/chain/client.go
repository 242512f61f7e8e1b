package chain

// EVM JSON-RPC access for the claim-link core.
// The core only sees narrow interfaces (claimlink.ReceiptWaiter,
// claimlink.DepositEventFinder, claimlink.NameResolver); this package
// implements them on top of go-ethereum's ethclient.

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// Backend is the subset of *ethclient.Client the service uses.
type Backend interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	BlockNumber(ctx context.Context) (uint64, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

var _ Backend = (*ethclient.Client)(nil)

// Dial connects to an RPC endpoint and checks it serves the expected chain.
func Dial(ctx context.Context, rpcURL string, expectedChainID uint64, log *zap.Logger) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("get chain id: %w", err)
	}
	if expectedChainID != 0 && chainID.Uint64() != expectedChainID {
		client.Close()
		return nil, fmt.Errorf("rpc serves chain %s, expected %d", chainID, expectedChainID)
	}

	log.Info("rpc connected", zap.String("url", rpcURL), zap.Uint64("chain_id", chainID.Uint64()))
	return client, nil
}
