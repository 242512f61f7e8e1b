package chain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/surprise-envelope/backend/internal/claimlink"
	"github.com/surprise-envelope/backend/internal/config"
)

const logRetryBackoff = time.Second

// Adapters holds the RPC clients and the core ports built on them.
type Adapters struct {
	Client   *ethclient.Client
	Receipts *ReceiptPoller
	Deposits *LogDepositFinder
	Vault    *VaultReader
	Names    claimlink.NameResolver // nil when ENS_RPC_URL is unset

	closeNames func()
}

// Open dials the configured chain (and the ENS endpoint, if any).
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Adapters, error) {
	client, err := Dial(ctx, cfg.RPCURL, cfg.ChainID, log)
	if err != nil {
		return nil, err
	}

	a := &Adapters{
		Client:   client,
		Receipts: NewReceiptPoller(client, cfg.ReceiptPollInterval, cfg.ReceiptTimeout, log),
		Deposits: NewLogDepositFinder(client, cfg.LogQueryAttempts, logRetryBackoff, log),
		Vault:    NewVaultReader(client),
	}

	a.Names, a.closeNames, err = OpenNames(ctx, cfg, log)
	if err != nil {
		client.Close()
		return nil, err
	}

	return a, nil
}

// OpenNames dials the ENS endpoint when one is configured. Without one the
// resolver is nil and recipients must be literal addresses. The returned
// func closes the connection and is never nil.
func OpenNames(ctx context.Context, cfg *config.Config, log *zap.Logger) (claimlink.NameResolver, func(), error) {
	if cfg.ENSRPCURL == "" {
		return nil, func() {}, nil
	}

	client, err := Dial(ctx, cfg.ENSRPCURL, 0, log)
	if err != nil {
		return nil, nil, err
	}
	var registry common.Address
	if cfg.ENSRegistryAddress != "" {
		registry = common.HexToAddress(cfg.ENSRegistryAddress)
	}
	return NewENSResolver(client, registry), client.Close, nil
}

func (a *Adapters) Close() {
	a.Client.Close()
	a.closeNames()
}
