package claimlink

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// ReceiptWaiter blocks until a transaction has a receipt. Implementations
// must give up with ErrWaitTimeout after a bounded wait.
type ReceiptWaiter interface {
	WaitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// DepositEventFinder locates the vault's deposit event for a confirmed
// transaction, returning ErrDepositEventNotFound when there is none.
type DepositEventFinder interface {
	FindDepositEvent(ctx context.Context, vault common.Address, receipt *types.Receipt) (*DepositEvent, error)
}

// DepositReader reads the vault's stored record of a deposit.
type DepositReader interface {
	ReadDeposit(ctx context.Context, vault common.Address, index uint64) (*VaultDeposit, error)
}

// Resolver turns a confirmed deposit transaction into a claim link.
type Resolver struct {
	vault  Vault
	waiter ReceiptWaiter
	finder DepositEventFinder
	reader DepositReader
	codec  *Codec
	log    *zap.Logger
}

func NewResolver(vault Vault, waiter ReceiptWaiter, finder DepositEventFinder, reader DepositReader, codec *Codec, log *zap.Logger) *Resolver {
	return &Resolver{vault: vault, waiter: waiter, finder: finder, reader: reader, codec: codec, log: log}
}

// Resolve waits for txHash to confirm, reads the deposit index the vault
// assigned and assembles the link for secret. The deposit must be locked to
// the key secret derives, otherwise ErrKeyMismatch is returned.
func (r *Resolver) Resolve(ctx context.Context, txHash common.Hash, secret string) (*ResolvedDeposit, error) {
	if secret == "" {
		return nil, invalidLink("empty secret")
	}
	key, err := DeriveKey(secret)
	if err != nil {
		return nil, invalidLink("%v", err)
	}

	receipt, err := r.waiter.WaitForReceipt(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: %s", ErrDepositFailed, txHash.Hex())
	}

	r.log.Info("deposit confirmed",
		zap.String("tx_hash", txHash.Hex()),
		zap.Uint64("block", receipt.BlockNumber.Uint64()),
	)

	ev, err := r.finder.FindDepositEvent(ctx, r.vault.Address, receipt)
	if err != nil {
		return nil, err
	}

	stored, err := r.reader.ReadDeposit(ctx, r.vault.Address, ev.Index)
	if err != nil {
		return nil, fmt.Errorf("read deposit %d: %w", ev.Index, err)
	}
	if stored.KeyAddress != key.Address {
		return nil, fmt.Errorf("%w: deposit %d", ErrKeyMismatch, ev.Index)
	}

	amount := ev.Amount
	if amount == nil {
		amount = stored.Amount
	}

	record := DepositRecord{
		ChainID:     r.vault.ChainID,
		Vault:       r.vault.Address,
		Index:       ev.Index,
		BlockNumber: receipt.BlockNumber.Uint64(),
		Amount:      amount,
		TxHash:      txHash,
		Sender:      ev.Sender,
		KeyAddress:  stored.KeyAddress,
	}
	return r.Assemble(record, secret), nil
}

// Assemble builds the link for an already known deposit record.
func (r *Resolver) Assemble(record DepositRecord, secret string) *ResolvedDeposit {
	link := ClaimLink{
		ChainID: record.ChainID,
		Version: r.vault.Version,
		Index:   record.Index,
		Secret:  secret,
	}

	r.log.Info("deposit index resolved",
		zap.String("tx_hash", record.TxHash.Hex()),
		zap.Uint64("index", record.Index),
	)

	return &ResolvedDeposit{
		Record: record,
		Link:   link,
		URL:    r.codec.Encode(link),
	}
}
