package claimlink

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// NameResolver maps a human-readable name (e.g. "alice.eth") to an address.
type NameResolver interface {
	ResolveName(ctx context.Context, name string) (common.Address, error)
}

// Authorizer signs withdrawals for claim links. names may be nil, in which
// case only literal addresses are accepted as recipients.
type Authorizer struct {
	vault   Vault
	schemes map[string]WithdrawalScheme
	names   NameResolver
	log     *zap.Logger
}

func NewAuthorizer(vault Vault, names NameResolver, log *zap.Logger) *Authorizer {
	return &Authorizer{vault: vault, schemes: WithdrawalSchemes, names: names, log: log}
}

// Authorize re-derives the link's one-time key, signs the withdrawal message
// for recipient and packs the withdrawDeposit calldata.
func (a *Authorizer) Authorize(ctx context.Context, link ClaimLink, recipient string) (*ClaimAuthorization, error) {
	if link.ChainID != a.vault.ChainID {
		return nil, invalidLink("link is for chain %d, vault is on chain %d", link.ChainID, a.vault.ChainID)
	}
	if link.Secret == "" {
		return nil, invalidLink("missing secret")
	}

	scheme, err := a.scheme(link.Version)
	if err != nil {
		return nil, err
	}

	to, err := a.resolveRecipient(ctx, recipient)
	if err != nil {
		return nil, err
	}

	key, err := DeriveKey(link.Secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureConstructionFailed, err)
	}

	digest := scheme.Digest(a.vault.ChainID, a.vault.Address, link.Index, to)
	sig, err := SignDigest(digest, key.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureConstructionFailed, err)
	}

	calldata, err := PackWithdrawDeposit(link.Index, to, sig)
	if err != nil {
		return nil, fmt.Errorf("%w: pack withdrawDeposit: %v", ErrSignatureConstructionFailed, err)
	}

	a.log.Info("claim authorized",
		zap.Uint64("index", link.Index),
		zap.String("recipient", to.Hex()),
		zap.String("key_address", key.Address.Hex()),
	)

	return &ClaimAuthorization{
		Vault:       a.vault.Address,
		Index:       link.Index,
		Recipient:   to,
		Signature:   sig,
		MessageHash: digest,
		Calldata:    calldata,
	}, nil
}

func (a *Authorizer) scheme(version string) (WithdrawalScheme, error) {
	if version == "" {
		version = a.vault.Version
	}
	if version != a.vault.Version {
		return WithdrawalScheme{}, invalidLink("link version %q does not match vault %q", version, a.vault.Version)
	}
	s, ok := a.schemes[version]
	if !ok {
		return WithdrawalScheme{}, invalidLink("unsupported vault version %q", version)
	}
	return s, nil
}

func (a *Authorizer) resolveRecipient(ctx context.Context, recipient string) (common.Address, error) {
	recipient = strings.TrimSpace(recipient)
	if common.IsHexAddress(recipient) {
		addr := common.HexToAddress(recipient)
		if addr == (common.Address{}) {
			return common.Address{}, fmt.Errorf("%w: zero address", ErrUnresolvableRecipient)
		}
		return addr, nil
	}
	if a.names == nil || !strings.Contains(recipient, ".") {
		return common.Address{}, fmt.Errorf("%w: %q is not an address", ErrUnresolvableRecipient, recipient)
	}

	addr, err := a.names.ResolveName(ctx, recipient)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %s: %v", ErrUnresolvableRecipient, recipient, err)
	}
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: %s has no address", ErrUnresolvableRecipient, recipient)
	}
	a.log.Debug("recipient name resolved", zap.String("name", recipient), zap.String("address", addr.Hex()))
	return addr, nil
}
