package claimlink

import (
	"crypto/rand"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// Issuer creates deposit intents. It never submits transactions.
type Issuer struct {
	vault Vault
	rand  io.Reader
	log   *zap.Logger
}

func NewIssuer(vault Vault, log *zap.Logger) *Issuer {
	return &Issuer{vault: vault, rand: rand.Reader, log: log}
}

// Create generates a fresh secret, derives its one-time key and builds the
// makeDeposit calldata that registers the key as the deposit's authority.
func (i *Issuer) Create(amountUSD string) (*DepositIntent, error) {
	amount, err := ParseUnits(amountUSD, i.vault.TokenDecimals)
	if err != nil {
		return nil, err
	}

	secret, err := GenerateSecret(i.rand)
	if err != nil {
		return nil, err
	}

	key, err := DeriveKey(secret)
	if err != nil {
		return nil, err
	}

	calldata, err := PackMakeDeposit(i.vault.Token, amount, key.Address)
	if err != nil {
		return nil, fmt.Errorf("pack makeDeposit: %w", err)
	}

	i.log.Info("deposit intent created",
		zap.String("key_address", key.Address.Hex()),
		zap.String("amount_units", amount.String()),
		zap.String("vault", i.vault.Address.Hex()),
	)

	return &DepositIntent{
		To:         i.vault.Address,
		Calldata:   calldata,
		Secret:     secret,
		KeyAddress: key.Address,
		Amount:     amount,
	}, nil
}
