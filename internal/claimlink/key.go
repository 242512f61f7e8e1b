package claimlink

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

const (
	// SecretBytes is the entropy of a generated secret; hex-encoded it is 24 characters.
	SecretBytes = 12

	// KeyDerivationV1 names the frozen secret-to-key function. Every link issued
	// so far depends on it; a new function needs a new version and a new link tag.
	KeyDerivationV1 = "keccak256(utf8(secret))"
)

// OneTimeKey is the deposit authority derived from a secret.
type OneTimeKey struct {
	PrivateKey *ecdsa.PrivateKey
	Address    common.Address
}

// GenerateSecret reads SecretBytes from r and returns them hex-encoded.
// r must be a CSPRNG; nil means crypto/rand.
func GenerateSecret(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	b := make([]byte, SecretBytes)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("read random secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// DeriveKey maps a secret to its one-time key using KeyDerivationV1.
// It is pure: the issuing and claiming sides get identical keys.
func DeriveKey(secret string) (*OneTimeKey, error) {
	if secret == "" {
		return nil, errors.New("empty secret")
	}

	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(secret))
	seed := h.Sum(nil)

	priv, err := crypto.ToECDSA(seed)
	if err != nil {
		// keccak output outside the secp256k1 scalar range; astronomically unlikely
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return &OneTimeKey{
		PrivateKey: priv,
		Address:    crypto.PubkeyToAddress(priv.PublicKey),
	}, nil
}
