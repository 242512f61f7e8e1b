package claimlink

import (
	"errors"
	"fmt"
)

// Callers branch on these with errors.Is; every failure path wraps one of them.
var (
	// ErrInvalidAmount: the amount is not a positive decimal representable in token units.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrDepositFailed: the deposit transaction reverted. Not retryable, issue a new intent.
	ErrDepositFailed = errors.New("deposit transaction failed")

	// ErrDepositEventNotFound: the confirmed transaction emitted no deposit event for the vault.
	ErrDepositEventNotFound = errors.New("deposit event not found")

	// ErrWaitTimeout: the transaction did not reach a terminal state in time. Retryable.
	ErrWaitTimeout = errors.New("timed out waiting for transaction receipt")

	// ErrKeyMismatch: the deposit is locked to a key other than the one the secret derives.
	ErrKeyMismatch = errors.New("deposit is locked to another key")

	ErrInvalidLink = errors.New("invalid claim link")

	// ErrUnresolvableRecipient: the recipient is neither an address nor a resolvable name.
	ErrUnresolvableRecipient = errors.New("unresolvable recipient")

	ErrSignatureConstructionFailed = errors.New("signature construction failed")
)

func invalidLink(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidLink, fmt.Sprintf(format, args...))
}
