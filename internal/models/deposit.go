package models

import (
	"time"

	"github.com/google/uuid"
)

// Deposit statuses
const (
	DepositStatusDeposited = "deposited"
	DepositStatusClaimed   = "claimed"
)

// Who recorded the deposit first
const (
	DepositSourceResolver = "resolver"
	DepositSourceIndexer  = "indexer"
)

var ValidDepositTransitions = map[string][]string{
	DepositStatusDeposited: {DepositStatusClaimed},
	DepositStatusClaimed:   {},
}

func IsValidDepositTransition(from, to string) bool {
	for _, s := range ValidDepositTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Deposit is the public, secret-free view of one vault deposit.
type Deposit struct {
	ID               uuid.UUID  `json:"id"`
	ChainID          int64      `json:"chain_id"`
	VaultAddress     string     `json:"vault_address"`
	DepositIndex     int64      `json:"deposit_index"`
	TxHash           string     `json:"tx_hash"`
	BlockNumber      int64      `json:"block_number"`
	AmountUnits      string     `json:"amount_units"`
	SenderAddress    *string    `json:"sender_address,omitempty"`
	KeyAddress       *string    `json:"key_address,omitempty"` // one-time key, public
	Status           string     `json:"status"`
	Source           string     `json:"source"`
	ClaimTxHash      *string    `json:"claim_tx_hash,omitempty"`
	RecipientAddress *string    `json:"recipient_address,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	ClaimedAt        *time.Time `json:"claimed_at,omitempty"`
}
