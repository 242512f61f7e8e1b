package claimlink

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Vault describes the deployed settlement contract a link is bound to.
type Vault struct {
	ChainID       uint64
	Address       common.Address
	Version       string // link "v" tag, e.g. "v4.3"
	Token         common.Address
	TokenDecimals int32
}

// DepositIntent is the unsigned deposit transaction handed to the sender's wallet.
// Secret must only ever travel back to the sender.
type DepositIntent struct {
	To         common.Address `json:"to"`
	Calldata   []byte         `json:"calldata"`
	Secret     string         `json:"secret"`
	KeyAddress common.Address `json:"key_address"`
	Amount     *big.Int       `json:"amount"`
}

// DepositRecord is what the chain says about one confirmed deposit.
type DepositRecord struct {
	ChainID     uint64         `json:"chain_id"`
	Vault       common.Address `json:"vault"`
	Index       uint64         `json:"index"`
	BlockNumber uint64         `json:"block_number"`
	Amount      *big.Int       `json:"amount"`
	TxHash      common.Hash    `json:"tx_hash"`
	Sender      common.Address `json:"sender"`
	KeyAddress  common.Address `json:"key_address"` // withdrawal signer registered with the vault
}

// VaultDeposit is the vault's own record of a deposit.
type VaultDeposit struct {
	KeyAddress common.Address
	Amount     *big.Int
}

// ClaimLink carries everything needed to claim a deposit.
type ClaimLink struct {
	ChainID uint64
	Version string
	Index   uint64
	Secret  string
}

// ResolvedDeposit is the outcome of a successful Resolve.
type ResolvedDeposit struct {
	Record DepositRecord
	Link   ClaimLink
	URL    string
}

// ClaimAuthorization is a signed withdrawal ready for submission to the vault.
type ClaimAuthorization struct {
	Vault       common.Address `json:"vault"`
	Index       uint64         `json:"index"`
	Recipient   common.Address `json:"recipient"`
	Signature   []byte         `json:"signature"`
	MessageHash common.Hash    `json:"message_hash"`
	Calldata    []byte         `json:"calldata"`
}

// DepositEvent is a decoded DepositEvent log.
type DepositEvent struct {
	Index        uint64
	ContractType uint8
	Amount       *big.Int
	Sender       common.Address
	TxHash       common.Hash
	BlockNumber  uint64
	LogIndex     uint
}

// WithdrawEvent is a decoded WithdrawEvent log.
type WithdrawEvent struct {
	Index       uint64
	Amount      *big.Int
	Recipient   common.Address
	TxHash      common.Hash
	BlockNumber uint64
	LogIndex    uint
}
