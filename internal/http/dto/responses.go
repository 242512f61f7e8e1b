package dto

import (
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/surprise-envelope/backend/internal/claimlink"
	"github.com/surprise-envelope/backend/internal/models"
	"github.com/surprise-envelope/backend/internal/services"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

// IntentResponse is returned to the sender only; it is the one response
// that carries the secret.
type IntentResponse struct {
	To          string    `json:"to"`
	Calldata    string    `json:"calldata"`
	Secret      string    `json:"secret"`
	KeyAddress  string    `json:"key_address"`
	AmountUnits string    `json:"amount_units"`
	IntentToken string    `json:"intent_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func NewIntentResponse(ci *services.CreatedIntent) IntentResponse {
	return IntentResponse{
		To:          ci.Intent.To.Hex(),
		Calldata:    hexutil.Encode(ci.Intent.Calldata),
		Secret:      ci.Intent.Secret,
		KeyAddress:  ci.Intent.KeyAddress.Hex(),
		AmountUnits: ci.Intent.Amount.String(),
		IntentToken: ci.Token,
		ExpiresAt:   ci.ExpiresAt,
	}
}

type ResolvedDepositResponse struct {
	URL         string `json:"url"`
	ChainID     uint64 `json:"chain_id"`
	Version     string `json:"version"`
	Index       uint64 `json:"index"`
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
	AmountUnits string `json:"amount_units"`
}

func NewResolvedDepositResponse(rd *claimlink.ResolvedDeposit) ResolvedDepositResponse {
	amount := "0"
	if rd.Record.Amount != nil {
		amount = rd.Record.Amount.String()
	}
	return ResolvedDepositResponse{
		URL:         rd.URL,
		ChainID:     rd.Link.ChainID,
		Version:     rd.Link.Version,
		Index:       rd.Link.Index,
		TxHash:      rd.Record.TxHash.Hex(),
		BlockNumber: rd.Record.BlockNumber,
		AmountUnits: amount,
	}
}

// DecodedLinkResponse deliberately omits the secret.
type DecodedLinkResponse struct {
	ChainID    uint64          `json:"chain_id"`
	Version    string          `json:"version,omitempty"`
	Index      uint64          `json:"index"`
	KeyAddress string          `json:"key_address"`
	Deposit    *models.Deposit `json:"deposit,omitempty"`
}

func NewDecodedLinkResponse(d *services.DecodedLink) DecodedLinkResponse {
	return DecodedLinkResponse{
		ChainID:    d.Link.ChainID,
		Version:    d.Link.Version,
		Index:      d.Link.Index,
		KeyAddress: d.KeyAddress.Hex(),
		Deposit:    d.Deposit,
	}
}

type ClaimAuthorizationResponse struct {
	Vault       string `json:"vault"`
	Index       uint64 `json:"index"`
	Recipient   string `json:"recipient"`
	Signature   string `json:"signature"`
	MessageHash string `json:"message_hash"`
	Calldata    string `json:"calldata"`
}

func NewClaimAuthorizationResponse(a *claimlink.ClaimAuthorization) ClaimAuthorizationResponse {
	return ClaimAuthorizationResponse{
		Vault:       a.Vault.Hex(),
		Index:       a.Index,
		Recipient:   a.Recipient.Hex(),
		Signature:   hexutil.Encode(a.Signature),
		MessageHash: a.MessageHash.Hex(),
		Calldata:    hexutil.Encode(a.Calldata),
	}
}
