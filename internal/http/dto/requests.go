package dto

type CreateIntentRequest struct {
	AmountUSD string `json:"amount_usd"`
}

type ResolveDepositRequest struct {
	TxHash string `json:"tx_hash"`
	Secret string `json:"secret"`
}

type DecodeLinkRequest struct {
	Link string `json:"link"`
}

type AuthorizeClaimRequest struct {
	Link      string `json:"link"`
	Recipient string `json:"recipient"` // address or ENS name
}
