package auth

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"

	"github.com/surprise-envelope/backend/internal/claimlink"
)

const intentIssuer = "surprise-envelope"

// IntentClaims bind a deposit intent to its one-time key. The secret itself
// is never a claim: the token travels through places the secret must not.
type IntentClaims struct {
	KeyAddress  string `json:"key_address"`
	AmountUnits string `json:"amount_units"`
	Token       string `json:"token"`
	Vault       string `json:"vault"`
	ChainID     uint64 `json:"chain_id"`
	jwt.RegisteredClaims
}

// IssueIntentToken signs an intent receipt for the given vault.
// ttl <= 0 falls back to one hour.
func IssueIntentToken(secret string, vault claimlink.Vault, intent *claimlink.DepositIntent, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = time.Hour
	}

	now := time.Now()
	claims := IntentClaims{
		KeyAddress:  intent.KeyAddress.Hex(),
		AmountUnits: intent.Amount.String(),
		Token:       vault.Token.Hex(),
		Vault:       vault.Address.Hex(),
		ChainID:     vault.ChainID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    intentIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseIntentToken(secret string, tokenStr string) (*IntentClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &IntentClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(intentIssuer))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*IntentClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if !common.IsHexAddress(claims.KeyAddress) {
		return nil, fmt.Errorf("invalid key address in token")
	}
	return claims, nil
}

// Key returns the one-time key address the intent was issued for.
func (c *IntentClaims) Key() common.Address {
	return common.HexToAddress(c.KeyAddress)
}

// Amount returns the token units the intent asked for, nil if malformed.
func (c *IntentClaims) Amount() *big.Int {
	v, ok := new(big.Int).SetString(c.AmountUnits, 10)
	if !ok {
		return nil
	}
	return v
}

// Matches reports whether the token was issued for this vault.
func (c *IntentClaims) Matches(vault claimlink.Vault) bool {
	return c.ChainID == vault.ChainID &&
		common.HexToAddress(c.Vault) == vault.Address &&
		common.HexToAddress(c.Token) == vault.Token
}
