package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/surprise-envelope/backend/internal/auth"
	"github.com/surprise-envelope/backend/internal/claimlink"
	"github.com/surprise-envelope/backend/internal/http/dto"
	"github.com/surprise-envelope/backend/internal/models"
	"github.com/surprise-envelope/backend/internal/services"
)

type fakeLinks struct {
	CreateIntentFn      func(ctx context.Context, amountUSD string) (*services.CreatedIntent, error)
	ResolveWithClaimsFn func(ctx context.Context, claims *auth.IntentClaims, txHash common.Hash, secret string) (*claimlink.ResolvedDeposit, error)
	DecodeLinkFn        func(ctx context.Context, raw string) (*services.DecodedLink, error)
	AuthorizeClaimFn    func(ctx context.Context, raw, recipient string) (*claimlink.ClaimAuthorization, error)
	GetDepositFn        func(ctx context.Context, index uint64) (*models.Deposit, error)
}

func (f *fakeLinks) CreateIntent(ctx context.Context, amountUSD string) (*services.CreatedIntent, error) {
	return f.CreateIntentFn(ctx, amountUSD)
}

func (f *fakeLinks) ResolveWithClaims(ctx context.Context, claims *auth.IntentClaims, txHash common.Hash, secret string) (*claimlink.ResolvedDeposit, error) {
	return f.ResolveWithClaimsFn(ctx, claims, txHash, secret)
}

func (f *fakeLinks) DecodeLink(ctx context.Context, raw string) (*services.DecodedLink, error) {
	return f.DecodeLinkFn(ctx, raw)
}

func (f *fakeLinks) AuthorizeClaim(ctx context.Context, raw, recipient string) (*claimlink.ClaimAuthorization, error) {
	return f.AuthorizeClaimFn(ctx, raw, recipient)
}

func (f *fakeLinks) GetDeposit(ctx context.Context, index uint64) (*models.Deposit, error) {
	return f.GetDepositFn(ctx, index)
}

func newTestApp(links LinkService) *fiber.App {
	h := NewLinkHandler(links, zap.NewNop())
	app := fiber.New()
	app.Post("/links/intents", h.CreateIntent)
	app.Post("/links/resolve", h.ResolveDeposit)
	app.Post("/links/decode", h.DecodeLink)
	app.Post("/claims/authorize", h.AuthorizeClaim)
	app.Get("/deposits/:index", h.GetDeposit)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestCreateIntent(t *testing.T) {
	links := &fakeLinks{
		CreateIntentFn: func(_ context.Context, amount string) (*services.CreatedIntent, error) {
			assert.Equal(t, "5.00", amount)
			return &services.CreatedIntent{
				Intent: &claimlink.DepositIntent{
					To:       common.HexToAddress("0xb75B6e4007795e84a0f9Db97EB19C6Fc13c84A5E"),
					Calldata: []byte{0xde, 0xad},
					Secret:   "abc",
					Amount:   big.NewInt(5),
				},
				Token: "tok",
			}, nil
		},
	}

	status, body := doJSON(t, newTestApp(links), "POST", "/links/intents", `{"amount_usd":"5.00"}`)
	assert.Equal(t, fiber.StatusCreated, status)
	data := body["data"].(map[string]any)
	assert.Equal(t, "0xdead", data["calldata"])
	assert.Equal(t, "tok", data["intent_token"])
	assert.Equal(t, "5", data["amount_units"])
}

func TestCreateIntent_Validation(t *testing.T) {
	links := &fakeLinks{
		CreateIntentFn: func(context.Context, string) (*services.CreatedIntent, error) {
			return nil, fmt.Errorf("%w: negative", claimlink.ErrInvalidAmount)
		},
	}
	app := newTestApp(links)

	status, _ := doJSON(t, app, "POST", "/links/intents", `{}`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body := doJSON(t, app, "POST", "/links/intents", `{"amount_usd":"-1"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_amount", body["code"])
}

func TestResolveDeposit(t *testing.T) {
	tx := "0x6f1c1e0bd1b8d2a7c1d9f1c5a0b2e4f7a8c9d0e1f2a3b4c5d6e7f8091a2b3c4d"
	links := &fakeLinks{
		ResolveWithClaimsFn: func(_ context.Context, _ *auth.IntentClaims, txHash common.Hash, secret string) (*claimlink.ResolvedDeposit, error) {
			assert.Equal(t, common.HexToHash(tx), txHash)
			return &claimlink.ResolvedDeposit{
				Record: claimlink.DepositRecord{Index: 42, TxHash: txHash, Amount: big.NewInt(7)},
				Link:   claimlink.ClaimLink{ChainID: 10, Version: "v4.3", Index: 42, Secret: secret},
				URL:    "https://example.com/claim?c=10&v=v4.3&i=42#p=" + secret,
			}, nil
		},
	}
	app := newTestApp(links)

	status, body := doJSON(t, app, "POST", "/links/resolve", `{"tx_hash":"`+tx+`","secret":"abc"}`)
	assert.Equal(t, fiber.StatusOK, status)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(42), data["index"])
	assert.Equal(t, "https://example.com/claim?c=10&v=v4.3&i=42#p=abc", data["url"])

	status, _ = doJSON(t, app, "POST", "/links/resolve", `{"tx_hash":"0x1234","secret":"abc"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestServiceErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: x", claimlink.ErrInvalidLink), fiber.StatusBadRequest, "invalid_link"},
		{claimlink.ErrWaitTimeout, fiber.StatusGatewayTimeout, "wait_timeout"},
		{fmt.Errorf("%w: 0x01", claimlink.ErrDepositFailed), fiber.StatusUnprocessableEntity, "deposit_failed"},
		{claimlink.ErrUnresolvableRecipient, fiber.StatusUnprocessableEntity, "unresolvable_recipient"},
		{services.ErrResolveInProgress, fiber.StatusConflict, "resolve_in_progress"},
		{services.ErrIntentMismatch, fiber.StatusForbidden, "intent_mismatch"},
		{services.ErrDepositClaimed, fiber.StatusConflict, "deposit_claimed"},
		{errors.New("boom"), fiber.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			links := &fakeLinks{
				AuthorizeClaimFn: func(context.Context, string, string) (*claimlink.ClaimAuthorization, error) {
					return nil, tt.err
				},
			}
			status, body := doJSON(t, newTestApp(links), "POST", "/claims/authorize", `{"link":"x","recipient":"y"}`)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, body["code"])
		})
	}
}

func TestInternalErrorHidesDetails(t *testing.T) {
	links := &fakeLinks{
		DecodeLinkFn: func(context.Context, string) (*services.DecodedLink, error) {
			return nil, errors.New("pq: connection refused to 10.0.0.3")
		},
	}
	_, body := doJSON(t, newTestApp(links), "POST", "/links/decode", `{"link":"x"}`)
	assert.Equal(t, "internal server error", body["error"])
}

func TestAuthorizeClaim(t *testing.T) {
	links := &fakeLinks{
		AuthorizeClaimFn: func(_ context.Context, raw, recipient string) (*claimlink.ClaimAuthorization, error) {
			return &claimlink.ClaimAuthorization{
				Vault:     common.HexToAddress("0xb75B6e4007795e84a0f9Db97EB19C6Fc13c84A5E"),
				Index:     7,
				Recipient: common.HexToAddress(recipient),
				Signature: make([]byte, 65),
				Calldata:  []byte{1, 2, 3},
			}, nil
		},
	}
	app := newTestApp(links)

	status, body := doJSON(t, app, "POST", "/claims/authorize",
		`{"link":"https://example.com/claim?c=10&i=7#p=abc","recipient":"0x2222222222222222222222222222222222222222"}`)
	assert.Equal(t, fiber.StatusOK, status)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(7), data["index"])
	assert.Equal(t, "0x010203", data["calldata"])
	assert.Len(t, data["signature"], 2+2*65)

	status, _ = doJSON(t, app, "POST", "/claims/authorize", `{"link":"x"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestDecodeLink_OmitsSecret(t *testing.T) {
	links := &fakeLinks{
		DecodeLinkFn: func(context.Context, string) (*services.DecodedLink, error) {
			return &services.DecodedLink{
				Link:       claimlink.ClaimLink{ChainID: 10, Version: "v4.3", Index: 7, Secret: "topsecret"},
				KeyAddress: common.HexToAddress("0x3333333333333333333333333333333333333333"),
			}, nil
		},
	}
	req := httptest.NewRequest("POST", "/links/decode", strings.NewReader(`{"link":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := newTestApp(links).Test(req)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotContains(t, string(raw), "topsecret")

	var out dto.SuccessResponse
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.True(t, out.OK)
}

func TestGetDeposit(t *testing.T) {
	links := &fakeLinks{
		GetDepositFn: func(_ context.Context, index uint64) (*models.Deposit, error) {
			if index == 42 {
				return &models.Deposit{DepositIndex: 42, Status: models.DepositStatusDeposited}, nil
			}
			return nil, services.ErrDepositNotFound
		},
	}
	app := newTestApp(links)

	status, body := doJSON(t, app, "GET", "/deposits/42", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "deposited", body["data"].(map[string]any)["status"])

	status, _ = doJSON(t, app, "GET", "/deposits/43", "")
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = doJSON(t, app, "GET", "/deposits/abc", "")
	assert.Equal(t, fiber.StatusBadRequest, status)
}
