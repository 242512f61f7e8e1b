package handlers

import (
	"context"
	"errors"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/surprise-envelope/backend/internal/auth"
	"github.com/surprise-envelope/backend/internal/claimlink"
	"github.com/surprise-envelope/backend/internal/http/dto"
	"github.com/surprise-envelope/backend/internal/middleware"
	"github.com/surprise-envelope/backend/internal/models"
	"github.com/surprise-envelope/backend/internal/services"
)

// LinkService is the part of services.LinkService the handlers call.
type LinkService interface {
	CreateIntent(ctx context.Context, amountUSD string) (*services.CreatedIntent, error)
	ResolveWithClaims(ctx context.Context, claims *auth.IntentClaims, txHash common.Hash, secret string) (*claimlink.ResolvedDeposit, error)
	DecodeLink(ctx context.Context, raw string) (*services.DecodedLink, error)
	AuthorizeClaim(ctx context.Context, raw, recipient string) (*claimlink.ClaimAuthorization, error)
	GetDeposit(ctx context.Context, index uint64) (*models.Deposit, error)
}

type LinkHandler struct {
	links LinkService
	log   *zap.Logger
}

func NewLinkHandler(links LinkService, log *zap.Logger) *LinkHandler {
	return &LinkHandler{links: links, log: log}
}

func (h *LinkHandler) CreateIntent(c *fiber.Ctx) error {
	var req dto.CreateIntentRequest
	if err := c.BodyParser(&req); err != nil {
		return h.fail(c, fiber.StatusBadRequest, "bad_request", "invalid request body")
	}
	if req.AmountUSD == "" {
		return h.fail(c, fiber.StatusBadRequest, "bad_request", "amount_usd is required")
	}

	created, err := h.links.CreateIntent(c.UserContext(), req.AmountUSD)
	if err != nil {
		return h.serviceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: dto.NewIntentResponse(created)})
}

func (h *LinkHandler) ResolveDeposit(c *fiber.Ctx) error {
	var req dto.ResolveDepositRequest
	if err := c.BodyParser(&req); err != nil {
		return h.fail(c, fiber.StatusBadRequest, "bad_request", "invalid request body")
	}
	raw, err := hexutil.Decode(req.TxHash)
	if err != nil || len(raw) != common.HashLength {
		return h.fail(c, fiber.StatusBadRequest, "bad_request", "tx_hash must be a 32-byte hex string")
	}

	resolved, err := h.links.ResolveWithClaims(c.UserContext(), middleware.GetIntentClaims(c), common.BytesToHash(raw), req.Secret)
	if err != nil {
		return h.serviceError(c, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewResolvedDepositResponse(resolved)})
}

func (h *LinkHandler) DecodeLink(c *fiber.Ctx) error {
	var req dto.DecodeLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return h.fail(c, fiber.StatusBadRequest, "bad_request", "invalid request body")
	}

	decoded, err := h.links.DecodeLink(c.UserContext(), req.Link)
	if err != nil {
		return h.serviceError(c, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewDecodedLinkResponse(decoded)})
}

func (h *LinkHandler) AuthorizeClaim(c *fiber.Ctx) error {
	var req dto.AuthorizeClaimRequest
	if err := c.BodyParser(&req); err != nil {
		return h.fail(c, fiber.StatusBadRequest, "bad_request", "invalid request body")
	}
	if req.Recipient == "" {
		return h.fail(c, fiber.StatusBadRequest, "bad_request", "recipient is required")
	}

	authz, err := h.links.AuthorizeClaim(c.UserContext(), req.Link, req.Recipient)
	if err != nil {
		return h.serviceError(c, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewClaimAuthorizationResponse(authz)})
}

func (h *LinkHandler) GetDeposit(c *fiber.Ctx) error {
	index, err := strconv.ParseUint(c.Params("index"), 10, 64)
	if err != nil {
		return h.fail(c, fiber.StatusBadRequest, "bad_request", "invalid deposit index")
	}

	dep, err := h.links.GetDeposit(c.UserContext(), index)
	if err != nil {
		return h.serviceError(c, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dep})
}

type errorMapping struct {
	err    error
	status int
	code   string
}

var serviceErrors = []errorMapping{
	{claimlink.ErrInvalidAmount, fiber.StatusBadRequest, "invalid_amount"},
	{claimlink.ErrInvalidLink, fiber.StatusBadRequest, "invalid_link"},
	{claimlink.ErrUnresolvableRecipient, fiber.StatusUnprocessableEntity, "unresolvable_recipient"},
	{claimlink.ErrDepositFailed, fiber.StatusUnprocessableEntity, "deposit_failed"},
	{claimlink.ErrDepositEventNotFound, fiber.StatusUnprocessableEntity, "deposit_event_not_found"},
	{claimlink.ErrWaitTimeout, fiber.StatusGatewayTimeout, "wait_timeout"},
	{services.ErrInvalidIntentToken, fiber.StatusUnauthorized, "invalid_intent_token"},
	{services.ErrIntentMismatch, fiber.StatusForbidden, "intent_mismatch"},
	{services.ErrResolveInProgress, fiber.StatusConflict, "resolve_in_progress"},
	{services.ErrDepositClaimed, fiber.StatusConflict, "deposit_claimed"},
	{services.ErrDepositNotFound, fiber.StatusNotFound, "deposit_not_found"},
}

func (h *LinkHandler) serviceError(c *fiber.Ctx, err error) error {
	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			return h.fail(c, m.status, m.code, err.Error())
		}
	}

	reqID, _ := c.Locals(middleware.CtxRequestID).(string)
	h.log.Error("link request failed", zap.String("request_id", reqID), zap.String("path", c.Path()), zap.Error(err))
	return h.fail(c, fiber.StatusInternalServerError, "internal", "internal server error")
}

func (h *LinkHandler) fail(c *fiber.Ctx, status int, code, msg string) error {
	reqID, _ := c.Locals(middleware.CtxRequestID).(string)
	return c.Status(status).JSON(dto.ErrorResponse{Error: msg, Code: code, RequestID: reqID})
}
