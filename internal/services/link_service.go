package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/surprise-envelope/backend/internal/auth"
	"github.com/surprise-envelope/backend/internal/claimlink"
	"github.com/surprise-envelope/backend/internal/config"
	"github.com/surprise-envelope/backend/internal/events"
	"github.com/surprise-envelope/backend/internal/models"
	"github.com/surprise-envelope/backend/internal/repositories"
)

var (
	ErrInvalidIntentToken = errors.New("invalid intent token")
	// ErrIntentMismatch: the secret or the deposit does not belong to the intent.
	ErrIntentMismatch    = errors.New("secret does not match intent")
	ErrResolveInProgress = errors.New("deposit resolution already in progress")
	ErrDepositNotFound   = errors.New("deposit not found")
	ErrDepositClaimed    = errors.New("deposit already claimed")
)

type DepositStore interface {
	Upsert(ctx context.Context, d *models.Deposit) error
	GetByIndex(ctx context.Context, chainID int64, vault string, index int64) (*models.Deposit, error)
	GetByTxHash(ctx context.Context, txHash string) (*models.Deposit, error)
}

type AuditLogger interface {
	Log(ctx context.Context, entry models.AuditLog) error
}

type ResolveCache interface {
	Lock(ctx context.Context, txHash common.Hash) (release func(), ok bool, err error)
	Get(ctx context.Context, txHash common.Hash) (*claimlink.DepositRecord, error)
	Put(ctx context.Context, rec claimlink.DepositRecord) error
}

// CreatedIntent is a deposit intent plus the token that later authorizes
// resolving it.
type CreatedIntent struct {
	Intent    *claimlink.DepositIntent
	Token     string
	ExpiresAt time.Time
}

// DecodedLink is a parsed claim link with its public key address and, when
// known, the stored deposit it points at.
type DecodedLink struct {
	Link       claimlink.ClaimLink
	KeyAddress common.Address
	Deposit    *models.Deposit
}

type LinkService struct {
	vault      claimlink.Vault
	issuer     *claimlink.Issuer
	resolver   *claimlink.Resolver
	authorizer *claimlink.Authorizer
	deposits   DepositStore
	audit      AuditLogger
	cache      ResolveCache
	publisher  events.Publisher
	cfg        *config.Config
	log        *zap.Logger
}

func NewLinkService(
	issuer *claimlink.Issuer,
	resolver *claimlink.Resolver,
	authorizer *claimlink.Authorizer,
	deposits DepositStore,
	audit AuditLogger,
	cache ResolveCache,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *LinkService {
	return &LinkService{
		vault:      cfg.Vault(),
		issuer:     issuer,
		resolver:   resolver,
		authorizer: authorizer,
		deposits:   deposits,
		audit:      audit,
		cache:      cache,
		publisher:  publisher,
		cfg:        cfg,
		log:        log,
	}
}

func (s *LinkService) CreateIntent(ctx context.Context, amountUSD string) (*CreatedIntent, error) {
	intent, err := s.issuer.Create(amountUSD)
	if err != nil {
		return nil, err
	}

	token, err := auth.IssueIntentToken(s.cfg.IntentSecret, s.vault, intent, s.cfg.IntentTTL)
	if err != nil {
		return nil, fmt.Errorf("issue intent token: %w", err)
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorType:  "sender",
		Action:     models.AuditIntentCreated,
		EntityType: "key",
		EntityRef:  intent.KeyAddress.Hex(),
		Meta:       map[string]any{"amount_units": intent.Amount.String()},
	})

	return &CreatedIntent{
		Intent:    intent,
		Token:     token,
		ExpiresAt: time.Now().Add(s.cfg.IntentTTL),
	}, nil
}

// ResolveDeposit turns the sender's confirmed deposit into a claim link.
// Only the holder of the intent token and the matching secret may resolve.
func (s *LinkService) ResolveDeposit(ctx context.Context, token string, txHash common.Hash, secret string) (*claimlink.ResolvedDeposit, error) {
	claims, err := auth.ParseIntentToken(s.cfg.IntentSecret, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIntentToken, err)
	}
	return s.ResolveWithClaims(ctx, claims, txHash, secret)
}

// ResolveWithClaims is ResolveDeposit for an already verified intent token.
func (s *LinkService) ResolveWithClaims(ctx context.Context, claims *auth.IntentClaims, txHash common.Hash, secret string) (*claimlink.ResolvedDeposit, error) {
	if !claims.Matches(s.vault) {
		return nil, fmt.Errorf("%w: token issued for another vault", ErrIntentMismatch)
	}
	if secret == "" {
		return nil, fmt.Errorf("%w: empty secret", claimlink.ErrInvalidLink)
	}
	key, err := claimlink.DeriveKey(secret)
	if err != nil {
		return nil, err
	}
	if key.Address != claims.Key() {
		return nil, ErrIntentMismatch
	}

	if rec := s.known(ctx, txHash); rec != nil {
		if err := checkIntent(claims, *rec); err != nil {
			return nil, err
		}
		return s.resolver.Assemble(*rec, secret), nil
	}

	release, ok, err := s.cache.Lock(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrResolveInProgress
	}
	defer release()

	resolved, err := s.resolver.Resolve(ctx, txHash, secret)
	if errors.Is(err, claimlink.ErrKeyMismatch) {
		return nil, fmt.Errorf("%w: %v", ErrIntentMismatch, err)
	}
	if err != nil {
		s.onResolveFailed(ctx, txHash, err)
		return nil, err
	}
	if err := checkIntent(claims, resolved.Record); err != nil {
		return nil, err
	}

	rec := resolved.Record
	if err := s.cache.Put(ctx, rec); err != nil {
		s.log.Warn("resolve cache write failed", zap.String("tx_hash", txHash.Hex()), zap.Error(err))
	}

	dep := depositFromRecord(rec, models.DepositSourceResolver)
	keyHex := rec.KeyAddress.Hex()
	dep.KeyAddress = &keyHex
	if err := s.deposits.Upsert(ctx, dep); err != nil {
		// the link is already valid on chain; the indexer will record it later
		s.log.Error("failed to persist deposit", zap.String("tx_hash", txHash.Hex()), zap.Uint64("index", rec.Index), zap.Error(err))
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorType:  "sender",
		Action:     models.AuditDepositResolved,
		EntityType: "deposit",
		EntityRef:  fmt.Sprintf("%d", rec.Index),
		Meta:       map[string]any{"tx_hash": txHash.Hex(), "key_address": keyHex},
	})

	_ = s.publisher.Publish(ctx, events.StreamDeposits, events.Event{
		Type: events.EventDepositResolved,
		Key:  txHash.Hex(),
		Payload: map[string]any{
			"index":        rec.Index,
			"block_number": rec.BlockNumber,
			"amount_units": rec.Amount.String(),
		},
	})

	return resolved, nil
}

// known returns the deposit record for txHash from the cache or, failing
// that, from the store when the row already carries its key. Nil means the
// chain has to be asked.
func (s *LinkService) known(ctx context.Context, txHash common.Hash) *claimlink.DepositRecord {
	rec, err := s.cache.Get(ctx, txHash)
	if err != nil {
		s.log.Warn("resolve cache read failed", zap.String("tx_hash", txHash.Hex()), zap.Error(err))
	}
	if rec != nil && rec.KeyAddress != (common.Address{}) {
		return rec
	}

	dep, err := s.deposits.GetByTxHash(ctx, txHash.Hex())
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		return nil
	case err != nil:
		s.log.Warn("deposit lookup by tx failed", zap.String("tx_hash", txHash.Hex()), zap.Error(err))
		return nil
	}
	return recordFromDeposit(dep, s.vault)
}

// checkIntent confirms the deposit is the one the intent was issued for:
// locked to the intent's key and holding the amount it asked for.
func checkIntent(claims *auth.IntentClaims, rec claimlink.DepositRecord) error {
	if rec.KeyAddress != claims.Key() {
		return fmt.Errorf("%w: deposit %d is locked to another key", ErrIntentMismatch, rec.Index)
	}
	want := claims.Amount()
	if want == nil || rec.Amount == nil || rec.Amount.Cmp(want) != 0 {
		return fmt.Errorf("%w: deposit %d holds %v units, intent asked for %s", ErrIntentMismatch, rec.Index, rec.Amount, claims.AmountUnits)
	}
	return nil
}

func (s *LinkService) onResolveFailed(ctx context.Context, txHash common.Hash, cause error) {
	s.log.Warn("deposit resolution failed", zap.String("tx_hash", txHash.Hex()), zap.Error(cause))

	// timeouts are retryable and say nothing about the deposit itself
	if !errors.Is(cause, claimlink.ErrDepositFailed) && !errors.Is(cause, claimlink.ErrDepositEventNotFound) {
		return
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorType:  "sender",
		Action:     models.AuditDepositFailed,
		EntityType: "tx",
		EntityRef:  txHash.Hex(),
		Meta:       map[string]any{"reason": cause.Error()},
	})

	_ = s.publisher.Publish(ctx, events.StreamDeposits, events.Event{
		Type:    events.EventDepositFailed,
		Key:     txHash.Hex(),
		Payload: map[string]any{"reason": cause.Error()},
	})
}

func (s *LinkService) DecodeLink(ctx context.Context, raw string) (*DecodedLink, error) {
	link, err := claimlink.Decode(raw)
	if err != nil {
		return nil, err
	}
	key, err := claimlink.DeriveKey(link.Secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", claimlink.ErrInvalidLink, err)
	}

	out := &DecodedLink{Link: link, KeyAddress: key.Address}
	if link.ChainID == s.vault.ChainID {
		dep, err := s.lookup(ctx, link.Index)
		if err != nil && !errors.Is(err, ErrDepositNotFound) {
			return nil, err
		}
		out.Deposit = dep
	}
	return out, nil
}

// AuthorizeClaim signs the withdrawal of the linked deposit to recipient.
// Deposits already known to be claimed are refused.
func (s *LinkService) AuthorizeClaim(ctx context.Context, raw, recipient string) (*claimlink.ClaimAuthorization, error) {
	link, err := claimlink.Decode(raw)
	if err != nil {
		return nil, err
	}

	if link.ChainID == s.vault.ChainID {
		dep, err := s.lookup(ctx, link.Index)
		switch {
		case err == nil && !models.IsValidDepositTransition(dep.Status, models.DepositStatusClaimed):
			return nil, fmt.Errorf("%w: deposit %d is %s", ErrDepositClaimed, link.Index, dep.Status)
		case err != nil && !errors.Is(err, ErrDepositNotFound):
			s.log.Warn("deposit lookup failed, authorizing anyway", zap.Uint64("index", link.Index), zap.Error(err))
		}
	}

	authz, err := s.authorizer.Authorize(ctx, link, recipient)
	if err != nil {
		return nil, err
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorType:  "recipient",
		Action:     models.AuditClaimAuthorized,
		EntityType: "deposit",
		EntityRef:  fmt.Sprintf("%d", authz.Index),
		Meta:       map[string]any{"recipient": authz.Recipient.Hex()},
	})

	return authz, nil
}

func (s *LinkService) GetDeposit(ctx context.Context, index uint64) (*models.Deposit, error) {
	return s.lookup(ctx, index)
}

func (s *LinkService) lookup(ctx context.Context, index uint64) (*models.Deposit, error) {
	dep, err := s.deposits.GetByIndex(ctx, int64(s.vault.ChainID), s.vault.Address.Hex(), int64(index))
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrDepositNotFound
	}
	if err != nil {
		return nil, err
	}
	return dep, nil
}

func depositFromRecord(rec claimlink.DepositRecord, source string) *models.Deposit {
	amount := "0"
	if rec.Amount != nil {
		amount = rec.Amount.String()
	}
	sender := rec.Sender.Hex()
	return &models.Deposit{
		ChainID:       int64(rec.ChainID),
		VaultAddress:  rec.Vault.Hex(),
		DepositIndex:  int64(rec.Index),
		TxHash:        rec.TxHash.Hex(),
		BlockNumber:   int64(rec.BlockNumber),
		AmountUnits:   amount,
		SenderAddress: &sender,
		Status:        models.DepositStatusDeposited,
		Source:        source,
	}
}

// recordFromDeposit rebuilds a chain record from a stored row. Rows from
// another vault, without a key or with an unparseable amount give nil.
func recordFromDeposit(dep *models.Deposit, vault claimlink.Vault) *claimlink.DepositRecord {
	if dep.KeyAddress == nil || dep.ChainID != int64(vault.ChainID) || common.HexToAddress(dep.VaultAddress) != vault.Address {
		return nil
	}
	amount, ok := new(big.Int).SetString(dep.AmountUnits, 10)
	if !ok {
		return nil
	}
	rec := &claimlink.DepositRecord{
		ChainID:     vault.ChainID,
		Vault:       vault.Address,
		Index:       uint64(dep.DepositIndex),
		BlockNumber: uint64(dep.BlockNumber),
		Amount:      amount,
		TxHash:      common.HexToHash(dep.TxHash),
		KeyAddress:  common.HexToAddress(*dep.KeyAddress),
	}
	if dep.SenderAddress != nil {
		rec.Sender = common.HexToAddress(*dep.SenderAddress)
	}
	return rec
}
