// Package indexer follows the vault's event log and mirrors deposits and
// withdrawals into the deposits table.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/surprise-envelope/backend/internal/claimlink"
	"github.com/surprise-envelope/backend/internal/events"
	"github.com/surprise-envelope/backend/internal/models"
)

const (
	redisCursorBlock = "deposit-indexer:cursor:block"
	redisProcessed   = "deposit-indexer:log:"
	processedTTL     = 7 * 24 * time.Hour
)

// LogSource is the chain access the indexer needs. chain.Backend satisfies it.
type LogSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

type DepositStore interface {
	Upsert(ctx context.Context, d *models.Deposit) error
	MarkClaimed(ctx context.Context, chainID int64, vault string, index int64, claimTxHash, recipient string) (bool, error)
}

type Config struct {
	StartBlock   uint64 // 0 means start at the current head
	BatchBlocks  uint64
	PollInterval time.Duration
}

type Indexer struct {
	vault     claimlink.Vault
	src       LogSource
	store     DepositStore
	publisher events.Publisher
	rdb       *redis.Client
	cfg       Config
	log       *zap.Logger
}

func New(vault claimlink.Vault, src LogSource, store DepositStore, publisher events.Publisher, rdb *redis.Client, cfg Config, log *zap.Logger) *Indexer {
	if cfg.BatchBlocks == 0 {
		cfg.BatchBlocks = 2000
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &Indexer{vault: vault, src: src, store: store, publisher: publisher, rdb: rdb, cfg: cfg, log: log}
}

// Run polls until ctx is cancelled.
func (ix *Indexer) Run(ctx context.Context) error {
	if err := ix.InitCursor(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(ix.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			// drain the backlog before waiting for the next tick
			for {
				n, more, err := ix.PollOnce(ctx)
				if err != nil {
					ix.log.Error("poll cycle failed", zap.Error(err))
					break
				}
				if n > 0 {
					ix.log.Info("vault events indexed", zap.Int("count", n))
				}
				if !more || ctx.Err() != nil {
					break
				}
			}
		}
	}
}

// InitCursor sets the cursor on first run. Without a configured start block
// only blocks produced after startup are indexed.
func (ix *Indexer) InitCursor(ctx context.Context) error {
	existing, err := ix.rdb.Get(ctx, redisCursorBlock).Result()
	if err == nil && existing != "" {
		ix.log.Info("resuming from saved cursor", zap.String("block", existing))
		return nil
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("load cursor: %w", err)
	}

	start := ix.cfg.StartBlock
	if start == 0 {
		head, err := ix.src.BlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("get head block: %w", err)
		}
		start = head + 1
	}

	ix.log.Info("cursor initialized", zap.Uint64("block", start))
	return ix.saveCursor(ctx, start)
}

// PollOnce indexes one batch of blocks starting at the cursor. more reports
// whether the cursor is still behind the head.
func (ix *Indexer) PollOnce(ctx context.Context) (processed int, more bool, err error) {
	from, err := ix.loadCursor(ctx)
	if err != nil {
		return 0, false, err
	}

	head, err := ix.src.BlockNumber(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("get head block: %w", err)
	}
	if from > head {
		return 0, false, nil
	}

	to := from + ix.cfg.BatchBlocks - 1
	if to > head {
		to = head
	}

	logs, err := ix.src.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{ix.vault.Address},
		Topics:    [][]common.Hash{{claimlink.DepositEventID, claimlink.WithdrawEventID}},
	})
	if err != nil {
		return 0, false, fmt.Errorf("filter logs %d-%d: %w", from, to, err)
	}

	sort.Slice(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	for _, l := range logs {
		if l.Removed || len(l.Topics) == 0 {
			continue
		}
		ok, err := ix.processLog(ctx, l)
		if err != nil {
			// cursor stays put so the batch is retried
			return processed, false, err
		}
		if ok {
			processed++
		}
	}

	if err := ix.saveCursor(ctx, to+1); err != nil {
		return processed, false, err
	}
	return processed, to < head, nil
}

func (ix *Indexer) processLog(ctx context.Context, l types.Log) (bool, error) {
	key := fmt.Sprintf("%s%s:%d", redisProcessed, l.TxHash.Hex(), l.Index)
	if ix.rdb.Exists(ctx, key).Val() > 0 {
		return false, nil
	}

	var err error
	switch l.Topics[0] {
	case claimlink.DepositEventID:
		err = ix.onDeposit(ctx, l)
	case claimlink.WithdrawEventID:
		err = ix.onWithdraw(ctx, l)
	default:
		return false, nil
	}
	if err != nil {
		return false, err
	}

	ix.rdb.Set(ctx, key, "1", processedTTL)
	return true, nil
}

func (ix *Indexer) onDeposit(ctx context.Context, l types.Log) error {
	ev, err := claimlink.ParseDepositLog(l)
	if err != nil {
		ix.log.Warn("skipping malformed deposit log", zap.String("tx_hash", l.TxHash.Hex()), zap.Error(err))
		return nil
	}

	amount := "0"
	if ev.Amount != nil {
		amount = ev.Amount.String()
	}
	sender := ev.Sender.Hex()
	dep := &models.Deposit{
		ChainID:       int64(ix.vault.ChainID),
		VaultAddress:  ix.vault.Address.Hex(),
		DepositIndex:  int64(ev.Index),
		TxHash:        ev.TxHash.Hex(),
		BlockNumber:   int64(ev.BlockNumber),
		AmountUnits:   amount,
		SenderAddress: &sender,
		Status:        models.DepositStatusDeposited,
		Source:        models.DepositSourceIndexer,
	}
	if err := ix.store.Upsert(ctx, dep); err != nil {
		return fmt.Errorf("store deposit %d: %w", ev.Index, err)
	}

	ix.log.Info("deposit indexed",
		zap.Uint64("index", ev.Index),
		zap.String("tx_hash", ev.TxHash.Hex()),
		zap.String("amount_units", amount),
	)

	_ = ix.publisher.Publish(ctx, events.StreamDeposits, events.Event{
		Type: events.EventDepositIndexed,
		Key:  ev.TxHash.Hex(),
		Payload: map[string]any{
			"index":        ev.Index,
			"block_number": ev.BlockNumber,
			"amount_units": amount,
		},
	})
	return nil
}

func (ix *Indexer) onWithdraw(ctx context.Context, l types.Log) error {
	ev, err := claimlink.ParseWithdrawLog(l)
	if err != nil {
		ix.log.Warn("skipping malformed withdraw log", zap.String("tx_hash", l.TxHash.Hex()), zap.Error(err))
		return nil
	}

	updated, err := ix.store.MarkClaimed(ctx, int64(ix.vault.ChainID), ix.vault.Address.Hex(), int64(ev.Index), ev.TxHash.Hex(), ev.Recipient.Hex())
	if err != nil {
		return fmt.Errorf("mark deposit %d claimed: %w", ev.Index, err)
	}
	if !updated {
		ix.log.Debug("withdraw for unknown or already claimed deposit", zap.Uint64("index", ev.Index))
		return nil
	}

	ix.log.Info("deposit claimed",
		zap.Uint64("index", ev.Index),
		zap.String("recipient", ev.Recipient.Hex()),
		zap.String("claim_tx_hash", ev.TxHash.Hex()),
	)

	_ = ix.publisher.Publish(ctx, events.StreamDeposits, events.Event{
		Type: events.EventDepositClaimed,
		Key:  ev.TxHash.Hex(),
		Payload: map[string]any{
			"index":     ev.Index,
			"recipient": ev.Recipient.Hex(),
		},
	})
	return nil
}

func (ix *Indexer) loadCursor(ctx context.Context) (uint64, error) {
	val, err := ix.rdb.Get(ctx, redisCursorBlock).Result()
	if errors.Is(err, redis.Nil) {
		return ix.cfg.StartBlock, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load cursor: %w", err)
	}
	return strconv.ParseUint(val, 10, 64)
}

func (ix *Indexer) saveCursor(ctx context.Context, block uint64) error {
	return ix.rdb.Set(ctx, redisCursorBlock, strconv.FormatUint(block, 10), 0).Err()
}
