package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/surprise-envelope/backend/internal/claimlink"
)

const (
	lockKeyPrefix    = "resolve:lock:"
	depositKeyPrefix = "resolve:deposit:"
)

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ResolveCache keeps per-transaction resolve locks and the secret-free
// DepositRecord of every resolved transaction.
type ResolveCache struct {
	rdb      *redis.Client
	lockTTL  time.Duration
	valueTTL time.Duration
	log      *zap.Logger
}

func NewResolveCache(rdb *redis.Client, lockTTL, valueTTL time.Duration, log *zap.Logger) *ResolveCache {
	return &ResolveCache{rdb: rdb, lockTTL: lockTTL, valueTTL: valueTTL, log: log}
}

// Lock takes the resolve lock for txHash. ok is false when someone else holds it.
// release is safe to call after the lock expired.
func (c *ResolveCache) Lock(ctx context.Context, txHash common.Hash) (release func(), ok bool, err error) {
	key := lockKeyPrefix + txHash.Hex()
	token := uuid.NewString()

	ok, err = c.rdb.SetNX(ctx, key, token, c.lockTTL).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire resolve lock: %w", err)
	}
	if !ok {
		return func() {}, false, nil
	}

	release = func() {
		// the caller's ctx may already be cancelled
		if err := releaseScript.Run(context.Background(), c.rdb, []string{key}, token).Err(); err != nil {
			c.log.Warn("failed to release resolve lock", zap.String("tx", txHash.Hex()), zap.Error(err))
		}
	}
	return release, true, nil
}

// Get returns the cached record for txHash, or nil when there is none.
func (c *ResolveCache) Get(ctx context.Context, txHash common.Hash) (*claimlink.DepositRecord, error) {
	data, err := c.rdb.Get(ctx, depositKeyPrefix+txHash.Hex()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec claimlink.DepositRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		c.log.Warn("dropping corrupt resolve cache entry", zap.String("tx", txHash.Hex()), zap.Error(err))
		return nil, nil
	}
	return &rec, nil
}

func (c *ResolveCache) Put(ctx context.Context, rec claimlink.DepositRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, depositKeyPrefix+rec.TxHash.Hex(), data, c.valueTTL).Err()
}
