package cache

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"medipay/internal/models"

	"github.com/redis/go-redis/v9"
)

// BalanceTTL is the default lifetime of a cached balance.
const BalanceTTL = 5 * time.Minute

//go:embed lua/set_balance.lua
var luaSetBalance string

type CacheService struct {
	client        *redis.Client
	ttl           time.Duration
	scrSetBalance *redis.Script
}

func NewCacheService(client *redis.Client, ttl time.Duration) *CacheService {
	if ttl <= 0 {
		ttl = BalanceTTL
	}
	return &CacheService{
		client:        client,
		ttl:           ttl,
		scrSetBalance: redis.NewScript(luaSetBalance),
	}
}

func (s *CacheService) Delete(ctx context.Context, keys ...string) error {
	return s.client.Del(ctx, keys...).Err()
}

// Key generation
func (s *CacheService) GenerateKey(entityType, keyType string, value interface{}) string {
	return fmt.Sprintf("%s:%s:%v", entityType, keyType, value)
}

func (s *CacheService) balanceKey(owner models.OwnerRef) string {
	return s.GenerateKey("wallet", "balance", owner.Key())
}

// Balance caching. Each entry is a hash of balance and wallet version; a
// write carrying an older version than the cached one is dropped.
func (s *CacheService) CacheBalance(ctx context.Context, owner models.OwnerRef, balance, version int64) error {
	keys := []string{s.balanceKey(owner)}
	return s.scrSetBalance.Run(ctx, s.client, keys, balance, version, s.ttl.Milliseconds()).Err()
}

func (s *CacheService) GetBalance(ctx context.Context, owner models.OwnerRef) (int64, bool, error) {
	val, err := s.client.HGet(ctx, s.balanceKey(owner), "balance").Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get cached balance: %w", err)
	}
	balance, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt cached balance %q: %w", val, err)
	}
	return balance, true, nil
}

func (s *CacheService) InvalidateBalance(ctx context.Context, owner models.OwnerRef) error {
	return s.Delete(ctx, s.balanceKey(owner))
}

// Close closes the Redis client connection
func (s *CacheService) Close() error {
	return s.client.Close()
}
