// Package cache holds shared caches backed by Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"troveScope/internal/contracts"
	"troveScope/internal/model"
)

const tokenMetaPrefix = "tokenmeta:"

// RedisTokenMetaCache shares ERC20 metadata between indexer runs.
type RedisTokenMetaCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ contracts.TokenMetaCache = (*RedisTokenMetaCache)(nil)

// NewRedisTokenMetaCache connects to addr and verifies the connection.
// A zero ttl keeps entries forever; token metadata does not change.
func NewRedisTokenMetaCache(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisTokenMetaCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisTokenMetaCache{client: client, ttl: ttl}, nil
}

func (c *RedisTokenMetaCache) Close() error {
	return c.client.Close()
}

func (c *RedisTokenMetaCache) Get(ctx context.Context, address common.Address) (model.TokenMeta, bool, error) {
	data, err := c.client.Get(ctx, tokenMetaKey(address)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.TokenMeta{}, false, nil
		}
		return model.TokenMeta{}, false, err
	}

	var meta model.TokenMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return model.TokenMeta{}, false, fmt.Errorf("unmarshal token meta: %w", err)
	}
	return meta, true, nil
}

func (c *RedisTokenMetaCache) Set(ctx context.Context, address common.Address, meta model.TokenMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal token meta: %w", err)
	}
	return c.client.Set(ctx, tokenMetaKey(address), data, c.ttl).Err()
}

func tokenMetaKey(address common.Address) string {
	return tokenMetaPrefix + strings.ToLower(address.Hex())
}
