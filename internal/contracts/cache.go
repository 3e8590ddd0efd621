package contracts

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"troveScope/internal/model"
)

// TokenMetaCache stores ERC20 metadata by token address.
type TokenMetaCache interface {
	Get(ctx context.Context, address common.Address) (model.TokenMeta, bool, error)
	Set(ctx context.Context, address common.Address, meta model.TokenMeta) error
}

// MemoryTokenMetaCache caches token metadata in process memory.
type MemoryTokenMetaCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.TokenMeta
}

func NewMemoryTokenMetaCache() *MemoryTokenMetaCache {
	return &MemoryTokenMetaCache{data: make(map[common.Address]model.TokenMeta)}
}

func (c *MemoryTokenMetaCache) Get(_ context.Context, address common.Address) (model.TokenMeta, bool, error) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok, nil
}

func (c *MemoryTokenMetaCache) Set(_ context.Context, address common.Address, meta model.TokenMeta) error {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
	return nil
}

// CachedTokenMeta returns metadata from cache, loading and storing it on a miss.
// Cache failures are logged and fall through to the chain.
func (r *Reader) CachedTokenMeta(ctx context.Context, cache TokenMetaCache, token common.Address, logger *zap.Logger) (model.TokenMeta, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cache != nil {
		meta, ok, err := cache.Get(ctx, token)
		if err != nil {
			logger.Warn("token meta cache get", zap.String("token", token.Hex()), zap.Error(err))
		} else if ok {
			return meta, nil
		}
	}

	meta, err := r.TokenMeta(ctx, token, logger)
	if err != nil {
		return meta, err
	}
	if cache != nil {
		if err := cache.Set(ctx, token, meta); err != nil {
			logger.Warn("token meta cache set", zap.String("token", token.Hex()), zap.Error(err))
		}
	}
	return meta, nil
}
