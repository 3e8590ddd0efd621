package addrbook

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// PairResolver answers factory.getPair.
type PairResolver interface {
	GetPair(ctx context.Context, factory, tokenA, tokenB common.Address) (common.Address, error)
}

// Resolve looks up every pair through the factory. A pair that is not
// deployed is an error.
func Resolve(ctx context.Context, resolver PairResolver, factory common.Address, tokens []Token, specs []PairSpec, logger *zap.Logger) ([]Pair, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if factory == (common.Address{}) && len(specs) > 0 {
		return nil, fmt.Errorf("swap factory address is required to resolve pairs")
	}
	known := NewBook(nil, tokens, nil)

	pairs := make([]Pair, 0, len(specs))
	for _, spec := range specs {
		a, ok := known.TokenBySymbol(spec.TokenA)
		if !ok {
			return nil, fmt.Errorf("pair %s: unknown token %s", spec.Name(), spec.TokenA)
		}
		b, ok := known.TokenBySymbol(spec.TokenB)
		if !ok {
			return nil, fmt.Errorf("pair %s: unknown token %s", spec.Name(), spec.TokenB)
		}
		addr, err := resolver.GetPair(ctx, factory, a.Address, b.Address)
		if err != nil {
			return nil, fmt.Errorf("pair %s: %w", spec.Name(), err)
		}
		if addr == (common.Address{}) {
			return nil, fmt.Errorf("pair %s is not deployed", spec.Name())
		}
		logger.Info("pair resolved", zap.String("pair", spec.Name()), zap.String("address", addr.Hex()))
		pairs = append(pairs, Pair{Name: spec.Name(), TokenA: spec.TokenA, TokenB: spec.TokenB, Address: addr})
	}
	return pairs, nil
}
