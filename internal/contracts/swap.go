package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PairTokens returns token0 and token1 of a swap pair.
func (r *Reader) PairTokens(ctx context.Context, pair common.Address) (common.Address, common.Address, error) {
	parsed, err := SwapPairABI()
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	values, err := r.call(ctx, pair, parsed, "token0", nil)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	token0, err := asAddress(values[0])
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("token0: %w", err)
	}
	values, err = r.call(ctx, pair, parsed, "token1", nil)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	token1, err := asAddress(values[0])
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("token1: %w", err)
	}
	return token0, token1, nil
}

// PairReserves returns the pair's reserves at block.
func (r *Reader) PairReserves(ctx context.Context, pair common.Address, block *big.Int) (*big.Int, *big.Int, error) {
	parsed, err := SwapPairABI()
	if err != nil {
		return nil, nil, err
	}
	values, err := r.call(ctx, pair, parsed, "getReserves", block)
	if err != nil {
		return nil, nil, err
	}
	if len(values) < 2 {
		return nil, nil, fmt.Errorf("getReserves return size %d", len(values))
	}
	reserve0, err := AsBigInt(values[0])
	if err != nil {
		return nil, nil, fmt.Errorf("reserve0: %w", err)
	}
	reserve1, err := AsBigInt(values[1])
	if err != nil {
		return nil, nil, fmt.Errorf("reserve1: %w", err)
	}
	return reserve0, reserve1, nil
}

// GetPair resolves the pair address for two tokens through the swap factory.
// The zero address means no pair was deployed.
func (r *Reader) GetPair(ctx context.Context, factory, tokenA, tokenB common.Address) (common.Address, error) {
	parsed, err := SwapFactoryABI()
	if err != nil {
		return common.Address{}, err
	}
	values, err := r.call(ctx, factory, parsed, "getPair", nil, tokenA, tokenB)
	if err != nil {
		return common.Address{}, err
	}
	return asAddress(values[0])
}
