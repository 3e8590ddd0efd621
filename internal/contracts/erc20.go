package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"troveScope/internal/model"
)

// TokenMeta loads ERC20 metadata. decimals is required; symbol and name fall
// back to the bytes32 encoding used by older tokens and are left empty when
// neither form answers.
func (r *Reader) TokenMeta(ctx context.Context, token common.Address, logger *zap.Logger) (model.TokenMeta, error) {
	meta := model.TokenMeta{Address: token.Hex()}
	if logger == nil {
		logger = zap.NewNop()
	}

	stringABI, err := ERC20ABI()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 abi: %w", err)
	}
	bytes32ABI, err := ERC20Bytes32ABI()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	values, err := r.call(ctx, token, stringABI, "decimals", nil)
	if err != nil {
		return meta, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return meta, err
	}
	meta.Decimals = decimals

	meta.Symbol = r.metadataString(ctx, token, stringABI, bytes32ABI, "symbol", logger)
	meta.Name = r.metadataString(ctx, token, stringABI, bytes32ABI, "name", logger)
	return meta, nil
}

func (r *Reader) metadataString(ctx context.Context, token common.Address, stringABI, bytes32ABI abi.ABI, method string, logger *zap.Logger) string {
	if values, err := r.call(ctx, token, stringABI, method, nil); err == nil {
		if s, ok := values[0].(string); ok {
			return s
		}
	}
	values, err := r.call(ctx, token, bytes32ABI, method, nil)
	if err != nil {
		logger.Debug(method+" call failed", zap.String("token", token.Hex()), zap.Error(err))
		return ""
	}
	s, _ := bytes32ToString(values[0])
	return s
}

// BalanceOf returns token.balanceOf(owner) at block.
func (r *Reader) BalanceOf(ctx context.Context, token, owner common.Address, block *big.Int) (*big.Int, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, err
	}
	values, err := r.call(ctx, token, parsed, "balanceOf", block, owner)
	if err != nil {
		return nil, err
	}
	return AsBigInt(values[0])
}

// TotalSupply returns token.totalSupply() at block.
func (r *Reader) TotalSupply(ctx context.Context, token common.Address, block *big.Int) (*big.Int, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, err
	}
	values, err := r.call(ctx, token, parsed, "totalSupply", block)
	if err != nil {
		return nil, err
	}
	return AsBigInt(values[0])
}
