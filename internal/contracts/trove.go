package contracts

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"troveScope/internal/model"
)

// TokenAmount mirrors the protocol's TokenAmount struct. Field names must
// match the ABI tuple components for unpacking.
type TokenAmount struct {
	TokenAddress common.Address
	Amount       *big.Int
}

// FindTokenAmount scans list for the entry whose token address equals token,
// comparing lowercase hex. ok is false when the token is not present.
func FindTokenAmount(list []TokenAmount, token string) (*big.Int, bool) {
	target := strings.ToLower(strings.TrimSpace(token))
	for _, entry := range list {
		if strings.ToLower(entry.TokenAddress.Hex()) == target {
			if entry.Amount == nil {
				return new(big.Int), true
			}
			return new(big.Int).Set(entry.Amount), true
		}
	}
	return nil, false
}

// ToModel converts a token amount list into its stored form.
func ToModel(list []TokenAmount) []model.TokenAmount {
	out := make([]model.TokenAmount, 0, len(list))
	for _, entry := range list {
		amount := "0"
		if entry.Amount != nil {
			amount = entry.Amount.String()
		}
		out = append(out, model.TokenAmount{Token: entry.TokenAddress.Hex(), Amount: amount})
	}
	return out
}

// TroveDebt returns the borrower's per-token debt list.
func (r *Reader) TroveDebt(ctx context.Context, troveManager, borrower common.Address, block *big.Int) ([]TokenAmount, error) {
	parsed, err := TroveManagerABI()
	if err != nil {
		return nil, err
	}
	return r.tokenAmounts(ctx, troveManager, parsed, "getTroveDebt", block, borrower)
}

// TroveColl returns the borrower's per-token collateral list.
func (r *Reader) TroveColl(ctx context.Context, troveManager, borrower common.Address, block *big.Int) ([]TokenAmount, error) {
	parsed, err := TroveManagerABI()
	if err != nil {
		return nil, err
	}
	return r.tokenAmounts(ctx, troveManager, parsed, "getTroveColl", block, borrower)
}

// CompoundedDeposits returns the depositor's stability pool deposits per debt token.
func (r *Reader) CompoundedDeposits(ctx context.Context, stabilityPoolManager, depositor common.Address, block *big.Int) ([]TokenAmount, error) {
	parsed, err := StabilityPoolManagerABI()
	if err != nil {
		return nil, err
	}
	return r.tokenAmounts(ctx, stabilityPoolManager, parsed, "getCompoundedDeposits", block, depositor)
}

func (r *Reader) tokenAmounts(ctx context.Context, to common.Address, parsed abi.ABI, method string, block *big.Int, args ...interface{}) ([]TokenAmount, error) {
	resp, err := r.callRaw(ctx, to, parsed, method, block, args...)
	if err != nil {
		return nil, err
	}
	var out []TokenAmount
	if err := parsed.UnpackIntoInterface(&out, method, resp); err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return out, nil
}

// Price returns the 18-decimal USD price the feed reports for token.
func (r *Reader) Price(ctx context.Context, priceFeed, token common.Address, block *big.Int) (*big.Int, error) {
	parsed, err := PriceFeedABI()
	if err != nil {
		return nil, err
	}
	values, err := r.call(ctx, priceFeed, parsed, "getPrice", block, token)
	if err != nil {
		return nil, err
	}
	return AsBigInt(values[0])
}
