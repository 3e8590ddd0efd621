package subgraph

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"troveScope/internal/model"
	"troveScope/internal/storage"
)

// priceDecimals is the fixed point scale of the price feed.
const priceDecimals = 18

func (p *Processor) handleDebtTokenAdded(ctx context.Context, ev *DebtTokenAdded, log model.LogRecord) error {
	_, err := p.ensureToken(ctx, ev.DebtTokenAddress, true, log)
	return err
}

func (p *Processor) handleCollTokenAdded(ctx context.Context, ev *CollTokenAdded, log model.LogRecord) error {
	_, err := p.ensureToken(ctx, ev.TokenAddress, false, log)
	return err
}

func (p *Processor) handleTokenPriceChanged(ctx context.Context, priceFeed common.Address, ev *TokenPriceChanged, log model.LogRecord) error {
	token, err := p.ensureToken(ctx, ev.Token, false, log)
	if err != nil {
		return err
	}
	price, err := p.reader.Price(ctx, priceFeed, ev.Token, p.blockTag(log))
	if err != nil {
		return err
	}
	token.PriceUSD = decimal.NewFromBigInt(price, -priceDecimals).String()
	token.PriceBlock = log.BlockNumber
	return p.store.UpsertToken(ctx, token)
}

// ensureToken returns the stored token, creating it from ERC20 metadata on
// first sight. A token seen as a debt token stays one and is registered as
// a debt token source, the same state Init rebuilds after a restart.
func (p *Processor) ensureToken(ctx context.Context, addr common.Address, isDebt bool, log model.LogRecord) (*model.Token, error) {
	if isDebt {
		p.registerDebtToken(addr, log)
	}
	token, err := p.store.GetToken(ctx, model.TokenID(addr.Hex()))
	if err == nil {
		if isDebt && !token.IsDebtToken {
			token.IsDebtToken = true
			if err := p.store.UpsertToken(ctx, token); err != nil {
				return nil, err
			}
		}
		return token, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load token: %w", err)
	}

	meta, err := p.reader.CachedTokenMeta(ctx, p.tokenCache, addr, p.logger)
	if err != nil {
		return nil, fmt.Errorf("token metadata %s: %w", addr.Hex(), err)
	}
	token = &model.Token{
		Address:      addr.Hex(),
		Symbol:       meta.Symbol,
		Decimals:     meta.Decimals,
		IsDebtToken:  isDebt,
		CreatedAt:    log.Timestamp,
		CreatedBlock: log.BlockNumber,
	}
	if err := p.store.UpsertToken(ctx, token); err != nil {
		return nil, err
	}
	return token, nil
}

func (p *Processor) registerDebtToken(addr common.Address, log model.LogRecord) {
	if p.registry.Register(addr, RoleDebtToken) {
		p.logger.Info("debt token source added", zap.String("token", addr.Hex()), zap.Uint64("block_number", log.BlockNumber))
	}
}
