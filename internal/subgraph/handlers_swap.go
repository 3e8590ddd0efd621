package subgraph

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"troveScope/internal/model"
	"troveScope/internal/storage"
)

func (p *Processor) handlePairCreated(ctx context.Context, ev *PairCreated, log model.LogRecord) error {
	for _, token := range []common.Address{ev.Token0, ev.Token1} {
		if _, err := p.ensureToken(ctx, token, false, log); err != nil {
			return err
		}
	}

	pool, err := p.store.GetPool(ctx, model.PoolID(ev.Pair.Hex()))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		pool = &model.Pool{
			Address:      ev.Pair.Hex(),
			Reserve0:     "0",
			Reserve1:     "0",
			TotalSupply:  "0",
			CreatedBlock: log.BlockNumber,
			UpdatedBlock: log.BlockNumber,
		}
	case err != nil:
		return fmt.Errorf("load pool: %w", err)
	}
	pool.Token0 = ev.Token0.Hex()
	pool.Token1 = ev.Token1.Hex()
	if err := p.store.UpsertPool(ctx, pool); err != nil {
		return err
	}

	if p.registry.Register(ev.Pair, RoleSwapPair) {
		p.logger.Info("pair source added", zap.String("pair", ev.Pair.Hex()), zap.Uint64("block_number", log.BlockNumber))
	}
	return nil
}

func (p *Processor) handleSync(ctx context.Context, pair common.Address, ev *Sync, log model.LogRecord) error {
	pool, err := p.loadPool(ctx, pair, log, false)
	if err != nil {
		return err
	}
	supply, err := p.reader.TotalSupply(ctx, pair, p.blockTag(log))
	if err != nil {
		return err
	}
	if ev.Reserve0 != nil {
		pool.Reserve0 = ev.Reserve0.String()
	}
	if ev.Reserve1 != nil {
		pool.Reserve1 = ev.Reserve1.String()
	}
	pool.TotalSupply = supply.String()
	pool.UpdatedBlock = log.BlockNumber
	return p.store.UpsertPool(ctx, pool)
}

func (p *Processor) handlePairTransfer(ctx context.Context, pair common.Address, ev *Transfer, log model.LogRecord) error {
	block := p.blockTag(log)
	for _, user := range []common.Address{ev.From, ev.To} {
		if user == (common.Address{}) {
			continue
		}
		balance, err := p.reader.BalanceOf(ctx, pair, user, block)
		if err != nil {
			return err
		}
		position := &model.Position{
			ID:           model.PositionID(pair.Hex(), user.Hex()),
			Pool:         pair.Hex(),
			User:         user.Hex(),
			Liquidity:    balance.String(),
			UpdatedBlock: log.BlockNumber,
		}
		if err := p.store.UpsertPosition(ctx, position); err != nil {
			return err
		}
	}

	// Mint and burn change the LP supply without a Sync of their own.
	if ev.From == (common.Address{}) || ev.To == (common.Address{}) {
		pool, err := p.loadPool(ctx, pair, log, true)
		if err != nil {
			return err
		}
		supply, err := p.reader.TotalSupply(ctx, pair, block)
		if err != nil {
			return err
		}
		pool.TotalSupply = supply.String()
		pool.UpdatedBlock = log.BlockNumber
		return p.store.UpsertPool(ctx, pool)
	}
	return nil
}

// loadPool returns the stored pool, building it from the pair contract when
// the pair was configured statically and never seen in PairCreated. With
// readReserves the new pool starts from getReserves instead of zero.
func (p *Processor) loadPool(ctx context.Context, pair common.Address, log model.LogRecord, readReserves bool) (*model.Pool, error) {
	pool, err := p.store.GetPool(ctx, model.PoolID(pair.Hex()))
	if err == nil {
		return pool, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load pool: %w", err)
	}
	token0, token1, err := p.reader.PairTokens(ctx, pair)
	if err != nil {
		return nil, err
	}
	pool = &model.Pool{
		Address:      pair.Hex(),
		Token0:       token0.Hex(),
		Token1:       token1.Hex(),
		Reserve0:     "0",
		Reserve1:     "0",
		TotalSupply:  "0",
		CreatedBlock: log.BlockNumber,
		UpdatedBlock: log.BlockNumber,
	}
	if readReserves {
		reserve0, reserve1, err := p.reader.PairReserves(ctx, pair, p.blockTag(log))
		if err != nil {
			return nil, err
		}
		pool.Reserve0 = reserve0.String()
		pool.Reserve1 = reserve1.String()
	}
	return pool, nil
}
