package subgraph

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"troveScope/internal/contracts"
	"troveScope/internal/model"
	"troveScope/internal/storage"
)

// troveSnapshot holds the multi-token lists a debt token record is derived
// from. A nil list means the source contract is not configured and the
// corresponding field keeps its stored value.
type troveSnapshot struct {
	debts    []contracts.TokenAmount
	deposits []contracts.TokenAmount
}

func (p *Processor) handleDebtTokenTransfer(ctx context.Context, token common.Address, ev *Transfer, log model.LogRecord) error {
	if _, err := p.ensureToken(ctx, token, true, log); err != nil {
		return err
	}
	for _, holder := range []common.Address{ev.From, ev.To} {
		if holder == (common.Address{}) {
			continue
		}
		snap, err := p.snapshot(ctx, holder, log, true)
		if err != nil {
			return err
		}
		meta, err := p.refreshDebtTokenMeta(ctx, token, holder, snap, nil, log)
		if err != nil {
			return err
		}
		if err := p.store.UpsertDebtTokenMeta(ctx, meta); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) handleTroveDebtChanged(ctx context.Context, troveManager common.Address, ev *TroveDebtChanged, log model.LogRecord) error {
	block := p.blockTag(log)
	debts, err := p.reader.TroveDebt(ctx, troveManager, ev.Borrower, block)
	if err != nil {
		return err
	}
	colls, err := p.reader.TroveColl(ctx, troveManager, ev.Borrower, block)
	if err != nil {
		return err
	}
	snap := troveSnapshot{debts: nonNil(debts)}
	if spm := p.registry.Contracts().StabilityPoolManager; spm != (common.Address{}) {
		deposits, err := p.reader.CompoundedDeposits(ctx, spm, ev.Borrower, block)
		if err != nil {
			return err
		}
		snap.deposits = nonNil(deposits)
	}

	tokens, err := p.borrowerTokens(ctx, ev.Borrower)
	if err != nil {
		return err
	}
	for _, entry := range debts {
		tokens = appendUnique(tokens, entry.TokenAddress)
	}

	metas := make([]model.DebtTokenMeta, 0, len(tokens))
	for _, token := range tokens {
		if _, err := p.ensureToken(ctx, token, true, log); err != nil {
			return err
		}
		meta, err := p.refreshDebtTokenMeta(ctx, token, ev.Borrower, snap, nil, log)
		if err != nil {
			return err
		}
		metas = append(metas, *meta)
	}
	if err := p.store.UpsertDebtTokenMetas(ctx, metas); err != nil {
		return err
	}

	return p.store.PutBorrowerHistory(ctx, &model.BorrowerHistory{
		ID:          model.BorrowerHistoryID(log.BlockNumber, log.LogIndex),
		Borrower:    ev.Borrower.Hex(),
		Event:       EventTroveDebtChanged,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		Timestamp:   log.Timestamp,
		Debts:       contracts.ToModel(debts),
		Collaterals: contracts.ToModel(colls),
	})
}

func (p *Processor) handleStabilityDepositChanged(ctx context.Context, ev *StabilityDepositChanged, log model.LogRecord) error {
	if _, err := p.ensureToken(ctx, ev.Token, true, log); err != nil {
		return err
	}
	snap, err := p.snapshot(ctx, ev.Depositor, log, false)
	if err != nil {
		return err
	}
	amount := ev.DepositAmount
	if amount == nil {
		amount = new(big.Int)
	}
	meta, err := p.refreshDebtTokenMeta(ctx, ev.Token, ev.Depositor, snap, amount, log)
	if err != nil {
		return err
	}
	return p.store.UpsertDebtTokenMeta(ctx, meta)
}

func (p *Processor) handleStabilityGainsWithdrawn(ctx context.Context, stabilityPoolManager common.Address, ev *StabilityGainsWithdrawn, log model.LogRecord) error {
	block := p.blockTag(log)
	deposits, err := p.reader.CompoundedDeposits(ctx, stabilityPoolManager, ev.Depositor, block)
	if err != nil {
		return err
	}
	snap := troveSnapshot{deposits: nonNil(deposits)}
	if tm := p.registry.Contracts().TroveManager; tm != (common.Address{}) {
		debts, err := p.reader.TroveDebt(ctx, tm, ev.Depositor, block)
		if err != nil {
			return err
		}
		snap.debts = nonNil(debts)
	}

	// Tokens indexed earlier but absent from the list have a zero deposit now.
	tokens, err := p.borrowerTokens(ctx, ev.Depositor)
	if err != nil {
		return err
	}
	for _, entry := range deposits {
		tokens = appendUnique(tokens, entry.TokenAddress)
	}

	metas := make([]model.DebtTokenMeta, 0, len(tokens))
	for _, token := range tokens {
		if _, err := p.ensureToken(ctx, token, true, log); err != nil {
			return err
		}
		meta, err := p.refreshDebtTokenMeta(ctx, token, ev.Depositor, snap, nil, log)
		if err != nil {
			return err
		}
		metas = append(metas, *meta)
	}
	return p.store.UpsertDebtTokenMetas(ctx, metas)
}

// snapshot reads the borrower's trove debt and, when withDeposits is set,
// the compounded stability deposits from the configured contracts.
func (p *Processor) snapshot(ctx context.Context, borrower common.Address, log model.LogRecord, withDeposits bool) (troveSnapshot, error) {
	var snap troveSnapshot
	block := p.blockTag(log)
	c := p.registry.Contracts()
	if c.TroveManager != (common.Address{}) {
		debts, err := p.reader.TroveDebt(ctx, c.TroveManager, borrower, block)
		if err != nil {
			return snap, err
		}
		snap.debts = nonNil(debts)
	}
	if withDeposits && c.StabilityPoolManager != (common.Address{}) {
		deposits, err := p.reader.CompoundedDeposits(ctx, c.StabilityPoolManager, borrower, block)
		if err != nil {
			return snap, err
		}
		snap.deposits = nonNil(deposits)
	}
	return snap, nil
}

// refreshDebtTokenMeta loads or creates the (token, borrower) record and
// overwrites it from contract state. stabilityOverride, when set, replaces
// the stability deposit read from the snapshot.
func (p *Processor) refreshDebtTokenMeta(
	ctx context.Context,
	token, borrower common.Address,
	snap troveSnapshot,
	stabilityOverride *big.Int,
	log model.LogRecord,
) (*model.DebtTokenMeta, error) {
	id := model.DebtTokenMetaID(token.Hex(), borrower.Hex())
	meta, err := p.store.GetDebtTokenMeta(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		meta = model.NewDebtTokenMeta(token.Hex(), borrower.Hex())
	} else if err != nil {
		return nil, fmt.Errorf("load debt token meta: %w", err)
	}

	wallet, err := p.reader.BalanceOf(ctx, token, borrower, p.blockTag(log))
	if err != nil {
		return nil, err
	}
	meta.WalletAmount = wallet.String()

	if snap.debts != nil {
		meta.TroveMintedAmount = p.lookup(snap.debts, token, borrower, "trove debt").String()
	}
	switch {
	case stabilityOverride != nil:
		meta.StabilityDeposit = stabilityOverride.String()
	case snap.deposits != nil:
		meta.StabilityDeposit = p.lookup(snap.deposits, token, borrower, "stability deposit").String()
	}

	meta.LastBlock = log.BlockNumber
	meta.Timestamp = log.Timestamp
	return meta, nil
}

// lookup finds token in list; a missing token means a zero amount.
func (p *Processor) lookup(list []contracts.TokenAmount, token, borrower common.Address, what string) *big.Int {
	amount, ok := contracts.FindTokenAmount(list, token.Hex())
	if !ok {
		p.logger.Debug("token not in list, using zero",
			zap.String("list", what),
			zap.String("token", token.Hex()),
			zap.String("borrower", borrower.Hex()),
		)
		return new(big.Int)
	}
	return amount
}

// borrowerTokens lists the debt tokens already indexed for borrower.
func (p *Processor) borrowerTokens(ctx context.Context, borrower common.Address) ([]common.Address, error) {
	var tokens []common.Address
	page := storage.Page{Limit: 500}
	for {
		metas, err := p.store.ListDebtTokenMetas(ctx, borrower.Hex(), page)
		if err != nil {
			return nil, fmt.Errorf("list borrower tokens: %w", err)
		}
		for _, m := range metas {
			tokens = appendUnique(tokens, common.HexToAddress(m.Token))
		}
		if len(metas) < page.Limit {
			return tokens, nil
		}
		page.After = metas[len(metas)-1].ID
	}
}

func appendUnique(list []common.Address, addr common.Address) []common.Address {
	for _, v := range list {
		if v == addr {
			return list
		}
	}
	return append(list, addr)
}

func nonNil(list []contracts.TokenAmount) []contracts.TokenAmount {
	if list == nil {
		return []contracts.TokenAmount{}
	}
	return list
}
