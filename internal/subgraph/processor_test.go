package subgraph

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"troveScope/internal/contracts"
	"troveScope/internal/model"
	"troveScope/internal/storage"
)

func TestDebtTokenAddedRegistersSourceAndTransferUpdatesMeta(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	added := f.eventLog(f.abi(contracts.TokenManagerABI), EventDebtTokenAdded, tokenManager, 10, 0, nil, debtToken)
	require.NoError(t, f.proc.HandleLog(ctx, added))

	token, err := f.store.GetToken(ctx, debtToken.Hex())
	require.NoError(t, err)
	assert.True(t, token.IsDebtToken)
	assert.Equal(t, "USDX", token.Symbol)
	assert.Equal(t, uint64(10), token.CreatedBlock)

	role, ok := f.registry.Role(debtToken)
	require.True(t, ok)
	assert.Equal(t, RoleDebtToken, role)

	f.balances(debtToken, map[common.Address]int64{borrower: 700})
	f.troveDebt(amount(collToken, 1), amount(debtToken, 500))
	f.deposits(amount(debtToken, 200))

	transfer := f.eventLog(f.abi(contracts.ERC20ABI), EventTransfer, debtToken, 11, 3,
		[]common.Hash{addrTopic(common.Address{}), addrTopic(borrower)}, big.NewInt(700))
	require.NoError(t, f.proc.HandleLog(ctx, transfer))

	meta, err := f.store.GetDebtTokenMeta(ctx, model.DebtTokenMetaID(debtToken.Hex(), borrower.Hex()))
	require.NoError(t, err)
	assert.Equal(t, "700", meta.WalletAmount)
	assert.Equal(t, "500", meta.TroveMintedAmount)
	assert.Equal(t, "200", meta.StabilityDeposit)
	assert.Equal(t, uint64(11), meta.LastBlock)
	assert.Equal(t, borrower.Hex(), meta.Borrower)

	_, err = f.store.GetDebtTokenMeta(ctx, model.DebtTokenMetaID(debtToken.Hex(), common.Address{}.Hex()))
	assert.ErrorIs(t, err, storage.ErrNotFound, "zero address must not get a record")
}

func TestTroveDebtChangedRefreshesListedAndKnownTokens(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	stale := model.NewDebtTokenMeta(debtToken2.Hex(), borrower.Hex())
	stale.TroveMintedAmount = "999"
	require.NoError(t, f.store.UpsertDebtTokenMeta(ctx, stale))

	f.balances(debtToken, map[common.Address]int64{borrower: 40})
	f.balances(debtToken2, map[common.Address]int64{borrower: 3})
	f.troveDebt(amount(debtToken, 100))
	f.troveColl(amount(collToken, 5))
	f.deposits()

	log := f.eventLog(f.abi(contracts.TroveManagerABI), EventTroveDebtChanged, troveManager, 20, 7,
		[]common.Hash{addrTopic(borrower)})
	require.NoError(t, f.proc.HandleLog(ctx, log))

	metas, err := f.store.ListDebtTokenMetas(ctx, borrower.Hex(), storage.Page{})
	require.NoError(t, err)
	require.Len(t, metas, 2)
	byToken := map[string]model.DebtTokenMeta{}
	for _, m := range metas {
		byToken[m.Token] = m
	}

	listed := byToken[debtToken.Hex()]
	assert.Equal(t, "40", listed.WalletAmount)
	assert.Equal(t, "100", listed.TroveMintedAmount)
	assert.Equal(t, "0", listed.StabilityDeposit)

	known := byToken[debtToken2.Hex()]
	assert.Equal(t, "3", known.WalletAmount)
	assert.Equal(t, "0", known.TroveMintedAmount, "token missing from trove means nothing minted")

	history, err := f.store.ListBorrowerHistory(ctx, borrower.Hex(), storage.Page{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.BorrowerHistoryID(20, 7), history[0].ID)
	assert.Equal(t, []model.TokenAmount{{Token: debtToken.Hex(), Amount: "100"}}, history[0].Debts)
	assert.Equal(t, []model.TokenAmount{{Token: collToken.Hex(), Amount: "5"}}, history[0].Collaterals)
	assert.Equal(t, EventTroveDebtChanged, history[0].Event)
}

func TestStabilityDepositChangedUsesEventAmount(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	f.balances(debtToken, map[common.Address]int64{borrower: 1})
	f.troveDebt(amount(debtToken, 50))
	f.deposits(amount(debtToken, 999))

	log := f.eventLog(f.abi(contracts.StabilityPoolManagerABI), EventStabilityDepositChanged, stabilityMgr, 30, 0,
		[]common.Hash{addrTopic(borrower), addrTopic(debtToken)}, big.NewInt(123))
	require.NoError(t, f.proc.HandleLog(ctx, log))

	meta, err := f.store.GetDebtTokenMeta(ctx, model.DebtTokenMetaID(debtToken.Hex(), borrower.Hex()))
	require.NoError(t, err)
	assert.Equal(t, "123", meta.StabilityDeposit)
	assert.Equal(t, "50", meta.TroveMintedAmount)
	assert.Equal(t, 0, f.caller.Calls(stabilityMgr, "getCompoundedDeposits"))
}

func TestStabilityGainsWithdrawnMergesEveryDeposit(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	f.balances(debtToken, map[common.Address]int64{borrower: 10})
	f.balances(debtToken2, map[common.Address]int64{borrower: 20})
	f.troveDebt(amount(debtToken, 5))
	f.deposits(amount(debtToken, 300), amount(debtToken2, 400))

	log := f.eventLog(f.abi(contracts.StabilityPoolManagerABI), EventStabilityGainsWithdrawn, stabilityMgr, 40, 1,
		[]common.Hash{addrTopic(borrower)})
	require.NoError(t, f.proc.HandleLog(ctx, log))

	first, err := f.store.GetDebtTokenMeta(ctx, model.DebtTokenMetaID(debtToken.Hex(), borrower.Hex()))
	require.NoError(t, err)
	assert.Equal(t, "300", first.StabilityDeposit)
	assert.Equal(t, "5", first.TroveMintedAmount)

	second, err := f.store.GetDebtTokenMeta(ctx, model.DebtTokenMetaID(debtToken2.Hex(), borrower.Hex()))
	require.NoError(t, err)
	assert.Equal(t, "400", second.StabilityDeposit)
	assert.Equal(t, "0", second.TroveMintedAmount)
	assert.Equal(t, "20", second.WalletAmount)
}

func TestStabilityGainsWithdrawnZeroesDepositsGoneFromList(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	spmABI := f.abi(contracts.StabilityPoolManagerABI)

	f.balances(debtToken, map[common.Address]int64{borrower: 10})
	f.balances(debtToken2, map[common.Address]int64{borrower: 20})
	f.troveDebt()
	f.deposits(amount(debtToken, 300), amount(debtToken2, 400))
	require.NoError(t, f.proc.HandleLog(ctx, f.eventLog(spmABI, EventStabilityGainsWithdrawn, stabilityMgr, 40, 1,
		[]common.Hash{addrTopic(borrower)})))

	f.deposits(amount(debtToken, 300))
	require.NoError(t, f.proc.HandleLog(ctx, f.eventLog(spmABI, EventStabilityGainsWithdrawn, stabilityMgr, 41, 0,
		[]common.Hash{addrTopic(borrower)})))

	gone, err := f.store.GetDebtTokenMeta(ctx, model.DebtTokenMetaID(debtToken2.Hex(), borrower.Hex()))
	require.NoError(t, err)
	assert.Equal(t, "0", gone.StabilityDeposit)
	assert.Equal(t, uint64(41), gone.LastBlock)

	kept, err := f.store.GetDebtTokenMeta(ctx, model.DebtTokenMetaID(debtToken.Hex(), borrower.Hex()))
	require.NoError(t, err)
	assert.Equal(t, "300", kept.StabilityDeposit)
}

func TestDebtTokenSeenInTroveIsSourceBeforeAndAfterRestart(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	f.balances(debtToken, map[common.Address]int64{borrower: 70, other: 30})
	f.troveDebt(amount(debtToken, 100))
	f.troveColl(amount(collToken, 5))
	f.deposits()
	require.NoError(t, f.proc.HandleLog(ctx, f.eventLog(f.abi(contracts.TroveManagerABI), EventTroveDebtChanged, troveManager, 20, 0,
		[]common.Hash{addrTopic(borrower)})))

	role, ok := f.registry.Role(debtToken)
	require.True(t, ok, "debt token listed in a trove must become a source")
	assert.Equal(t, RoleDebtToken, role)

	transfer := f.eventLog(f.abi(contracts.ERC20ABI), EventTransfer, debtToken, 21, 0,
		[]common.Hash{addrTopic(borrower), addrTopic(other)}, big.NewInt(30))
	require.NoError(t, f.proc.HandleLog(ctx, transfer))
	id := model.DebtTokenMetaID(debtToken.Hex(), other.Hex())
	live, err := f.store.GetDebtTokenMeta(ctx, id)
	require.NoError(t, err)

	restarted, err := NewProcessor(Options{
		Registry: NewRegistry(f.registry.Contracts()),
		Reader:   contracts.NewReader(f.caller, nil),
		Store:    f.store,
	})
	require.NoError(t, err)
	require.NoError(t, restarted.Init(ctx))
	require.NoError(t, restarted.HandleLog(ctx, transfer))

	replayed, err := f.store.GetDebtTokenMeta(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, live, replayed)
	assert.Equal(t, "30", replayed.WalletAmount)
}

func TestTokenPriceChangedStoresDecimalPrice(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	price, _ := new(big.Int).SetString("1500000000000000000", 10)
	f.caller.Handle(priceFeed, f.abi(contracts.PriceFeedABI), "getPrice", func(args []interface{}, block *big.Int) ([]interface{}, error) {
		require.Equal(t, collToken, args[0].(common.Address))
		require.Equal(t, int64(50), block.Int64())
		return []interface{}{price}, nil
	})

	log := f.eventLog(f.abi(contracts.PriceFeedABI), EventTokenPriceChanged, priceFeed, 50, 0,
		[]common.Hash{addrTopic(collToken)})
	require.NoError(t, f.proc.HandleLog(ctx, log))

	token, err := f.store.GetToken(ctx, collToken.Hex())
	require.NoError(t, err)
	assert.Equal(t, "1.5", token.PriceUSD)
	assert.Equal(t, uint64(50), token.PriceBlock)
	assert.False(t, token.IsDebtToken)
}

func TestPairLifecycle(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	pairABI := f.abi(contracts.SwapPairABI)

	created := f.eventLog(f.abi(contracts.SwapFactoryABI), EventPairCreated, swapFactory, 60, 0,
		[]common.Hash{addrTopic(collToken), addrTopic(debtToken)}, pair, big.NewInt(1))
	require.NoError(t, f.proc.HandleLog(ctx, created))

	role, ok := f.registry.Role(pair)
	require.True(t, ok)
	assert.Equal(t, RoleSwapPair, role)

	f.caller.Returns(pair, pairABI, "totalSupply", big.NewInt(1000))
	f.caller.Handle(pair, pairABI, "balanceOf", func(args []interface{}, _ *big.Int) ([]interface{}, error) {
		if args[0].(common.Address) == borrower {
			return []interface{}{big.NewInt(900)}, nil
		}
		return []interface{}{big.NewInt(0)}, nil
	})

	mint := f.eventLog(pairABI, EventTransfer, pair, 61, 0,
		[]common.Hash{addrTopic(common.Address{}), addrTopic(borrower)}, big.NewInt(900))
	sync := f.eventLog(pairABI, EventSync, pair, 61, 1, nil, big.NewInt(5000), big.NewInt(7000))
	require.NoError(t, f.proc.PutLogBatch(ctx, []model.LogRecord{mint, sync}))

	pool, err := f.store.GetPool(ctx, pair.Hex())
	require.NoError(t, err)
	assert.Equal(t, collToken.Hex(), pool.Token0)
	assert.Equal(t, debtToken.Hex(), pool.Token1)
	assert.Equal(t, "5000", pool.Reserve0)
	assert.Equal(t, "7000", pool.Reserve1)
	assert.Equal(t, "1000", pool.TotalSupply)
	assert.Equal(t, uint64(60), pool.CreatedBlock)
	assert.Equal(t, uint64(61), pool.UpdatedBlock)

	positions, err := f.store.ListPositions(ctx, borrower.Hex(), storage.Page{})
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "900", positions[0].Liquidity)

	tokens, err := f.store.ListTokens(ctx, storage.Page{})
	require.NoError(t, err)
	assert.Len(t, tokens, 2)
}

func TestSyncOnStaticPairLoadsTokens(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	pairABI := f.abi(contracts.SwapPairABI)
	f.registry.Register(pair, RoleSwapPair)

	f.caller.Returns(pair, pairABI, "token0", collToken)
	f.caller.Returns(pair, pairABI, "token1", debtToken)
	f.caller.Returns(pair, pairABI, "totalSupply", big.NewInt(77))

	log := f.eventLog(pairABI, EventSync, pair, 70, 0, nil, big.NewInt(1), big.NewInt(2))
	require.NoError(t, f.proc.HandleLog(ctx, log))

	pool, err := f.store.GetPool(ctx, pair.Hex())
	require.NoError(t, err)
	assert.Equal(t, collToken.Hex(), pool.Token0)
	assert.Equal(t, "77", pool.TotalSupply)
	assert.Zero(t, f.caller.Calls(pair, "getReserves"), "Sync carries the reserves")
}

func TestMintOnStaticPairReadsReserves(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	pairABI := f.abi(contracts.SwapPairABI)
	f.registry.Register(pair, RoleSwapPair)

	f.caller.Returns(pair, pairABI, "token0", collToken)
	f.caller.Returns(pair, pairABI, "token1", debtToken)
	f.caller.Returns(pair, pairABI, "totalSupply", big.NewInt(50))
	f.caller.Returns(pair, pairABI, "balanceOf", big.NewInt(50))
	f.caller.Returns(pair, pairABI, "getReserves", big.NewInt(11), big.NewInt(22), uint32(0))

	mint := f.eventLog(pairABI, EventTransfer, pair, 80, 0,
		[]common.Hash{addrTopic(common.Address{}), addrTopic(borrower)}, big.NewInt(50))
	require.NoError(t, f.proc.HandleLog(ctx, mint))

	pool, err := f.store.GetPool(ctx, pair.Hex())
	require.NoError(t, err)
	assert.Equal(t, "11", pool.Reserve0)
	assert.Equal(t, "22", pool.Reserve1)
	assert.Equal(t, "50", pool.TotalSupply)
	assert.Equal(t, 1, f.caller.Calls(pair, "getReserves"))
}

func TestHandleLogSkips(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	tm := f.abi(contracts.TroveManagerABI)

	unknown := f.eventLog(tm, EventTroveDebtChanged, other, 1, 0, []common.Hash{addrTopic(borrower)})
	require.NoError(t, f.proc.HandleLog(ctx, unknown))

	removed := f.eventLog(tm, EventTroveDebtChanged, troveManager, 1, 1, []common.Hash{addrTopic(borrower)})
	removed.Removed = true
	require.NoError(t, f.proc.HandleLog(ctx, removed))

	malformed := f.eventLog(f.abi(contracts.StabilityPoolManagerABI), EventStabilityDepositChanged, stabilityMgr, 1, 2,
		[]common.Hash{addrTopic(borrower), addrTopic(debtToken)}, big.NewInt(1))
	malformed.Data = "0x1234"
	require.NoError(t, f.proc.HandleLog(ctx, malformed))

	wrongRole := f.eventLog(tm, EventTroveDebtChanged, priceFeed, 1, 3, []common.Hash{addrTopic(borrower)})
	require.NoError(t, f.proc.HandleLog(ctx, wrongRole))

	history, err := f.store.ListBorrowerHistory(ctx, borrower.Hex(), storage.Page{})
	require.NoError(t, err)
	assert.Empty(t, history)

	expected := `
# HELP test_events_skipped_total Logs skipped before reaching a handler, by reason.
# TYPE test_events_skipped_total counter
test_events_skipped_total{reason="decode_error"} 1
test_events_skipped_total{reason="removed"} 1
test_events_skipped_total{reason="unhandled_event"} 1
test_events_skipped_total{reason="unknown_source"} 1
`
	require.NoError(t, testutil.GatherAndCompare(f.metrics.Registry(), strings.NewReader(expected), "test_events_skipped_total"))
}

func TestContractFailureAbortsBatch(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	// no getTroveDebt handler: the call reverts
	log := f.eventLog(f.abi(contracts.TroveManagerABI), EventTroveDebtChanged, troveManager, 5, 0,
		[]common.Hash{addrTopic(borrower)})
	err := f.proc.PutLogBatch(ctx, []model.LogRecord{log})
	require.Error(t, err)
	assert.Contains(t, err.Error(), EventTroveDebtChanged)
	expected := `
# HELP test_events_failed_total Logs whose handler failed, by event name.
# TYPE test_events_failed_total counter
test_events_failed_total{event="TroveDebtChanged"} 1
`
	require.NoError(t, testutil.GatherAndCompare(f.metrics.Registry(), strings.NewReader(expected), "test_events_failed_total"))
}

func TestReplayIsIdempotent(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	f.balances(debtToken, map[common.Address]int64{borrower: 40})
	f.troveDebt(amount(debtToken, 100))
	f.troveColl(amount(collToken, 5))
	f.deposits(amount(debtToken, 7))

	logs := []model.LogRecord{
		f.eventLog(f.abi(contracts.TokenManagerABI), EventDebtTokenAdded, tokenManager, 1, 0, nil, debtToken),
		f.eventLog(f.abi(contracts.TroveManagerABI), EventTroveDebtChanged, troveManager, 2, 0, []common.Hash{addrTopic(borrower)}),
		f.eventLog(f.abi(contracts.ERC20ABI), EventTransfer, debtToken, 2, 1,
			[]common.Hash{addrTopic(common.Address{}), addrTopic(borrower)}, big.NewInt(40)),
	}
	require.NoError(t, f.proc.PutLogBatch(ctx, logs))
	first := snapshotStore(t, f)
	require.NoError(t, f.proc.PutLogBatch(ctx, logs))
	assert.Equal(t, first, snapshotStore(t, f))
}

func TestCallAtLatestUsesNilBlock(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	var blocks []*big.Int
	f.caller.Handle(debtToken, f.abi(contracts.ERC20ABI), "balanceOf", func(_ []interface{}, block *big.Int) ([]interface{}, error) {
		blocks = append(blocks, block)
		return []interface{}{big.NewInt(1)}, nil
	})
	f.troveDebt()
	f.deposits()
	f.registry.Register(debtToken, RoleDebtToken)

	log := f.eventLog(f.abi(contracts.ERC20ABI), EventTransfer, debtToken, 9, 0,
		[]common.Hash{addrTopic(borrower), addrTopic(other)}, big.NewInt(1))
	require.NoError(t, f.proc.HandleLog(ctx, log))

	require.Len(t, blocks, 2)
	for _, b := range blocks {
		assert.Nil(t, b)
	}
}

func TestInitRestoresDynamicSources(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	require.NoError(t, f.store.UpsertToken(ctx, &model.Token{Address: debtToken.Hex(), IsDebtToken: true}))
	require.NoError(t, f.store.UpsertToken(ctx, &model.Token{Address: collToken.Hex()}))
	require.NoError(t, f.store.UpsertPool(ctx, &model.Pool{Address: pair.Hex()}))

	require.NoError(t, f.proc.Init(ctx))

	role, ok := f.registry.Role(debtToken)
	require.True(t, ok)
	assert.Equal(t, RoleDebtToken, role)
	_, ok = f.registry.Role(collToken)
	assert.False(t, ok)
	role, ok = f.registry.Role(pair)
	require.True(t, ok)
	assert.Equal(t, RoleSwapPair, role)
}

type storeSnapshot struct {
	Tokens  []model.Token
	Metas   []model.DebtTokenMeta
	History []model.BorrowerHistory
}

func snapshotStore(t *testing.T, f *fixture) storeSnapshot {
	t.Helper()
	ctx := context.Background()
	tokens, err := f.store.ListTokens(ctx, storage.Page{Limit: 1000})
	require.NoError(t, err)
	metas, err := f.store.ListDebtTokenMetas(ctx, borrower.Hex(), storage.Page{Limit: 1000})
	require.NoError(t, err)
	history, err := f.store.ListBorrowerHistory(ctx, borrower.Hex(), storage.Page{Limit: 1000})
	require.NoError(t, err)
	return storeSnapshot{Tokens: tokens, Metas: metas, History: history}
}
