package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"troveScope/internal/model"
	"troveScope/internal/storage"
)

const (
	debtToken = "0x6B175474E89094C44Da98b954EedeAC495271d0F"
	borrowerA = "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"
	borrowerB = "0x1dF62f291b2E969fB0849d99D9Ce41e2F137006e"
)

func TestStore_GetMissingReturnsNotFound(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	_, err := store.GetToken(ctx, debtToken)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.GetDebtTokenMeta(ctx, model.DebtTokenMetaID(debtToken, borrowerA))
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.GetPool(ctx, debtToken)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.GetPosition(ctx, "x-y")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_TokenLookupIsCaseInsensitive(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.UpsertToken(ctx, &model.Token{Address: debtToken, Symbol: "DAI", Decimals: 18}))

	got, err := store.GetToken(ctx, debtToken)
	require.NoError(t, err)
	assert.Equal(t, "DAI", got.Symbol)

	got.Symbol = "mutated"
	again, err := store.GetToken(ctx, model.TokenID(debtToken))
	require.NoError(t, err)
	assert.Equal(t, "DAI", again.Symbol, "store must hand out copies")
}

func TestStore_RejectsInvalidEntities(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	assert.ErrorIs(t, store.UpsertToken(ctx, &model.Token{}), storage.ErrInvalidInput)

	meta := model.NewDebtTokenMeta(debtToken, borrowerA)
	meta.ID = "wrong"
	assert.ErrorIs(t, store.UpsertDebtTokenMeta(ctx, meta), storage.ErrInvalidInput)

	assert.ErrorIs(t, store.UpsertPosition(ctx, &model.Position{Pool: "p"}), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.PutBorrowerHistory(ctx, &model.BorrowerHistory{ID: "1"}), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.SaveState(ctx, "", 1), storage.ErrInvalidInput)
}

func TestStore_ListDebtTokenMetasFiltersByBorrower(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.UpsertDebtTokenMeta(ctx, model.NewDebtTokenMeta(debtToken, borrowerA)))
	require.NoError(t, store.UpsertDebtTokenMeta(ctx, model.NewDebtTokenMeta(debtToken, borrowerB)))

	metas, err := store.ListDebtTokenMetas(ctx, "0xab5801a7d398351b8be11c439e05c5b3259aec9b", storage.Page{})
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, borrowerA, metas[0].Borrower)
}

func TestStore_PaginationVisitsEveryPoolOnce(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		require.NoError(t, store.UpsertPool(ctx, &model.Pool{Address: fmt.Sprintf("0x%040x", i+1)}))
	}

	var seen []string
	page := storage.Page{Limit: 3}
	for {
		pools, err := store.ListPools(ctx, page)
		require.NoError(t, err)
		for _, p := range pools {
			seen = append(seen, p.ID())
		}
		if len(pools) < page.Limit {
			break
		}
		page.After = pools[len(pools)-1].ID()
	}

	require.Len(t, seen, 7)
	for i := 1; i < len(seen); i++ {
		assert.Less(t, seen[i-1], seen[i])
	}
}

func TestStore_BorrowerHistoryIsChronologicalAndIdempotent(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	later := &model.BorrowerHistory{
		ID:       model.BorrowerHistoryID(200, 1),
		Borrower: borrowerA,
		Debts:    []model.TokenAmount{{Token: debtToken, Amount: "5"}},
	}
	earlier := &model.BorrowerHistory{ID: model.BorrowerHistoryID(99, 3), Borrower: borrowerA}
	require.NoError(t, store.PutBorrowerHistory(ctx, later))
	require.NoError(t, store.PutBorrowerHistory(ctx, earlier))
	require.NoError(t, store.PutBorrowerHistory(ctx, later))

	rows, err := store.ListBorrowerHistory(ctx, borrowerA, storage.Page{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, uint64(99), mustBlock(rows[0].ID))
	assert.Equal(t, "5", rows[1].Debts[0].Amount)

	rows[1].Debts[0].Amount = "mutated"
	again, err := store.ListBorrowerHistory(ctx, borrowerA, storage.Page{})
	require.NoError(t, err)
	assert.Equal(t, "5", again[1].Debts[0].Amount)
}

func TestStore_State(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	_, ok, err := store.LoadState(ctx, "sync")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SaveState(ctx, "sync", 42))
	block, ok, err := store.LoadState(ctx, "sync")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(42), block)
}

func mustBlock(id string) uint64 {
	var block, idx uint64
	if _, err := fmt.Sscanf(id, "%d-%d", &block, &idx); err != nil {
		panic(err)
	}
	return block
}

func TestStore_UpsertDebtTokenMetasIsAllOrNothing(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	good := model.NewDebtTokenMeta(debtToken, borrowerA)
	bad := model.NewDebtTokenMeta(debtToken, borrowerB)
	bad.ID = "broken"

	err := store.UpsertDebtTokenMetas(ctx, []model.DebtTokenMeta{*good, *bad})
	require.ErrorIs(t, err, storage.ErrInvalidInput)
	_, err = store.GetDebtTokenMeta(ctx, good.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.UpsertDebtTokenMetas(ctx, []model.DebtTokenMeta{*good}))
	_, err = store.GetDebtTokenMeta(ctx, good.ID)
	assert.NoError(t, err)
}
