package storage

import (
	"context"

	"troveScope/internal/model"
)

// TokenStore persists Token entities.
type TokenStore interface {
	// GetToken returns ErrNotFound when the token is unknown.
	GetToken(ctx context.Context, id string) (*model.Token, error)
	UpsertToken(ctx context.Context, token *model.Token) error
	ListTokens(ctx context.Context, page Page) ([]model.Token, error)
}

// DebtTokenMetaStore persists per borrower debt token records.
type DebtTokenMetaStore interface {
	GetDebtTokenMeta(ctx context.Context, id string) (*model.DebtTokenMeta, error)
	UpsertDebtTokenMeta(ctx context.Context, meta *model.DebtTokenMeta) error
	// UpsertDebtTokenMetas writes several records as one unit.
	UpsertDebtTokenMetas(ctx context.Context, metas []model.DebtTokenMeta) error
	// ListDebtTokenMetas returns the records of one borrower.
	ListDebtTokenMetas(ctx context.Context, borrower string, page Page) ([]model.DebtTokenMeta, error)
}

// PoolStore persists swap pairs.
type PoolStore interface {
	GetPool(ctx context.Context, id string) (*model.Pool, error)
	UpsertPool(ctx context.Context, pool *model.Pool) error
	ListPools(ctx context.Context, page Page) ([]model.Pool, error)
}

// PositionStore persists LP positions.
type PositionStore interface {
	GetPosition(ctx context.Context, id string) (*model.Position, error)
	UpsertPosition(ctx context.Context, position *model.Position) error
	ListPositions(ctx context.Context, user string, page Page) ([]model.Position, error)
}

// BorrowerHistoryStore persists trove snapshots. Writing an existing id
// replaces the row, so replays stay idempotent.
type BorrowerHistoryStore interface {
	PutBorrowerHistory(ctx context.Context, entry *model.BorrowerHistory) error
	ListBorrowerHistory(ctx context.Context, borrower string, page Page) ([]model.BorrowerHistory, error)
}

// StateStore keeps named checkpoints.
type StateStore interface {
	LoadState(ctx context.Context, name string) (uint64, bool, error)
	SaveState(ctx context.Context, name string, block uint64) error
}

// EntityStore is the full persistence surface used by sync and the API.
type EntityStore interface {
	TokenStore
	DebtTokenMetaStore
	PoolStore
	PositionStore
	BorrowerHistoryStore
	StateStore
}
