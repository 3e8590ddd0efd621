package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"troveScope/internal/model"
	"troveScope/internal/storage"
)

// Store provides Postgres persistence for indexed entities and checkpoints.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.EntityStore = (*Store)(nil)

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Pool exposes the connection pool for migrations.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

const tokenColumns = `address, symbol, decimals, is_debt_token, created_at, created_block, price_usd, price_block`

func scanToken(row pgx.Row) (*model.Token, error) {
	var (
		t                                   model.Token
		decimals                            int16
		createdAt, createdBlock, priceBlock int64
	)
	if err := row.Scan(&t.Address, &t.Symbol, &decimals, &t.IsDebtToken, &createdAt, &createdBlock, &t.PriceUSD, &priceBlock); err != nil {
		return nil, err
	}
	t.Decimals = uint8(decimals)
	t.CreatedAt = uint64(createdAt)
	t.CreatedBlock = uint64(createdBlock)
	t.PriceBlock = uint64(priceBlock)
	return &t, nil
}

func (s *Store) GetToken(ctx context.Context, id string) (*model.Token, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE id = $1`, strings.ToLower(id))
	t, err := scanToken(row)
	if err != nil {
		if isNotFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token: %w", err)
	}
	return t, nil
}

func (s *Store) UpsertToken(ctx context.Context, t *model.Token) error {
	if err := storage.ValidateToken(t); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tokens (
			id, address, symbol, decimals, is_debt_token, created_at, created_block, price_usd, price_block, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (id)
		DO UPDATE SET
			symbol = EXCLUDED.symbol,
			decimals = EXCLUDED.decimals,
			is_debt_token = tokens.is_debt_token OR EXCLUDED.is_debt_token,
			created_at = LEAST(tokens.created_at, EXCLUDED.created_at),
			created_block = LEAST(tokens.created_block, EXCLUDED.created_block),
			price_usd = EXCLUDED.price_usd,
			price_block = EXCLUDED.price_block,
			updated_at = now()
	`,
		t.ID(),
		t.Address,
		t.Symbol,
		int16(t.Decimals),
		t.IsDebtToken,
		int64(t.CreatedAt),
		int64(t.CreatedBlock),
		t.PriceUSD,
		int64(t.PriceBlock),
	)
	if err != nil {
		return fmt.Errorf("upsert token: %w", err)
	}
	return nil
}

func (s *Store) ListTokens(ctx context.Context, page storage.Page) ([]model.Token, error) {
	page = page.Normalize()
	rows, err := s.pool.Query(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE id > $1 ORDER BY id LIMIT $2`, page.After, page.Limit)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	return collect(rows, scanToken)
}

const metaColumns = `id, token, borrower, wallet_amount, trove_minted_amount, stability_deposit, last_block, block_timestamp`

func scanDebtTokenMeta(row pgx.Row) (*model.DebtTokenMeta, error) {
	var (
		m             model.DebtTokenMeta
		lastBlock, ts int64
	)
	if err := row.Scan(&m.ID, &m.Token, &m.Borrower, &m.WalletAmount, &m.TroveMintedAmount, &m.StabilityDeposit, &lastBlock, &ts); err != nil {
		return nil, err
	}
	m.LastBlock = uint64(lastBlock)
	m.Timestamp = uint64(ts)
	return &m, nil
}

func (s *Store) GetDebtTokenMeta(ctx context.Context, id string) (*model.DebtTokenMeta, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+metaColumns+` FROM debt_token_metas WHERE id = $1`, strings.ToLower(id))
	m, err := scanDebtTokenMeta(row)
	if err != nil {
		if isNotFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get debt token meta: %w", err)
	}
	return m, nil
}

func (s *Store) UpsertDebtTokenMeta(ctx context.Context, m *model.DebtTokenMeta) error {
	if m == nil {
		return storage.ErrInvalidInput
	}
	return s.UpsertDebtTokenMetas(ctx, []model.DebtTokenMeta{*m})
}

// UpsertDebtTokenMetas writes all records in one batch.
func (s *Store) UpsertDebtTokenMetas(ctx context.Context, metas []model.DebtTokenMeta) error {
	if len(metas) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i := range metas {
		m := &metas[i]
		if err := storage.ValidateDebtTokenMeta(m); err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO debt_token_metas (
				id, token, borrower, borrower_key, wallet_amount, trove_minted_amount, stability_deposit,
				last_block, block_timestamp, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
			ON CONFLICT (id)
			DO UPDATE SET
				wallet_amount = EXCLUDED.wallet_amount,
				trove_minted_amount = EXCLUDED.trove_minted_amount,
				stability_deposit = EXCLUDED.stability_deposit,
				last_block = EXCLUDED.last_block,
				block_timestamp = EXCLUDED.block_timestamp,
				updated_at = now()
		`,
			m.ID,
			m.Token,
			m.Borrower,
			strings.ToLower(m.Borrower),
			m.WalletAmount,
			m.TroveMintedAmount,
			m.StabilityDeposit,
			int64(m.LastBlock),
			int64(m.Timestamp),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range metas {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert debt token meta: %w", err)
		}
	}
	return nil
}

func (s *Store) ListDebtTokenMetas(ctx context.Context, borrower string, page storage.Page) ([]model.DebtTokenMeta, error) {
	page = page.Normalize()
	rows, err := s.pool.Query(ctx, `
		SELECT `+metaColumns+` FROM debt_token_metas
		WHERE borrower_key = $1 AND id > $2
		ORDER BY id LIMIT $3
	`, strings.ToLower(borrower), page.After, page.Limit)
	if err != nil {
		return nil, fmt.Errorf("list debt token metas: %w", err)
	}
	return collect(rows, scanDebtTokenMeta)
}

const poolColumns = `address, token0, token1, reserve0, reserve1, total_supply, created_block, updated_block`

func scanPool(row pgx.Row) (*model.Pool, error) {
	var (
		p                model.Pool
		created, updated int64
	)
	if err := row.Scan(&p.Address, &p.Token0, &p.Token1, &p.Reserve0, &p.Reserve1, &p.TotalSupply, &created, &updated); err != nil {
		return nil, err
	}
	p.CreatedBlock = uint64(created)
	p.UpdatedBlock = uint64(updated)
	return &p, nil
}

func (s *Store) GetPool(ctx context.Context, id string) (*model.Pool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+poolColumns+` FROM pools WHERE id = $1`, strings.ToLower(id))
	p, err := scanPool(row)
	if err != nil {
		if isNotFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get pool: %w", err)
	}
	return p, nil
}

func (s *Store) UpsertPool(ctx context.Context, p *model.Pool) error {
	if err := storage.ValidatePool(p); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pools (
			id, address, token0, token1, reserve0, reserve1, total_supply, created_block, updated_block, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (id)
		DO UPDATE SET
			token0 = EXCLUDED.token0,
			token1 = EXCLUDED.token1,
			reserve0 = EXCLUDED.reserve0,
			reserve1 = EXCLUDED.reserve1,
			total_supply = EXCLUDED.total_supply,
			created_block = LEAST(pools.created_block, EXCLUDED.created_block),
			updated_block = EXCLUDED.updated_block,
			updated_at = now()
	`,
		p.ID(),
		p.Address,
		p.Token0,
		p.Token1,
		p.Reserve0,
		p.Reserve1,
		p.TotalSupply,
		int64(p.CreatedBlock),
		int64(p.UpdatedBlock),
	)
	if err != nil {
		return fmt.Errorf("upsert pool: %w", err)
	}
	return nil
}

func (s *Store) ListPools(ctx context.Context, page storage.Page) ([]model.Pool, error) {
	page = page.Normalize()
	rows, err := s.pool.Query(ctx, `SELECT `+poolColumns+` FROM pools WHERE id > $1 ORDER BY id LIMIT $2`, page.After, page.Limit)
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	return collect(rows, scanPool)
}

const positionColumns = `id, pool, user_address, liquidity, updated_block`

func scanPosition(row pgx.Row) (*model.Position, error) {
	var (
		p       model.Position
		updated int64
	)
	if err := row.Scan(&p.ID, &p.Pool, &p.User, &p.Liquidity, &updated); err != nil {
		return nil, err
	}
	p.UpdatedBlock = uint64(updated)
	return &p, nil
}

func (s *Store) GetPosition(ctx context.Context, id string) (*model.Position, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+positionColumns+` FROM positions WHERE id = $1`, strings.ToLower(id))
	p, err := scanPosition(row)
	if err != nil {
		if isNotFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position: %w", err)
	}
	return p, nil
}

func (s *Store) UpsertPosition(ctx context.Context, p *model.Position) error {
	if err := storage.ValidatePosition(p); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO positions (id, pool, user_address, user_key, liquidity, updated_block, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (id)
		DO UPDATE SET
			liquidity = EXCLUDED.liquidity,
			updated_block = EXCLUDED.updated_block,
			updated_at = now()
	`, p.ID, p.Pool, p.User, strings.ToLower(p.User), p.Liquidity, int64(p.UpdatedBlock))
	if err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}
	return nil
}

func (s *Store) ListPositions(ctx context.Context, user string, page storage.Page) ([]model.Position, error) {
	page = page.Normalize()
	rows, err := s.pool.Query(ctx, `
		SELECT `+positionColumns+` FROM positions
		WHERE user_key = $1 AND id > $2
		ORDER BY id LIMIT $3
	`, strings.ToLower(user), page.After, page.Limit)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	return collect(rows, scanPosition)
}

func scanBorrowerHistory(row pgx.Row) (*model.BorrowerHistory, error) {
	var (
		h                  model.BorrowerHistory
		block, ts          int64
		debts, collaterals []byte
	)
	if err := row.Scan(&h.ID, &h.Borrower, &h.Event, &block, &h.TxHash, &ts, &debts, &collaterals); err != nil {
		return nil, err
	}
	h.BlockNumber = uint64(block)
	h.Timestamp = uint64(ts)
	if err := json.Unmarshal(debts, &h.Debts); err != nil {
		return nil, fmt.Errorf("decode debts: %w", err)
	}
	if err := json.Unmarshal(collaterals, &h.Collaterals); err != nil {
		return nil, fmt.Errorf("decode collaterals: %w", err)
	}
	return &h, nil
}

func (s *Store) PutBorrowerHistory(ctx context.Context, h *model.BorrowerHistory) error {
	if err := storage.ValidateBorrowerHistory(h); err != nil {
		return err
	}
	debts, err := marshalAmounts(h.Debts)
	if err != nil {
		return err
	}
	collaterals, err := marshalAmounts(h.Collaterals)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO borrower_history (
			id, borrower, borrower_key, event, block_number, tx_hash, block_timestamp, debts, collaterals
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9::jsonb)
		ON CONFLICT (id)
		DO UPDATE SET
			debts = EXCLUDED.debts,
			collaterals = EXCLUDED.collaterals
	`,
		h.ID,
		h.Borrower,
		strings.ToLower(h.Borrower),
		h.Event,
		int64(h.BlockNumber),
		h.TxHash,
		int64(h.Timestamp),
		string(debts),
		string(collaterals),
	)
	if err != nil {
		return fmt.Errorf("put borrower history: %w", err)
	}
	return nil
}

func (s *Store) ListBorrowerHistory(ctx context.Context, borrower string, page storage.Page) ([]model.BorrowerHistory, error) {
	page = page.Normalize()
	rows, err := s.pool.Query(ctx, `
		SELECT id, borrower, event, block_number, tx_hash, block_timestamp, debts::text, collaterals::text
		FROM borrower_history
		WHERE borrower_key = $1 AND id > $2
		ORDER BY id LIMIT $3
	`, strings.ToLower(borrower), page.After, page.Limit)
	if err != nil {
		return nil, fmt.Errorf("list borrower history: %w", err)
	}
	return collect(rows, scanBorrowerHistory)
}

// LoadState returns last_processed_block for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("%w: state name required", storage.ErrInvalidInput)
	}
	var block int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_block FROM indexer_state WHERE name=$1`, name)
	if err := row.Scan(&block); err != nil {
		if isNotFound(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(block), true, nil
}

// SaveState upserts last_processed_block for a name.
func (s *Store) SaveState(ctx context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("%w: state name required", storage.ErrInvalidInput)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_processed_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block, updated_at = now()
	`, name, int64(block))
	return err
}

func marshalAmounts(list []model.TokenAmount) ([]byte, error) {
	if list == nil {
		list = []model.TokenAmount{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("encode token amounts: %w", err)
	}
	return data, nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
