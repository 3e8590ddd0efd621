package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"troveScope/internal/model"
	"troveScope/internal/storage"
)

// Store is an in-memory EntityStore. It is safe for concurrent use and
// returns copies so callers never share state with the store.
type Store struct {
	mu        sync.RWMutex
	tokens    map[string]model.Token
	metas     map[string]model.DebtTokenMeta
	pools     map[string]model.Pool
	positions map[string]model.Position
	history   map[string]model.BorrowerHistory
	state     map[string]uint64
}

var _ storage.EntityStore = (*Store)(nil)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		tokens:    make(map[string]model.Token),
		metas:     make(map[string]model.DebtTokenMeta),
		pools:     make(map[string]model.Pool),
		positions: make(map[string]model.Position),
		history:   make(map[string]model.BorrowerHistory),
		state:     make(map[string]uint64),
	}
}

func (s *Store) GetToken(_ context.Context, id string) (*model.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tokens[strings.ToLower(id)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &t, nil
}

func (s *Store) UpsertToken(_ context.Context, token *model.Token) error {
	if err := storage.ValidateToken(token); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.ID()] = *token
	return nil
}

func (s *Store) ListTokens(_ context.Context, page storage.Page) ([]model.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return window(s.tokens, nil, page), nil
}

func (s *Store) GetDebtTokenMeta(_ context.Context, id string) (*model.DebtTokenMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.metas[strings.ToLower(id)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &m, nil
}

func (s *Store) UpsertDebtTokenMeta(_ context.Context, meta *model.DebtTokenMeta) error {
	if err := storage.ValidateDebtTokenMeta(meta); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metas[meta.ID] = *meta
	return nil
}

func (s *Store) UpsertDebtTokenMetas(_ context.Context, metas []model.DebtTokenMeta) error {
	for i := range metas {
		if err := storage.ValidateDebtTokenMeta(&metas[i]); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range metas {
		s.metas[m.ID] = m
	}
	return nil
}

func (s *Store) ListDebtTokenMetas(_ context.Context, borrower string, page storage.Page) ([]model.DebtTokenMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return window(s.metas, func(m model.DebtTokenMeta) bool {
		return strings.EqualFold(m.Borrower, borrower)
	}, page), nil
}

func (s *Store) GetPool(_ context.Context, id string) (*model.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pools[strings.ToLower(id)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &p, nil
}

func (s *Store) UpsertPool(_ context.Context, pool *model.Pool) error {
	if err := storage.ValidatePool(pool); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[pool.ID()] = *pool
	return nil
}

func (s *Store) ListPools(_ context.Context, page storage.Page) ([]model.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return window(s.pools, nil, page), nil
}

func (s *Store) GetPosition(_ context.Context, id string) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[strings.ToLower(id)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &p, nil
}

func (s *Store) UpsertPosition(_ context.Context, position *model.Position) error {
	if err := storage.ValidatePosition(position); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[position.ID] = *position
	return nil
}

func (s *Store) ListPositions(_ context.Context, user string, page storage.Page) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return window(s.positions, func(p model.Position) bool {
		return strings.EqualFold(p.User, user)
	}, page), nil
}

func (s *Store) PutBorrowerHistory(_ context.Context, entry *model.BorrowerHistory) error {
	if err := storage.ValidateBorrowerHistory(entry); err != nil {
		return err
	}
	cp := *entry
	cp.Debts = append([]model.TokenAmount(nil), entry.Debts...)
	cp.Collaterals = append([]model.TokenAmount(nil), entry.Collaterals...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[cp.ID] = cp
	return nil
}

func (s *Store) ListBorrowerHistory(_ context.Context, borrower string, page storage.Page) ([]model.BorrowerHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := window(s.history, func(h model.BorrowerHistory) bool {
		return strings.EqualFold(h.Borrower, borrower)
	}, page)
	for i := range out {
		out[i].Debts = append([]model.TokenAmount(nil), out[i].Debts...)
		out[i].Collaterals = append([]model.TokenAmount(nil), out[i].Collaterals...)
	}
	return out, nil
}

func (s *Store) LoadState(_ context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, storage.ErrInvalidInput
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	block, ok := s.state[name]
	return block, ok, nil
}

func (s *Store) SaveState(_ context.Context, name string, block uint64) error {
	if name == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[name] = block
	return nil
}

// window returns the values with id > page.After that pass keep, in id order.
func window[T any](items map[string]T, keep func(T) bool, page storage.Page) []T {
	page = page.Normalize()
	ids := make([]string, 0, len(items))
	for id := range items {
		if id > page.After {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	out := make([]T, 0, min(page.Limit, len(ids)))
	for _, id := range ids {
		v := items[id]
		if keep != nil && !keep(v) {
			continue
		}
		out = append(out, v)
		if len(out) == page.Limit {
			break
		}
	}
	return out
}
