package storage

import (
	"fmt"

	"troveScope/internal/model"
)

// ValidateToken checks the fields every stored token must carry.
func ValidateToken(t *model.Token) error {
	if t == nil || t.Address == "" {
		return fmt.Errorf("%w: token address required", ErrInvalidInput)
	}
	return nil
}

// ValidateDebtTokenMeta checks identity fields of a debt token record.
func ValidateDebtTokenMeta(m *model.DebtTokenMeta) error {
	if m == nil || m.Token == "" || m.Borrower == "" {
		return fmt.Errorf("%w: debt token meta needs token and borrower", ErrInvalidInput)
	}
	if m.ID != model.DebtTokenMetaID(m.Token, m.Borrower) {
		return fmt.Errorf("%w: debt token meta id %q does not match token and borrower", ErrInvalidInput, m.ID)
	}
	return nil
}

// ValidatePool checks identity fields of a pool.
func ValidatePool(p *model.Pool) error {
	if p == nil || p.Address == "" {
		return fmt.Errorf("%w: pool address required", ErrInvalidInput)
	}
	return nil
}

// ValidatePosition checks identity fields of a position.
func ValidatePosition(p *model.Position) error {
	if p == nil || p.Pool == "" || p.User == "" {
		return fmt.Errorf("%w: position needs pool and user", ErrInvalidInput)
	}
	if p.ID != model.PositionID(p.Pool, p.User) {
		return fmt.Errorf("%w: position id %q does not match pool and user", ErrInvalidInput, p.ID)
	}
	return nil
}

// ValidateBorrowerHistory checks identity fields of a history row.
func ValidateBorrowerHistory(h *model.BorrowerHistory) error {
	if h == nil || h.ID == "" || h.Borrower == "" {
		return fmt.Errorf("%w: history needs id and borrower", ErrInvalidInput)
	}
	return nil
}
