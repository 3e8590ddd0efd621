package model

// DebtTokenMeta tracks one borrower's holdings of one debt token.
// Amounts are raw integer strings in token units.
type DebtTokenMeta struct {
	ID                string `json:"id"`
	Token             string `json:"token"`
	Borrower          string `json:"borrower"`
	WalletAmount      string `json:"wallet_amount"`
	TroveMintedAmount string `json:"trove_minted_amount"`
	StabilityDeposit  string `json:"stability_deposit"`
	LastBlock         uint64 `json:"last_block"`
	Timestamp         uint64 `json:"timestamp"`
}

// NewDebtTokenMeta returns a zeroed record for the (token, borrower) pair.
func NewDebtTokenMeta(token, borrower string) *DebtTokenMeta {
	return &DebtTokenMeta{
		ID:                DebtTokenMetaID(token, borrower),
		Token:             token,
		Borrower:          borrower,
		WalletAmount:      "0",
		TroveMintedAmount: "0",
		StabilityDeposit:  "0",
	}
}
