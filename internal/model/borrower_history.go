package model

// TokenAmount is one entry of a per-token amount list.
type TokenAmount struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

// BorrowerHistory is an append-only snapshot of a trove at a change event.
type BorrowerHistory struct {
	ID          string        `json:"id"`
	Borrower    string        `json:"borrower"`
	Event       string        `json:"event"`
	BlockNumber uint64        `json:"block_number"`
	TxHash      string        `json:"tx_hash"`
	Timestamp   uint64        `json:"timestamp"`
	Debts       []TokenAmount `json:"debts"`
	Collaterals []TokenAmount `json:"collaterals"`
}
