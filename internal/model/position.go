package model

// Position is a user's LP token balance in a pool.
type Position struct {
	ID           string `json:"id"`
	Pool         string `json:"pool"`
	User         string `json:"user"`
	Liquidity    string `json:"liquidity"`
	UpdatedBlock uint64 `json:"updated_block"`
}
