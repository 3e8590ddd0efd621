package model

// Pool is a swap pair with its latest reserves.
type Pool struct {
	Address      string `json:"address"`
	Token0       string `json:"token0"`
	Token1       string `json:"token1"`
	Reserve0     string `json:"reserve0"`
	Reserve1     string `json:"reserve1"`
	TotalSupply  string `json:"total_supply"`
	CreatedBlock uint64 `json:"created_block"`
	UpdatedBlock uint64 `json:"updated_block"`
}

// ID returns the entity identity.
func (p Pool) ID() string {
	return PoolID(p.Address)
}
