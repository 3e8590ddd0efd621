package model

// Token is an ERC20 token known to the protocol (collateral or debt token).
type Token struct {
	Address      string `json:"address"`
	Symbol       string `json:"symbol"`
	Decimals     uint8  `json:"decimals"`
	IsDebtToken  bool   `json:"is_debt_token"`
	CreatedAt    uint64 `json:"created_at"`
	CreatedBlock uint64 `json:"created_block"`
	PriceUSD     string `json:"price_usd"`
	PriceBlock   uint64 `json:"price_block"`
}

// ID returns the entity identity.
func (t Token) ID() string {
	return TokenID(t.Address)
}

// TokenMeta captures ERC20 metadata read from the token contract.
type TokenMeta struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
}
