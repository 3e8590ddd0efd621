// Package addrbook resolves the protocol address book and renders it into
// the frontend constants module.
package addrbook

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Token is a token known to the frontend.
type Token struct {
	Symbol      string
	Address     common.Address
	IsDebtToken bool
}

// PairSpec names a pair to resolve through the swap factory.
type PairSpec struct {
	TokenA string
	TokenB string
}

// Name is the stable display name of the pair.
func (p PairSpec) Name() string {
	return p.TokenA + "-" + p.TokenB
}

// Pair is a resolved swap pair.
type Pair struct {
	Name    string
	TokenA  string
	TokenB  string
	Address common.Address
}

// Book is the resolved address book. Membership predicates compare
// checksum-normalized addresses, so input casing does not matter.
type Book struct {
	Contracts map[string]common.Address
	Tokens    []Token
	Pairs     []Pair

	debt  map[common.Address]struct{}
	coll  map[common.Address]struct{}
	pools map[common.Address]struct{}
}

// NewBook builds a book with tokens and pairs in sorted order.
func NewBook(contracts map[string]common.Address, tokens []Token, pairs []Pair) *Book {
	b := &Book{
		Contracts: make(map[string]common.Address, len(contracts)),
		Tokens:    append([]Token(nil), tokens...),
		Pairs:     append([]Pair(nil), pairs...),
		debt:      make(map[common.Address]struct{}),
		coll:      make(map[common.Address]struct{}),
		pools:     make(map[common.Address]struct{}),
	}
	for name, addr := range contracts {
		if addr != (common.Address{}) {
			b.Contracts[name] = addr
		}
	}
	sort.Slice(b.Tokens, func(i, j int) bool { return b.Tokens[i].Symbol < b.Tokens[j].Symbol })
	sort.Slice(b.Pairs, func(i, j int) bool { return b.Pairs[i].Name < b.Pairs[j].Name })

	for _, t := range b.Tokens {
		if t.IsDebtToken {
			b.debt[t.Address] = struct{}{}
		} else {
			b.coll[t.Address] = struct{}{}
		}
	}
	for _, p := range b.Pairs {
		b.pools[p.Address] = struct{}{}
	}
	return b
}

// TokenBySymbol looks a token up by symbol.
func (b *Book) TokenBySymbol(symbol string) (Token, bool) {
	for _, t := range b.Tokens {
		if t.Symbol == symbol {
			return t, true
		}
	}
	return Token{}, false
}

func (b *Book) IsDebtToken(address string) bool {
	return member(b.debt, address)
}

func (b *Book) IsCollToken(address string) bool {
	return member(b.coll, address)
}

func (b *Book) IsToken(address string) bool {
	return member(b.debt, address) || member(b.coll, address)
}

func (b *Book) IsPoolAddress(address string) bool {
	return member(b.pools, address)
}

func member(set map[common.Address]struct{}, address string) bool {
	addr, ok := normalize(address)
	if !ok {
		return false
	}
	_, found := set[addr]
	return found
}

func normalize(address string) (common.Address, bool) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return common.Address{}, false
	}
	return common.HexToAddress(address), true
}

// symbolPattern keeps symbols safe to emit inside TypeScript string literals.
var symbolPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._+-]*$`)

func checkSymbol(symbol string) error {
	if !symbolPattern.MatchString(symbol) {
		return fmt.Errorf("invalid token symbol %q, want letters, digits, '.', '_', '+' or '-'", symbol)
	}
	return nil
}

// ParseToken parses "SYMBOL=0xADDRESS".
func ParseToken(input string, isDebt bool) (Token, error) {
	symbol, address, ok := strings.Cut(strings.TrimSpace(input), "=")
	symbol = strings.TrimSpace(symbol)
	if !ok || symbol == "" {
		return Token{}, fmt.Errorf("invalid token %q, want SYMBOL=ADDRESS", input)
	}
	if err := checkSymbol(symbol); err != nil {
		return Token{}, err
	}
	addr, valid := normalize(address)
	if !valid {
		return Token{}, fmt.Errorf("invalid token address for %s: %s", symbol, address)
	}
	return Token{Symbol: symbol, Address: addr, IsDebtToken: isDebt}, nil
}

// ParsePair parses "A/B".
func ParsePair(input string) (PairSpec, error) {
	a, b, ok := strings.Cut(strings.TrimSpace(input), "/")
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if !ok || a == "" || b == "" || a == b {
		return PairSpec{}, fmt.Errorf("invalid pair %q, want TOKEN_A/TOKEN_B", input)
	}
	for _, symbol := range []string{a, b} {
		if err := checkSymbol(symbol); err != nil {
			return PairSpec{}, fmt.Errorf("pair %q: %w", input, err)
		}
	}
	return PairSpec{TokenA: a, TokenB: b}, nil
}
