package subgraph

import (
	"bytes"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Role says which contract a data source is and therefore which events it emits.
type Role string

const (
	RoleTroveManager         Role = "trove_manager"
	RoleStabilityPoolManager Role = "stability_pool_manager"
	RolePriceFeed            Role = "price_feed"
	RoleTokenManager         Role = "token_manager"
	RoleSwapFactory          Role = "swap_factory"
	RoleDebtToken            Role = "debt_token"
	RoleSwapPair             Role = "swap_pair"
)

// Contracts holds the statically configured protocol addresses. Zero
// addresses mean the role is not deployed.
type Contracts struct {
	TroveManager         common.Address
	StabilityPoolManager common.Address
	PriceFeed            common.Address
	TokenManager         common.Address
	SwapFactory          common.Address
	DebtTokens           []common.Address
	Pairs                []common.Address
}

// Registry maps data source addresses to roles. Dynamic sources are added
// as factory style events are handled.
type Registry struct {
	contracts Contracts

	mu      sync.RWMutex
	sources map[common.Address]Role
}

func NewRegistry(c Contracts) *Registry {
	r := &Registry{contracts: c, sources: make(map[common.Address]Role)}
	r.Register(c.TroveManager, RoleTroveManager)
	r.Register(c.StabilityPoolManager, RoleStabilityPoolManager)
	r.Register(c.PriceFeed, RolePriceFeed)
	r.Register(c.TokenManager, RoleTokenManager)
	r.Register(c.SwapFactory, RoleSwapFactory)
	for _, token := range c.DebtTokens {
		r.Register(token, RoleDebtToken)
	}
	for _, pair := range c.Pairs {
		r.Register(pair, RoleSwapPair)
	}
	return r
}

// Contracts returns the static configuration.
func (r *Registry) Contracts() Contracts {
	return r.contracts
}

// Register adds a source and reports whether it was new. The zero address
// and already known addresses are ignored.
func (r *Registry) Register(addr common.Address, role Role) bool {
	if addr == (common.Address{}) {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sources[addr]; ok {
		return false
	}
	r.sources[addr] = role
	return true
}

// Role returns the role of addr.
func (r *Registry) Role(addr common.Address) (Role, bool) {
	r.mu.RLock()
	role, ok := r.sources[addr]
	r.mu.RUnlock()
	return role, ok
}

// Addresses lists every registered source in byte order.
func (r *Registry) Addresses() []common.Address {
	r.mu.RLock()
	out := make([]common.Address, 0, len(r.sources))
	for addr := range r.sources {
		out = append(out, addr)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

// Len reports the number of registered sources.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sources)
}
