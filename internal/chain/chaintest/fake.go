// Package chaintest provides an in-process contract caller for tests.
package chaintest

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// MethodFunc answers one contract method. args are the unpacked call
// arguments, block is nil for latest.
type MethodFunc func(args []interface{}, block *big.Int) ([]interface{}, error)

type route struct {
	method abi.Method
	fn     MethodFunc
}

// Caller dispatches eth_call requests by target address and selector,
// unpacking inputs and packing outputs with the registered ABI.
type Caller struct {
	mu     sync.Mutex
	routes map[string]route
	calls  map[string]int
}

func NewCaller() *Caller {
	return &Caller{
		routes: make(map[string]route),
		calls:  make(map[string]int),
	}
}

// Handle registers fn for method on contract to.
func (c *Caller) Handle(to common.Address, parsed abi.ABI, method string, fn MethodFunc) {
	m, ok := parsed.Methods[method]
	if !ok {
		panic(fmt.Sprintf("chaintest: unknown method %s", method))
	}
	c.mu.Lock()
	c.routes[routeKey(to, m.ID)] = route{method: m, fn: fn}
	c.mu.Unlock()
}

// Returns registers a handler that always answers with values.
func (c *Caller) Returns(to common.Address, parsed abi.ABI, method string, values ...interface{}) {
	c.Handle(to, parsed, method, func([]interface{}, *big.Int) ([]interface{}, error) {
		return values, nil
	})
}

// Calls reports how many times method was called on to.
func (c *Caller) Calls(to common.Address, method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[strings.ToLower(to.Hex())+":"+method]
}

func (c *Caller) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if msg.To == nil {
		return nil, fmt.Errorf("chaintest: call without target")
	}
	if len(msg.Data) < 4 {
		return nil, fmt.Errorf("chaintest: short calldata")
	}

	c.mu.Lock()
	r, ok := c.routes[routeKey(*msg.To, msg.Data[:4])]
	if ok {
		c.calls[strings.ToLower(msg.To.Hex())+":"+r.method.Name]++
	}
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("chaintest: execution reverted: no handler for %s %x", msg.To.Hex(), msg.Data[:4])
	}

	args, err := r.method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, fmt.Errorf("chaintest: unpack %s: %w", r.method.Name, err)
	}
	out, err := r.fn(args, blockNumber)
	if err != nil {
		return nil, err
	}
	return r.method.Outputs.Pack(out...)
}

func routeKey(to common.Address, selector []byte) string {
	return strings.ToLower(to.Hex()) + ":" + common.Bytes2Hex(selector)
}
