package subgraph

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"

	"troveScope/internal/chain/chaintest"
	"troveScope/internal/contracts"
	"troveScope/internal/metrics"
	"troveScope/internal/model"
	"troveScope/internal/storage/memory"
)

var (
	troveManager = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	stabilityMgr = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	priceFeed    = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	tokenManager = common.HexToAddress("0x00000000000000000000000000000000000000a4")
	swapFactory  = common.HexToAddress("0x00000000000000000000000000000000000000a5")

	debtToken  = common.HexToAddress("0xdDdDddDdDdddDDddDDddDDDDdDdDDdDDdDDDDDDd")
	debtToken2 = common.HexToAddress("0xd2d2D2d2D2D2D2D2D2d2d2D2d2d2D2d2D2D2D2D2")
	collToken  = common.HexToAddress("0xCcCCccccCCCCcCCCCCCcCcCccCcCCCcCcccccccC")
	pair       = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")
	borrower   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	other      = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

type fixture struct {
	t        *testing.T
	caller   *chaintest.Caller
	store    *memory.Store
	registry *Registry
	proc     *Processor
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T, callAtLatest bool) *fixture {
	t.Helper()
	caller := chaintest.NewCaller()
	store := memory.NewStore()
	registry := NewRegistry(Contracts{
		TroveManager:         troveManager,
		StabilityPoolManager: stabilityMgr,
		PriceFeed:            priceFeed,
		TokenManager:         tokenManager,
		SwapFactory:          swapFactory,
	})
	m := metrics.New("test")
	proc, err := NewProcessor(Options{
		Registry:     registry,
		Reader:       contracts.NewReader(caller, m),
		Store:        store,
		Metrics:      m,
		CallAtLatest: callAtLatest,
	})
	require.NoError(t, err)

	f := &fixture{t: t, caller: caller, store: store, registry: registry, proc: proc, metrics: m}
	f.erc20(debtToken, "USDX", 18)
	f.erc20(debtToken2, "EURX", 18)
	f.erc20(collToken, "WETH", 18)
	return f
}

func (f *fixture) abi(load func() (abi.ABI, error)) abi.ABI {
	parsed, err := load()
	require.NoError(f.t, err)
	return parsed
}

func (f *fixture) erc20(token common.Address, symbol string, decimals uint8) {
	parsed := f.abi(contracts.ERC20ABI)
	f.caller.Returns(token, parsed, "decimals", decimals)
	f.caller.Returns(token, parsed, "symbol", symbol)
	f.caller.Returns(token, parsed, "name", symbol+" token")
}

// balances answers balanceOf on token from a holder table.
func (f *fixture) balances(token common.Address, table map[common.Address]int64) {
	f.caller.Handle(token, f.abi(contracts.ERC20ABI), "balanceOf", func(args []interface{}, _ *big.Int) ([]interface{}, error) {
		return []interface{}{big.NewInt(table[args[0].(common.Address)])}, nil
	})
}

func (f *fixture) troveDebt(list ...contracts.TokenAmount) {
	f.caller.Returns(troveManager, f.abi(contracts.TroveManagerABI), "getTroveDebt", tokenAmounts(list))
}

func (f *fixture) troveColl(list ...contracts.TokenAmount) {
	f.caller.Returns(troveManager, f.abi(contracts.TroveManagerABI), "getTroveColl", tokenAmounts(list))
}

func (f *fixture) deposits(list ...contracts.TokenAmount) {
	f.caller.Returns(stabilityMgr, f.abi(contracts.StabilityPoolManagerABI), "getCompoundedDeposits", tokenAmounts(list))
}

func tokenAmounts(list []contracts.TokenAmount) []contracts.TokenAmount {
	if list == nil {
		return []contracts.TokenAmount{}
	}
	return list
}

func amount(token common.Address, v int64) contracts.TokenAmount {
	return contracts.TokenAmount{TokenAddress: token, Amount: big.NewInt(v)}
}

// eventLog builds a raw log the way the node would emit event name of parsed.
func (f *fixture) eventLog(parsed abi.ABI, name string, source common.Address, block, index uint64, indexed []common.Hash, data ...interface{}) model.LogRecord {
	f.t.Helper()
	event, ok := parsed.Events[name]
	require.True(f.t, ok, "event %s", name)

	packed, err := event.Inputs.NonIndexed().Pack(data...)
	require.NoError(f.t, err)

	topics := []string{event.ID.Hex()}
	for _, h := range indexed {
		topics = append(topics, h.Hex())
	}
	return model.LogRecord{
		ChainID:     1,
		BlockNumber: block,
		BlockHash:   common.BigToHash(new(big.Int).SetUint64(block)).Hex(),
		TxHash:      common.BigToHash(new(big.Int).SetUint64(block*1000 + index)).Hex(),
		LogIndex:    index,
		Address:     source.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(packed),
		Timestamp:   1_700_000_000 + block,
	}
}

func addrTopic(a common.Address) common.Hash {
	return common.BytesToHash(a.Bytes())
}
