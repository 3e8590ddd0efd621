package contracts

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const erc20ABIJSON = `[
  {"anonymous": false, "inputs": [
    {"indexed": true, "internalType": "address", "name": "from", "type": "address"},
    {"indexed": true, "internalType": "address", "name": "to", "type": "address"},
    {"indexed": false, "internalType": "uint256", "name": "value", "type": "uint256"}
  ], "name": "Transfer", "type": "event"},
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "totalSupply", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "account", "type": "address"}], "name": "balanceOf", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

const erc20Bytes32ABIJSON = `[
  {"inputs": [], "name": "symbol", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"}
]`

const tokenAmountListOutput = `[{"components": [
    {"internalType": "address", "name": "tokenAddress", "type": "address"},
    {"internalType": "uint256", "name": "amount", "type": "uint256"}
  ], "internalType": "struct TokenAmount[]", "name": "", "type": "tuple[]"}]`

const troveManagerABIJSON = `[
  {"anonymous": false, "inputs": [
    {"indexed": true, "internalType": "address", "name": "borrower", "type": "address"}
  ], "name": "TroveDebtChanged", "type": "event"},
  {"inputs": [{"internalType": "address", "name": "borrower", "type": "address"}], "name": "getTroveDebt",
   "outputs": ` + tokenAmountListOutput + `, "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "borrower", "type": "address"}], "name": "getTroveColl",
   "outputs": ` + tokenAmountListOutput + `, "stateMutability": "view", "type": "function"}
]`

const stabilityPoolManagerABIJSON = `[
  {"anonymous": false, "inputs": [
    {"indexed": true, "internalType": "address", "name": "depositor", "type": "address"},
    {"indexed": true, "internalType": "address", "name": "token", "type": "address"},
    {"indexed": false, "internalType": "uint256", "name": "depositAmount", "type": "uint256"}
  ], "name": "StabilityDepositChanged", "type": "event"},
  {"anonymous": false, "inputs": [
    {"indexed": true, "internalType": "address", "name": "depositor", "type": "address"}
  ], "name": "StabilityGainsWithdrawn", "type": "event"},
  {"inputs": [{"internalType": "address", "name": "depositor", "type": "address"}], "name": "getCompoundedDeposits",
   "outputs": ` + tokenAmountListOutput + `, "stateMutability": "view", "type": "function"}
]`

const priceFeedABIJSON = `[
  {"anonymous": false, "inputs": [
    {"indexed": true, "internalType": "address", "name": "token", "type": "address"}
  ], "name": "TokenPriceChanged", "type": "event"},
  {"inputs": [{"internalType": "address", "name": "token", "type": "address"}], "name": "getPrice",
   "outputs": [{"internalType": "uint256", "name": "price", "type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

const tokenManagerABIJSON = `[
  {"anonymous": false, "inputs": [
    {"indexed": false, "internalType": "address", "name": "debtTokenAddress", "type": "address"}
  ], "name": "DebtTokenAdded", "type": "event"},
  {"anonymous": false, "inputs": [
    {"indexed": false, "internalType": "address", "name": "tokenAddress", "type": "address"}
  ], "name": "CollTokenAdded", "type": "event"}
]`

const swapFactoryABIJSON = `[
  {"anonymous": false, "inputs": [
    {"indexed": true, "internalType": "address", "name": "token0", "type": "address"},
    {"indexed": true, "internalType": "address", "name": "token1", "type": "address"},
    {"indexed": false, "internalType": "address", "name": "pair", "type": "address"},
    {"indexed": false, "internalType": "uint256", "name": "allPairsLength", "type": "uint256"}
  ], "name": "PairCreated", "type": "event"},
  {"inputs": [
    {"internalType": "address", "name": "tokenA", "type": "address"},
    {"internalType": "address", "name": "tokenB", "type": "address"}
  ], "name": "getPair", "outputs": [{"internalType": "address", "name": "pair", "type": "address"}], "stateMutability": "view", "type": "function"}
]`

const swapPairABIJSON = `[
  {"anonymous": false, "inputs": [
    {"indexed": false, "internalType": "uint112", "name": "reserve0", "type": "uint112"},
    {"indexed": false, "internalType": "uint112", "name": "reserve1", "type": "uint112"}
  ], "name": "Sync", "type": "event"},
  {"anonymous": false, "inputs": [
    {"indexed": true, "internalType": "address", "name": "from", "type": "address"},
    {"indexed": true, "internalType": "address", "name": "to", "type": "address"},
    {"indexed": false, "internalType": "uint256", "name": "value", "type": "uint256"}
  ], "name": "Transfer", "type": "event"},
  {"inputs": [], "name": "token0", "outputs": [{"internalType": "address", "name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "token1", "outputs": [{"internalType": "address", "name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "getReserves", "outputs": [
    {"internalType": "uint112", "name": "_reserve0", "type": "uint112"},
    {"internalType": "uint112", "name": "_reserve1", "type": "uint112"},
    {"internalType": "uint32", "name": "_blockTimestampLast", "type": "uint32"}
  ], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "totalSupply", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "account", "type": "address"}], "name": "balanceOf", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

// lazyABI parses an ABI definition once per process.
type lazyABI struct {
	definition string
	once       sync.Once
	parsed     abi.ABI
	err        error
}

func (l *lazyABI) get() (abi.ABI, error) {
	l.once.Do(func() {
		l.parsed, l.err = abi.JSON(strings.NewReader(l.definition))
	})
	return l.parsed, l.err
}

var (
	erc20ABI                = &lazyABI{definition: erc20ABIJSON}
	erc20Bytes32ABI         = &lazyABI{definition: erc20Bytes32ABIJSON}
	troveManagerABI         = &lazyABI{definition: troveManagerABIJSON}
	stabilityPoolManagerABI = &lazyABI{definition: stabilityPoolManagerABIJSON}
	priceFeedABI            = &lazyABI{definition: priceFeedABIJSON}
	tokenManagerABI         = &lazyABI{definition: tokenManagerABIJSON}
	swapFactoryABI          = &lazyABI{definition: swapFactoryABIJSON}
	swapPairABI             = &lazyABI{definition: swapPairABIJSON}
)

// ERC20ABI returns the parsed ERC20 ABI (string metadata variant).
func ERC20ABI() (abi.ABI, error) { return erc20ABI.get() }

// ERC20Bytes32ABI returns the legacy ERC20 metadata ABI with bytes32 symbol/name.
func ERC20Bytes32ABI() (abi.ABI, error) { return erc20Bytes32ABI.get() }

func TroveManagerABI() (abi.ABI, error) { return troveManagerABI.get() }

func StabilityPoolManagerABI() (abi.ABI, error) { return stabilityPoolManagerABI.get() }

func PriceFeedABI() (abi.ABI, error) { return priceFeedABI.get() }

func TokenManagerABI() (abi.ABI, error) { return tokenManagerABI.get() }

func SwapFactoryABI() (abi.ABI, error) { return swapFactoryABI.get() }

func SwapPairABI() (abi.ABI, error) { return swapPairABI.get() }
