package chaintest

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// LogReader serves a fixed log set the way a node answers eth_getLogs.
type LogReader struct {
	ChainID uint64
	Head    uint64
	Logs    []types.Log
	// FailFilter makes the first n FilterLogs calls fail.
	FailFilter int
	FilterErr  error

	mu          sync.Mutex
	filterCalls int
}

func (r *LogReader) GetChainID(context.Context) (*big.Int, error) {
	return new(big.Int).SetUint64(r.ChainID), nil
}

func (r *LogReader) LatestBlockNumber(context.Context) (uint64, error) {
	return r.Head, nil
}

// BlockTimestamp derives a deterministic timestamp from the block number.
func (r *LogReader) BlockTimestamp(_ context.Context, number uint64) (uint64, error) {
	return 1_700_000_000 + number*12, nil
}

func (r *LogReader) FilterLogs(_ context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error) {
	r.mu.Lock()
	r.filterCalls++
	fail := r.filterCalls <= r.FailFilter
	r.mu.Unlock()
	if fail {
		return nil, r.FilterErr
	}

	var out []types.Log
	for _, log := range r.Logs {
		if log.BlockNumber < fromBlock || log.BlockNumber > toBlock {
			continue
		}
		if len(addresses) > 0 && !containsAddress(addresses, log.Address) {
			continue
		}
		if len(topic0) > 0 && (len(log.Topics) == 0 || !containsHash(topic0, log.Topics[0])) {
			continue
		}
		out = append(out, log)
	}
	return out, nil
}

// FilterCalls reports how many FilterLogs calls were made.
func (r *LogReader) FilterCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filterCalls
}

func containsAddress(list []common.Address, a common.Address) bool {
	for _, v := range list {
		if v == a {
			return true
		}
	}
	return false
}

func containsHash(list []common.Hash, h common.Hash) bool {
	for _, v := range list {
		if v == h {
			return true
		}
	}
	return false
}
