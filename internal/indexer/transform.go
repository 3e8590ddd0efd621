package indexer

import (
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"troveScope/internal/model"
)

type logKey struct {
	block uint64
	tx    common.Hash
	index uint
}

// orderLogs sorts logs by (block, log index) and drops repeats of the same
// log, which some nodes return when a filter range overlaps a reorg.
func orderLogs(logs []types.Log) []types.Log {
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	seen := make(map[logKey]struct{}, len(logs))
	out := logs[:0]
	for _, log := range logs {
		key := logKey{block: log.BlockNumber, tx: log.TxHash, index: log.Index}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, log)
	}
	return out
}

func toLogRecord(chainID uint64, log types.Log, timestamp uint64, ingestedAt time.Time) model.LogRecord {
	record := model.LogRecord{
		ChainID:     chainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash.Hex(),
		TxHash:      log.TxHash.Hex(),
		TxIndex:     uint64(log.TxIndex),
		LogIndex:    uint64(log.Index),
		Address:     log.Address.Hex(),
		Topics:      make([]string, len(log.Topics)),
		Data:        hexutil.Encode(log.Data),
		Removed:     log.Removed,
		Timestamp:   timestamp,
		IngestedAt:  ingestedAt.UTC().Format(time.RFC3339Nano),
	}
	for i, topic := range log.Topics {
		record.Topics[i] = topic.Hex()
	}
	return record
}
