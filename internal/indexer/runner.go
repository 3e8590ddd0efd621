package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"troveScope/internal/chain"
	"troveScope/internal/metrics"
	"troveScope/internal/model"
	"troveScope/internal/storage"
)

// RunConfig holds runtime settings for the indexer.
type RunConfig struct {
	FromBlock uint64
	// ToBlock of zero means the chain head minus Confirmations.
	ToBlock uint64
	// Addresses may be empty when Topic0 is set; the node then matches
	// logs of every contract.
	Addresses     []common.Address
	Topic0        []common.Hash
	BatchSize     uint64
	Confirmations uint64
	MaxRetries    int
	RetryBackoff  time.Duration
	// Follow keeps polling the head after the initial range is done.
	Follow       bool
	PollInterval time.Duration
}

// Runner streams logs from the chain and hands them to a sink in order.
type Runner struct {
	cfg        RunConfig
	chain      chain.LogReader
	sink       storage.LogSink
	logger     *zap.Logger
	checkpoint Checkpointer
	metrics    *metrics.Metrics
}

// NewRunner builds a Runner with its dependencies. checkpoint may be nil.
func NewRunner(cfg RunConfig, reader chain.LogReader, sink storage.LogSink, checkpoint Checkpointer, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		chain:      reader,
		sink:       sink,
		logger:     logger,
		checkpoint: checkpoint,
	}
}

// WithMetrics reports the last processed block to m.
func (r *Runner) WithMetrics(m *metrics.Metrics) *Runner {
	r.metrics = m
	return r
}

// Run executes the indexing loop.
func (r *Runner) Run(ctx context.Context) error {
	if r.chain == nil {
		return fmt.Errorf("chain client is nil")
	}
	if r.sink == nil {
		return fmt.Errorf("sink is nil")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if len(r.cfg.Addresses) == 0 && len(r.cfg.Topic0) == 0 {
		return fmt.Errorf("at least one address or topic0 is required")
	}

	chainID, err := r.chain.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}
	chainIDValue := chainID.Uint64()

	from := r.cfg.FromBlock
	if r.checkpoint != nil {
		last, ok, err := r.checkpoint.Load(ctx)
		if err != nil {
			return err
		}
		if ok && last >= from {
			from = last + 1
			r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", last), zap.Uint64("from", from))
		}
	}

	for {
		to, ok, err := r.target(ctx)
		if err != nil {
			return err
		}

		if !ok || from > to {
			if !r.cfg.Follow {
				r.logger.Info("nothing to sync", zap.Uint64("from", from), zap.Uint64("to", to))
				return nil
			}
		} else {
			if err := r.syncRange(ctx, chainIDValue, from, to); err != nil {
				return err
			}
			from = to + 1
			if !r.cfg.Follow {
				return nil
			}
		}

		if err := sleepCtx(ctx, r.pollInterval()); err != nil {
			return err
		}
	}
}

// target is the last block the next pass may read. ok is false while the
// chain has fewer blocks than the confirmation depth.
func (r *Runner) target(ctx context.Context) (uint64, bool, error) {
	if r.cfg.ToBlock != 0 && !r.cfg.Follow {
		return r.cfg.ToBlock, true, nil
	}
	var latest uint64
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		latest, err = r.chain.LatestBlockNumber(ctx)
		return err
	})
	if err != nil {
		return 0, false, fmt.Errorf("get latest block: %w", err)
	}
	head, ok := SafeHead(latest, r.cfg.Confirmations, r.cfg.ToBlock)
	return head, ok, nil
}

func (r *Runner) syncRange(ctx context.Context, chainID, from, to uint64) error {
	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		r.logger.Info("fetch logs", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))

		logs, err := r.filterLogsWithRetry(ctx, blockRange.From, blockRange.To)
		if err != nil {
			return fmt.Errorf("filter logs: %w", err)
		}

		records, err := r.buildRecords(ctx, chainID, logs)
		if err != nil {
			return err
		}

		if err := r.sink.PutLogBatch(ctx, records); err != nil {
			return fmt.Errorf("handle logs %d-%d: %w", blockRange.From, blockRange.To, err)
		}

		if r.checkpoint != nil {
			if err := r.checkpoint.Save(ctx, blockRange.To); err != nil {
				return err
			}
		}
		r.metrics.SetLastBlock(blockRange.To)

		r.logger.Info("batch complete", zap.Int("logs", len(records)), zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
	}
	return nil
}

func (r *Runner) buildRecords(ctx context.Context, chainID uint64, logs []types.Log) ([]model.LogRecord, error) {
	logs = orderLogs(logs)
	ingestedAt := time.Now().UTC()
	records := make([]model.LogRecord, 0, len(logs))
	for _, log := range logs {
		ts, err := r.blockTimestampWithRetry(ctx, log.BlockNumber)
		if err != nil {
			return nil, fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
		}
		records = append(records, toLogRecord(chainID, log, ts, ingestedAt))
	}
	return records, nil
}

func (r *Runner) filterLogsWithRetry(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	var logs []types.Log
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = r.chain.FilterLogs(ctx, fromBlock, toBlock, r.cfg.Addresses, r.cfg.Topic0)
		if err != nil {
			r.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
		}
		return err
	})
	return logs, err
}

func (r *Runner) blockTimestampWithRetry(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		ts, err = r.chain.BlockTimestamp(ctx, blockNumber)
		if err != nil {
			r.logger.Warn("block timestamp fetch failed", zap.Error(err), zap.Uint64("block_number", blockNumber))
		}
		return err
	})
	return ts, err
}

func (r *Runner) pollInterval() time.Duration {
	if r.cfg.PollInterval <= 0 {
		return 5 * time.Second
	}
	return r.cfg.PollInterval
}
