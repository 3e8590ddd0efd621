package subgraph

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"troveScope/internal/contracts"
	"troveScope/internal/metrics"
	"troveScope/internal/model"
	"troveScope/internal/storage"
)

// Options wires a Processor.
type Options struct {
	Registry   *Registry
	Reader     *contracts.Reader
	Store      storage.EntityStore
	TokenCache contracts.TokenMetaCache
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
	// CallAtLatest reads contract state at the latest block instead of the
	// event block, for nodes without archive state.
	CallAtLatest bool
}

// Processor runs the entity handlers over logs in chain order.
type Processor struct {
	registry     *Registry
	decoder      *Decoder
	reader       *contracts.Reader
	store        storage.EntityStore
	tokenCache   contracts.TokenMetaCache
	metrics      *metrics.Metrics
	logger       *zap.Logger
	callAtLatest bool
}

var _ storage.LogSink = (*Processor)(nil)

func NewProcessor(opts Options) (*Processor, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("registry is nil")
	}
	if opts.Reader == nil {
		return nil, fmt.Errorf("contract reader is nil")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("store is nil")
	}
	decoder, err := NewDecoder()
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cache := opts.TokenCache
	if cache == nil {
		cache = contracts.NewMemoryTokenMetaCache()
	}
	return &Processor{
		registry:     opts.Registry,
		decoder:      decoder,
		reader:       opts.Reader,
		store:        opts.Store,
		tokenCache:   cache,
		metrics:      opts.Metrics,
		logger:       logger,
		callAtLatest: opts.CallAtLatest,
	}, nil
}

// Topics lists the topic0 values the processor handles.
func (p *Processor) Topics() []common.Hash {
	return p.decoder.Topics()
}

// Init restores dynamic data sources from previously indexed entities.
func (p *Processor) Init(ctx context.Context) error {
	page := storage.Page{Limit: 500}
	debtTokens := 0
	for {
		tokens, err := p.store.ListTokens(ctx, page)
		if err != nil {
			return fmt.Errorf("restore debt tokens: %w", err)
		}
		for _, t := range tokens {
			if t.IsDebtToken && p.registry.Register(common.HexToAddress(t.Address), RoleDebtToken) {
				debtTokens++
			}
		}
		if len(tokens) < page.Limit {
			break
		}
		page.After = tokens[len(tokens)-1].ID()
	}

	page = storage.Page{Limit: 500}
	pairs := 0
	for {
		pools, err := p.store.ListPools(ctx, page)
		if err != nil {
			return fmt.Errorf("restore pairs: %w", err)
		}
		for _, pool := range pools {
			if p.registry.Register(common.HexToAddress(pool.Address), RoleSwapPair) {
				pairs++
			}
		}
		if len(pools) < page.Limit {
			break
		}
		page.After = pools[len(pools)-1].ID()
	}

	p.logger.Info("data sources restored",
		zap.Int("debt_tokens", debtTokens),
		zap.Int("pairs", pairs),
		zap.Int("total", p.registry.Len()),
	)
	return nil
}

// PutLogBatch handles logs in order and stops at the first handler failure.
func (p *Processor) PutLogBatch(ctx context.Context, logs []model.LogRecord) error {
	for _, log := range logs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.HandleLog(ctx, log); err != nil {
			return err
		}
	}
	return nil
}

// HandleLog dispatches one log to its handler. Logs of unknown sources,
// removed logs and undecodable logs are skipped. Contract call and store
// failures are returned.
func (p *Processor) HandleLog(ctx context.Context, log model.LogRecord) error {
	if log.Removed {
		p.logger.Warn("skip removed log", zap.String("key", log.Key()))
		p.metrics.EventSkipped("removed")
		return nil
	}
	if !common.IsHexAddress(log.Address) {
		p.metrics.EventSkipped("invalid_address")
		return nil
	}
	source := common.HexToAddress(log.Address)
	role, ok := p.registry.Role(source)
	if !ok {
		p.metrics.EventSkipped("unknown_source")
		return nil
	}

	name, event, err := p.decoder.Decode(role, log)
	if err != nil {
		if errors.Is(err, ErrUnhandledEvent) {
			p.metrics.EventSkipped("unhandled_event")
			return nil
		}
		decodeErr := model.NewDecodeError(log, string(role), err)
		p.logger.Warn("decode failed",
			zap.String("source", decodeErr.Source),
			zap.String("address", decodeErr.Address),
			zap.Uint64("block_number", decodeErr.BlockNumber),
			zap.Uint64("log_index", decodeErr.LogIndex),
			zap.String("topic0", decodeErr.Topic0),
			zap.String("error", decodeErr.Error),
		)
		p.metrics.EventSkipped("decode_error")
		return nil
	}

	start := time.Now()
	if err := p.dispatch(ctx, role, source, event, log); err != nil {
		p.metrics.EventFailed(name)
		return fmt.Errorf("handle %s at %s: %w", name, log.Key(), err)
	}
	p.metrics.EventHandled(name, time.Since(start))
	p.logger.Debug("event handled",
		zap.String("event", name),
		zap.String("role", string(role)),
		zap.Uint64("block_number", log.BlockNumber),
		zap.Uint64("log_index", log.LogIndex),
	)
	return nil
}

func (p *Processor) dispatch(ctx context.Context, role Role, source common.Address, event interface{}, log model.LogRecord) error {
	switch ev := event.(type) {
	case *DebtTokenAdded:
		return p.handleDebtTokenAdded(ctx, ev, log)
	case *CollTokenAdded:
		return p.handleCollTokenAdded(ctx, ev, log)
	case *TokenPriceChanged:
		return p.handleTokenPriceChanged(ctx, source, ev, log)
	case *Transfer:
		if role == RoleSwapPair {
			return p.handlePairTransfer(ctx, source, ev, log)
		}
		return p.handleDebtTokenTransfer(ctx, source, ev, log)
	case *TroveDebtChanged:
		return p.handleTroveDebtChanged(ctx, source, ev, log)
	case *StabilityDepositChanged:
		return p.handleStabilityDepositChanged(ctx, ev, log)
	case *StabilityGainsWithdrawn:
		return p.handleStabilityGainsWithdrawn(ctx, source, ev, log)
	case *PairCreated:
		return p.handlePairCreated(ctx, ev, log)
	case *Sync:
		return p.handleSync(ctx, source, ev, log)
	default:
		return fmt.Errorf("no handler for %T", event)
	}
}

// blockTag is the block contract state is read at.
func (p *Processor) blockTag(log model.LogRecord) *big.Int {
	if p.callAtLatest {
		return nil
	}
	return new(big.Int).SetUint64(log.BlockNumber)
}
