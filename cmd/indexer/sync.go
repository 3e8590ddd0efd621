package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"troveScope/internal/cache"
	"troveScope/internal/chain"
	"troveScope/internal/config"
	"troveScope/internal/contracts"
	"troveScope/internal/indexer"
	"troveScope/internal/metrics"
	"troveScope/internal/model"
	"troveScope/internal/storage"
	"troveScope/internal/storage/memory"
	"troveScope/internal/storage/postgres"
	"troveScope/internal/subgraph"
)

func runSync(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSync(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	sources, err := parseContracts(cfg.Contracts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	m := metrics.New(cfg.Namespace)
	if cfg.MetricsListen != "" {
		go serveMetrics(ctx, cfg.MetricsListen, m, logger)
	}

	store, closeStore, err := openStore(ctx, cfg.PGDSN, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	tokenCache, closeCache, err := openTokenCache(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer closeCache()

	proc, err := subgraph.NewProcessor(subgraph.Options{
		Registry:     subgraph.NewRegistry(sources),
		Reader:       contracts.NewReader(chainClient, m),
		Store:        store,
		TokenCache:   tokenCache,
		Metrics:      m,
		Logger:       logger,
		CallAtLatest: cfg.CallAtLatest,
	})
	if err != nil {
		return err
	}
	if err := proc.Init(ctx); err != nil {
		return err
	}

	if cfg.In != "" {
		return replay(ctx, cfg.In, proc, logger)
	}

	var checkpoint indexer.Checkpointer = &indexer.StoreCheckpoint{Store: store, Name: cfg.CheckpointName}
	if cfg.Checkpoint != "" {
		checkpoint = indexer.NewFileCheckpoint(cfg.Checkpoint)
	}

	runner := indexer.NewRunner(runConfig(cfg.Range, nil, proc.Topics()), chainClient, proc, checkpoint, logger).WithMetrics(m)

	logger.Info("sync start",
		zap.String("rpc", cfg.RPCURL),
		zap.Uint64("from", cfg.Range.FromBlock),
		zap.Uint64("to", cfg.Range.ToBlock),
		zap.Bool("follow", cfg.Range.Follow),
		zap.Bool("call_at_latest", cfg.CallAtLatest),
		zap.Bool("postgres", cfg.PGDSN != ""),
		zap.Bool("redis", cfg.Redis.Addr != ""),
	)

	return runner.Run(ctx)
}

func replay(ctx context.Context, path string, proc *subgraph.Processor, logger *zap.Logger) error {
	logger.Info("replay start", zap.String("in", path))
	start := time.Now()
	var total int
	var last uint64
	err := storage.ReadJSONL(ctx, path, 0, func(ctx context.Context, logs []model.LogRecord) error {
		if len(logs) == 0 {
			return nil
		}
		if err := proc.PutLogBatch(ctx, logs); err != nil {
			return err
		}
		total += len(logs)
		last = logs[len(logs)-1].BlockNumber
		return nil
	})
	if err != nil {
		return fmt.Errorf("replay %s: %w", path, err)
	}
	logger.Info("replay done",
		zap.Int("logs", total),
		zap.Uint64("last_block", last),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func parseContracts(cfg config.ContractsConfig) (subgraph.Contracts, error) {
	var out subgraph.Contracts
	singles := []struct {
		name  string
		value string
		dst   *common.Address
	}{
		{"trove-manager", cfg.TroveManager, &out.TroveManager},
		{"stability-pool-manager", cfg.StabilityPoolManager, &out.StabilityPoolManager},
		{"price-feed", cfg.PriceFeed, &out.PriceFeed},
		{"token-manager", cfg.TokenManager, &out.TokenManager},
		{"swap-factory", cfg.SwapFactory, &out.SwapFactory},
	}
	for _, s := range singles {
		addr, _, err := indexer.ParseAddress(s.value)
		if err != nil {
			return out, fmt.Errorf("contracts.%s: %w", s.name, err)
		}
		*s.dst = addr
	}

	var err error
	if out.DebtTokens, err = indexer.ParseAddresses(cfg.DebtTokens); err != nil {
		return out, fmt.Errorf("contracts.debt-tokens: %w", err)
	}
	if out.Pairs, err = indexer.ParseAddresses(cfg.Pairs); err != nil {
		return out, fmt.Errorf("contracts.pairs: %w", err)
	}
	if out.TroveManager == (common.Address{}) && out.TokenManager == (common.Address{}) && out.SwapFactory == (common.Address{}) {
		return out, fmt.Errorf("at least one of contracts.trove-manager, contracts.token-manager or contracts.swap-factory is required")
	}
	return out, nil
}

// openStore returns the Postgres store when dsn is set and an in-memory
// store otherwise.
func openStore(ctx context.Context, dsn string, logger *zap.Logger) (storage.EntityStore, func(), error) {
	if dsn == "" {
		logger.Warn("no pg-dsn set, entities are kept in memory and lost on exit")
		return memory.NewStore(), func() {}, nil
	}
	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	return store, store.Close, nil
}

func openTokenCache(ctx context.Context, cfg config.RedisConfig) (contracts.TokenMetaCache, func(), error) {
	if cfg.Addr == "" {
		return contracts.NewMemoryTokenMetaCache(), func() {}, nil
	}
	redisCache, err := cache.NewRedisTokenMetaCache(ctx, cfg.Addr, cfg.Password, cfg.DB, cfg.TTL)
	if err != nil {
		return nil, nil, err
	}
	return redisCache, func() { _ = redisCache.Close() }, nil
}

func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics, logger *zap.Logger) {
	r := chi.NewRouter()
	r.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", zap.Error(err))
	}
}
