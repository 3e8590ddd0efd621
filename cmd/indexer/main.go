package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"troveScope/internal/chain"
	"troveScope/internal/config"
	"troveScope/internal/indexer"
	"troveScope/internal/storage"
)

func main() {
	root := &cobra.Command{
		Use:          "indexer",
		Short:        "Trove protocol indexer",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Stream raw logs for a block range to JSONL",
		RunE:  runIndexer,
	}

	runCmd.Flags().String("rpc", "", "RPC URL")
	addRangeFlags(runCmd.Flags())
	runCmd.Flags().StringSlice("address", nil, "contract addresses (comma-separated)")
	runCmd.Flags().StringSlice("topic0", nil, "topic0 signatures (comma-separated)")
	runCmd.Flags().String("out", "./data/logs.jsonl", "output JSONL path")
	runCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	runCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	addLogFlags(runCmd.Flags())

	root.AddCommand(runCmd)

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync protocol entities from the chain or a raw log file",
		RunE:  runSync,
	}

	syncCmd.Flags().String("rpc", "", "RPC URL used for logs and contract reads")
	syncCmd.Flags().String("in", "", "replay raw logs JSONL instead of reading logs from the chain")
	addRangeFlags(syncCmd.Flags())
	addContractFlags(syncCmd.Flags())
	syncCmd.Flags().String("pg-dsn", "", "Postgres DSN, empty keeps entities in memory")
	syncCmd.Flags().String("redis-addr", "", "Redis address for the token metadata cache")
	syncCmd.Flags().String("redis-password", "", "Redis password")
	syncCmd.Flags().Int("redis-db", 0, "Redis database")
	syncCmd.Flags().Duration("redis-ttl", 0, "token metadata TTL, 0 keeps entries")
	syncCmd.Flags().String("checkpoint", "", "checkpoint file path, empty stores progress with the entities")
	syncCmd.Flags().String("checkpoint-name", "sync", "progress key in the entity store")
	syncCmd.Flags().Bool("call-at-latest", false, "read contract state at the latest block (no archive node)")
	syncCmd.Flags().String("namespace", "trovescope", "metrics namespace")
	syncCmd.Flags().String("metrics-listen", "", "serve /metrics on this address while syncing")
	addLogFlags(syncCmd.Flags())

	root.AddCommand(syncCmd)

	addrSyncCmd := &cobra.Command{
		Use:   "addrsync",
		Short: "Resolve pair addresses and regenerate the address book region",
		RunE:  runAddrSync,
	}

	addrSyncCmd.Flags().String("rpc", "", "RPC URL")
	addContractFlags(addrSyncCmd.Flags())
	addrSyncCmd.Flags().StringSlice("addrbook.tokens", nil, "collateral tokens as SYMBOL=ADDRESS")
	addrSyncCmd.Flags().StringSlice("addrbook.debt-tokens", nil, "debt tokens as SYMBOL=ADDRESS")
	addrSyncCmd.Flags().StringSlice("addrbook.pairs", nil, "pairs to resolve as TOKEN_A/TOKEN_B")
	addrSyncCmd.Flags().String("addrbook.out", "./frontend/src/constants.ts", "constants module to update")
	addLogFlags(addrSyncCmd.Flags())

	root.AddCommand(addrSyncCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the entity query API",
		RunE:  runServe,
	}

	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	serveCmd.Flags().String("namespace", "trovescope", "metrics namespace")
	serveCmd.Flags().Duration("shutdown-timeout", 10*time.Second, "graceful shutdown timeout")
	addLogFlags(serveCmd.Flags())

	root.AddCommand(serveCmd)

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema",
		RunE:  runMigrate,
	}

	migrateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	addLogFlags(migrateCmd.Flags())

	root.AddCommand(migrateCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addRangeFlags(flags *pflag.FlagSet) {
	flags.Uint64("from", 0, "start block (inclusive)")
	flags.Uint64("to", 0, "end block (inclusive), 0 means latest minus confirmations")
	flags.Uint64("batch-size", 2000, "blocks per batch")
	flags.Uint64("confirmations", 0, "blocks to stay behind the head")
	flags.Bool("follow", false, "keep polling for new blocks after reaching the head")
	flags.Duration("poll-interval", 5*time.Second, "head polling interval with --follow")
	flags.Int("max-retries", 5, "maximum retry attempts")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
}

func addContractFlags(flags *pflag.FlagSet) {
	flags.String("contracts.trove-manager", "", "trove manager address")
	flags.String("contracts.stability-pool-manager", "", "stability pool manager address")
	flags.String("contracts.price-feed", "", "price feed address")
	flags.String("contracts.token-manager", "", "token manager address")
	flags.String("contracts.swap-factory", "", "swap factory address")
	flags.StringSlice("contracts.debt-tokens", nil, "debt token addresses known up front")
	flags.StringSlice("contracts.pairs", nil, "swap pair addresses known up front")
}

func addLogFlags(flags *pflag.FlagSet) {
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-file", "", "also write logs to this file, rotated")
	flags.Int("log-max-size-mb", 100, "rotate the log file at this size")
	flags.Int("log-max-backups", 5, "rotated log files to keep")
}

func runIndexer(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
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

	addresses, err := indexer.ParseAddresses(cfg.Addresses)
	if err != nil {
		return err
	}

	topic0, err := indexer.ParseTopic0(cfg.Topic0)
	if err != nil {
		return err
	}
	if len(addresses) == 0 && len(topic0) == 0 {
		return fmt.Errorf("address or topic0 list is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	var checkpoint indexer.Checkpointer
	if cfg.CheckpointEnabled {
		checkpoint = indexer.NewFileCheckpoint(cfg.Checkpoint)
	}

	runner := indexer.NewRunner(runConfig(cfg.Range, addresses, topic0), chainClient, storage.NewJSONLSink(cfg.Out), checkpoint, logger)

	logger.Info("indexer start",
		zap.String("rpc", cfg.RPCURL),
		zap.Uint64("from", cfg.Range.FromBlock),
		zap.Uint64("to", cfg.Range.ToBlock),
		zap.Int("addresses", len(addresses)),
		zap.Int("topic0", len(topic0)),
		zap.Uint64("batch_size", cfg.Range.BatchSize),
		zap.String("out", cfg.Out),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.String("checkpoint", cfg.Checkpoint),
	)

	return runner.Run(ctx)
}

func runConfig(rc config.RangeConfig, addresses []common.Address, topic0 []common.Hash) indexer.RunConfig {
	return indexer.RunConfig{
		FromBlock:     rc.FromBlock,
		ToBlock:       rc.ToBlock,
		Addresses:     addresses,
		Topic0:        topic0,
		BatchSize:     rc.BatchSize,
		Confirmations: rc.Confirmations,
		MaxRetries:    rc.MaxRetries,
		RetryBackoff:  rc.RetryBackoff,
		Follow:        rc.Follow,
		PollInterval:  rc.PollInterval,
	}
}
