package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"troveScope/internal/addrbook"
	"troveScope/internal/chain"
	"troveScope/internal/config"
	"troveScope/internal/contracts"
	"troveScope/internal/subgraph"
)

func runAddrSync(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadAddrSync(cfgFile, cmd.Flags())
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
	if cfg.Out == "" {
		return fmt.Errorf("addrbook.out is required")
	}

	sources, err := parseContracts(cfg.Contracts)
	if err != nil {
		return err
	}
	tokens, err := parseTokens(cfg.Tokens, cfg.DebtTokens)
	if err != nil {
		return err
	}
	specs := make([]addrbook.PairSpec, 0, len(cfg.Pairs))
	for _, input := range cfg.Pairs {
		spec, err := addrbook.ParsePair(input)
		if err != nil {
			return err
		}
		specs = append(specs, spec)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	reader := contracts.NewReader(chainClient, nil)
	pairs, err := addrbook.Resolve(ctx, reader, sources.SwapFactory, tokens, specs, logger)
	if err != nil {
		return err
	}

	book := addrbook.NewBook(contractAddresses(sources), tokens, pairs)
	region, err := addrbook.Render(book)
	if err != nil {
		return err
	}
	changed, err := addrbook.UpdateFile(cfg.Out, region)
	if err != nil {
		return err
	}

	logger.Info("address book synced",
		zap.String("out", cfg.Out),
		zap.Int("tokens", len(book.Tokens)),
		zap.Int("pairs", len(book.Pairs)),
		zap.Bool("changed", changed),
	)
	return nil
}

func parseTokens(coll, debt []string) ([]addrbook.Token, error) {
	tokens := make([]addrbook.Token, 0, len(coll)+len(debt))
	seen := make(map[string]struct{}, cap(tokens))
	add := func(inputs []string, isDebt bool) error {
		for _, input := range inputs {
			token, err := addrbook.ParseToken(input, isDebt)
			if err != nil {
				return err
			}
			if _, dup := seen[token.Symbol]; dup {
				return fmt.Errorf("duplicate token symbol %s", token.Symbol)
			}
			seen[token.Symbol] = struct{}{}
			tokens = append(tokens, token)
		}
		return nil
	}
	if err := add(debt, true); err != nil {
		return nil, err
	}
	if err := add(coll, false); err != nil {
		return nil, err
	}
	return tokens, nil
}

func contractAddresses(c subgraph.Contracts) map[string]common.Address {
	return map[string]common.Address{
		"troveManager":         c.TroveManager,
		"stabilityPoolManager": c.StabilityPoolManager,
		"priceFeed":            c.PriceFeed,
		"tokenManager":         c.TokenManager,
		"swapFactory":          c.SwapFactory,
	}
}
