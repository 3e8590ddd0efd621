package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadSyncDefaults(t *testing.T) {
	cfg, err := LoadSync("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Range.BatchSize != 2000 {
		t.Fatalf("unexpected batch size: %d", cfg.Range.BatchSize)
	}
	if cfg.Range.PollInterval != 5*time.Second {
		t.Fatalf("unexpected poll interval: %s", cfg.Range.PollInterval)
	}
	if cfg.CheckpointName != "sync" || cfg.Checkpoint != "" {
		t.Fatalf("unexpected checkpoint settings: %+v", cfg)
	}
	if cfg.Log.Level != "info" || cfg.Log.MaxBackups != 5 {
		t.Fatalf("unexpected log settings: %+v", cfg.Log)
	}
}

func TestLoadAddrSyncFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indexer.yaml")
	content := `
rpc: http://localhost:8545
contracts:
  swap-factory: "0x00000000000000000000000000000000000000a5"
  trove-manager: "0x00000000000000000000000000000000000000a1"
addrbook:
  tokens:
    - "BTC=0x00000000000000000000000000000000000000c1"
  debt-tokens:
    - "USDX=0x00000000000000000000000000000000000000d1"
  pairs: ["BTC/USDX"]
  out: ./out/constants.ts
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadAddrSync(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCURL != "http://localhost:8545" {
		t.Fatalf("unexpected rpc: %s", cfg.RPCURL)
	}
	if cfg.Contracts.SwapFactory != "0x00000000000000000000000000000000000000a5" {
		t.Fatalf("unexpected factory: %s", cfg.Contracts.SwapFactory)
	}
	if !reflect.DeepEqual(cfg.Pairs, []string{"BTC/USDX"}) {
		t.Fatalf("unexpected pairs: %v", cfg.Pairs)
	}
	if len(cfg.Tokens) != 1 || len(cfg.DebtTokens) != 1 {
		t.Fatalf("unexpected tokens: %v %v", cfg.Tokens, cfg.DebtTokens)
	}
	if cfg.Out != "./out/constants.ts" {
		t.Fatalf("unexpected out: %s", cfg.Out)
	}
}

func TestEnvOverridesNestedKeys(t *testing.T) {
	t.Setenv("INDEXER_CONTRACTS_TROVE_MANAGER", "0x00000000000000000000000000000000000000a1")
	t.Setenv("INDEXER_CONTRACTS_DEBT_TOKENS", "0x01, 0x02,")
	t.Setenv("INDEXER_REDIS_ADDR", "localhost:6379")

	cfg, err := LoadSync("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Contracts.TroveManager != "0x00000000000000000000000000000000000000a1" {
		t.Fatalf("unexpected trove manager: %s", cfg.Contracts.TroveManager)
	}
	if !reflect.DeepEqual(cfg.Contracts.DebtTokens, []string{"0x01", "0x02"}) {
		t.Fatalf("unexpected debt tokens: %v", cfg.Contracts.DebtTokens)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("unexpected redis addr: %s", cfg.Redis.Addr)
	}
}

func TestFlagsOverrideDefaults(t *testing.T) {
	flags := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	flags.String("listen", ":8080", "")
	flags.Duration("shutdown-timeout", 10*time.Second, "")
	if err := flags.Parse([]string{"--listen", ":9090", "--shutdown-timeout", "3s"}); err != nil {
		t.Fatalf("parse: %v", err)
	}

	cfg, err := LoadServe("", flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":9090" {
		t.Fatalf("unexpected listen: %s", cfg.Listen)
	}
	if cfg.ShutdownTimeout != 3*time.Second {
		t.Fatalf("unexpected shutdown timeout: %s", cfg.ShutdownTimeout)
	}
}

func TestMissingConfigFileIsAnError(t *testing.T) {
	if _, err := LoadMigrate(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
