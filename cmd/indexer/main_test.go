package main

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"troveScope/internal/config"
	"troveScope/internal/subgraph"
)

func TestParseContracts(t *testing.T) {
	got, err := parseContracts(config.ContractsConfig{
		TroveManager: "0x00000000000000000000000000000000000000a1",
		SwapFactory:  "0x00000000000000000000000000000000000000a5",
		DebtTokens:   []string{"0x00000000000000000000000000000000000000d1"},
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.TroveManager != common.HexToAddress("0xa1") {
		t.Fatalf("unexpected trove manager: %s", got.TroveManager.Hex())
	}
	if got.PriceFeed != (common.Address{}) {
		t.Fatalf("unset role should stay zero: %s", got.PriceFeed.Hex())
	}
	if len(got.DebtTokens) != 1 || len(got.Pairs) != 0 {
		t.Fatalf("unexpected dynamic sources: %+v", got)
	}
}

func TestParseContractsRejectsBadInput(t *testing.T) {
	if _, err := parseContracts(config.ContractsConfig{TroveManager: "0x1234"}); err == nil {
		t.Fatalf("expected invalid address error")
	}
	if _, err := parseContracts(config.ContractsConfig{PriceFeed: "0x00000000000000000000000000000000000000a3"}); err == nil {
		t.Fatalf("expected error without a source contract")
	}
}

func TestParseTokens(t *testing.T) {
	tokens, err := parseTokens(
		[]string{"BTC=0x00000000000000000000000000000000000000c1"},
		[]string{"USDX=0x00000000000000000000000000000000000000d1"},
	)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(tokens) != 2 || !tokens[0].IsDebtToken || tokens[1].IsDebtToken {
		t.Fatalf("unexpected tokens: %+v", tokens)
	}

	_, err = parseTokens(
		[]string{"USDX=0x00000000000000000000000000000000000000c1"},
		[]string{"USDX=0x00000000000000000000000000000000000000d1"},
	)
	if err == nil {
		t.Fatalf("expected duplicate symbol error")
	}
}

func TestContractAddressesNames(t *testing.T) {
	m := contractAddresses(subgraph.Contracts{SwapFactory: common.HexToAddress("0xa5")})
	if m["swapFactory"] != common.HexToAddress("0xa5") {
		t.Fatalf("unexpected swap factory: %s", m["swapFactory"].Hex())
	}
	if len(m) != 5 {
		t.Fatalf("unexpected names: %v", m)
	}
}
