package indexer

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ParseAddress parses an optional address. Empty input yields the zero
// address and ok=false.
func ParseAddress(input string) (addr common.Address, ok bool, err error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return common.Address{}, false, nil
	}
	if !common.IsHexAddress(input) {
		return common.Address{}, false, fmt.Errorf("invalid address: %s", input)
	}
	return common.HexToAddress(input), true, nil
}

// ParseAddresses parses a list of addresses, skipping blanks and repeats
// regardless of casing.
func ParseAddresses(inputs []string) ([]common.Address, error) {
	addresses := make([]common.Address, 0, len(inputs))
	seen := make(map[common.Address]struct{}, len(inputs))
	for _, input := range inputs {
		addr, ok, err := ParseAddress(input)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		addresses = append(addresses, addr)
	}
	return addresses, nil
}

// ParseTopic0 parses 32-byte event signature hashes.
func ParseTopic0(inputs []string) ([]common.Hash, error) {
	topics := make([]common.Hash, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		data, err := hexutil.Decode(input)
		if err != nil {
			return nil, fmt.Errorf("invalid topic0 %s: %w", input, err)
		}
		if len(data) != common.HashLength {
			return nil, fmt.Errorf("topic0 %s has %d bytes, want %d", input, len(data), common.HashLength)
		}
		topics = append(topics, common.BytesToHash(data))
	}
	return topics, nil
}
