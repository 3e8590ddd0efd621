package subgraph

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"troveScope/internal/contracts"
	"troveScope/internal/model"
)

// Event names as they appear in the contract ABIs.
const (
	EventDebtTokenAdded          = "DebtTokenAdded"
	EventCollTokenAdded          = "CollTokenAdded"
	EventTokenPriceChanged       = "TokenPriceChanged"
	EventTransfer                = "Transfer"
	EventTroveDebtChanged        = "TroveDebtChanged"
	EventStabilityDepositChanged = "StabilityDepositChanged"
	EventStabilityGainsWithdrawn = "StabilityGainsWithdrawn"
	EventPairCreated             = "PairCreated"
	EventSync                    = "Sync"
)

// ErrUnhandledEvent marks a log whose topic0 is not handled for its source role.
var ErrUnhandledEvent = errors.New("unhandled event")

// Decoded event payloads. Field names follow the ABI argument names.
type (
	DebtTokenAdded struct {
		DebtTokenAddress common.Address
	}
	CollTokenAdded struct {
		TokenAddress common.Address
	}
	TokenPriceChanged struct {
		Token common.Address
	}
	Transfer struct {
		From  common.Address
		To    common.Address
		Value *big.Int
	}
	TroveDebtChanged struct {
		Borrower common.Address
	}
	StabilityDepositChanged struct {
		Depositor     common.Address
		Token         common.Address
		DepositAmount *big.Int
	}
	StabilityGainsWithdrawn struct {
		Depositor common.Address
	}
	PairCreated struct {
		Token0         common.Address
		Token1         common.Address
		Pair           common.Address
		AllPairsLength *big.Int
	}
	Sync struct {
		Reserve0 *big.Int
		Reserve1 *big.Int
	}
)

type roleEvents struct {
	abi    abi.ABI
	topics map[common.Hash]string
}

// Decoder turns raw logs into typed events according to the source role.
type Decoder struct {
	roles map[Role]roleEvents
}

func NewDecoder() (*Decoder, error) {
	d := &Decoder{roles: make(map[Role]roleEvents)}
	specs := []struct {
		role   Role
		load   func() (abi.ABI, error)
		events []string
	}{
		{RoleTokenManager, contracts.TokenManagerABI, []string{EventDebtTokenAdded, EventCollTokenAdded}},
		{RolePriceFeed, contracts.PriceFeedABI, []string{EventTokenPriceChanged}},
		{RoleDebtToken, contracts.ERC20ABI, []string{EventTransfer}},
		{RoleTroveManager, contracts.TroveManagerABI, []string{EventTroveDebtChanged}},
		{RoleStabilityPoolManager, contracts.StabilityPoolManagerABI, []string{EventStabilityDepositChanged, EventStabilityGainsWithdrawn}},
		{RoleSwapFactory, contracts.SwapFactoryABI, []string{EventPairCreated}},
		{RoleSwapPair, contracts.SwapPairABI, []string{EventSync, EventTransfer}},
	}
	for _, spec := range specs {
		parsed, err := spec.load()
		if err != nil {
			return nil, fmt.Errorf("load %s abi: %w", spec.role, err)
		}
		topics := make(map[common.Hash]string, len(spec.events))
		for _, name := range spec.events {
			event, ok := parsed.Events[name]
			if !ok {
				return nil, fmt.Errorf("%s abi has no event %s", spec.role, name)
			}
			topics[event.ID] = name
		}
		d.roles[spec.role] = roleEvents{abi: parsed, topics: topics}
	}
	return d, nil
}

// Topics returns every handled topic0, deduplicated and sorted.
func (d *Decoder) Topics() []common.Hash {
	set := make(map[common.Hash]struct{})
	for _, re := range d.roles {
		for topic := range re.topics {
			set[topic] = struct{}{}
		}
	}
	out := make([]common.Hash, 0, len(set))
	for topic := range set {
		out = append(out, topic)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

// Decode returns the event name and its typed payload. Logs whose topic0 is
// not handled for role yield ErrUnhandledEvent.
func (d *Decoder) Decode(role Role, log model.LogRecord) (string, interface{}, error) {
	re, ok := d.roles[role]
	if !ok {
		return "", nil, fmt.Errorf("%w: unknown role %s", ErrUnhandledEvent, role)
	}
	topic0, err := parseTopic(log.Topic0())
	if err != nil {
		return "", nil, err
	}
	name, ok := re.topics[topic0]
	if !ok {
		return "", nil, fmt.Errorf("%w: topic0 %s for %s", ErrUnhandledEvent, log.Topic0(), role)
	}

	var out interface{}
	switch name {
	case EventDebtTokenAdded:
		out = &DebtTokenAdded{}
	case EventCollTokenAdded:
		out = &CollTokenAdded{}
	case EventTokenPriceChanged:
		out = &TokenPriceChanged{}
	case EventTransfer:
		out = &Transfer{}
	case EventTroveDebtChanged:
		out = &TroveDebtChanged{}
	case EventStabilityDepositChanged:
		out = &StabilityDepositChanged{}
	case EventStabilityGainsWithdrawn:
		out = &StabilityGainsWithdrawn{}
	case EventPairCreated:
		out = &PairCreated{}
	case EventSync:
		out = &Sync{}
	default:
		return "", nil, fmt.Errorf("%w: %s", ErrUnhandledEvent, name)
	}

	if err := unpackLog(re.abi, out, name, log); err != nil {
		return name, nil, err
	}
	return name, out, nil
}

// unpackLog fills out from the log data and indexed topics.
func unpackLog(parsed abi.ABI, out interface{}, name string, log model.LogRecord) error {
	event := parsed.Events[name]

	data, err := decodeData(log.Data)
	if err != nil {
		return err
	}
	if len(data) > 0 {
		if err := parsed.UnpackIntoInterface(out, name, data); err != nil {
			return fmt.Errorf("unpack %s: %w", name, err)
		}
	} else if len(event.Inputs.NonIndexed()) > 0 {
		return fmt.Errorf("unpack %s: empty data", name)
	}

	indexed := indexedArguments(event.Inputs)
	if len(log.Topics) != len(indexed)+1 {
		return fmt.Errorf("%s: expected %d topics, got %d", name, len(indexed)+1, len(log.Topics))
	}
	topics := make([]common.Hash, 0, len(indexed))
	for _, raw := range log.Topics[1:] {
		topic, err := parseTopic(raw)
		if err != nil {
			return err
		}
		topics = append(topics, topic)
	}
	if err := abi.ParseTopics(out, indexed, topics); err != nil {
		return fmt.Errorf("parse %s topics: %w", name, err)
	}
	return nil
}

func decodeData(dataHex string) ([]byte, error) {
	dataHex = strings.TrimSpace(dataHex)
	if dataHex == "" || dataHex == "0x" {
		return nil, nil
	}
	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	return data, nil
}

func parseTopic(topic string) (common.Hash, error) {
	data, err := hexutil.Decode(topic)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid topic %q: %w", topic, err)
	}
	if len(data) > 32 {
		return common.Hash{}, fmt.Errorf("topic length %d", len(data))
	}
	return common.BytesToHash(data), nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}
