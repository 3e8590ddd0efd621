package indexer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"troveScope/internal/chain/chaintest"
	"troveScope/internal/model"
	"troveScope/internal/storage/memory"
)

type collectSink struct {
	batches [][]model.LogRecord
	failAt  int
}

func (s *collectSink) PutLogBatch(_ context.Context, logs []model.LogRecord) error {
	if s.failAt > 0 && len(s.batches)+1 == s.failAt {
		return errors.New("sink failed")
	}
	s.batches = append(s.batches, logs)
	return nil
}

func (s *collectSink) all() []model.LogRecord {
	var out []model.LogRecord
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}

var (
	topicA = common.HexToHash("0xaa")
	topicB = common.HexToHash("0xbb")
	addrX  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	addrY  = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func testLogs() []types.Log {
	tx := common.HexToHash("0x01")
	return []types.Log{
		{Address: addrX, Topics: []common.Hash{topicA}, BlockNumber: 11, TxHash: tx, Index: 3},
		{Address: addrY, Topics: []common.Hash{topicA}, BlockNumber: 10, TxHash: tx, Index: 1},
		{Address: addrY, Topics: []common.Hash{topicB}, BlockNumber: 10, TxHash: tx, Index: 2},
		{Address: addrX, Topics: []common.Hash{topicA}, BlockNumber: 10, TxHash: tx, Index: 0},
		{Address: addrX, Topics: []common.Hash{topicA}, BlockNumber: 10, TxHash: tx, Index: 0},
	}
}

func TestRunnerTopicOnlyFilterOrdersAndDedupes(t *testing.T) {
	reader := &chaintest.LogReader{ChainID: 1, Head: 20, Logs: testLogs()}
	sink := &collectSink{}
	cfg := RunConfig{FromBlock: 10, ToBlock: 12, Topic0: []common.Hash{topicA}, BatchSize: 100}

	if err := NewRunner(cfg, reader, sink, nil, nil).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	got := sink.all()
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	if got[0].LogIndex != 0 || got[1].LogIndex != 1 || got[2].BlockNumber != 11 {
		t.Fatalf("records out of order: %+v", got)
	}
	if got[0].Timestamp != 1_700_000_000+10*12 || got[0].ChainID != 1 {
		t.Fatalf("unexpected record metadata: %+v", got[0])
	}
}

func TestRunnerRequiresFilter(t *testing.T) {
	reader := &chaintest.LogReader{ChainID: 1, Head: 20}
	cfg := RunConfig{FromBlock: 1, ToBlock: 2, BatchSize: 1}
	if err := NewRunner(cfg, reader, &collectSink{}, nil, nil).Run(context.Background()); err == nil {
		t.Fatalf("expected error without addresses or topics")
	}
}

func TestRunnerResumesFromStoreCheckpoint(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	if err := store.SaveState(ctx, "sync", 10); err != nil {
		t.Fatalf("save state: %v", err)
	}
	cp := &StoreCheckpoint{Store: store, Name: "sync"}

	reader := &chaintest.LogReader{ChainID: 1, Head: 20, Logs: testLogs()}
	sink := &collectSink{}
	cfg := RunConfig{FromBlock: 5, ToBlock: 12, Addresses: []common.Address{addrX}, BatchSize: 1}

	if err := NewRunner(cfg, reader, sink, cp, nil).Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	got := sink.all()
	if len(got) != 1 || got[0].BlockNumber != 11 {
		t.Fatalf("expected only block 11 after resume, got %+v", got)
	}
	last, ok, err := store.LoadState(ctx, "sync")
	if err != nil || !ok || last != 12 {
		t.Fatalf("checkpoint not advanced: %d %v %v", last, ok, err)
	}
}

func TestRunnerDoesNotCheckpointFailedBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cp.json")
	cp := NewFileCheckpoint(path)
	reader := &chaintest.LogReader{ChainID: 1, Head: 20, Logs: testLogs()}
	sink := &collectSink{failAt: 2}
	cfg := RunConfig{FromBlock: 10, ToBlock: 11, Topic0: []common.Hash{topicA}, BatchSize: 1}

	if err := NewRunner(cfg, reader, sink, cp, nil).Run(context.Background()); err == nil {
		t.Fatalf("expected sink error")
	}
	last, ok, err := cp.Load(context.Background())
	if err != nil || !ok || last != 10 {
		t.Fatalf("expected checkpoint at 10, got %d %v %v", last, ok, err)
	}
}

func TestRunnerRetriesFilterLogs(t *testing.T) {
	reader := &chaintest.LogReader{
		ChainID:    1,
		Head:       20,
		Logs:       testLogs(),
		FailFilter: 2,
		FilterErr:  errors.New("rate limited"),
	}
	sink := &collectSink{}
	cfg := RunConfig{
		FromBlock:    10,
		ToBlock:      10,
		Topic0:       []common.Hash{topicA},
		BatchSize:    10,
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
	}
	if err := NewRunner(cfg, reader, sink, nil, nil).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if reader.FilterCalls() != 3 {
		t.Fatalf("expected 3 filter calls, got %d", reader.FilterCalls())
	}
}

func TestRunnerHonoursConfirmations(t *testing.T) {
	reader := &chaintest.LogReader{ChainID: 1, Head: 12, Logs: testLogs()}
	sink := &collectSink{}
	cfg := RunConfig{FromBlock: 10, Topic0: []common.Hash{topicA}, BatchSize: 10, Confirmations: 2}
	if err := NewRunner(cfg, reader, sink, nil, nil).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, r := range sink.all() {
		if r.BlockNumber > 10 {
			t.Fatalf("record beyond confirmed head: %+v", r)
		}
	}
}

func TestRunnerWaitsForConfirmationDepth(t *testing.T) {
	reader := &chaintest.LogReader{ChainID: 1, Head: 1, Logs: testLogs()}
	sink := &collectSink{}
	cfg := RunConfig{Topic0: []common.Hash{topicA}, BatchSize: 10, Confirmations: 5}
	if err := NewRunner(cfg, reader, sink, nil, nil).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if reader.FilterCalls() != 0 {
		t.Fatalf("expected no filter calls before the chain reaches the confirmation depth, got %d", reader.FilterCalls())
	}
}
