package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"troveScope/internal/model"
)

// JSONLSink appends log records to a JSONL file. The file is the replay
// input of the sync command.
type JSONLSink struct {
	path string
	mu   sync.Mutex
}

var _ LogSink = (*JSONLSink)(nil)

func NewJSONLSink(path string) *JSONLSink {
	return &JSONLSink{path: path}
}

// PutLogBatch appends a batch of log records as JSON lines.
func (s *JSONLSink) PutLogBatch(ctx context.Context, logs []model.LogRecord) error {
	if len(logs) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, record := range logs {
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal log record: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write log record: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	return nil
}

// ReadJSONL streams records from a JSONL file written by JSONLSink, calling
// fn for each consecutive batch of at most batchSize records.
func ReadJSONL(ctx context.Context, path string, batchSize int, fn func(context.Context, []model.LogRecord) error) error {
	if batchSize <= 0 {
		batchSize = 500
	}
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open input file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	batch := make([]model.LogRecord, 0, batchSize)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var record model.LogRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			return fmt.Errorf("decode line %d: %w", line, err)
		}
		batch = append(batch, record)
		if len(batch) == batchSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(ctx, batch); err != nil {
				return err
			}
			batch = make([]model.LogRecord, 0, batchSize)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}
	if len(batch) > 0 {
		return fn(ctx, batch)
	}
	return nil
}
