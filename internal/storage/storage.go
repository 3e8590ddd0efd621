package storage

import (
	"context"

	"troveScope/internal/model"
)

// LogSink consumes batches of log records in chain order.
type LogSink interface {
	PutLogBatch(ctx context.Context, logs []model.LogRecord) error
}

// Page selects a window of a list ordered by identity ascending.
// After is exclusive; an empty After starts from the beginning.
type Page struct {
	After string
	Limit int
}

// DefaultPageLimit applies when Page.Limit is not positive.
const DefaultPageLimit = 100

// Normalize returns the page with a usable limit.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	return p
}
