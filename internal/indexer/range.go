package indexer

import "fmt"

// BlockRange is an inclusive block range.
type BlockRange struct {
	From uint64
	To   uint64
}

// Len is the number of blocks in the range.
func (b BlockRange) Len() uint64 {
	return b.To - b.From + 1
}

// SplitRange cuts [from, to] into consecutive batches of at most batchSize blocks.
func SplitRange(from, to, batchSize uint64) ([]BlockRange, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to block %d is before from block %d", to, from)
	}

	ranges := make([]BlockRange, 0, (to-from)/batchSize+1)
	for start := from; ; start += batchSize {
		end := to
		if to-start >= batchSize {
			end = start + batchSize - 1
		}
		ranges = append(ranges, BlockRange{From: start, To: end})
		if end == to {
			return ranges, nil
		}
	}
}

// SafeHead is the newest block with enough confirmations on top of latest,
// capped at limit when limit is non-zero. ok is false while the chain is
// shorter than the confirmation depth.
func SafeHead(latest, confirmations, limit uint64) (head uint64, ok bool) {
	if latest < confirmations {
		return 0, false
	}
	head = latest - confirmations
	if limit != 0 && limit < head {
		head = limit
	}
	return head, true
}
