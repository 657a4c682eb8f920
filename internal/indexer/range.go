package indexer

import "fmt"

// BlockRange is an inclusive block range.
type BlockRange struct {
	From uint64
	To   uint64
}

// Len returns the number of blocks in r.
func (r BlockRange) Len() uint64 {
	if r.To < r.From {
		return 0
	}
	return r.To - r.From + 1
}

// RecentRange returns the last window blocks ending at head, clamped at genesis.
func RecentRange(head, window uint64) (BlockRange, error) {
	if window == 0 {
		return BlockRange{}, fmt.Errorf("activity window must be greater than zero")
	}
	from := uint64(0)
	if head+1 > window {
		from = head + 1 - window
	}
	return BlockRange{From: from, To: head}, nil
}

// SplitRange splits a block range into batches of at most batchSize blocks.
func SplitRange(from, to, batchSize uint64) ([]BlockRange, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to block must be >= from block")
	}

	ranges := make([]BlockRange, 0)
	for start := from; ; start += batchSize {
		end := to
		if to-start >= batchSize {
			end = start + batchSize - 1
		}
		ranges = append(ranges, BlockRange{From: start, To: end})
		if end == to {
			break
		}
	}

	return ranges, nil
}
