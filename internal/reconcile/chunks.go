package reconcile

import (
	"time"

	"tradedesk/internal/types"
)

const (
	DefaultChunkSize = 7 * 24 * time.Hour
	DefaultMaxChunks = 20
)

// SplitChunks cuts [start, end] into non-overlapping windows of at most size,
// newest first. At most maxChunks windows are returned; truncated reports
// that older history was left out.
func SplitChunks(start, end int64, size time.Duration, maxChunks int) (chunks []types.Window, truncated bool) {
	if start > end {
		return nil, false
	}
	step := size.Milliseconds()
	if step <= 0 {
		step = DefaultChunkSize.Milliseconds()
	}
	if maxChunks <= 0 {
		maxChunks = DefaultMaxChunks
	}
	cursor := end
	for cursor >= start {
		if len(chunks) == maxChunks {
			return chunks, true
		}
		lo := cursor - step + 1
		if lo < start {
			lo = start
		}
		chunks = append(chunks, types.Window{Start: lo, End: cursor})
		cursor = lo - 1
	}
	return chunks, false
}
