package types

import (
	"fmt"
	"time"
)

// Window is a closed interval of Unix millisecond timestamps.
type Window struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

func (w Window) Valid() bool { return w.Start <= w.End }

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s]",
		time.UnixMilli(w.Start).UTC().Format(time.RFC3339),
		time.UnixMilli(w.End).UTC().Format(time.RFC3339))
}

// CachedRange is the single contiguous interval known to be populated for a
// (source, scope). It only ever widens.
type CachedRange struct {
	Source      string    `json:"exchange"`
	Scope       string    `json:"scope"`
	Oldest      int64     `json:"oldest_timestamp"`
	Newest      int64     `json:"newest_timestamp"`
	LastUpdated time.Time `json:"last_updated"`
}

// TradeFilter narrows store queries. Zero values mean "unbounded".
type TradeFilter struct {
	Source string
	Symbol string
	Start  int64
	End    int64
}

// FetchRequest is one upstream call; Symbol is in internal form or empty for all.
type FetchRequest struct {
	Symbol string
	Start  int64
	End    int64
}
