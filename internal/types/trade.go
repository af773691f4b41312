package types

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const (
	PositionLong  = "long"
	PositionShort = "short"

	// Closing order side, Bybit convention: a long is closed by a sell.
	SideSell = "Sell"
	SideBuy  = "Buy"

	// ScopeAll is the cache scope used when no symbol filter is given.
	ScopeAll = "all"
)

var hundred = decimal.NewFromInt(100)

// TradeRecord is one reconciled round trip. Immutable once emitted.
type TradeRecord struct {
	Source       string          `json:"exchange"`
	Symbol       string          `json:"symbol"`
	Side         string          `json:"side"`
	PositionSide string          `json:"position_type"`
	EntryPrice   decimal.Decimal `json:"entry_price"`
	ExitPrice    decimal.Decimal `json:"exit_price"`
	Qty          decimal.Decimal `json:"qty"`
	RealizedPnl  decimal.Decimal `json:"closed_pnl"`
	Fee          decimal.Decimal `json:"fee"`
	EntryTime    int64           `json:"entry_time_ms"`
	ExitTime     int64           `json:"exit_time_ms"`
	DurationMs   int64           `json:"duration_ms"`
	// Leg separates the records a single flip fill emits; they share ExitTime.
	Leg       int             `json:"leg"`
	Raw       json.RawMessage `json:"raw,omitempty"`
	FetchedAt time.Time       `json:"fetched_at,omitempty"`
}

// TradeKey is the store uniqueness key.
type TradeKey struct {
	Source   string
	Symbol   string
	ExitTime int64
	Leg      int
}

func (t TradeRecord) Key() TradeKey {
	return TradeKey{Source: t.Source, Symbol: t.Symbol, ExitTime: t.ExitTime, Leg: t.Leg}
}

func (k TradeKey) String() string {
	return fmt.Sprintf("%s|%s|%d|%d", k.Source, k.Symbol, k.ExitTime, k.Leg)
}

// ROI of the record in percent.
func (t TradeRecord) ROI() decimal.Decimal {
	return ROI(t.RealizedPnl, t.EntryPrice, t.Qty)
}

// PriceChangePct is the favourable price move in percent: positive when the
// exit beat the entry for the record's position side.
func (t TradeRecord) PriceChangePct() decimal.Decimal {
	if t.EntryPrice.IsZero() {
		return decimal.Zero
	}
	pct := t.ExitPrice.Sub(t.EntryPrice).Div(t.EntryPrice).Mul(hundred)
	if t.PositionSide == PositionShort {
		return pct.Neg()
	}
	return pct
}

// ROI returns pnl / (entry * |qty|) * 100, or 0 when the investment is 0.
func ROI(pnl, entry, qty decimal.Decimal) decimal.Decimal {
	investment := entry.Mul(qty.Abs())
	if investment.IsZero() {
		return decimal.Zero
	}
	return pnl.Div(investment).Mul(hundred)
}

// FormatDuration renders milliseconds as "Hh Mm Ss".
func FormatDuration(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	secs := ms / 1000
	return fmt.Sprintf("%dh %dm %ds", secs/3600, (secs%3600)/60, secs%60)
}

// SortNewestFirst orders by exit time descending; ties keep leg order.
func SortNewestFirst(recs []TradeRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].ExitTime != recs[j].ExitTime {
			return recs[i].ExitTime > recs[j].ExitTime
		}
		return recs[i].Leg < recs[j].Leg
	})
}

// MergeRecords concatenates the inputs, keeping the first record seen per key.
func MergeRecords(groups ...[]TradeRecord) []TradeRecord {
	total := 0
	for _, g := range groups {
		total += len(g)
	}
	out := make([]TradeRecord, 0, total)
	seen := make(map[TradeKey]struct{}, total)
	for _, g := range groups {
		for _, rec := range g {
			k := rec.Key()
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, rec)
		}
	}
	return out
}

// ExitTimeBounds returns the min and max ExitTime; ok is false for an empty slice.
func ExitTimeBounds(recs []TradeRecord) (oldest, newest int64, ok bool) {
	for i, rec := range recs {
		if i == 0 || rec.ExitTime < oldest {
			oldest = rec.ExitTime
		}
		if i == 0 || rec.ExitTime > newest {
			newest = rec.ExitTime
		}
	}
	return oldest, newest, len(recs) > 0
}
