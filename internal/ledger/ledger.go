// Package ledger turns an ordered stream of fills into round-trip trade
// records using a per-symbol FIFO of open lots.
package ledger

import (
	"encoding/json"
	"fmt"

	"tradedesk/internal/types"

	"github.com/shopspring/decimal"
)

// OpenLot is one slice of an open position.
type OpenLot struct {
	Size      decimal.Decimal
	Price     decimal.Decimal
	Fee       decimal.Decimal
	Timestamp int64
	SourceRef string
	Raw       json.RawMessage
}

// PositionLedger holds the long and short lot queues of one symbol, oldest
// first. Both queues are only non-empty while a flip is being applied.
type PositionLedger struct {
	Symbol string
	Long   []OpenLot
	Short  []OpenLot
}

func NewPositionLedger(symbol string) PositionLedger {
	return PositionLedger{Symbol: symbol}
}

// Flat reports whether no lots are open.
func (l PositionLedger) Flat() bool {
	return len(l.Long) == 0 && len(l.Short) == 0
}

// OpenSize sums the lot sizes of one side.
func (l PositionLedger) OpenSize(side string) decimal.Decimal {
	total := decimal.Zero
	for _, lot := range l.queue(side) {
		total = total.Add(lot.Size)
	}
	return total
}

func (l PositionLedger) queue(side string) []OpenLot {
	if side == types.PositionShort {
		return l.Short
	}
	return l.Long
}

func (l *PositionLedger) setQueue(side string, q []OpenLot) {
	if side == types.PositionShort {
		l.Short = q
		return
	}
	l.Long = q
}

// clone copies the queues so the caller's ledger value is never mutated.
func (l PositionLedger) clone() PositionLedger {
	out := PositionLedger{Symbol: l.Symbol}
	if len(l.Long) > 0 {
		out.Long = append([]OpenLot(nil), l.Long...)
	}
	if len(l.Short) > 0 {
		out.Short = append([]OpenLot(nil), l.Short...)
	}
	return out
}

// Options tunes matching.
type Options struct {
	// Source is stamped on every emitted record.
	Source string
	// SplitCloses makes a plain close that spans several lots emit one record
	// per lot with proportional fees, like a flip does. Off by default: a plain
	// close is priced against the oldest lot only.
	SplitCloses bool
}

type AnomalyKind string

const (
	AnomalyUnmatchedClose   AnomalyKind = "unmatched_close"
	AnomalyOversizedClose   AnomalyKind = "oversized_close"
	AnomalyUnknownDirection AnomalyKind = "unknown_direction"
	AnomalyInvalidSize      AnomalyKind = "invalid_size"
)

// Anomaly is a fill that could not be matched cleanly. The fill (or its
// unmatched remainder) produced no record.
type Anomaly struct {
	Kind      AnomalyKind
	Symbol    string
	Direction types.Direction
	Size      decimal.Decimal
	Timestamp int64
	Ref       string
}

func (a Anomaly) Error() string {
	return fmt.Sprintf("%s: %s %s size=%s ts=%d ref=%s", a.Kind, a.Symbol, a.Direction, a.Size, a.Timestamp, a.Ref)
}

func newAnomaly(kind AnomalyKind, f types.Fill, size decimal.Decimal) Anomaly {
	return Anomaly{
		Kind:      kind,
		Symbol:    f.Symbol,
		Direction: f.Direction,
		Size:      size,
		Timestamp: f.Timestamp,
		Ref:       f.Ref,
	}
}
