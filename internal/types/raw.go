package types

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// RecordKind tags what an upstream source emits.
type RecordKind int

const (
	KindUnknown RecordKind = iota
	// KindFill records are individual executions that must be matched.
	KindFill
	// KindClosedTrade records are round trips the exchange already closed.
	KindClosedTrade
)

func (k RecordKind) String() string {
	switch k {
	case KindFill:
		return "fill"
	case KindClosedTrade:
		return "closed_trade"
	default:
		return "unknown"
	}
}

type Direction int

const (
	DirectionUnknown Direction = iota
	OpenLong
	OpenShort
	CloseLong
	CloseShort
	ShortToLong
	LongToShort
)

var directionNames = map[Direction]string{
	OpenLong:    "Open Long",
	OpenShort:   "Open Short",
	CloseLong:   "Close Long",
	CloseShort:  "Close Short",
	ShortToLong: "Short > Long",
	LongToShort: "Long > Short",
}

func (d Direction) String() string {
	if name, ok := directionNames[d]; ok {
		return name
	}
	return "Unknown"
}

// ParseDirection accepts exchange spellings such as "Open Long", "Open-Long",
// "close_short" and "Long > Short".
func ParseDirection(tag string) Direction {
	s := strings.ToLower(tag)
	s = strings.NewReplacer(" ", "", "-", "", "_", "").Replace(s)
	switch {
	case strings.Contains(s, "short>long"):
		return ShortToLong
	case strings.Contains(s, "long>short"):
		return LongToShort
	case strings.Contains(s, "openlong"):
		return OpenLong
	case strings.Contains(s, "openshort"):
		return OpenShort
	case strings.Contains(s, "closelong"):
		return CloseLong
	case strings.Contains(s, "closeshort"):
		return CloseShort
	default:
		return DirectionUnknown
	}
}

// Fill is a single execution from a fill-stream source.
type Fill struct {
	Symbol    string
	Direction Direction
	Size      decimal.Decimal
	Price     decimal.Decimal
	Fee       decimal.Decimal
	Timestamp int64
	Ref       string
	Raw       json.RawMessage
}

// ClosedTrade is a round trip reported already closed by the exchange.
type ClosedTrade struct {
	Symbol     string
	Side       string
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal
	Qty        decimal.Decimal
	ClosedPnl  decimal.Decimal
	Fee        decimal.Decimal
	EntryTime  int64
	ExitTime   int64
	Raw        json.RawMessage
}

// RawRecord is the tagged union every source returns. Exactly one of Fill or
// Closed is set, matching Kind.
type RawRecord struct {
	Kind   RecordKind
	Fill   *Fill
	Closed *ClosedTrade
}

func NewFillRecord(f Fill) RawRecord {
	return RawRecord{Kind: KindFill, Fill: &f}
}

func NewClosedTradeRecord(c ClosedTrade) RawRecord {
	return RawRecord{Kind: KindClosedTrade, Closed: &c}
}

func (r RawRecord) Symbol() string {
	switch {
	case r.Kind == KindFill && r.Fill != nil:
		return r.Fill.Symbol
	case r.Kind == KindClosedTrade && r.Closed != nil:
		return r.Closed.Symbol
	default:
		return ""
	}
}

func (r RawRecord) Timestamp() int64 {
	switch {
	case r.Kind == KindFill && r.Fill != nil:
		return r.Fill.Timestamp
	case r.Kind == KindClosedTrade && r.Closed != nil:
		return r.Closed.ExitTime
	default:
		return 0
	}
}
