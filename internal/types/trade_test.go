package types

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestROI(t *testing.T) {
	assert.True(t, d("9.8").Equal(ROI(d("98"), d("100"), d("10"))))
	assert.True(t, d("9.8").Equal(ROI(d("98"), d("100"), d("-10"))), "qty sign ignored")
	assert.True(t, ROI(d("98"), d("0"), d("10")).IsZero())
}

func TestPriceChangePct(t *testing.T) {
	long := TradeRecord{PositionSide: PositionLong, EntryPrice: d("100"), ExitPrice: d("110")}
	assert.True(t, d("10").Equal(long.PriceChangePct()))

	short := TradeRecord{PositionSide: PositionShort, EntryPrice: d("100"), ExitPrice: d("90")}
	assert.True(t, d("10").Equal(short.PriceChangePct()))

	assert.True(t, TradeRecord{}.PriceChangePct().IsZero())
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1h 1m 1s", FormatDuration(3_661_000))
	assert.Equal(t, "0h 0m 0s", FormatDuration(-5))
}

func TestMergeAndSort(t *testing.T) {
	a := []TradeRecord{{Source: "x", Symbol: "BTC/USDT", ExitTime: 10}, {Source: "x", Symbol: "BTC/USDT", ExitTime: 30}}
	b := []TradeRecord{{Source: "x", Symbol: "BTC/USDT", ExitTime: 30}, {Source: "x", Symbol: "BTC/USDT", ExitTime: 20, Leg: 1}, {Source: "x", Symbol: "BTC/USDT", ExitTime: 20}}
	merged := MergeRecords(a, b)
	assert.Len(t, merged, 4)

	SortNewestFirst(merged)
	got := make([]int64, 0, len(merged))
	for _, r := range merged {
		got = append(got, r.ExitTime)
	}
	assert.Equal(t, []int64{30, 20, 20, 10}, got)
	assert.Equal(t, 0, merged[1].Leg)
	assert.Equal(t, 1, merged[2].Leg)

	oldest, newest, ok := ExitTimeBounds(merged)
	assert.True(t, ok)
	assert.Equal(t, int64(10), oldest)
	assert.Equal(t, int64(30), newest)

	_, _, ok = ExitTimeBounds(nil)
	assert.False(t, ok)
}

func TestParseDirection(t *testing.T) {
	cases := map[string]Direction{
		"Open Long":    OpenLong,
		"Open-Short":   OpenShort,
		"close_long":   CloseLong,
		"Close Short":  CloseShort,
		"Short > Long": ShortToLong,
		"Long>Short":   LongToShort,
		"Liquidation":  DirectionUnknown,
		"":             DirectionUnknown,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseDirection(in), in)
	}
	assert.Equal(t, "Long > Short", LongToShort.String())
}

func TestRawRecordAccessors(t *testing.T) {
	f := NewFillRecord(Fill{Symbol: "BTC/USDC", Timestamp: 5})
	assert.Equal(t, KindFill, f.Kind)
	assert.Equal(t, "BTC/USDC", f.Symbol())
	assert.Equal(t, int64(5), f.Timestamp())

	c := NewClosedTradeRecord(ClosedTrade{Symbol: "ETH/USDT", ExitTime: 9})
	assert.Equal(t, "ETH/USDT", c.Symbol())
	assert.Equal(t, int64(9), c.Timestamp())

	assert.Equal(t, "", RawRecord{Kind: KindFill}.Symbol())
}
