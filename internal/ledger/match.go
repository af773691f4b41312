package ledger

import (
	"encoding/json"
	"sort"

	"tradedesk/internal/types"

	"github.com/shopspring/decimal"
)

// Match applies one fill to the ledger and returns the new ledger together
// with any completed trades. The input ledger is left untouched.
func Match(l PositionLedger, f types.Fill, opts Options) (PositionLedger, []types.TradeRecord, []Anomaly) {
	next := l.clone()
	if next.Symbol == "" {
		next.Symbol = f.Symbol
	}
	if !f.Size.IsPositive() {
		return next, nil, []Anomaly{newAnomaly(AnomalyInvalidSize, f, f.Size)}
	}

	switch f.Direction {
	case types.OpenLong:
		next.Long = append(next.Long, lotFromFill(f, f.Size, f.Fee))
		return next, nil, nil
	case types.OpenShort:
		next.Short = append(next.Short, lotFromFill(f, f.Size, f.Fee))
		return next, nil, nil
	case types.CloseLong:
		return closePosition(next, types.PositionLong, f, opts)
	case types.CloseShort:
		return closePosition(next, types.PositionShort, f, opts)
	case types.LongToShort:
		return flip(next, types.PositionLong, f, opts)
	case types.ShortToLong:
		return flip(next, types.PositionShort, f, opts)
	default:
		return next, nil, []Anomaly{newAnomaly(AnomalyUnknownDirection, f, f.Size)}
	}
}

// MatchAll sorts fills by timestamp (stable) and folds Match over them,
// starting from an empty ledger. Records sharing an exit timestamp get
// consecutive legs in fill order, so every record has its own store key.
func MatchAll(symbol string, fills []types.Fill, opts Options) ([]types.TradeRecord, PositionLedger, []Anomaly) {
	ordered := append([]types.Fill(nil), fills...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp < ordered[j].Timestamp
	})
	l := NewPositionLedger(symbol)
	var (
		records   []types.TradeRecord
		anomalies []Anomaly
	)
	legs := make(map[int64]int)
	for _, f := range ordered {
		var recs []types.TradeRecord
		var anoms []Anomaly
		l, recs, anoms = Match(l, f, opts)
		for i := range recs {
			recs[i].Leg = legs[recs[i].ExitTime]
			legs[recs[i].ExitTime]++
		}
		records = append(records, recs...)
		anomalies = append(anomalies, anoms...)
	}
	return records, l, anomalies
}

// closePosition handles Close Long / Close Short.
func closePosition(l PositionLedger, side string, f types.Fill, opts Options) (PositionLedger, []types.TradeRecord, []Anomaly) {
	q := l.queue(side)
	if len(q) == 0 {
		return l, nil, []Anomaly{newAnomaly(AnomalyUnmatchedClose, f, f.Size)}
	}
	if opts.SplitCloses {
		return walkLots(l, side, f, opts, false)
	}

	// The whole close is priced against the oldest lot and carries that lot's
	// full entry fee; later lots are consumed without repricing.
	head := q[0]
	fee := head.Fee.Add(f.Fee)
	rec := buildRecord(l.Symbol, side, head, f, f.Size, fee, 0, opts)

	remaining := f.Size
	for remaining.IsPositive() && len(q) > 0 {
		if remaining.GreaterThanOrEqual(q[0].Size) {
			remaining = remaining.Sub(q[0].Size)
			q = q[1:]
			continue
		}
		q[0].Size = q[0].Size.Sub(remaining)
		remaining = decimal.Zero
	}
	l.setQueue(side, q)

	var anomalies []Anomaly
	if remaining.IsPositive() {
		anomalies = append(anomalies, newAnomaly(AnomalyOversizedClose, f, remaining))
	}
	return l, []types.TradeRecord{rec}, anomalies
}

// flip closes the opposite queue FIFO and opens the remainder on the other side.
func flip(l PositionLedger, closing string, f types.Fill, opts Options) (PositionLedger, []types.TradeRecord, []Anomaly) {
	return walkLots(l, closing, f, opts, true)
}

// walkLots emits one record per consumed lot. Each record carries the lot's
// fee pro rata to the closed share of the lot and the fill's fee pro rata to
// the closed share of the fill. With openRemainder, any size left after the
// queue is exhausted opens a lot on the opposite side.
func walkLots(l PositionLedger, side string, f types.Fill, opts Options, openRemainder bool) (PositionLedger, []types.TradeRecord, []Anomaly) {
	q := l.queue(side)
	remaining := f.Size
	var records []types.TradeRecord
	for remaining.IsPositive() && len(q) > 0 {
		lot := q[0]
		closeSize := decimal.Min(lot.Size, remaining)
		lotFee := lot.Fee.Mul(closeSize).Div(lot.Size)
		fillFee := f.Fee.Mul(closeSize).Div(f.Size)

		records = append(records, buildRecord(l.Symbol, side, lot, f, closeSize, lotFee.Add(fillFee), len(records), opts))

		if closeSize.GreaterThanOrEqual(lot.Size) {
			q = q[1:]
		} else {
			q[0].Size = lot.Size.Sub(closeSize)
			q[0].Fee = lot.Fee.Sub(lotFee)
		}
		remaining = remaining.Sub(closeSize)
	}
	l.setQueue(side, q)

	if !remaining.IsPositive() {
		return l, records, nil
	}
	if !openRemainder {
		return l, records, []Anomaly{newAnomaly(AnomalyOversizedClose, f, remaining)}
	}
	lot := lotFromFill(f, remaining, f.Fee.Mul(remaining).Div(f.Size))
	if side == types.PositionLong {
		l.Short = append(l.Short, lot)
	} else {
		l.Long = append(l.Long, lot)
	}
	return l, records, nil
}

func lotFromFill(f types.Fill, size, fee decimal.Decimal) OpenLot {
	return OpenLot{
		Size:      size,
		Price:     f.Price,
		Fee:       fee,
		Timestamp: f.Timestamp,
		SourceRef: f.Ref,
		Raw:       f.Raw,
	}
}

func buildRecord(symbol, side string, lot OpenLot, f types.Fill, qty, fee decimal.Decimal, leg int, opts Options) types.TradeRecord {
	var gross decimal.Decimal
	closingSide := types.SideSell
	if side == types.PositionShort {
		gross = lot.Price.Sub(f.Price).Mul(qty)
		closingSide = types.SideBuy
	} else {
		gross = f.Price.Sub(lot.Price).Mul(qty)
	}
	if symbol == "" {
		symbol = f.Symbol
	}
	return types.TradeRecord{
		Source:       opts.Source,
		Symbol:       symbol,
		Side:         closingSide,
		PositionSide: side,
		EntryPrice:   lot.Price,
		ExitPrice:    f.Price,
		Qty:          qty,
		RealizedPnl:  gross.Sub(fee),
		Fee:          fee,
		EntryTime:    lot.Timestamp,
		ExitTime:     f.Timestamp,
		DurationMs:   f.Timestamp - lot.Timestamp,
		Leg:          leg,
		Raw:          pairRaw(lot.Raw, f.Raw),
	}
}

// pairRaw stores both sides of the round trip as {"open": ..., "close": ...}.
func pairRaw(open, closing json.RawMessage) json.RawMessage {
	if len(open) == 0 && len(closing) == 0 {
		return nil
	}
	payload := struct {
		Open  json.RawMessage `json:"open,omitempty"`
		Close json.RawMessage `json:"close,omitempty"`
	}{Open: validOrNil(open), Close: validOrNil(closing)}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return b
}

func validOrNil(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || !json.Valid(raw) {
		return nil
	}
	return raw
}
