package reconcile

import (
	"sort"

	"tradedesk/internal/ledger"
	"tradedesk/internal/logger"
	"tradedesk/internal/pkg/symbol"
	"tradedesk/internal/types"
)

// normalize converts one gap's raw records into trade records stamped with
// the current fetch time. When symbol is set, other symbols are dropped.
func (r *Reconciler) normalize(source, sym string, kind types.RecordKind, raw []types.RawRecord) []types.TradeRecord {
	fetchedAt := r.now().UTC()
	var out []types.TradeRecord
	switch kind {
	case types.KindClosedTrade:
		out = closedTrades(source, sym, raw)
	case types.KindFill:
		out = r.matchFills(source, sym, raw)
	default:
		logger.Warnf("[reconcile] %s 未知记录类型 %s，丢弃 %d 条", source, kind, len(raw))
		return nil
	}
	for i := range out {
		out[i].FetchedAt = fetchedAt
	}
	return out
}

func closedTrades(source, sym string, raw []types.RawRecord) []types.TradeRecord {
	out := make([]types.TradeRecord, 0, len(raw))
	for _, rec := range raw {
		if rec.Kind != types.KindClosedTrade || rec.Closed == nil {
			logger.Warnf("[reconcile] %s 跳过非平仓记录 kind=%s", source, rec.Kind)
			continue
		}
		c := rec.Closed
		norm := symbol.Normalize(c.Symbol)
		if sym != "" && norm != sym {
			continue
		}
		out = append(out, ClosedTradeRecord(source, norm, *c))
	}
	return out
}

// ClosedTradeRecord maps an exchange-closed trade onto a TradeRecord. Side is
// the closing order side, so a Sell closed a long.
func ClosedTradeRecord(source, sym string, c types.ClosedTrade) types.TradeRecord {
	position := types.PositionLong
	if c.Side == types.SideBuy {
		position = types.PositionShort
	}
	entry := c.EntryTime
	if entry <= 0 || entry > c.ExitTime {
		entry = c.ExitTime
	}
	return types.TradeRecord{
		Source:       source,
		Symbol:       sym,
		Side:         c.Side,
		PositionSide: position,
		EntryPrice:   c.EntryPrice,
		ExitPrice:    c.ExitPrice,
		Qty:          c.Qty.Abs(),
		RealizedPnl:  c.ClosedPnl,
		Fee:          c.Fee,
		EntryTime:    entry,
		ExitTime:     c.ExitTime,
		DurationMs:   c.ExitTime - entry,
		Raw:          c.Raw,
	}
}

// matchFills groups fills per symbol and runs each group through the ledger.
func (r *Reconciler) matchFills(source, sym string, raw []types.RawRecord) []types.TradeRecord {
	bySymbol := make(map[string][]types.Fill)
	for _, rec := range raw {
		if rec.Kind != types.KindFill || rec.Fill == nil {
			logger.Warnf("[reconcile] %s 跳过非成交记录 kind=%s", source, rec.Kind)
			continue
		}
		f := *rec.Fill
		f.Symbol = symbol.Normalize(f.Symbol)
		if sym != "" && f.Symbol != sym {
			continue
		}
		bySymbol[f.Symbol] = append(bySymbol[f.Symbol], f)
	}

	symbols := make([]string, 0, len(bySymbol))
	for s := range bySymbol {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	var out []types.TradeRecord
	opts := ledger.Options{Source: source, SplitCloses: r.splitCloses}
	for _, s := range symbols {
		recs, open, anomalies := ledger.MatchAll(s, bySymbol[s], opts)
		for _, a := range anomalies {
			logger.Warnf("[ledger] %s %v", source, a)
		}
		if !open.Flat() {
			logger.Debugf("[ledger] %s %s 仍有未平仓 long=%d short=%d", source, s, len(open.Long), len(open.Short))
		}
		out = append(out, recs...)
	}
	return out
}
