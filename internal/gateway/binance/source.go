// Package binance reads USDⓈ-M futures account trades as a fill stream.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"tradedesk/internal/logger"
	"tradedesk/internal/pkg/convert"
	symbolpkg "tradedesk/internal/pkg/symbol"
	"tradedesk/internal/types"

	"github.com/adshao/go-binance/v2/futures"
)

// Source maps hedge-mode account trades onto fill directions. One-way mode
// trades (positionSide BOTH) carry no open/close intent and come back with
// an unknown direction.
type Source struct {
	cfg     Config
	client  *futures.Client
	symbols []string
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	if final.APIKey == "" || final.APISecret == "" {
		return nil, fmt.Errorf("binance api key/secret 不能为空")
	}
	client := futures.NewClient(final.APIKey, final.APISecret)
	client.BaseURL = final.RESTBaseURL
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyEnabled && final.RESTProxyURL != "" {
		proxyURL, err := url.Parse(final.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient

	symbols := make([]string, 0, len(final.Symbols))
	for _, s := range final.Symbols {
		if s = strings.TrimSpace(s); s != "" {
			symbols = append(symbols, symbolpkg.Normalize(s))
		}
	}
	logger.Warnf("%s", oneWayModeNotice)
	return &Source{cfg: final, client: client, symbols: symbols}, nil
}

const oneWayModeNotice = "[binance] 仅支持双向持仓(hedge mode)账户；单向持仓 positionSide=BOTH 的成交无法判断开平方向，会被跳过"

func (s *Source) Name() string { return "binance" }

func (s *Source) Kind() types.RecordKind { return types.KindFill }

// Symbols is the converter records are labelled with.
func (s *Source) Symbols() symbolpkg.Converter { return symbolpkg.Binance }

func (s *Source) Fetch(ctx context.Context, req types.FetchRequest) ([]types.RawRecord, error) {
	symbols := s.symbols
	if req.Symbol != "" {
		symbols = []string{req.Symbol}
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("binance userTrades 需要 symbol，且未配置 symbols")
	}
	var out []types.RawRecord
	for _, sym := range symbols {
		recs, err := s.fetchSymbol(ctx, sym, req.Start, req.End)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

func (s *Source) fetchSymbol(ctx context.Context, sym string, start, end int64) ([]types.RawRecord, error) {
	exchSym := symbolpkg.Binance.ToExchange(sym)
	var out []types.RawRecord
	cursor := start
	for page := 0; page < s.cfg.MaxPages; page++ {
		svc := s.client.NewListAccountTradeService().
			Symbol(exchSym).
			StartTime(cursor).
			Limit(s.cfg.PageSize)
		if end > 0 {
			svc = svc.EndTime(end)
		}
		trades, err := svc.Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("binance userTrades %s: %w", exchSym, err)
		}
		if logger.PayloadDumpEnabled() {
			if b, err := json.Marshal(trades); err == nil {
				logger.DumpPayload("binance", "userTrades", string(b))
			}
		}
		last := cursor
		for _, tr := range trades {
			if tr == nil {
				continue
			}
			if tr.Time > last {
				last = tr.Time
			}
			out = append(out, types.NewFillRecord(convertTrade(tr)))
		}
		if len(trades) < s.cfg.PageSize || (end > 0 && last >= end) {
			return out, nil
		}
		cursor = last + 1
	}
	logger.Warnf("[binance] %s 分页达到上限 %d，窗口 [%d,%d] 可能不完整", exchSym, s.cfg.MaxPages, start, end)
	return out, nil
}

func convertTrade(tr *futures.AccountTrade) types.Fill {
	raw, _ := json.Marshal(tr)
	return types.Fill{
		Symbol:    symbolpkg.Binance.FromExchange(tr.Symbol),
		Direction: direction(tr.Side, tr.PositionSide),
		Size:      convert.ToDecimal(tr.Quantity).Abs(),
		Price:     convert.ToDecimal(tr.Price),
		Fee:       convert.ToDecimal(tr.Commission).Abs(),
		Timestamp: tr.Time,
		Ref:       fmt.Sprintf("%d", tr.ID),
		Raw:       raw,
	}
}

// direction maps hedge-mode side + positionSide onto open/close intent.
func direction(side futures.SideType, pos futures.PositionSideType) types.Direction {
	switch {
	case side == futures.SideTypeBuy && pos == futures.PositionSideTypeLong:
		return types.OpenLong
	case side == futures.SideTypeSell && pos == futures.PositionSideTypeLong:
		return types.CloseLong
	case side == futures.SideTypeSell && pos == futures.PositionSideTypeShort:
		return types.OpenShort
	case side == futures.SideTypeBuy && pos == futures.PositionSideTypeShort:
		return types.CloseShort
	default:
		return types.DirectionUnknown
	}
}
