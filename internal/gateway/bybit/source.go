// Package bybit reads closed positions from the Bybit v5 closed-pnl endpoint.
package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"tradedesk/internal/logger"
	"tradedesk/internal/pkg/convert"
	symbolpkg "tradedesk/internal/pkg/symbol"
	"tradedesk/internal/pkg/text"
	"tradedesk/internal/types"

	"github.com/tidwall/gjson"
)

const closedPnlPath = "/v5/position/closed-pnl"

// Source returns trades Bybit has already closed, so no matching is needed.
type Source struct {
	cfg    Config
	client *http.Client
	now    func() time.Time
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	if final.APIKey == "" || final.APISecret == "" {
		return nil, fmt.Errorf("bybit api key/secret 不能为空")
	}
	return &Source{
		cfg:    final,
		client: &http.Client{Timeout: final.HTTPTimeout},
		now:    time.Now,
	}, nil
}

func (s *Source) Name() string { return "bybit" }

func (s *Source) Kind() types.RecordKind { return types.KindClosedTrade }

// Symbols is the converter records are labelled with.
func (s *Source) Symbols() symbolpkg.Converter { return symbolpkg.Bybit }

func (s *Source) Fetch(ctx context.Context, req types.FetchRequest) ([]types.RawRecord, error) {
	var out []types.RawRecord
	cursor := ""
	for page := 0; page < s.cfg.MaxPages; page++ {
		q := url.Values{}
		q.Set("category", s.cfg.Category)
		q.Set("limit", strconv.Itoa(s.cfg.PageSize))
		if req.Symbol != "" {
			q.Set("symbol", symbolpkg.Bybit.ToExchange(req.Symbol))
		}
		if req.Start > 0 {
			q.Set("startTime", strconv.FormatInt(req.Start, 10))
		}
		if req.End > 0 {
			q.Set("endTime", strconv.FormatInt(req.End, 10))
		}
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		result, err := s.get(ctx, q)
		if err != nil {
			return nil, err
		}
		for _, item := range result.Get("list").Array() {
			out = append(out, types.NewClosedTradeRecord(parseClosed(item)))
		}
		cursor = result.Get("nextPageCursor").String()
		if cursor == "" {
			return out, nil
		}
	}
	logger.Warnf("[bybit] 分页达到上限 %d，窗口 [%d,%d] 可能不完整", s.cfg.MaxPages, req.Start, req.End)
	return out, nil
}

// parseClosed maps one closed-pnl entry. side is the closing order side.
func parseClosed(item gjson.Result) types.ClosedTrade {
	fee := convert.GJSONDecimal(item.Get("openFee")).Add(convert.GJSONDecimal(item.Get("closeFee")))
	return types.ClosedTrade{
		Symbol:     symbolpkg.Bybit.FromExchange(item.Get("symbol").String()),
		Side:       item.Get("side").String(),
		EntryPrice: convert.GJSONDecimal(item.Get("avgEntryPrice")),
		ExitPrice:  convert.GJSONDecimal(item.Get("avgExitPrice")),
		Qty:        convert.GJSONDecimal(item.Get("qty")),
		ClosedPnl:  convert.GJSONDecimal(item.Get("closedPnl")),
		Fee:        fee,
		EntryTime:  convert.GJSONInt64(item.Get("createdTime")),
		ExitTime:   convert.GJSONInt64(item.Get("updatedTime")),
		Raw:        json.RawMessage(item.Raw),
	}
}

// get performs one signed request and returns the "result" object.
func (s *Source) get(ctx context.Context, q url.Values) (gjson.Result, error) {
	query := q.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL+closedPnlPath+"?"+query, nil)
	if err != nil {
		return gjson.Result{}, err
	}
	sign(httpReq.Header, s.cfg.APIKey, s.cfg.APISecret, s.now().UnixMilli(), s.cfg.RecvWindow.Milliseconds(), query)
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return gjson.Result{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, err
	}
	logger.DumpPayload("bybit", "closed-pnl", string(body))
	if resp.StatusCode >= 300 {
		return gjson.Result{}, fmt.Errorf("bybit 返回状态码 %d: %s", resp.StatusCode, text.Snippet(body, 200))
	}
	parsed := gjson.ParseBytes(body)
	if code := parsed.Get("retCode"); !code.Exists() || code.Int() != 0 {
		return gjson.Result{}, fmt.Errorf("bybit retCode=%s retMsg=%s", code.String(), parsed.Get("retMsg").String())
	}
	return parsed.Get("result"), nil
}
