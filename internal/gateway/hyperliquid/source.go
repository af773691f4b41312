// Package hyperliquid reads a wallet's perp fills from the Hyperliquid info API.
package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"tradedesk/internal/logger"
	"tradedesk/internal/pkg/convert"
	symbolpkg "tradedesk/internal/pkg/symbol"
	"tradedesk/internal/pkg/text"
	"tradedesk/internal/types"

	"github.com/tidwall/gjson"
)

// The info endpoint caps userFillsByTime responses at this many fills.
const pageLimit = 2000

// Source returns fills; matching into trades happens downstream.
type Source struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	if final.Wallet == "" {
		return nil, fmt.Errorf("hyperliquid wallet 不能为空")
	}
	return &Source{
		cfg:    final,
		client: &http.Client{Timeout: final.HTTPTimeout},
	}, nil
}

func (s *Source) Name() string { return "hyperliquid" }

func (s *Source) Kind() types.RecordKind { return types.KindFill }

// Symbols is the converter records are labelled with.
func (s *Source) Symbols() symbolpkg.Converter { return symbolpkg.Hyperliquid }

type fillsRequest struct {
	Type      string `json:"type"`
	User      string `json:"user"`
	StartTime int64  `json:"startTime"`
	EndTime   int64  `json:"endTime,omitempty"`
}

// Fetch pages forward through [Start, End]. The symbol filter is applied
// locally since the endpoint returns every coin.
func (s *Source) Fetch(ctx context.Context, req types.FetchRequest) ([]types.RawRecord, error) {
	wantCoin := ""
	if req.Symbol != "" {
		wantCoin = symbolpkg.Hyperliquid.ToExchange(req.Symbol)
	}
	var out []types.RawRecord
	cursor := req.Start
	for page := 0; page < s.cfg.MaxPages; page++ {
		body, err := s.post(ctx, fillsRequest{
			Type:      "userFillsByTime",
			User:      s.cfg.Wallet,
			StartTime: cursor,
			EndTime:   req.End,
		})
		if err != nil {
			return nil, err
		}
		fills := gjson.ParseBytes(body)
		if !fills.IsArray() {
			return nil, fmt.Errorf("hyperliquid 响应不是数组: %s", text.Snippet(body, 200))
		}
		items := fills.Array()
		last := cursor
		for _, item := range items {
			ts := convert.GJSONInt64(item.Get("time"))
			if ts > last {
				last = ts
			}
			coin := item.Get("coin").String()
			if wantCoin != "" && coin != wantCoin {
				continue
			}
			out = append(out, types.NewFillRecord(parseFill(item)))
		}
		if len(items) < pageLimit || last >= req.End {
			return out, nil
		}
		cursor = last + 1
	}
	logger.Warnf("[hyperliquid] 分页达到上限 %d，窗口 [%d,%d] 可能不完整", s.cfg.MaxPages, req.Start, req.End)
	return out, nil
}

func parseFill(item gjson.Result) types.Fill {
	ref := item.Get("tid").String()
	if ref == "" {
		ref = item.Get("hash").String()
	}
	return types.Fill{
		Symbol:    symbolpkg.Hyperliquid.FromExchange(item.Get("coin").String()),
		Direction: types.ParseDirection(item.Get("dir").String()),
		Size:      convert.GJSONDecimal(item.Get("sz")).Abs(),
		Price:     convert.GJSONDecimal(item.Get("px")),
		Fee:       convert.GJSONDecimal(item.Get("fee")),
		Timestamp: convert.GJSONInt64(item.Get("time")),
		Ref:       ref,
		Raw:       json.RawMessage(item.Raw),
	}
}

func (s *Source) post(ctx context.Context, payload fillsRequest) ([]byte, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/info", bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	logger.DumpPayload("hyperliquid", "userFillsByTime", string(body))
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("hyperliquid 返回状态码 %d: %s", resp.StatusCode, text.Snippet(body, 200))
	}
	return body, nil
}
