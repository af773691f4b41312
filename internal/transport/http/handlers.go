package tradehttp

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tradedesk/internal/reconcile"
	"tradedesk/internal/store"
	"tradedesk/internal/types"

	"github.com/gin-gonic/gin"
)

type handler struct {
	svc             TradeService
	defaultSource   string
	defaultLookback time.Duration
	now             func() time.Time
}

func newHandler(cfg ServerConfig) *handler {
	h := &handler{
		svc:             cfg.Service,
		defaultSource:   strings.ToLower(strings.TrimSpace(cfg.DefaultSource)),
		defaultLookback: cfg.DefaultLookback,
		now:             cfg.Now,
	}
	if h.defaultLookback <= 0 {
		h.defaultLookback = 30 * 24 * time.Hour
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.defaultSource == "" {
		if names := cfg.Service.Sources(); len(names) > 0 {
			h.defaultSource = names[0]
		}
	}
	return h
}

// Register 将 /api 路由挂载到给定分组下。
func (h *handler) Register(group *gin.RouterGroup) {
	group.GET("/trades", h.handleTrades)
	group.GET("/exchanges", h.handleExchanges)
	group.GET("/cache/range", h.handleCacheRanges)
	group.DELETE("/cache", h.handleClearCache)
}

// tradeView is a TradeRecord plus the derived display fields.
type tradeView struct {
	types.TradeRecord
	ROI               string `json:"roi"`
	PriceChangePct    string `json:"price_change_pct"`
	DurationFormatted string `json:"duration_formatted"`
	EntryTimeSec      int64  `json:"entry_time"`
	ExitTimeSec       int64  `json:"exit_time"`
}

func enrich(rec types.TradeRecord) tradeView {
	return tradeView{
		TradeRecord:       rec,
		ROI:               rec.ROI().StringFixed(2),
		PriceChangePct:    rec.PriceChangePct().StringFixed(2),
		DurationFormatted: types.FormatDuration(rec.DurationMs),
		EntryTimeSec:      rec.EntryTime / 1000,
		ExitTimeSec:       rec.ExitTime / 1000,
	}
}

func (h *handler) handleTrades(c *gin.Context) {
	req, err := h.parseTradesQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	res, err := h.svc.FetchRange(c.Request.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, reconcile.ErrUnknownSource) || errors.Is(err, reconcile.ErrInvalidWindow) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"success": false, "error": err.Error()})
		return
	}
	trades := make([]tradeView, 0, len(res.Trades))
	for _, rec := range res.Trades {
		trades = append(trades, enrich(rec))
	}
	cachedAt := h.now().UTC()
	if res.CachedAt != nil {
		cachedAt = res.CachedAt.UTC()
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"request_id":    res.RequestID,
		"trades":        trades,
		"from_cache":    res.FromCache,
		"cached_at":     cachedAt.Format(time.RFC3339),
		"exchange":      res.Source,
		"truncated":     res.Truncated,
		"failed_chunks": res.FailedChunks,
	})
}

// parseTradesQuery reads exchange, symbol, days, start, end (Unix ms) and
// force_refresh. Explicit start/end win over days.
func (h *handler) parseTradesQuery(c *gin.Context) (reconcile.Request, error) {
	req := reconcile.Request{
		Source: strings.ToLower(strings.TrimSpace(c.DefaultQuery("exchange", h.defaultSource))),
		Symbol: strings.TrimSpace(c.Query("symbol")),
	}
	if req.Source == "" {
		return req, errors.New("exchange 不能为空")
	}
	force, err := parseBool(c.Query("force_refresh"))
	if err != nil {
		return req, fmt.Errorf("force_refresh: %w", err)
	}
	req.ForceRefresh = force

	now := h.now()
	req.End = now.UnixMilli()
	lookback := h.defaultLookback
	if raw := strings.TrimSpace(c.Query("days")); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days <= 0 {
			return req, fmt.Errorf("days 必须为正整数: %q", raw)
		}
		lookback = time.Duration(days) * 24 * time.Hour
	}
	req.Start = now.Add(-lookback).UnixMilli()

	if raw := strings.TrimSpace(c.Query("start")); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return req, fmt.Errorf("start: %w", err)
		}
		req.Start = v
	}
	if raw := strings.TrimSpace(c.Query("end")); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return req, fmt.Errorf("end: %w", err)
		}
		req.End = v
	}
	return req, nil
}

func parseBool(raw string) (bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

func (h *handler) handleExchanges(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"exchanges": h.svc.Sources(), "default": h.defaultSource})
}

func (h *handler) handleCacheRanges(c *gin.Context) {
	ranges, err := h.svc.CachedRanges(c.Request.Context(), c.Query("exchange"))
	if err != nil {
		c.JSON(cacheErrorStatus(err), gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "ranges": ranges})
}

func (h *handler) handleClearCache(c *gin.Context) {
	if err := h.svc.Clear(c.Request.Context()); err != nil {
		c.JSON(cacheErrorStatus(err), gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func cacheErrorStatus(err error) int {
	if errors.Is(err, store.ErrCacheUnavailable) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
