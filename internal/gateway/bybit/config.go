package bybit

import (
	"strings"
	"time"
)

type Config struct {
	BaseURL     string
	APIKey      string
	APISecret   string
	Category    string
	RecvWindow  time.Duration
	HTTPTimeout time.Duration
	// PageSize is the closed-pnl "limit" (max 100); MaxPages bounds cursor
	// pagination inside one window.
	PageSize int
	MaxPages int
}

func (c *Config) withDefaults() Config {
	out := *c
	out.BaseURL = strings.TrimRight(strings.TrimSpace(out.BaseURL), "/")
	if out.BaseURL == "" {
		out.BaseURL = "https://api.bybit.com"
	}
	out.APIKey = strings.TrimSpace(out.APIKey)
	out.APISecret = strings.TrimSpace(out.APISecret)
	if out.Category == "" {
		out.Category = "linear"
	}
	if out.RecvWindow <= 0 {
		out.RecvWindow = 5 * time.Second
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	if out.PageSize <= 0 || out.PageSize > 100 {
		out.PageSize = 100
	}
	if out.MaxPages <= 0 {
		out.MaxPages = 5
	}
	return out
}
