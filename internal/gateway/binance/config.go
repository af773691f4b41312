package binance

import (
	"strings"
	"time"
)

type Config struct {
	RESTBaseURL string
	APIKey      string
	APISecret   string
	HTTPTimeout time.Duration
	// Symbols are queried when a request has no symbol; the userTrades
	// endpoint only answers per symbol.
	Symbols  []string
	PageSize int
	MaxPages int

	ProxyEnabled bool
	RESTProxyURL string
}

func (c *Config) withDefaults() Config {
	out := *c
	out.RESTBaseURL = strings.TrimSpace(out.RESTBaseURL)
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = "https://fapi.binance.com"
	}
	out.APIKey = strings.TrimSpace(out.APIKey)
	out.APISecret = strings.TrimSpace(out.APISecret)
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	if out.PageSize <= 0 || out.PageSize > 1000 {
		out.PageSize = 1000
	}
	if out.MaxPages <= 0 {
		out.MaxPages = 5
	}
	out.RESTProxyURL = strings.TrimSpace(out.RESTProxyURL)
	return out
}
