package hyperliquid

import (
	"strings"
	"time"
)

type Config struct {
	BaseURL     string
	Wallet      string
	HTTPTimeout time.Duration
	// MaxPages bounds pagination inside one window.
	MaxPages int
}

func (c *Config) withDefaults() Config {
	out := *c
	out.BaseURL = strings.TrimRight(strings.TrimSpace(out.BaseURL), "/")
	if out.BaseURL == "" {
		out.BaseURL = "https://api.hyperliquid.xyz"
	}
	out.Wallet = strings.TrimSpace(out.Wallet)
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	if out.MaxPages <= 0 {
		out.MaxPages = 5
	}
	return out
}
