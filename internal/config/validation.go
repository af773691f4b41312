package config

import (
	"fmt"
	"strings"

	"tradedesk/internal/pkg/symbol"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Cache.validate(); err != nil {
		return err
	}
	if err := c.Fetch.validate(); err != nil {
		return err
	}
	if err := c.Exchanges.validate(); err != nil {
		return err
	}
	if name := strings.ToLower(strings.TrimSpace(c.Fetch.DefaultExchange)); name != "" {
		found := false
		for _, enabled := range c.Exchanges.EnabledExchanges() {
			if enabled == name {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("fetch.default_exchange %q is not an enabled exchange", c.Fetch.DefaultExchange)
		}
	}
	return nil
}

func (c *CacheConfig) validate() error {
	if !c.Enabled {
		return nil
	}
	switch c.Driver {
	case "sqlite", "sqlite3":
		if strings.TrimSpace(c.DSN) == "" && strings.TrimSpace(c.Path) == "" {
			return fmt.Errorf("cache.path or cache.dsn is required for driver %s", c.Driver)
		}
	case "postgres", "postgresql":
		if strings.TrimSpace(c.DSN) == "" {
			return fmt.Errorf("cache.dsn is required for driver %s", c.Driver)
		}
	default:
		return fmt.Errorf("cache.driver must be sqlite, sqlite3 or postgres, got %q", c.Driver)
	}
	return nil
}

func (f *FetchConfig) validate() error {
	if f.ChunkDays <= 0 {
		return fmt.Errorf("fetch.chunk_days must be > 0")
	}
	if f.MaxChunks <= 0 {
		return fmt.Errorf("fetch.max_chunks must be > 0")
	}
	if f.BreakerThreshold < 0 {
		return fmt.Errorf("fetch.breaker_threshold must be >= 0")
	}
	return nil
}

func (e *ExchangesConfig) validate() error {
	if len(e.EnabledExchanges()) == 0 {
		return fmt.Errorf("exchanges: at least one exchange must be enabled")
	}
	if e.Bybit.Enabled && (strings.TrimSpace(e.Bybit.APIKey) == "" || strings.TrimSpace(e.Bybit.APISecret) == "") {
		return fmt.Errorf("exchanges.bybit requires api_key and api_secret")
	}
	if e.Hyperliquid.Enabled && strings.TrimSpace(e.Hyperliquid.Wallet) == "" {
		return fmt.Errorf("exchanges.hyperliquid requires wallet_address")
	}
	if e.Binance.Enabled && (strings.TrimSpace(e.Binance.APIKey) == "" || strings.TrimSpace(e.Binance.APISecret) == "") {
		return fmt.Errorf("exchanges.binance requires api_key and api_secret")
	}
	for _, sym := range e.Binance.Symbols {
		if !symbol.IsValid(sym) {
			return fmt.Errorf("exchanges.binance.symbols: %q is not a BASE/QUOTE pair", sym)
		}
	}
	for name, src := range map[string]Source{
		"bybit":       e.Bybit.Source,
		"hyperliquid": e.Hyperliquid.Source,
		"binance":     e.Binance.Source,
	} {
		if src.ChunkDelayMs < 0 {
			return fmt.Errorf("exchanges.%s.chunk_delay_ms must be >= 0", name)
		}
	}
	return nil
}
