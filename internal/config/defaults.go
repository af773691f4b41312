package config

import "strings"

// 默认值常量
const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultAppLogFormat    = "text"
	defaultAppHTTPAddr     = ":8080"
	defaultCacheDriver     = "sqlite"
	defaultCachePath       = "data/tradedesk.db"
	defaultChunkDays       = 7
	defaultMaxChunks       = 20
	defaultLookbackDays    = 30
	defaultBreakerCooldown = 60
	defaultSourceTimeout   = 15
	defaultSourceMaxPages  = 5
	defaultBybitURL        = "https://api.bybit.com"
	defaultBybitDelayMs    = 500
	defaultHyperliquidURL  = "https://api.hyperliquid.xyz"
	defaultHyperDelayMs    = 100
	defaultBinanceURL      = "https://fapi.binance.com"
	defaultBinanceDelayMs  = 200
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Cache.applyDefaults(keys)
	c.Fetch.applyDefaults(keys)
	c.Exchanges.Bybit.Source.applyDefaults(keys, "exchanges.bybit", defaultBybitURL, defaultBybitDelayMs)
	c.Exchanges.Hyperliquid.Source.applyDefaults(keys, "exchanges.hyperliquid", defaultHyperliquidURL, defaultHyperDelayMs)
	c.Exchanges.Binance.Source.applyDefaults(keys, "exchanges.binance", defaultBinanceURL, defaultBinanceDelayMs)
	applyFieldDefaults(keys,
		stringFieldDefault("exchanges.bybit.category", &c.Exchanges.Bybit.Category, "linear"),
		stringFieldDefault("fetch.default_exchange", &c.Fetch.DefaultExchange, firstEnabled(c.Exchanges)),
	)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_format", &a.LogFormat, defaultAppLogFormat),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
}

func (c *CacheConfig) applyDefaults(keys keySet) {
	if c == nil {
		return
	}
	c.Driver = strings.ToLower(strings.TrimSpace(c.Driver))
	applyFieldDefaults(keys,
		boolFieldDefault("cache.enabled", &c.Enabled, true),
		stringFieldDefault("cache.driver", &c.Driver, defaultCacheDriver),
		fieldDefault{
			key:   "cache.path",
			need:  func() bool { return strings.TrimSpace(c.Path) == "" && strings.TrimSpace(c.DSN) == "" },
			apply: func() { c.Path = defaultCachePath },
		},
	)
}

func (f *FetchConfig) applyDefaults(keys keySet) {
	if f == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "fetch.chunk_days",
			need:  func() bool { return f.ChunkDays <= 0 },
			apply: func() { f.ChunkDays = defaultChunkDays },
		},
		fieldDefault{
			key:   "fetch.max_chunks",
			need:  func() bool { return f.MaxChunks <= 0 },
			apply: func() { f.MaxChunks = defaultMaxChunks },
		},
		fieldDefault{
			key:   "fetch.default_lookback_days",
			need:  func() bool { return f.DefaultLookbackDays <= 0 },
			apply: func() { f.DefaultLookbackDays = defaultLookbackDays },
		},
		fieldDefault{
			key:   "fetch.breaker_cooldown_seconds",
			need:  func() bool { return f.BreakerCooldownSeconds <= 0 },
			apply: func() { f.BreakerCooldownSeconds = defaultBreakerCooldown },
		},
		boolFieldDefault("fetch.single_flight", &f.SingleFlight, true),
	)
}

func (s *Source) applyDefaults(keys keySet, prefix, baseURL string, delayMs int) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault(prefix+".base_url", &s.BaseURL, baseURL),
		fieldDefault{
			key:   prefix + ".chunk_delay_ms",
			need:  func() bool { return s.ChunkDelayMs <= 0 },
			apply: func() { s.ChunkDelayMs = delayMs },
		},
		fieldDefault{
			key:   prefix + ".timeout_seconds",
			need:  func() bool { return s.TimeoutSeconds <= 0 },
			apply: func() { s.TimeoutSeconds = defaultSourceTimeout },
		},
		fieldDefault{
			key:   prefix + ".max_pages",
			need:  func() bool { return s.MaxPages <= 0 },
			apply: func() { s.MaxPages = defaultSourceMaxPages },
		},
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func firstEnabled(e ExchangesConfig) string {
	if names := e.EnabledExchanges(); len(names) > 0 {
		return names[0]
	}
	return ""
}
