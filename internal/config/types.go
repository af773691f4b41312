package config

import (
	"strings"
	"time"
)

// Config 是 tradedesk 的主配置载体。
type Config struct {
	App       AppConfig       `toml:"app"`
	Cache     CacheConfig     `toml:"cache"`
	Fetch     FetchConfig     `toml:"fetch"`
	Exchanges ExchangesConfig `toml:"exchanges"`
}

type AppConfig struct {
	Env            string `toml:"env"`
	LogLevel       string `toml:"log_level"`
	LogFormat      string `toml:"log_format"`
	LogPath        string `toml:"log_path"`
	HTTPAddr       string `toml:"http_addr"`
	PayloadLogPath string `toml:"payload_log_path"`
	DumpPayload    bool   `toml:"dump_payload"`
}

// CacheConfig selects the trade cache backend. Driver is sqlite (pure Go),
// sqlite3 (cgo) or postgres; DSN wins over Path when both are set.
type CacheConfig struct {
	Enabled bool   `toml:"enabled"`
	Driver  string `toml:"driver"`
	DSN     string `toml:"dsn"`
	Path    string `toml:"path"`
}

type FetchConfig struct {
	DefaultExchange        string `toml:"default_exchange"`
	ChunkDays              int    `toml:"chunk_days"`
	MaxChunks              int    `toml:"max_chunks"`
	DefaultLookbackDays    int    `toml:"default_lookback_days"`
	SingleFlight           bool   `toml:"single_flight"`
	SplitCloses            bool   `toml:"split_closes"`
	BreakerThreshold       int    `toml:"breaker_threshold"`
	BreakerCooldownSeconds int    `toml:"breaker_cooldown_seconds"`
}

func (f FetchConfig) ChunkSize() time.Duration {
	return time.Duration(f.ChunkDays) * 24 * time.Hour
}

func (f FetchConfig) DefaultLookback() time.Duration {
	return time.Duration(f.DefaultLookbackDays) * 24 * time.Hour
}

func (f FetchConfig) BreakerCooldown() time.Duration {
	return time.Duration(f.BreakerCooldownSeconds) * time.Second
}

type ExchangesConfig struct {
	Bybit       BybitConfig       `toml:"bybit"`
	Hyperliquid HyperliquidConfig `toml:"hyperliquid"`
	Binance     BinanceConfig     `toml:"binance"`
}

// Source 描述单个交易所的通用拉取参数。
type Source struct {
	Enabled        bool   `toml:"enabled"`
	BaseURL        string `toml:"base_url"`
	ChunkDelayMs   int    `toml:"chunk_delay_ms"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxPages       int    `toml:"max_pages"`
}

func (s Source) ChunkDelay() time.Duration {
	return time.Duration(s.ChunkDelayMs) * time.Millisecond
}

func (s Source) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

type BybitConfig struct {
	Source    `toml:",squash"`
	APIKey    string `toml:"api_key"`
	APISecret string `toml:"api_secret"`
	Category  string `toml:"category"`
}

type HyperliquidConfig struct {
	Source `toml:",squash"`
	Wallet string `toml:"wallet_address"`
}

type BinanceConfig struct {
	Source    `toml:",squash"`
	APIKey    string   `toml:"api_key"`
	APISecret string   `toml:"api_secret"`
	Symbols   []string `toml:"symbols"`
	ProxyURL  string   `toml:"proxy_url"`
}

// EnabledExchanges lists enabled exchange names in a fixed order.
func (e ExchangesConfig) EnabledExchanges() []string {
	var out []string
	if e.Bybit.Enabled {
		out = append(out, "bybit")
	}
	if e.Hyperliquid.Enabled {
		out = append(out, "hyperliquid")
	}
	if e.Binance.Enabled {
		out = append(out, "binance")
	}
	return out
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
