package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 TRADEDESK_CACHE_DSN 覆盖 cache.dsn。
const EnvPrefix = "TRADEDESK"

// envKeys 是允许通过环境变量覆盖的配置项，密钥类字段不应写进配置文件。
var envKeys = []string{
	"app.log_level",
	"app.http_addr",
	"cache.enabled",
	"cache.driver",
	"cache.path",
	"exchanges.bybit.api_key",
	"exchanges.bybit.api_secret",
	"exchanges.hyperliquid.wallet_address",
	"exchanges.binance.api_key",
	"exchanges.binance.api_secret",
}

// layer 是单个配置文件读取后的内容，按 include 顺序合并。
type layer struct {
	path     string
	settings map[string]any
}

// Load 读取 path 及其 include 链，叠加环境变量后返回校验过的配置。
func Load(path string) (*Config, error) {
	layers, err := resolveLayers(path)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigType("yaml")
	for _, l := range layers {
		if err := v.MergeConfigMap(l.settings); err != nil {
			return nil, fmt.Errorf("merging config file failed (%s): %w", l.path, err)
		}
	}
	if err := bindEnv(v); err != nil {
		return nil, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults(explicitKeys(v))
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func bindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("binding env for %s failed: %w", key, err)
		}
	}
	// DATABASE_URL 兼容常见部署方式，TRADEDESK_CACHE_DSN 优先。
	if err := v.BindEnv("cache.dsn", EnvPrefix+"_CACHE_DSN", "DATABASE_URL"); err != nil {
		return fmt.Errorf("binding env for cache.dsn failed: %w", err)
	}
	return nil
}

// explicitKeys 收集文件或环境变量里真正出现过的键，默认值只填补其余字段。
func explicitKeys(v *viper.Viper) keySet {
	keys := make(keySet)
	for _, k := range v.AllKeys() {
		if v.IsSet(k) {
			keys.mark(k)
		}
	}
	return keys
}

// resolveLayers 深度优先展开 include，被包含的文件先于包含者合并。
func resolveLayers(path string) ([]layer, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	r := &includeResolver{seen: map[string]bool{}, stack: map[string]bool{}}
	if err := r.visit(abs); err != nil {
		return nil, err
	}
	return r.layers, nil
}

type includeResolver struct {
	seen   map[string]bool
	stack  map[string]bool
	layers []layer
}

func (r *includeResolver) visit(path string) error {
	path = filepath.Clean(path)
	if r.stack[path] {
		return fmt.Errorf("include cycle detected: %s", path)
	}
	if r.seen[path] {
		return nil
	}
	r.stack[path] = true
	defer delete(r.stack, path)

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	dir := filepath.Dir(path)
	for _, inc := range v.GetStringSlice("include") {
		inc = strings.TrimSpace(inc)
		if inc == "" {
			continue
		}
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(dir, inc)
		}
		if err := r.visit(inc); err != nil {
			return err
		}
	}
	r.seen[path] = true
	settings := v.AllSettings()
	delete(settings, "include")
	r.layers = append(r.layers, layer{path: path, settings: settings})
	return nil
}
