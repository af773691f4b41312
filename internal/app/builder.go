package app

import (
	"context"
	"fmt"
	"strings"

	"tradedesk/internal/config"
	"tradedesk/internal/gateway/binance"
	"tradedesk/internal/gateway/bybit"
	"tradedesk/internal/gateway/hyperliquid"
	"tradedesk/internal/logger"
	"tradedesk/internal/reconcile"
	"tradedesk/internal/store"
	"tradedesk/internal/store/gormstore"
	tradehttp "tradedesk/internal/transport/http"
)

type AppBuilder struct {
	cfg *config.Config

	storeFn   func(config.CacheConfig) (*gormstore.GormStore, error)
	sourcesFn func(config.ExchangesConfig) ([]reconcile.SourceSpec, error)
}

type AppBuilderOption func(*AppBuilder)

// WithStoreFactory overrides how the trade cache is opened.
func WithStoreFactory(fn func(config.CacheConfig) (*gormstore.GormStore, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.storeFn = fn
		}
	}
}

// WithSourcesFactory overrides how upstream sources are built.
func WithSourcesFactory(fn func(config.ExchangesConfig) ([]reconcile.SourceSpec, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.sourcesFn = fn
		}
	}
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:       cfg,
		storeFn:   openStore,
		sourcesFn: buildSources,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	cache, st := b.resolveStore(cfg.Cache)

	specs, err := b.sourcesFn(cfg.Exchanges)
	if err != nil {
		if cache != nil {
			_ = cache.Close()
		}
		return nil, err
	}

	rec, err := reconcile.New(reconcile.Config{
		Store:            st,
		Sources:          specs,
		ChunkSize:        cfg.Fetch.ChunkSize(),
		MaxChunks:        cfg.Fetch.MaxChunks,
		SingleFlight:     cfg.Fetch.SingleFlight,
		SplitCloses:      cfg.Fetch.SplitCloses,
		BreakerThreshold: cfg.Fetch.BreakerThreshold,
		BreakerCooldown:  cfg.Fetch.BreakerCooldown(),
	})
	if err != nil {
		if cache != nil {
			_ = cache.Close()
		}
		return nil, err
	}

	srv, err := tradehttp.NewServer(tradehttp.ServerConfig{
		Addr:            cfg.App.HTTPAddr,
		Service:         rec,
		DefaultSource:   cfg.Fetch.DefaultExchange,
		DefaultLookback: cfg.Fetch.DefaultLookback(),
	})
	if err != nil {
		if cache != nil {
			_ = cache.Close()
		}
		return nil, err
	}

	return &App{
		cfg:        cfg,
		reconciler: rec,
		httpServer: srv,
		cache:      cache,
		Summary:    newStartupSummary(cfg, rec, specs),
	}, nil
}

// resolveStore 打开交易缓存；失败时降级为直连模式，不阻断启动。
func (b *AppBuilder) resolveStore(cfg config.CacheConfig) (*gormstore.GormStore, store.Store) {
	if !cfg.Enabled {
		logger.Infof("[cache] 缓存已禁用，所有请求直连交易所")
		return nil, nil
	}
	gs, err := b.storeFn(cfg)
	if err != nil || gs == nil {
		logger.Warnf("[cache] 缓存不可用，降级为直连: %v", err)
		return nil, nil
	}
	return gs, gs
}

func openStore(cfg config.CacheConfig) (*gormstore.GormStore, error) {
	return gormstore.NewGormStore(gormstore.Config{
		Driver: cfg.Driver,
		DSN:    cfg.DSN,
		Path:   cfg.Path,
	})
}

func buildSources(cfg config.ExchangesConfig) ([]reconcile.SourceSpec, error) {
	var specs []reconcile.SourceSpec
	if cfg.Bybit.Enabled {
		src, err := bybit.New(bybit.Config{
			BaseURL:     cfg.Bybit.BaseURL,
			APIKey:      cfg.Bybit.APIKey,
			APISecret:   cfg.Bybit.APISecret,
			Category:    cfg.Bybit.Category,
			HTTPTimeout: cfg.Bybit.Timeout(),
			MaxPages:    cfg.Bybit.MaxPages,
		})
		if err != nil {
			return nil, fmt.Errorf("init bybit source: %w", err)
		}
		specs = append(specs, reconcile.SourceSpec{Source: src, ChunkDelay: cfg.Bybit.ChunkDelay()})
	}
	if cfg.Hyperliquid.Enabled {
		src, err := hyperliquid.New(hyperliquid.Config{
			BaseURL:     cfg.Hyperliquid.BaseURL,
			Wallet:      cfg.Hyperliquid.Wallet,
			HTTPTimeout: cfg.Hyperliquid.Timeout(),
			MaxPages:    cfg.Hyperliquid.MaxPages,
		})
		if err != nil {
			return nil, fmt.Errorf("init hyperliquid source: %w", err)
		}
		specs = append(specs, reconcile.SourceSpec{Source: src, ChunkDelay: cfg.Hyperliquid.ChunkDelay()})
	}
	if cfg.Binance.Enabled {
		proxy := strings.TrimSpace(cfg.Binance.ProxyURL)
		src, err := binance.New(binance.Config{
			RESTBaseURL:  cfg.Binance.BaseURL,
			APIKey:       cfg.Binance.APIKey,
			APISecret:    cfg.Binance.APISecret,
			HTTPTimeout:  cfg.Binance.Timeout(),
			Symbols:      cfg.Binance.Symbols,
			MaxPages:     cfg.Binance.MaxPages,
			ProxyEnabled: proxy != "",
			RESTProxyURL: proxy,
		})
		if err != nil {
			return nil, fmt.Errorf("init binance source: %w", err)
		}
		specs = append(specs, reconcile.SourceSpec{Source: src, ChunkDelay: cfg.Binance.ChunkDelay()})
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("no exchange enabled")
	}
	return specs, nil
}
