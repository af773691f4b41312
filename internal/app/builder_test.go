package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"tradedesk/internal/config"
	"tradedesk/internal/reconcile"
	"tradedesk/internal/store/gormstore"
	"tradedesk/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct{ name string }

func (s stubSource) Name() string           { return s.name }
func (s stubSource) Kind() types.RecordKind { return types.KindClosedTrade }
func (s stubSource) Fetch(ctx context.Context, req types.FetchRequest) ([]types.RawRecord, error) {
	return nil, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		App:   config.AppConfig{HTTPAddr: "127.0.0.1:0", LogLevel: "error"},
		Cache: config.CacheConfig{Enabled: true, Driver: "sqlite", Path: filepath.Join(t.TempDir(), "trades.db")},
		Fetch: config.FetchConfig{
			DefaultExchange:        "stub",
			ChunkDays:              7,
			MaxChunks:              20,
			DefaultLookbackDays:    30,
			SingleFlight:           true,
			BreakerCooldownSeconds: 60,
		},
	}
}

func stubSources(config.ExchangesConfig) ([]reconcile.SourceSpec, error) {
	return []reconcile.SourceSpec{{Source: stubSource{name: "stub"}, ChunkDelay: time.Millisecond}}, nil
}

func TestBuildWiresCacheAndSources(t *testing.T) {
	cfg := testConfig(t)
	a, err := NewAppBuilder(cfg, WithSourcesFactory(stubSources)).Build(context.Background())
	require.NoError(t, err)
	defer a.Close()

	assert.True(t, a.Reconciler().CacheEnabled())
	assert.Equal(t, []string{"stub"}, a.Reconciler().Sources())
	require.NotNil(t, a.Summary)
	assert.True(t, a.Summary.CacheEnabled)
	require.Len(t, a.Summary.Sources, 1)
	assert.Equal(t, "closed_trade", a.Summary.Sources[0].Kind)

	rr := httptest.NewRecorder()
	a.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/exchanges", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Exchanges []string `json:"exchanges"`
		Default   string   `json:"default"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, []string{"stub"}, body.Exchanges)
	assert.Equal(t, "stub", body.Default)
}

func TestBuildDegradesWhenCacheFails(t *testing.T) {
	cfg := testConfig(t)
	failing := func(config.CacheConfig) (*gormstore.GormStore, error) {
		return nil, errors.New("disk full")
	}
	a, err := NewAppBuilder(cfg, WithSourcesFactory(stubSources), WithStoreFactory(failing)).Build(context.Background())
	require.NoError(t, err)
	assert.False(t, a.Reconciler().CacheEnabled())
	assert.False(t, a.Summary.CacheEnabled)
}

func TestBuildCacheDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Enabled = false
	called := false
	a, err := NewAppBuilder(cfg,
		WithSourcesFactory(stubSources),
		WithStoreFactory(func(config.CacheConfig) (*gormstore.GormStore, error) {
			called = true
			return nil, nil
		}),
	).Build(context.Background())
	require.NoError(t, err)
	assert.False(t, called)
	assert.False(t, a.Reconciler().CacheEnabled())
}

func TestBuildSourcesRequiresCredentials(t *testing.T) {
	_, err := buildSources(config.ExchangesConfig{})
	require.Error(t, err)

	_, err = buildSources(config.ExchangesConfig{Bybit: config.BybitConfig{Source: config.Source{Enabled: true}}})
	require.Error(t, err)

	specs, err := buildSources(config.ExchangesConfig{
		Hyperliquid: config.HyperliquidConfig{
			Source: config.Source{Enabled: true, ChunkDelayMs: 100},
			Wallet: "0xabc",
		},
	})
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "hyperliquid", specs[0].Source.Name())
	assert.Equal(t, 100*time.Millisecond, specs[0].ChunkDelay)
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	a, err := NewAppBuilder(cfg, WithSourcesFactory(stubSources)).Build(context.Background())
	require.NoError(t, err)
	a.Summary = nil

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
