package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tradedesk/internal/pkg/symbol"
	"tradedesk/internal/store"
	"tradedesk/internal/store/gormstore"
	"tradedesk/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const day = int64(24 * time.Hour / time.Millisecond)

type mockSource struct {
	mock.Mock
	name string
	kind types.RecordKind
}

func (m *mockSource) Name() string           { return m.name }
func (m *mockSource) Kind() types.RecordKind { return m.kind }

func (m *mockSource) Fetch(ctx context.Context, req types.FetchRequest) ([]types.RawRecord, error) {
	args := m.Called(req)
	recs, _ := args.Get(0).([]types.RawRecord)
	return recs, args.Error(1)
}

// fakeSource serves closed trades from a fixed upstream list and records the
// windows it was asked for.
type fakeSource struct {
	mu       sync.Mutex
	upstream []types.ClosedTrade
	calls    []types.Window
}

func (f *fakeSource) Name() string           { return "bybit" }
func (f *fakeSource) Kind() types.RecordKind { return types.KindClosedTrade }

func (f *fakeSource) Fetch(_ context.Context, req types.FetchRequest) ([]types.RawRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, types.Window{Start: req.Start, End: req.End})
	var out []types.RawRecord
	for _, c := range f.upstream {
		if c.ExitTime >= req.Start && c.ExitTime <= req.End {
			out = append(out, types.NewClosedTradeRecord(c))
		}
	}
	return out, nil
}

func (f *fakeSource) takeCalls() []types.Window {
	f.mu.Lock()
	defer f.mu.Unlock()
	calls := f.calls
	f.calls = nil
	return calls
}

func closed(sym string, exit int64) types.ClosedTrade {
	return types.ClosedTrade{
		Symbol:     sym,
		Side:       types.SideSell,
		EntryPrice: decimal.NewFromInt(100),
		ExitPrice:  decimal.NewFromInt(110),
		Qty:        decimal.NewFromInt(1),
		ClosedPnl:  decimal.NewFromInt(10),
		EntryTime:  exit - 60_000,
		ExitTime:   exit,
	}
}

func newTestStore(t *testing.T) *gormstore.GormStore {
	t.Helper()
	s, err := gormstore.NewGormStore(gormstore.Config{Path: filepath.Join(t.TempDir(), "cache.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func exits(recs []types.TradeRecord) []int64 {
	out := make([]int64, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ExitTime)
	}
	return out
}

func TestFetchRangeValidation(t *testing.T) {
	r, err := New(Config{Sources: []SourceSpec{{Source: &fakeSource{}}}})
	require.NoError(t, err)

	_, err = r.FetchRange(context.Background(), Request{Source: "kraken", Start: 1, End: 2})
	assert.ErrorIs(t, err, ErrUnknownSource)

	_, err = r.FetchRange(context.Background(), Request{Source: "bybit", Start: 5, End: 1})
	assert.ErrorIs(t, err, ErrInvalidWindow)

	_, err = New(Config{})
	assert.Error(t, err)
}

func TestFetchRangeWithoutStore(t *testing.T) {
	src := &fakeSource{upstream: []types.ClosedTrade{
		closed("BTCUSDT", 2*day),
		closed("BTCUSDT", 9*day),
		closed("ETHUSDT", 5*day),
	}}
	r, err := New(Config{Sources: []SourceSpec{{Source: src}}})
	require.NoError(t, err)
	assert.False(t, r.CacheEnabled())

	res, err := r.FetchRange(context.Background(), Request{Source: "Bybit", Start: 1, End: 10 * day})
	require.NoError(t, err)
	assert.Equal(t, []int64{9 * day, 5 * day, 2 * day}, exits(res.Trades))
	assert.False(t, res.FromCache)
	assert.Nil(t, res.CachedAt)
	assert.NotEmpty(t, res.RequestID)
	assert.Len(t, src.takeCalls(), 2)

	res, err = r.FetchRange(context.Background(), Request{Source: "bybit", Symbol: "btc/usdt", Start: 1, End: 10 * day})
	require.NoError(t, err)
	assert.Equal(t, "BTC/USDT", res.Symbol)
	assert.Equal(t, []int64{9 * day, 2 * day}, exits(res.Trades))
	assert.Equal(t, types.PositionLong, res.Trades[0].PositionSide)
	assert.Equal(t, int64(60_000), res.Trades[0].DurationMs)

	assert.ErrorIs(t, r.Clear(context.Background()), store.ErrCacheUnavailable)
	latest, err := r.MostRecentPopulationTime(context.Background(), "bybit", "", 0, 0)
	assert.NoError(t, err)
	assert.Nil(t, latest)
}

func TestFetchRangeGapFlow(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{upstream: []types.ClosedTrade{
		closed("BTCUSDT", 2*day),
		closed("BTCUSDT", 5*day),
		closed("BTCUSDT", 8*day),
	}}
	st := newTestStore(t)
	r, err := New(Config{Store: st, Sources: []SourceSpec{{Source: src}}})
	require.NoError(t, err)

	req := Request{Source: "bybit", Symbol: "BTCUSDT", Start: 1, End: 10 * day}
	res, err := r.FetchRange(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, []int64{8 * day, 5 * day, 2 * day}, exits(res.Trades))
	assert.True(t, res.FromCache, "population time exists once rows are stored")
	assert.Equal(t, []types.Window{{Start: 1, End: 10 * day}}, res.Gaps)
	src.takeCalls()

	rng, err := st.Ranges().Get(ctx, "bybit", "BTC/USDT")
	require.NoError(t, err)
	require.NotNil(t, rng)
	assert.Equal(t, 2*day, rng.Oldest, "extended by observed trades, not by the request")
	assert.Equal(t, 8*day, rng.Newest)

	res, err = r.FetchRange(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, []int64{8 * day, 5 * day, 2 * day}, exits(res.Trades))
	assert.Equal(t, []types.Window{{Start: 1, End: 2*day - 1}, {Start: 8*day + 1, End: 10 * day}}, res.Gaps)
	assert.Equal(t, []types.Window{{Start: 1, End: 2*day - 1}, {Start: 8*day + 1, End: 10 * day}}, src.takeCalls())

	n, err := st.Trades().Count(ctx, types.TradeFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	// A new trade inside the cached range is only seen with a forced refresh.
	src.mu.Lock()
	src.upstream = append(src.upstream, closed("BTCUSDT", 6*day))
	src.mu.Unlock()

	res, err = r.FetchRange(ctx, req)
	require.NoError(t, err)
	assert.Len(t, res.Trades, 3)

	res, err = r.FetchRange(ctx, Request{Source: "bybit", Symbol: "BTCUSDT", Start: 1, End: 10 * day, ForceRefresh: true})
	require.NoError(t, err)
	assert.Equal(t, []int64{8 * day, 6 * day, 5 * day, 2 * day}, exits(res.Trades))
	assert.False(t, res.FromCache)
	assert.Len(t, src.takeCalls()[2:], 2, "forced refresh fetches the whole window")

	n, err = st.Trades().Count(ctx, types.TradeFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)

	ranges, err := r.CachedRanges(ctx, "bybit")
	require.NoError(t, err)
	assert.Len(t, ranges, 1)

	require.NoError(t, r.Clear(ctx))
	n, err = st.Trades().Count(ctx, types.TradeFilter{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFailedChunkContinues(t *testing.T) {
	src := &mockSource{name: "bybit", kind: types.KindClosedTrade}
	newest := types.FetchRequest{Start: 3*day + 1, End: 10 * day}
	oldest := types.FetchRequest{Start: 1, End: 3 * day}
	src.On("Fetch", newest).Return(nil, errors.New("502 bad gateway")).Once()
	src.On("Fetch", oldest).Return([]types.RawRecord{types.NewClosedTradeRecord(closed("BTCUSDT", 2*day))}, nil).Once()

	r, err := New(Config{Sources: []SourceSpec{{Source: src}}})
	require.NoError(t, err)
	res, err := r.FetchRange(context.Background(), Request{Source: "bybit", Start: 1, End: 10 * day})
	require.NoError(t, err)
	assert.Equal(t, 1, res.FailedChunks)
	assert.Equal(t, []int64{2 * day}, exits(res.Trades))
	src.AssertExpectations(t)
}

func TestChunkCapTruncates(t *testing.T) {
	src := &mockSource{name: "bybit", kind: types.KindClosedTrade}
	src.On("Fetch", mock.Anything).Return([]types.RawRecord{}, nil)

	r, err := New(Config{Sources: []SourceSpec{{Source: src}}})
	require.NoError(t, err)
	res, err := r.FetchRange(context.Background(), Request{Source: "bybit", Start: 0, End: 200 * day})
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Empty(t, res.Trades)
	assert.NotNil(t, res.Trades)
	src.AssertNumberOfCalls(t, "Fetch", DefaultMaxChunks)
}

func TestBreakerSkipsChunks(t *testing.T) {
	src := &mockSource{name: "bybit", kind: types.KindClosedTrade}
	src.On("Fetch", mock.Anything).Return(nil, errors.New("timeout"))

	r, err := New(Config{
		Sources:          []SourceSpec{{Source: src}},
		BreakerThreshold: 1,
		BreakerCooldown:  time.Hour,
	})
	require.NoError(t, err)
	res, err := r.FetchRange(context.Background(), Request{Source: "bybit", Start: 1, End: 21 * day})
	require.NoError(t, err)
	assert.Equal(t, 3, res.FailedChunks)
	src.AssertNumberOfCalls(t, "Fetch", 1)
}

func TestChunkDelayPaces(t *testing.T) {
	src := &mockSource{name: "bybit", kind: types.KindClosedTrade}
	src.On("Fetch", mock.Anything).Return([]types.RawRecord{}, nil)

	r, err := New(Config{Sources: []SourceSpec{{Source: src, ChunkDelay: 20 * time.Millisecond}}})
	require.NoError(t, err)
	started := time.Now()
	_, err = r.FetchRange(context.Background(), Request{Source: "bybit", Start: 1, End: 21 * day})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(started), 35*time.Millisecond)
	src.AssertNumberOfCalls(t, "Fetch", 3)
}

func TestCancelledContextStopsChunks(t *testing.T) {
	src := &mockSource{name: "bybit", kind: types.KindClosedTrade}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, err := New(Config{Sources: []SourceSpec{{Source: src}}})
	require.NoError(t, err)
	res, err := r.FetchRange(ctx, Request{Source: "bybit", Start: 1, End: 21 * day})
	require.NoError(t, err)
	assert.Equal(t, 3, res.FailedChunks)
	src.AssertNotCalled(t, "Fetch", mock.Anything)
}

func TestFillSourceIsMatched(t *testing.T) {
	src := &mockSource{name: "hyperliquid", kind: types.KindFill}
	fills := []types.RawRecord{
		types.NewFillRecord(types.Fill{Symbol: "BTC", Direction: types.CloseLong, Size: decimal.NewFromInt(10), Price: decimal.NewFromInt(110), Fee: decimal.NewFromInt(1), Timestamp: 2 * day}),
		types.NewFillRecord(types.Fill{Symbol: "BTC", Direction: types.OpenLong, Size: decimal.NewFromInt(10), Price: decimal.NewFromInt(100), Fee: decimal.NewFromInt(1), Timestamp: day}),
		types.NewFillRecord(types.Fill{Symbol: "ETH", Direction: types.CloseShort, Size: decimal.NewFromInt(1), Price: decimal.NewFromInt(10), Timestamp: day}),
	}
	src.On("Fetch", mock.Anything).Return(fills, nil)

	r, err := New(Config{Sources: []SourceSpec{{Source: src}}})
	require.NoError(t, err)
	res, err := r.FetchRange(context.Background(), Request{Source: "hyperliquid", Start: 1, End: 3 * day})
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	rec := res.Trades[0]
	assert.Equal(t, "hyperliquid", rec.Source)
	assert.Equal(t, "BTC", rec.Symbol)
	assert.True(t, decimal.NewFromInt(98).Equal(rec.RealizedPnl))
	assert.False(t, rec.FetchedAt.IsZero())
}

// convertingSource labels its records through a symbol converter, the way
// the exchange gateways do.
type convertingSource struct {
	*mockSource
	conv symbol.Converter
}

func (c convertingSource) Symbols() symbol.Converter { return c.conv }

func TestRequestSymbolFollowsSourceConverter(t *testing.T) {
	base := &mockSource{name: "hyperliquid", kind: types.KindFill}
	base.On("Fetch", mock.Anything).Return([]types.RawRecord{
		types.NewFillRecord(types.Fill{Symbol: "BTC/USDC", Direction: types.OpenLong, Size: decimal.NewFromInt(1), Price: decimal.NewFromInt(100), Timestamp: day}),
		types.NewFillRecord(types.Fill{Symbol: "BTC/USDC", Direction: types.CloseLong, Size: decimal.NewFromInt(1), Price: decimal.NewFromInt(110), Timestamp: 2 * day}),
	}, nil)
	src := convertingSource{mockSource: base, conv: symbol.Hyperliquid}

	direct, err := New(Config{Sources: []SourceSpec{{Source: src}}})
	require.NoError(t, err)
	for _, sym := range []string{"", "BTC", "btc", "BTC/USDC", "BTC/USDC:USDC"} {
		res, err := direct.FetchRange(context.Background(), Request{Source: "hyperliquid", Symbol: sym, Start: 1, End: 3 * day})
		require.NoError(t, err)
		require.Len(t, res.Trades, 1, sym)
		assert.Equal(t, "BTC/USDC", res.Trades[0].Symbol)
		if sym != "" {
			assert.Equal(t, "BTC/USDC", res.Symbol, sym)
		}
	}

	ctx := context.Background()
	cached, err := New(Config{Store: newTestStore(t), Sources: []SourceSpec{{Source: src}}})
	require.NoError(t, err)
	res, err := cached.FetchRange(ctx, Request{Source: "hyperliquid", Symbol: "BTC", Start: 1, End: 3 * day})
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.True(t, res.FromCache)

	ranges, err := cached.CachedRanges(ctx, "hyperliquid")
	require.NoError(t, err)
	require.Len(t, ranges, 1)
	assert.Equal(t, "BTC/USDC", ranges[0].Scope)
	assert.Equal(t, 2*day, ranges[0].Oldest)

	latest, err := cached.MostRecentPopulationTime(ctx, "hyperliquid", "btc", 0, 0)
	require.NoError(t, err)
	assert.NotNil(t, latest)
}

type blockingSource struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (b *blockingSource) Name() string           { return "bybit" }
func (b *blockingSource) Kind() types.RecordKind { return types.KindClosedTrade }

func (b *blockingSource) Fetch(ctx context.Context, req types.FetchRequest) ([]types.RawRecord, error) {
	if b.calls.Add(1) == 1 {
		close(b.started)
	}
	<-b.release
	return []types.RawRecord{types.NewClosedTradeRecord(closed("BTCUSDT", req.End))}, nil
}

func TestSingleFlightCoalesces(t *testing.T) {
	src := &blockingSource{started: make(chan struct{}), release: make(chan struct{})}
	r, err := New(Config{Sources: []SourceSpec{{Source: src}}, SingleFlight: true})
	require.NoError(t, err)

	req := Request{Source: "bybit", Start: 1, End: day}
	results := make([]Result, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		results[0], _ = r.FetchRange(context.Background(), req)
	}()
	<-src.started
	go func() {
		defer wg.Done()
		results[1], _ = r.FetchRange(context.Background(), req)
	}()
	time.Sleep(50 * time.Millisecond)
	close(src.release)
	wg.Wait()

	assert.EqualValues(t, 1, src.calls.Load())
	assert.Equal(t, results[0].RequestID, results[1].RequestID)
	assert.Len(t, results[1].Trades, 1)
}
