// Package reconcile serves trade history for a (source, symbol, window),
// reading what is cached and pulling only the missing spans upstream.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"tradedesk/internal/logger"
	"tradedesk/internal/pkg/circuit"
	"tradedesk/internal/pkg/symbol"
	"tradedesk/internal/rangecache"
	"tradedesk/internal/store"
	"tradedesk/internal/types"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// SourceSpec registers an upstream with its inter-chunk delay.
type SourceSpec struct {
	Source     Source
	ChunkDelay time.Duration
}

// Config wires a Reconciler. Store may be nil: every request then goes
// upstream and nothing is persisted.
type Config struct {
	Store            store.Store
	Sources          []SourceSpec
	ChunkSize        time.Duration
	MaxChunks        int
	SingleFlight     bool
	SplitCloses      bool
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// Request asks for trades whose exit time lies in [Start, End] (Unix ms).
type Request struct {
	Source       string
	Symbol       string
	Start        int64
	End          int64
	ForceRefresh bool
}

// Result is the merged answer, newest first.
type Result struct {
	RequestID    string              `json:"request_id"`
	Source       string              `json:"exchange"`
	Symbol       string              `json:"symbol,omitempty"`
	Trades       []types.TradeRecord `json:"trades"`
	FromCache    bool                `json:"from_cache"`
	CachedAt     *time.Time          `json:"cached_at,omitempty"`
	Truncated    bool                `json:"truncated"`
	FailedChunks int                 `json:"failed_chunks"`
	Gaps         []types.Window      `json:"gaps,omitempty"`
}

type registeredSource struct {
	src     Source
	symbols symbol.Converter
	limiter *rate.Limiter
	breaker *circuit.CircuitBreaker
}

// canonicalSymbol maps a request symbol onto the spelling the source's
// records carry; "" stays "" (all symbols).
func (reg *registeredSource) canonicalSymbol(sym string) string {
	sym = strings.TrimSpace(sym)
	if sym == "" {
		return ""
	}
	if reg.symbols != nil {
		if conv := reg.symbols.FromExchange(reg.symbols.ToExchange(sym)); conv != "" {
			return symbol.Normalize(conv)
		}
	}
	return rangecache.Scope(sym)
}

type Reconciler struct {
	store        store.Store
	cache        *rangecache.Cache
	sources      map[string]*registeredSource
	chunkSize    time.Duration
	maxChunks    int
	singleFlight bool
	splitCloses  bool

	group singleflight.Group
	mu    sync.RWMutex
	now   func() time.Time
}

func New(cfg Config) (*Reconciler, error) {
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("至少需要一个数据源")
	}
	r := &Reconciler{
		store:        cfg.Store,
		sources:      make(map[string]*registeredSource, len(cfg.Sources)),
		chunkSize:    cfg.ChunkSize,
		maxChunks:    cfg.MaxChunks,
		singleFlight: cfg.SingleFlight,
		splitCloses:  cfg.SplitCloses,
		now:          time.Now,
	}
	if r.chunkSize <= 0 {
		r.chunkSize = DefaultChunkSize
	}
	if r.maxChunks <= 0 {
		r.maxChunks = DefaultMaxChunks
	}
	if cfg.Store != nil {
		r.cache = rangecache.New(cfg.Store.Ranges())
	}
	for _, spec := range cfg.Sources {
		if spec.Source == nil {
			continue
		}
		name := strings.ToLower(spec.Source.Name())
		if _, dup := r.sources[name]; dup {
			return nil, fmt.Errorf("重复的数据源: %s", name)
		}
		reg := &registeredSource{src: spec.Source, limiter: newLimiter(spec.ChunkDelay)}
		if ss, ok := spec.Source.(SymbolSource); ok {
			reg.symbols = ss.Symbols()
		}
		if cfg.BreakerThreshold > 0 {
			reg.breaker = circuit.NewCircuitBreaker(name, cfg.BreakerThreshold, cfg.BreakerCooldown)
		}
		r.sources[name] = reg
	}
	if len(r.sources) == 0 {
		return nil, fmt.Errorf("至少需要一个数据源")
	}
	return r, nil
}

// newLimiter paces chunk requests one per delay; the first passes at once.
func newLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// CacheEnabled reports whether a store backs this reconciler.
func (r *Reconciler) CacheEnabled() bool {
	return r.store != nil
}

// Sources lists the registered source names, sorted.
func (r *Reconciler) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Reconciler) lookup(name string) (*registeredSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.sources[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	return reg, nil
}

// FetchRange returns trades in the requested window. Only an unknown source
// or an invalid window is an error; upstream and store failures are logged
// and the result is whatever could be gathered.
func (r *Reconciler) FetchRange(ctx context.Context, req Request) (Result, error) {
	reg, err := r.lookup(req.Source)
	if err != nil {
		return Result{}, err
	}
	if req.Start < 0 || !(types.Window{Start: req.Start, End: req.End}).Valid() {
		return Result{}, fmt.Errorf("%w: start=%d end=%d", ErrInvalidWindow, req.Start, req.End)
	}
	req.Source = strings.ToLower(reg.src.Name())
	req.Symbol = reg.canonicalSymbol(req.Symbol)

	if !r.singleFlight {
		return r.fetchRange(ctx, reg, req), nil
	}
	key := fmt.Sprintf("%s|%s|%d|%d|%t", req.Source, req.Symbol, req.Start, req.End, req.ForceRefresh)
	v, _, shared := r.group.Do(key, func() (interface{}, error) {
		return r.fetchRange(ctx, reg, req), nil
	})
	res := v.(Result)
	if shared {
		res.Trades = append([]types.TradeRecord(nil), res.Trades...)
	}
	return res, nil
}

func (r *Reconciler) fetchRange(ctx context.Context, reg *registeredSource, req Request) Result {
	res := Result{
		RequestID: uuid.NewString(),
		Source:    req.Source,
		Symbol:    req.Symbol,
	}
	whole := types.Window{Start: req.Start, End: req.End}
	scope := rangecache.Scope(req.Symbol)
	logger.Infof("[reconcile] %s 请求 %s %s %s force=%t", res.RequestID, req.Source, scope, whole, req.ForceRefresh)

	if r.store == nil || req.ForceRefresh {
		batch := r.fetchGap(ctx, reg, req.Symbol, whole, &res)
		res.Gaps = []types.Window{whole}
		if r.store != nil {
			r.persist(ctx, req.Source, scope, batch)
		}
		res.Trades = finalize(inWindow(batch, whole))
		logger.Infof("[reconcile] %s 完成（直连）trades=%d failed_chunks=%d truncated=%t", res.RequestID, len(res.Trades), res.FailedChunks, res.Truncated)
		return res
	}

	gaps, _, err := r.cache.Gaps(ctx, req.Source, scope, req.Start, req.End)
	if err != nil {
		logger.Warnf("[reconcile] %s 读取缓存区间失败，整体拉取: %v", res.RequestID, err)
		gaps = []types.Window{whole}
	}
	res.Gaps = gaps

	var fetched []types.TradeRecord
	for _, gap := range gaps {
		batch := r.fetchGap(ctx, reg, req.Symbol, gap, &res)
		r.persist(ctx, req.Source, scope, batch)
		fetched = append(fetched, batch...)
	}

	filter := types.TradeFilter{Source: req.Source, Symbol: req.Symbol, Start: req.Start, End: req.End}
	cached, err := r.store.Trades().Query(ctx, filter)
	if err != nil {
		logger.Warnf("[reconcile] %s 读取缓存交易失败: %v", res.RequestID, err)
	}
	res.Trades = finalize(inWindow(types.MergeRecords(cached, fetched), whole))

	populated, err := r.store.Trades().MostRecentPopulationTime(ctx, filter)
	if err != nil {
		logger.Warnf("[reconcile] %s 读取缓存时间失败: %v", res.RequestID, err)
	}
	res.CachedAt = populated
	res.FromCache = populated != nil
	logger.With(
		"request_id", res.RequestID,
		"gaps", len(gaps),
		"trades", len(res.Trades),
		"from_cache", res.FromCache,
		"failed_chunks", res.FailedChunks,
		"truncated", res.Truncated,
	).Info("[reconcile] 完成")
	return res
}

// fetchGap pulls one gap chunk by chunk, newest first, and turns the raw
// records into trades. Fills are matched over the whole gap with a fresh
// ledger, so lots opened before the gap are not visible to it.
func (r *Reconciler) fetchGap(ctx context.Context, reg *registeredSource, sym string, gap types.Window, res *Result) []types.TradeRecord {
	chunks, truncated := SplitChunks(gap.Start, gap.End, r.chunkSize, r.maxChunks)
	if truncated {
		res.Truncated = true
		logger.Warnf("[reconcile] %s 区间 %s 超过 %d 个分片，较早部分未拉取", res.RequestID, gap, r.maxChunks)
	}
	name := strings.ToLower(reg.src.Name())
	var raw []types.RawRecord
	for i, chunk := range chunks {
		if !reg.breaker.Allow() {
			res.FailedChunks++
			logger.Warnf("[reconcile] %s 熔断中，跳过分片 %s", name, chunk)
			continue
		}
		if err := reg.limiter.Wait(ctx); err != nil {
			res.FailedChunks += len(chunks) - i
			logger.Warnf("[reconcile] %s 等待限流被取消: %v", res.RequestID, err)
			break
		}
		recs, err := reg.src.Fetch(ctx, types.FetchRequest{Symbol: sym, Start: chunk.Start, End: chunk.End})
		if err != nil {
			reg.breaker.RecordFailure()
			res.FailedChunks++
			uerr := &UpstreamError{Source: name, Window: chunk, Err: err}
			logger.Warnf("[reconcile] %s %v", res.RequestID, uerr)
			continue
		}
		reg.breaker.RecordSuccess()
		raw = append(raw, recs...)
	}
	return r.normalize(name, sym, reg.src.Kind(), raw)
}

// persist stores batch and extends the cached range in one transaction. The
// range grows only by the exit times of rows that were actually inserted.
func (r *Reconciler) persist(ctx context.Context, source, scope string, batch []types.TradeRecord) {
	if r.store == nil || len(batch) == 0 {
		return
	}
	err := store.InTx(ctx, r.store, func(uow store.UnitOfWork) error {
		inserted, err := uow.Trades().UpsertBatch(ctx, batch)
		if err != nil {
			return err
		}
		oldest, newest, ok := types.ExitTimeBounds(inserted)
		if !ok {
			return nil
		}
		_, err = r.cache.ExtendTx(ctx, uow, source, scope, oldest, newest)
		return err
	})
	if err != nil {
		logger.Errorf("[reconcile] %s/%s 写入缓存失败: %v", source, scope, err)
	}
}

// MostRecentPopulationTime is the latest store write among matching trades;
// nil when nothing matches or no store is configured.
func (r *Reconciler) MostRecentPopulationTime(ctx context.Context, source, sym string, start, end int64) (*time.Time, error) {
	if r.store == nil {
		return nil, nil
	}
	if reg, err := r.lookup(source); err == nil {
		sym = reg.canonicalSymbol(sym)
	} else if sym != "" {
		sym = rangecache.Scope(sym)
	}
	return r.store.Trades().MostRecentPopulationTime(ctx, types.TradeFilter{
		Source: strings.ToLower(source),
		Symbol: sym,
		Start:  start,
		End:    end,
	})
}

// CachedRanges lists persisted ranges for source, or every source when empty.
func (r *Reconciler) CachedRanges(ctx context.Context, source string) ([]types.CachedRange, error) {
	if r.cache == nil {
		return nil, store.ErrCacheUnavailable
	}
	return r.cache.List(ctx, strings.ToLower(source))
}

// Clear wipes every stored trade and range.
func (r *Reconciler) Clear(ctx context.Context) error {
	if r.store == nil {
		return store.ErrCacheUnavailable
	}
	if err := r.store.Clear(ctx); err != nil {
		return err
	}
	logger.Infof("[reconcile] 缓存已清空")
	return nil
}

func inWindow(recs []types.TradeRecord, w types.Window) []types.TradeRecord {
	out := recs[:0:0]
	for _, rec := range recs {
		if rec.ExitTime >= w.Start && rec.ExitTime <= w.End {
			out = append(out, rec)
		}
	}
	return out
}

func finalize(recs []types.TradeRecord) []types.TradeRecord {
	out := types.MergeRecords(recs)
	types.SortNewestFirst(out)
	return out
}
