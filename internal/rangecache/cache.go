// Package rangecache tracks which span of trade history has already been
// pulled for a (source, scope) and works out what is still missing.
package rangecache

import (
	"context"
	"strings"
	"time"

	"tradedesk/internal/pkg/symbol"
	"tradedesk/internal/store"
	"tradedesk/internal/types"
)

// Cache persists one contiguous CachedRange per (source, scope).
//
// Only a single interval is kept. If a request far older than the cached range
// is fetched and extended, the hole in between is recorded as covered too.
// Callers that need exact coverage must fetch contiguously.
type Cache struct {
	ranges store.RangeRepository
	now    func() time.Time
}

func New(ranges store.RangeRepository) *Cache {
	return &Cache{ranges: ranges, now: time.Now}
}

// Scope maps a symbol filter to the cache scope key.
func Scope(sym string) string {
	if strings.TrimSpace(sym) == "" {
		return types.ScopeAll
	}
	return symbol.Normalize(sym)
}

// Get returns nil, nil when the scope has no cached range yet.
func (c *Cache) Get(ctx context.Context, source, scope string) (*types.CachedRange, error) {
	if c == nil || c.ranges == nil {
		return nil, store.ErrCacheUnavailable
	}
	return c.ranges.Get(ctx, source, scope)
}

// Gaps loads the cached range and returns UncachedRanges for [start, end].
func (c *Cache) Gaps(ctx context.Context, source, scope string, start, end int64) ([]types.Window, *types.CachedRange, error) {
	cached, err := c.Get(ctx, source, scope)
	if err != nil {
		return nil, nil, err
	}
	return UncachedRanges(cached, start, end), cached, nil
}

// Extend widens the range to cover [oldest, newest], creating it if absent.
func (c *Cache) Extend(ctx context.Context, source, scope string, oldest, newest int64) (types.CachedRange, error) {
	if c == nil || c.ranges == nil {
		return types.CachedRange{}, store.ErrCacheUnavailable
	}
	return c.ranges.Extend(ctx, source, scope, oldest, newest, c.now())
}

// ExtendTx is Extend bound to an open unit of work.
func (c *Cache) ExtendTx(ctx context.Context, uow store.UnitOfWork, source, scope string, oldest, newest int64) (types.CachedRange, error) {
	if uow == nil {
		return c.Extend(ctx, source, scope, oldest, newest)
	}
	return uow.Ranges().Extend(ctx, source, scope, oldest, newest, c.clock())
}

// List returns every cached range of source, or of all sources when empty.
func (c *Cache) List(ctx context.Context, source string) ([]types.CachedRange, error) {
	if c == nil || c.ranges == nil {
		return nil, store.ErrCacheUnavailable
	}
	return c.ranges.List(ctx, source)
}

func (c *Cache) clock() time.Time {
	if c == nil || c.now == nil {
		return time.Now()
	}
	return c.now()
}

// UncachedRanges returns the parts of [start, end] outside cached, oldest
// first. The interior of the cached range is never reported. The gaps are
// adjacent to the cached bounds, so a request lying entirely beyond one side
// still yields a window that reaches the range.
func UncachedRanges(cached *types.CachedRange, start, end int64) []types.Window {
	if cached == nil {
		return []types.Window{{Start: start, End: end}}
	}
	var gaps []types.Window
	if start < cached.Oldest {
		gaps = append(gaps, types.Window{Start: start, End: cached.Oldest - 1})
	}
	if end > cached.Newest {
		gaps = append(gaps, types.Window{Start: cached.Newest + 1, End: end})
	}
	return gaps
}

// Covers reports whether [start, end] lies inside cached.
func Covers(cached *types.CachedRange, start, end int64) bool {
	return cached != nil && start >= cached.Oldest && end <= cached.Newest
}
