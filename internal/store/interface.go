package store

import (
	"context"
	"errors"
	"time"

	"tradedesk/internal/types"
)

// ErrCacheUnavailable marks a store that is not configured or cannot be reached.
// Callers degrade to fetching everything from upstream.
var ErrCacheUnavailable = errors.New("trade cache unavailable")

// UnitOfWork defines a transaction scope.
type UnitOfWork interface {
	// Commit commits the transaction.
	Commit() error
	// Rollback rolls back the transaction.
	Rollback() error

	// Trades returns the trade repository within this transaction.
	Trades() TradeRepository
	// Ranges returns the cache range repository within this transaction.
	Ranges() RangeRepository
}

// Store is the entry point for cache persistence.
type Store interface {
	// Begin starts a new UnitOfWork (transaction).
	Begin(ctx context.Context) (UnitOfWork, error)
	// Trades returns a repository bound to the base connection.
	Trades() TradeRepository
	// Ranges returns a repository bound to the base connection.
	Ranges() RangeRepository
	// Clear wipes every stored trade and cache range.
	Clear(ctx context.Context) error
	// Close closes the store connection.
	Close() error
}

// TradeRepository persists reconciled trades, deduplicated on types.TradeKey.
type TradeRepository interface {
	// Upsert inserts rec unless its key already exists and reports whether it did.
	Upsert(ctx context.Context, rec types.TradeRecord) (bool, error)
	// UpsertBatch upserts recs and returns the ones actually inserted.
	UpsertBatch(ctx context.Context, recs []types.TradeRecord) ([]types.TradeRecord, error)
	// Query returns matching trades in no particular order.
	Query(ctx context.Context, f types.TradeFilter) ([]types.TradeRecord, error)
	// MostRecentPopulationTime is the latest fetched_at among matches, nil if none.
	MostRecentPopulationTime(ctx context.Context, f types.TradeFilter) (*time.Time, error)
	Count(ctx context.Context, f types.TradeFilter) (int64, error)
}

// RangeRepository persists one CachedRange per (source, scope).
type RangeRepository interface {
	// Get returns nil, nil when the scope has never been cached.
	Get(ctx context.Context, source, scope string) (*types.CachedRange, error)
	// Extend creates the range or widens it to include [oldest, newest].
	Extend(ctx context.Context, source, scope string, oldest, newest int64, at time.Time) (types.CachedRange, error)
	List(ctx context.Context, source string) ([]types.CachedRange, error)
}

// InTx runs fn inside a UnitOfWork, committing on success and rolling back otherwise.
func InTx(ctx context.Context, s Store, fn func(uow UnitOfWork) error) error {
	if s == nil {
		return ErrCacheUnavailable
	}
	uow, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(uow); err != nil {
		_ = uow.Rollback()
		return err
	}
	return uow.Commit()
}
