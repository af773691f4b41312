package gormstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tradedesk/internal/store"
	storemodel "tradedesk/internal/store/model"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	// Pure-Go driver, registered as "sqlite".
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"  // modernc.org/sqlite, no cgo
	DriverSQLite3  = "sqlite3" // mattn/go-sqlite3 via gorm.io/driver/sqlite
	DriverPostgres = "postgres"
)

// Config selects the backing database. Path is used by the sqlite drivers when
// DSN is empty.
type Config struct {
	Driver string
	DSN    string
	Path   string
}

// GormStore implements store.Store on gorm (sqlite or postgres).
type GormStore struct {
	db *gorm.DB
}

var _ store.Store = (*GormStore)(nil)

// NewGormStore opens the database and migrates the trades and cache_ranges tables.
func NewGormStore(cfg Config) (*GormStore, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrCacheUnavailable, err)
	}
	return newGormStore(db, isSQLite(cfg.Driver))
}

// NewGormStoreFromDB wraps an existing connection (tests, shared pools).
func NewGormStoreFromDB(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db 不能为空")
	}
	return newGormStore(db, db.Dialector.Name() == "sqlite")
}

func newGormStore(db *gorm.DB, sqliteTuning bool) (*GormStore, error) {
	models := []interface{}{
		&storemodel.TradeModel{},
		&storemodel.CacheRangeModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, fmt.Errorf("%w: migrate: %v", store.ErrCacheUnavailable, err)
	}
	if sqliteTuning {
		if sqlDB, err := db.DB(); err == nil {
			// SQLite + WAL: a little read parallelism, low lock contention.
			sqlDB.SetMaxOpenConns(2)
			sqlDB.SetMaxIdleConns(2)
		}
	}
	return &GormStore{db: db}, nil
}

func dialectorFor(cfg Config) (gorm.Dialector, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = DriverSQLite
	}
	dsn := strings.TrimSpace(cfg.DSN)
	switch driver {
	case DriverSQLite, DriverSQLite3:
		if dsn == "" {
			path := strings.TrimSpace(cfg.Path)
			if path == "" {
				return nil, fmt.Errorf("%w: cache path 不能为空", store.ErrCacheUnavailable)
			}
			if err := ensureDir(path); err != nil {
				return nil, err
			}
			dsn = sqliteDSN(driver, path)
		}
		return sqlite.New(sqlite.Config{DriverName: driver, DSN: dsn}), nil
	case DriverPostgres, "postgresql":
		if dsn == "" {
			return nil, fmt.Errorf("%w: postgres dsn 不能为空", store.ErrCacheUnavailable)
		}
		return postgres.Open(NormalizePostgresDSN(dsn)), nil
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", store.ErrCacheUnavailable, cfg.Driver)
	}
}

func sqliteDSN(driver, path string) string {
	if driver == DriverSQLite3 {
		return fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&cache=shared", path)
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
}

// NormalizePostgresDSN rewrites the legacy Heroku "postgres://" scheme.
func NormalizePostgresDSN(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") {
		return "postgresql://" + strings.TrimPrefix(dsn, "postgres://")
	}
	return dsn
}

func isSQLite(driver string) bool {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSQLite, DriverSQLite3:
		return true
	}
	return false
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Close closes the underlying database connection.
func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) Begin(ctx context.Context) (store.UnitOfWork, error) {
	if s == nil || s.db == nil {
		return nil, store.ErrCacheUnavailable
	}
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &gormUnitOfWork{tx: tx}, nil
}

func (s *GormStore) Trades() store.TradeRepository {
	return newTradeRepo(s.db)
}

func (s *GormStore) Ranges() store.RangeRepository {
	return newRangeRepo(s.db)
}

// Clear deletes all trades and cache ranges in one transaction.
func (s *GormStore) Clear(ctx context.Context) error {
	if s == nil || s.db == nil {
		return store.ErrCacheUnavailable
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&storemodel.TradeModel{}).Error; err != nil {
			return err
		}
		return tx.Where("1 = 1").Delete(&storemodel.CacheRangeModel{}).Error
	})
}

type gormUnitOfWork struct {
	tx *gorm.DB
}

func (u *gormUnitOfWork) Trades() store.TradeRepository {
	return newTradeRepo(u.tx)
}

func (u *gormUnitOfWork) Ranges() store.RangeRepository {
	return newRangeRepo(u.tx)
}

func (u *gormUnitOfWork) Commit() error {
	return u.tx.Commit().Error
}

func (u *gormUnitOfWork) Rollback() error {
	return u.tx.Rollback().Error
}
