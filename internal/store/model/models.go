package model

import (
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// TradeModel maps to the 'trades' table: one row per reconciled round trip.
// Decimals are stored as text so no precision is lost on sqlite.
type TradeModel struct {
	ID           int64           `gorm:"column:id;primaryKey;autoIncrement"`
	Source       string          `gorm:"column:source;size:32;uniqueIndex:idx_trade_key,priority:1"`
	Symbol       string          `gorm:"column:symbol;size:40;uniqueIndex:idx_trade_key,priority:2;index:idx_trade_symbol_exit,priority:1"`
	ExitTS       int64           `gorm:"column:exit_ts;uniqueIndex:idx_trade_key,priority:3;index:idx_trade_symbol_exit,priority:2"`
	Leg          int             `gorm:"column:leg;uniqueIndex:idx_trade_key,priority:4"`
	Side         string          `gorm:"column:side;size:10"`
	PositionSide string          `gorm:"column:position_type;size:10"`
	EntryPrice   decimal.Decimal `gorm:"column:avg_entry_price;type:varchar(40)"`
	ExitPrice    decimal.Decimal `gorm:"column:avg_exit_price;type:varchar(40)"`
	Qty          decimal.Decimal `gorm:"column:qty;type:varchar(40)"`
	ClosedPnl    decimal.Decimal `gorm:"column:closed_pnl;type:varchar(40)"`
	Fee          decimal.Decimal `gorm:"column:fee;type:varchar(40)"`
	ROI          float64         `gorm:"column:roi"`
	EntryTS      int64           `gorm:"column:entry_ts"`
	DurationMs   int64           `gorm:"column:duration_ms"`
	RawData      datatypes.JSON  `gorm:"column:raw_data"`
	FetchedAt    int64           `gorm:"column:fetched_at;index"` // unix ms
}

func (TradeModel) TableName() string { return "trades" }

// CacheRangeModel maps to 'cache_ranges': one row per (source, scope).
type CacheRangeModel struct {
	ID          int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Source      string `gorm:"column:source;size:32;uniqueIndex:idx_range_scope,priority:1"`
	Scope       string `gorm:"column:scope;size:40;uniqueIndex:idx_range_scope,priority:2"`
	OldestTS    int64  `gorm:"column:oldest_timestamp"`
	NewestTS    int64  `gorm:"column:newest_timestamp"`
	LastUpdated int64  `gorm:"column:last_updated"` // unix ms
}

func (CacheRangeModel) TableName() string { return "cache_ranges" }
