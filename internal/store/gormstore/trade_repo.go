package gormstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	storemodel "tradedesk/internal/store/model"
	"tradedesk/internal/types"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type tradeRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func newTradeRepo(db *gorm.DB) *tradeRepository {
	return &tradeRepository{db: db, now: time.Now}
}

func (r *tradeRepository) Upsert(ctx context.Context, rec types.TradeRecord) (bool, error) {
	if r.db == nil {
		return false, errors.New("gorm store 未初始化")
	}
	m := newTradeModel(rec, r.now())
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source"}, {Name: "symbol"}, {Name: "exit_ts"}, {Name: "leg"}},
			DoNothing: true,
		}).
		Create(&m)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpsertBatch is expected to run on a UnitOfWork so the batch commits as one.
func (r *tradeRepository) UpsertBatch(ctx context.Context, recs []types.TradeRecord) ([]types.TradeRecord, error) {
	inserted := make([]types.TradeRecord, 0, len(recs))
	for _, rec := range recs {
		ok, err := r.Upsert(ctx, rec)
		if err != nil {
			return nil, err
		}
		if ok {
			inserted = append(inserted, rec)
		}
	}
	return inserted, nil
}

func (r *tradeRepository) Query(ctx context.Context, f types.TradeFilter) ([]types.TradeRecord, error) {
	if r.db == nil {
		return nil, errors.New("gorm store 未初始化")
	}
	var models []storemodel.TradeModel
	if err := r.filtered(ctx, f).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]types.TradeRecord, 0, len(models))
	for _, m := range models {
		out = append(out, tradeModelToRecord(m))
	}
	return out, nil
}

func (r *tradeRepository) MostRecentPopulationTime(ctx context.Context, f types.TradeFilter) (*time.Time, error) {
	if r.db == nil {
		return nil, errors.New("gorm store 未初始化")
	}
	var latest sql.NullInt64
	if err := r.filtered(ctx, f).Select("MAX(fetched_at)").Row().Scan(&latest); err != nil {
		return nil, err
	}
	if !latest.Valid || latest.Int64 <= 0 {
		return nil, nil
	}
	ts := time.UnixMilli(latest.Int64).UTC()
	return &ts, nil
}

func (r *tradeRepository) Count(ctx context.Context, f types.TradeFilter) (int64, error) {
	var n int64
	err := r.filtered(ctx, f).Count(&n).Error
	return n, err
}

// filtered applies the conjunctive filter; exit_ts is an INTEGER column so
// comparisons are numeric.
func (r *tradeRepository) filtered(ctx context.Context, f types.TradeFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&storemodel.TradeModel{})
	if f.Source != "" {
		q = q.Where("source = ?", f.Source)
	}
	if f.Symbol != "" {
		q = q.Where("symbol = ?", f.Symbol)
	}
	if f.Start > 0 {
		q = q.Where("exit_ts >= ?", f.Start)
	}
	if f.End > 0 {
		q = q.Where("exit_ts <= ?", f.End)
	}
	return q
}

func newTradeModel(rec types.TradeRecord, now time.Time) storemodel.TradeModel {
	fetched := now
	if !rec.FetchedAt.IsZero() {
		fetched = rec.FetchedAt
	}
	var raw datatypes.JSON
	if len(rec.Raw) > 0 {
		raw = datatypes.JSON(rec.Raw)
	}
	return storemodel.TradeModel{
		Source:       rec.Source,
		Symbol:       rec.Symbol,
		ExitTS:       rec.ExitTime,
		Leg:          rec.Leg,
		Side:         rec.Side,
		PositionSide: rec.PositionSide,
		EntryPrice:   rec.EntryPrice,
		ExitPrice:    rec.ExitPrice,
		Qty:          rec.Qty,
		ClosedPnl:    rec.RealizedPnl,
		Fee:          rec.Fee,
		ROI:          rec.ROI().InexactFloat64(),
		EntryTS:      rec.EntryTime,
		DurationMs:   rec.DurationMs,
		RawData:      raw,
		FetchedAt:    fetched.UnixMilli(),
	}
}

func tradeModelToRecord(m storemodel.TradeModel) types.TradeRecord {
	rec := types.TradeRecord{
		Source:       m.Source,
		Symbol:       m.Symbol,
		Side:         m.Side,
		PositionSide: m.PositionSide,
		EntryPrice:   m.EntryPrice,
		ExitPrice:    m.ExitPrice,
		Qty:          m.Qty,
		RealizedPnl:  m.ClosedPnl,
		Fee:          m.Fee,
		EntryTime:    m.EntryTS,
		ExitTime:     m.ExitTS,
		DurationMs:   m.DurationMs,
		Leg:          m.Leg,
	}
	if len(m.RawData) > 0 {
		rec.Raw = append([]byte(nil), m.RawData...)
	}
	if m.FetchedAt > 0 {
		rec.FetchedAt = time.UnixMilli(m.FetchedAt).UTC()
	}
	return rec
}
