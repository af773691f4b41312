package gormstore

import (
	"context"
	"errors"
	"time"

	storemodel "tradedesk/internal/store/model"
	"tradedesk/internal/types"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type rangeRepository struct {
	db *gorm.DB
}

func newRangeRepo(db *gorm.DB) *rangeRepository {
	return &rangeRepository{db: db}
}

func (r *rangeRepository) Get(ctx context.Context, source, scope string) (*types.CachedRange, error) {
	if r.db == nil {
		return nil, errors.New("gorm store 未初始化")
	}
	var m storemodel.CacheRangeModel
	err := r.db.WithContext(ctx).
		Where("source = ? AND scope = ?", source, scope).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rng := rangeModelToType(m)
	return &rng, nil
}

// Extend never narrows an existing range: the stored bounds become
// min(old, oldest) and max(new, newest).
func (r *rangeRepository) Extend(ctx context.Context, source, scope string, oldest, newest int64, at time.Time) (types.CachedRange, error) {
	if r.db == nil {
		return types.CachedRange{}, errors.New("gorm store 未初始化")
	}
	if oldest > newest {
		oldest, newest = newest, oldest
	}
	m := storemodel.CacheRangeModel{
		Source:      source,
		Scope:       scope,
		OldestTS:    oldest,
		NewestTS:    newest,
		LastUpdated: at.UnixMilli(),
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source"}, {Name: "scope"}},
			DoNothing: true,
		}).
		Create(&m)
	if res.Error != nil {
		return types.CachedRange{}, res.Error
	}
	if res.RowsAffected > 0 {
		return rangeModelToType(m), nil
	}

	var existing storemodel.CacheRangeModel
	if err := r.db.WithContext(ctx).
		Where("source = ? AND scope = ?", source, scope).
		First(&existing).Error; err != nil {
		return types.CachedRange{}, err
	}
	if oldest < existing.OldestTS {
		existing.OldestTS = oldest
	}
	if newest > existing.NewestTS {
		existing.NewestTS = newest
	}
	existing.LastUpdated = at.UnixMilli()
	err := r.db.WithContext(ctx).Model(&storemodel.CacheRangeModel{}).
		Where("id = ?", existing.ID).
		Updates(map[string]interface{}{
			"oldest_timestamp": existing.OldestTS,
			"newest_timestamp": existing.NewestTS,
			"last_updated":     existing.LastUpdated,
		}).Error
	if err != nil {
		return types.CachedRange{}, err
	}
	return rangeModelToType(existing), nil
}

func (r *rangeRepository) List(ctx context.Context, source string) ([]types.CachedRange, error) {
	if r.db == nil {
		return nil, errors.New("gorm store 未初始化")
	}
	q := r.db.WithContext(ctx).Order("source ASC, scope ASC")
	if source != "" {
		q = q.Where("source = ?", source)
	}
	var models []storemodel.CacheRangeModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]types.CachedRange, 0, len(models))
	for _, m := range models {
		out = append(out, rangeModelToType(m))
	}
	return out, nil
}

func rangeModelToType(m storemodel.CacheRangeModel) types.CachedRange {
	return types.CachedRange{
		Source:      m.Source,
		Scope:       m.Scope,
		Oldest:      m.OldestTS,
		Newest:      m.NewestTS,
		LastUpdated: time.UnixMilli(m.LastUpdated).UTC(),
	}
}
