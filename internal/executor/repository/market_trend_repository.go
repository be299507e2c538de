package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"golang-trend-publisher/internal/entity"
)

// MarketTrendRepository stores per-instrument daily trend records.
type MarketTrendRepository interface {
	// Upsert writes trend, replacing counts of an existing (category, symbol, bucket) row.
	Upsert(ctx context.Context, trend *entity.MarketTrend) error
}

// NewMarketTrendRepository creates a new instance of MarketTrendRepository.
func NewMarketTrendRepository(db *gorm.DB) MarketTrendRepository {
	return &marketTrendRepository{db: db}
}

type marketTrendRepository struct {
	db *gorm.DB
}

func (r *marketTrendRepository) Upsert(ctx context.Context, trend *entity.MarketTrend) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "category"}, {Name: "symbol"}, {Name: "bucket"}},
		DoUpdates: clause.AssignmentColumns([]string{"mention_count", "score", "item_ids", "updated_at"}),
	}).Create(trend).Error
}
