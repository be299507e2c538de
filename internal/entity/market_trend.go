package entity

import (
	"time"

	"gorm.io/datatypes"
)

// MarketTrend is the per-day trending record of one instrument.
type MarketTrend struct {
	ID           uint                      `gorm:"primaryKey" json:"id"`
	Category     string                    `gorm:"type:varchar(50);not null;uniqueIndex:idx_market_trends_key" json:"category"`
	Symbol       string                    `gorm:"type:varchar(20);not null;uniqueIndex:idx_market_trends_key" json:"symbol"`
	Bucket       time.Time                 `gorm:"not null;uniqueIndex:idx_market_trends_key" json:"bucket"`
	MentionCount int                       `gorm:"not null" json:"mention_count"`
	Score        float64                   `gorm:"not null" json:"score"`
	ItemIDs      datatypes.JSONSlice[uint] `gorm:"type:jsonb" json:"item_ids"`
	CreatedAt    time.Time                 `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time                 `gorm:"autoUpdateTime" json:"updated_at"`
}

func (MarketTrend) TableName() string {
	return "market_trends"
}
