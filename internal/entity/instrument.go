package entity

import (
	"time"

	"gorm.io/gorm"
)

// Market categories analysed by the instrument branch instead of embedding clustering.
const (
	CategoryStocks = "stocks"
	CategoryMetals = "metals"
	CategorySharia = "sharia"
)

// MarketCategories lists the categories handled by the market trend branch.
var MarketCategories = []string{CategoryStocks, CategoryMetals, CategorySharia}

// IsMarketCategory reports whether items of category belong to the market branch.
func IsMarketCategory(category string) bool {
	for _, c := range MarketCategories {
		if c == category {
			return true
		}
	}
	return false
}

// Instrument is a tradable symbol (stock, metal, sharia-compliant stock) the market branch looks for.
type Instrument struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Code      string         `gorm:"type:varchar(20);not null" json:"code"`
	Name      string         `gorm:"not null" json:"name"`
	Category  string         `gorm:"type:varchar(50);not null;index" json:"category"`
	Aliases   []string       `gorm:"serializer:json;type:jsonb" json:"aliases"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Instrument) TableName() string {
	return "instruments"
}
