package entity

import "time"

// ItemEmbedding is the vector of a ScrapedItem for one embedding model version.
type ItemEmbedding struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ItemID       uint      `gorm:"not null;uniqueIndex:idx_item_embeddings_item_model" json:"item_id"`
	ModelVersion string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_item_embeddings_item_model" json:"model_version"`
	Dimension    int       `gorm:"not null" json:"dimension"`
	Vector       []float32 `gorm:"serializer:json;type:jsonb;not null" json:"vector"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (ItemEmbedding) TableName() string {
	return "item_embeddings"
}
