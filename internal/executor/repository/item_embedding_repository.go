package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"golang-trend-publisher/internal/entity"
)

// ItemEmbeddingRepository stores item vectors per model version.
type ItemEmbeddingRepository interface {
	FindByItemIDs(ctx context.Context, itemIDs []uint, modelVersion string) (map[uint][]float32, error)
	SaveAll(ctx context.Context, embeddings []entity.ItemEmbedding) error
}

// NewItemEmbeddingRepository creates a new instance of ItemEmbeddingRepository.
func NewItemEmbeddingRepository(db *gorm.DB) ItemEmbeddingRepository {
	return &itemEmbeddingRepository{db: db}
}

type itemEmbeddingRepository struct {
	db *gorm.DB
}

func (r *itemEmbeddingRepository) FindByItemIDs(ctx context.Context, itemIDs []uint, modelVersion string) (map[uint][]float32, error) {
	out := make(map[uint][]float32, len(itemIDs))
	if len(itemIDs) == 0 {
		return out, nil
	}
	var rows []entity.ItemEmbedding
	err := r.db.WithContext(ctx).
		Where("item_id IN ? AND model_version = ?", itemIDs, modelVersion).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ItemID] = row.Vector
	}
	return out, nil
}

func (r *itemEmbeddingRepository) SaveAll(ctx context.Context, embeddings []entity.ItemEmbedding) error {
	if len(embeddings) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "item_id"}, {Name: "model_version"}},
		DoUpdates: clause.AssignmentColumns([]string{"dimension", "vector"}),
	}).Create(&embeddings).Error
}
