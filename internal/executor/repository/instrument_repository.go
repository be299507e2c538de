package repository

import (
	"context"

	"gorm.io/gorm"

	"golang-trend-publisher/internal/entity"
)

type InstrumentsRepository interface {
	GetInstruments(ctx context.Context, categories []string) ([]entity.Instrument, error)
}

type instrumentsRepository struct {
	db *gorm.DB
}

func NewInstrumentsRepository(db *gorm.DB) InstrumentsRepository {
	return &instrumentsRepository{db: db}
}

func (s *instrumentsRepository) GetInstruments(ctx context.Context, categories []string) ([]entity.Instrument, error) {
	var instruments []entity.Instrument
	q := s.db.WithContext(ctx).Order("category ASC, code ASC")
	if len(categories) > 0 {
		q = q.Where("category IN ?", categories)
	}
	if err := q.Find(&instruments).Error; err != nil {
		return nil, err
	}
	return instruments, nil
}
