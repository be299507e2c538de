package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"golang-trend-publisher/internal/entity"
)

// ArticleRepository defines the interface for generated article data.
type ArticleRepository interface {
	FindByTopicKey(ctx context.Context, topicKey string) (*entity.Article, error)
	FindBySlug(ctx context.Context, slug string) (*entity.Article, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	// InsertIfAbsent inserts article unless its topic key or slug exists, reporting whether a row was written.
	InsertIfAbsent(ctx context.Context, article *entity.Article) (bool, error)
	IncrementViews(ctx context.Context, slug string) error
}

// NewArticleRepository creates a new instance of ArticleRepository.
func NewArticleRepository(db *gorm.DB) ArticleRepository {
	return &articleRepository{db: db}
}

type articleRepository struct {
	db *gorm.DB
}

// FindByTopicKey returns nil, nil when no article covers the topic.
func (r *articleRepository) FindByTopicKey(ctx context.Context, topicKey string) (*entity.Article, error) {
	var article entity.Article
	err := r.db.WithContext(ctx).Where("topic_key = ?", topicKey).First(&article).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &article, nil
}

// FindBySlug returns nil, nil when the slug is unknown.
func (r *articleRepository) FindBySlug(ctx context.Context, slug string) (*entity.Article, error) {
	var article entity.Article
	err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&article).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &article, nil
}

func (r *articleRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&entity.Article{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *articleRepository) InsertIfAbsent(ctx context.Context, article *entity.Article) (bool, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(article)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *articleRepository) IncrementViews(ctx context.Context, slug string) error {
	tx := r.db.WithContext(ctx).Model(&entity.Article{}).
		Where("slug = ?", slug).
		UpdateColumn("view_count", gorm.Expr("view_count + ?", 1))
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
