package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"golang-trend-publisher/internal/entity"
)

// ItemFilter selects recent items for trend detection.
type ItemFilter struct {
	Since             time.Time
	Categories        []string
	ExcludeCategories []string
	OnlyUnassigned    bool
	Limit             int
}

// ScrapedItemRepository defines the interface for interacting with scraped item data.
type ScrapedItemRepository interface {
	FindExistingHashes(ctx context.Context, hashes []string) (map[string]bool, error)
	FindByHash(ctx context.Context, hash string) (*entity.ScrapedItem, error)
	// InsertIfAbsent inserts item unless its content hash exists, reporting whether a row was written.
	InsertIfAbsent(ctx context.Context, item *entity.ScrapedItem) (bool, error)
	ListRecentItems(ctx context.Context, filter ItemFilter) ([]entity.ScrapedItem, error)
	CountRecentItems(ctx context.Context, filter ItemFilter) (int64, error)
	AssignTopic(ctx context.Context, itemIDs []uint, topicKey string) error
	IncrementViews(ctx context.Context, id uint) error
}

// NewScrapedItemRepository creates a new instance of ScrapedItemRepository.
func NewScrapedItemRepository(db *gorm.DB) ScrapedItemRepository {
	return &scrapedItemRepository{db: db}
}

type scrapedItemRepository struct {
	db *gorm.DB
}

func (r *scrapedItemRepository) FindExistingHashes(ctx context.Context, hashes []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(hashes))
	if len(hashes) == 0 {
		return existing, nil
	}

	var found []string
	err := r.db.WithContext(ctx).Model(&entity.ScrapedItem{}).
		Where("content_hash IN ?", hashes).
		Pluck("content_hash", &found).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch existing hashes: %w", err)
	}
	for _, h := range found {
		existing[h] = true
	}
	return existing, nil
}

func (r *scrapedItemRepository) FindByHash(ctx context.Context, hash string) (*entity.ScrapedItem, error) {
	var item entity.ScrapedItem
	err := r.db.WithContext(ctx).Where("content_hash = ?", hash).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *scrapedItemRepository) InsertIfAbsent(ctx context.Context, item *entity.ScrapedItem) (bool, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "content_hash"}},
		DoNothing: true,
	}).Create(item)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// ListRecentItems returns the newest filter.Limit items scraped since filter.Since, ordered by
// (scraped_at, id), which is the order clustering relies on for determinism.
func (r *scrapedItemRepository) ListRecentItems(ctx context.Context, filter ItemFilter) ([]entity.ScrapedItem, error) {
	q := recentItemsQuery(sq.Select("*"), filter)
	if filter.Limit > 0 {
		newest := q.OrderBy("scraped_at DESC", "id DESC").Limit(uint64(filter.Limit))
		q = sq.Select("*").FromSelect(newest, "recent")
	}
	q = q.OrderBy("scraped_at ASC", "id ASC")

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build recent items query: %w", err)
	}

	var items []entity.ScrapedItem
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// CountRecentItems counts the items matching filter, ignoring filter.Limit.
func (r *scrapedItemRepository) CountRecentItems(ctx context.Context, filter ItemFilter) (int64, error) {
	query, args, err := recentItemsQuery(sq.Select("COUNT(*)"), filter).ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build recent items count: %w", err)
	}

	var count int64
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func recentItemsQuery(q sq.SelectBuilder, filter ItemFilter) sq.SelectBuilder {
	q = q.From(entity.ScrapedItem{}.TableName()).
		Where(sq.GtOrEq{"scraped_at": filter.Since})

	if len(filter.Categories) > 0 {
		q = q.Where(sq.Eq{"category": filter.Categories})
	}
	if len(filter.ExcludeCategories) > 0 {
		q = q.Where(sq.NotEq{"category": filter.ExcludeCategories})
	}
	if filter.OnlyUnassigned {
		q = q.Where(sq.Eq{"topic_key": nil})
	}
	return q
}

func (r *scrapedItemRepository) AssignTopic(ctx context.Context, itemIDs []uint, topicKey string) error {
	if len(itemIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&entity.ScrapedItem{}).
		Where("id IN ?", itemIDs).
		Update("topic_key", topicKey).Error
}

func (r *scrapedItemRepository) IncrementViews(ctx context.Context, id uint) error {
	tx := r.db.WithContext(ctx).Model(&entity.ScrapedItem{}).
		Where("id = ?", id).
		UpdateColumn("view_count", gorm.Expr("view_count + ?", 1))
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
