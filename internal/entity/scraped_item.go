package entity

import (
	"net/url"
	"time"
)

// ScrapedItem is one normalized piece of source content.
type ScrapedItem struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	SourceID     string     `gorm:"type:varchar(100);not null;index" json:"source_id"`
	Category     string     `gorm:"type:varchar(50);not null;index" json:"category"`
	CanonicalURL string     `gorm:"type:text;not null" json:"canonical_url"`
	Title        string     `gorm:"type:text;not null" json:"title"`
	Body         string     `gorm:"type:text" json:"body"`
	ContentHash  string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"content_hash"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	ScrapedAt    time.Time  `gorm:"not null;index" json:"scraped_at"`
	TopicKey     *string    `gorm:"type:varchar(64);index" json:"topic_key,omitempty"`
	ViewCount    int64      `gorm:"not null;default:0" json:"view_count"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for the ScrapedItem model.
func (ScrapedItem) TableName() string {
	return "scraped_items"
}

// Domain returns the host of the canonical URL.
func (i ScrapedItem) Domain() string {
	u, err := url.Parse(i.CanonicalURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// ObservedAt is the time used for recency: publish time when known and not in the future, else scrape time.
func (i ScrapedItem) ObservedAt() time.Time {
	if i.PublishedAt != nil && !i.PublishedAt.IsZero() && !i.PublishedAt.After(i.ScrapedAt) {
		return *i.PublishedAt
	}
	return i.ScrapedAt
}
