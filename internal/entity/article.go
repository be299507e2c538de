package entity

import "time"

// FAQ is one question/answer pair rendered under an article.
type FAQ struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Citation points at a source item the article was generated from.
type Citation struct {
	URL         string    `json:"url"`
	Domain      string    `json:"domain"`
	Title       string    `json:"title"`
	RetrievedAt time.Time `json:"retrieved_at"`
}

// SEOMetadata holds the head tags for an article page.
type SEOMetadata struct {
	MetaTitle       string   `json:"meta_title"`
	MetaDescription string   `json:"meta_description"`
	Keywords        []string `json:"keywords"`
}

// Article is a generated, publishable piece of content. At most one exists per TopicKey.
type Article struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	Slug          string      `gorm:"type:varchar(255);uniqueIndex;not null" json:"slug"`
	TopicKey      string      `gorm:"type:varchar(64);uniqueIndex;not null" json:"topic_key"`
	Title         string      `gorm:"type:text;not null" json:"title"`
	Body          string      `gorm:"type:text;not null" json:"body"`
	Summary       string      `gorm:"type:text" json:"summary"`
	Category      string      `gorm:"type:varchar(50);index" json:"category"`
	Symbol        string      `gorm:"type:varchar(20)" json:"symbol,omitempty"`
	FAQ           []FAQ       `gorm:"serializer:json;type:jsonb" json:"faq"`
	Tags          []string    `gorm:"serializer:json;type:jsonb" json:"tags"`
	Entities      []string    `gorm:"serializer:json;type:jsonb" json:"entities"`
	Topics        []string    `gorm:"serializer:json;type:jsonb" json:"topics"`
	Citations     []Citation  `gorm:"serializer:json;type:jsonb" json:"citations"`
	SEO           SEOMetadata `gorm:"serializer:json;type:jsonb" json:"seo"`
	TrendingScore float64     `gorm:"not null;default:0" json:"trending_score"`
	Published     bool        `gorm:"not null;default:false" json:"published"`
	ViewCount     int64       `gorm:"not null;default:0" json:"view_count"`
	CreatedAt     time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for the Article model.
func (Article) TableName() string {
	return "articles"
}
