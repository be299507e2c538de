package dto

import "time"

// TopicContextItem is one source excerpt handed to the generation provider.
type TopicContextItem struct {
	Title       string     `json:"title"`
	Excerpt     string     `json:"excerpt"`
	URL         string     `json:"url"`
	Domain      string     `json:"domain"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// TopicContext is the material an article is generated from.
type TopicContext struct {
	TopicKey string             `json:"topic_key"`
	Category string             `json:"category"`
	Symbol   string             `json:"symbol,omitempty"`
	Headline string             `json:"headline"`
	Score    float64            `json:"score"`
	Items    []TopicContextItem `json:"items"`
}

// FAQDraft is a generated question/answer pair.
type FAQDraft struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ArticleDraft is the JSON document the generation provider must return.
type ArticleDraft struct {
	Title           string     `json:"title"`
	Summary         string     `json:"summary"`
	Body            string     `json:"body"`
	FAQ             []FAQDraft `json:"faq"`
	Tags            []string   `json:"tags"`
	Entities        []string   `json:"entities"`
	Topics          []string   `json:"topics"`
	MetaTitle       string     `json:"meta_title"`
	MetaDescription string     `json:"meta_description"`
	Keywords        []string   `json:"keywords"`
}
