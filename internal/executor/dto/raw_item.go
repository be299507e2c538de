package dto

import "time"

// RawItem is a fetched entry before normalization.
type RawItem struct {
	SourceID    string
	Category    string
	URL         string
	Title       string
	Body        string
	PublishedAt *time.Time
}
