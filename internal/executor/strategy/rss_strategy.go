package strategy

import (
	"context"
	"fmt"
	"sort"

	"github.com/mmcdole/gofeed"

	"golang-trend-publisher/internal/executor/dto"
	"golang-trend-publisher/internal/executor/source"
	"golang-trend-publisher/pkg/logger"
	"golang-trend-publisher/pkg/utils"
)

// RSSFetchStrategy reads RSS/Atom feeds.
type RSSFetchStrategy struct {
	logger  *logger.Logger
	fetcher *PageFetcher
}

// NewRSSFetchStrategy creates a new RSSFetchStrategy.
func NewRSSFetchStrategy(log *logger.Logger, fetcher *PageFetcher) SourceFetchStrategy {
	return &RSSFetchStrategy{logger: log, fetcher: fetcher}
}

// GetType returns the source kind this strategy handles.
func (s *RSSFetchStrategy) GetType() source.Kind {
	return source.KindRSS
}

// Fetch parses the feed and returns its newest entries. When the source asks for full text, each
// entry's page is downloaded; a failed page falls back to the feed description.
func (s *RSSFetchStrategy) Fetch(ctx context.Context, src source.Source, budget Budget) ([]dto.RawItem, error) {
	if err := s.fetcher.WaitHost(ctx, src.FetchTarget); err != nil {
		return nil, err
	}

	fp := gofeed.NewParser()
	fp.Client = s.fetcher.Client()
	fp.UserAgent = s.fetcher.userAgent
	feed, err := fp.ParseURLWithContext(src.FetchTarget, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	sortNewestFirst(feed.Items)

	items := make([]dto.RawItem, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if !utils.ShouldContinue(ctx, s.logger) {
			break
		}
		if src.MaxItems > 0 && len(items) >= src.MaxItems {
			break
		}
		if entry.Link == "" {
			continue
		}
		if !budget.Take() {
			break
		}

		body := entry.Content
		if body == "" {
			body = entry.Description
		}
		if src.FullText {
			page, err := s.fetcher.Extract(ctx, entry.Link)
			if err != nil {
				s.logger.Warn("Failed to fetch entry page, using feed description",
					logger.StringField("source_id", src.ID),
					logger.StringField("url", entry.Link),
					logger.ErrorField(err),
				)
			} else if page.Text != "" {
				body = page.Text
			}
		}

		items = append(items, dto.RawItem{
			SourceID:    src.ID,
			Category:    src.Category,
			URL:         entry.Link,
			Title:       entry.Title,
			Body:        body,
			PublishedAt: entry.PublishedParsed,
		})
	}

	s.logger.Debug("Feed fetched",
		logger.StringField("source_id", src.ID),
		logger.IntField("entries", len(feed.Items)),
		logger.IntField("kept", len(items)),
	)
	return items, nil
}

// sortNewestFirst orders entries by published date descending. Undated entries go last and keep
// their feed order.
func sortNewestFirst(entries []*gofeed.Item) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].PublishedParsed, entries[j].PublishedParsed
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}
