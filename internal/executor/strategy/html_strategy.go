package strategy

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"golang-trend-publisher/internal/executor/dto"
	"golang-trend-publisher/internal/executor/source"
	"golang-trend-publisher/pkg/logger"
	"golang-trend-publisher/pkg/utils"
)

// HTMLFetchStrategy scrapes a listing page for article links and extracts each article.
type HTMLFetchStrategy struct {
	logger  *logger.Logger
	fetcher *PageFetcher
}

// NewHTMLFetchStrategy creates a new HTMLFetchStrategy.
func NewHTMLFetchStrategy(log *logger.Logger, fetcher *PageFetcher) SourceFetchStrategy {
	return &HTMLFetchStrategy{logger: log, fetcher: fetcher}
}

// GetType returns the source kind this strategy handles.
func (s *HTMLFetchStrategy) GetType() source.Kind {
	return source.KindHTML
}

// Fetch downloads the listing page and every linked article. Article failures are skipped;
// only a failed listing page fails the source.
func (s *HTMLFetchStrategy) Fetch(ctx context.Context, src source.Source, budget Budget) ([]dto.RawItem, error) {
	base, err := url.Parse(src.FetchTarget)
	if err != nil {
		return nil, fmt.Errorf("invalid listing url: %w", err)
	}

	body, err := s.fetcher.Get(ctx, src.FetchTarget)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing page: %w", err)
	}

	type link struct {
		url   string
		title string
	}
	var links []link
	seen := make(map[string]bool)
	doc.Find(src.LinkSelector).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		abs.Fragment = ""
		if seen[abs.String()] {
			return
		}
		seen[abs.String()] = true
		links = append(links, link{url: abs.String(), title: utils.CollapseWhitespace(sel.Text())})
	})

	items := make([]dto.RawItem, 0, len(links))
	for _, l := range links {
		if !utils.ShouldContinue(ctx, s.logger) {
			break
		}
		if src.MaxItems > 0 && len(items) >= src.MaxItems {
			break
		}
		if !budget.Take() {
			break
		}

		page, err := s.fetcher.Extract(ctx, l.url)
		if err != nil {
			s.logger.Warn("Failed to fetch article page",
				logger.StringField("source_id", src.ID),
				logger.StringField("url", l.url),
				logger.ErrorField(err),
			)
			continue
		}
		title := page.Title
		if title == "" {
			title = l.title
		}
		items = append(items, dto.RawItem{
			SourceID: src.ID,
			Category: src.Category,
			URL:      l.url,
			Title:    title,
			Body:     page.Text,
		})
	}

	s.logger.Debug("Listing fetched",
		logger.StringField("source_id", src.ID),
		logger.IntField("links", len(links)),
		logger.IntField("kept", len(items)),
	)
	return items, nil
}
