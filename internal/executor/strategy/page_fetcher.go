package strategy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mauidude/go-readability"

	"golang-trend-publisher/pkg/logger"
	"golang-trend-publisher/pkg/ratelimit"
	"golang-trend-publisher/pkg/utils"
)

// Page is the readable content of one article page.
type Page struct {
	Title string
	Text  string
}

// PageFetcher downloads pages politely (per-host rate limit) and extracts their readable text.
type PageFetcher struct {
	client    *http.Client
	limiter   *ratelimit.KeyedLimiter
	logger    *logger.Logger
	userAgent string
	maxBytes  int64
}

// NewPageFetcher creates a new PageFetcher.
func NewPageFetcher(client *http.Client, limiter *ratelimit.KeyedLimiter, log *logger.Logger, userAgent string, maxBytes int64) *PageFetcher {
	if client == nil {
		client = &http.Client{}
	}
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}
	return &PageFetcher{
		client:    client,
		limiter:   limiter,
		logger:    log,
		userAgent: userAgent,
		maxBytes:  maxBytes,
	}
}

// Client returns the underlying http client.
func (f *PageFetcher) Client() *http.Client {
	return f.client
}

// WaitHost blocks until the host of rawURL may be contacted again.
func (f *PageFetcher) WaitHost(ctx context.Context, rawURL string) error {
	if f.limiter == nil {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	return f.limiter.Wait(ctx, strings.ToLower(u.Hostname()))
}

// Get downloads rawURL and returns its body.
func (f *PageFetcher) Get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := f.WaitHost(ctx, rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s, status code: %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// Extract downloads an article page and returns its title and readable text.
func (f *PageFetcher) Extract(ctx context.Context, rawURL string) (*Page, error) {
	body, err := f.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	page := &Page{}
	if original, err := goquery.NewDocumentFromReader(bytes.NewReader(body)); err == nil {
		page.Title = pageTitle(original)
	}

	doc, err := readability.NewDocument(string(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page content: %w", err)
	}
	content, err := goquery.NewDocumentFromReader(strings.NewReader(doc.Content()))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page content: %w", err)
	}
	page.Text = utils.SafeText(utils.CollapseWhitespace(content.Text()))
	return page, nil
}

func pageTitle(doc *goquery.Document) string {
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(og) != "" {
		return strings.TrimSpace(og)
	}
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
