package service

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"golang-trend-publisher/internal/entity"
	"golang-trend-publisher/internal/executor/dto"
	"golang-trend-publisher/pkg/utils"
)

var errEmptyContent = errors.New("item has neither title nor body")

// trackingParams are query parameters dropped during URL canonicalization.
var trackingParams = map[string]bool{
	"fbclid": true,
	"gclid":  true,
	"mc_cid": true,
	"mc_eid": true,
	"ref":    true,
}

// NormalizeOptions bounds the stored body and the part of it that feeds the content hash.
type NormalizeOptions struct {
	MaxBodyChars    int
	HashPrefixChars int
}

// NormalizeItem turns a raw entry into a storable item. It fails on an unusable URL or empty content.
func NormalizeItem(raw dto.RawItem, opts NormalizeOptions, scrapedAt time.Time) (entity.ScrapedItem, error) {
	canonical, err := CanonicalizeURL(raw.URL)
	if err != nil {
		return entity.ScrapedItem{}, err
	}

	title := utils.CollapseWhitespace(StripMarkup(utils.CleanToValidUTF8(raw.Title)))
	body := utils.CollapseWhitespace(StripMarkup(utils.CleanToValidUTF8(raw.Body)))
	title = utils.SafeText(title)
	body = utils.SafeText(body)
	if opts.MaxBodyChars > 0 {
		body = utils.TruncateRunes(body, opts.MaxBodyChars)
	}
	if title == "" && body == "" {
		return entity.ScrapedItem{}, errEmptyContent
	}

	var publishedAt *time.Time
	if raw.PublishedAt != nil && !raw.PublishedAt.IsZero() {
		p := raw.PublishedAt.UTC()
		publishedAt = &p
	}

	return entity.ScrapedItem{
		SourceID:     raw.SourceID,
		Category:     raw.Category,
		CanonicalURL: canonical,
		Title:        title,
		Body:         body,
		ContentHash:  ContentHash(raw.SourceID, canonical, body, opts.HashPrefixChars),
		PublishedAt:  publishedAt,
		ScrapedAt:    scrapedAt.UTC(),
	}, nil
}

// ContentHash identifies an item by source, canonical URL and the first prefixChars runes of its
// normalized body. Re-fetching the same entry yields the same hash.
func ContentHash(sourceID, canonicalURL, body string, prefixChars int) string {
	if prefixChars > 0 {
		body = utils.TruncateRunes(body, prefixChars)
	}
	sum := sha256.Sum256([]byte(sourceID + "|" + canonicalURL + "|" + body))
	return hex.EncodeToString(sum[:])
}

// CanonicalizeURL lowercases scheme and host, drops default ports, fragments, tracking
// parameters and trailing slashes, and sorts the remaining query.
func CanonicalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("url %q has no host", raw)
	}
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host = host + ":" + port
	}
	u.Host = host
	u.User = nil
	u.Fragment = ""
	u.RawFragment = ""

	q := u.Query()
	for key := range q {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") || trackingParams[lower] {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()

	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String(), nil
}

// StripMarkup returns the text content of an HTML fragment. Plain text passes through.
func StripMarkup(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	doc.Find("script,style,noscript").Remove()
	// Keep words of adjacent block elements apart.
	doc.Find("*").Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml(" ")
	})
	return doc.Text()
}
