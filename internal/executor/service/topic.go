package service

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang-trend-publisher/internal/executor/cluster"
	"golang-trend-publisher/pkg/errs"
	"golang-trend-publisher/pkg/utils"
)

const maxSlugBaseChars = 80

// TopicKey derives the stable identity of a topic from its category, instrument symbol, the
// significant words of its headline and the UTC day it started. Two runs that see the same story
// on the same day agree on the key regardless of word order or casing.
func TopicKey(category, symbol, headline string, earliest time.Time) string {
	parts := []string{
		strings.ToLower(category),
		strings.ToUpper(symbol),
		strings.Join(significantTokens(headline), " "),
		utils.DayBucket(earliest).Format("2006-01-02"),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// ClusterTopicKey is TopicKey applied to a cluster's representative and earliest member.
func ClusterTopicKey(c cluster.TopicCluster) string {
	return TopicKey(c.Category, c.Symbol, c.Representative().Title, c.Earliest())
}

func significantTokens(s string) []string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) < 3 || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// Slugify lowercases title and joins its ASCII letters and digits with hyphens.
func Slugify(title string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
			dash = false
			continue
		}
		if !dash && sb.Len() > 0 {
			sb.WriteByte('-')
			dash = true
		}
	}
	slug := strings.Trim(sb.String(), "-")
	if len(slug) > maxSlugBaseChars {
		slug = strings.Trim(slug[:maxSlugBaseChars], "-")
	}
	if slug == "" {
		slug = "topic"
	}
	return slug
}

// ArticleSlug is the slugified title suffixed with the first 8 hex characters of the topic key.
func ArticleSlug(title, topicKey string) string {
	suffix := topicKey
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return Slugify(title) + "-" + suffix
}

// TopicGate holds the quality thresholds a topic must meet before generation.
type TopicGate struct {
	MinSources    int
	MinClaimChars int
}

// Check returns a ValidationError when the cluster lacks corroboration or substance.
func (g TopicGate) Check(topicKey string, c cluster.TopicCluster) error {
	if strings.TrimSpace(c.Representative().Title) == "" {
		return &errs.ValidationError{TopicKey: topicKey, Reason: "no headline"}
	}
	if sources := c.DistinctSources(); sources < g.MinSources {
		return &errs.ValidationError{TopicKey: topicKey, Reason: fmt.Sprintf("%d distinct sources, need %d", sources, g.MinSources)}
	}
	chars := 0
	for _, m := range c.Members {
		chars += utf8.RuneCountInString(m.Body)
	}
	if chars < g.MinClaimChars {
		return &errs.ValidationError{TopicKey: topicKey, Reason: fmt.Sprintf("%d characters of source text, need %d", chars, g.MinClaimChars)}
	}
	return nil
}
