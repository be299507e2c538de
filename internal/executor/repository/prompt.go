package repository

import (
	"fmt"
	"strings"

	"golang-trend-publisher/internal/executor/dto"
)

func BuildArticlePrompt(topic dto.TopicContext) string {
	var sources strings.Builder
	for i, item := range topic.Items {
		publishedAtStr := "N/A"
		if item.PublishedAt != nil {
			publishedAtStr = item.PublishedAt.UTC().Format("2006-01-02 15:04")
		}
		sources.WriteString(fmt.Sprintf(
			"%d. Title: \"%s\"\n   Source: %s (%s)\n   Published At: %s\n   Excerpt: %s\n\n",
			i+1, item.Title, item.Domain, item.URL, publishedAtStr, item.Excerpt,
		))
	}

	focus := fmt.Sprintf("the trending %s topic \"%s\"", topic.Category, topic.Headline)
	if topic.Symbol != "" {
		focus = fmt.Sprintf("recent news about the instrument %s (%s)", topic.Symbol, topic.Category)
	}

	promptTemplate := `You are an editor writing an original, factual article about %s.

Use only the facts in the sources below. Do not invent numbers, quotes or events. Where sources
disagree, say so. Write in a neutral tone.

Sources:
%s
Respond with a single JSON object and nothing else:
{
  "title": "<headline, max 90 characters>",
  "summary": "<2-3 sentence summary>",
  "body": "<article body in markdown, at least 4 paragraphs>",
  "faq": [{"question": "<string>", "answer": "<string>"}],
  "tags": ["<string>"],
  "entities": ["<people, organisations, places, instruments mentioned>"],
  "topics": ["<broader topics>"],
  "meta_title": "<SEO title, max 60 characters>",
  "meta_description": "<SEO description, max 155 characters>",
  "keywords": ["<string>"]
}`

	return fmt.Sprintf(promptTemplate, focus, sources.String())
}
