package telegram

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"golang-trend-publisher/internal/executor/dto"
)

func TestFormatRunReportMessage(t *testing.T) {
	started := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	report := dto.NewRunReport("run-42", started)
	report.State = dto.StateDone
	report.Success = true
	report.FinishedAt = started.Add(95 * time.Second)
	report.Steps[dto.StepScrape].Status = dto.StepStatusSuccess
	report.Steps[dto.StepScrape].Counts = map[string]int{"seen": 40, "new": 35}
	report.Steps[dto.StepScrape].Errors = []string{"e1", "e2", "e3", "e4", "e5"}

	msg := FormatRunReportMessage(report)
	assert.Contains(t, msg, "✅ *Workflow run* done")
	assert.Contains(t, msg, "run-42")
	assert.Contains(t, msg, "1m35s")
	assert.Contains(t, msg, "`scrape`: success (new=35, seen=40)")
	assert.Contains(t, msg, "`generate`: not\\_executed")
	assert.Contains(t, msg, "… 2 more")
	assert.NotContains(t, msg, "e4")
}

func TestFormatRunReportMessage_Failed(t *testing.T) {
	started := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	report := dto.NewRunReport("run-43", started)
	report.State = dto.StateFailed
	report.Error = "configuration embedding.api_key: credential is not set"
	report.FinishedAt = started

	msg := FormatRunReportMessage(report)
	assert.Contains(t, msg, "📛")
	assert.Contains(t, msg, `embedding.api\_key`)
}

var (
	codeSpan         = regexp.MustCompile("`[^`]*`")
	unescapedMarkers = regexp.MustCompile(`(^|[^\\])[_*\[]`)
)

// assertMarkdownSafe fails when a Markdown marker outside a code span is left unescaped.
func assertMarkdownSafe(t *testing.T, msg string, allowed ...string) {
	t.Helper()
	plain := codeSpan.ReplaceAllString(msg, "")
	for _, a := range allowed {
		plain = regexp.MustCompile(regexp.QuoteMeta(a)).ReplaceAllString(plain, "")
	}
	assert.False(t, unescapedMarkers.MatchString(plain), "unescaped marker in %q", plain)
}

func TestFormatRunReportMessage_EscapesMarkdown(t *testing.T) {
	started := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	report := dto.NewRunReport("run_44", started)
	report.State = dto.StateFailed
	report.Error = "storage begin_run: *locked* [db]"
	report.FinishedAt = started
	report.Steps[dto.StepScrape].Status = dto.StepStatusSuccess
	report.Steps[dto.StepScrape].Counts = map[string]int{"sources_failed": 1}
	report.Steps[dto.StepScrape].Errors = []string{"source feed_1: GET https://x.example.com/a_b failed"}
	report.Steps[dto.StepTrends].Counts = map[string]int{"embedding_failures": 2, "dimension_mismatch": 1}

	msg := FormatRunReportMessage(report)
	assertMarkdownSafe(t, msg, "*Workflow run*")
	assert.Contains(t, msg, "`market_trends`: not\\_executed")
	assert.Contains(t, msg, `sources\_failed=1`)
	assert.Contains(t, msg, `a\_b failed`)
	assert.Contains(t, msg, "`run_44`")
}

func TestFormatErrorAlertMessage_EscapesMarkdown(t *testing.T) {
	msg := FormatErrorAlertMessage(time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC), "Workflow retry exceeded", "max_retry reached", "run run_1")
	assertMarkdownSafe(t, msg)
	assert.Contains(t, msg, `max\_retry reached`)
	assert.Contains(t, msg, `\[ERROR ALERT]`)
}

func TestTruncateMessage(t *testing.T) {
	short := "hello"
	assert.Equal(t, short, truncateMessage(short))

	long := strings.Repeat("a", maxMessageRunes-2) + `\_tail`
	got := truncateMessage(long)
	assert.LessOrEqual(t, len([]rune(got)), maxMessageRunes)
	assert.True(t, strings.HasSuffix(got, "a…"), "a dangling escape is dropped")
}
