package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"golang-trend-publisher/internal/entity"
	"golang-trend-publisher/internal/executor/config"
	"golang-trend-publisher/internal/executor/dto"
	"golang-trend-publisher/internal/executor/source"
	"golang-trend-publisher/internal/executor/strategy"
	"golang-trend-publisher/pkg/errs"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&entity.ScrapedItem{},
		&entity.ItemEmbedding{},
		&entity.Article{},
		&entity.MarketTrend{},
		&entity.Instrument{},
		&entity.WorkflowRun{},
	))
	return db
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Embedding.APIKey = "test-key"
	cfg.Generator.APIKey = "test-key"
	cfg.Executor.RunTimeout = 30 * time.Second
	cfg.ApplyDefaults()
	cfg.Scraper.FetchTimeout = 0
	cfg.Embedding.Timeout = 0
	cfg.Generator.Timeout = 0
	return cfg
}

// fakeStrategy serves canned entries per source id.
type fakeStrategy struct {
	mu      sync.Mutex
	items   map[string][]dto.RawItem
	fail    map[string]error
	fetched map[string]int
}

func newFakeStrategy() *fakeStrategy {
	return &fakeStrategy{
		items:   make(map[string][]dto.RawItem),
		fail:    make(map[string]error),
		fetched: make(map[string]int),
	}
}

func (f *fakeStrategy) GetType() source.Kind { return source.KindRSS }

func (f *fakeStrategy) Fetch(_ context.Context, src source.Source, budget strategy.Budget) ([]dto.RawItem, error) {
	f.mu.Lock()
	f.fetched[src.ID]++
	err := f.fail[src.ID]
	items := f.items[src.ID]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([]dto.RawItem, 0, len(items))
	for _, it := range items {
		if !budget.Take() {
			break
		}
		out = append(out, it)
	}
	return out, nil
}

func testSources(n int) []source.Source {
	sources := make([]source.Source, n)
	for i := range sources {
		sources[i] = source.Source{
			ID:          fmt.Sprintf("src-%d", i),
			Name:        fmt.Sprintf("Source %d", i),
			Kind:        source.KindRSS,
			FetchTarget: fmt.Sprintf("https://news%d.example.com/feed", i),
			Category:    "tech",
		}
	}
	return sources
}

var topicToken = regexp.MustCompile(`topic(\d+)`)

// fakeEmbedder maps texts mentioning "topicN" to a vector near axis N. Texts without a topic
// token land on the last axis.
type fakeEmbedder struct {
	dim         int
	validateErr error
	embedErr    error
	calls       atomic.Int32
	texts       atomic.Int32
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{dim: 16}
}

func (f *fakeEmbedder) Name() string         { return "fake" }
func (f *fakeEmbedder) ModelVersion() string { return "fake/v1" }
func (f *fakeEmbedder) Validate() error      { return f.validateErr }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls.Add(1)
	f.texts.Add(int32(len(texts)))
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		axis := f.dim - 1
		if m := topicToken.FindStringSubmatch(text); m != nil {
			axis, _ = strconv.Atoi(m[1])
		}
		v := make([]float32, f.dim)
		v[axis] = 1
		// Small jitter so members are similar but not identical.
		v[f.dim-2] = 0.05 * float32(1+len(text)%3)
		out[i] = v
	}
	return out, nil
}

// fakeGenerator writes a draft from the topic headline.
type fakeGenerator struct {
	validateErr error
	err         error
	calls       atomic.Int32
	topics      sync.Map
}

func (f *fakeGenerator) Name() string    { return "fake" }
func (f *fakeGenerator) Validate() error { return f.validateErr }

func (f *fakeGenerator) Generate(_ context.Context, topic dto.TopicContext) (*dto.ArticleDraft, error) {
	f.calls.Add(1)
	f.topics.Store(topic.TopicKey, topic)
	if f.err != nil {
		return nil, f.err
	}
	return &dto.ArticleDraft{
		Title:   "Why " + topic.Headline + " matters",
		Summary: "A summary of " + topic.Headline,
		Body:    strings.Repeat("Analysis of "+topic.Headline+". ", 10),
		FAQ:     []dto.FAQDraft{{Question: "What happened?", Answer: topic.Headline}},
		Tags:    []string{topic.Category},
	}, nil
}

var errSourceDown = errors.New("connection refused")

var errMissingKey = &errs.ConfigurationError{Key: "embedding.api_key", Reason: "missing"}

// topicRaw builds an entry about topic n from source src.
func topicRaw(src source.Source, n, k int, publishedAt time.Time) dto.RawItem {
	p := publishedAt
	return dto.RawItem{
		SourceID:    src.ID,
		Category:    src.Category,
		URL:         fmt.Sprintf("https://news.example.com/%s/topic%d/story-%d", src.ID, n, k),
		Title:       fmt.Sprintf("Breaking topic%d development number %d", n, k),
		Body:        strings.Repeat(fmt.Sprintf("Reporting on topic%d with details and quotes. ", n), 4),
		PublishedAt: &p,
	}
}
