package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang-trend-publisher/internal/entity"
	"golang-trend-publisher/internal/executor/cluster"
	"golang-trend-publisher/internal/executor/config"
	"golang-trend-publisher/internal/executor/repository"
	"golang-trend-publisher/pkg/errs"
	"golang-trend-publisher/pkg/logger"
	"golang-trend-publisher/pkg/utils"
)

// TrendResult is the outcome of one clustering pass.
type TrendResult struct {
	Items             int
	Truncated         int
	Embedded          int
	EmbeddingFailures int
	DimensionMismatch int
	Clusters          []cluster.TopicCluster
	Errors            []string
}

// Failed reports whether there were items but none could be embedded.
func (r *TrendResult) Failed() bool {
	return r.Items > 0 && r.Embedded == 0
}

// TrendService groups recent items into scored topic clusters.
type TrendService interface {
	Validate() error
	DetectTrends(ctx context.Context, opts entity.RunOptions) (*TrendResult, error)
}

type trendService struct {
	cfg       config.Trend
	logger    *logger.Logger
	itemRepo  repository.ScrapedItemRepository
	embedding EmbeddingService
	now       func() time.Time
}

// NewTrendService creates a new TrendService.
func NewTrendService(cfg config.Trend, log *logger.Logger, itemRepo repository.ScrapedItemRepository, embedding EmbeddingService) TrendService {
	return &trendService{
		cfg:       cfg,
		logger:    log,
		itemRepo:  itemRepo,
		embedding: embedding,
		now:       utils.TimeNowUTC,
	}
}

func (s *trendService) Validate() error {
	return s.embedding.Validate()
}

// DetectTrends clusters the unassigned non-market items of the last opts.Hours hours. Items are
// clustered per category; clusters come back ordered by score.
func (s *trendService) DetectTrends(ctx context.Context, opts entity.RunOptions) (*TrendResult, error) {
	now := s.now()
	result := &TrendResult{Errors: []string{}}

	filter := repository.ItemFilter{
		Since:             now.Add(-time.Duration(opts.Hours) * time.Hour),
		ExcludeCategories: entity.MarketCategories,
		OnlyUnassigned:    true,
		Limit:             s.cfg.MaxItems,
	}
	items, err := s.itemRepo.ListRecentItems(ctx, filter)
	if err != nil {
		return nil, errs.Storage("list recent items", err)
	}
	result.Items = len(items)
	if filter.Limit > 0 && len(items) == filter.Limit {
		total, err := s.itemRepo.CountRecentItems(ctx, filter)
		if err != nil {
			return nil, errs.Storage("count recent items", err)
		}
		result.Truncated = int(total) - len(items)
	}
	if result.Truncated > 0 {
		result.Errors = append(result.Errors, fmt.Sprintf("%d older items left for a later run: window holds more than %d", result.Truncated, filter.Limit))
		s.logger.Warn("Trend window truncated",
			logger.IntField("loaded", result.Items),
			logger.IntField("truncated", result.Truncated))
	}
	if len(items) == 0 {
		return result, nil
	}

	embeddings, err := s.embedding.EmbedItems(ctx, items)
	if err != nil {
		return nil, err
	}

	dim := modalDimension(embeddings)
	seenErr := make(map[string]bool)
	byCategory := make(map[string][]int)
	for i, e := range embeddings {
		switch {
		case e.Err != nil:
			result.EmbeddingFailures++
			if msg := e.Err.Error(); !seenErr[msg] {
				seenErr[msg] = true
				result.Errors = append(result.Errors, msg)
			}
		case len(e.Vector) != dim:
			result.DimensionMismatch++
		default:
			result.Embedded++
			byCategory[items[i].Category] = append(byCategory[items[i].Category], i)
		}
	}
	if result.DimensionMismatch > 0 {
		result.Errors = append(result.Errors, fmt.Sprintf("%d vectors excluded: dimension differs from %d", result.DimensionMismatch, dim))
	}

	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	halfLife := time.Duration(s.cfg.HalfLifeHours * float64(time.Hour))
	for _, category := range categories {
		idx := byCategory[category]
		vectors := make([][]float32, len(idx))
		for i, itemIdx := range idx {
			vectors[i] = embeddings[itemIdx].Vector
		}

		for n, part := range cluster.Partition(vectors, opts.ClusteringThreshold) {
			c := cluster.TopicCluster{
				ID:       fmt.Sprintf("%s-%03d", category, n+1),
				Category: category,
			}
			for _, p := range part {
				c.Members = append(c.Members, items[idx[p]])
				c.Vectors = append(c.Vectors, vectors[p])
			}
			c.Centroid = cluster.Centroid(c.Vectors)
			c.Score = cluster.ScoreMembers(c.Members, now, halfLife)
			result.Clusters = append(result.Clusters, c)
		}
	}
	cluster.SortByScore(result.Clusters)

	s.logger.Info("Trend detection completed",
		logger.IntField("items", result.Items),
		logger.IntField("embedded", result.Embedded),
		logger.IntField("embedding_failures", result.EmbeddingFailures),
		logger.IntField("clusters", len(result.Clusters)),
		logger.Float64Field("threshold", opts.ClusteringThreshold),
	)
	return result, nil
}

// modalDimension returns the most common vector length.
func modalDimension(results []EmbeddingResult) int {
	counts := make(map[int]int)
	best, bestCount := 0, 0
	for _, r := range results {
		if r.Err != nil || len(r.Vector) == 0 {
			continue
		}
		d := len(r.Vector)
		counts[d]++
		if counts[d] > bestCount {
			best, bestCount = d, counts[d]
		}
	}
	return best
}
