package service

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"golang-trend-publisher/internal/entity"
	"golang-trend-publisher/internal/executor/config"
	"golang-trend-publisher/internal/executor/dto"
	"golang-trend-publisher/internal/executor/repository"
	"golang-trend-publisher/internal/executor/source"
	"golang-trend-publisher/internal/executor/strategy"
	"golang-trend-publisher/pkg/errs"
	"golang-trend-publisher/pkg/logger"
	"golang-trend-publisher/pkg/utils"
)

// ScrapeResult is the outcome of fetching all enabled sources once.
type ScrapeResult struct {
	Sources       int
	SourcesFailed int
	// Seen counts normalized candidates, duplicates included.
	Seen int
	// New counts candidates that were stored for the first time.
	New    int
	Items  []entity.ScrapedItem
	Errors []error
}

// Status is success while at least one source worked, failed when every source failed.
func (r *ScrapeResult) Status() string {
	if r.Sources > 0 && r.SourcesFailed == r.Sources {
		return dto.StepStatusFailed
	}
	return dto.StepStatusSuccess
}

// ScraperService fetches sources, normalizes entries and stores the ones not seen before.
type ScraperService interface {
	Validate(sources []source.Source) error
	Scrape(ctx context.Context, sources []source.Source, maxItems int) (*ScrapeResult, error)
}

type scraperService struct {
	cfg        config.Scraper
	logger     *logger.Logger
	itemRepo   repository.ScrapedItemRepository
	strategies map[source.Kind]strategy.SourceFetchStrategy
	now        func() time.Time
}

// NewScraperService creates a new ScraperService.
func NewScraperService(cfg config.Scraper, log *logger.Logger, itemRepo repository.ScrapedItemRepository, strategies []strategy.SourceFetchStrategy) ScraperService {
	strategyMap := make(map[source.Kind]strategy.SourceFetchStrategy)
	for _, s := range strategies {
		strategyMap[s.GetType()] = s
	}
	return &scraperService{
		cfg:        cfg,
		logger:     log,
		itemRepo:   itemRepo,
		strategies: strategyMap,
		now:        utils.TimeNowUTC,
	}
}

// Validate checks every source has a fetch strategy.
func (s *scraperService) Validate(sources []source.Source) error {
	if len(sources) == 0 {
		return &errs.ConfigurationError{Key: "scraper.sources_file", Reason: "no enabled sources"}
	}
	for _, src := range sources {
		if _, ok := s.strategies[src.Kind]; !ok {
			return &errs.ConfigurationError{Key: "sources." + src.ID, Reason: fmt.Sprintf("no fetch strategy for kind %q", src.Kind)}
		}
	}
	return nil
}

type sourceBatch struct {
	items []entity.ScrapedItem
	err   error
}

// Scrape fetches sources concurrently. A failing source is reported and skipped; only a storage
// failure aborts the call.
func (s *scraperService) Scrape(ctx context.Context, sources []source.Source, maxItems int) (*ScrapeResult, error) {
	result := &ScrapeResult{Sources: len(sources), Errors: []error{}}
	batches := make([]sourceBatch, len(sources))
	budget := strategy.NewCountingBudget(maxItems)
	normOpts := NormalizeOptions{MaxBodyChars: s.cfg.MaxBodyChars, HashPrefixChars: s.cfg.HashPrefixChars}

	// Each goroutine owns batches[i].
	var g errgroup.Group
	g.SetLimit(max(1, s.cfg.MaxConcurrent))
	for i, src := range sources {
		if !utils.ShouldContinue(ctx, s.logger) {
			batches[i].err = ctx.Err()
			continue
		}
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					batches[i] = sourceBatch{err: utils.RecoverError(r)}
				}
			}()
			items, fetchErr := s.fetchSource(ctx, src, budget, normOpts)
			batches[i] = sourceBatch{items: items, err: fetchErr}
			return nil
		})
	}
	_ = g.Wait()

	// Merge in source order so runs over the same input store items in the same order.
	var candidates []entity.ScrapedItem
	for i, b := range batches {
		if b.err != nil {
			result.SourcesFailed++
			result.Errors = append(result.Errors, &errs.SourceFetchError{SourceID: sources[i].ID, Err: b.err})
			s.logger.Warn("Source failed", logger.StringField("source_id", sources[i].ID), logger.ErrorField(b.err))
			continue
		}
		candidates = append(candidates, b.items...)
	}
	result.Seen = len(candidates)

	if len(candidates) == 0 {
		return result, nil
	}

	hashes := make([]string, 0, len(candidates))
	for _, c := range candidates {
		hashes = append(hashes, c.ContentHash)
	}
	existing, err := s.itemRepo.FindExistingHashes(ctx, hashes)
	if err != nil {
		return result, errs.Storage("find existing hashes", err)
	}

	for i := range candidates {
		item := candidates[i]
		if existing[item.ContentHash] {
			continue
		}
		// Duplicates inside this batch are caught here too.
		existing[item.ContentHash] = true

		inserted, err := s.itemRepo.InsertIfAbsent(ctx, &item)
		if err != nil {
			return result, errs.Storage("insert scraped item", err)
		}
		if inserted {
			result.New++
			result.Items = append(result.Items, item)
		}
	}

	s.logger.Info("Scrape completed",
		logger.IntField("sources", result.Sources),
		logger.IntField("sources_failed", result.SourcesFailed),
		logger.IntField("seen", result.Seen),
		logger.IntField("new", result.New),
	)
	return result, nil
}

func (s *scraperService) fetchSource(ctx context.Context, src source.Source, budget strategy.Budget, opts NormalizeOptions) ([]entity.ScrapedItem, error) {
	fetchCtx := ctx
	if s.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.cfg.FetchTimeout)
		defer cancel()
	}

	raws, err := s.strategies[src.Kind].Fetch(fetchCtx, src, budget)
	if err != nil {
		return nil, err
	}

	scrapedAt := s.now()
	items := make([]entity.ScrapedItem, 0, len(raws))
	for _, raw := range raws {
		item, err := NormalizeItem(raw, opts, scrapedAt)
		if err != nil {
			s.logger.Debug("Dropping entry", logger.StringField("source_id", src.ID), logger.StringField("url", raw.URL), logger.ErrorField(err))
			continue
		}
		items = append(items, item)
	}
	return items, nil
}
