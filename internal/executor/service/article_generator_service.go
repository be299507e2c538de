package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"golang-trend-publisher/internal/entity"
	"golang-trend-publisher/internal/executor/cluster"
	"golang-trend-publisher/internal/executor/config"
	"golang-trend-publisher/internal/executor/dto"
	"golang-trend-publisher/internal/executor/repository"
	"golang-trend-publisher/pkg/errs"
	"golang-trend-publisher/pkg/logger"
	"golang-trend-publisher/pkg/utils"
)

const (
	maxCitations    = 10
	maxExcerptChars = 800
	maxSlugAttempts = 20
)

type topicOutcome int

const (
	outcomeGenerated topicOutcome = iota
	outcomeDuplicate
	outcomeRejected
	outcomeErrored
)

// GenerateResult is the outcome of one generation pass.
type GenerateResult struct {
	Considered int
	Generated  int
	// Skipped counts clusters below the cutoff, beyond MaxTopics, or already covered by an article.
	Skipped  int
	Rejected int
	Errored  int
	Slugs    []string
	Errors   []string
}

// Status summarises the result for the step report.
func (r *GenerateResult) Status() string {
	switch {
	case r.Errored > 0 && r.Generated == 0:
		return dto.StepStatusFailed
	case r.Errored > 0:
		return dto.StepStatusPartial
	default:
		return dto.StepStatusSuccess
	}
}

// ArticleGeneratorService turns qualifying topic clusters into stored articles.
type ArticleGeneratorService interface {
	Validate() error
	Generate(ctx context.Context, clusters []cluster.TopicCluster) (*GenerateResult, error)
}

type articleGeneratorService struct {
	cfg         config.Generator
	trendCfg    config.Trend
	logger      *logger.Logger
	provider    repository.GenerationProvider
	articleRepo repository.ArticleRepository
	itemRepo    repository.ScrapedItemRepository
}

// NewArticleGeneratorService creates a new ArticleGeneratorService.
func NewArticleGeneratorService(
	cfg config.Generator,
	trendCfg config.Trend,
	log *logger.Logger,
	provider repository.GenerationProvider,
	articleRepo repository.ArticleRepository,
	itemRepo repository.ScrapedItemRepository,
) ArticleGeneratorService {
	return &articleGeneratorService{
		cfg:         cfg,
		trendCfg:    trendCfg,
		logger:      log,
		provider:    provider,
		articleRepo: articleRepo,
		itemRepo:    itemRepo,
	}
}

func (s *articleGeneratorService) Validate() error {
	return s.provider.Validate()
}

// Generate processes the top clusters concurrently. Per-topic failures are counted and reported;
// a storage failure aborts the pass.
func (s *articleGeneratorService) Generate(ctx context.Context, clusters []cluster.TopicCluster) (*GenerateResult, error) {
	result := &GenerateResult{Considered: len(clusters), Errors: []string{}}

	ordered := make([]cluster.TopicCluster, len(clusters))
	copy(ordered, clusters)
	cluster.SortByScore(ordered)

	var selected []cluster.TopicCluster
	for _, c := range ordered {
		if c.Size() < s.trendCfg.MinClusterSize || c.Score < s.cfg.MinTrendScore || len(selected) >= s.cfg.MaxTopics {
			result.Skipped++
			continue
		}
		selected = append(selected, c)
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(max(1, s.cfg.MaxConcurrent))
	for _, c := range selected {
		g.Go(func() error {
			outcome, slug, err := s.processTopic(ctx, c)
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeGenerated:
				result.Generated++
				result.Slugs = append(result.Slugs, slug)
			case outcomeDuplicate:
				result.Skipped++
			case outcomeRejected:
				result.Rejected++
				result.Errors = append(result.Errors, fmt.Sprintf("rejected: topic %s: %v", c.ID, err))
			case outcomeErrored:
				if errs.IsFatal(err) {
					return err
				}
				result.Errored++
				result.Errors = append(result.Errors, fmt.Sprintf("topic %s: %v", c.ID, err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	s.logger.Info("Article generation completed",
		logger.IntField("considered", result.Considered),
		logger.IntField("generated", result.Generated),
		logger.IntField("skipped", result.Skipped),
		logger.IntField("rejected", result.Rejected),
		logger.IntField("errored", result.Errored),
	)
	return result, nil
}

func (s *articleGeneratorService) processTopic(ctx context.Context, c cluster.TopicCluster) (topicOutcome, string, error) {
	if !utils.ShouldContinue(ctx, s.logger) {
		return outcomeErrored, "", ctx.Err()
	}

	key := ClusterTopicKey(c)
	log := s.logger.With(logger.StringField("cluster_id", c.ID), logger.StringField("topic_key", key))

	gate := TopicGate{MinSources: s.cfg.MinSources, MinClaimChars: s.cfg.MinClaimChars}
	if err := gate.Check(key, c); err != nil {
		log.Info("Topic rejected", logger.ErrorField(err))
		return outcomeRejected, "", err
	}

	existing, err := s.articleRepo.FindByTopicKey(ctx, key)
	if err != nil {
		return outcomeErrored, "", errs.Storage("find article by topic", err)
	}
	if existing != nil {
		log.Info("Topic already covered", logger.StringField("slug", existing.Slug))
		if err := s.assignMembers(ctx, c, key); err != nil {
			return outcomeErrored, "", err
		}
		return outcomeDuplicate, existing.Slug, nil
	}

	genCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	draft, err := s.provider.Generate(genCtx, s.topicContext(key, c))
	if err != nil {
		log.Warn("Generation failed", logger.ErrorField(err))
		return outcomeErrored, "", err
	}

	article := s.buildArticle(key, c, draft)
	inserted, err := s.insertArticle(ctx, article)
	if err != nil {
		return outcomeErrored, "", err
	}
	if err := s.assignMembers(ctx, c, key); err != nil {
		return outcomeErrored, "", err
	}
	if !inserted {
		log.Info("Topic was covered concurrently")
		return outcomeDuplicate, "", nil
	}

	log.Info("Article generated", logger.StringField("slug", article.Slug), logger.Float64Field("score", c.Score))
	return outcomeGenerated, article.Slug, nil
}

// insertArticle stores article under a free slug. It reports false when the topic already has an article.
func (s *articleGeneratorService) insertArticle(ctx context.Context, article *entity.Article) (bool, error) {
	base := article.Slug
	for attempt := 1; attempt <= maxSlugAttempts; attempt++ {
		if attempt > 1 {
			article.Slug = fmt.Sprintf("%s-%d", base, attempt)
		}
		taken, err := s.articleRepo.SlugExists(ctx, article.Slug)
		if err != nil {
			return false, errs.Storage("check slug", err)
		}
		if taken {
			continue
		}

		inserted, err := s.articleRepo.InsertIfAbsent(ctx, article)
		if err != nil {
			return false, errs.Storage("insert article", err)
		}
		if inserted {
			return true, nil
		}

		// Either the topic or the slug was taken in between.
		existing, err := s.articleRepo.FindByTopicKey(ctx, article.TopicKey)
		if err != nil {
			return false, errs.Storage("find article by topic", err)
		}
		if existing != nil {
			return false, nil
		}
	}
	return false, errors.New("no free slug for article " + base)
}

func (s *articleGeneratorService) assignMembers(ctx context.Context, c cluster.TopicCluster, key string) error {
	ids := make([]uint, len(c.Members))
	for i, m := range c.Members {
		ids[i] = m.ID
	}
	if err := s.itemRepo.AssignTopic(ctx, ids, key); err != nil {
		return errs.Storage("assign topic", err)
	}
	return nil
}

func (s *articleGeneratorService) topicContext(key string, c cluster.TopicCluster) dto.TopicContext {
	rep := c.Representative()
	tc := dto.TopicContext{
		TopicKey: key,
		Category: c.Category,
		Symbol:   c.Symbol,
		Headline: rep.Title,
		Score:    c.Score,
	}
	for _, m := range c.Members {
		if len(tc.Items) >= s.cfg.MaxContextItems {
			break
		}
		tc.Items = append(tc.Items, dto.TopicContextItem{
			Title:       m.Title,
			Excerpt:     utils.TruncateRunes(m.Body, maxExcerptChars),
			URL:         m.CanonicalURL,
			Domain:      m.Domain(),
			PublishedAt: m.PublishedAt,
		})
	}
	return tc
}

func (s *articleGeneratorService) buildArticle(key string, c cluster.TopicCluster, draft *dto.ArticleDraft) *entity.Article {
	faq := make([]entity.FAQ, 0, len(draft.FAQ))
	for _, f := range draft.FAQ {
		if f.Question == "" || f.Answer == "" {
			continue
		}
		faq = append(faq, entity.FAQ{Question: f.Question, Answer: f.Answer})
	}

	seen := make(map[string]bool)
	citations := make([]entity.Citation, 0, len(c.Members))
	for _, m := range c.Members {
		if len(citations) >= maxCitations || seen[m.CanonicalURL] {
			continue
		}
		seen[m.CanonicalURL] = true
		citations = append(citations, entity.Citation{
			URL:         m.CanonicalURL,
			Domain:      m.Domain(),
			Title:       m.Title,
			RetrievedAt: m.ScrapedAt,
		})
	}

	metaTitle := draft.MetaTitle
	if metaTitle == "" {
		metaTitle = utils.TruncateRunes(draft.Title, 60)
	}
	metaDescription := draft.MetaDescription
	if metaDescription == "" {
		metaDescription = utils.TruncateRunes(draft.Summary, 155)
	}
	entities := draft.Entities
	if c.Symbol != "" && !utils.ContainsString(entities, c.Symbol) {
		entities = append([]string{c.Symbol}, entities...)
	}

	return &entity.Article{
		Slug:      ArticleSlug(draft.Title, key),
		TopicKey:  key,
		Title:     draft.Title,
		Body:      draft.Body,
		Summary:   draft.Summary,
		Category:  c.Category,
		Symbol:    c.Symbol,
		FAQ:       faq,
		Tags:      nonNil(draft.Tags),
		Entities:  nonNil(entities),
		Topics:    nonNil(draft.Topics),
		Citations: citations,
		SEO: entity.SEOMetadata{
			MetaTitle:       metaTitle,
			MetaDescription: metaDescription,
			Keywords:        nonNil(draft.Keywords),
		},
		TrendingScore: c.Score,
		Published:     s.cfg.Publish,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
