package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"gorm.io/datatypes"

	"golang-trend-publisher/internal/entity"
	"golang-trend-publisher/internal/executor/cluster"
	"golang-trend-publisher/internal/executor/config"
	"golang-trend-publisher/internal/executor/repository"
	"golang-trend-publisher/pkg/errs"
	"golang-trend-publisher/pkg/logger"
	"golang-trend-publisher/pkg/utils"
)

// MarketTrendResult is the outcome of one instrument matching pass.
type MarketTrendResult struct {
	Items    int
	Matched  int
	Trends   int
	Clusters []cluster.TopicCluster
	Errors   []string
}

// MarketTrendService finds instruments mentioned by recent stocks, metals and sharia items.
type MarketTrendService interface {
	Analyze(ctx context.Context, opts entity.RunOptions) (*MarketTrendResult, error)
}

type marketTrendService struct {
	marketCfg      config.Market
	trendCfg       config.Trend
	logger         *logger.Logger
	itemRepo       repository.ScrapedItemRepository
	instrumentRepo repository.InstrumentsRepository
	trendRepo      repository.MarketTrendRepository
	now            func() time.Time
}

// NewMarketTrendService creates a new MarketTrendService.
func NewMarketTrendService(
	marketCfg config.Market,
	trendCfg config.Trend,
	log *logger.Logger,
	itemRepo repository.ScrapedItemRepository,
	instrumentRepo repository.InstrumentsRepository,
	trendRepo repository.MarketTrendRepository,
) MarketTrendService {
	return &marketTrendService{
		marketCfg:      marketCfg,
		trendCfg:       trendCfg,
		logger:         log,
		itemRepo:       itemRepo,
		instrumentRepo: instrumentRepo,
		trendRepo:      trendRepo,
		now:            utils.TimeNowUTC,
	}
}

type instrumentKey struct {
	category string
	code     string
}

// Analyze groups recent market items by the instrument they mention, records a MarketTrend per
// instrument and returns one cluster per instrument with at least MinMentions items.
func (s *marketTrendService) Analyze(ctx context.Context, opts entity.RunOptions) (*MarketTrendResult, error) {
	now := s.now()
	result := &MarketTrendResult{Errors: []string{}}

	instruments, err := s.instrumentRepo.GetInstruments(ctx, entity.MarketCategories)
	if err != nil {
		return nil, errs.Storage("get instruments", err)
	}
	if len(instruments) == 0 {
		return result, nil
	}

	items, err := s.itemRepo.ListRecentItems(ctx, repository.ItemFilter{
		Since:          now.Add(-time.Duration(opts.Hours) * time.Hour),
		Categories:     entity.MarketCategories,
		OnlyUnassigned: true,
		Limit:          s.trendCfg.MaxItems,
	})
	if err != nil {
		return nil, errs.Storage("list recent market items", err)
	}
	result.Items = len(items)

	byCategory := make(map[string][]entity.Instrument)
	for _, inst := range instruments {
		byCategory[inst.Category] = append(byCategory[inst.Category], inst)
	}

	groups := make(map[instrumentKey][]entity.ScrapedItem)
	var keys []instrumentKey
	for _, item := range items {
		inst, ok := primaryInstrument(item, byCategory[item.Category])
		if !ok {
			continue
		}
		result.Matched++
		k := instrumentKey{category: inst.Category, code: inst.Code}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], item)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].category != keys[j].category {
			return keys[i].category < keys[j].category
		}
		return keys[i].code < keys[j].code
	})

	halfLife := time.Duration(s.trendCfg.HalfLifeHours * float64(time.Hour))
	bucket := utils.DayBucket(now)
	for _, k := range keys {
		members := groups[k]
		if len(members) < s.marketCfg.MinMentions {
			continue
		}
		score := cluster.ScoreMembers(members, now, halfLife)

		ids := make(datatypes.JSONSlice[uint], len(members))
		for i, m := range members {
			ids[i] = m.ID
		}
		trend := &entity.MarketTrend{
			Category:     k.category,
			Symbol:       k.code,
			Bucket:       bucket,
			MentionCount: len(members),
			Score:        score,
			ItemIDs:      ids,
		}
		if err := s.trendRepo.Upsert(ctx, trend); err != nil {
			return nil, errs.Storage("upsert market trend", err)
		}
		result.Trends++

		result.Clusters = append(result.Clusters, cluster.TopicCluster{
			ID:       fmt.Sprintf("market-%s-%s", k.category, strings.ToLower(k.code)),
			Category: k.category,
			Symbol:   k.code,
			Members:  members,
			Score:    score,
		})
	}
	cluster.SortByScore(result.Clusters)

	s.logger.Info("Market trend detection completed",
		logger.IntField("items", result.Items),
		logger.IntField("matched", result.Matched),
		logger.IntField("trends", result.Trends),
	)
	return result, nil
}

// primaryInstrument picks the single instrument an item is grouped under: the one mentioned most
// often, ties going to the lowest code. Each item belongs to at most one market topic.
func primaryInstrument(item entity.ScrapedItem, candidates []entity.Instrument) (entity.Instrument, bool) {
	text := item.Title + " " + item.Body
	tokens := wordSet(text)
	lower := strings.ToLower(text)

	var best entity.Instrument
	bestCount := 0
	for _, inst := range candidates {
		n := mentionCount(tokens, lower, inst)
		if n == 0 {
			continue
		}
		if n > bestCount || (n == bestCount && inst.Code < best.Code) {
			best, bestCount = inst, n
		}
	}
	return best, bestCount > 0
}

// mentionCount counts the instrument code as a case-sensitive word and its name or aliases as
// case-insensitive substrings.
func mentionCount(tokens map[string]int, lowerText string, inst entity.Instrument) int {
	n := 0
	if inst.Code != "" {
		n += tokens[inst.Code]
	}
	for _, name := range append([]string{inst.Name}, inst.Aliases...) {
		name = strings.ToLower(strings.TrimSpace(name))
		if len([]rune(name)) >= 3 {
			n += strings.Count(lowerText, name)
		}
	}
	return n
}

func wordSet(text string) map[string]int {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]int, len(words))
	for _, w := range words {
		set[w]++
	}
	return set
}
