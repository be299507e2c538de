package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang-trend-publisher/internal/entity"
	"golang-trend-publisher/internal/executor/config"
	"golang-trend-publisher/internal/executor/delivery/consumer"
	"golang-trend-publisher/internal/executor/dto"
	"golang-trend-publisher/internal/executor/repository"
	"golang-trend-publisher/internal/executor/service"
	"golang-trend-publisher/internal/executor/source"
	"golang-trend-publisher/internal/executor/strategy"
	"golang-trend-publisher/pkg/common"
	"golang-trend-publisher/pkg/logger"
	"golang-trend-publisher/pkg/postgres"
	"golang-trend-publisher/pkg/ratelimit"
	"golang-trend-publisher/pkg/redis"
	"golang-trend-publisher/pkg/telegram"
	"golang-trend-publisher/pkg/tracing"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	runOpts    entity.RunOptions
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the execution service",
	Run:   runServe,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Runs the workflow once and prints the report",
	Run:   runOnce,
}

// app holds the wired executor components.
type app struct {
	cfg      *config.Config
	logger   *logger.Logger
	runRepo  repository.WorkflowRunRepository
	workflow service.WorkflowService
	notifier telegram.Notifier
	closers  []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context) *app {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.New(cfg.Logger.Level, cfg.Logger.Encoding)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	a := &app{cfg: cfg, logger: appLogger}
	a.closers = append(a.closers, func() { _ = appLogger.Sync() })

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Env,
		Exporter:    cfg.Tracing.Exporter,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		appLogger.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	a.closers = append(a.closers, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	})

	db, err := postgres.NewDB(postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		TimeZone:        cfg.Database.TimeZone,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		LogLevel:        cfg.Database.LogLevel,
	})
	if err != nil {
		appLogger.Fatal("Failed to initialize database", zap.Error(err))
	}
	if sqlDB, err := db.DB.DB(); err == nil {
		a.closers = append(a.closers, func() { _ = sqlDB.Close() })
	}

	// Repositories
	itemRepo := repository.NewScrapedItemRepository(db.DB)
	embeddingRepo := repository.NewItemEmbeddingRepository(db.DB)
	articleRepo := repository.NewArticleRepository(db.DB)
	marketTrendRepo := repository.NewMarketTrendRepository(db.DB)
	instrumentRepo := repository.NewInstrumentsRepository(db.DB)
	a.runRepo = repository.NewWorkflowRunRepository(db.DB)

	// Providers. A missing key is reported by the workflow preflight, not here.
	embedModels, err := repository.NewGenAIModels(ctx, cfg.Embedding.APIKey)
	if err != nil {
		appLogger.Fatal("Failed to initialize Gemini embedding client", zap.Error(err))
	}
	embedLimiter := ratelimit.NewKeyedLimiter(cfg.Embedding.MaxRequestPerMinute, 1, 16, time.Hour)
	genLimiter := ratelimit.NewKeyedLimiter(cfg.Generator.MaxRequestPerMinute, 1, 16, time.Hour)

	var embedder repository.EmbeddingProvider
	switch cfg.Embedding.Provider {
	case "gemini":
		embedder = repository.NewGeminiEmbeddingRepository(cfg.Embedding, appLogger, embedModels, embedLimiter)
	default:
		appLogger.Fatal("Invalid embedding provider specified in config", zap.String("provider", cfg.Embedding.Provider))
	}
	var generator repository.GenerationProvider
	switch {
	case cfg.Generator.Provider == "gemini":
		genModels, err := repository.NewGenAIModels(ctx, cfg.Generator.APIKey)
		if err != nil {
			appLogger.Fatal("Failed to initialize Gemini generation client", zap.Error(err))
		}
		generator = repository.NewGeminiGenerationRepository(cfg.Generator, appLogger, genModels, genLimiter)
	case repository.IsChatCompletionProvider(cfg.Generator.Provider):
		generator = repository.NewChatCompletionRepository(cfg.Generator, appLogger, &http.Client{Timeout: cfg.Generator.Timeout}, genLimiter)
	default:
		appLogger.Fatal("Invalid generation provider specified in config", zap.String("provider", cfg.Generator.Provider))
	}

	if cfg.Telegram.BotToken != "" {
		notifier, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			appLogger.Fatal("Failed to initialize Telegram notifier", zap.Error(err))
		}
		a.notifier = notifier
	}

	// Strategies
	hostLimiter := ratelimit.NewKeyedLimiter(cfg.Scraper.HostRequestsPerMinute, 2, 1024, 10*time.Minute)
	fetcher := strategy.NewPageFetcher(&http.Client{Timeout: cfg.Scraper.FetchTimeout}, hostLimiter, appLogger, cfg.Scraper.UserAgent, cfg.Scraper.MaxResponseBytes)
	strategies := []strategy.SourceFetchStrategy{
		strategy.NewRSSFetchStrategy(appLogger, fetcher),
		strategy.NewHTMLFetchStrategy(appLogger, fetcher),
	}

	// Services
	scraperSvc := service.NewScraperService(cfg.Scraper, appLogger, itemRepo, strategies)
	embeddingSvc := service.NewEmbeddingService(cfg.Embedding, appLogger, embedder, embeddingRepo)
	trendSvc := service.NewTrendService(cfg.Trend, appLogger, itemRepo, embeddingSvc)
	marketSvc := service.NewMarketTrendService(cfg.Market, cfg.Trend, appLogger, itemRepo, instrumentRepo, marketTrendRepo)
	generatorSvc := service.NewArticleGeneratorService(cfg.Generator, cfg.Trend, appLogger, generator, articleRepo, itemRepo)

	// The registry is re-read on every run so edits apply without a restart.
	sources := func() ([]source.Source, error) {
		reg, err := source.Load(cfg.Scraper.SourcesFile)
		if err != nil {
			return nil, err
		}
		return reg.Enabled(), nil
	}

	a.workflow = service.NewWorkflowService(cfg, appLogger, sources, scraperSvc, trendSvc, marketSvc, generatorSvc, a.runRepo, a.notifier)
	return a
}

func runServe(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := newApp(ctx)
	defer a.Close()
	a.logger.Info("Starting Execution Service", zap.String("name", a.cfg.App.Name))

	redisClient, err := redis.NewClient(redis.Config{
		Host:     a.cfg.Redis.Host,
		Port:     a.cfg.Redis.Port,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
		PoolSize: a.cfg.Redis.PoolSize,
	})
	if err != nil {
		a.logger.Fatal("Failed to initialize Redis", zap.Error(err))
	}
	defer redisClient.Close()

	if err := redisClient.EnsureGroup(ctx, common.RedisStreamWorkflowTrigger, common.RedisStreamGroup); err != nil {
		a.logger.Fatal("Failed to create consumer group", logger.ErrorField(err))
	}

	executorSvc := service.NewExecutorService(a.cfg, redisClient.Client, a.runRepo, a.workflow, a.notifier, a.logger)
	redisConsumer := consumer.NewRedisConsumer(a.cfg, executorSvc, a.logger)
	redisConsumer.Start(ctx)

	a.logger.Info("Execution service started. Waiting for workflow triggers...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	a.logger.Info("Shutting down execution service...")
	cancel()
	redisConsumer.Stop()
	a.logger.Info("Execution service stopped.")
}

func runOnce(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := newApp(ctx)
	report := a.workflow.Execute(ctx, dto.RunRequest{Trigger: entity.TriggerCLI, Options: runOpts})

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		a.logger.Error("Failed to encode report", logger.ErrorField(err))
	} else {
		fmt.Println(string(out))
	}
	a.Close()
	if !report.Success {
		os.Exit(1)
	}
}

func main() {
	rootCmd := &cobra.Command{Use: "execution-service"}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config-executor.yaml", "Path to the configuration file")

	runCmd.Flags().Float64Var(&runOpts.ClusteringThreshold, "threshold", 0, "Clustering similarity threshold in (0, 1]; 0 uses the configured value")
	runCmd.Flags().IntVar(&runOpts.Hours, "hours", 0, "Look-back window in hours; 0 uses the configured value")
	runCmd.Flags().IntVar(&runOpts.MaxItems, "max-items", 0, "Maximum entries to scrape; 0 uses the configured value")

	rootCmd.AddCommand(serveCmd, runCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing execution-service CLI: %s\n", err)
		os.Exit(1)
	}
}
