package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/siterag/siterag/internal/api/handlers"
	"github.com/siterag/siterag/internal/cache/redis"
	"github.com/siterag/siterag/internal/crawler"
	"github.com/siterag/siterag/internal/indexer"
	"github.com/siterag/siterag/internal/linkgraph"
	"github.com/siterag/siterag/internal/llm"
	"github.com/siterag/siterag/internal/metrics"
	"github.com/siterag/siterag/internal/middleware/ratelimit"
	"github.com/siterag/siterag/internal/middleware/security"
	"github.com/siterag/siterag/internal/qa"
	"github.com/siterag/siterag/internal/storage/blob"
	"github.com/siterag/siterag/internal/storage/sqlite"
	"github.com/siterag/siterag/internal/vector"
	"github.com/siterag/siterag/internal/vector/chromemdb"
	"github.com/siterag/siterag/internal/vector/milvus"
	"github.com/siterag/siterag/internal/vector/qdrant"
	"github.com/siterag/siterag/pkg/config"
	appLogger "github.com/siterag/siterag/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting siterag API server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.Storage.SQLitePath)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	blobStore, err := blob.NewStore(cfg.Storage.BlobDir)
	if err != nil {
		appLogger.Fatal("Failed to create blob store", zap.Error(err))
	}

	vectorStore, err := newVectorStore(cfg)
	if err != nil {
		appLogger.Fatal("Failed to create vector store", zap.Error(err))
	}
	defer vectorStore.Close()

	if count, err := vectorStore.Count(context.Background()); err == nil {
		metrics.VectorEntries.Set(float64(count))
	}

	var cacheClient *redis.Client
	if cfg.Cache.Enabled {
		cacheClient, err = redis.NewClient(cfg.Cache.Host, cfg.Cache.Port, cfg.Cache.Password, cfg.Cache.DB)
		if err != nil {
			appLogger.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer cacheClient.Close()
	}
	cacheTTL := time.Duration(cfg.Cache.TTLSec) * time.Second

	var linkRecorder crawler.LinkRecorder
	if cfg.LinkGraph.Enabled {
		graphClient, err := linkgraph.NewClient(
			cfg.LinkGraph.URI,
			cfg.LinkGraph.Username,
			cfg.LinkGraph.Password,
			cfg.LinkGraph.Database,
		)
		if err != nil {
			appLogger.Fatal("Failed to create link graph client", zap.Error(err))
		}
		defer graphClient.Close(context.Background())
		linkRecorder = graphClient
	}

	llmClient := llm.NewClient(
		cfg.LLM.BaseURL,
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.EmbeddingModel,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
		time.Duration(cfg.LLM.TimeoutSec)*time.Second,
	)

	if err := llmClient.Available(context.Background()); err != nil {
		appLogger.Warn("LLM backend unreachable at startup, /index and /ask will refuse until it comes up",
			zap.Error(err))
	}

	fetchClient := &http.Client{
		Timeout: time.Duration(cfg.Crawler.FetchTimeoutSec) * time.Second,
	}
	siteCrawler := crawler.New(
		fetchClient,
		sqliteClient,
		blobStore,
		linkRecorder,
		cfg.Crawler.UserAgent,
		cfg.Crawler.MaxBodyBytes,
	)

	var embedCache indexer.EmbeddingCache
	var answerCache qa.AnswerCache
	var invalidator handlers.AnswerInvalidator
	if cacheClient != nil {
		embedCache = cacheClient
		answerCache = cacheClient
		invalidator = cacheClient
	}

	siteIndexer := indexer.New(sqliteClient, llmClient, vectorStore, embedCache, cacheTTL)
	qaEngine := qa.NewEngine(llmClient, vectorStore, answerCache, cacheTTL)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.Headers())

	if cfg.RateLimit.Enabled {
		limiter := ratelimit.New(ratelimit.Config{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Logger:            appLogger.GetLogger(),
		})
		defer limiter.Stop()
		app.Use(limiter.Middleware())
	}

	crawlDefaults := handlers.CrawlDefaults{
		MaxPages: cfg.Crawler.DefaultMaxPages,
		MaxDepth: cfg.Crawler.DefaultMaxDepth,
		DelayMS:  cfg.Crawler.DefaultDelayMS,
	}

	crawlHandler := handlers.NewCrawlHandler(siteCrawler, crawlDefaults)
	indexHandler := handlers.NewIndexHandler(siteIndexer, llmClient, vectorStore, invalidator)
	askHandler := handlers.NewAskHandler(qaEngine, llmClient)
	sessionHandler := handlers.NewSessionHandler(sqliteClient, vectorStore)
	healthHandler := handlers.NewHealthHandler(sqliteClient, vectorStore, llmClient)
	wsHandler := handlers.NewWebSocketHandler(siteCrawler, crawlDefaults)

	app.Post("/crawl", crawlHandler.HandleCrawl)
	app.Post("/index", indexHandler.HandleIndex)
	app.Post("/ask", askHandler.HandleAsk)

	app.Get("/health", healthHandler.HandleHealth)
	app.Get("/ready", healthHandler.HandleReady)
	app.Get("/sessions", sessionHandler.HandleSessions)
	app.Get("/stats", sessionHandler.HandleStats)
	app.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/crawl", websocket.New(wsHandler.HandleCrawl))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting",
		zap.String("address", addr),
		zap.String("vector_backend", cfg.Vector.Backend),
	)

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}

// newVectorStore picks the configured backend. chromem is the embedded
// default; qdrant and milvus are for deployments with a running server.
func newVectorStore(cfg *config.Config) (vector.Store, error) {
	switch cfg.Vector.Backend {
	case "chromem", "":
		return chromemdb.NewStore(cfg.Vector.Chromem.Path, cfg.Vector.Collection)
	case "qdrant":
		return qdrant.NewStore(context.Background(), qdrant.Config{
			Host:       cfg.Vector.Qdrant.Host,
			Port:       cfg.Vector.Qdrant.Port,
			APIKey:     cfg.Vector.Qdrant.APIKey,
			UseTLS:     cfg.Vector.Qdrant.UseTLS,
			Collection: cfg.Vector.Collection,
			Dimension:  cfg.Vector.Dimension,
		})
	case "milvus":
		return milvus.NewStore(context.Background(), cfg.Vector.Milvus.Endpoint, cfg.Vector.Collection, cfg.Vector.Dimension)
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Vector.Backend)
	}
}
