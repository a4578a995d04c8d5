// krai runs the document processing pipeline: an HTTP API for upload and
// status/retry, plus the worker pool that drains the processing queue and
// the retention sweep that keeps system tables bounded.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/krai-project/krai/pkg/aiservice"
	"github.com/krai-project/krai/pkg/api"
	"github.com/krai-project/krai/pkg/config"
	"github.com/krai-project/krai/pkg/database"
	"github.com/krai-project/krai/pkg/idempotency"
	"github.com/krai-project/krai/pkg/metrics"
	"github.com/krai-project/krai/pkg/models"
	"github.com/krai-project/krai/pkg/objectstore"
	"github.com/krai-project/krai/pkg/pipeline"
	"github.com/krai-project/krai/pkg/processor"
	"github.com/krai-project/krai/pkg/retry"
	"github.com/krai-project/krai/pkg/stages/classification"
	"github.com/krai-project/krai/pkg/stages/embedding"
	"github.com/krai-project/krai/pkg/stages/image"
	"github.com/krai-project/krai/pkg/stages/link"
	"github.com/krai-project/krai/pkg/stages/metadata"
	"github.com/krai-project/krai/pkg/stages/search"
	"github.com/krai-project/krai/pkg/stages/storage"
	"github.com/krai-project/krai/pkg/stages/structured"
	"github.com/krai-project/krai/pkg/stages/text"
	"github.com/krai-project/krai/pkg/stages/upload"
	"github.com/krai-project/krai/pkg/stagetracker"
	"github.com/krai-project/krai/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: could not load %s: %v", envPath, err)
		log.Printf("Continuing with existing environment variables...")
	} else {
		log.Printf("Loaded environment from %s", envPath)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	ginMode := getEnv("GIN_MODE", "release")
	gin.SetMode(ginMode)

	logger := slog.Default()
	logger.Info("starting krai", "version", version.Full(), "http_port", httpPort, "config_dir", *configDir)

	ctx := context.Background()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		log.Fatalf("failed to initialize configuration: %v", err)
	}

	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("failed to load database config: %v", err)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer dbClient.Close()
	logger.Info("connected to database, migrations applied")

	objectStoreCfg := objectstore.LoadConfigFromEnv()
	objectStore, err := objectstore.New(ctx, objectStoreCfg)
	if err != nil {
		log.Fatalf("failed to connect to object store: %v", err)
	}

	aiServiceCfg := aiservice.LoadConfigFromEnv()
	aiService := aiservice.New(aiServiceCfg)

	reg := prometheus.NewRegistry()
	metricsCollector := metrics.New(dbClient.Pool, reg, logger)

	idemChecker := idempotency.NewChecker(dbClient.Pool)
	retryPolicies := retry.NewPolicyStore(dbClient.Pool)
	errorStore := retry.NewDBStore(dbClient.Pool)
	orchestrator := retry.NewOrchestrator(dbClient.Pool, errorStore, retryPolicies, logger)

	proc := processor.New(idemChecker, orchestrator, retryPolicies, errorStore, metricsCollector, logger, version.AppName)
	tracker := stagetracker.NewTracker(dbClient.Pool, logger)
	queueStore := pipeline.NewQueueStore(dbClient.Pool)

	catalog := classification.NewDBCatalog(dbClient.Pool)

	textCfg := text.DefaultConfig()
	textCfg.AllowShortChunks = getEnv("DEBUG_ALLOW_SHORT_CHUNKS", "false") == "true"

	stages := map[models.StageName]processor.Stage{
		models.StageUpload:         upload.New(dbClient.Pool, logger),
		models.StageText:           text.New(dbClient.Pool, textCfg),
		models.StageImage:          image.New(image.DefaultConfig(), aiService, logger),
		models.StageClassification: classification.New(catalog, aiService),
		models.StageMetadata:       metadata.New(dbClient.Pool),
		models.StageStorage:        storage.New(objectStore, dbClient.Pool),
		models.StageEmbedding:      embedding.New(aiService, dbClient.Pool, aiServiceCfg.EmbeddingModel),
		models.StageSearch:         search.New(dbClient.Pool),
		models.StageLink:           link.New(dbClient.Pool, true),
		models.StageStructured:     structured.New(dbClient.Pool, logger),
	}

	pl := pipeline.New(stages, proc, tracker, queueStore, logger)
	pl.RegisterWithOrchestrator(orchestrator)

	podID := getEnv("POD_NAME", hostnameOrDefault())
	workerPool := pipeline.NewWorkerPool(podID, queueStore, pl, cfg.Pipeline, logger)
	if err := workerPool.Start(ctx); err != nil {
		log.Fatalf("failed to start worker pool: %v", err)
	}
	defer workerPool.Stop()

	retentionService := pipeline.NewRetentionService(dbClient.Pool, cfg.Retention, logger)
	retentionService.Start(ctx)
	defer retentionService.Stop()

	server := api.NewServer(dbClient.Pool, queueStore, pl, objectStore, aiService, logger)
	server.Engine().GET("/metrics", gin.WrapH(metricsCollector.Handler()))

	logger.Info("http server listening", "port", httpPort)
	if err := server.Start(":" + httpPort); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func hostnameOrDefault() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "krai-worker"
	}
	return h
}
