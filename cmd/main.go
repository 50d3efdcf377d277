package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/yungbote/cme-analysis-backend/internal/db"
	"github.com/yungbote/cme-analysis-backend/internal/handlers"
	"github.com/yungbote/cme-analysis-backend/internal/logger"
	"github.com/yungbote/cme-analysis-backend/internal/observability"
	"github.com/yungbote/cme-analysis-backend/internal/orchestrator"
	"github.com/yungbote/cme-analysis-backend/internal/pipeline"
	"github.com/yungbote/cme-analysis-backend/internal/realtime"
	"github.com/yungbote/cme-analysis-backend/internal/repos"
	"github.com/yungbote/cme-analysis-backend/internal/server"
	"github.com/yungbote/cme-analysis-backend/internal/services"
	"github.com/yungbote/cme-analysis-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Tracing
	shutdownOTel := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "cme-analysis",
		Environment: utils.GetEnv("APP_ENV", "development", log),
		Version:     utils.GetEnv("APP_VERSION", "dev", log),
	})
	if shutdownOTel != nil {
		defer func() { _ = shutdownOTel(context.Background()) }()
	}

	// Analysis config
	cfg, err := pipeline.LoadConfig(log)
	if err != nil {
		log.Error("Could not load analysis config", "error", err)
		os.Exit(1)
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	sessionRepo := repos.NewExamSessionRepo(thePG, log)
	stepRepo := repos.NewDeclaredStepRepo(thePG, log)
	actionRepo := repos.NewObservedActionRepo(thePG, log)
	flagRepo := repos.NewDemeanorFlagRepo(thePG, log)

	// Events
	var bus realtime.Bus
	if os.Getenv("REDIS_ADDR") != "" {
		bus, err = realtime.NewRedisBus(log)
		if err != nil {
			log.Warn("Could not init redis bus, stage events disabled", "error", err)
			bus = nil
		}
	}

	// Services
	log.Info("Setting up Services from main...")
	bucketService, err := services.NewBucketService(log)
	if err != nil {
		log.Error("Could not init BucketService", "error", err)
		os.Exit(1)
	}
	mediaTools := services.NewMediaToolsService(log)
	if err := mediaTools.AssertReady(context.Background()); err != nil {
		log.Warn("Media tooling not ready, clip extraction will fail", "error", err)
	}
	clipService := services.NewClipService(bucketService, mediaTools, log)

	var openaiClient services.OpenAIClient
	if os.Getenv("OPENAI_API_KEY") != "" {
		openaiClient, err = services.NewOpenAIClient(log)
		if err != nil {
			log.Warn("Could not init OpenAIClient, using lexical classification only", "error", err)
		}
	} else {
		log.Info("OPENAI_API_KEY not set, using lexical classification only")
	}

	transcriber, err := services.NewTranscriberService(log)
	if err != nil {
		log.Error("Could not init TranscriberService", "error", err)
		os.Exit(1)
	}
	defer transcriber.Close()

	actionAnalyzer, err := services.NewActionAnalyzerService(log)
	if err != nil {
		log.Error("Could not init ActionAnalyzerService", "error", err)
		os.Exit(1)
	}
	defer actionAnalyzer.Close()

	machine := orchestrator.NewMachine(sessionRepo, log)
	var events orchestrator.EventPublisher
	if bus != nil {
		events = bus
	}
	retry := orchestrator.DefaultRetryPolicy()
	retry.MinBackoff = utils.GetEnvAsDuration("RETRY_MIN_BACKOFF", retry.MinBackoff, log)
	retry.MaxBackoff = utils.GetEnvAsDuration("RETRY_MAX_BACKOFF", retry.MaxBackoff, log)
	runner := orchestrator.NewRunner(orchestrator.RunnerDeps{
		Sessions:         sessionRepo,
		Steps:            stepRepo,
		Actions:          actionRepo,
		Flags:            flagRepo,
		Machine:          machine,
		Transcriber:      transcriber,
		Classifier:       services.NewIntentClassifier(openaiClient, log),
		Scorer:           services.NewSentimentScorer(openaiClient, log),
		Clips:            clipService,
		Analyzer:         actionAnalyzer,
		Events:           events,
		Config:           cfg,
		Retry:            retry,
		MaxParallelClips: utils.GetEnvAsInt("MAX_PARALLEL_CLIPS", 4, log),
	}, log)

	sessionService := services.NewSessionService(sessionRepo, stepRepo, actionRepo, flagRepo, clipService, runner, log)

	// HTTP
	sessionHandler := handlers.NewSessionHandler(sessionService, log)
	router := server.NewRouter(server.RouterConfig{
		ServiceName:    "cme-analysis",
		AllowedOrigins: splitOrigins(utils.GetEnv("CORS_ALLOWED_ORIGINS", "", log)),
		SessionHandler: sessionHandler,
	})

	port := utils.GetEnv("PORT", "8080", log)
	log.Info("Starting server", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Server exited", "error", err)
	}
}

func splitOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
