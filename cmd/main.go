package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/veripack/veripack-backend/internal/config"
	"github.com/veripack/veripack-backend/internal/handlers"
	"github.com/veripack/veripack-backend/internal/logger"
	"github.com/veripack/veripack-backend/internal/observability"
	"github.com/veripack/veripack-backend/internal/server"
	"github.com/veripack/veripack-backend/internal/services"
	"github.com/veripack/veripack-backend/internal/sse"
	"github.com/veripack/veripack-backend/internal/store"
	"github.com/veripack/veripack-backend/internal/utils"
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

	// Config
	log.Info("Loading configuration from main...")
	cfg, err := config.Load(log)
	if err != nil {
		log.Fatal("Config load failed", "error", err)
	}

	// Tracing
	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "veripack-backend",
		Environment: cfg.Server.Mode,
		Version:     utils.GetEnv("SERVICE_VERSION", "dev", log),
	})
	if otelShutdown != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(ctx)
		}()
	}

	// Store
	log.Info("Setting up store from main...", "backend", cfg.Store.Backend)
	st, err := store.New(cfg.Store, log)
	if err != nil {
		log.Fatal("Store init failed", "error", err)
	}

	// SSE
	log.Info("Setting up SSE hub now...")
	hub := sse.NewHub(log)

	// Services
	log.Info("Setting up services from main...")
	genai := services.NewGenAIClient(log)
	resolver := services.NewContentResolver(log)
	transcripts := services.NewTranscriptSource(log)

	blueprintSvc, err := services.NewBlueprintService(log, genai)
	if err != nil {
		log.Fatal("Blueprint service init failed", "error", err)
	}
	noteSvc, err := services.NewNoteService(log, genai)
	if err != nil {
		log.Fatal("Note service init failed", "error", err)
	}
	questionSvc, err := services.NewQuestionService(log, genai)
	if err != nil {
		log.Fatal("Question service init failed", "error", err)
	}
	researchSvc, err := services.NewResearchService(log, genai)
	if err != nil {
		log.Fatal("Research service init failed", "error", err)
	}
	storyboardSvc, err := services.NewStoryboardService(log, st)
	if err != nil {
		log.Fatal("Storyboard service init failed", "error", err)
	}
	vaultSvc, err := services.NewVaultService(log, st)
	if err != nil {
		log.Fatal("Vault service init failed", "error", err)
	}
	pipelineSvc, err := services.NewPipelineService(log, st, hub, resolver, transcripts, blueprintSvc, noteSvc, questionSvc, researchSvc, storyboardSvc, vaultSvc)
	if err != nil {
		log.Fatal("Pipeline service init failed", "error", err)
	}
	masterySvc, err := services.NewMasteryService(log, st)
	if err != nil {
		log.Fatal("Mastery service init failed", "error", err)
	}
	practiceSvc, err := services.NewPracticeService(st)
	if err != nil {
		log.Fatal("Practice service init failed", "error", err)
	}
	remediationSvc, err := services.NewRemediationService(log, st, genai)
	if err != nil {
		log.Fatal("Remediation service init failed", "error", err)
	}
	scheduleSvc, err := services.NewScheduleService(st)
	if err != nil {
		log.Fatal("Schedule service init failed", "error", err)
	}
	coachSvc, err := services.NewCoachService(log, st, genai, researchSvc)
	if err != nil {
		log.Fatal("Coach service init failed", "error", err)
	}

	// Handlers
	log.Info("Setting up handlers from main...")
	router := server.NewRouter(server.RouterConfig{
		ServerConfig:    cfg.Server,
		JobsHandler:     handlers.NewJobsHandler(log, pipelineSvc, cfg.Models),
		StatusHandler:   handlers.NewStatusHandler(log, st, hub),
		PacksHandler:    handlers.NewPacksHandler(log, st, scheduleSvc),
		VaultHandler:    handlers.NewVaultHandler(log, vaultSvc),
		PracticeHandler: handlers.NewPracticeHandler(log, practiceSvc, masterySvc, remediationSvc, cfg.Models),
		CoachHandler:    handlers.NewCoachHandler(log, coachSvc, cfg.Models),
	})

	addr := ":" + cfg.Server.Port
	log.Info("Starting server", "addr", addr, "mode", cfg.Server.Mode)
	if err := router.Run(addr); err != nil {
		log.Fatal("Server exited", "error", err)
	}
}
