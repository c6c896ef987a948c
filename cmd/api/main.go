package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/kehsibha/walter/internal/api"
	"github.com/kehsibha/walter/internal/config"
	"github.com/kehsibha/walter/internal/db"
	"github.com/kehsibha/walter/internal/ingest"
	"github.com/kehsibha/walter/internal/models"
	"github.com/kehsibha/walter/internal/queue"
	"github.com/kehsibha/walter/internal/services"
	"github.com/kehsibha/walter/internal/storage"
	"github.com/kehsibha/walter/internal/worker"
)

func main() {
	log.Println("Starting Walter API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	demoOwnerID, err := uuid.Parse(cfg.DemoOwnerID)
	if err != nil {
		log.Fatalf("Invalid DEMO_OWNER_ID: %v", err)
	}

	// Connect to database
	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	log.Println("Connected to database")

	// Redis is an optional wake-up channel; the worker polls regardless
	var q *queue.Queue
	if cfg.RedisURL != "" {
		q, err = queue.New(cfg.RedisURL)
		if err != nil {
			log.Printf("WARNING: Redis unavailable, falling back to interval polling: %v", err)
			q = nil
		} else {
			defer q.Close()
			log.Println("Connected to Redis queue")
		}
	}

	// Create API handler
	handler := api.NewHandler(database, q, demoOwnerID)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set — API is unprotected (dev mode)")
	}

	// Start HTTP server
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// Start worker if enabled
	var workerCtx context.Context
	var workerCancel context.CancelFunc
	if cfg.WorkerEnabled {
		log.Println("Worker enabled, starting background processing...")

		stor := storage.New(cfg.SupabaseURL, cfg.SupabaseServiceKey)
		log.Println("Initialized Supabase storage")

		// Initialize services
		exaSvc := services.NewExaService(cfg.ExaAPIKey)
		openaiSvc := services.NewOpenAIService(cfg.OpenAIKey, cfg.OpenAIModel)
		falSvc := services.NewFalService(cfg.FalKey)
		klingSvc := services.NewKlingService(falSvc, cfg.AnchorVoiceID, cfg.AnchorGender)
		ffmpegSvc := services.NewFFmpegService(cfg.TempDir)
		ingester := ingest.New(database, ingest.DefaultFeeds, cfg.MaxItemsPerFeed, cfg.FetchFullText)

		// Scene mode synthesizes a standalone voiceover track; anchor mode
		// never needs a speech service.
		var speechSvc services.SpeechService
		mode := models.PipelineMode(cfg.PipelineMode)
		if mode == models.ModeScene {
			speechSvc = services.NewElevenLabsService(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID, cfg.ElevenLabsModelID)
			log.Printf("Pipeline mode: scene (ElevenLabs voice: %s)", cfg.ElevenLabsVoiceID)
		} else {
			log.Printf("Pipeline mode: anchor (Kling voice: %s, presenter: %s)", cfg.AnchorVoiceID, cfg.AnchorGender)
		}

		redactor := services.NewRedactor(cfg.Secrets())

		// Create worker
		w := worker.New(database, q, ingester, exaSvc, openaiSvc, klingSvc, speechSvc, ffmpegSvc, stor, redactor, worker.Options{
			Mode:            mode,
			MaxTopics:       cfg.MaxTopics,
			ExaDays:         cfg.ExaDays,
			ExaNumResults:   cfg.ExaNumResults,
			MaxRSSArticles:  cfg.MaxRssArticles,
			PollInterval:    cfg.PollInterval,
			VideoBucket:     cfg.VideoBucket,
			ThumbnailBucket: cfg.ThumbnailBucket,
		})

		// Start worker in background
		workerCtx, workerCancel = context.WithCancel(context.Background())
		go w.Start(workerCtx)
	}

	// Start server in goroutine
	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Shutdown worker
	if workerCancel != nil {
		workerCancel()
	}

	// Shutdown HTTP server
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
