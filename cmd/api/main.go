package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reelforge/reelforge/internal/adapters"
	"github.com/reelforge/reelforge/internal/api"
	"github.com/reelforge/reelforge/internal/artifactstore"
	"github.com/reelforge/reelforge/internal/assembly"
	"github.com/reelforge/reelforge/internal/config"
	"github.com/reelforge/reelforge/internal/jobstore"
	"github.com/reelforge/reelforge/internal/orchestrator"
	"github.com/reelforge/reelforge/internal/producer"
	"github.com/reelforge/reelforge/internal/queue"
)

func main() {
	log.Println("Starting Reelforge API...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	jobs, err := jobstore.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to job store: %v", err)
	}
	defer jobs.Close()
	log.Println("Connected to job store")

	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()
	log.Println("Connected to Redis admission queue")

	artifacts := artifactstore.New(cfg.ArtifactStoreURL, cfg.ArtifactStoreKey, cfg.ArtifactBucket)
	log.Println("Initialized artifact store")

	hub := orchestrator.NewHub()

	handler := api.NewHandler(jobs, artifacts, q, hub)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set — API is unprotected (dev mode)")
	}

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	var workerCancel context.CancelFunc
	if cfg.WorkerEnabled {
		log.Println("Worker pool enabled, starting background processing...")

		textPlanner := adapters.NewOpenAITextPlanner(cfg.OpenAIKey)

		var videoModel adapters.VideoModel
		if cfg.XAIEnabled && cfg.XAIAPIKey != "" {
			videoModel = adapters.NewXAIVideoModel(cfg.XAIAPIKey)
			log.Println("Video model: xAI Grok Imagine Video")
		} else if cfg.VeoEnabled {
			videoModel = adapters.NewVeoVideoModel(cfg.VeoAPIKey, cfg.VeoModel)
			log.Printf("Video model: Veo (%s)", cfg.VeoModel)
		} else {
			log.Fatal("no video model configured: set XAI_API_KEY or enable Veo")
		}

		var speechModel adapters.SpeechModel
		var ambientAudio adapters.AmbientAudioModel
		if cfg.ElevenLabsKey != "" {
			elevenLabs := adapters.NewElevenLabsSpeechModel(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID)
			speechModel = elevenLabs
			ambientAudio = elevenLabs
			log.Println("Speech model: ElevenLabs (background music/SFX enabled)")
		} else {
			speechModel = adapters.NewCartesiaSpeechModel(cfg.CartesiaKey, cfg.CartesiaURL, cfg.CartesiaVoiceID)
			log.Println("Speech model: Cartesia (legacy, no background music/SFX)")
		}

		var verification adapters.VerificationModel
		if cfg.VisionAPIKey != "" {
			verification = adapters.NewGeminiVerificationModel(cfg.VisionAPIKey)
			log.Println("Vision verification enabled")
		}

		mux, err := adapters.NewMuxTool(cfg.MuxTempDir)
		if err != nil {
			log.Fatalf("Failed to initialize mux tool: %v", err)
		}

		clipProducer := &producer.Producer{
			Artifacts:       artifacts,
			Jobs:            jobs,
			VideoModel:      videoModel,
			Mux:             mux,
			Verification:    verification,
			ClipGenTimeout:  time.Duration(cfg.ClipGenTimeoutSec) * time.Second,
			RetryBackoffCap: time.Duration(cfg.RetryBackoffCapSec) * time.Second,
		}

		assembler := &assembly.Assembler{
			Artifacts: artifacts,
			Jobs:      jobs,
			Mux:       mux,
			Speech:    speechModel,
			Ambient:   ambientAudio,
		}

		orch := &orchestrator.Orchestrator{
			Jobs:             jobs,
			Artifacts:        artifacts,
			Hub:              hub,
			TextPlanner:      textPlanner,
			Producer:         clipProducer,
			Assembler:        assembler,
			TargetSecPerClip: 7,
			PlanningTimeout:  time.Duration(cfg.PlanningTimeoutSec) * time.Second,
			JobWallClock:     time.Duration(cfg.JobWallClockTimeoutMin) * time.Minute,
		}

		pool := &orchestrator.WorkerPool{
			Orchestrator: orch,
			Queue:        q,
			LoadJob:      jobs.Load,
			Size:         cfg.MaxConcurrentJobs,
		}

		var workerCtx context.Context
		workerCtx, workerCancel = context.WithCancel(context.Background())

		if err := orchestrator.ResumeIncomplete(workerCtx, jobs, q.Admit); err != nil {
			log.Printf("failed to resume incomplete jobs: %v", err)
		}

		go pool.Run(workerCtx)
	}

	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	if workerCancel != nil {
		workerCancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
