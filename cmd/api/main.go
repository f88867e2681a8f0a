package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shaneweinberger/Finsight-V2.0/internal/api/handlers"
	"github.com/shaneweinberger/Finsight-V2.0/internal/api/middleware"
	"github.com/shaneweinberger/Finsight-V2.0/internal/config"
	infraBQ "github.com/shaneweinberger/Finsight-V2.0/internal/infra/bigquery"
	"github.com/shaneweinberger/Finsight-V2.0/internal/jobs"
	"github.com/shaneweinberger/Finsight-V2.0/internal/jobs/inmemory"
	"github.com/shaneweinberger/Finsight-V2.0/internal/logger"
	"github.com/shaneweinberger/Finsight-V2.0/internal/pipeline"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, err := infraBQ.NewBigQueryPipelineRepository(ctx, cfg.ProjectID, cfg.Dataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create pipeline repository")
	}
	defer repo.Close()

	classifier := pipeline.NewGeminiClassifier(cfg.GeminiAPIKey, cfg.Model)
	p := pipeline.New(repo, repo, repo, classifier, cfg.BatchSize, log)
	controller := pipeline.NewDrainController(p, repo, cfg.MaxDrainIterations, log)

	// Job infrastructure: async drains requested over HTTP run one at a
	// time on the queue's single worker.
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore)

	handler := func(ctx context.Context, job *jobs.PipelineJob) error {
		result, err := controller.Drain(ctx)
		if result != nil {
			job.Processed = result.Processed
			job.Deleted = result.Deleted
			job.Errored = result.Errored
		}
		return err
	}

	if err := jobQueue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	mux := http.NewServeMux()
	pipelineHandler := handlers.NewPipelineHandler(controller, jobQueue, jobStore, log)
	pipelineHandler.Register(mux)

	var root http.Handler = mux
	root = middleware.Logger(log)(root)
	root = middleware.Recovery(log)(root)
	root = middleware.RequestID(root)
	root = middleware.CORS(root)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("API server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during HTTP shutdown")
	}

	cancel()
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("API server exited")
}
