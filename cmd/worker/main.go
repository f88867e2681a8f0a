package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shaneweinberger/Finsight-V2.0/internal/config"
	infraBQ "github.com/shaneweinberger/Finsight-V2.0/internal/infra/bigquery"
	"github.com/shaneweinberger/Finsight-V2.0/internal/logger"
	"github.com/shaneweinberger/Finsight-V2.0/internal/pipeline"
)

// drainInterval is how often the worker polls the bronze backlog.
const drainInterval = 5 * time.Minute

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

	log.Info().Dur("interval", drainInterval).Msg("Worker started, draining on interval")

	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	drain := func() {
		result, err := controller.Drain(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Drain failed")
			return
		}
		log.Info().
			Int("cycles", result.Cycles).
			Int("processed", result.Processed).
			Int("deleted", result.Deleted).
			Int("errored", result.Errored).
			Msg("Drain complete")
	}

	drain()
	for {
		select {
		case <-ticker.C:
			drain()
		case <-quit:
			log.Info().Msg("Shutting down worker...")
			cancel()
			return
		}
	}
}
