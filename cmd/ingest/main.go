package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shaneweinberger/Finsight-V2.0/internal/config"
	infraBQ "github.com/shaneweinberger/Finsight-V2.0/internal/infra/bigquery"
	"github.com/shaneweinberger/Finsight-V2.0/internal/ingest"
	"github.com/shaneweinberger/Finsight-V2.0/internal/logger"
)

func main() {
	log := logger.New()

	var (
		object  = flag.String("object", "", "GCS object name of the statement CSV (uses INGEST_BUCKET)")
		file    = flag.String("file", "", "Local statement CSV path (alternative to -object)")
		user    = flag.String("user", "", "Owning user id")
		account = flag.String("account", "debit", "Account label for the statement (e.g. debit, credit)")
	)
	flag.Parse()

	if *user == "" {
		log.Fatal().Msg("Error: -user is required")
	}
	if (*object == "") == (*file == "") {
		log.Fatal().Msg("Error: exactly one of -object or -file is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	var (
		data     []byte
		fileName string
	)
	switch {
	case *object != "":
		if cfg.IngestBucket == "" {
			log.Fatal().Msg("Error: INGEST_BUCKET must be set when using -object")
		}
		fileName = *object
		data, err = ingest.DownloadStatement(ctx, cfg.IngestBucket, *object)
		if err != nil {
			log.Fatal().Err(err).Msg("Download failed")
		}
	default:
		fileName = *file
		data, err = os.ReadFile(*file)
		if err != nil {
			log.Fatal().Err(err).Msg("Reading statement file failed")
		}
	}

	records, err := ingest.ParseStatementCSV(bytes.NewReader(data), *user, *account, fileName)
	if err != nil {
		log.Fatal().Err(err).Msg("Parsing statement CSV failed")
	}

	repo, err := infraBQ.NewBigQueryPipelineRepository(ctx, cfg.ProjectID, cfg.Dataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create pipeline repository")
	}
	defer repo.Close()

	if err := repo.InsertRawRecords(ctx, records); err != nil {
		log.Fatal().Err(err).Msg("Inserting raw records failed")
	}

	fmt.Printf("Ingested %d statement lines from %s\n", len(records), fileName)
}
