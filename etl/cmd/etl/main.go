package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/arborlabs/shopetl/etl/pkg/config"
	"github.com/arborlabs/shopetl/etl/pkg/pipeline"
	"github.com/arborlabs/shopetl/etl/pkg/source"
	"github.com/arborlabs/shopetl/etl/pkg/staging"
	"github.com/arborlabs/shopetl/etl/pkg/warehouse"
	"github.com/arborlabs/shopetl/utils/pkg/logger"
	"github.com/arborlabs/shopetl/utils/pkg/retry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")

	// Commands
	seedSourceFlag := flag.Bool("seed-source", false, "Load the raw dataset CSVs into the operational Postgres store")
	extractStageFlag := flag.Bool("extract-stage", false, "Extract raw tables from Postgres and stage them as parquet in S3")
	transformLoadFlag := flag.Bool("transform-load", false, "Transform staged tables into the star schema and load the warehouse")

	// Options
	datasetDirFlag := flag.String("dataset-dir", "dataset", "Directory holding the raw dataset CSV files (for --seed-source)")
	chunkSizeFlag := flag.Int("chunk-size", config.DefaultChunkSize, "Warehouse insert chunk size in rows")
	maxConcurrencyFlag := flag.Int("max-concurrency", config.DefaultMaxConcurrency, "Maximum concurrent per-table warehouse loads")

	flag.Parse()

	log := logger.New(*verboseFlag)

	if !*seedSourceFlag && !*extractStageFlag && !*transformLoadFlag {
		return fmt.Errorf("no command given: use --seed-source, --extract-stage or --transform-load")
	}

	cfg := config.FromEnv()
	cfg.ChunkSize = *chunkSizeFlag
	cfg.MaxConcurrency = *maxConcurrencyFlag

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Credentials are validated for the requested command before any I/O.
	pcfg := pipeline.Config{
		Logger:         log,
		MaxConcurrency: cfg.MaxConcurrency,
	}

	if *seedSourceFlag || *extractStageFlag {
		if err := cfg.Source.Validate(); err != nil {
			return err
		}
	}
	if *extractStageFlag || *transformLoadFlag {
		if err := cfg.Staging.Validate(); err != nil {
			return err
		}
	}
	if *transformLoadFlag {
		if err := cfg.Warehouse.Validate(); err != nil {
			return err
		}
	}

	if *seedSourceFlag || *extractStageFlag {
		pool, err := source.NewPool(ctx, log, cfg.Source.DSN())
		if err != nil {
			return err
		}
		defer pool.Close()
		store, err := source.NewStore(source.StoreConfig{Logger: log, Pool: pool})
		if err != nil {
			return err
		}
		pcfg.Source = store
		pcfg.Seeder = store
	}

	if *extractStageFlag || *transformLoadFlag {
		api, err := staging.NewObjectAPI(ctx, cfg.Staging.Region)
		if err != nil {
			return err
		}
		store, err := staging.NewStore(staging.StoreConfig{
			Logger: log,
			Client: api,
			Bucket: cfg.Staging.Bucket,
			Prefix: cfg.Staging.Prefix,
			Retry:  retry.DefaultConfig(),
		})
		if err != nil {
			return err
		}
		pcfg.Staging = store
	}

	if *transformLoadFlag {
		client, err := warehouse.NewClient(ctx, log, cfg.Warehouse.Addr, cfg.Warehouse.Database, cfg.Warehouse.Username, cfg.Warehouse.Password, cfg.Warehouse.Secure)
		if err != nil {
			return err
		}
		defer client.Close()
		loader, err := warehouse.NewLoader(warehouse.LoaderConfig{
			Logger:    log,
			Client:    client,
			ChunkSize: cfg.ChunkSize,
			Retry:     retry.DefaultConfig(),
		})
		if err != nil {
			return err
		}
		pcfg.Loader = loader
	}

	p, err := pipeline.New(pcfg)
	if err != nil {
		return err
	}

	if *seedSourceFlag {
		if err := p.SeedSource(ctx, *datasetDirFlag); err != nil {
			return err
		}
	}
	if *extractStageFlag {
		if _, err := p.ExtractAndStage(ctx); err != nil {
			return err
		}
	}
	if *transformLoadFlag {
		if _, err := p.TransformAndLoad(ctx); err != nil {
			return err
		}
	}
	return nil
}
