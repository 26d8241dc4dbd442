// Package main is the entry point for the Alchemiser strategy evaluation
// service. It parses and evaluates S-expression strategy files into target
// portfolio allocations, maintains the group return cache, and serves the
// HTTP API.
//
// Subcommands:
//
//	serve       run the HTTP server with scheduled background jobs (default)
//	evaluate    evaluate a strategy once and print the allocation
//	backfill    refresh the group return cache for a strategy
//	load        load OHLCV bars from a CSV file into the bar store
//	sync        download strategy files from S3
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/config"
	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/database"
	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/di"
	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/events"
	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/scheduler"
	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/server"
	"github.com/Josh-moreton/alchemiser-quant-sub019/internal/storage"
	"github.com/Josh-moreton/alchemiser-quant-sub019/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	command := "serve"
	args := os.Args[1:]
	if len(args) > 0 {
		command = args[0]
		args = args[1:]
	}

	switch command {
	case "serve":
		runServe(cfg, log)
	case "evaluate":
		runEvaluate(cfg, log, args)
	case "backfill":
		runBackfill(cfg, log, args)
	case "load":
		runLoad(cfg, log, args)
	case "sync":
		runSync(cfg, log)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		fmt.Fprintln(os.Stderr, "usage: alchemiser [serve|evaluate|backfill|load|sync]")
		os.Exit(2)
	}
}

// runServe starts the HTTP server and background jobs, blocking until a
// shutdown signal arrives.
func runServe(cfg *config.Config, log zerolog.Logger) {
	log.Info().Msg("Starting Alchemiser")

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	container.EventBus.Subscribe(events.StrategyEvaluationRequested, container.Engine.HandleEvent)

	sched := scheduler.New(log)
	if cfg.BackfillCron != "" {
		if err := sched.AddJob(cfg.BackfillCron, container.BackfillJob); err != nil {
			log.Error().Err(err).Msg("Failed to register backfill job")
		}
	}

	if cfg.S3Bucket != "" {
		syncer, err := storage.NewS3Syncer(
			context.Background(), cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.StrategiesDir, log)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize S3 syncer, strategy sync disabled")
		} else {
			syncJob := scheduler.NewStrategySyncJob(syncer, container.EventManager, cfg.S3Bucket, log)
			if err := sched.AddJob("@hourly", syncJob); err != nil {
				log.Error().Err(err).Msg("Failed to register strategy sync job")
			}
		}
	}

	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Log:         log,
		Config:      cfg,
		Engine:      container.Engine,
		Resolver:    container.Resolver,
		EventBus:    container.EventBus,
		BackfillJob: container.BackfillJob,
		Databases:   []*database.DB{container.BarsDB, container.CacheDB},
		Port:        cfg.Port,
		DevMode:     cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")
	container.EventManager.EmitTyped(events.SystemStatusChanged, "main", &events.SystemStatusChangedData{
		Status:    "running",
		Timestamp: events.Timestamp(time.Now()),
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")
	container.EventManager.EmitTyped(events.SystemStatusChanged, "main", &events.SystemStatusChangedData{
		Status:    "stopping",
		Timestamp: events.Timestamp(time.Now()),
	})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

// runEvaluate evaluates one strategy and prints the allocation as JSON
func runEvaluate(cfg *config.Config, log zerolog.Logger, args []string) {
	fs := flag.NewFlagSet("evaluate", flag.ExitOnError)
	strategyID := fs.String("strategy", cfg.DefaultStrategy, "strategy id or file path")
	asOfFlag := fs.String("as-of", "", "evaluation date (YYYY-MM-DD, default now)")
	_ = fs.Parse(args)

	asOf := time.Now().UTC()
	if *asOfFlag != "" {
		parsed, err := time.Parse("2006-01-02", *asOfFlag)
		if err != nil {
			log.Fatal().Str("as_of", *asOfFlag).Msg("Invalid as-of date, expected YYYY-MM-DD")
		}
		asOf = parsed
	}

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	result := container.Engine.EvaluateStrategy(*strategyID, "", asOf)

	output := map[string]interface{}{
		"correlation_id": result.Allocation.CorrelationID,
		"strategy_id":    result.StrategyID,
		"target_weights": result.Allocation.TargetWeights,
		"fallback":       result.Fallback,
		"success":        result.Trace.Success,
		"decisions":      len(result.Trace.DecisionPath),
	}
	if result.Trace.ErrorMessage != "" {
		output["error"] = result.Trace.ErrorMessage
	}

	encoded, _ := json.MarshalIndent(output, "", "  ")
	fmt.Println(string(encoded))
}

// runBackfill refreshes the group return cache once
func runBackfill(cfg *config.Config, log zerolog.Logger, args []string) {
	fs := flag.NewFlagSet("backfill", flag.ExitOnError)
	strategyID := fs.String("strategy", cfg.DefaultStrategy, "strategy id or file path")
	lookback := fs.Int("lookback", cfg.LookbackDays, "trading days to backfill")
	_ = fs.Parse(args)

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	job := scheduler.NewBackfillJob(
		container.Resolver, container.Backfiller, container.EventManager,
		*strategyID, *lookback, log)
	job.SetCheckpointer(container.CacheDB)
	if err := job.Run(); err != nil {
		log.Fatal().Err(err).Msg("Backfill failed")
	}

	log.Info().Msg("Backfill complete")
}

// runLoad loads OHLCV bars from a CSV file
func runLoad(cfg *config.Config, log zerolog.Logger, args []string) {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	csvPath := fs.String("csv", "", "path to CSV file (symbol,date,open,high,low,close,volume)")
	_ = fs.Parse(args)

	if *csvPath == "" {
		log.Fatal().Msg("The -csv flag is required")
	}

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	rows, err := container.BarStore.LoadCSV(*csvPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *csvPath).Msg("CSV load failed")
	}

	container.EventManager.EmitTyped(events.BarsLoaded, "main", &events.BarsLoadedData{
		Source: *csvPath,
		Rows:   rows,
	})
	log.Info().Int("rows", rows).Str("path", *csvPath).Msg("Bars loaded")
}

// runSync downloads strategy files from S3 once
func runSync(cfg *config.Config, log zerolog.Logger) {
	if cfg.S3Bucket == "" {
		log.Fatal().Msg("ALCHEMISER_S3_BUCKET is not configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	syncer, err := storage.NewS3Syncer(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.StrategiesDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize S3 syncer")
	}

	result, err := syncer.Sync(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Strategy sync failed")
	}

	log.Info().Int("downloaded", result.Downloaded).Int("skipped", result.Skipped).Msg("Strategy sync complete")
}
