// Command etl loads station weather files into the record store, computes
// annual statistics, and serves both over a read-only HTTP API.
//
// Usage:
//
//	etl ingest     load every station file in DATA_DIR
//	etl aggregate  recompute annual statistics
//	etl run        ingest, then aggregate (default)
//	etl serve      serve the query API with health and metrics endpoints
//
// All settings come from environment variables; see internal/config.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/wx-station-etl/internal/adapter/filesource"
	httpadapter "github.com/couchcryptid/wx-station-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/wx-station-etl/internal/adapter/kafka"
	"github.com/couchcryptid/wx-station-etl/internal/adapter/postgres"
	"github.com/couchcryptid/wx-station-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/wx-station-etl/internal/config"
	"github.com/couchcryptid/wx-station-etl/internal/observability"
	"github.com/couchcryptid/wx-station-etl/internal/pipeline"
)

// store is everything the commands need from a storage backend.
type store interface {
	pipeline.ObservationWriter
	pipeline.ObservationReader
	pipeline.StatWriter
	httpadapter.QueryStore
	CheckReadiness(ctx context.Context) error
	Close() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)

	command := "run"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, command, cfg, logger); err != nil {
		logger.Error("command failed", "command", command, "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, cfg *config.Config, logger *slog.Logger) error {
	switch command {
	case "ingest", "aggregate", "run", "serve":
	default:
		return fmt.Errorf("unknown command %q: expected ingest, aggregate, run, or serve", command)
	}

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("store close error", "error", err)
		}
	}()

	metrics := observability.NewMetrics()

	switch command {
	case "ingest":
		return ingest(ctx, cfg, st, logger, metrics)
	case "aggregate":
		return aggregate(ctx, cfg, st, logger, metrics)
	case "serve":
		return serve(ctx, cfg, st, logger)
	}

	ingestErr := ingest(ctx, cfg, st, logger, metrics)
	if ctx.Err() != nil {
		return ingestErr
	}
	// Files that committed are complete, so their stats are still worth computing.
	return errors.Join(ingestErr, aggregate(ctx, cfg, st, logger, metrics))
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		logger.Info("opening postgres store")
		return postgres.Open(ctx, cfg.DatabaseURL, logger)
	default:
		logger.Info("opening sqlite store", "path", cfg.SQLitePath)
		return sqlite.Open(ctx, sqlite.Options{Path: cfg.SQLitePath, LogSQL: cfg.DBLogSQL}, logger)
	}
}

func ingest(ctx context.Context, cfg *config.Config, st store, logger *slog.Logger, metrics *observability.Metrics) error {
	src := filesource.NewDir(cfg.DataDir, cfg.FilePattern)
	files, err := src.List()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		logger.Warn("no station files found", "dir", cfg.DataDir, "pattern", cfg.FilePattern)
	}

	_, err = pipeline.NewIngestor(src, st, logger, metrics, cfg.IngestWorkers).Run(ctx, files)
	return err
}

func aggregate(ctx context.Context, cfg *config.Config, st store, logger *slog.Logger, metrics *observability.Metrics) error {
	var publisher pipeline.StatPublisher
	if cfg.KafkaEnabled {
		writer := kafkaadapter.NewWriter(cfg, clockwork.NewRealClock(), logger)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		publisher = writer
		logger.Info("publishing stats to kafka", "topic", cfg.KafkaStatsTopic, "brokers", cfg.KafkaBrokers)
	}

	_, err := pipeline.NewAggregator(st, st, publisher, logger, metrics, cfg.AggregateWorkers).Run(ctx)
	return err
}

func serve(ctx context.Context, cfg *config.Config, st store, logger *slog.Logger) error {
	srv := httpadapter.NewServer(cfg.HTTPAddr, st, httpadapter.PageLimits{
		Default: cfg.DefaultPageSize,
		Max:     cfg.MaxPageSize,
	}, st, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
	return nil
}
