package pipeline

import (
	"context"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/wx-station-etl/internal/domain"
	"github.com/couchcryptid/wx-station-etl/internal/observability"
)

// Aggregator recomputes annual statistics from the record store. Work is
// partitioned by station: each station's years are independent and are
// replaced in a single store call, so a station's stats are either all
// updated or left as they were.
type Aggregator struct {
	reader    ObservationReader
	writer    StatWriter
	publisher StatPublisher
	logger    *slog.Logger
	metrics   *observability.Metrics
	workers   int
}

// NewAggregator creates an Aggregator. Pass a nil publisher to skip
// downstream publication.
func NewAggregator(reader ObservationReader, writer StatWriter, publisher StatPublisher, logger *slog.Logger, metrics *observability.Metrics, workers int) *Aggregator {
	if workers < 1 {
		workers = 1
	}
	return &Aggregator{
		reader:    reader,
		writer:    writer,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
		workers:   workers,
	}
}

// Run recomputes every station's annual statistics. On error the returned
// report still counts the stations that were committed before the failure.
func (a *Aggregator) Run(ctx context.Context) (AggregateReport, error) {
	report := AggregateReport{RunID: uuid.NewString(), StartedAt: clock.Now()}
	logger := a.logger.With("run_id", report.RunID)

	a.metrics.PipelineRunning.WithLabelValues("aggregate").Set(1)
	defer a.metrics.PipelineRunning.WithLabelValues("aggregate").Set(0)

	stations, err := a.reader.Stations(ctx)
	if err != nil {
		return report, &domain.StoreError{Op: "list stations", Err: err}
	}
	logger.Info("aggregation started", "stations", len(stations), "workers", a.workers)

	results := make([]AggregateReport, len(stations))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, station := range stations {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := a.aggregateStation(gctx, logger, report.RunID, station)
			results[i] = res
			return err
		})
	}
	runErr := g.Wait()
	if runErr == nil {
		runErr = ctx.Err()
	}

	for _, res := range results {
		report = report.Merge(res)
	}
	report.FinishedAt = clock.Now()
	a.metrics.RunDuration.WithLabelValues("aggregate").Observe(report.Duration().Seconds())

	logger.Info("aggregation finished",
		"stations", report.Stations,
		"stats_written", report.StatsWritten,
		"publish_errors", report.PublishErrors,
		"duration", report.Duration(),
	)
	return report, runErr
}

// aggregateStation scans one station, replaces its stats, and publishes them.
func (a *Aggregator) aggregateStation(ctx context.Context, logger *slog.Logger, runID, station string) (AggregateReport, error) {
	years := make(map[int]*domain.YearAccumulator)
	for obs, err := range a.reader.ObservationsForStation(ctx, station) {
		if err != nil {
			return AggregateReport{}, &domain.StoreError{Op: "scan " + station, Err: err}
		}
		acc, ok := years[obs.Year()]
		if !ok {
			acc = domain.NewYearAccumulator(station, obs.Year())
			years[obs.Year()] = acc
		}
		acc.Add(obs)
	}
	if len(years) == 0 {
		return AggregateReport{}, nil
	}

	stats := make([]domain.AnnualStat, 0, len(years))
	for _, acc := range years {
		stats = append(stats, acc.Stat())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Year < stats[j].Year })

	if err := a.writer.ReplaceAnnualStats(ctx, stats); err != nil {
		return AggregateReport{}, &domain.StoreError{Op: "replace stats " + station, Err: err}
	}
	a.metrics.StationsAggregated.Inc()
	a.metrics.StatsWritten.Add(float64(len(stats)))
	logger.Debug("station aggregated", "station", station, "years", len(stats))

	res := AggregateReport{Stations: 1, StatsWritten: len(stats)}
	if a.publisher != nil {
		if err := a.publisher.PublishStats(ctx, runID, stats); err != nil {
			a.metrics.PublishErrors.Inc()
			res.PublishErrors = 1
			logger.Warn("publish stats failed", "station", station, "error", err)
		}
	}
	return res, nil
}
