package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/wx-station-etl/internal/domain"
	"github.com/couchcryptid/wx-station-etl/internal/observability"
)

var errInvalidEncoding = errors.New("file is not valid UTF-8")

// Ingestor loads station files into the record store. Files are processed by
// a bounded pool of workers, each file in its own store batch.
type Ingestor struct {
	source  FileSource
	store   ObservationWriter
	logger  *slog.Logger
	metrics *observability.Metrics
	workers int
}

// NewIngestor creates an Ingestor. workers below 1 means one worker.
func NewIngestor(source FileSource, store ObservationWriter, logger *slog.Logger, metrics *observability.Metrics, workers int) *Ingestor {
	if workers < 1 {
		workers = 1
	}
	return &Ingestor{
		source:  source,
		store:   store,
		logger:  logger,
		metrics: metrics,
		workers: workers,
	}
}

// Run ingests every file and returns the combined report.
//
// A file that cannot be opened or read, or whose rows the store rejects, is
// rolled back and counted as failed while the other files continue. Store
// failures are also returned, joined, alongside the report. The run stops
// early only when the context is cancelled or the store cannot start a batch;
// files committed before that point stay committed.
func (in *Ingestor) Run(ctx context.Context, files []StationFile) (IngestReport, error) {
	report := IngestReport{RunID: uuid.NewString(), StartedAt: clock.Now()}
	logger := in.logger.With("run_id", report.RunID)
	logger.Info("ingestion started", "files", len(files), "workers", in.workers)

	in.metrics.PipelineRunning.WithLabelValues("ingest").Set(1)
	defer in.metrics.PipelineRunning.WithLabelValues("ingest").Set(0)

	// One slot per file; workers never share counters.
	results := make([]FileResult, len(files))
	done := make([]bool, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.workers)
	for i, f := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := in.ingestFile(gctx, logger, f)
			results[i], done[i] = res, true
			return err
		})
	}
	runErr := g.Wait()
	if runErr == nil {
		runErr = ctx.Err()
	}

	var storeErrs []error
	for i, res := range results {
		if !done[i] {
			continue
		}
		report = report.Merge(res.Report())
		var serr *domain.StoreError
		if errors.As(res.Err, &serr) {
			storeErrs = append(storeErrs, fmt.Errorf("%s: %w", files[i].Path, res.Err))
		}
	}
	report.FinishedAt = clock.Now()
	in.metrics.RunDuration.WithLabelValues("ingest").Observe(report.Duration().Seconds())

	logger.Info("ingestion finished",
		"files_processed", report.FilesProcessed,
		"files_failed", report.FilesFailed,
		"files_skipped", len(files)-report.FilesProcessed,
		"inserted", report.Inserted,
		"duplicates", report.Duplicates,
		"parse_errors", report.ParseErrors,
		"duration", report.Duration(),
	)
	if report.ParseErrors > 0 {
		logger.Warn("some lines failed to parse, check logs above", "parse_errors", report.ParseErrors)
	}

	return report, errors.Join(append([]error{runErr}, storeErrs...)...)
}

// ingestFile processes one station file inside one store batch. The returned
// error is reserved for conditions that must stop the whole run; per-file
// failures are reported through FileResult.Err.
func (in *Ingestor) ingestFile(ctx context.Context, logger *slog.Logger, f StationFile) (FileResult, error) {
	start := clock.Now()
	logger = logger.With("station", f.Station, "path", f.Path)
	defer func() {
		in.metrics.FilesProcessed.Inc()
		in.metrics.FileDuration.Observe(clock.Since(start).Seconds())
	}()

	batch, err := in.store.BeginBatch(ctx)
	if err != nil {
		serr := &domain.StoreError{Op: "begin batch", Err: err}
		in.metrics.FileErrors.WithLabelValues("store").Inc()
		logger.Error("cannot start store batch, stopping run", "error", err)
		return FileResult{Failed: true}, serr
	}

	res, ferr := in.loadFile(ctx, logger, f, batch)
	if ferr == nil {
		if err := batch.Commit(); err != nil {
			ferr = &domain.StoreError{Op: "commit", Err: err}
		}
	}
	if ferr == nil {
		in.metrics.ObservationsInserted.Add(float64(res.Inserted))
		in.metrics.ObservationDuplicates.Add(float64(res.Duplicates))
		in.metrics.ParseErrors.Add(float64(res.ParseErrors))
		logger.Debug("file ingested",
			"inserted", res.Inserted,
			"duplicates", res.Duplicates,
			"parse_errors", res.ParseErrors,
		)
		return res, nil
	}

	if err := batch.Rollback(); err != nil {
		logger.Warn("rollback failed", "error", err)
	}
	if ctx.Err() != nil {
		return FileResult{Failed: true}, ctx.Err()
	}

	kind := "store"
	var aerr *domain.FileAccessError
	if errors.As(ferr, &aerr) {
		kind = "access"
	}
	in.metrics.FileErrors.WithLabelValues(kind).Inc()
	logger.Error("failed to process file", "kind", kind, "error", ferr)
	return FileResult{Failed: true, Err: ferr}, nil
}

// loadFile streams one file through the parser into batch.
func (in *Ingestor) loadFile(ctx context.Context, logger *slog.Logger, f StationFile, batch ObservationBatch) (FileResult, error) {
	rc, err := in.source.Open(ctx, f)
	if err != nil {
		return FileResult{}, &domain.FileAccessError{Path: f.Path, Err: err}
	}
	defer func() {
		if err := rc.Close(); err != nil {
			logger.Warn("close station file", "error", err)
		}
	}()

	var readErr error
	lines := readLines(bufio.NewReader(rc), &readErr)

	var res FileResult
	for p := range domain.Parse(f.Station, lines) {
		if p.Err != nil {
			res.ParseErrors++
			logger.Warn("skipping invalid line", "line", p.Line, "error", p.Err)
			continue
		}
		err := batch.Insert(ctx, p.Observation)
		switch {
		case err == nil:
			res.Inserted++
		case errors.Is(err, domain.ErrDuplicateObservation):
			res.Duplicates++
		default:
			return FileResult{}, &domain.StoreError{Op: "insert", Err: err}
		}
	}
	if readErr != nil {
		return FileResult{}, &domain.FileAccessError{Path: f.Path, Err: readErr}
	}
	return res, nil
}

// readLines adapts a reader to a line sequence. A read failure or a line that
// is not valid UTF-8 ends the sequence and is stored in *errp. Lines longer
// than domain.MaxLineLength are drained and yielded truncated so the parser
// rejects them without losing the rest of the file.
func readLines(r *bufio.Reader, errp *error) iter.Seq[string] {
	return func(yield func(string) bool) {
		for {
			line, truncated, err := readLine(r)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					*errp = err
				}
				return
			}
			if !truncated && !utf8.ValidString(line) {
				*errp = errInvalidEncoding
				return
			}
			if !yield(line) {
				return
			}
		}
	}
}

// readLine returns the next line without its terminator, keeping at most
// domain.MaxLineLength+1 bytes of it.
func readLine(r *bufio.Reader) (string, bool, error) {
	var (
		buf       []byte
		truncated bool
	)
	for {
		frag, more, err := r.ReadLine()
		if err != nil {
			return "", false, err
		}
		if !truncated {
			buf = append(buf, frag...)
			if len(buf) > domain.MaxLineLength {
				buf = buf[:domain.MaxLineLength+1]
				truncated = true
			}
		}
		if !more {
			return string(buf), truncated, nil
		}
	}
}
