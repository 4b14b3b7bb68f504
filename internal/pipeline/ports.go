package pipeline

import (
	"context"
	"io"
	"iter"

	"github.com/couchcryptid/wx-station-etl/internal/domain"
)

// StationFile is one per-station input file.
type StationFile struct {
	Station string
	Path    string
}

// FileSource opens station files for reading.
type FileSource interface {
	Open(ctx context.Context, f StationFile) (io.ReadCloser, error)
}

// ObservationBatch is a unit of work scoped to one station file. Insert is an
// atomic insert-if-absent: it returns domain.ErrDuplicateObservation when the
// (station, date) key already exists and leaves the stored row untouched.
type ObservationBatch interface {
	Insert(ctx context.Context, obs domain.Observation) error
	Commit() error
	Rollback() error
}

// ObservationWriter opens per-file batches against the record store.
type ObservationWriter interface {
	BeginBatch(ctx context.Context) (ObservationBatch, error)
}

// ObservationReader exposes the record store partitioned by station.
type ObservationReader interface {
	Stations(ctx context.Context) ([]string, error)
	// ObservationsForStation streams every observation of one station. The
	// error of a failed scan is yielded as the second value.
	ObservationsForStation(ctx context.Context, station string) iter.Seq2[domain.Observation, error]
}

// StatWriter replaces annual statistics. All stats passed in one call are
// written atomically, replacing existing rows with the same (station, year).
type StatWriter interface {
	ReplaceAnnualStats(ctx context.Context, stats []domain.AnnualStat) error
}

// StatPublisher forwards freshly written stats to downstream consumers.
type StatPublisher interface {
	PublishStats(ctx context.Context, runID string, stats []domain.AnnualStat) error
}
