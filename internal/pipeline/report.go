package pipeline

import "time"

// FileResult is the outcome of ingesting one station file.
type FileResult struct {
	Inserted    int
	Duplicates  int
	ParseErrors int
	Failed      bool
	// Err is the file-level failure, a *domain.FileAccessError or
	// *domain.StoreError, when Failed is set.
	Err error
}

// IngestReport summarizes an ingestion run. Counts are combined with Merge,
// which is associative and commutative, so per-file results can be folded in
// any order.
type IngestReport struct {
	RunID          string    `json:"run_id"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	FilesProcessed int       `json:"files_processed"`
	FilesFailed    int       `json:"files_failed"`
	Inserted       int       `json:"inserted"`
	Duplicates     int       `json:"duplicates"`
	ParseErrors    int       `json:"parse_errors"`
}

// Merge returns the sum of two reports' counts. Identity and timestamps are
// taken from r.
func (r IngestReport) Merge(o IngestReport) IngestReport {
	r.FilesProcessed += o.FilesProcessed
	r.FilesFailed += o.FilesFailed
	r.Inserted += o.Inserted
	r.Duplicates += o.Duplicates
	r.ParseErrors += o.ParseErrors
	return r
}

// Report converts one file's result into a single-file report.
func (f FileResult) Report() IngestReport {
	r := IngestReport{
		FilesProcessed: 1,
		Inserted:       f.Inserted,
		Duplicates:     f.Duplicates,
		ParseErrors:    f.ParseErrors,
	}
	if f.Failed {
		r.FilesFailed = 1
	}
	return r
}

// Duration is the wall time of the run.
func (r IngestReport) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// AggregateReport summarizes an aggregation run.
type AggregateReport struct {
	RunID         string    `json:"run_id"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Stations      int       `json:"stations"`
	StatsWritten  int       `json:"stats_written"`
	PublishErrors int       `json:"publish_errors"`
}

// Merge sums the counts of two aggregate reports.
func (r AggregateReport) Merge(o AggregateReport) AggregateReport {
	r.Stations += o.Stations
	r.StatsWritten += o.StatsWritten
	r.PublishErrors += o.PublishErrors
	return r
}

// Duration is the wall time of the run.
func (r AggregateReport) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }
