package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wx_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingestion and aggregation pipelines.
type Metrics struct {
	// Ingestion metrics.
	FilesProcessed        prometheus.Counter
	FileErrors            *prometheus.CounterVec // labels: kind={access,store}
	ObservationsInserted  prometheus.Counter
	ObservationDuplicates prometheus.Counter
	ParseErrors           prometheus.Counter

	// Aggregation metrics.
	StationsAggregated prometheus.Counter
	StatsWritten       prometheus.Counter
	PublishErrors      prometheus.Counter

	PipelineRunning *prometheus.GaugeVec     // labels: pipeline={ingest,aggregate}
	RunDuration     *prometheus.HistogramVec // labels: pipeline={ingest,aggregate}
	FileDuration    prometheus.Histogram
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FilesProcessed,
		m.FileErrors,
		m.ObservationsInserted,
		m.ObservationDuplicates,
		m.ParseErrors,
		m.StationsAggregated,
		m.StatsWritten,
		m.PublishErrors,
		m.PipelineRunning,
		m.RunDuration,
		m.FileDuration,
	)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, so
// tests can build as many as they like without "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FilesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_processed_total",
			Help:      "Station files processed, including failed ones.",
		}),
		FileErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "file_errors_total",
			Help:      "Station files abandoned, by failure kind.",
		}, []string{"kind"}),
		ObservationsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_inserted_total",
			Help:      "Observations newly written to the record store.",
		}),
		ObservationDuplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observation_duplicates_total",
			Help:      "Observations skipped because the (station, date) key already existed.",
		}),
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_errors_total",
			Help:      "Station file lines skipped as unparseable.",
		}),
		StationsAggregated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stations_aggregated_total",
			Help:      "Stations whose annual statistics were recomputed.",
		}),
		StatsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stats_written_total",
			Help:      "Annual statistic rows inserted or replaced.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stat_publish_errors_total",
			Help:      "Failed attempts to publish annual statistics downstream.",
		}),
		PipelineRunning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while the named pipeline is running, 0 otherwise.",
		}, []string{"pipeline"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete pipeline run.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		}, []string{"pipeline"}),
		FileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "file_duration_seconds",
			Help:      "Duration of ingesting a single station file.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
	}
}
