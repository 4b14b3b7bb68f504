// Command validate checks the stores against the station files they were
// loaded from. It re-parses every file with the ETL domain package, then
// verifies that each parsed observation is stored, that per-station record
// counts match, and that the stored annual statistics equal the values
// recomputed from the files.
//
// Store settings come from the same environment variables as cmd/etl.
//
// Usage:
//
//	go run ./cmd/validate -data-dir wx_data
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sort"

	"github.com/couchcryptid/wx-station-etl/internal/adapter/filesource"
	httpadapter "github.com/couchcryptid/wx-station-etl/internal/adapter/http"
	"github.com/couchcryptid/wx-station-etl/internal/adapter/postgres"
	"github.com/couchcryptid/wx-station-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/wx-station-etl/internal/config"
	"github.com/couchcryptid/wx-station-etl/internal/domain"
)

// tolerance absorbs float rounding differences between backends.
const tolerance = 0.005

// queryStore is what validate reads from a backend.
type queryStore interface {
	httpadapter.QueryStore
	Close() error
}

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		os.Exit(1)
	}
	dataDir := flag.String("data-dir", cfg.DataDir, "directory containing station files")
	pattern := flag.String("pattern", cfg.FilePattern, "station file glob")
	flag.Parse()

	os.Exit(run(context.Background(), cfg, *dataDir, *pattern))
}

func run(ctx context.Context, cfg *config.Config, dataDir, pattern string) int {
	fmt.Println("=== Weather Station Data Validation ===")
	fmt.Println()

	// ── Load source files ──
	parsed, parseErrors, err := loadFiles(dataDir, pattern)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load station files: %v\n", err)
		return 1
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: open store: %v\n", err)
		return 1
	}
	defer st.Close()

	// ── Run validation phases ──
	phases := []*phase{
		validateRecordCounts(ctx, st, parsed),
		validateAnnualStats(ctx, st, domain.Summarize(parsed)),
	}

	// ── Report results ──
	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d parsed observations, %d unparseable lines\n", len(parsed), parseErrors)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func openStore(ctx context.Context, cfg *config.Config) (queryStore, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if cfg.StoreDriver == config.DriverPostgres {
		return postgres.Open(ctx, cfg.DatabaseURL, logger)
	}
	return sqlite.Open(ctx, sqlite.Options{Path: cfg.SQLitePath}, logger)
}

// ── Data loading ──

// loadFiles parses every station file, keeping the first observation seen for
// each (station, date) the way ingestion does.
func loadFiles(dir, pattern string) ([]domain.Observation, int, error) {
	files, err := filesource.NewDir(dir, pattern).List()
	if err != nil {
		return nil, 0, err
	}

	type key struct {
		station, date string
	}
	seen := make(map[key]bool)
	var (
		out      []domain.Observation
		badLines int
	)
	for _, f := range files {
		fh, err := os.Open(f.Path)
		if err != nil {
			return nil, 0, err
		}
		scanner := bufio.NewScanner(fh)
		lines := func(yield func(string) bool) {
			for scanner.Scan() {
				if !yield(scanner.Text()) {
					return
				}
			}
		}
		for p := range domain.Parse(f.Station, lines) {
			if p.Err != nil {
				badLines++
				continue
			}
			k := key{p.Observation.StationID, p.Observation.Date.Format("20060102")}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, p.Observation)
		}
		err = scanner.Err()
		fh.Close()
		if err != nil {
			return nil, 0, fmt.Errorf("read %s: %w", f.Path, err)
		}
		fmt.Printf("  loaded %-30s station %s\n", f.Path, f.Station)
	}
	return out, badLines, nil
}

// ── Phase 1: records ──

func validateRecordCounts(ctx context.Context, st queryStore, parsed []domain.Observation) *phase {
	p := &phase{name: "Phase 1: Record counts per station"}

	want := make(map[string]int)
	for _, o := range parsed {
		want[o.StationID]++
	}

	for _, station := range sortedKeys(want) {
		_, got, err := st.QueryObservations(ctx, domain.ObservationFilter{StationID: station}, domain.Page{Number: 1, Size: 1})
		if err != nil {
			p.errorf("%s: query: %v", station, err)
			continue
		}
		if got < want[station] {
			p.errorf("%s: store has %d records, files have %d", station, got, want[station])
		}
	}
	return p
}

// ── Phase 2: annual stats ──

func validateAnnualStats(ctx context.Context, st queryStore, expected []domain.AnnualStat) *phase {
	p := &phase{name: "Phase 2: Annual statistics"}

	for _, exp := range expected {
		rows, _, err := st.QueryAnnualStats(ctx, domain.StatFilter{StationID: exp.StationID, Year: exp.Year}, domain.Page{Number: 1, Size: 1})
		if err != nil {
			p.errorf("%s %d: query: %v", exp.StationID, exp.Year, err)
			continue
		}
		if len(rows) == 0 {
			p.errorf("%s %d: missing from store", exp.StationID, exp.Year)
			continue
		}
		got := rows[0]
		compare(p, exp, "avg_max_temp", exp.AvgMaxTemp, got.AvgMaxTemp)
		compare(p, exp, "avg_min_temp", exp.AvgMinTemp, got.AvgMinTemp)
		compare(p, exp, "total_precipitation", exp.TotalPrecipitation, got.TotalPrecipitation)
	}
	return p
}

func compare(p *phase, s domain.AnnualStat, field string, want, got *float64) {
	switch {
	case want == nil && got == nil:
	case want == nil || got == nil:
		p.errorf("%s %d %s: want %s, got %s", s.StationID, s.Year, field, format(want), format(got))
	case math.Abs(*want-*got) > tolerance:
		p.errorf("%s %d %s: want %.4f, got %.4f", s.StationID, s.Year, field, *want, *got)
	}
}

func format(v *float64) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%.4f", *v)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
