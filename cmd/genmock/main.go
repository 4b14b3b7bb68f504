// Command genmock writes synthetic station files in the ingest format, plus a
// JSON fixture of the annual statistics those files should produce. It uses
// the ETL domain package to compute the fixture so the expected values match
// real pipeline behavior.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -out wx_data/mock \
//	  -stations 5 -start 1985-01-01 -days 730 \
//	  -stats-out data/mock/expected_stats.json
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/wx-station-etl/internal/domain"
)

// station climate parameters, all in tenths.
type climate struct {
	meanHigh  float64
	swing     float64
	spread    float64
	wetChance float64
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "directory to write station files into")
	statsOut := flag.String("stats-out", "", "optional output path for expected annual stats JSON")
	stations := flag.Int("stations", 3, "number of stations")
	start := flag.String("start", "1985-01-01", "first date (YYYY-MM-DD)")
	days := flag.Int("days", 365, "days per station")
	missing := flag.Float64("missing", 0.02, "probability that a reading is -9999")
	seed := flag.Uint64("seed", 1, "random seed")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	first, err := time.Parse(time.DateOnly, *start)
	if err != nil {
		return fmt.Errorf("invalid -start: %w", err)
	}
	if err := os.MkdirAll(*out, 0o755); err != nil {
		return err
	}

	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))
	var all []domain.Observation //nolint:prealloc // size depends on missing-value draws

	for i := range *stations {
		id := fmt.Sprintf("USC%08d", 110072+i*37)
		c := climate{
			meanHigh:  120 + rng.Float64()*120,
			swing:     100 + rng.Float64()*80,
			spread:    80 + rng.Float64()*60,
			wetChance: 0.2 + rng.Float64()*0.2,
		}
		obs := generate(rng, id, c, first, *days, *missing)
		if err := writeStationFile(filepath.Join(*out, id+".txt"), obs); err != nil {
			return fmt.Errorf("writing %s: %w", id, err)
		}
		all = append(all, obs...)
		log.Printf("%s: %d days", id, len(obs))
	}

	if *statsOut != "" {
		stats := domain.Summarize(all)
		for i := range stats {
			stats[i].AvgMaxTemp = domain.Round2(stats[i].AvgMaxTemp)
			stats[i].AvgMinTemp = domain.Round2(stats[i].AvgMinTemp)
			stats[i].TotalPrecipitation = domain.Round2(stats[i].TotalPrecipitation)
		}
		if err := writeJSON(*statsOut, stats); err != nil {
			return fmt.Errorf("writing stats fixture: %w", err)
		}
		log.Printf("wrote stats fixture: %s (%d station-years)", *statsOut, len(stats))
	}
	return nil
}

func generate(rng *rand.Rand, station string, c climate, first time.Time, days int, missing float64) []domain.Observation {
	obs := make([]domain.Observation, 0, days)
	for d := range days {
		date := first.AddDate(0, 0, d)
		season := math.Cos(2 * math.Pi * float64(date.YearDay()-200) / 365.25)
		high := int(math.Round(c.meanHigh + c.swing*season + rng.NormFloat64()*30))
		low := high - int(math.Round(c.spread+rng.Float64()*40))

		precip := 0
		if rng.Float64() < c.wetChance {
			precip = int(math.Round(rng.ExpFloat64() * 60))
		}

		o := domain.Observation{StationID: station, Date: date}
		if rng.Float64() >= missing {
			o.MaxTemp = domain.Int(high)
		}
		if rng.Float64() >= missing {
			o.MinTemp = domain.Int(low)
		}
		if rng.Float64() >= missing {
			o.Precipitation = domain.Int(precip)
		}
		obs = append(obs, o)
	}
	return obs
}

func writeStationFile(path string, obs []domain.Observation) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, o := range obs {
		fmt.Fprintf(w, "%s\t%5d\t%5d\t%5d\n",
			o.Date.Format("20060102"), reading(o.MaxTemp), reading(o.MinTemp), reading(o.Precipitation))
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func reading(v *int) int {
	if v == nil {
		return domain.MissingValue
	}
	return *v
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644) //nolint:gosec // fixture file
}
