package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/couchcryptid/wx-station-etl/internal/domain"
	"github.com/couchcryptid/wx-station-etl/internal/pipeline"
)

// dateLayout is how observation dates are stored. Text in this layout sorts
// chronologically.
const dateLayout = time.DateOnly

const insertObservationSQL = `
	INSERT INTO weather_records (station_id, date, max_temp, min_temp, precipitation)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (station_id, date) DO NOTHING`

const upsertStatSQL = `
	INSERT INTO weather_stats (station_id, year, avg_max_temp, avg_min_temp, total_precipitation)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (station_id, year) DO UPDATE SET
		avg_max_temp        = excluded.avg_max_temp,
		avg_min_temp        = excluded.avg_min_temp,
		total_precipitation = excluded.total_precipitation`

// BeginBatch starts a transaction for one station file.
func (s *Store) BeginBatch(ctx context.Context) (pipeline.ObservationBatch, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, insertObservationSQL)
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	return &batch{tx: tx, insert: stmt}, nil
}

type batch struct {
	tx     *sql.Tx
	insert *sql.Stmt
}

// Insert adds obs unless its (station, date) already exists, in which case it
// returns domain.ErrDuplicateObservation and leaves the stored row untouched.
func (b *batch) Insert(ctx context.Context, obs domain.Observation) error {
	res, err := b.insert.ExecContext(ctx,
		obs.StationID, obs.Date.Format(dateLayout),
		obs.MaxTemp, obs.MinTemp, obs.Precipitation,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrDuplicateObservation
	}
	return nil
}

func (b *batch) Commit() error {
	_ = b.insert.Close()
	return b.tx.Commit()
}

func (b *batch) Rollback() error {
	_ = b.insert.Close()
	if err := b.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// Stations lists every station with at least one observation.
func (s *Store) Stations(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT station_id FROM weather_records ORDER BY station_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ObservationsForStation streams one station's observations in date order.
func (s *Store) ObservationsForStation(ctx context.Context, station string) iter.Seq2[domain.Observation, error] {
	return func(yield func(domain.Observation, error) bool) {
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, station_id, date, max_temp, min_temp, precipitation
			FROM weather_records
			WHERE station_id = ?
			ORDER BY date`, station)
		if err != nil {
			yield(domain.Observation{}, err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			obs, err := scanObservation(rows)
			if err != nil {
				yield(domain.Observation{}, err)
				return
			}
			if !yield(obs, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(domain.Observation{}, err)
		}
	}
}

// ReplaceAnnualStats upserts stats in a single transaction.
func (s *Store) ReplaceAnnualStats(ctx context.Context, stats []domain.AnnualStat) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, upsertStatSQL)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, st := range stats {
		if _, err := stmt.ExecContext(ctx,
			st.StationID, st.Year,
			st.AvgMaxTemp, st.AvgMinTemp, st.TotalPrecipitation,
		); err != nil {
			return fmt.Errorf("upsert %s %d: %w", st.StationID, st.Year, err)
		}
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanObservation(r scanner) (domain.Observation, error) {
	var (
		obs  domain.Observation
		date string
	)
	if err := r.Scan(&obs.ID, &obs.StationID, &date, &obs.MaxTemp, &obs.MinTemp, &obs.Precipitation); err != nil {
		return domain.Observation{}, err
	}
	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return domain.Observation{}, fmt.Errorf("stored date %q: %w", date, err)
	}
	obs.Date = d
	return obs, nil
}

func scanStat(r scanner) (domain.AnnualStat, error) {
	var st domain.AnnualStat
	err := r.Scan(&st.ID, &st.StationID, &st.Year, &st.AvgMaxTemp, &st.AvgMinTemp, &st.TotalPrecipitation)
	return st, err
}
