// Package postgres is the server-backed record and stats store, using a
// pgx connection pool.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couchcryptid/wx-station-etl/internal/adapter/migrate"
	"github.com/couchcryptid/wx-station-etl/internal/domain"
	"github.com/couchcryptid/wx-station-etl/internal/pipeline"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements the record store, the stats store, and the query
// contract on PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open connects to databaseURL, verifies the connection, and applies pending
// migrations.
func Open(ctx context.Context, databaseURL string, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	s := &Store{pool: pool, logger: logger}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close closes every pooled connection.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	all, err := migrate.Load(migrationsFS, "migrations")
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+migrate.TableName+` (
			version    TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	rows, err := s.pool.Query(ctx, "SELECT version FROM "+migrate.TableName)
	if err != nil {
		return fmt.Errorf("list applied migrations: %w", err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("list applied migrations: %w", err)
	}
	applied := make(map[string]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}

	for _, m := range migrate.Pending(all, applied) {
		err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.Body); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, "INSERT INTO "+migrate.TableName+" (version, name) VALUES ($1, $2)", m.Version, m.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("apply %s: %w", m, err)
		}
		s.logger.Info("migration applied", "version", m.Version, "name", m.Name)
	}
	return nil
}

// BeginBatch starts a transaction for one station file.
func (s *Store) BeginBatch(ctx context.Context) (pipeline.ObservationBatch, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &batch{ctx: ctx, tx: tx}, nil
}

type batch struct {
	// ctx is the ingesting run's context; Commit and Rollback use it.
	ctx context.Context
	tx  pgx.Tx
}

// Insert adds obs unless its (station, date) already exists.
func (b *batch) Insert(ctx context.Context, obs domain.Observation) error {
	tag, err := b.tx.Exec(ctx, `
		INSERT INTO weather_records (station_id, date, max_temp, min_temp, precipitation)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (station_id, date) DO NOTHING`,
		obs.StationID, obs.Date, obs.MaxTemp, obs.MinTemp, obs.Precipitation,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDuplicateObservation
	}
	return nil
}

func (b *batch) Commit() error {
	return b.tx.Commit(b.ctx)
}

func (b *batch) Rollback() error {
	// Rollback must reach the server even when the run was cancelled.
	err := b.tx.Rollback(context.WithoutCancel(b.ctx))
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

// Stations lists every station with at least one observation.
func (s *Store) Stations(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT station_id FROM weather_records ORDER BY station_id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// ObservationsForStation streams one station's observations in date order.
func (s *Store) ObservationsForStation(ctx context.Context, station string) iter.Seq2[domain.Observation, error] {
	return func(yield func(domain.Observation, error) bool) {
		rows, err := s.pool.Query(ctx, `
			SELECT id, station_id, date, max_temp, min_temp, precipitation
			FROM weather_records
			WHERE station_id = $1
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
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for _, st := range stats {
			b.Queue(`
				INSERT INTO weather_stats (station_id, year, avg_max_temp, avg_min_temp, total_precipitation)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (station_id, year) DO UPDATE SET
					avg_max_temp        = EXCLUDED.avg_max_temp,
					avg_min_temp        = EXCLUDED.avg_min_temp,
					total_precipitation = EXCLUDED.total_precipitation`,
				st.StationID, st.Year, st.AvgMaxTemp, st.AvgMinTemp, st.TotalPrecipitation,
			)
		}
		return tx.SendBatch(ctx, b).Close()
	})
}

// QueryObservations returns one page of observations matching f, ordered by
// date then station, and the total number of matches.
func (s *Store) QueryObservations(ctx context.Context, f domain.ObservationFilter, page domain.Page) ([]domain.Observation, int, error) {
	var w where
	if f.StationID != "" {
		w.add("station_id = $%d", f.StationID)
	}
	if !f.Date.IsZero() {
		w.add("date = $%d", f.Date)
	}
	if !f.From.IsZero() {
		w.add("date >= $%d", f.From)
	}
	if !f.To.IsZero() {
		w.add("date <= $%d", f.To)
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM weather_records"+w.clause(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query, args := w.paged(`
		SELECT id, station_id, date, max_temp, min_temp, precipitation
		FROM weather_records`, "date, station_id", page)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []domain.Observation{}
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, obs)
	}
	return out, total, rows.Err()
}

// QueryAnnualStats returns one page of annual stats matching f, ordered by
// year then station, and the total number of matches.
func (s *Store) QueryAnnualStats(ctx context.Context, f domain.StatFilter, page domain.Page) ([]domain.AnnualStat, int, error) {
	var w where
	if f.StationID != "" {
		w.add("station_id = $%d", f.StationID)
	}
	if f.Year != 0 {
		w.add("year = $%d", f.Year)
	}
	if f.FromYear != 0 {
		w.add("year >= $%d", f.FromYear)
	}
	if f.ToYear != 0 {
		w.add("year <= $%d", f.ToYear)
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM weather_stats"+w.clause(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query, args := w.paged(`
		SELECT id, station_id, year, avg_max_temp, avg_min_temp, total_precipitation
		FROM weather_stats`, "year, station_id", page)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []domain.AnnualStat{}
	for rows.Next() {
		var st domain.AnnualStat
		if err := rows.Scan(&st.ID, &st.StationID, &st.Year, &st.AvgMaxTemp, &st.AvgMinTemp, &st.TotalPrecipitation); err != nil {
			return nil, 0, err
		}
		out = append(out, st)
	}
	return out, total, rows.Err()
}

func scanObservation(rows pgx.Rows) (domain.Observation, error) {
	var obs domain.Observation
	err := rows.Scan(&obs.ID, &obs.StationID, &obs.Date, &obs.MaxTemp, &obs.MinTemp, &obs.Precipitation)
	return obs, err
}

// where builds a numbered-placeholder WHERE clause.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(format string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(format, len(w.args)))
}

func (w *where) clause() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func (w *where) paged(selectSQL, orderBy string, page domain.Page) (string, []any) {
	n := len(w.args)
	query := fmt.Sprintf("%s%s ORDER BY %s LIMIT $%d OFFSET $%d", selectSQL, w.clause(), orderBy, n+1, n+2)
	return query, append(append([]any{}, w.args...), page.Size, page.Offset())
}
