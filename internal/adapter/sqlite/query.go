package sqlite

import (
	"context"
	"strings"

	"github.com/couchcryptid/wx-station-etl/internal/domain"
)

// QueryObservations returns one page of observations matching f, ordered by
// date then station, and the total number of matches.
func (s *Store) QueryObservations(ctx context.Context, f domain.ObservationFilter, page domain.Page) ([]domain.Observation, int, error) {
	var (
		where []string
		args  []any
	)
	if f.StationID != "" {
		where = append(where, "station_id = ?")
		args = append(args, f.StationID)
	}
	if !f.Date.IsZero() {
		where = append(where, "date = ?")
		args = append(args, f.Date.Format(dateLayout))
	}
	if !f.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, f.From.Format(dateLayout))
	}
	if !f.To.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, f.To.Format(dateLayout))
	}
	clause := whereClause(where)

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM weather_records"+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, station_id, date, max_temp, min_temp, precipitation
		FROM weather_records`+clause+`
		ORDER BY date, station_id
		LIMIT ? OFFSET ?`, append(args, page.Size, page.Offset())...)
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
	var (
		where []string
		args  []any
	)
	if f.StationID != "" {
		where = append(where, "station_id = ?")
		args = append(args, f.StationID)
	}
	if f.Year != 0 {
		where = append(where, "year = ?")
		args = append(args, f.Year)
	}
	if f.FromYear != 0 {
		where = append(where, "year >= ?")
		args = append(args, f.FromYear)
	}
	if f.ToYear != 0 {
		where = append(where, "year <= ?")
		args = append(args, f.ToYear)
	}
	clause := whereClause(where)

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM weather_stats"+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, station_id, year, avg_max_temp, avg_min_temp, total_precipitation
		FROM weather_stats`+clause+`
		ORDER BY year, station_id
		LIMIT ? OFFSET ?`, append(args, page.Size, page.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []domain.AnnualStat{}
	for rows.Next() {
		st, err := scanStat(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, st)
	}
	return out, total, rows.Err()
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}
