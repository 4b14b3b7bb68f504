package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/wx-station-etl/internal/domain"
)

var errDateFormat = errors.New("date must be in YYYY-MM-DD format")

// observationJSON is an observation in standard units.
type observationJSON struct {
	ID            int64    `json:"id,omitempty"`
	StationID     string   `json:"station_id"`
	Date          string   `json:"date"`
	MaxTemp       *float64 `json:"max_temp"`
	MinTemp       *float64 `json:"min_temp"`
	Precipitation *float64 `json:"precipitation"`
}

type pagination struct {
	Page         int `json:"page"`
	PageSize     int `json:"page_size"`
	TotalRecords int `json:"total_records"`
	TotalPages   int `json:"total_pages"`
}

type pageResponse[T any] struct {
	Data       []T        `json:"data"`
	Pagination pagination `json:"pagination"`
}

func newPageResponse[T any](data []T, page domain.Page, total int) pageResponse[T] {
	return pageResponse[T]{
		Data: data,
		Pagination: pagination{
			Page:         page.Number,
			PageSize:     page.Size,
			TotalRecords: total,
			TotalPages:   page.TotalPages(total),
		},
	}
}

func (s *Server) handleObservations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := s.pageParams(q)

	f := domain.ObservationFilter{StationID: q.Get("station_id")}
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{
		{"date", &f.Date},
		{"start_date", &f.From},
		{"end_date", &f.To},
	} {
		d, err := parseDate(q.Get(p.name))
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("%s: %v", p.name, err))
			return
		}
		*p.dst = d
	}

	obs, total, err := s.store.QueryObservations(r.Context(), f, page)
	if err != nil {
		s.logger.Error("query observations", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	data := make([]observationJSON, len(obs))
	for i, o := range obs {
		data[i] = observationJSON{
			ID:            o.ID,
			StationID:     o.StationID,
			Date:          o.Date.Format(time.DateOnly),
			MaxTemp:       domain.ToUnits(o.MaxTemp),
			MinTemp:       domain.ToUnits(o.MinTemp),
			Precipitation: domain.ToUnits(o.Precipitation),
		}
	}
	writeJSON(w, http.StatusOK, newPageResponse(data, page, total))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := s.pageParams(q)

	f := domain.StatFilter{StationID: q.Get("station_id")}
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"year", &f.Year},
		{"start_year", &f.FromYear},
		{"end_year", &f.ToYear},
	} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("%s: must be an integer year", p.name))
			return
		}
		*p.dst = n
	}

	stats, total, err := s.store.QueryAnnualStats(r.Context(), f, page)
	if err != nil {
		s.logger.Error("query annual stats", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if stats == nil {
		stats = []domain.AnnualStat{}
	}
	for i := range stats {
		stats[i].AvgMaxTemp = domain.Round2(stats[i].AvgMaxTemp)
		stats[i].AvgMinTemp = domain.Round2(stats[i].AvgMinTemp)
		stats[i].TotalPrecipitation = domain.Round2(stats[i].TotalPrecipitation)
	}
	writeJSON(w, http.StatusOK, newPageResponse(stats, page, total))
}

// pageParams reads page and page_size, falling back to defaults for values
// that are missing, malformed, or out of range.
func (s *Server) pageParams(q url.Values) domain.Page {
	page := domain.Page{Number: 1, Size: s.limits.Default}
	if n, err := strconv.Atoi(q.Get("page")); err == nil && n > 1 {
		page.Number = min(n, domain.MaxPageNumber)
	}
	if n, err := strconv.Atoi(q.Get("page_size")); err == nil && n >= 1 {
		page.Size = min(n, s.limits.Max)
	}
	return page
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, errDateFormat
	}
	return d, nil
}
