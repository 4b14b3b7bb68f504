package integration_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/wx-station-etl/internal/adapter/filesource"
	httpadapter "github.com/couchcryptid/wx-station-etl/internal/adapter/http"
	"github.com/couchcryptid/wx-station-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/wx-station-etl/internal/observability"
	"github.com/couchcryptid/wx-station-etl/internal/pipeline"
)

// TestSQLitePipelineEndToEnd runs ingest and aggregate against a file-backed
// SQLite store, then reads the results back through the HTTP API.
func TestSQLitePipelineEndToEnd(t *testing.T) {
	ctx := context.Background()
	dir := writeStationFiles(t, stationFiles)
	logger := discardLogger()
	metrics := observability.NewMetricsForTesting()

	store, err := sqlite.Open(ctx, sqlite.Options{Path: filepath.Join(t.TempDir(), "weather.db")}, logger)
	require.NoError(t, err)
	defer store.Close()

	src := filesource.NewDir(dir, "*.txt")
	files, err := src.List()
	require.NoError(t, err)
	require.Len(t, files, 2)

	ingestor := pipeline.NewIngestor(src, store, logger, metrics, 2)
	first, err := ingestor.Run(ctx, files)
	require.NoError(t, err)
	assert.Equal(t, 2, first.FilesProcessed)
	assert.Equal(t, 5, first.Inserted)
	assert.Equal(t, 1, first.Duplicates)
	assert.Equal(t, 1, first.ParseErrors)

	// Re-running ingestion inserts nothing new.
	second, err := ingestor.Run(ctx, files)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 6, second.Duplicates)

	agg, err := pipeline.NewAggregator(store, store, nil, logger, metrics, 2).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, agg.Stations)
	assert.Equal(t, 3, agg.StatsWritten)

	srv := httpadapter.NewServer(":0", store, httpadapter.PageLimits{Default: 100, Max: 1000}, store, logger)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/weather/stats?station_id=STATION001", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"data": [{
			"station_id": "STATION001",
			"year": 2000,
			"avg_max_temp": 2.5,
			"avg_min_temp": -15.0,
			"total_precipitation": 2.5
		}],
		"pagination": {"page": 1, "page_size": 100, "total_records": 1, "total_pages": 1}
	}`, withoutIDs(t, rec.Body.Bytes()))

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/weather/stats?year=2000", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"data": [
			{"station_id": "STATION001", "year": 2000, "avg_max_temp": 2.5, "avg_min_temp": -15.0, "total_precipitation": 2.5},
			{"station_id": "STATION002", "year": 2000, "avg_max_temp": null, "avg_min_temp": -1.0, "total_precipitation": 0}
		],
		"pagination": {"page": 1, "page_size": 100, "total_records": 2, "total_pages": 1}
	}`, withoutIDs(t, rec.Body.Bytes()))

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/weather?start_date=2000-01-01&page_size=2&page=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Data []struct {
			StationID string   `json:"station_id"`
			Date      string   `json:"date"`
			MaxTemp   *float64 `json:"max_temp"`
		} `json:"data"`
		Pagination struct {
			TotalRecords int `json:"total_records"`
			TotalPages   int `json:"total_pages"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 4, page.Pagination.TotalRecords)
	assert.Equal(t, 2, page.Pagination.TotalPages)
	require.Len(t, page.Data, 2)
	assert.Equal(t, "STATION001", page.Data[0].StationID)
	assert.Equal(t, "2000-01-02", page.Data[0].Date)
	require.NotNil(t, page.Data[0].MaxTemp)
	assert.InDelta(t, -5.0, *page.Data[0].MaxTemp, 1e-9)
	assert.Equal(t, "2000-01-03", page.Data[1].Date)
	assert.Nil(t, page.Data[1].MaxTemp)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
