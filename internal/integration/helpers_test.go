package integration_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stationFiles is a small data set with one duplicate line, one malformed
// line, and absent readings.
var stationFiles = map[string]string{
	"STATION001.txt": "20000101\t  100\t  -50\t   20\n" +
		"20000102\t  -50\t -250\t    5\n" +
		"20000103\t-9999\t-9999\t-9999\n" +
		"20000103\t-9999\t-9999\t-9999\n",
	"STATION002.txt": "19991231\t   10\t-9999\t-9999\n" +
		"20000101\t-9999\t  -10\t    0\n" +
		"not a weather line\n",
}

func writeStationFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	return dir
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// withoutIDs checks that every row in a page response carries a store id and
// returns the body with the ids removed. Ids depend on write order, which is
// not fixed when stations are aggregated in parallel.
func withoutIDs(t *testing.T, body []byte) string {
	t.Helper()
	var page map[string]any
	require.NoError(t, json.Unmarshal(body, &page))
	rows, ok := page["data"].([]any)
	require.True(t, ok, "data is not an array")
	for _, r := range rows {
		row, ok := r.(map[string]any)
		require.True(t, ok)
		id, ok := row["id"].(float64)
		require.True(t, ok, "row has no id: %v", row)
		assert.Positive(t, id)
		delete(row, "id")
	}
	out, err := json.Marshal(page)
	require.NoError(t, err)
	return string(out)
}
