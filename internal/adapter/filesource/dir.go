// Package filesource reads station files from a local directory.
package filesource

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/couchcryptid/wx-station-etl/internal/domain"
	"github.com/couchcryptid/wx-station-etl/internal/pipeline"
)

// Dir lists and opens the station files in one directory.
// It implements pipeline.FileSource.
type Dir struct {
	root    string
	pattern string
}

// NewDir returns a source for files in root matching the glob pattern.
func NewDir(root, pattern string) *Dir {
	return &Dir{root: root, pattern: pattern}
}

// List returns the matching files sorted by path. Subdirectories are ignored.
func (d *Dir) List() ([]pipeline.StationFile, error) {
	if _, err := filepath.Match(d.pattern, ""); err != nil {
		return nil, fmt.Errorf("file pattern %q: %w", d.pattern, err)
	}
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, &domain.FileAccessError{Path: d.root, Err: err}
	}

	var files []pipeline.StationFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ok, _ := filepath.Match(d.pattern, e.Name()); !ok {
			continue
		}
		files = append(files, pipeline.StationFile{
			Station: domain.StationFromFilename(e.Name()),
			Path:    filepath.Join(d.root, e.Name()),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// Open opens f for reading.
func (d *Dir) Open(_ context.Context, f pipeline.StationFile) (io.ReadCloser, error) {
	return os.Open(f.Path)
}
