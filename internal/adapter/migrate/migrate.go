// Package migrate loads versioned schema migrations from an embedded
// filesystem. Files are named with a 4-digit prefix for order:
// 0001_name.sql, 0002_other.sql. Each store adapter applies them with its own
// driver and records applied versions in a schema_migrations table.
package migrate

import (
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
)

// TableName is the table recording applied versions.
const TableName = "schema_migrations"

var fileRe = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// Migration is one schema change.
type Migration struct {
	Version string
	Name    string
	Body    string
}

// Load reads every migration file in dir, ordered by version. Files that do
// not follow the naming scheme are ignored.
func Load(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var out []Migration
	seen := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := fileRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		if prev, dup := seen[m[1]]; dup {
			return nil, fmt.Errorf("migration version %s used by %s and %s", m[1], prev, e.Name())
		}
		seen[m[1]] = e.Name()

		body, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		out = append(out, Migration{Version: m[1], Name: m[2], Body: string(body)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Pending filters out migrations whose version is already applied.
func Pending(all []Migration, applied map[string]bool) []Migration {
	var out []Migration
	for _, m := range all {
		if !applied[m.Version] {
			out = append(out, m)
		}
	}
	return out
}

// String returns the migration's file name.
func (m Migration) String() string { return m.Version + "_" + m.Name + ".sql" }
