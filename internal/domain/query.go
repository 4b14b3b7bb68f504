package domain

import "time"

// MaxPageNumber caps page numbers so Offset stays well inside int64 range for
// any sane page size.
const MaxPageNumber = 1<<31 - 1

// Page is a 1-based page request.
type Page struct {
	Number int
	Size   int
}

// Offset returns the number of rows to skip for this page.
func (p Page) Offset() int {
	if p.Number < 1 || p.Size < 1 {
		return 0
	}
	return (min(p.Number, MaxPageNumber) - 1) * p.Size
}

// TotalPages returns how many pages of size p.Size cover total rows.
func (p Page) TotalPages(total int) int {
	if p.Size <= 0 {
		return 0
	}
	return (total + p.Size - 1) / p.Size
}

// ObservationFilter selects observations. Zero values mean "no constraint".
// Date, From and To are inclusive calendar dates.
type ObservationFilter struct {
	StationID string
	Date      time.Time
	From      time.Time
	To        time.Time
}

// StatFilter selects annual statistics. Zero values mean "no constraint".
type StatFilter struct {
	StationID string
	Year      int
	FromYear  int
	ToYear    int
}
