package domain

import (
	"errors"
	"fmt"
)

// ErrDuplicateObservation is returned by a record store when an observation
// with the same (station, date) key already exists. It is an expected outcome
// of re-running ingestion, not a fault.
var ErrDuplicateObservation = errors.New("duplicate observation")

// ParseError describes a station file line that could not be parsed. The line
// is skipped and the rest of the file is still processed.
type ParseError struct {
	Station string
	Line    int
	Text    string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s line %d: %v", e.Station, e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// FileAccessError means a station file could not be opened or read. Only that
// file is abandoned.
type FileAccessError struct {
	Path string
	Err  error
}

func (e *FileAccessError) Error() string {
	return fmt.Sprintf("access %s: %v", e.Path, e.Err)
}

func (e *FileAccessError) Unwrap() error { return e.Err }

// StoreError wraps a storage failure other than an expected duplicate.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
