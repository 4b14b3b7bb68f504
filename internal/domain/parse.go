package domain

import (
	"errors"
	"fmt"
	"iter"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// dateLayout is the YYYYMMDD date token of a station file line.
const dateLayout = "20060102"

// fieldsPerLine is the number of whitespace-separated tokens on a line.
const fieldsPerLine = 4

// MaxLineLength bounds a well-formed station file line. Longer lines are
// rejected by ParseLine; readers may truncate them to MaxLineLength+1 bytes.
const MaxLineLength = 1024

var (
	errFieldCount  = errors.New("wrong number of fields")
	errLineTooLong = errors.New("line too long")
)

// ParsedLine is one element of a parsed station file: either a candidate
// observation or the error that caused the line to be skipped.
type ParsedLine struct {
	Line        int
	Observation Observation
	Err         error
}

// StationFromFilename derives the station identifier from a station file name,
// e.g. "/data/USC00110072.txt" -> "USC00110072".
func StationFromFilename(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Parse turns the lines of one station file into observation candidates.
// Blank lines are skipped without an error but still advance the line count.
// The sequence is lazy and can be ranged over again whenever lines can.
func Parse(station string, lines iter.Seq[string]) iter.Seq[ParsedLine] {
	return func(yield func(ParsedLine) bool) {
		n := 0
		for line := range lines {
			n++
			if strings.TrimSpace(line) == "" {
				continue
			}
			obs, err := ParseLine(station, line)
			if err != nil {
				err = &ParseError{Station: station, Line: n, Text: line, Err: err}
			}
			if !yield(ParsedLine{Line: n, Observation: obs, Err: err}) {
				return
			}
		}
	}
}

// ParseLine parses a single "date max min precip" line for the given station.
// The -9999 sentinel becomes a nil reading.
func ParseLine(station, line string) (Observation, error) {
	if len(line) > MaxLineLength {
		return Observation{}, fmt.Errorf("%w: more than %d bytes", errLineTooLong, MaxLineLength)
	}
	fields := strings.Fields(line)
	if len(fields) != fieldsPerLine {
		return Observation{}, fmt.Errorf("%w: expected %d, got %d", errFieldCount, fieldsPerLine, len(fields))
	}

	date, err := parseDate(fields[0])
	if err != nil {
		return Observation{}, err
	}

	values := make([]*int, 0, fieldsPerLine-1)
	for i, name := range []string{"max_temp", "min_temp", "precipitation"} {
		v, err := parseReading(fields[i+1])
		if err != nil {
			return Observation{}, fmt.Errorf("%s: %w", name, err)
		}
		values = append(values, v)
	}

	return Observation{
		StationID:     station,
		Date:          date,
		MaxTemp:       values[0],
		MinTemp:       values[1],
		Precipitation: values[2],
	}, nil
}

func parseDate(token string) (time.Time, error) {
	if len(token) != len(dateLayout) {
		return time.Time{}, fmt.Errorf("date %q: expected YYYYMMDD", token)
	}
	d, err := time.Parse(dateLayout, token)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: %w", token, err)
	}
	return d, nil
}

// parseReading parses a signed integer token, mapping the sentinel to nil.
func parseReading(token string) (*int, error) {
	v, err := strconv.Atoi(token)
	if err != nil {
		return nil, fmt.Errorf("value %q is not an integer", token)
	}
	if v == MissingValue {
		return nil, nil
	}
	return &v, nil
}
