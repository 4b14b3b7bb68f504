package domain

import (
	"math"
	"time"
)

// MissingValue is the in-band sentinel station files use for an absent reading.
const MissingValue = -9999

// tenthsPerUnit converts raw tenths to standard units.
const tenthsPerUnit = 10.0

// Observation is one day of raw readings from a station. Readings are in
// tenths of a unit; nil means the reading was absent in the source file.
// ID is the store row id and is zero until the observation is read back.
type Observation struct {
	ID            int64     `json:"id,omitempty"`
	StationID     string    `json:"station_id"`
	Date          time.Time `json:"date"`
	MaxTemp       *int      `json:"max_temp"`
	MinTemp       *int      `json:"min_temp"`
	Precipitation *int      `json:"precipitation"`
}

// Year returns the calendar year the observation belongs to.
func (o Observation) Year() int { return o.Date.Year() }

// AnnualStat is the per-station, per-year aggregate in standard units.
type AnnualStat struct {
	ID                 int64    `json:"id,omitempty"`
	StationID          string   `json:"station_id"`
	Year               int      `json:"year"`
	AvgMaxTemp         *float64 `json:"avg_max_temp"`
	AvgMinTemp         *float64 `json:"avg_min_temp"`
	TotalPrecipitation *float64 `json:"total_precipitation"`
}

// Key identifies an AnnualStat row.
func (s AnnualStat) Key() StatKey { return StatKey{StationID: s.StationID, Year: s.Year} }

// StatKey is the (station, year) uniqueness key of an AnnualStat.
type StatKey struct {
	StationID string
	Year      int
}

// ToUnits converts a tenths reading to standard units, keeping absence.
func ToUnits(tenths *int) *float64 {
	if tenths == nil {
		return nil
	}
	v := float64(*tenths) / tenthsPerUnit
	return &v
}

// Round2 rounds a present value to two decimal places.
func Round2(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := math.Round(*v*100) / 100
	return &r
}

// Int returns a pointer to v. Handy for building observations in code.
func Int(v int) *int { return &v }

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }
