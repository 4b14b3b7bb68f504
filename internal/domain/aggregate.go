package domain

import "sort"

// YearAccumulator collects the present readings of one (station, year) group.
// Absent readings contribute nothing, so a field with no present readings
// stays absent in the resulting AnnualStat.
type YearAccumulator struct {
	station string
	year    int

	maxSum, minSum, precipSum       int64
	maxCount, minCount, precipCount int
}

// NewYearAccumulator starts an empty group for station and year.
func NewYearAccumulator(station string, year int) *YearAccumulator {
	return &YearAccumulator{station: station, year: year}
}

// Add folds one observation into the group. Callers group by key; Add does not
// check that obs belongs to the accumulator's station and year.
func (a *YearAccumulator) Add(obs Observation) {
	if obs.MaxTemp != nil {
		a.maxSum += int64(*obs.MaxTemp)
		a.maxCount++
	}
	if obs.MinTemp != nil {
		a.minSum += int64(*obs.MinTemp)
		a.minCount++
	}
	if obs.Precipitation != nil {
		a.precipSum += int64(*obs.Precipitation)
		a.precipCount++
	}
}

// Stat converts the accumulated tenths into standard units.
func (a *YearAccumulator) Stat() AnnualStat {
	s := AnnualStat{StationID: a.station, Year: a.year}
	if a.maxCount > 0 {
		s.AvgMaxTemp = Float(float64(a.maxSum) / float64(a.maxCount) / tenthsPerUnit)
	}
	if a.minCount > 0 {
		s.AvgMinTemp = Float(float64(a.minSum) / float64(a.minCount) / tenthsPerUnit)
	}
	if a.precipCount > 0 {
		s.TotalPrecipitation = Float(float64(a.precipSum) / tenthsPerUnit)
	}
	return s
}

// Summarize groups observations by (station, year) and returns one AnnualStat
// per group, ordered by station then year. The input order does not matter.
func Summarize(observations []Observation) []AnnualStat {
	groups := make(map[StatKey]*YearAccumulator)
	for _, obs := range observations {
		key := StatKey{StationID: obs.StationID, Year: obs.Year()}
		acc, ok := groups[key]
		if !ok {
			acc = NewYearAccumulator(key.StationID, key.Year)
			groups[key] = acc
		}
		acc.Add(obs)
	}

	out := make([]AnnualStat, 0, len(groups))
	for _, acc := range groups {
		out = append(out, acc.Stat())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StationID != out[j].StationID {
			return out[i].StationID < out[j].StationID
		}
		return out[i].Year < out[j].Year
	})
	return out
}
