// Package domain models daily station weather observations and their annual
// aggregates.
//
// # Data Source
//
// Each station publishes one plain-text file named after the station code
// (e.g. "USC00110072.txt"). Every line holds one day of readings:
//
//	<YYYYMMDD> <max temp> <min temp> <precipitation>
//
// Fields are separated by tabs or spaces and padded for alignment:
//
//	19850101	  -22	 -128	   94
//
// # Units
//
// Raw values are integers in tenths of a unit:
//
//	max/min temperature: tenths of a degree Celsius (-22 → -2.2 °C)
//	precipitation:       tenths of a millimetre     (94 → 9.4 mm)
//
// Observations keep the raw tenths. Annual statistics are converted to
// standard units (°C and mm) by dividing by 10.
//
// # Missing values
//
//	-9999 is the sentinel for a missing reading.
//
// It is mapped to a nil pointer at parse time and never stored or averaged
// as a number. A line where every reading is missing is still a valid
// observation.
//
// # Aggregation
//
// Annual statistics are computed per (station, year):
//
//	avg max temp:  mean of present max temps, nil when none are present
//	avg min temp:  mean of present min temps, nil when none are present
//	total precip:  sum of present precipitation, nil when none are present
//
// A year with present precipitation values that sum to zero reports 0, not nil.
//
// # Keys
//
// Observations are unique on (station, date): a repeated key is a duplicate
// and is rejected, never overwritten. Annual statistics are unique on
// (station, year) and are replaced on every recomputation.
package domain
