// Package stats computes aggregate statistics over decrypted score records.
package stats

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary holds per-dimension aggregates for a campaign.
type Summary struct {
	Averages []float64 `json:"averages"`
	StdDevs  []float64 `json:"stdDevs"`
	Totals   []float64 `json:"totals"`
	Mins     []float64 `json:"mins"`
	Maxes    []float64 `json:"maxes"`
	// Values counts the scores that contributed to each dimension.
	Values []int `json:"values"`
	// Count is the number of records, not the number of values per dimension.
	Count int `json:"count"`
}

// Dimension is a single-dimension view of a Summary.
type Dimension struct {
	Index   int     `json:"index"`
	Average float64 `json:"average"`
	StdDev  float64 `json:"stdDev"`
	Total   float64 `json:"total"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Values  int     `json:"values"`
}

// Summarize computes the mean, population standard deviation and total of
// every dimension in [0, dimensions). A record contributes to dimension i only
// when it carries at least i+1 scores. Dimensions with no contributing value
// report zeros.
func Summarize(records [][]int64, dimensions int) Summary {
	if dimensions < 0 {
		dimensions = 0
	}

	s := Summary{
		Averages: make([]float64, dimensions),
		StdDevs:  make([]float64, dimensions),
		Totals:   make([]float64, dimensions),
		Mins:     make([]float64, dimensions),
		Maxes:    make([]float64, dimensions),
		Values:   make([]int, dimensions),
		Count:    len(records),
	}

	column := make([]float64, 0, len(records))
	for i := 0; i < dimensions; i++ {
		column = column[:0]
		for _, scores := range records {
			if len(scores) > i {
				column = append(column, float64(scores[i]))
			}
		}
		if len(column) == 0 {
			continue
		}

		s.Values[i] = len(column)
		mean, variance := stat.PopMeanVariance(column, nil)
		s.Averages[i] = mean
		s.StdDevs[i] = math.Sqrt(variance)
		s.Totals[i] = floats.Sum(column)
		s.Mins[i] = floats.Min(column)
		s.Maxes[i] = floats.Max(column)
	}

	return s
}

// Dimensions returns the number of dimensions the summary covers.
func (s Summary) Dimensions() int {
	return len(s.Averages)
}

// Dimension returns the view of dimension i, or false when out of range.
func (s Summary) Dimension(i int) (Dimension, bool) {
	if i < 0 || i >= s.Dimensions() {
		return Dimension{}, false
	}
	d := Dimension{
		Index:   i,
		Average: s.Averages[i],
		StdDev:  s.StdDevs[i],
		Total:   s.Totals[i],
	}
	if i < len(s.Mins) && i < len(s.Maxes) {
		d.Min, d.Max = s.Mins[i], s.Maxes[i]
	}
	if i < len(s.Values) {
		d.Values = s.Values[i]
	}
	return d, true
}
