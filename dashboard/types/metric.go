package types

import (
	"math"
	"sort"
)

// BenchmarkMetric represents aggregate timing statistics for a single benchmark,
// in seconds. All fields must be finite and non-negative.
type BenchmarkMetric struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// NewBenchmarkMetric builds a metric from its five fields, rejecting
// negative or non-finite values.
func NewBenchmarkMetric(mean, median, stddev, min, max float64) (BenchmarkMetric, error) {
	m := BenchmarkMetric{
		Mean:   mean,
		Median: median,
		StdDev: stddev,
		Min:    min,
		Max:    max,
	}
	if err := m.Validate(); err != nil {
		return BenchmarkMetric{}, err
	}
	return m, nil
}

// Validate checks that every field is finite and non-negative. Malformed
// values are reported, never coerced.
func (m BenchmarkMetric) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"mean", m.Mean},
		{"median", m.Median},
		{"stddev", m.StdDev},
		{"min", m.Min},
		{"max", m.Max},
	}

	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) || f.value < 0 {
			return &MalformedMetricError{Field: f.name, Value: f.value}
		}
	}
	return nil
}

// ComputeBenchmarkMetric aggregates raw sample values (pyperf run values,
// in seconds) into a metric. An empty sample set is malformed.
func ComputeBenchmarkMetric(values []float64) (BenchmarkMetric, error) {
	if len(values) == 0 {
		return BenchmarkMetric{}, &MalformedMetricError{Field: "values", Value: math.NaN()}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mean := sampleMean(sorted)
	m := BenchmarkMetric{
		Mean:   mean,
		Median: sampleMedian(sorted),
		StdDev: sampleStdDev(sorted, mean),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
	}
	if err := m.Validate(); err != nil {
		return BenchmarkMetric{}, err
	}
	return m, nil
}

func sampleMean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleMedian expects values to be sorted ascending.
func sampleMedian(values []float64) float64 {
	n := len(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}

// sampleStdDev is the sample standard deviation, 0 for fewer than two values.
func sampleStdDev(values []float64, mean float64) float64 {
	if len(values) <= 1 {
		return 0
	}

	var sum float64
	for _, v := range values {
		diff := v - mean
		sum += diff * diff
	}
	return math.Sqrt(sum / float64(len(values)-1))
}
