// Package compare derives per-benchmark comparison rows and aggregate
// statistics from a baseline/variant run pair.
package compare

import (
	"fmt"
	"math"
	"sort"

	"github.com/jit-bench/dashboard/types"
)

// Epsilon is the absolute mean difference below which two results are
// considered equal. It applies to the difference of means only, never to
// the speedup ratio.
const Epsilon = 1e-9

// Rows compares two runs benchmark by benchmark. The result carries one row
// per benchmark present in both runs, sorted by name; benchmarks present on
// only one side are skipped entirely. Delta is variant minus baseline mean,
// Speedup is baseline over variant mean. A pair with a zero mean on either
// side (and means not equal) is incomparable: Delta and Speedup are both nil.
func Rows(baseline, variant *types.Run) []types.ComparisonRow {
	if baseline == nil || variant == nil {
		return nil
	}

	names := baseline.BenchmarkNames()

	rows := make([]types.ComparisonRow, 0, len(names))
	for _, name := range names {
		b := baseline.Benchmarks[name]
		v, ok := variant.Benchmarks[name]
		if !ok {
			continue
		}

		row := types.ComparisonRow{
			Benchmark:    name,
			BaselineMean: b.Mean,
			VariantMean:  v.Mean,
		}

		switch {
		case math.Abs(v.Mean-b.Mean) < Epsilon:
			delta := v.Mean - b.Mean
			speedup := 1.0
			row.Delta = &delta
			row.Speedup = &speedup
		case b.Mean == 0 || v.Mean == 0:
			// Degenerate pair, leave Delta and Speedup nil together.
		default:
			delta := v.Mean - b.Mean
			speedup := b.Mean / v.Mean
			row.Delta = &delta
			row.Speedup = &speedup
		}

		rows = append(rows, row)
	}
	return rows
}

// FormatSpeedup renders a speedup ratio for display. The ratio is rounded
// half away from zero to two decimals before classification, so 0.999 and
// 1.004 both read "same speed". Slower results are reported through the
// reciprocal, keeping displayed magnitudes at or above one percent scale.
func FormatSpeedup(speedup *float64) string {
	if speedup == nil {
		return "-"
	}

	s := *speedup
	rounded := roundTo(s, 2)
	switch {
	case rounded == 1.0:
		return "same speed"
	case s >= 1.0:
		return fmt.Sprintf("%.1f%% faster", (s-1.0)*100)
	default:
		reciprocal := 1.0 / s
		return fmt.Sprintf("%.1f%% slower", (reciprocal-1.0)*100)
	}
}

// FormatDelta renders a mean difference in seconds, signed.
func FormatDelta(delta *float64) string {
	if delta == nil {
		return "-"
	}
	return fmt.Sprintf("%+.4fs", *delta)
}

// Stats summarizes a set of comparison rows. Rows without a speedup are
// counted in the total but contribute nothing else.
func Stats(rows []types.ComparisonRow) types.ComparisonStats {
	stats := types.ComparisonStats{TotalBenchmarks: len(rows)}

	speedups := make([]float64, 0, len(rows))
	minSpeedup, maxSpeedup := math.Inf(1), math.Inf(-1)

	for _, row := range rows {
		if row.Speedup == nil {
			continue
		}
		s := *row.Speedup
		speedups = append(speedups, s)

		switch classify(s) {
		case outcomeFaster:
			stats.FasterCount++
		case outcomeSlower:
			stats.SlowerCount++
		default:
			stats.SameCount++
		}

		if s < minSpeedup {
			minSpeedup = s
			stats.SlowestBenchmark = row.Benchmark
		}
		if s > maxSpeedup {
			maxSpeedup = s
			stats.FastestBenchmark = row.Benchmark
		}
	}

	if len(speedups) == 0 {
		return stats
	}

	stats.MinSpeedup = &minSpeedup
	stats.MaxSpeedup = &maxSpeedup

	if gm := GeometricMean(speedups); gm > 0 {
		stats.GeomeanSpeedup = &gm
	}

	p50 := Percentile(speedups, 50)
	p90 := Percentile(speedups, 90)
	p99 := Percentile(speedups, 99)
	stats.SpeedupP50 = &p50
	stats.SpeedupP90 = &p90
	stats.SpeedupP99 = &p99

	return stats
}

type outcome int

const (
	outcomeSame outcome = iota
	outcomeFaster
	outcomeSlower
)

// classify applies the same rounding law as FormatSpeedup.
func classify(speedup float64) outcome {
	rounded := roundTo(speedup, 2)
	switch {
	case rounded == 1.0:
		return outcomeSame
	case speedup >= 1.0:
		return outcomeFaster
	default:
		return outcomeSlower
	}
}

// GeometricMean returns the geometric mean of the positive values in the
// slice, 0 when none are positive.
func GeometricMean(values []float64) float64 {
	var logSum float64
	var count int
	for _, v := range values {
		if v <= 0 {
			continue
		}
		logSum += math.Log(v)
		count++
	}
	if count == 0 {
		return 0
	}
	return math.Exp(logSum / float64(count))
}

// Percentile calculates the percentile value with linear interpolation
// between the two nearest ranks. Returns 0 for an empty slice.
func Percentile(values []float64, percentile float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	index := (percentile / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))

	if lower == upper {
		return sorted[lower]
	}

	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

func roundTo(v float64, places int) float64 {
	shift := math.Pow(10, float64(places))
	return math.Round(v*shift) / shift
}
