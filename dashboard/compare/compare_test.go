package compare

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jit-bench/dashboard/types"
)

func runWith(isVariant bool, benchmarks map[string]float64) *types.Run {
	run := &types.Run{
		Date:       "2025-06-01",
		Machine:    "linux-x86_64",
		IsVariant:  isVariant,
		Benchmarks: make(map[string]types.BenchmarkMetric, len(benchmarks)),
	}
	for name, mean := range benchmarks {
		run.Benchmarks[name] = types.BenchmarkMetric{
			Mean: mean, Median: mean, Min: mean, Max: mean,
		}
	}
	return run
}

func TestRows(t *testing.T) {
	t.Run("only benchmarks present on both sides", func(t *testing.T) {
		baseline := runWith(false, map[string]float64{"nbody": 2.0, "richards": 1.0, "only_base": 3.0})
		variant := runWith(true, map[string]float64{"nbody": 1.8, "richards": 1.1, "only_variant": 4.0})

		rows := Rows(baseline, variant)

		require.Len(t, rows, 2)
		assert.Equal(t, "nbody", rows[0].Benchmark)
		assert.Equal(t, "richards", rows[1].Benchmark)
	})

	t.Run("variant faster", func(t *testing.T) {
		rows := Rows(
			runWith(false, map[string]float64{"nbody": 2.0}),
			runWith(true, map[string]float64{"nbody": 1.8}),
		)

		require.Len(t, rows, 1)
		row := rows[0]
		assert.Equal(t, 2.0, row.BaselineMean)
		assert.Equal(t, 1.8, row.VariantMean)
		require.NotNil(t, row.Delta)
		require.NotNil(t, row.Speedup)
		assert.InDelta(t, -0.2, *row.Delta, 1e-9)
		assert.InDelta(t, 1.1111, *row.Speedup, 1e-4)
	})

	t.Run("variant slower", func(t *testing.T) {
		rows := Rows(
			runWith(false, map[string]float64{"nbody": 2.0}),
			runWith(true, map[string]float64{"nbody": 2.2}),
		)

		require.Len(t, rows, 1)
		require.NotNil(t, rows[0].Speedup)
		assert.InDelta(t, 0.9090, *rows[0].Speedup, 1e-4)
	})

	t.Run("means within epsilon force speedup to one", func(t *testing.T) {
		rows := Rows(
			runWith(false, map[string]float64{"nbody": 2.0}),
			runWith(true, map[string]float64{"nbody": 2.0 + 1e-12}),
		)

		require.Len(t, rows, 1)
		require.NotNil(t, rows[0].Speedup)
		assert.Equal(t, 1.0, *rows[0].Speedup)
	})

	t.Run("identical means", func(t *testing.T) {
		rows := Rows(
			runWith(false, map[string]float64{"nbody": 2.0}),
			runWith(true, map[string]float64{"nbody": 2.0}),
		)

		require.Len(t, rows, 1)
		require.NotNil(t, rows[0].Delta)
		assert.Equal(t, 0.0, *rows[0].Delta)
		assert.Equal(t, 1.0, *rows[0].Speedup)
	})

	t.Run("zero mean is incomparable, delta and speedup nil together", func(t *testing.T) {
		rows := Rows(
			runWith(false, map[string]float64{"nbody": 2.0}),
			runWith(true, map[string]float64{"nbody": 0.0}),
		)

		require.Len(t, rows, 1)
		assert.Nil(t, rows[0].Delta)
		assert.Nil(t, rows[0].Speedup)
	})

	t.Run("both zero means read as same speed", func(t *testing.T) {
		rows := Rows(
			runWith(false, map[string]float64{"nbody": 0.0}),
			runWith(true, map[string]float64{"nbody": 0.0}),
		)

		require.Len(t, rows, 1)
		require.NotNil(t, rows[0].Speedup)
		assert.Equal(t, 1.0, *rows[0].Speedup)
	})

	t.Run("nil runs", func(t *testing.T) {
		assert.Nil(t, Rows(nil, runWith(true, nil)))
		assert.Nil(t, Rows(runWith(false, nil), nil))
	})

	t.Run("disjoint benchmark sets produce no rows", func(t *testing.T) {
		rows := Rows(
			runWith(false, map[string]float64{"a": 1.0}),
			runWith(true, map[string]float64{"b": 1.0}),
		)
		assert.Empty(t, rows)
	})
}

func TestFormatSpeedup(t *testing.T) {
	tests := []struct {
		name     string
		speedup  *float64
		expected string
	}{
		{"nil speedup", nil, "-"},
		{"exactly one", lo.ToPtr(1.0), "same speed"},
		{"rounds up to one", lo.ToPtr(0.999), "same speed"},
		{"rounds down to one", lo.ToPtr(1.004), "same speed"},
		{"eleven percent faster", lo.ToPtr(2.0 / 1.8), "11.1% faster"},
		{"ten percent slower", lo.ToPtr(2.0 / 2.2), "10.0% slower"},
		{"twenty five percent faster", lo.ToPtr(1.25), "25.0% faster"},
		{"twenty five percent slower", lo.ToPtr(0.8), "25.0% slower"},
		{"double speed", lo.ToPtr(2.0), "100.0% faster"},
		{"just above same band", lo.ToPtr(1.006), "0.6% faster"},
		{"just below same band", lo.ToPtr(0.994), "0.6% slower"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatSpeedup(tt.speedup))
		})
	}
}

func TestFormatDelta(t *testing.T) {
	assert.Equal(t, "-", FormatDelta(nil))
	assert.Equal(t, "-0.2000s", FormatDelta(lo.ToPtr(-0.2)))
	assert.Equal(t, "+0.0500s", FormatDelta(lo.ToPtr(0.05)))
}

func TestStats(t *testing.T) {
	t.Run("mixed outcomes", func(t *testing.T) {
		rows := []types.ComparisonRow{
			{Benchmark: "fast", Speedup: lo.ToPtr(1.25)},
			{Benchmark: "faster", Speedup: lo.ToPtr(2.0)},
			{Benchmark: "slow", Speedup: lo.ToPtr(0.8)},
			{Benchmark: "flat", Speedup: lo.ToPtr(1.001)},
			{Benchmark: "broken"},
		}

		stats := Stats(rows)

		assert.Equal(t, 5, stats.TotalBenchmarks)
		assert.Equal(t, 2, stats.FasterCount)
		assert.Equal(t, 1, stats.SlowerCount)
		assert.Equal(t, 1, stats.SameCount)
		assert.Equal(t, "slow", stats.SlowestBenchmark)
		assert.Equal(t, "faster", stats.FastestBenchmark)
		require.NotNil(t, stats.MinSpeedup)
		require.NotNil(t, stats.MaxSpeedup)
		assert.Equal(t, 0.8, *stats.MinSpeedup)
		assert.Equal(t, 2.0, *stats.MaxSpeedup)
		require.NotNil(t, stats.GeomeanSpeedup)
		assert.InDelta(t, 1.1892, *stats.GeomeanSpeedup, 1e-3)
		require.NotNil(t, stats.SpeedupP50)
	})

	t.Run("no comparable rows", func(t *testing.T) {
		stats := Stats([]types.ComparisonRow{{Benchmark: "broken"}})

		assert.Equal(t, 1, stats.TotalBenchmarks)
		assert.Zero(t, stats.FasterCount+stats.SlowerCount+stats.SameCount)
		assert.Nil(t, stats.GeomeanSpeedup)
		assert.Nil(t, stats.MinSpeedup)
		assert.Nil(t, stats.SpeedupP50)
	})

	t.Run("empty rows", func(t *testing.T) {
		stats := Stats(nil)
		assert.Zero(t, stats.TotalBenchmarks)
		assert.Nil(t, stats.GeomeanSpeedup)
	})
}

func TestGeometricMean(t *testing.T) {
	assert.InDelta(t, 1.0, GeometricMean([]float64{2.0, 0.5}), 1e-9)
	assert.InDelta(t, 2.0, GeometricMean([]float64{2.0, 2.0}), 1e-9)
	assert.Equal(t, 0.0, GeometricMean(nil))
	assert.Equal(t, 0.0, GeometricMean([]float64{0, -1}))
	assert.InDelta(t, 3.0, GeometricMean([]float64{3.0, 0}), 1e-9)
}

func TestPercentile(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}

	assert.Equal(t, 3.0, Percentile(values, 50))
	assert.Equal(t, 1.0, Percentile(values, 0))
	assert.Equal(t, 5.0, Percentile(values, 100))
	assert.InDelta(t, 4.6, Percentile(values, 90), 1e-9)
	assert.Equal(t, 0.0, Percentile(nil, 50))
}

func BenchmarkRows(b *testing.B) {
	benchmarks := make(map[string]float64, 60)
	for i := 0; i < 60; i++ {
		benchmarks[string(rune('a'+i%26))+string(rune('a'+i/26))] = float64(i) + 0.5
	}
	baseline := runWith(false, benchmarks)
	variant := runWith(true, benchmarks)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Rows(baseline, variant)
	}
}

func BenchmarkFormatSpeedup(b *testing.B) {
	speedup := lo.ToPtr(1.0537)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		FormatSpeedup(speedup)
	}
}
