package types

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBenchmarkMetric(t *testing.T) {
	tests := []struct {
		name      string
		mean      float64
		median    float64
		stddev    float64
		min       float64
		max       float64
		wantErr   bool
		wantField string
	}{
		{
			name: "valid metric",
			mean: 1.5, median: 1.4, stddev: 0.1, min: 1.2, max: 1.9,
		},
		{
			name: "zero values are valid",
			mean: 0, median: 0, stddev: 0, min: 0, max: 0,
		},
		{
			name: "negative mean",
			mean: -1.5, median: 1.4, stddev: 0.1, min: 1.2, max: 1.9,
			wantErr: true, wantField: "mean",
		},
		{
			name: "NaN median",
			mean: 1.5, median: math.NaN(), stddev: 0.1, min: 1.2, max: 1.9,
			wantErr: true, wantField: "median",
		},
		{
			name: "positive infinity max",
			mean: 1.5, median: 1.4, stddev: 0.1, min: 1.2, max: math.Inf(1),
			wantErr: true, wantField: "max",
		},
		{
			name: "negative infinity stddev",
			mean: 1.5, median: 1.4, stddev: math.Inf(-1), min: 1.2, max: 1.9,
			wantErr: true, wantField: "stddev",
		},
		{
			name: "negative min",
			mean: 1.5, median: 1.4, stddev: 0.1, min: -0.001, max: 1.9,
			wantErr: true, wantField: "min",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewBenchmarkMetric(tt.mean, tt.median, tt.stddev, tt.min, tt.max)

			if tt.wantErr {
				require.Error(t, err)
				var malformed *MalformedMetricError
				require.True(t, errors.As(err, &malformed))
				assert.Equal(t, tt.wantField, malformed.Field)
				assert.Equal(t, BenchmarkMetric{}, m)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.mean, m.Mean)
			assert.Equal(t, tt.max, m.Max)
		})
	}
}

func TestComputeBenchmarkMetric(t *testing.T) {
	t.Run("odd sample count", func(t *testing.T) {
		m, err := ComputeBenchmarkMetric([]float64{3.0, 1.0, 2.0})
		require.NoError(t, err)

		assert.InDelta(t, 2.0, m.Mean, 1e-9)
		assert.InDelta(t, 2.0, m.Median, 1e-9)
		assert.InDelta(t, 1.0, m.StdDev, 1e-9)
		assert.Equal(t, 1.0, m.Min)
		assert.Equal(t, 3.0, m.Max)
	})

	t.Run("even sample count", func(t *testing.T) {
		m, err := ComputeBenchmarkMetric([]float64{4.0, 1.0, 3.0, 2.0})
		require.NoError(t, err)

		assert.InDelta(t, 2.5, m.Mean, 1e-9)
		assert.InDelta(t, 2.5, m.Median, 1e-9)
		assert.Equal(t, 1.0, m.Min)
		assert.Equal(t, 4.0, m.Max)
	})

	t.Run("single sample", func(t *testing.T) {
		m, err := ComputeBenchmarkMetric([]float64{1.25})
		require.NoError(t, err)

		assert.Equal(t, 1.25, m.Mean)
		assert.Equal(t, 1.25, m.Median)
		assert.Equal(t, 0.0, m.StdDev)
	})

	t.Run("empty samples are malformed", func(t *testing.T) {
		_, err := ComputeBenchmarkMetric(nil)
		require.Error(t, err)

		var malformed *MalformedMetricError
		assert.True(t, errors.As(err, &malformed))
	})

	t.Run("negative sample is malformed", func(t *testing.T) {
		_, err := ComputeBenchmarkMetric([]float64{1.0, -2.0})
		require.Error(t, err)

		var malformed *MalformedMetricError
		assert.True(t, errors.As(err, &malformed))
	})
}

func TestRunValidate(t *testing.T) {
	validRun := func() Run {
		return Run{
			Date:          "2025-06-01",
			Commit:        "a1b2c3d4e5f60718293a4b5c6d7e8f9012345678",
			BuildLabel:    "3.14.0b2",
			Machine:       "linux-x86_64",
			SubmissionKey: "bm-20250601-3.14.0b2-a1b2c3d",
			Benchmarks: map[string]BenchmarkMetric{
				"nbody": {Mean: 0.1, Median: 0.1, StdDev: 0.01, Min: 0.09, Max: 0.12},
			},
		}
	}

	t.Run("valid run", func(t *testing.T) {
		run := validRun()
		assert.NoError(t, run.Validate())
	})

	t.Run("bad date", func(t *testing.T) {
		run := validRun()
		run.Date = "06/01/2025"
		assert.Error(t, run.Validate())
	})

	t.Run("missing machine", func(t *testing.T) {
		run := validRun()
		run.Machine = ""
		assert.Error(t, run.Validate())
	})

	t.Run("malformed benchmark surfaces", func(t *testing.T) {
		run := validRun()
		run.Benchmarks["json_loads"] = BenchmarkMetric{Mean: math.NaN()}

		err := run.Validate()
		require.Error(t, err)

		var malformed *MalformedMetricError
		assert.True(t, errors.As(err, &malformed))
	})
}

func TestDatasetHelpers(t *testing.T) {
	ds := &Dataset{
		Days: 30,
		Machines: map[string][]Run{
			"linux-x86_64":  {{Machine: "linux-x86_64", Date: "2025-06-01"}},
			"darwin-arm64":  {{Machine: "darwin-arm64", Date: "2025-06-01"}},
			"windows-amd64": {},
		},
	}

	assert.Equal(t, []string{"darwin-arm64", "linux-x86_64", "windows-amd64"}, ds.MachineNames())
	assert.Len(t, ds.AllRuns(), 2)
	assert.False(t, ds.IsEmpty())

	empty := &Dataset{Days: 30}
	assert.True(t, empty.IsEmpty())
	assert.True(t, (*Dataset)(nil).IsEmpty())
}

func BenchmarkComputeBenchmarkMetric(b *testing.B) {
	values := make([]float64, 100)
	for i := range values {
		values[i] = float64(i) * 0.01
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = ComputeBenchmarkMetric(values)
	}
}
