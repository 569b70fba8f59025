package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jit-bench/dashboard/types"
)

const pyperfFixture = `{
	"benchmarks": [
		{
			"metadata": {"name": "nbody"},
			"runs": [
				{"values": [2.0, 2.2]},
				{"values": [1.8]}
			]
		},
		{
			"metadata": {"name": "richards"},
			"runs": [{"values": [0.5, 0.5, 0.5]}]
		}
	],
	"metadata": {
		"python_version": "3.14.0a6",
		"platform": "Linux-6.8",
		"hostname": "bench-01",
		"unit": "second",
		"loops": 16
	}
}`

func TestParsePyperfFile(t *testing.T) {
	benchmarks, metadata, err := ParsePyperfFile([]byte(pyperfFixture))
	require.NoError(t, err)

	require.Len(t, benchmarks, 2)

	nbody := benchmarks["nbody"]
	assert.InDelta(t, 2.0, nbody.Mean, 1e-9)
	assert.InDelta(t, 2.0, nbody.Median, 1e-9)
	assert.InDelta(t, 1.8, nbody.Min, 1e-9)
	assert.InDelta(t, 2.2, nbody.Max, 1e-9)
	assert.InDelta(t, 0.2, nbody.StdDev, 1e-9)

	richards := benchmarks["richards"]
	assert.InDelta(t, 0.5, richards.Mean, 1e-9)
	assert.InDelta(t, 0.0, richards.StdDev, 1e-9)

	// Extra metadata keys are ignored, known ones land in the record.
	assert.Equal(t, "3.14.0a6", metadata.PythonVersion)
	assert.Equal(t, "Linux-6.8", metadata.Platform)
	assert.Equal(t, "bench-01", metadata.Hostname)
}

func TestParsePyperfFileRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not json", data: "nope"},
		{name: "no benchmarks", data: `{"benchmarks": [], "metadata": {}}`},
		{name: "unnamed benchmark", data: `{"benchmarks": [{"metadata": {}, "runs": [{"values": [1.0]}]}]}`},
		{name: "no values", data: `{"benchmarks": [{"metadata": {"name": "x"}, "runs": []}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParsePyperfFile([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestParsePyperfFileSurfacesMalformedMetrics(t *testing.T) {
	data := `{"benchmarks": [{"metadata": {"name": "x"}, "runs": [{"values": [-1.0]}]}]}`

	_, _, err := ParsePyperfFile([]byte(data))
	require.Error(t, err)

	var malformed *types.MalformedMetricError
	assert.ErrorAs(t, err, &malformed)
}
