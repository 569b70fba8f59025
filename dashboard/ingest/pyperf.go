package ingest

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/jit-bench/dashboard/types"
)

// pyperfFile mirrors the pyperf suite JSON layout to the depth the
// dashboard needs. Metadata blocks carry dozens of keys that vary with
// pyperf versions, so they are decoded loosely and mapped into typed
// records afterwards.
type pyperfFile struct {
	Benchmarks []pyperfBenchmark      `json:"benchmarks"`
	Metadata   map[string]interface{} `json:"metadata"`
}

type pyperfBenchmark struct {
	Metadata map[string]interface{} `json:"metadata"`
	Runs     []pyperfRun            `json:"runs"`
}

// pyperfRun holds one process's samples. Values excludes warm-up samples,
// which pyperf keeps in a separate field this decoder ignores.
type pyperfRun struct {
	Values []float64 `json:"values"`
}

// SuiteMetadata is the subset of pyperf's top-level metadata the dashboard
// keeps. Unknown keys are ignored.
type SuiteMetadata struct {
	PythonVersion  string `mapstructure:"python_version"`
	Platform       string `mapstructure:"platform"`
	Hostname       string `mapstructure:"hostname"`
	CPUModel       string `mapstructure:"cpu_model_name"`
	PerfVersion    string `mapstructure:"perf_version"`
	PythonCompiler string `mapstructure:"python_compiler"`
}

// ParsePyperfFile decodes a pyperf suite document into per-benchmark
// metrics plus the suite metadata. Benchmarks without a name or without
// any sample values are rejected, and malformed sample values surface as
// MalformedMetricError.
func ParsePyperfFile(data []byte) (map[string]types.BenchmarkMetric, *SuiteMetadata, error) {
	var file pyperfFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, nil, fmt.Errorf("failed to decode pyperf file: %w", err)
	}

	if len(file.Benchmarks) == 0 {
		return nil, nil, fmt.Errorf("pyperf file contains no benchmarks")
	}

	benchmarks := make(map[string]types.BenchmarkMetric, len(file.Benchmarks))
	for i, bench := range file.Benchmarks {
		name := benchmarkName(bench.Metadata)
		if name == "" {
			return nil, nil, fmt.Errorf("benchmark %d has no name", i)
		}

		var values []float64
		for _, run := range bench.Runs {
			values = append(values, run.Values...)
		}

		metric, err := types.ComputeBenchmarkMetric(values)
		if err != nil {
			return nil, nil, fmt.Errorf("benchmark %s: %w", name, err)
		}
		benchmarks[name] = metric
	}

	metadata := &SuiteMetadata{}
	if file.Metadata != nil {
		if err := mapstructure.Decode(file.Metadata, metadata); err != nil {
			return nil, nil, fmt.Errorf("failed to decode suite metadata: %w", err)
		}
	}

	return benchmarks, metadata, nil
}

func benchmarkName(metadata map[string]interface{}) string {
	if metadata == nil {
		return ""
	}
	name, _ := metadata["name"].(string)
	return name
}
