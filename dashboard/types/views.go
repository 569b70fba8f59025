package types

import "time"

// ComparisonRow represents one benchmark compared between the baseline and
// variant runs of a pair. Rows exist only for benchmarks present in both
// runs. Delta is variant minus baseline; Speedup is baseline over variant.
// Delta and Speedup are nil together when the pair cannot be compared
// (zero variant mean).
type ComparisonRow struct {
	Benchmark    string   `json:"benchmark"`
	BaselineMean float64  `json:"baseline_mean"`
	VariantMean  float64  `json:"variant_mean"`
	Delta        *float64 `json:"delta"`
	Speedup      *float64 `json:"speedup"`
}

// ComparisonStats summarizes a set of comparison rows.
type ComparisonStats struct {
	TotalBenchmarks  int      `json:"total_benchmarks"`
	FasterCount      int      `json:"faster_count"`
	SlowerCount      int      `json:"slower_count"`
	SameCount        int      `json:"same_count"`
	GeomeanSpeedup   *float64 `json:"geomean_speedup"`
	SpeedupP50       *float64 `json:"speedup_p50"`
	SpeedupP90       *float64 `json:"speedup_p90"`
	SpeedupP99       *float64 `json:"speedup_p99"`
	MinSpeedup       *float64 `json:"min_speedup"`
	MaxSpeedup       *float64 `json:"max_speedup"`
	SlowestBenchmark string   `json:"slowest_benchmark,omitempty"`
	FastestBenchmark string   `json:"fastest_benchmark,omitempty"`
}

// TrendPoint represents one day of a machine's trend series.
type TrendPoint struct {
	Date              string   `json:"date"`
	Commit            string   `json:"commit"`
	BuildLabel        string   `json:"build_label"`
	BaselineAggregate *float64 `json:"baseline_aggregate"`
	VariantAggregate  *float64 `json:"variant_aggregate"`
	Speedup           *float64 `json:"speedup"`
}

// MachineLatest represents the most recent complete baseline/variant pair
// for a machine, with its full comparison.
type MachineLatest struct {
	Machine     string          `json:"machine"`
	Date        string          `json:"date"`
	Commit      string          `json:"commit"`
	BuildLabel  string          `json:"build_label"`
	SubmittedAt time.Time       `json:"submitted_at"`
	Rows        []ComparisonRow `json:"rows"`
	Stats       ComparisonStats `json:"stats"`
}

// TrendSummary is the summary view: per-machine trend series over a window
// of days plus the latest complete comparison per machine.
type TrendSummary struct {
	Days        int                      `json:"days"`
	Machines    []string                 `json:"machines"`
	Trends      map[string][]TrendPoint  `json:"trends"`
	Latest      map[string]MachineLatest `json:"latest"`
	GeneratedAt time.Time                `json:"generated_at"`
}

// MachineDay represents one machine's runs for a single day. Runs carries
// every run of the authoritative submission, paired or not; Rows and Stats
// are only set when the submission has both sides.
type MachineDay struct {
	Machine string           `json:"machine"`
	Paired  bool             `json:"paired"`
	Runs    []Run            `json:"runs"`
	Rows    []ComparisonRow  `json:"rows,omitempty"`
	Stats   *ComparisonStats `json:"stats,omitempty"`
}

// DayDetail is the single-day view across machines.
type DayDetail struct {
	Date        string                `json:"date"`
	Machines    map[string]MachineDay `json:"machines"`
	GeneratedAt time.Time             `json:"generated_at"`
}

// BenchmarkTrendPoint represents one day of a single benchmark's history on
// one machine.
type BenchmarkTrendPoint struct {
	Date         string   `json:"date"`
	Machine      string   `json:"machine"`
	Commit       string   `json:"commit"`
	BaselineMean *float64 `json:"baseline_mean"`
	VariantMean  *float64 `json:"variant_mean"`
	Speedup      *float64 `json:"speedup"`
}

// BenchmarkTrend is the per-benchmark history view.
type BenchmarkTrend struct {
	Benchmark string                `json:"benchmark"`
	Machine   string                `json:"machine,omitempty"`
	Days      int                   `json:"days"`
	Points    []BenchmarkTrendPoint `json:"points"`
}
