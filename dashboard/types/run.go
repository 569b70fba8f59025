package types

import (
	"fmt"
	"sort"
	"time"
)

// DateLayout is the wire format for run dates.
const DateLayout = "2006-01-02"

// ValidateDate checks that date is a real calendar day in wire format.
func ValidateDate(date string) error {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return fmt.Errorf("invalid date %q: %w", date, err)
	}
	return nil
}

// Run represents a single benchmark submission: one build (baseline
// interpreter or JIT variant) executed on one machine for one day.
type Run struct {
	Date       string `json:"date"`
	Commit     string `json:"commit"`
	BuildLabel string `json:"build_label"`
	IsVariant  bool   `json:"is_variant"`
	Machine    string `json:"machine"`

	// SubmissionKey is the opaque, lexicographically comparable identity of
	// the submission this run arrived in (the result directory name).
	SubmissionKey string    `json:"submission_key"`
	SubmittedAt   time.Time `json:"submitted_at"`

	// PythonVersion and Platform come from the pyperf suite metadata when
	// the result file carries them.
	PythonVersion string `json:"python_version,omitempty"`
	Platform      string `json:"platform,omitempty"`

	AggregateMetric   *float64                   `json:"aggregate_metric"`
	SpeedupVsBaseline *float64                   `json:"speedup_vs_baseline"`
	Benchmarks        map[string]BenchmarkMetric `json:"benchmarks"`
}

// Validate checks the run's date format and every benchmark metric.
func (r *Run) Validate() error {
	if err := ValidateDate(r.Date); err != nil {
		return fmt.Errorf("invalid run date: %w", err)
	}
	if r.Machine == "" {
		return fmt.Errorf("run %s has no machine", r.SubmissionKey)
	}

	for name, m := range r.Benchmarks {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("benchmark %s: %w", name, err)
		}
	}
	return nil
}

// BenchmarkNames returns the run's benchmark names sorted ascending.
func (r *Run) BenchmarkNames() []string {
	names := make([]string, 0, len(r.Benchmarks))
	for name := range r.Benchmarks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dataset is the upstream payload: a window size in days plus the runs
// grouped per machine.
type Dataset struct {
	Days     int              `json:"days"`
	Machines map[string][]Run `json:"machines"`
}

// MachineNames returns the dataset's machine names sorted ascending.
func (d *Dataset) MachineNames() []string {
	names := make([]string, 0, len(d.Machines))
	for name := range d.Machines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AllRuns flattens the per-machine groups into a single slice, ordered by
// machine name then original order within each machine.
func (d *Dataset) AllRuns() []Run {
	runs := make([]Run, 0)
	for _, machine := range d.MachineNames() {
		runs = append(runs, d.Machines[machine]...)
	}
	return runs
}

// IsEmpty reports whether the dataset carries no machines at all. A dataset
// with machines but no runs for a given day is not empty, it is a quiet day.
func (d *Dataset) IsEmpty() bool {
	return d == nil || len(d.Machines) == 0
}

// Validate checks every run in the dataset.
func (d *Dataset) Validate() error {
	for machine, runs := range d.Machines {
		for i := range runs {
			if err := runs[i].Validate(); err != nil {
				return fmt.Errorf("machine %s: %w", machine, err)
			}
		}
	}
	return nil
}
