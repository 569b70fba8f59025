// benchcompare prints interpreter-vs-JIT benchmark comparisons from either
// a results API or a local pyperf results tree.
//
// Usage:
//
//	benchcompare -url http://results.example.org
//	benchcompare -results ./results -date 2025-06-03
//	benchcompare -url http://results.example.org -machine fedora -json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jit-bench/dashboard/client"
	"github.com/jit-bench/dashboard/compare"
	"github.com/jit-bench/dashboard/config"
	"github.com/jit-bench/dashboard/ingest"
	"github.com/jit-bench/dashboard/reconcile"
	"github.com/jit-bench/dashboard/types"
)

func main() {
	baseURL := flag.String("url", "", "Base URL of the results API")
	resultsDir := flag.String("results", "", "Path to a local pyperf results tree (overrides -url)")
	date := flag.String("date", "", "Compare a specific day (YYYY-MM-DD); default is the latest pair per machine")
	days := flag.Int("days", 30, "Window of days to consider when no date is given")
	machine := flag.String("machine", "", "Only show this machine")
	timeout := flag.Duration("timeout", 30*time.Second, "Request timeout for the results API")
	outputJSON := flag.Bool("json", false, "Output as JSON instead of a table")
	noColor := flag.Bool("no-color", false, "Disable ANSI colors")
	flag.Parse()

	if err := run(*baseURL, *resultsDir, *date, *days, *machine, *timeout, *outputJSON, *noColor); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(baseURL, resultsDir, date string, days int, machine string, timeout time.Duration, outputJSON, noColor bool) error {
	if baseURL == "" && resultsDir == "" {
		return fmt.Errorf("either -url or -results is required")
	}
	if date != "" {
		if err := types.ValidateDate(date); err != nil {
			return err
		}
	}
	if days < 1 {
		return fmt.Errorf("days must be >= 1 (got %d)", days)
	}

	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		noColor = true
	}

	source, err := newSource(baseURL, resultsDir, timeout)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout+10*time.Second)
	defer cancel()

	pairs, err := fetchPairs(ctx, source, date, days)
	if err != nil {
		return err
	}

	if machine != "" {
		pair, ok := pairs[machine]
		if !ok {
			return fmt.Errorf("no complete pair for machine %s", machine)
		}
		pairs = map[string]reconcile.Pair{machine: pair}
	}

	if len(pairs) == 0 {
		return fmt.Errorf("no complete baseline/variant pairs found")
	}

	if outputJSON {
		return printJSON(pairs)
	}
	return printTables(pairs, noColor)
}

func newSource(baseURL, resultsDir string, timeout time.Duration) (client.Source, error) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	if resultsDir != "" {
		cfg := &config.SourceConfig{Mode: "local", ResultsDir: resultsDir}
		return ingest.NewLoader(cfg, log), nil
	}

	cfg := &config.SourceConfig{
		Mode:    "http",
		BaseURL: baseURL,
		Timeout: config.Duration(timeout),
	}
	return client.NewResultsClient(cfg, log)
}

// fetchPairs resolves the authoritative baseline/variant pair per machine,
// either for one day or the latest in the window.
func fetchPairs(ctx context.Context, source client.Source, date string, days int) (map[string]reconcile.Pair, error) {
	if date != "" {
		dataset, err := source.FetchDay(ctx, date)
		if err != nil {
			return nil, err
		}
		return reconcile.Pairs(dataset.AllRuns()), nil
	}

	dataset, err := source.FetchSummary(ctx, days)
	if err != nil {
		return nil, err
	}
	return reconcile.LatestPerMachine(dataset.AllRuns()), nil
}

// machineComparison is the JSON output shape for one machine.
type machineComparison struct {
	Machine    string                `json:"machine"`
	Date       string                `json:"date"`
	Commit     string                `json:"commit"`
	BuildLabel string                `json:"build_label"`
	Rows       []types.ComparisonRow `json:"rows"`
	Stats      types.ComparisonStats `json:"stats"`
}

func comparisons(pairs map[string]reconcile.Pair) []machineComparison {
	out := make([]machineComparison, 0, len(pairs))
	for _, machine := range sortedMachines(pairs) {
		pair := pairs[machine]
		rows := compare.Rows(pair.Baseline, pair.Variant)
		out = append(out, machineComparison{
			Machine:    machine,
			Date:       pair.Baseline.Date,
			Commit:     pair.Baseline.Commit,
			BuildLabel: pair.Baseline.BuildLabel,
			Rows:       rows,
			Stats:      compare.Stats(rows),
		})
	}
	return out
}

func printJSON(pairs map[string]reconcile.Pair) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(comparisons(pairs))
}

func printTables(pairs map[string]reconcile.Pair, noColor bool) error {
	for _, c := range comparisons(pairs) {
		fmt.Printf("\n%s  %s  %s (%s)\n", c.Machine, c.Date, c.BuildLabel, shortCommit(c.Commit))

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprint(w, "Benchmark\tBaseline(s)\tJIT(s)\tDelta\tSpeedup\n")
		fmt.Fprint(w, "---------\t-----------\t------\t-----\t-------\n")

		for _, row := range c.Rows {
			fmt.Fprintf(w, "%s\t%.4f\t%.4f\t%s\t%s\n",
				row.Benchmark,
				row.BaselineMean,
				row.VariantMean,
				compare.FormatDelta(row.Delta),
				colorSpeedup(row.Speedup, noColor),
			)
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("failed to flush output: %w", err)
		}

		fmt.Printf("%d benchmarks: %d faster, %d slower, %d same",
			c.Stats.TotalBenchmarks, c.Stats.FasterCount, c.Stats.SlowerCount, c.Stats.SameCount)
		if c.Stats.GeomeanSpeedup != nil {
			fmt.Printf("  (geomean %s)", compare.FormatSpeedup(c.Stats.GeomeanSpeedup))
		}
		fmt.Println()
	}
	return nil
}

func colorSpeedup(speedup *float64, noColor bool) string {
	s := compare.FormatSpeedup(speedup)
	if noColor || speedup == nil {
		return s
	}

	switch {
	case *speedup >= 1.005:
		return "\x1b[32m" + s + "\x1b[0m"
	case *speedup <= 0.995:
		return "\x1b[31m" + s + "\x1b[0m"
	default:
		return s
	}
}

func shortCommit(commit string) string {
	if len(commit) > 8 {
		return commit[:8]
	}
	return commit
}

func sortedMachines(pairs map[string]reconcile.Pair) []string {
	machines := make([]string, 0, len(pairs))
	for machine := range pairs {
		machines = append(machines, machine)
	}
	sort.Strings(machines)
	return machines
}
