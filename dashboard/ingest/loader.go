package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jit-bench/dashboard/compare"
	"github.com/jit-bench/dashboard/config"
	"github.com/jit-bench/dashboard/types"
)

const defaultConcurrency = 8

// Loader builds datasets from a local results tree. It satisfies the same
// Source contract as the HTTP results client, so a dashboard can run
// self-contained against a checkout of the results repository.
type Loader struct {
	dir         string
	concurrency int
	log         logrus.FieldLogger
}

// NewLoader creates a loader over cfg.ResultsDir.
func NewLoader(cfg *config.SourceConfig, log logrus.FieldLogger) *Loader {
	return &Loader{
		dir:         cfg.ResultsDir,
		concurrency: defaultConcurrency,
		log:         log.WithField("component", "results-loader"),
	}
}

// FetchSummary loads the tree and keeps the trailing days window, anchored
// at the most recent run date so a stale checkout still yields data.
func (l *Loader) FetchSummary(ctx context.Context, days int) (*types.Dataset, error) {
	dataset, err := l.Load(ctx)
	if err != nil {
		return nil, err
	}

	allDays := datasetDays(dataset)
	if len(allDays) == 0 {
		return &types.Dataset{Days: days, Machines: map[string][]types.Run{}}, nil
	}

	anchor, err := time.Parse(types.DateLayout, allDays[len(allDays)-1])
	if err != nil {
		return nil, fmt.Errorf("failed to parse anchor date: %w", err)
	}
	cutoff := anchor.AddDate(0, 0, -(days - 1)).Format(types.DateLayout)

	return filterDataset(dataset, days, func(r types.Run) bool {
		return r.Date >= cutoff
	}), nil
}

// FetchDay loads the tree filtered to a single date.
func (l *Loader) FetchDay(ctx context.Context, date string) (*types.Dataset, error) {
	if err := types.ValidateDate(date); err != nil {
		return nil, err
	}

	dataset, err := l.Load(ctx)
	if err != nil {
		return nil, err
	}

	return filterDataset(dataset, 1, func(r types.Run) bool {
		return r.Date == date
	}), nil
}

// Load walks the results tree and assembles the full dataset. Directories
// whose submission group is missing either the baseline or the JIT side are
// skipped entirely, matching what the upstream ingester publishes.
func (l *Loader) Load(ctx context.Context) (*types.Dataset, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read results dir %s: %w", l.dir, err)
	}

	var dirs []*DirectoryInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := ParseDirectoryName(entry.Name())
		if err != nil {
			l.log.WithField("dir", entry.Name()).Debug("Skipping non-result directory")
			continue
		}
		dirs = append(dirs, info)
	}
	dirs = completeGroups(dirs)

	runsPerDir := make([][]types.Run, len(dirs))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(l.concurrency)

	for i, info := range dirs {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			runs, err := l.parseDirectory(info)
			if err != nil {
				return fmt.Errorf("directory %s: %w", info.Name, err)
			}
			runsPerDir[i] = runs
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	machines := make(map[string][]types.Run)
	for _, runs := range runsPerDir {
		for _, run := range runs {
			machines[run.Machine] = append(machines[run.Machine], run)
		}
	}
	for machine := range machines {
		sort.SliceStable(machines[machine], func(i, j int) bool {
			return machines[machine][i].SubmissionKey < machines[machine][j].SubmissionKey
		})
	}

	dataset := &types.Dataset{Days: len(datasetDaysFromMachines(machines)), Machines: machines}
	l.log.WithFields(logrus.Fields{
		"directories": len(dirs),
		"machines":    len(machines),
	}).Info("Loaded results tree")
	return dataset, nil
}

// parseDirectory turns one result directory into runs, one per machine
// file. Malformed pyperf data fails the parse; stray files are skipped.
func (l *Loader) parseDirectory(info *DirectoryInfo) ([]types.Run, error) {
	path := filepath.Join(l.dir, info.Name)

	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat: %w", err)
	}
	submittedAt := stat.ModTime()

	machineSpeedups, fallbackSpeedup, hasFallback := l.readReadmeGeomeans(path)

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read: %w", err)
	}

	var runs []types.Run
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		machine, fullCommit, err := ParseResultFileName(entry.Name())
		if err != nil {
			l.log.WithField("file", entry.Name()).Debug("Skipping non-result file")
			continue
		}

		data, err := os.ReadFile(filepath.Join(path, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}

		benchmarks, meta, err := ParsePyperfFile(data)
		if err != nil {
			return nil, fmt.Errorf("file %s: %w", entry.Name(), err)
		}

		commit := info.Commit
		if fullCommit != "" {
			commit = fullCommit
		}

		run := types.Run{
			Date:          info.Date,
			Commit:        commit,
			BuildLabel:    info.BuildLabel,
			IsVariant:     info.IsVariant,
			Machine:       machine,
			SubmissionKey: info.Name,
			SubmittedAt:   submittedAt,
			PythonVersion: meta.PythonVersion,
			Platform:      meta.Platform,
			Benchmarks:    benchmarks,
		}

		if aggregate := aggregateOfMeans(benchmarks); aggregate > 0 {
			run.AggregateMetric = &aggregate
		}
		if info.IsVariant {
			if speedup, ok := machineSpeedups[machine]; ok {
				run.SpeedupVsBaseline = &speedup
			} else if len(machineSpeedups) == 0 && hasFallback {
				speedup := fallbackSpeedup
				run.SpeedupVsBaseline = &speedup
			}
		}

		runs = append(runs, run)
	}

	return runs, nil
}

// readReadmeGeomeans looks for published geometric means in the directory's
// README. Per-machine sections take precedence; the unscoped fallback only
// applies when the README carries no machine headers at all. A missing or
// unparseable README is not an error.
func (l *Loader) readReadmeGeomeans(path string) (map[string]float64, float64, bool) {
	content, err := os.ReadFile(filepath.Join(path, "README.md"))
	if err != nil {
		return nil, 0, false
	}

	scoped := ParseMachineGeomeans(string(content))
	if len(scoped) > 0 {
		return scoped, 0, false
	}

	fallback, ok := ParseReadmeGeomean(string(content))
	return nil, fallback, ok
}

// completeGroups drops directories whose date-version-hash group lacks
// either the baseline or the JIT side.
func completeGroups(dirs []*DirectoryInfo) []*DirectoryInfo {
	byGroup := lo.GroupBy(dirs, func(d *DirectoryInfo) string { return d.GroupKey() })

	return lo.Filter(dirs, func(d *DirectoryInfo, _ int) bool {
		group := byGroup[d.GroupKey()]
		hasBaseline := lo.SomeBy(group, func(g *DirectoryInfo) bool { return !g.IsVariant })
		hasVariant := lo.SomeBy(group, func(g *DirectoryInfo) bool { return g.IsVariant })
		return hasBaseline && hasVariant
	})
}

func aggregateOfMeans(benchmarks map[string]types.BenchmarkMetric) float64 {
	means := make([]float64, 0, len(benchmarks))
	for _, metric := range benchmarks {
		means = append(means, metric.Mean)
	}
	return compare.GeometricMean(means)
}

func filterDataset(dataset *types.Dataset, days int, keep func(types.Run) bool) *types.Dataset {
	filtered := &types.Dataset{Days: days, Machines: make(map[string][]types.Run)}
	for machine, runs := range dataset.Machines {
		kept := lo.Filter(runs, func(r types.Run, _ int) bool { return keep(r) })
		if len(kept) > 0 {
			filtered.Machines[machine] = kept
		}
	}
	return filtered
}

func datasetDays(dataset *types.Dataset) []string {
	return datasetDaysFromMachines(dataset.Machines)
}

func datasetDaysFromMachines(machines map[string][]types.Run) []string {
	daySet := make(map[string]struct{})
	for _, runs := range machines {
		for _, run := range runs {
			daySet[run.Date] = struct{}{}
		}
	}
	days := lo.Keys(daySet)
	sort.Strings(days)
	return days
}
