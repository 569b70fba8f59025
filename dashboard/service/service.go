// Package service exposes the dashboard's data contract: cached summary,
// single-day detail and per-benchmark trend views assembled from reconciled
// benchmark runs.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/jit-bench/dashboard/cache"
	"github.com/jit-bench/dashboard/client"
	"github.com/jit-bench/dashboard/compare"
	"github.com/jit-bench/dashboard/config"
	"github.com/jit-bench/dashboard/reconcile"
	"github.com/jit-bench/dashboard/types"
)

// DefaultDays is the summary window used when the caller does not ask for
// a specific one.
const DefaultDays = 30

// ErrUnknownBenchmark is returned when a trend is requested for a benchmark
// name absent from the whole window.
var ErrUnknownBenchmark = errors.New("unknown benchmark")

var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// Notifier receives events about data changes, typically a WebSocket hub.
type Notifier interface {
	NotifyDatasetRefreshed(shape string, params map[string]interface{})
	NotifyCacheCleared(count int)
}

// Service is the dashboard's exposed data contract.
type Service interface {
	// Summary returns per-machine trends and latest comparisons over a
	// trailing window of days. force bypasses the cache.
	Summary(ctx context.Context, days int, force bool) (*types.TrendSummary, error)
	// DayDetail returns the authoritative runs and comparisons for one day.
	DayDetail(ctx context.Context, date string, force bool) (*types.DayDetail, error)
	// BenchmarkTrend returns one benchmark's history over a window, for all
	// machines or a single one.
	BenchmarkTrend(ctx context.Context, name string, days int, machine string) (*types.BenchmarkTrend, error)
	// ClearCache drops every cached dataset and returns how many entries
	// were removed. Best-effort, never fails.
	ClearCache() int
}

type service struct {
	source   client.Source
	cache    *cache.FetchCache
	cfg      *config.CacheConfig
	notifier Notifier
	now      func() time.Time
	log      logrus.FieldLogger
}

// NewService wires the upstream source, the fetch cache and an optional
// notifier into the dashboard service. A nil cache disables caching, a nil
// notifier disables events.
func NewService(
	source client.Source,
	fetchCache *cache.FetchCache,
	cfg *config.CacheConfig,
	notifier Notifier,
	log logrus.FieldLogger,
) Service {
	return &service{
		source:   source,
		cache:    fetchCache,
		cfg:      cfg,
		notifier: notifier,
		now:      time.Now,
		log:      log.WithField("component", "dashboard-service"),
	}
}

func (s *service) Summary(ctx context.Context, days int, force bool) (*types.TrendSummary, error) {
	days = s.clampDays(days)

	dataset, err := s.dataset(ctx, datasetRequest{
		key:   fmt.Sprintf("summary:days=%d", days),
		ttl:   s.cfg.SummaryTTL.Std(),
		force: force,
		shape: "summary",
		params: map[string]interface{}{
			"days": days,
		},
		fetch: func(ctx context.Context) (*types.Dataset, error) {
			return s.source.FetchSummary(ctx, days)
		},
	})
	if err != nil {
		return nil, err
	}

	return s.buildSummary(dataset, days), nil
}

func (s *service) DayDetail(ctx context.Context, date string, force bool) (*types.DayDetail, error) {
	if err := types.ValidateDate(date); err != nil {
		return nil, err
	}

	dataset, err := s.dataset(ctx, datasetRequest{
		key:   "day:" + date,
		ttl:   s.cfg.DayTTL.Std(),
		force: force,
		shape: "day",
		params: map[string]interface{}{
			"date": date,
		},
		fetch: func(ctx context.Context) (*types.Dataset, error) {
			return s.source.FetchDay(ctx, date)
		},
	})
	if err != nil {
		return nil, err
	}

	return s.buildDayDetail(dataset, date), nil
}

func (s *service) BenchmarkTrend(ctx context.Context, name string, days int, machine string) (*types.BenchmarkTrend, error) {
	days = s.clampDays(days)

	dataset, err := s.dataset(ctx, datasetRequest{
		key:   fmt.Sprintf("summary:days=%d", days),
		ttl:   s.cfg.SummaryTTL.Std(),
		shape: "summary",
		params: map[string]interface{}{
			"days": days,
		},
		fetch: func(ctx context.Context) (*types.Dataset, error) {
			return s.source.FetchSummary(ctx, days)
		},
	})
	if err != nil {
		return nil, err
	}

	trend := &types.BenchmarkTrend{
		Benchmark: name,
		Machine:   machine,
		Days:      days,
		Points:    []types.BenchmarkTrendPoint{},
	}

	found := false
	for _, machineName := range dataset.MachineNames() {
		if machine != "" && machineName != machine {
			continue
		}

		machineRuns := dataset.Machines[machineName]
		for _, day := range reconcile.Days(machineRuns) {
			baseline, variant := splitSides(reconcile.RunsForDay(machineRuns, day))

			point := types.BenchmarkTrendPoint{
				Date:    day,
				Machine: machineName,
			}
			if baseline != nil {
				point.Commit = baseline.Commit
				if metric, ok := baseline.Benchmarks[name]; ok {
					mean := metric.Mean
					point.BaselineMean = &mean
					found = true
				}
			}
			if variant != nil {
				if point.Commit == "" {
					point.Commit = variant.Commit
				}
				if metric, ok := variant.Benchmarks[name]; ok {
					mean := metric.Mean
					point.VariantMean = &mean
					found = true
				}
			}

			if point.BaselineMean == nil && point.VariantMean == nil {
				continue
			}
			if point.BaselineMean != nil && point.VariantMean != nil && *point.VariantMean > 0 {
				speedup := *point.BaselineMean / *point.VariantMean
				point.Speedup = &speedup
			}
			trend.Points = append(trend.Points, point)
		}
	}

	if !found {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBenchmark, name)
	}

	sort.SliceStable(trend.Points, func(i, j int) bool {
		if trend.Points[i].Date != trend.Points[j].Date {
			return trend.Points[i].Date < trend.Points[j].Date
		}
		return trend.Points[i].Machine < trend.Points[j].Machine
	})
	return trend, nil
}

func (s *service) ClearCache() int {
	if s.cache == nil {
		return 0
	}

	cleared := s.cache.ClearNamespace()
	s.log.WithField("entries", cleared).Info("Cleared dataset cache")

	if s.notifier != nil {
		s.notifier.NotifyCacheCleared(cleared)
	}
	return cleared
}

// datasetRequest describes one cached dataset lookup.
type datasetRequest struct {
	key    string
	ttl    time.Duration
	force  bool
	shape  string
	params map[string]interface{}
	fetch  func(ctx context.Context) (*types.Dataset, error)
}

// dataset resolves a request through the cache when one is configured,
// falling back to direct fetches otherwise. Fresh fetches fire a refresh
// notification; cache hits do not.
func (s *service) dataset(ctx context.Context, req datasetRequest) (*types.Dataset, error) {
	fetchEncoded := func(ctx context.Context) ([]byte, error) {
		dataset, err := req.fetch(ctx)
		if err != nil {
			return nil, err
		}
		encoded, err := jsonCodec.Marshal(dataset)
		if err != nil {
			return nil, fmt.Errorf("failed to encode dataset: %w", err)
		}
		s.notifyRefreshed(req.shape, req.params)
		return encoded, nil
	}

	var payload []byte
	var err error
	if s.cache == nil {
		payload, err = fetchEncoded(ctx)
	} else {
		payload, err = s.cache.Get(ctx, cache.Request{
			Key:      req.key,
			TTL:      req.ttl,
			Force:    req.force,
			Validate: validateCachedDataset,
			Fetch:    fetchEncoded,
		})
	}
	if err != nil {
		return nil, err
	}

	var dataset types.Dataset
	if err := jsonCodec.Unmarshal(payload, &dataset); err != nil {
		return nil, fmt.Errorf("failed to decode dataset: %w", err)
	}
	return &dataset, nil
}

// validateCachedDataset rejects cached payloads that decode to a dataset
// with no machines at all: those are void fetches, not quiet days, and must
// never be served as data.
func validateCachedDataset(data []byte) error {
	var dataset types.Dataset
	if err := jsonCodec.Unmarshal(data, &dataset); err != nil {
		return fmt.Errorf("failed to decode cached dataset: %w", err)
	}
	if dataset.IsEmpty() {
		return errors.New("cached dataset has no machines")
	}
	return nil
}

func (s *service) notifyRefreshed(shape string, params map[string]interface{}) {
	if s.notifier == nil {
		return
	}
	s.notifier.NotifyDatasetRefreshed(shape, params)
}

func (s *service) clampDays(days int) int {
	if days <= 0 {
		return DefaultDays
	}
	if days > s.cfg.MaxDays {
		return s.cfg.MaxDays
	}
	return days
}

// buildSummary derives the trend view from a raw dataset: per machine one
// trend point per day plus the latest complete comparison.
func (s *service) buildSummary(dataset *types.Dataset, days int) *types.TrendSummary {
	allRuns := dataset.AllRuns()

	summary := &types.TrendSummary{
		Days:        days,
		Machines:    dataset.MachineNames(),
		Trends:      make(map[string][]types.TrendPoint),
		Latest:      make(map[string]types.MachineLatest),
		GeneratedAt: s.now(),
	}

	for machine, pair := range reconcile.LatestPerMachine(allRuns) {
		rows := compare.Rows(pair.Baseline, pair.Variant)
		summary.Latest[machine] = types.MachineLatest{
			Machine:     machine,
			Date:        pair.Date(),
			Commit:      pair.Baseline.Commit,
			BuildLabel:  pair.Baseline.BuildLabel,
			SubmittedAt: latestOf(pair.Baseline.SubmittedAt, pair.Variant.SubmittedAt),
			Rows:        rows,
			Stats:       compare.Stats(rows),
		}
	}

	for _, machine := range summary.Machines {
		machineRuns := dataset.Machines[machine]
		points := make([]types.TrendPoint, 0, len(machineRuns)/2)

		for _, day := range reconcile.Days(machineRuns) {
			baseline, variant := splitSides(reconcile.RunsForDay(machineRuns, day))
			points = append(points, trendPoint(day, baseline, variant))
		}
		summary.Trends[machine] = points
	}

	return summary
}

// buildDayDetail groups one day's authoritative runs per machine, marking
// which machines have a comparable pair. Unpaired runs are listed but
// excluded from comparison rows.
func (s *service) buildDayDetail(dataset *types.Dataset, date string) *types.DayDetail {
	selected := reconcile.RunsForDay(dataset.AllRuns(), date)
	pairs := reconcile.Pairs(selected)

	detail := &types.DayDetail{
		Date:        date,
		Machines:    make(map[string]types.MachineDay),
		GeneratedAt: s.now(),
	}

	byMachine := lo.GroupBy(selected, func(r types.Run) string { return r.Machine })
	for machine, runs := range byMachine {
		day := types.MachineDay{
			Machine: machine,
			Runs:    runs,
		}
		if pair, ok := pairs[machine]; ok {
			rows := compare.Rows(pair.Baseline, pair.Variant)
			stats := compare.Stats(rows)
			day.Paired = true
			day.Rows = rows
			day.Stats = &stats
		}
		detail.Machines[machine] = day
	}

	return detail
}

// trendPoint condenses one machine's day into a chart point. The published
// speedup on the variant run wins when present; otherwise the ratio of the
// two aggregates is used.
func trendPoint(day string, baseline, variant *types.Run) types.TrendPoint {
	point := types.TrendPoint{Date: day}

	if baseline != nil {
		point.Commit = baseline.Commit
		point.BuildLabel = baseline.BuildLabel
		point.BaselineAggregate = baseline.AggregateMetric
	}
	if variant != nil {
		if point.Commit == "" {
			point.Commit = variant.Commit
			point.BuildLabel = variant.BuildLabel
		}
		point.VariantAggregate = variant.AggregateMetric
	}

	switch {
	case variant != nil && variant.SpeedupVsBaseline != nil:
		point.Speedup = variant.SpeedupVsBaseline
	case point.BaselineAggregate != nil && point.VariantAggregate != nil && *point.VariantAggregate > 0:
		speedup := *point.BaselineAggregate / *point.VariantAggregate
		point.Speedup = &speedup
	}

	return point
}

// splitSides picks the baseline and variant run from one machine's
// reconciled day selection. Either side may be nil.
func splitSides(runs []types.Run) (baseline, variant *types.Run) {
	for i := range runs {
		if runs[i].IsVariant {
			if variant == nil {
				variant = &runs[i]
			}
		} else if baseline == nil {
			baseline = &runs[i]
		}
	}
	return baseline, variant
}

func latestOf(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
