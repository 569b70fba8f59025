// Package reconcile selects the authoritative benchmark runs per machine
// when multiple submissions exist for the same machine or day.
package reconcile

import (
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/jit-bench/dashboard/types"
)

// Pair holds the two sides of a complete submission. Both pointers are
// always set on pairs produced by this package.
type Pair struct {
	Baseline *types.Run
	Variant  *types.Run
}

// Date returns the pair's day, taken from the baseline side.
func (p Pair) Date() string {
	return p.Baseline.Date
}

// submission is one machine+date+build+commit group of runs. Baseline and
// variant sides of the same upload land in the same group; their submission
// keys differ only by the variant suffix.
type submission struct {
	runs   []*types.Run
	maxKey string
	maxAt  time.Time
}

func (s *submission) add(run *types.Run) {
	s.runs = append(s.runs, run)
	if run.SubmissionKey > s.maxKey {
		s.maxKey = run.SubmissionKey
	}
	if run.SubmittedAt.After(s.maxAt) {
		s.maxAt = run.SubmittedAt
	}
}

// beats reports whether s wins over other: greatest submission key first,
// greatest submission time second. Exact ties lose, which keeps the earlier
// group and makes selection stable in input order.
func (s *submission) beats(other *submission) bool {
	if s.maxKey != other.maxKey {
		return s.maxKey > other.maxKey
	}
	return s.maxAt.After(other.maxAt)
}

type groupKey struct {
	date   string
	label  string
	commit string
}

// groupSubmissions splits one machine's runs into submissions, preserving
// first-seen order.
func groupSubmissions(runs []types.Run) []*submission {
	index := make(map[groupKey]*submission)
	ordered := make([]*submission, 0)

	for i := range runs {
		run := &runs[i]
		key := groupKey{date: run.Date, label: run.BuildLabel, commit: run.Commit}
		sub, ok := index[key]
		if !ok {
			sub = &submission{}
			index[key] = sub
			ordered = append(ordered, sub)
		}
		sub.add(run)
	}
	return ordered
}

// selectWinner picks the authoritative submission from a machine's groups.
func selectWinner(subs []*submission) *submission {
	var winner *submission
	for _, sub := range subs {
		if winner == nil || sub.beats(winner) {
			winner = sub
		}
	}
	return winner
}

// pickSide picks one run of the wanted kind from a submission, preferring
// the greatest submission key, then the greatest submission time, keeping
// the first seen on exact ties.
func pickSide(sub *submission, variant bool) *types.Run {
	var picked *types.Run
	for _, run := range sub.runs {
		if run.IsVariant != variant {
			continue
		}
		if picked == nil {
			picked = run
			continue
		}
		if run.SubmissionKey > picked.SubmissionKey ||
			(run.SubmissionKey == picked.SubmissionKey && run.SubmittedAt.After(picked.SubmittedAt)) {
			picked = run
		}
	}
	return picked
}

// LatestPerMachine selects, for every machine, the most recent submission
// and returns it as a baseline/variant pair. Machines whose winning
// submission is missing either side are absent from the result; their runs
// stay untouched in the input. Selection is insensitive to input order
// except for exact key+time ties, which keep the first run seen.
func LatestPerMachine(runs []types.Run) map[string]Pair {
	pairs := make(map[string]Pair)

	byMachine := lo.GroupBy(runs, func(r types.Run) string { return r.Machine })
	for machine, machineRuns := range byMachine {
		winner := selectWinner(groupSubmissions(machineRuns))
		if winner == nil {
			continue
		}

		baseline := pickSide(winner, false)
		variant := pickSide(winner, true)
		if baseline == nil || variant == nil {
			continue
		}
		pairs[machine] = Pair{Baseline: baseline, Variant: variant}
	}
	return pairs
}

// RunsForDay returns the authoritative runs for one day: per machine, every
// run of the submission with the greatest key, paired or not. The result is
// empty when no run matches the day, and is ordered machine ascending with
// baselines before variants.
func RunsForDay(runs []types.Run, day string) []types.Run {
	dayRuns := lo.Filter(runs, func(r types.Run, _ int) bool { return r.Date == day })
	if len(dayRuns) == 0 {
		return []types.Run{}
	}

	selected := make([]types.Run, 0, len(dayRuns))
	byMachine := lo.GroupBy(dayRuns, func(r types.Run) string { return r.Machine })
	for _, machine := range sortedKeys(byMachine) {
		winner := selectWinner(groupSubmissions(byMachine[machine]))
		if winner == nil {
			continue
		}

		group := make([]types.Run, 0, len(winner.runs))
		for _, run := range winner.runs {
			group = append(group, *run)
		}
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].IsVariant != group[j].IsVariant {
				return !group[i].IsVariant
			}
			return group[i].SubmissionKey < group[j].SubmissionKey
		})
		selected = append(selected, group...)
	}
	return selected
}

// Pairs matches baseline and variant sides per machine within an already
// reconciled slice (one submission per machine, as produced by RunsForDay).
// Machines missing either side are absent from the result.
func Pairs(runs []types.Run) map[string]Pair {
	pairs := make(map[string]Pair)

	byMachine := lo.GroupBy(runs, func(r types.Run) string { return r.Machine })
	for machine, machineRuns := range byMachine {
		sub := &submission{}
		for i := range machineRuns {
			sub.add(&machineRuns[i])
		}

		baseline := pickSide(sub, false)
		variant := pickSide(sub, true)
		if baseline == nil || variant == nil {
			continue
		}
		pairs[machine] = Pair{Baseline: baseline, Variant: variant}
	}
	return pairs
}

// Machines returns the distinct machine names in the runs, sorted.
func Machines(runs []types.Run) []string {
	machines := lo.Uniq(lo.Map(runs, func(r types.Run, _ int) string { return r.Machine }))
	sort.Strings(machines)
	return machines
}

// Days returns the distinct days in the runs, sorted ascending.
func Days(runs []types.Run) []string {
	days := lo.Uniq(lo.Map(runs, func(r types.Run, _ int) string { return r.Date }))
	sort.Strings(days)
	return days
}

func sortedKeys[V any](m map[string]V) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}
