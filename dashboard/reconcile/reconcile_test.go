package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jit-bench/dashboard/types"
)

func mkRun(machine, date, commit, key string, variant bool) types.Run {
	return types.Run{
		Date:          date,
		Commit:        commit,
		BuildLabel:    "3.14.0b2",
		IsVariant:     variant,
		Machine:       machine,
		SubmissionKey: key,
		SubmittedAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Benchmarks: map[string]types.BenchmarkMetric{
			"nbody": {Mean: 1.0, Median: 1.0, Min: 1.0, Max: 1.0},
		},
	}
}

func TestLatestPerMachine(t *testing.T) {
	t.Run("greatest submission key wins", func(t *testing.T) {
		runs := []types.Run{
			mkRun("m1", "2025-06-01", "aaa1111", "bm-20250601-3.14.0b2-aaa1111", false),
			mkRun("m1", "2025-06-01", "aaa1111", "bm-20250601-3.14.0b2-aaa1111-JIT", true),
			mkRun("m1", "2025-06-02", "bbb2222", "bm-20250602-3.14.0b2-bbb2222", false),
			mkRun("m1", "2025-06-02", "bbb2222", "bm-20250602-3.14.0b2-bbb2222-JIT", true),
		}

		pairs := LatestPerMachine(runs)

		require.Contains(t, pairs, "m1")
		assert.Equal(t, "2025-06-02", pairs["m1"].Date())
		assert.Equal(t, "bbb2222", pairs["m1"].Baseline.Commit)
		assert.False(t, pairs["m1"].Baseline.IsVariant)
		assert.True(t, pairs["m1"].Variant.IsVariant)
	})

	t.Run("selection is input order insensitive", func(t *testing.T) {
		a := mkRun("m1", "2025-06-01", "aaa", "bm-20250601-3.14-aaa", false)
		aj := mkRun("m1", "2025-06-01", "aaa", "bm-20250601-3.14-aaa-JIT", true)
		b := mkRun("m1", "2025-06-01", "bbb", "bm-20250601-3.14-bbb", false)
		bj := mkRun("m1", "2025-06-01", "bbb", "bm-20250601-3.14-bbb-JIT", true)

		orders := [][]types.Run{
			{a, aj, b, bj},
			{b, bj, a, aj},
			{bj, a, b, aj},
			{aj, bj, b, a},
		}

		for _, runs := range orders {
			pairs := LatestPerMachine(runs)
			require.Contains(t, pairs, "m1")
			assert.Equal(t, "bbb", pairs["m1"].Baseline.Commit)
		}
	})

	t.Run("equal keys fall back to submission time", func(t *testing.T) {
		older := mkRun("m1", "2025-06-01", "aaa", "bm-20250601-3.14-xxx", false)
		olderJIT := mkRun("m1", "2025-06-01", "aaa", "bm-20250601-3.14-xxx", true)
		newer := mkRun("m1", "2025-06-01", "bbb", "bm-20250601-3.14-xxx", false)
		newerJIT := mkRun("m1", "2025-06-01", "bbb", "bm-20250601-3.14-xxx", true)
		newer.SubmittedAt = newer.SubmittedAt.Add(time.Hour)
		newerJIT.SubmittedAt = newerJIT.SubmittedAt.Add(time.Hour)

		pairs := LatestPerMachine([]types.Run{older, olderJIT, newer, newerJIT})

		require.Contains(t, pairs, "m1")
		assert.Equal(t, "bbb", pairs["m1"].Baseline.Commit)
	})

	t.Run("exact ties keep the first submission seen", func(t *testing.T) {
		first := mkRun("m1", "2025-06-01", "aaa", "bm-20250601-3.14-xxx", false)
		firstJIT := mkRun("m1", "2025-06-01", "aaa", "bm-20250601-3.14-xxx", true)
		second := mkRun("m1", "2025-06-01", "bbb", "bm-20250601-3.14-xxx", false)
		secondJIT := mkRun("m1", "2025-06-01", "bbb", "bm-20250601-3.14-xxx", true)

		pairs := LatestPerMachine([]types.Run{first, firstJIT, second, secondJIT})

		require.Contains(t, pairs, "m1")
		assert.Equal(t, "aaa", pairs["m1"].Baseline.Commit)
	})

	t.Run("machines without a complete pair are dropped", func(t *testing.T) {
		runs := []types.Run{
			mkRun("m1", "2025-06-01", "aaa", "bm-20250601-3.14-aaa", false),
			mkRun("m1", "2025-06-01", "aaa", "bm-20250601-3.14-aaa-JIT", true),
			mkRun("m2", "2025-06-01", "aaa", "bm-20250601-3.14-aaa", false),
		}

		pairs := LatestPerMachine(runs)

		assert.Contains(t, pairs, "m1")
		assert.NotContains(t, pairs, "m2")
		assert.Len(t, runs, 3)
	})

	t.Run("newer incomplete submission hides the older pair", func(t *testing.T) {
		runs := []types.Run{
			mkRun("m1", "2025-06-01", "aaa", "bm-20250601-3.14-aaa", false),
			mkRun("m1", "2025-06-01", "aaa", "bm-20250601-3.14-aaa-JIT", true),
			mkRun("m1", "2025-06-02", "bbb", "bm-20250602-3.14-bbb", false),
		}

		pairs := LatestPerMachine(runs)

		assert.NotContains(t, pairs, "m1")
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, LatestPerMachine(nil))
	})
}

func TestRunsForDay(t *testing.T) {
	runs := []types.Run{
		mkRun("m1", "2025-06-01", "aaa", "bm-20250601-3.14-aaa", false),
		mkRun("m1", "2025-06-01", "aaa", "bm-20250601-3.14-aaa-JIT", true),
		mkRun("m1", "2025-06-02", "bbb", "bm-20250602-3.14-bbb", false),
		mkRun("m2", "2025-06-01", "aaa", "bm-20250601-3.14-aaa", false),
	}

	t.Run("no runs for the day", func(t *testing.T) {
		selected := RunsForDay(runs, "2025-05-31")
		assert.NotNil(t, selected)
		assert.Empty(t, selected)
	})

	t.Run("all runs of the winning submission, paired or not", func(t *testing.T) {
		selected := RunsForDay(runs, "2025-06-01")

		require.Len(t, selected, 3)
		assert.Equal(t, "m1", selected[0].Machine)
		assert.False(t, selected[0].IsVariant)
		assert.Equal(t, "m1", selected[1].Machine)
		assert.True(t, selected[1].IsVariant)
		assert.Equal(t, "m2", selected[2].Machine)
	})

	t.Run("rerun with greater key supersedes the complete pair", func(t *testing.T) {
		rerun := append([]types.Run{}, runs...)
		rerun = append(rerun, mkRun("m1", "2025-06-01", "ccc", "bm-20250601-3.14-ccc", false))

		selected := RunsForDay(rerun, "2025-06-01")

		var m1 []types.Run
		for _, r := range selected {
			if r.Machine == "m1" {
				m1 = append(m1, r)
			}
		}
		require.Len(t, m1, 1)
		assert.Equal(t, "ccc", m1[0].Commit)
	})

	t.Run("idempotent", func(t *testing.T) {
		once := RunsForDay(runs, "2025-06-01")
		twice := RunsForDay(once, "2025-06-01")
		assert.Equal(t, once, twice)
	})
}

func TestPairs(t *testing.T) {
	day := []types.Run{
		mkRun("m1", "2025-06-01", "aaa", "bm-20250601-3.14-aaa", false),
		mkRun("m1", "2025-06-01", "aaa", "bm-20250601-3.14-aaa-JIT", true),
		mkRun("m2", "2025-06-01", "aaa", "bm-20250601-3.14-aaa", false),
	}

	pairs := Pairs(day)

	require.Contains(t, pairs, "m1")
	assert.NotContains(t, pairs, "m2")
	assert.False(t, pairs["m1"].Baseline.IsVariant)
	assert.True(t, pairs["m1"].Variant.IsVariant)
}

func TestMachinesAndDays(t *testing.T) {
	runs := []types.Run{
		mkRun("m2", "2025-06-02", "aaa", "k1", false),
		mkRun("m1", "2025-06-01", "aaa", "k2", false),
		mkRun("m2", "2025-06-01", "aaa", "k3", true),
	}

	assert.Equal(t, []string{"m1", "m2"}, Machines(runs))
	assert.Equal(t, []string{"2025-06-01", "2025-06-02"}, Days(runs))
}

func BenchmarkLatestPerMachine(b *testing.B) {
	runs := make([]types.Run, 0, 200)
	for day := 1; day <= 25; day++ {
		date := time.Date(2025, 6, day, 0, 0, 0, 0, time.UTC).Format(types.DateLayout)
		for _, machine := range []string{"m1", "m2", "m3", "m4"} {
			key := "bm-202506" + date[8:] + "-3.14-abc"
			runs = append(runs, mkRun(machine, date, "abc", key, false))
			runs = append(runs, mkRun(machine, date, "abc", key+"-JIT", true))
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		LatestPerMachine(runs)
	}
}
