package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jit-bench/dashboard/config"
	"github.com/jit-bench/dashboard/types"
)

const summaryFixture = `{
  "days": 30,
  "machines": {
    "beefy-linux-x64": [
      {
        "date": "2026-03-14",
        "commit": "a1b2c3d4e5f6a7b8c9d0a1b2c3d4e5f6a7b8c9d0",
        "build_label": "v3.1",
        "is_variant": false,
        "machine": "beefy-linux-x64",
        "submission_key": "bm-20260314-v3.1-a1b2c3d4",
        "submitted_at": "2026-03-14T06:12:00Z",
        "aggregate_metric": 1.25,
        "speedup_vs_baseline": null,
        "benchmarks": {
          "richards": {"mean": 2.0, "median": 1.9, "stddev": 0.1, "min": 1.8, "max": 2.3}
        }
      },
      {
        "date": "2026-03-14",
        "commit": "a1b2c3d4e5f6a7b8c9d0a1b2c3d4e5f6a7b8c9d0",
        "build_label": "v3.1",
        "is_variant": true,
        "machine": "beefy-linux-x64",
        "submission_key": "bm-20260314-v3.1-a1b2c3d4-JIT",
        "submitted_at": "2026-03-14T06:15:00Z",
        "aggregate_metric": 1.1,
        "speedup_vs_baseline": 1.111,
        "benchmarks": {
          "richards": {"mean": 1.8, "median": 1.7, "stddev": 0.1, "min": 1.6, "max": 2.0}
        }
      }
    ]
  }
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) (*ResultsClient, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	client, err := NewResultsClient(&config.SourceConfig{
		BaseURL: server.URL,
		Timeout: config.Duration(5 * time.Second),
	}, logger)
	require.NoError(t, err)

	return client, server
}

func TestFetchSummaryDecodesDataset(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/summary", r.URL.Path)
		assert.Equal(t, "30", r.URL.Query().Get("days"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, summaryFixture)
	})

	dataset, err := client.FetchSummary(context.Background(), 30)
	require.NoError(t, err)

	assert.Equal(t, 30, dataset.Days)
	require.Contains(t, dataset.Machines, "beefy-linux-x64")

	runs := dataset.Machines["beefy-linux-x64"]
	require.Len(t, runs, 2)

	baseline := runs[0]
	assert.Equal(t, "2026-03-14", baseline.Date)
	assert.Equal(t, "bm-20260314-v3.1-a1b2c3d4", baseline.SubmissionKey)
	assert.False(t, baseline.IsVariant)
	require.NotNil(t, baseline.AggregateMetric)
	assert.InDelta(t, 1.25, *baseline.AggregateMetric, 1e-9)
	assert.Nil(t, baseline.SpeedupVsBaseline)

	variant := runs[1]
	assert.True(t, variant.IsVariant)
	require.NotNil(t, variant.SpeedupVsBaseline)
	assert.InDelta(t, 1.111, *variant.SpeedupVsBaseline, 1e-9)
	assert.InDelta(t, 1.8, variant.Benchmarks["richards"].Mean, 1e-9)
}

func TestFetchDayRequestsDatePath(t *testing.T) {
	var gotPath string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"days": 1, "machines": {}}`)
	})

	dataset, err := client.FetchDay(context.Background(), "2026-03-14")
	require.NoError(t, err)

	assert.Equal(t, "/api/days/2026-03-14", gotPath)
	assert.True(t, dataset.IsEmpty())
}

func TestFetchSummaryStatusError(t *testing.T) {
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	_, err := client.FetchSummary(context.Background(), 30)
	require.Error(t, err)

	var fetchErr *types.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusBadGateway, fetchErr.StatusCode)
	assert.Contains(t, fetchErr.URL, server.URL)
	assert.Contains(t, fetchErr.Err.Error(), "bad gateway")
}

func TestFetchSummaryConnectionError(t *testing.T) {
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	server.Close()

	_, err := client.FetchSummary(context.Background(), 30)
	require.Error(t, err)

	var fetchErr *types.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, 0, fetchErr.StatusCode)
}

func TestFetchSummarySchemaRejections(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "machines missing",
			body: `{"days": 30}`,
		},
		{
			name: "runs not an array",
			body: `{"days": 30, "machines": {"m1": {}}}`,
		},
		{
			name: "run missing submission key",
			body: `{"days": 30, "machines": {"m1": [{
				"date": "2026-03-14", "commit": "c", "build_label": "v3.1",
				"is_variant": false, "machine": "m1",
				"submitted_at": "2026-03-14T06:12:00Z", "benchmarks": {}
			}]}}`,
		},
		{
			name: "metric missing mean",
			body: `{"days": 30, "machines": {"m1": [{
				"date": "2026-03-14", "commit": "c", "build_label": "v3.1",
				"is_variant": false, "machine": "m1",
				"submission_key": "bm-20260314-v3.1-c",
				"submitted_at": "2026-03-14T06:12:00Z",
				"benchmarks": {"richards": {"median": 1.0, "stddev": 0.1, "min": 0.9, "max": 1.1}}
			}]}}`,
		},
		{
			name: "date not a date",
			body: `{"days": 30, "machines": {"m1": [{
				"date": "20260314", "commit": "c", "build_label": "v3.1",
				"is_variant": false, "machine": "m1",
				"submission_key": "bm-20260314-v3.1-c",
				"submitted_at": "2026-03-14T06:12:00Z", "benchmarks": {}
			}]}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tt.body)
			})

			_, err := client.FetchSummary(context.Background(), 30)
			require.Error(t, err)

			var fetchErr *types.FetchError
			require.ErrorAs(t, err, &fetchErr)
			assert.Contains(t, err.Error(), "schema")
		})
	}
}

func TestFetchSummarySurfacesMalformedMetric(t *testing.T) {
	body := `{"days": 30, "machines": {"m1": [{
		"date": "2026-03-14", "commit": "c", "build_label": "v3.1",
		"is_variant": false, "machine": "m1",
		"submission_key": "bm-20260314-v3.1-c",
		"submitted_at": "2026-03-14T06:12:00Z",
		"benchmarks": {"richards": {"mean": -0.5, "median": 1.0, "stddev": 0.1, "min": 0.9, "max": 1.1}}
	}]}}`

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	})

	_, err := client.FetchSummary(context.Background(), 30)
	require.Error(t, err)

	var malformed *types.MalformedMetricError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "mean", malformed.Field)
	assert.Equal(t, -0.5, malformed.Value)
}

func TestFetchSummaryBrokenJSON(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"days": 30, "machines":`)
	})

	_, err := client.FetchSummary(context.Background(), 30)
	require.Error(t, err)

	var fetchErr *types.FetchError
	assert.ErrorAs(t, err, &fetchErr)
}
