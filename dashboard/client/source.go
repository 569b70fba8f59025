// Package client fetches benchmark datasets from an upstream results
// endpoint and validates them before they enter the dashboard.
package client

import (
	"context"

	"github.com/jit-bench/dashboard/types"
)

// Source provides benchmark datasets. Implementations fetch over HTTP or
// load from a local results tree; the service layer does not care which.
type Source interface {
	// FetchSummary returns the runs for the trailing days window.
	FetchSummary(ctx context.Context, days int) (*types.Dataset, error)
	// FetchDay returns every run submitted for a single date.
	FetchDay(ctx context.Context, date string) (*types.Dataset, error)
}
