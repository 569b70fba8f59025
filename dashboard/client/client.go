package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/xeipuuv/gojsonschema"

	"github.com/jit-bench/dashboard/config"
	"github.com/jit-bench/dashboard/types"
)

// ResultsClient fetches datasets from a results HTTP endpoint. Responses
// are schema-checked and domain-validated before being handed out, so a
// misbehaving upstream cannot push malformed runs into the dashboard.
type ResultsClient struct {
	baseURL string
	client  *http.Client
	schema  *gojsonschema.Schema
	log     logrus.FieldLogger
}

// NewResultsClient creates a client for the endpoint configured in cfg.
func NewResultsClient(cfg *config.SourceConfig, log logrus.FieldLogger) (*ResultsClient, error) {
	schema, err := compileDatasetSchema()
	if err != nil {
		return nil, err
	}

	return &ResultsClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client: &http.Client{
			Timeout: cfg.Timeout.Std(),
		},
		schema: schema,
		log:    log.WithField("component", "results-client"),
	}, nil
}

// FetchSummary returns the runs for the trailing days window.
func (c *ResultsClient) FetchSummary(ctx context.Context, days int) (*types.Dataset, error) {
	endpoint := fmt.Sprintf("%s/api/summary?days=%d", c.baseURL, days)
	return c.fetchDataset(ctx, endpoint)
}

// FetchDay returns every run submitted for a single date.
func (c *ResultsClient) FetchDay(ctx context.Context, date string) (*types.Dataset, error) {
	endpoint := fmt.Sprintf("%s/api/days/%s", c.baseURL, url.PathEscape(date))
	return c.fetchDataset(ctx, endpoint)
}

func (c *ResultsClient) fetchDataset(ctx context.Context, endpoint string) (*types.Dataset, error) {
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	if err := validateDataset(c.schema, body); err != nil {
		return nil, &types.FetchError{URL: endpoint, StatusCode: http.StatusOK, Err: err}
	}

	var dataset types.Dataset
	if err := json.Unmarshal(body, &dataset); err != nil {
		return nil, &types.FetchError{URL: endpoint, StatusCode: http.StatusOK, Err: fmt.Errorf("failed to decode dataset: %w", err)}
	}

	// Domain validation surfaces malformed metrics as-is.
	if err := dataset.Validate(); err != nil {
		return nil, err
	}

	return &dataset, nil
}

func (c *ResultsClient) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.log.WithField("url", endpoint).Debug("Fetching upstream dataset")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &types.FetchError{URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &types.FetchError{URL: endpoint, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &types.FetchError{
			URL:        endpoint,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status: %s", strings.TrimSpace(string(body))),
		}
	}

	return body, nil
}
