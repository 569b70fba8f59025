package client

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// datasetSchema describes the wire shape of an upstream dataset. It checks
// structure only; domain rules such as non-negative metrics are enforced by
// types.BenchmarkMetric.Validate so malformed values surface as
// MalformedMetricError instead of a generic schema failure.
const datasetSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["days", "machines"],
  "properties": {
    "days": {"type": "integer", "minimum": 0},
    "machines": {
      "type": "object",
      "additionalProperties": {
        "type": "array",
        "items": {"$ref": "#/definitions/run"}
      }
    }
  },
  "definitions": {
    "run": {
      "type": "object",
      "required": ["date", "commit", "build_label", "is_variant", "machine", "submission_key", "submitted_at", "benchmarks"],
      "properties": {
        "date": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"},
        "commit": {"type": "string"},
        "build_label": {"type": "string"},
        "is_variant": {"type": "boolean"},
        "machine": {"type": "string", "minLength": 1},
        "submission_key": {"type": "string", "minLength": 1},
        "submitted_at": {"type": "string"},
        "python_version": {"type": "string"},
        "platform": {"type": "string"},
        "aggregate_metric": {"type": ["number", "null"]},
        "speedup_vs_baseline": {"type": ["number", "null"]},
        "benchmarks": {
          "type": "object",
          "additionalProperties": {"$ref": "#/definitions/metric"}
        }
      }
    },
    "metric": {
      "type": "object",
      "required": ["mean", "median", "stddev", "min", "max"],
      "properties": {
        "mean": {"type": "number"},
        "median": {"type": "number"},
        "stddev": {"type": "number"},
        "min": {"type": "number"},
        "max": {"type": "number"}
      }
    }
  }
}`

func compileDatasetSchema() (*gojsonschema.Schema, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(datasetSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile dataset schema: %w", err)
	}
	return schema, nil
}

// validateDataset checks a raw payload against the dataset schema and
// returns the collected violations as one error.
func validateDataset(schema *gojsonschema.Schema, payload []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}

	violations := make([]string, len(result.Errors()))
	for i, verr := range result.Errors() {
		violations[i] = verr.String()
	}
	return fmt.Errorf("payload failed schema validation: %s", strings.Join(violations, "; "))
}
