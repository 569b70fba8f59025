package types

import "fmt"

// MalformedMetricError reports a metric field holding a negative or
// non-finite value. Malformed metrics are surfaced, never coerced.
type MalformedMetricError struct {
	Field string
	Value float64
}

func (e *MalformedMetricError) Error() string {
	return fmt.Sprintf("malformed metric: field %s has value %v", e.Field, e.Value)
}

// FetchError reports a failed upstream fetch. StatusCode is 0 when the
// request never produced a response.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s failed: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s failed: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// CacheCorruptError reports a cache entry that could not be decoded or
// failed validation. The cache recovers by deleting the entry and
// refetching; this error is counted and logged, never returned to callers.
type CacheCorruptError struct {
	Key string
	Err error
}

func (e *CacheCorruptError) Error() string {
	return fmt.Sprintf("corrupt cache entry %s: %v", e.Key, e.Err)
}

func (e *CacheCorruptError) Unwrap() error {
	return e.Err
}
