// Package storage provides the persisted key/value surface backing the
// fetch cache. Stores hold opaque text values; expiry and validation are
// the cache layer's business.
package storage

import "errors"

var (
	// ErrNotFound is returned when a key has no entry.
	ErrNotFound = errors.New("entry not found")

	// ErrUnavailable is returned when the backing store cannot be reached.
	// Callers treat it as a miss; the cache degrades to always fetching.
	ErrUnavailable = errors.New("store unavailable")
)

// Store is a flat key/value store with prefix listing. Implementations are
// safe for concurrent use. Writes replace whole entries; last writer wins.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
	Keys(prefix string) ([]string, error)
	Close() error
}
