// Package cache implements a TTL fetch cache over a storage.Store. Every
// entry wraps the cached payload together with its fetch timestamp, so
// freshness is decided at read time and stale entries are evicted lazily.
package cache

import (
	"context"
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"github.com/jit-bench/dashboard/storage"
	"github.com/jit-bench/dashboard/types"
)

var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// Entry is the persisted envelope for a cached payload. FetchedAt is epoch
// milliseconds so entries written by other frontends stay readable.
type Entry struct {
	Data      jsoniter.RawMessage `json:"data"`
	FetchedAt int64               `json:"fetched_at"`
}

// Fetcher loads a fresh payload from the upstream source.
type Fetcher func(ctx context.Context) ([]byte, error)

// Validator reports whether a cached payload is still usable. Returning an
// error marks the entry invalid, which evicts it and triggers a refetch.
type Validator func(data []byte) error

// Request describes a single cache lookup.
type Request struct {
	// Key is the cache key without the namespace prefix.
	Key string
	// TTL is the maximum entry age. Entries aged exactly TTL are expired.
	TTL time.Duration
	// Force bypasses the cached entry and always fetches.
	Force bool
	// Validate is an optional domain rule applied to cached payloads.
	Validate Validator
	// Fetch produces a fresh payload when the cache cannot serve.
	Fetch Fetcher
}

// FetchCache coordinates cached reads with upstream fetches. It is
// fail-open: when the backing store misbehaves the cache degrades to
// fetching every time, and store write failures never reach the caller.
type FetchCache struct {
	store     storage.Store
	namespace string
	clock     func() time.Time
	metrics   *Metrics
	log       logrus.FieldLogger
}

// Option customises a FetchCache.
type Option func(*FetchCache)

// WithClock overrides the time source, used by tests to control entry age.
func WithClock(clock func() time.Time) Option {
	return func(c *FetchCache) {
		c.clock = clock
	}
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(c *FetchCache) {
		c.metrics = m
	}
}

// New creates a FetchCache over the given store. All keys are prefixed with
// namespace so several caches can share one store.
func New(store storage.Store, namespace string, log logrus.FieldLogger, opts ...Option) *FetchCache {
	c := &FetchCache{
		store:     store,
		namespace: namespace,
		clock:     time.Now,
		log:       log.WithField("component", "fetch-cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the payload for req.Key, serving from the store when a fresh
// valid entry exists and fetching otherwise. A fetch failure is returned to
// the caller as-is; an expired or broken entry is never served in its place.
func (c *FetchCache) Get(ctx context.Context, req Request) ([]byte, error) {
	key := c.storageKey(req.Key)

	if req.Force {
		c.countMiss(MissForced)
		return c.fetch(ctx, key, req)
	}

	value, err := c.store.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.countMiss(MissAbsent)
		} else {
			c.countMiss(MissStoreError)
			c.log.WithError(err).WithField("key", key).Warn("Cache read failed, fetching instead")
		}
		return c.fetch(ctx, key, req)
	}

	entry, err := decodeEntry(value)
	if err != nil {
		c.countMiss(MissCorrupt)
		c.log.WithError(&types.CacheCorruptError{Key: key, Err: err}).Warn("Evicting corrupt cache entry")
		c.evict(key)
		return c.fetch(ctx, key, req)
	}

	age := c.clock().Sub(time.UnixMilli(entry.FetchedAt))
	if age >= req.TTL {
		c.countMiss(MissExpired)
		c.evict(key)
		return c.fetch(ctx, key, req)
	}

	if req.Validate != nil {
		if verr := req.Validate(entry.Data); verr != nil {
			c.countMiss(MissInvalid)
			c.log.WithError(verr).WithField("key", key).Debug("Evicting cache entry rejected by validator")
			c.evict(key)
			return c.fetch(ctx, key, req)
		}
	}

	if c.metrics != nil {
		c.metrics.Hits.Inc()
	}
	return entry.Data, nil
}

// ClearNamespace removes every entry under the cache's namespace. It is
// best-effort and returns the number of entries actually deleted; store
// failures are logged, never returned.
func (c *FetchCache) ClearNamespace() int {
	prefix := c.namespace + ":"
	keys, err := c.store.Keys(prefix)
	if err != nil {
		c.log.WithError(err).Warn("Failed to list cache entries for clearing")
		return 0
	}

	cleared := 0
	for _, key := range keys {
		if err := c.store.Delete(key); err != nil {
			c.log.WithError(err).WithField("key", key).Warn("Failed to delete cache entry")
			continue
		}
		cleared++
	}
	return cleared
}

func (c *FetchCache) storageKey(key string) string {
	return c.namespace + ":" + key
}

// fetch loads a fresh payload and writes it back to the store. The write is
// best-effort: the payload is returned even when it cannot be persisted.
func (c *FetchCache) fetch(ctx context.Context, key string, req Request) ([]byte, error) {
	start := c.clock()
	payload, err := req.Fetch(ctx)
	if c.metrics != nil {
		c.metrics.FetchSeconds.Observe(c.clock().Sub(start).Seconds())
	}
	if err != nil {
		if c.metrics != nil {
			c.metrics.FetchErrors.Inc()
		}
		return nil, err
	}

	c.storeEntry(key, payload)
	return payload, nil
}

func (c *FetchCache) storeEntry(key string, payload []byte) {
	entry := Entry{
		Data:      jsoniter.RawMessage(payload),
		FetchedAt: c.clock().UnixMilli(),
	}
	encoded, err := jsonCodec.Marshal(entry)
	if err != nil {
		c.countStoreError()
		c.log.WithError(err).WithField("key", key).Warn("Failed to encode cache entry")
		return
	}
	if err := c.store.Set(key, string(encoded)); err != nil {
		c.countStoreError()
		c.log.WithError(err).WithField("key", key).Warn("Failed to write cache entry")
	}
}

func (c *FetchCache) evict(key string) {
	if err := c.store.Delete(key); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("Failed to evict cache entry")
	}
}

func (c *FetchCache) countMiss(reason string) {
	if c.metrics != nil {
		c.metrics.Misses.WithLabelValues(reason).Inc()
	}
}

func (c *FetchCache) countStoreError() {
	if c.metrics != nil {
		c.metrics.StoreErrors.Inc()
	}
}

func decodeEntry(value string) (*Entry, error) {
	var entry Entry
	if err := jsonCodec.Unmarshal([]byte(value), &entry); err != nil {
		return nil, err
	}
	if entry.FetchedAt <= 0 {
		return nil, errors.New("entry has no fetch timestamp")
	}
	if len(entry.Data) == 0 {
		return nil, errors.New("entry has no data")
	}
	return &entry, nil
}
