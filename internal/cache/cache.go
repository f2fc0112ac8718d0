// Package cache implements MetricsCache (C8): a process-local,
// non-authoritative read-through cache for the admin metrics endpoint.
// Written only by collector workers after they persist a job's counters;
// read by the HTTP path for the receivers/appOpenedCounter response
// headers, under the same mutex the writers take. Ported from
// PushMetricsEndpoint's "appId:kind" cache key
// shape — no teacher analog exists since the teacher has no equivalent
// read-heavy admin surface.
package cache

import (
	"strconv"
	"sync"
)

// Kind names which counter a key addresses, mirroring the original's
// cache.getStore().get(id+":"+kind) convention. There is no "total" kind:
// the HTTP handler computes the total header from the store query.
type Kind string

const (
	KindTotalReceivers   Kind = "receivers"
	KindServedVariants   Kind = "served"
	KindTotalVariants    Kind = "variants"
	KindAppOpenedCounter Kind = "appOpenedCounter"
)

// MetricsCache holds one int64 per (appID, kind), keyed exactly the way
// PushMetricsEndpoint's cache is: "appId:kind". It is never the system of
// record: a cache miss or restart means the counter reads as absent (the
// HTTP handler then sends an empty header; it does not recompute the value
// from the store). appOpenedCounter always reads as absent — nothing in
// this pipeline's scope increments it; app-open events are a separate
// ingestion path this repo does not implement, see DESIGN.md.
type MetricsCache struct {
	mu   sync.Mutex
	ints map[string]int64
}

func New() *MetricsCache {
	return &MetricsCache{ints: make(map[string]int64)}
}

func key(appID string, kind Kind) string {
	return appID + ":" + string(kind)
}

// Set overwrites the cached value for (appID, kind).
func (c *MetricsCache) Set(appID string, kind Kind, value int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ints[key(appID, kind)] = value
}

// Add adds delta to the cached value for (appID, kind), treating an
// absent key as zero.
func (c *MetricsCache) Add(appID string, kind Kind, delta int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ints[key(appID, kind)] += delta
}

// Get returns the cached value and whether it was present.
func (c *MetricsCache) Get(appID string, kind Kind) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.ints[key(appID, kind)]
	return v, ok
}

// GetString is a convenience for the HTTP handler's response headers,
// which render counters as decimal strings.
func (c *MetricsCache) GetString(appID string, kind Kind) (string, bool) {
	v, ok := c.Get(appID, kind)
	if !ok {
		return "", false
	}
	return strconv.FormatInt(v, 10), true
}

// Evict drops every cached entry for appID. Unlike the teacher's
// per-job cache entries would have been, this is keyed per application,
// so it is only called when an application is decommissioned — the
// pipeline itself never calls it, since a given appID keeps receiving
// new push jobs indefinitely.
func (c *MetricsCache) Evict(appID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, kind := range []Kind{KindTotalReceivers, KindServedVariants, KindTotalVariants, KindAppOpenedCounter} {
		delete(c.ints, key(appID, kind))
	}
}
