// Package cache implements the request/response cache behind the offline
// layer: last-known-good response bodies keyed by method + canonical URL,
// split into partitions for static assets, app documents and API reads.
package cache

import (
	"fmt"
	"strings"
	"time"
)

// Partition names a cache storage partition. Static assets are long-lived,
// documents back the offline app shell, api holds dynamic read responses.
type Partition string

const (
	PartitionStatic    Partition = "static"
	PartitionDocuments Partition = "documents"
	PartitionAPI       Partition = "api"
)

// Entry is one cached response. Entries are replaced whole on every store;
// there is no partial update path.
type Entry struct {
	Key         string
	Partition   Partition
	Status      int
	ContentType string
	Body        []byte
	StoredAt    time.Time
}

// Store is the durable substrate behind the cache. Implemented by the
// sqlite-backed local database and by MemStore for tests and for the
// storage-unavailable degraded mode.
type Store interface {
	GetEntry(key string) (*Entry, error)
	PutEntry(e Entry) error
	DeleteEntry(key string) error
	// DeleteEntryPrefix removes every entry whose key starts with prefix.
	DeleteEntryPrefix(prefix string) (int, error)
	PurgePartition(p Partition) (int, error)
	CountEntries() (int, error)
}

// Cache wraps a Store with key canonicalization and store-time stamping.
type Cache struct {
	store Store
}

// New creates a cache over the given store.
func New(store Store) *Cache {
	return &Cache{store: store}
}

// Put stores a response under the canonical key for method+url, replacing
// any previous entry for the same key.
func (c *Cache) Put(method, rawURL string, p Partition, status int, contentType string, body []byte) error {
	e := Entry{
		Key:         Key(method, rawURL),
		Partition:   p,
		Status:      status,
		ContentType: contentType,
		Body:        body,
		StoredAt:    time.Now().UTC(),
	}
	if err := c.store.PutEntry(e); err != nil {
		return fmt.Errorf("put cache entry %s: %w", e.Key, err)
	}
	return nil
}

// Get returns the cached entry for method+url, or nil when there is none.
func (c *Cache) Get(method, rawURL string) (*Entry, error) {
	e, err := c.store.GetEntry(Key(method, rawURL))
	if err != nil {
		return nil, fmt.Errorf("get cache entry: %w", err)
	}
	return e, nil
}

// Delete removes the entry for method+url if present.
func (c *Cache) Delete(method, rawURL string) error {
	if err := c.store.DeleteEntry(Key(method, rawURL)); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// InvalidateURL drops every cached GET entry under the given URL, query
// variants and sub-paths included. Called after a write succeeds so stale
// reads for the affected resource don't outlive it.
func (c *Cache) InvalidateURL(rawURL string) (int, error) {
	canon := CanonicalURL(rawURL)
	if i := strings.IndexByte(canon, '?'); i >= 0 {
		canon = canon[:i]
	}
	n, err := c.store.DeleteEntryPrefix("GET " + canon)
	if err != nil {
		return 0, fmt.Errorf("invalidate %s: %w", canon, err)
	}
	return n, nil
}

// Purge drops every entry in a partition and returns how many were removed.
func (c *Cache) Purge(p Partition) (int, error) {
	n, err := c.store.PurgePartition(p)
	if err != nil {
		return 0, fmt.Errorf("purge partition %s: %w", p, err)
	}
	return n, nil
}

// Len returns the total number of cached entries across all partitions.
func (c *Cache) Len() (int, error) {
	return c.store.CountEntries()
}
