package storage

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/nkkko/simsub/internal/domain"
	"github.com/nkkko/simsub/internal/metrics"
	"github.com/nkkko/simsub/pkg/proto"
)

// Ensure CachedStore implements domain.RecordStore
var _ domain.RecordStore = (*CachedStore)(nil)

// CachedStore keeps recently read records in a 2Q cache in front of
// another store. Writes go through and invalidate.
type CachedStore struct {
	next       domain.RecordStore
	records    *lru.TwoQueueCache
	mutex      sync.RWMutex
	metrics    *metrics.Metrics
	expiration time.Duration
}

// cacheItem represents an item in the cache with an expiration time
type cacheItem struct {
	value      *proto.SubscriptionInfo
	expiration time.Time
}

// NewCachedStore wraps next with a cache of the given capacity
func NewCachedStore(next domain.RecordStore, capacity int, expiration time.Duration) (*CachedStore, error) {
	records, err := lru.New2Q(capacity)
	if err != nil {
		return nil, err
	}

	return &CachedStore{
		next:       next,
		records:    records,
		metrics:    metrics.GetMetrics(),
		expiration: expiration,
	}, nil
}

// GetRecord serves id from the cache when it holds a fresh copy
func (c *CachedStore) GetRecord(ctx context.Context, id int32) (*proto.SubscriptionInfo, error) {
	if rec, found := c.lookup(id); found {
		return rec, nil
	}

	rec, err := c.next.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	c.set(rec)
	return rec.Clone(), nil
}

func (c *CachedStore) lookup(id int32) (*proto.SubscriptionInfo, bool) {
	c.mutex.RLock()
	value, found := c.records.Get(id)
	c.mutex.RUnlock()
	if !found {
		c.metrics.CacheHitsTotal.WithLabelValues("miss").Inc()
		return nil, false
	}

	item := value.(cacheItem)
	if time.Now().After(item.expiration) {
		c.mutex.Lock()
		c.records.Remove(id)
		c.mutex.Unlock()
		c.metrics.CacheHitsTotal.WithLabelValues("expired").Inc()
		return nil, false
	}

	c.metrics.CacheHitsTotal.WithLabelValues("hit").Inc()
	return item.value.Clone(), true
}

func (c *CachedStore) set(rec *proto.SubscriptionInfo) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.records.Add(rec.Id, cacheItem{
		value:      rec.Clone(),
		expiration: time.Now().Add(c.expiration),
	})
}

func (c *CachedStore) invalidate(id int32) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.records.Remove(id)
}

// PutRecord writes rec through and refreshes its cache entry
func (c *CachedStore) PutRecord(ctx context.Context, rec *proto.SubscriptionInfo) error {
	if err := c.next.PutRecord(ctx, rec); err != nil {
		c.invalidate(rec.Id)
		return err
	}
	c.set(rec)
	return nil
}

// DeleteRecord removes id from the cache and the store
func (c *CachedStore) DeleteRecord(ctx context.Context, id int32) error {
	c.invalidate(id)
	return c.next.DeleteRecord(ctx, id)
}

// ListRecords always reads the store
func (c *CachedStore) ListRecords(ctx context.Context) ([]*proto.SubscriptionInfo, error) {
	return c.next.ListRecords(ctx)
}

// PutMeta is not cached
func (c *CachedStore) PutMeta(ctx context.Context, key string, value []byte) error {
	return c.next.PutMeta(ctx, key, value)
}

// GetMeta is not cached
func (c *CachedStore) GetMeta(ctx context.Context, key string) ([]byte, error) {
	return c.next.GetMeta(ctx, key)
}

// Close purges the cache and closes the wrapped store
func (c *CachedStore) Close() error {
	c.Clear()
	return c.next.Close()
}

// Start runs the background work of the wrapped store until ctx is done
func (c *CachedStore) Start(ctx context.Context) error {
	if starter, ok := c.next.(domain.Starter); ok {
		return starter.Start(ctx)
	}
	<-ctx.Done()
	return nil
}

// Clear empties the cache
func (c *CachedStore) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.records.Purge()
}

// Unwrap returns the wrapped store
func (c *CachedStore) Unwrap() domain.RecordStore {
	return c.next
}
