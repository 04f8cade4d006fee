package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nkkko/simsub/internal/domain"
	"github.com/nkkko/simsub/pkg/proto"
)

// Ensure MemoryStore implements domain.RecordStore
var _ domain.RecordStore = (*MemoryStore)(nil)

// MemoryStore keeps records in maps. Nothing survives a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[int32]*proto.SubscriptionInfo
	meta    map[string][]byte
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[int32]*proto.SubscriptionInfo),
		meta:    make(map[string][]byte),
	}
}

// PutRecord stores a copy of rec
func (s *MemoryStore) PutRecord(ctx context.Context, rec *proto.SubscriptionInfo) error {
	if rec == nil || rec.Id < 0 {
		return fmt.Errorf("%w: record id must not be negative", domain.ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Id] = rec.Clone()
	return nil
}

// GetRecord returns a copy of the record for id
func (s *MemoryStore) GetRecord(ctx context.Context, id int32) (*proto.SubscriptionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return rec.Clone(), nil
}

// DeleteRecord removes the record for id
func (s *MemoryStore) DeleteRecord(ctx context.Context, id int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

// ListRecords returns copies of all records ordered by id
func (s *MemoryStore) ListRecords(ctx context.Context) ([]*proto.SubscriptionInfo, error) {
	s.mu.RLock()
	records := make([]*proto.SubscriptionInfo, 0, len(s.records))
	for _, rec := range s.records {
		records = append(records, rec.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].Id < records[j].Id
	})
	return records, nil
}

// PutMeta stores a copy of value under key
func (s *MemoryStore) PutMeta(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta[key] = append([]byte(nil), value...)
	return nil
}

// GetMeta returns a copy of the value under key
func (s *MemoryStore) GetMeta(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.meta[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}
