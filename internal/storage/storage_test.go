package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nkkko/simsub/internal/domain"
	"github.com/nkkko/simsub/internal/storage/badger"
	"github.com/nkkko/simsub/pkg/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore records how often reads reach it
type countingStore struct {
	*MemoryStore
	gets   int
	putErr error
}

func (s *countingStore) GetRecord(ctx context.Context, id int32) (*proto.SubscriptionInfo, error) {
	s.gets++
	return s.MemoryStore.GetRecord(ctx, id)
}

func (s *countingStore) PutRecord(ctx context.Context, rec *proto.SubscriptionInfo) error {
	if s.putErr != nil {
		return s.putErr
	}
	return s.MemoryStore.PutRecord(ctx, rec)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	rec := &proto.SubscriptionInfo{Id: 2, DisplayName: "Home"}
	require.NoError(t, s.PutRecord(ctx, rec))

	// Stored values are copies
	rec.DisplayName = "changed"
	got, err := s.GetRecord(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Home", got.DisplayName)

	require.NoError(t, s.PutRecord(ctx, &proto.SubscriptionInfo{Id: 1}))
	list, err := s.ListRecords(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int32(1), list[0].Id)
	assert.Equal(t, int32(2), list[1].Id)

	require.NoError(t, s.DeleteRecord(ctx, 2))
	_, err = s.GetRecord(ctx, 2)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, s.PutRecord(ctx, &proto.SubscriptionInfo{Id: -3}), domain.ErrInvalidArgument)

	_, err = s.GetMeta(ctx, "k")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, s.PutMeta(ctx, "k", []byte("v")))
	value, err := s.GetMeta(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(value))
}

func TestCachedStore_ServesRepeatedReads(t *testing.T) {
	backing := &countingStore{MemoryStore: NewMemoryStore()}
	cached, err := NewCachedStore(backing, 16, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, backing.MemoryStore.PutRecord(ctx, &proto.SubscriptionInfo{Id: 4, DisplayName: "a"}))

	for i := 0; i < 3; i++ {
		got, err := cached.GetRecord(ctx, 4)
		require.NoError(t, err)
		assert.Equal(t, "a", got.DisplayName)
	}
	assert.Equal(t, 1, backing.gets)

	// Callers cannot mutate the cached copy
	got, err := cached.GetRecord(ctx, 4)
	require.NoError(t, err)
	got.DisplayName = "mutated"
	again, err := cached.GetRecord(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, "a", again.DisplayName)
}

func TestCachedStore_WriteThrough(t *testing.T) {
	backing := &countingStore{MemoryStore: NewMemoryStore()}
	cached, err := NewCachedStore(backing, 16, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, cached.PutRecord(ctx, &proto.SubscriptionInfo{Id: 1, DisplayName: "a"}))
	require.NoError(t, cached.PutRecord(ctx, &proto.SubscriptionInfo{Id: 1, DisplayName: "b"}))

	got, err := cached.GetRecord(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "b", got.DisplayName)
	assert.Equal(t, 0, backing.gets)

	stored, err := backing.MemoryStore.GetRecord(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "b", stored.DisplayName)

	// A failed write drops the stale entry
	backing.putErr = errors.New("disk full")
	assert.Error(t, cached.PutRecord(ctx, &proto.SubscriptionInfo{Id: 1, DisplayName: "c"}))
	got, err = cached.GetRecord(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "b", got.DisplayName)
	assert.Equal(t, 1, backing.gets)

	require.NoError(t, cached.DeleteRecord(ctx, 1))
	_, err = cached.GetRecord(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCachedStore_Expiration(t *testing.T) {
	backing := &countingStore{MemoryStore: NewMemoryStore()}
	cached, err := NewCachedStore(backing, 16, time.Millisecond)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, cached.PutRecord(ctx, &proto.SubscriptionInfo{Id: 1}))
	time.Sleep(5 * time.Millisecond)

	_, err = cached.GetRecord(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, backing.gets)
}

func TestNewStore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Type = MemoryStorage
	cfg.CacheEnabled = false
	store, err := NewStore(cfg)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	cfg.CacheEnabled = true
	store, err = NewStore(cfg)
	require.NoError(t, err)
	require.IsType(t, &CachedStore{}, store)
	assert.IsType(t, &MemoryStore{}, store.(*CachedStore).Unwrap())

	cfg.Type = BadgerStorage
	cfg.DataDir = t.TempDir()
	cfg.SyncWrites = false
	store, err = NewStore(cfg)
	require.NoError(t, err)
	defer store.Close()
	assert.IsType(t, &badger.Storage{}, store.(*CachedStore).Unwrap())

	cfg.Type = "rocks"
	_, err = NewStore(cfg)
	assert.Error(t, err)
}

func TestCachedStore_StartRunsWrappedStore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.SyncWrites = false
	store, err := NewStore(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- store.(domain.Starter).Start(ctx) }()

	// Reads keep working while background work runs
	require.NoError(t, store.PutRecord(ctx, &proto.SubscriptionInfo{Id: 3}))
	_, err = store.GetRecord(ctx, 3)
	require.NoError(t, err)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
	require.NoError(t, store.Close())

	// Memory stores have nothing to run
	cached, err := NewCachedStore(NewMemoryStore(), 4, time.Second)
	require.NoError(t, err)
	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, cached.Start(ctx))
}
