package badger

import (
	"context"
	"testing"

	"github.com/nkkko/simsub/internal/domain"
	"github.com/nkkko/simsub/pkg/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	cfg := DefaultConfig()
	cfg.InMemory = true
	s, err := NewStorage(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStorage_RecordRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	rec := &proto.SubscriptionInfo{
		Id:           5,
		IccId:        "8901",
		SimSlotIndex: 0,
		DisplayName:  "Work",
		GroupUuid:    "g-1",
		Extras:       map[string]string{"wfc_ims_mode": "2"},
	}
	require.NoError(t, s.PutRecord(ctx, rec))

	got, err := s.GetRecord(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, rec.IccId, got.IccId)
	assert.Equal(t, rec.DisplayName, got.DisplayName)
	assert.Equal(t, rec.GroupUuid, got.GroupUuid)
	assert.Equal(t, "2", got.Extras["wfc_ims_mode"])

	_, err = s.GetRecord(ctx, 6)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStorage_ListRecordsOrderedByID(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	// 256 sorts after 9 only with big-endian keys
	for _, id := range []int32{256, 9, 0, 7} {
		require.NoError(t, s.PutRecord(ctx, &proto.SubscriptionInfo{Id: id}))
	}

	records, err := s.ListRecords(ctx)
	require.NoError(t, err)

	ids := make([]int32, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.Id)
	}
	assert.Equal(t, []int32{0, 7, 9, 256}, ids)
}

func TestStorage_DeleteRecord(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.PutRecord(ctx, &proto.SubscriptionInfo{Id: 1}))
	require.NoError(t, s.DeleteRecord(ctx, 1))
	require.NoError(t, s.DeleteRecord(ctx, 1))

	_, err := s.GetRecord(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStorage_RejectsNegativeID(t *testing.T) {
	s := newTestStorage(t)

	err := s.PutRecord(context.Background(), &proto.SubscriptionInfo{Id: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestStorage_Meta(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	_, err := s.GetMeta(ctx, "default:voice")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.PutMeta(ctx, "default:voice", []byte("7")))
	value, err := s.GetMeta(ctx, "default:voice")
	require.NoError(t, err)
	assert.Equal(t, []byte("7"), value)

	// Meta keys never show up as records
	records, err := s.ListRecords(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStorage_PersistsAcrossReopen(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.SyncWrites = false

	s, err := NewStorage(cfg)
	require.NoError(t, err)
	require.NoError(t, s.PutRecord(context.Background(), &proto.SubscriptionInfo{Id: 3, IccId: "89"}))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	s, err = NewStorage(cfg)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetRecord(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "89", got.IccId)
}
