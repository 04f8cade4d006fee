package service

import (
	"context"
	"testing"

	"github.com/nkkko/simsub/internal/domain"
	"github.com/nkkko/simsub/internal/storage"
	"github.com/nkkko/simsub/internal/subid"
	"github.com/nkkko/simsub/pkg/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	system  domain.CallerIdentity = "system"
	carrier domain.CallerIdentity = "com.example.carrier"
	other   domain.CallerIdentity = "com.example.other"
)

func newTestService(t *testing.T) (*Service, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	return NewService(DefaultConfig(), store), store
}

// seed stores records 5 (slot 0), 7 (slot 1) and 9 (no slot)
func seed(t *testing.T, store domain.RecordStore) {
	t.Helper()
	ctx := context.Background()
	for _, rec := range []*proto.SubscriptionInfo{
		{Id: 5, IccId: "icc-5", SimSlotIndex: 0, IsEnabled: true, AccessRules: []string{string(carrier)}},
		{Id: 7, IccId: "icc-7", SimSlotIndex: 1, IsEnabled: true},
		{Id: 9, IccId: "icc-9", SimSlotIndex: subid.InvalidSlot, IsEnabled: true, IsEmbedded: true, AccessRules: []string{string(carrier)}},
	} {
		require.NoError(t, store.PutRecord(ctx, rec))
	}
}

func drain(s *Service) []domain.ListenerKind {
	var kinds []domain.ListenerKind
	for {
		kind, ok := s.signals.tryPop()
		if !ok {
			return kinds
		}
		kinds = append(kinds, kind)
	}
}

func TestService_SlotMapping(t *testing.T) {
	s, store := newTestService(t)
	seed(t, store)
	ctx := context.Background()

	for id, want := range map[int32]int32{5: 0, 7: 1, 9: subid.InvalidSlot, 42: subid.InvalidSlot} {
		slot, err := s.SlotIndex(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, slot, "slot of %d", id)
	}

	phone, err := s.PhoneID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int32(1), phone)

	phone, err = s.PhoneID(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, subid.InvalidPhone, phone)

	ids, err := s.SubscriptionIDs(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int32{7}, ids)

	ids, err = s.SubscriptionIDs(ctx, 3)
	require.NoError(t, err)
	assert.Nil(t, ids)

	active, err := s.ActiveSubscriptionIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int32{5, 7}, active)

	ok, err := s.IsActiveSubscriptionID(ctx, other, 9)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestService_Lists(t *testing.T) {
	s, store := newTestService(t)
	ctx := context.Background()

	list, err := s.ActiveSubscriptions(ctx, other)
	require.NoError(t, err)
	assert.Nil(t, list)

	seed(t, store)

	all, err := s.AllSubscriptions(ctx, other)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	list, err = s.ActiveSubscriptions(ctx, other)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int32(5), list[0].Id)

	available, err := s.AvailableSubscriptions(ctx, other)
	require.NoError(t, err)
	assert.Len(t, available, 3)

	accessible, err := s.AccessibleSubscriptions(ctx, carrier)
	require.NoError(t, err)
	require.Len(t, accessible, 1)
	assert.Equal(t, int32(9), accessible[0].Id)

	accessible, err = s.AccessibleSubscriptions(ctx, other)
	require.NoError(t, err)
	assert.Nil(t, accessible)

	n, err := s.ActiveCount(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.AllCount(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	info, err := s.ActiveSubscriptionForIccID(ctx, other, "icc-7")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, int32(7), info.Id)

	info, err = s.ActiveSubscriptionForSlot(ctx, other, 0)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, int32(5), info.Id)
}

func TestService_AddAndRemoveSubscription(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	result, err := s.AddSubscription(ctx, "icc-a", "SIM A", 0, proto.SubscriptionType_LOCAL_SIM)
	require.NoError(t, err)
	assert.Equal(t, int32(0), result)
	assert.Equal(t, []domain.ListenerKind{domain.ListenerSubscriptions}, drain(s))

	info, err := s.ActiveSubscriptionForSlot(ctx, other, 0)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, int32(1), info.Id)
	assert.Equal(t, "SIM A", info.DisplayName)

	// A new card in the same slot displaces the first one
	_, err = s.AddSubscription(ctx, "icc-b", "SIM B", 0, proto.SubscriptionType_LOCAL_SIM)
	require.NoError(t, err)
	slot, err := s.SlotIndex(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, subid.InvalidSlot, slot)

	// Re-inserting the first card reuses its record
	_, err = s.AddSubscription(ctx, "icc-a", "", 1, proto.SubscriptionType_LOCAL_SIM)
	require.NoError(t, err)
	slot, err = s.SlotIndex(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(1), slot)

	// Remote SIMs have no slot but are active
	_, err = s.AddSubscription(ctx, "watch", "Watch", 7, proto.SubscriptionType_REMOTE_SIM)
	require.NoError(t, err)
	remote, err := s.ActiveSubscriptionForIccID(ctx, other, "watch")
	require.NoError(t, err)
	require.NotNil(t, remote)
	assert.Equal(t, subid.SlotForRemoteSIM, remote.SimSlotIndex)

	_, err = s.AddSubscription(ctx, "icc-c", "", 5, proto.SubscriptionType_LOCAL_SIM)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	result, err = s.RemoveSubscription(ctx, "watch", proto.SubscriptionType_REMOTE_SIM)
	require.NoError(t, err)
	assert.Equal(t, int32(0), result)

	result, err = s.RemoveSubscription(ctx, "watch", proto.SubscriptionType_REMOTE_SIM)
	require.NoError(t, err)
	assert.Equal(t, int32(-1), result)

	require.NoError(t, s.ClearSubscriptions(ctx))
	n, err := s.AllCount(ctx, other)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestService_PropertySetters(t *testing.T) {
	s, store := newTestService(t)
	seed(t, store)
	ctx := context.Background()
	drain(s)

	rows, err := s.SetIconTint(ctx, 5, 0xff0000)
	require.NoError(t, err)
	assert.Equal(t, int32(1), rows)

	rows, err = s.SetDisplayName(ctx, 5, "Work", proto.NameSource_USER_INPUT)
	require.NoError(t, err)
	assert.Equal(t, int32(1), rows)

	rows, err = s.SetDisplayName(ctx, 5, "Office", proto.NameSource_UNDEFINED)
	require.NoError(t, err)
	assert.Equal(t, int32(1), rows)

	rows, err = s.SetDisplayNumber(ctx, 42, "+1555")
	require.NoError(t, err)
	assert.Zero(t, rows)

	_, err = s.SetDataRoaming(ctx, 5, 3)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	info, err := s.ActiveSubscription(ctx, other, 5)
	require.NoError(t, err)
	assert.Equal(t, int32(0xff0000), info.IconTint)
	assert.Equal(t, "Office", info.DisplayName)
	assert.Equal(t, proto.NameSource_USER_INPUT, info.NameSource)
	assert.NotNil(t, info.UpdatedAt)

	assert.Len(t, drain(s), 3)
}

func TestService_GenericProperties(t *testing.T) {
	s, store := newTestService(t)
	seed(t, store)
	ctx := context.Background()

	require.NoError(t, s.SetProperty(ctx, 5, "wfc_ims_mode", "2"))
	require.NoError(t, s.SetProperty(ctx, 5, "color", "12"))
	assert.ErrorIs(t, s.SetProperty(ctx, 5, "color", "red"), domain.ErrInvalidArgument)
	assert.ErrorIs(t, s.SetProperty(ctx, 5, "is_metered", "0"), domain.ErrInvalidArgument)
	assert.ErrorIs(t, s.SetProperty(ctx, 42, "wfc_ims_mode", "2"), domain.ErrNotFound)

	value, found, err := s.Property(ctx, other, 5, "wfc_ims_mode")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "2", value)

	value, found, err = s.Property(ctx, other, 5, "color")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "12", value)

	_, found, err = s.Property(ctx, other, 5, "vt_ims_enabled")
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = s.Property(ctx, other, 42, "color")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestService_OpportunisticRequiresAccess(t *testing.T) {
	s, store := newTestService(t)
	seed(t, store)
	ctx := context.Background()
	drain(s)

	_, err := s.SetOpportunistic(ctx, other, 5, true)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.Empty(t, drain(s))

	rows, err := s.SetOpportunistic(ctx, carrier, 5, true)
	require.NoError(t, err)
	assert.Equal(t, int32(1), rows)
	assert.Equal(t, []domain.ListenerKind{domain.ListenerSubscriptions, domain.ListenerOpportunistic}, drain(s))

	rows, err = s.SetMetered(ctx, system, 7, false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), rows)

	list, err := s.OpportunisticSubscriptions(ctx, other)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int32(5), list[0].Id)

	value, _, err := s.Property(ctx, other, 7, "is_metered")
	require.NoError(t, err)
	assert.Equal(t, "0", value)
}

func TestService_AddSubscriptionSkipsStoredIDs(t *testing.T) {
	s, store := newTestService(t)
	seed(t, store)
	ctx := context.Background()

	_, err := s.AddSubscription(ctx, "icc-new", "New", 0, proto.SubscriptionType_LOCAL_SIM)
	require.NoError(t, err)
	_, err = s.AddSubscription(ctx, "icc-newer", "Newer", 1, proto.SubscriptionType_LOCAL_SIM)
	require.NoError(t, err)

	all, err := s.AllSubscriptions(ctx, system)
	require.NoError(t, err)
	byIcc := make(map[string]int32, len(all))
	for _, rec := range all {
		byIcc[rec.IccId] = rec.Id
	}
	assert.Equal(t, map[string]int32{
		"icc-5": 5, "icc-7": 7, "icc-9": 9, "icc-new": 10, "icc-newer": 11,
	}, byIcc)
}

func TestService_Groups(t *testing.T) {
	s, store := newTestService(t)
	seed(t, store)
	ctx := context.Background()

	orig := generateGroupID
	generateGroupID = func() string { return "G1" }
	defer func() { generateGroupID = orig }()

	_, err := s.SetGroup(ctx, carrier, []int32{5, 7})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = s.SetGroup(ctx, system, []int32{5, 42})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	groupID, err := s.SetGroup(ctx, system, []int32{5, 7})
	require.NoError(t, err)
	assert.Equal(t, "G1", groupID)

	// The same membership keeps its id
	generateGroupID = func() string { return "G2" }
	groupID, err = s.SetGroup(ctx, system, []int32{7, 5})
	require.NoError(t, err)
	assert.Equal(t, "G1", groupID)

	// A different set gets a group of exactly its members
	groupID, err = s.SetGroup(ctx, system, []int32{9, 5})
	require.NoError(t, err)
	assert.Equal(t, "G2", groupID)
	assert.Equal(t, []int32{5, 9}, groupIDs(t, s, 9))
	assert.Equal(t, []int32{7}, groupIDs(t, s, 7))

	// Extending is explicit
	assert.ErrorIs(t, s.AddToGroup(ctx, system, []int32{7}, "G9"), domain.ErrNotFound)
	assert.ErrorIs(t, s.AddToGroup(ctx, system, []int32{7}, ""), domain.ErrInvalidArgument)
	assert.ErrorIs(t, s.AddToGroup(ctx, carrier, []int32{7}, "G2"), domain.ErrPermissionDenied)
	require.NoError(t, s.AddToGroup(ctx, system, []int32{7}, "G2"))

	members, err := s.GroupMembers(ctx, other, 5)
	require.NoError(t, err)
	require.Len(t, members, 3)
	assert.Equal(t, int32(5), members[0].Id)

	removed, err := s.RemoveFromGroup(ctx, system, []int32{7, 9})
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.RemoveFromGroup(ctx, system, []int32{7})
	require.NoError(t, err)
	assert.False(t, removed)

	members, err = s.GroupMembers(ctx, other, 5)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, int32(5), members[0].Id)

	members, err = s.GroupMembers(ctx, other, 7)
	require.NoError(t, err)
	assert.Nil(t, members)
}

func groupIDs(t *testing.T, s *Service, id int32) []int32 {
	t.Helper()
	members, err := s.GroupMembers(context.Background(), other, id)
	require.NoError(t, err)
	ids := make([]int32, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.Id)
	}
	return ids
}

func TestService_Defaults(t *testing.T) {
	s, store := newTestService(t)
	seed(t, store)
	ctx := context.Background()

	id, err := s.DefaultSubscriptionID(ctx, domain.DefaultData)
	require.NoError(t, err)
	assert.Equal(t, subid.Invalid, id)

	require.NoError(t, s.SetDefaultSubscriptionID(ctx, domain.DefaultVoice, 7))
	require.NoError(t, s.SetDefaultSubscriptionID(ctx, domain.DefaultData, 5))
	require.NoError(t, s.SetDefaultSubscriptionID(ctx, domain.DefaultSMS, 5))
	assert.ErrorIs(t, s.SetDefaultSubscriptionID(ctx, domain.DefaultSMS, 9), domain.ErrInvalidArgument)

	// The system default falls back to voice
	id, err = s.DefaultSubscriptionID(ctx, domain.DefaultSystem)
	require.NoError(t, err)
	assert.Equal(t, int32(7), id)

	slot, err := s.SlotIndex(ctx, subid.Default)
	require.NoError(t, err)
	assert.Equal(t, int32(1), slot)

	// Slot 1 empties and its default goes with it
	require.NoError(t, s.ClearSlot(ctx, 1))
	require.NoError(t, s.ClearDefaultsForInactive(ctx))

	id, err = s.DefaultSubscriptionID(ctx, domain.DefaultVoice)
	require.NoError(t, err)
	assert.Equal(t, subid.Invalid, id)

	id, err = s.DefaultSubscriptionID(ctx, domain.DefaultData)
	require.NoError(t, err)
	assert.Equal(t, int32(5), id)

	id, err = s.DefaultSubscriptionID(ctx, domain.DefaultSystem)
	require.NoError(t, err)
	assert.Equal(t, int32(5), id)
}

func TestService_PreferredData(t *testing.T) {
	s, store := newTestService(t)
	seed(t, store)
	ctx := context.Background()

	id, err := s.PreferredDataSubscriptionID(ctx)
	require.NoError(t, err)
	assert.Equal(t, subid.Default, id)

	rows, err := s.SetPreferredDataSubscriptionID(ctx, 9)
	require.NoError(t, err)
	assert.Zero(t, rows)

	rows, err = s.SetPreferredDataSubscriptionID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int32(1), rows)

	id, err = s.PreferredDataSubscriptionID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(7), id)

	_, err = s.SetEnabled(ctx, 7, false)
	require.NoError(t, err)
	require.NoError(t, s.ClearDefaultsForInactive(ctx))

	id, err = s.PreferredDataSubscriptionID(ctx)
	require.NoError(t, err)
	assert.Equal(t, subid.Default, id)
}

func TestService_EnablementAndSimState(t *testing.T) {
	s, store := newTestService(t)
	seed(t, store)
	ctx := context.Background()

	enabled, err := s.IsEnabled(ctx, 5)
	require.NoError(t, err)
	assert.True(t, enabled)

	id, err := s.EnabledSubscriptionID(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(5), id)

	state, err := s.SimStateForSlot(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, proto.SimState_LOADED, state)

	ok, err := s.SetEnabled(ctx, 5, false)
	require.NoError(t, err)
	assert.True(t, ok)

	id, err = s.EnabledSubscriptionID(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, subid.Invalid, id)

	state, err = s.SimStateForSlot(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, proto.SimState_ABSENT, state)

	s.SetSimState(0, proto.SimState_PIN_REQUIRED)
	state, err = s.SimStateForSlot(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, proto.SimState_PIN_REQUIRED, state)

	state, err = s.SimStateForSlot(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, proto.SimState_UNKNOWN, state)

	ok, err = s.SetEnabled(ctx, 42, true)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestService_SignalsAreNeverDropped(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		require.NoError(t, s.RequestEmbeddedRefresh(ctx, 0))
	}
	assert.Len(t, drain(s), 200)

	assert.ErrorIs(t, s.RequestEmbeddedRefresh(ctx, -1), domain.ErrInvalidArgument)
	assert.Empty(t, drain(s))
}

func TestService_NextSignal(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	got := make(chan domain.ListenerKind, 2)
	go func() {
		for i := 0; i < 2; i++ {
			kind, err := s.NextSignal(ctx)
			if err != nil {
				return
			}
			got <- kind
		}
	}()

	s.emit(domain.ListenerSubscriptions)
	s.emit(domain.ListenerOpportunistic)
	assert.Equal(t, domain.ListenerSubscriptions, <-got)
	assert.Equal(t, domain.ListenerOpportunistic, <-got)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err := s.NextSignal(canceled)
	assert.ErrorIs(t, err, context.Canceled)
}
