package group

import (
	"context"
	"sort"
	"testing"

	"github.com/nkkko/simsub/internal/domain"
	"github.com/nkkko/simsub/internal/subid"
	"github.com/nkkko/simsub/pkg/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeService implements only the group calls; anything else panics
type fakeService struct {
	domain.SubscriptionService

	groups map[int32]string
	known  map[int32]bool
	err    error
	calls  int
	nextID int
}

func newFakeService(ids ...int32) *fakeService {
	f := &fakeService{groups: make(map[int32]string), known: make(map[int32]bool)}
	for _, id := range ids {
		f.known[id] = true
	}
	return f
}

func (f *fakeService) SetGroup(ctx context.Context, caller domain.CallerIdentity, ids []int32) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	f.nextID++
	groupID := "G" + string(rune('0'+f.nextID))
	for _, id := range ids {
		f.groups[id] = groupID
	}
	return groupID, nil
}

func (f *fakeService) AddToGroup(ctx context.Context, caller domain.CallerIdentity, ids []int32, groupID string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	for _, id := range ids {
		f.groups[id] = groupID
	}
	return nil
}

func (f *fakeService) RemoveFromGroup(ctx context.Context, caller domain.CallerIdentity, ids []int32) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	removed := false
	for _, id := range ids {
		if _, ok := f.groups[id]; ok {
			delete(f.groups, id)
			removed = true
		}
	}
	return removed, nil
}

func (f *fakeService) GroupMembers(ctx context.Context, caller domain.CallerIdentity, id int32) ([]*proto.SubscriptionInfo, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	groupID, ok := f.groups[id]
	if !ok || !f.known[id] {
		return nil, nil
	}
	var members []*proto.SubscriptionInfo
	for member, g := range f.groups {
		if g == groupID {
			members = append(members, &proto.SubscriptionInfo{Id: member, GroupUuid: g})
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Id < members[j].Id })
	return members, nil
}

func memberIDs(members []*proto.SubscriptionInfo) []int32 {
	ids := make([]int32, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.Id)
	}
	return ids
}

func TestGroupLifecycle(t *testing.T) {
	svc := newFakeService(5, 7, 9)
	coordinator := NewCoordinator("com.example.carrier", svc)
	ctx := context.Background()

	groupID, err := coordinator.SetGroup(ctx, []int32{5, 7})
	require.NoError(t, err)
	assert.Equal(t, "G1", groupID)

	members, found, err := coordinator.Members(ctx, 5)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []int32{5, 7}, memberIDs(members))

	added, err := coordinator.AddToGroup(ctx, []int32{9}, groupID)
	require.NoError(t, err)
	assert.True(t, added)

	members, _, err = coordinator.Members(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, []int32{5, 7, 9}, memberIDs(members))

	removed, err := coordinator.RemoveFromGroup(ctx, []int32{7, 9})
	require.NoError(t, err)
	assert.True(t, removed)

	members, found, err = coordinator.Members(ctx, 5)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []int32{5}, memberIDs(members))

	// 7 has no group any more
	members, found, err = coordinator.Members(ctx, 7)
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, members)
}

func TestGroupRejectsInvalidInputLocally(t *testing.T) {
	svc := newFakeService(5)
	coordinator := NewCoordinator("com.example.carrier", svc)
	ctx := context.Background()

	groupID, err := coordinator.SetGroup(ctx, nil)
	assert.NoError(t, err)
	assert.Empty(t, groupID)

	groupID, err = coordinator.SetGroup(ctx, []int32{5, subid.Invalid})
	assert.NoError(t, err)
	assert.Empty(t, groupID)

	removed, err := coordinator.RemoveFromGroup(ctx, []int32{})
	assert.NoError(t, err)
	assert.False(t, removed)

	added, err := coordinator.AddToGroup(ctx, []int32{5}, "")
	assert.NoError(t, err)
	assert.False(t, added)

	members, found, err := coordinator.Members(ctx, subid.Invalid)
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, members)

	// None of these reached the remote service
	assert.Equal(t, 0, svc.calls)
}

func TestGroupRemoteFailureIsReturned(t *testing.T) {
	svc := newFakeService(5, 7)
	svc.err = domain.ErrRemoteUnavailable
	coordinator := NewCoordinator("com.example.carrier", svc)
	ctx := context.Background()

	groupID, err := coordinator.SetGroup(ctx, []int32{5, 7})
	assert.ErrorIs(t, err, domain.ErrRemoteUnavailable)
	assert.Empty(t, groupID)

	added, err := coordinator.AddToGroup(ctx, []int32{5}, "G1")
	assert.ErrorIs(t, err, domain.ErrRemoteUnavailable)
	assert.False(t, added)

	removed, err := coordinator.RemoveFromGroup(ctx, []int32{5})
	assert.ErrorIs(t, err, domain.ErrRemoteUnavailable)
	assert.False(t, removed)

	members, found, err := coordinator.Members(ctx, 5)
	assert.ErrorIs(t, err, domain.ErrRemoteUnavailable)
	assert.False(t, found)
	assert.Nil(t, members)
}

func TestGroupPermissionFailureIsSurfaced(t *testing.T) {
	svc := newFakeService(5, 7)
	svc.err = domain.ErrPermissionDenied
	coordinator := NewCoordinator("com.example.untrusted", svc)
	ctx := context.Background()

	groupID, err := coordinator.SetGroup(ctx, []int32{5, 7})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.Empty(t, groupID)

	removed, err := coordinator.RemoveFromGroup(ctx, []int32{5})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.False(t, removed)
}
