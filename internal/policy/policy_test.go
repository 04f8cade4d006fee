package policy

import (
	"context"
	"testing"
	"time"

	"github.com/nkkko/simsub/internal/domain"
	"github.com/nkkko/simsub/pkg/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/timestamppb"
)

const (
	system  domain.CallerIdentity = "system"
	carrier domain.CallerIdentity = "com.example.carrier"
	other   domain.CallerIdentity = "com.example.other"
)

// activeSet reports the listed ids as active
type activeSet map[int32]bool

func (a activeSet) IsActiveSubscriptionID(ctx context.Context, caller domain.CallerIdentity, id int32) (bool, error) {
	return a[id], nil
}

func newTestService() *Service {
	return NewService(DefaultConfig(), activeSet{1: true, 2: true})
}

func monthlyPlan(title string) *proto.SubscriptionPlan {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &proto.SubscriptionPlan{
		Title:          title,
		CycleStart:     timestamppb.New(start),
		CycleEnd:       timestamppb.New(start.AddDate(0, 1, 0)),
		DataLimitBytes: 10 << 30,
	}
}

func TestPlans_OwnerAndPermissions(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	plans, err := s.SubscriptionPlans(ctx, other, 1)
	require.NoError(t, err)
	assert.NotNil(t, plans)
	assert.Empty(t, plans)

	require.NoError(t, s.SetSubscriptionPlans(ctx, carrier, 1, []*proto.SubscriptionPlan{monthlyPlan("basic")}))

	owner, err := s.SubscriptionPlansOwner(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, string(carrier), owner)

	plans, err = s.SubscriptionPlans(ctx, carrier, 1)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, "basic", plans[0].Title)

	_, err = s.SubscriptionPlans(ctx, other, 1)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	err = s.SetSubscriptionPlans(ctx, other, 1, []*proto.SubscriptionPlan{monthlyPlan("x")})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	plans, err = s.SubscriptionPlans(ctx, system, 1)
	require.NoError(t, err)
	assert.Len(t, plans, 1)

	// Clearing drops the owner too
	require.NoError(t, s.SetSubscriptionPlans(ctx, carrier, 1, nil))
	owner, err = s.SubscriptionPlansOwner(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, owner)
}

func TestPlans_Validation(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	err := s.SetSubscriptionPlans(ctx, carrier, 3, []*proto.SubscriptionPlan{monthlyPlan("a")})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	backwards := monthlyPlan("backwards")
	backwards.CycleStart, backwards.CycleEnd = backwards.CycleEnd, backwards.CycleStart
	err = s.SetSubscriptionPlans(ctx, carrier, 1, []*proto.SubscriptionPlan{backwards})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = s.SubscriptionPlans(ctx, carrier, -1)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestPlans_StoredCopies(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	plan := monthlyPlan("basic")
	require.NoError(t, s.SetSubscriptionPlans(ctx, carrier, 1, []*proto.SubscriptionPlan{plan}))
	plan.Title = "changed"

	plans, err := s.SubscriptionPlans(ctx, carrier, 1)
	require.NoError(t, err)
	assert.Equal(t, "basic", plans[0].Title)
}

func TestOverride_RequiresPlansOwner(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	err := s.SetSubscriptionOverride(ctx, carrier, 1, proto.OverrideKind_UNMETERED, proto.OverrideKind_UNMETERED, 0)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	require.NoError(t, s.SetSubscriptionPlans(ctx, carrier, 1, []*proto.SubscriptionPlan{monthlyPlan("basic")}))
	require.NoError(t, s.SetSubscriptionOverride(ctx, carrier, 1, proto.OverrideKind_UNMETERED, proto.OverrideKind_UNMETERED, 0))
	assert.Equal(t, proto.OverrideKind_UNMETERED, s.Overrides(1))

	err = s.SetSubscriptionOverride(ctx, other, 1, proto.OverrideKind_CONGESTED, proto.OverrideKind_CONGESTED, 0)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	// Privileged callers need no plans
	require.NoError(t, s.SetSubscriptionOverride(ctx, system, 2, proto.OverrideKind_CONGESTED, proto.OverrideKind_CONGESTED, 0))
	assert.Equal(t, proto.OverrideKind_CONGESTED, s.Overrides(2))
}

func TestOverride_SetAndClear(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	both := proto.OverrideKind_UNMETERED | proto.OverrideKind_CONGESTED
	require.NoError(t, s.SetSubscriptionOverride(ctx, system, 1, both, both, 0))
	assert.Equal(t, both, s.Overrides(1))

	require.NoError(t, s.SetSubscriptionOverride(ctx, system, 1, proto.OverrideKind_CONGESTED, 0, 0))
	assert.Equal(t, proto.OverrideKind_UNMETERED, s.Overrides(1))

	assert.ErrorIs(t, s.SetSubscriptionOverride(ctx, system, 1, 0, 0, 0), domain.ErrInvalidArgument)
	assert.ErrorIs(t, s.SetSubscriptionOverride(ctx, system, 1, both, both, 48*time.Hour), domain.ErrInvalidArgument)
}

func TestOverride_Expires(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	require.NoError(t, s.SetSubscriptionOverride(ctx, system, 1,
		proto.OverrideKind_UNMETERED, proto.OverrideKind_UNMETERED, 20*time.Millisecond))
	assert.Equal(t, proto.OverrideKind_UNMETERED, s.Overrides(1))

	assert.Eventually(t, func() bool {
		return s.Overrides(1) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestOverride_RenewReplacesTimer(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	require.NoError(t, s.SetSubscriptionOverride(ctx, system, 1,
		proto.OverrideKind_UNMETERED, proto.OverrideKind_UNMETERED, 20*time.Millisecond))
	// Re-setting without a timeout keeps the bit until cleared
	require.NoError(t, s.SetSubscriptionOverride(ctx, system, 1,
		proto.OverrideKind_UNMETERED, proto.OverrideKind_UNMETERED, 0))

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, proto.OverrideKind_UNMETERED, s.Overrides(1))

	require.NoError(t, s.Shutdown(ctx))
}
