package domain

import (
	"context"
	"time"

	"github.com/nkkko/simsub/pkg/proto"
)

// CallerIdentity is the package name of the calling application. It is
// passed through to remote services unmodified.
type CallerIdentity string

// DefaultKind selects one of the default subscription slots held remotely
type DefaultKind int32

const (
	// DefaultSystem is the subscription used when nothing more specific is set
	DefaultSystem DefaultKind = iota
	DefaultVoice
	DefaultData
	DefaultSMS
)

func (k DefaultKind) String() string {
	switch k {
	case DefaultSystem:
		return "system"
	case DefaultVoice:
		return "voice"
	case DefaultData:
		return "data"
	case DefaultSMS:
		return "sms"
	default:
		return "unknown"
	}
}

// ListenerKind selects which change signals a listener receives
type ListenerKind int32

const (
	// ListenerSubscriptions receives every subscription change signal
	ListenerSubscriptions ListenerKind = iota
	// ListenerOpportunistic receives opportunistic subscription changes only
	ListenerOpportunistic
)

func (k ListenerKind) String() string {
	switch k {
	case ListenerSubscriptions:
		return "subscriptions"
	case ListenerOpportunistic:
		return "opportunistic"
	default:
		return "unknown"
	}
}

// SignalFunc is invoked by a notification channel for every change signal
// addressed to one registration. A non-nil error means delivery failed
// definitively and the channel drops the registration.
type SignalFunc func() error

// NotificationChannel is the remote fan-out service for change signals
type NotificationChannel interface {
	// AddListener registers token for signals of the given kind
	AddListener(ctx context.Context, caller CallerIdentity, token string, kind ListenerKind, callback SignalFunc) error

	// RemoveListener drops the registration for token
	RemoveListener(ctx context.Context, caller CallerIdentity, token string) error
}

// SignalSource yields change signals in emission order
type SignalSource interface {
	// NextSignal blocks until a signal is available or ctx ends
	NextSignal(ctx context.Context) (ListenerKind, error)
}

// SubscriptionService is the remote owner of subscription records, defaults
// and groups. Every method reports communication failures as errors; the
// client decides which of them callers ever see.
type SubscriptionService interface {
	// Record lookups
	ActiveSubscription(ctx context.Context, caller CallerIdentity, id int32) (*proto.SubscriptionInfo, error)
	ActiveSubscriptionForIccID(ctx context.Context, caller CallerIdentity, iccID string) (*proto.SubscriptionInfo, error)
	ActiveSubscriptionForSlot(ctx context.Context, caller CallerIdentity, slot int32) (*proto.SubscriptionInfo, error)

	// Record lists
	AllSubscriptions(ctx context.Context, caller CallerIdentity) ([]*proto.SubscriptionInfo, error)
	ActiveSubscriptions(ctx context.Context, caller CallerIdentity) ([]*proto.SubscriptionInfo, error)
	AvailableSubscriptions(ctx context.Context, caller CallerIdentity) ([]*proto.SubscriptionInfo, error)
	AccessibleSubscriptions(ctx context.Context, caller CallerIdentity) ([]*proto.SubscriptionInfo, error)
	OpportunisticSubscriptions(ctx context.Context, caller CallerIdentity) ([]*proto.SubscriptionInfo, error)
	RequestEmbeddedRefresh(ctx context.Context, cardID int32) error

	// Counts
	AllCount(ctx context.Context, caller CallerIdentity) (int, error)
	ActiveCount(ctx context.Context, caller CallerIdentity) (int, error)
	ActiveCountMax(ctx context.Context) (int, error)

	// Record maintenance. The int results follow row-count semantics.
	AddSubscription(ctx context.Context, uniqueID, displayName string, slot int32, subType proto.SubscriptionType) (int32, error)
	RemoveSubscription(ctx context.Context, uniqueID string, subType proto.SubscriptionType) (int32, error)
	ClearSubscriptions(ctx context.Context) error
	SetIconTint(ctx context.Context, id, tint int32) (int32, error)
	SetDisplayName(ctx context.Context, id int32, name string, source proto.NameSource) (int32, error)
	SetDisplayNumber(ctx context.Context, id int32, number string) (int32, error)
	SetDataRoaming(ctx context.Context, id, roaming int32) (int32, error)

	// Slot and phone mapping
	SlotIndex(ctx context.Context, id int32) (int32, error)
	SubscriptionIDs(ctx context.Context, slot int32) ([]int32, error)
	PhoneID(ctx context.Context, id int32) (int32, error)
	ActiveSubscriptionIDs(ctx context.Context) ([]int32, error)
	IsActiveSubscriptionID(ctx context.Context, caller CallerIdentity, id int32) (bool, error)
	SimStateForSlot(ctx context.Context, slot int32) (proto.SimState, error)

	// Defaults
	DefaultSubscriptionID(ctx context.Context, kind DefaultKind) (int32, error)
	SetDefaultSubscriptionID(ctx context.Context, kind DefaultKind, id int32) error
	ClearDefaultsForInactive(ctx context.Context) error
	PreferredDataSubscriptionID(ctx context.Context) (int32, error)
	SetPreferredDataSubscriptionID(ctx context.Context, id int32) (int32, error)

	// Properties
	SetProperty(ctx context.Context, id int32, key, value string) error
	Property(ctx context.Context, caller CallerIdentity, id int32, key string) (string, bool, error)
	SetOpportunistic(ctx context.Context, caller CallerIdentity, id int32, opportunistic bool) (int32, error)
	SetMetered(ctx context.Context, caller CallerIdentity, id int32, metered bool) (int32, error)

	// Groups. SetGroup mints a group for exactly ids; AddToGroup extends an
	// existing one. GroupMembers returns nil when id has no group.
	SetGroup(ctx context.Context, caller CallerIdentity, ids []int32) (string, error)
	AddToGroup(ctx context.Context, caller CallerIdentity, ids []int32, groupID string) error
	RemoveFromGroup(ctx context.Context, caller CallerIdentity, ids []int32) (bool, error)
	GroupMembers(ctx context.Context, caller CallerIdentity, id int32) ([]*proto.SubscriptionInfo, error)

	// Enablement
	SetEnabled(ctx context.Context, id int32, enable bool) (bool, error)
	IsEnabled(ctx context.Context, id int32) (bool, error)
	EnabledSubscriptionID(ctx context.Context, slot int32) (int32, error)
}

// PolicyService owns subscription billing plans and network overrides
type PolicyService interface {
	SubscriptionPlans(ctx context.Context, caller CallerIdentity, id int32) ([]*proto.SubscriptionPlan, error)
	SetSubscriptionPlans(ctx context.Context, caller CallerIdentity, id int32, plans []*proto.SubscriptionPlan) error
	SubscriptionPlansOwner(ctx context.Context, id int32) (string, error)

	// SetSubscriptionOverride sets (value has the bit) or clears the override
	// bits in mask. A zero timeout keeps the override until cleared.
	SetSubscriptionOverride(ctx context.Context, caller CallerIdentity, id int32, mask, value proto.OverrideKind, timeout time.Duration) error
}

// DeviceInfo reports device capacity
type DeviceInfo interface {
	SimCount() int
	PhoneCount() int

	// DefaultCardID is the card id of the built-in eUICC
	DefaultCardID() int32
}

// Component is a long-running part of the daemon
type Component interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
