package subscription

import (
	"context"
	"time"

	"github.com/nkkko/simsub/pkg/proto"
)

// Subscription plan calls are permission-gated: ErrPermissionDenied is
// returned to the caller, any other failure yields the neutral result.

// SubscriptionPlans returns the billing plans of id. The list is never nil.
func (c *Client) SubscriptionPlans(ctx context.Context, id int32) ([]*proto.SubscriptionPlan, error) {
	const op = "SubscriptionPlans"

	var plans []*proto.SubscriptionPlan
	err := c.call(ctx, op, func(ctx context.Context) error {
		result, err := c.policy.SubscriptionPlans(ctx, c.caller, id)
		if err == nil {
			plans = result
		}
		return err
	}, subAttr(id))
	if plans == nil {
		plans = []*proto.SubscriptionPlan{}
	}
	return plans, gated(op, err)
}

// SetSubscriptionPlans replaces the billing plans of id. The caller becomes
// the plans owner.
func (c *Client) SetSubscriptionPlans(ctx context.Context, id int32, plans []*proto.SubscriptionPlan) error {
	const op = "SetSubscriptionPlans"
	err := c.call(ctx, op, func(ctx context.Context) error {
		return c.policy.SetSubscriptionPlans(ctx, c.caller, id, plans)
	}, subAttr(id))
	return gated(op, err)
}

// SubscriptionPlansOwner returns the package that owns the plans of id, or ""
func (c *Client) SubscriptionPlansOwner(ctx context.Context, id int32) (string, error) {
	const op = "SubscriptionPlansOwner"

	var owner string
	err := c.call(ctx, op, func(ctx context.Context) error {
		result, err := c.policy.SubscriptionPlansOwner(ctx, id)
		if err == nil {
			owner = result
		}
		return err
	}, subAttr(id))
	return owner, gated(op, err)
}

// IsSubscriptionPlansRefreshSupported reports whether id has a plans owner
// that installed at least one plan
func (c *Client) IsSubscriptionPlansRefreshSupported(ctx context.Context, id int32) (bool, error) {
	owner, err := c.SubscriptionPlansOwner(ctx, id)
	if err != nil {
		return false, err
	}
	if owner == "" {
		return false, nil
	}

	plans, err := c.SubscriptionPlans(ctx, id)
	if err != nil {
		return false, err
	}
	return len(plans) > 0, nil
}

// SetSubscriptionOverrideUnmetered treats id's network as unmetered until
// timeout elapses. A zero timeout lasts until cleared.
func (c *Client) SetSubscriptionOverrideUnmetered(ctx context.Context, id int32, unmetered bool, timeout time.Duration) error {
	return c.setOverride(ctx, "SetSubscriptionOverrideUnmetered", id, proto.OverrideKind_UNMETERED, unmetered, timeout)
}

// SetSubscriptionOverrideCongested treats id's network as congested until
// timeout elapses. A zero timeout lasts until cleared.
func (c *Client) SetSubscriptionOverrideCongested(ctx context.Context, id int32, congested bool, timeout time.Duration) error {
	return c.setOverride(ctx, "SetSubscriptionOverrideCongested", id, proto.OverrideKind_CONGESTED, congested, timeout)
}

func (c *Client) setOverride(ctx context.Context, op string, id int32, kind proto.OverrideKind, on bool, timeout time.Duration) error {
	var value proto.OverrideKind
	if on {
		value = kind
	}
	if timeout < 0 {
		timeout = 0
	}

	err := c.call(ctx, op, func(ctx context.Context) error {
		return c.policy.SetSubscriptionOverride(ctx, c.caller, id, kind, value, timeout)
	}, subAttr(id))
	return gated(op, err)
}
