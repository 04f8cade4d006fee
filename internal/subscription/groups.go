package subscription

import (
	"context"

	"github.com/nkkko/simsub/internal/subid"
	"github.com/nkkko/simsub/pkg/proto"
)

// SetOpportunistic marks id as opportunistic or not. It reports whether the
// remote record changed.
func (c *Client) SetOpportunistic(ctx context.Context, opportunistic bool, id int32) bool {
	return c.setPropertyHelper(ctx, "SetOpportunistic", id, func(ctx context.Context) (int32, error) {
		return c.service.SetOpportunistic(ctx, c.caller, id, opportunistic)
	}) == 1
}

// SetMetered marks id as metered or not. It reports whether the remote
// record changed.
func (c *Client) SetMetered(ctx context.Context, metered bool, id int32) bool {
	return c.setPropertyHelper(ctx, "SetMetered", id, func(ctx context.Context) (int32, error) {
		return c.service.SetMetered(ctx, c.caller, id, metered)
	}) == 1
}

// SetSubscriptionGroup puts exactly ids into one group and returns the
// group id, or "" on failure. Permission failures are returned.
func (c *Client) SetSubscriptionGroup(ctx context.Context, ids []int32) (string, error) {
	const op = "SetSubscriptionGroup"
	var groupID string
	err := c.call(ctx, op, func(ctx context.Context) error {
		result, err := c.groups.SetGroup(ctx, ids)
		if err == nil {
			groupID = result
		}
		return err
	})
	return groupID, gated(op, err)
}

// AddSubscriptionsIntoGroup moves ids into the existing group groupID and
// reports success. Permission failures are returned.
func (c *Client) AddSubscriptionsIntoGroup(ctx context.Context, ids []int32, groupID string) (bool, error) {
	const op = "AddSubscriptionsIntoGroup"
	var added bool
	err := c.call(ctx, op, func(ctx context.Context) error {
		result, err := c.groups.AddToGroup(ctx, ids, groupID)
		if err == nil {
			added = result
		}
		return err
	})
	return added, gated(op, err)
}

// RemoveSubscriptionsFromGroup ungroups ids. Permission failures are
// returned.
func (c *Client) RemoveSubscriptionsFromGroup(ctx context.Context, ids []int32) (bool, error) {
	const op = "RemoveSubscriptionsFromGroup"
	var removed bool
	err := c.call(ctx, op, func(ctx context.Context) error {
		result, err := c.groups.RemoveFromGroup(ctx, ids)
		if err == nil {
			removed = result
		}
		return err
	})
	return removed, gated(op, err)
}

// SubscriptionsInGroup returns every member of id's group, id included.
// found is false when id has no group or the call failed.
func (c *Client) SubscriptionsInGroup(ctx context.Context, id int32) (members []*proto.SubscriptionInfo, found bool) {
	_ = c.call(ctx, "SubscriptionsInGroup", func(ctx context.Context) error {
		list, ok, err := c.groups.Members(ctx, id)
		if err == nil {
			members, found = list, ok
		}
		return err
	}, subAttr(id))
	return members, found
}

// SetSubscriptionEnabled enables or disables id. It reports success.
func (c *Client) SetSubscriptionEnabled(ctx context.Context, id int32, enable bool) bool {
	const op = "SetSubscriptionEnabled"
	if !subid.IsValid(id) {
		c.reject(op, "sub_id", id)
		return false
	}

	var ok bool
	_ = c.call(ctx, op, func(ctx context.Context) error {
		result, err := c.service.SetEnabled(ctx, id, enable)
		if err == nil {
			ok = result
		}
		return err
	}, subAttr(id))
	return ok
}

// IsSubscriptionEnabled reports whether id is enabled
func (c *Client) IsSubscriptionEnabled(ctx context.Context, id int32) bool {
	var enabled bool
	_ = c.call(ctx, "IsSubscriptionEnabled", func(ctx context.Context) error {
		result, err := c.service.IsEnabled(ctx, id)
		if err == nil {
			enabled = result
		}
		return err
	}, subAttr(id))
	return enabled
}

// EnabledSubscriptionID returns the enabled subscription in slot, or
// subid.Invalid
func (c *Client) EnabledSubscriptionID(ctx context.Context, slot int32) int32 {
	const op = "EnabledSubscriptionID"
	if !c.rules.IsValidSlot(slot) {
		c.reject(op, "slot_index", slot)
		return subid.Invalid
	}

	id := subid.Invalid
	_ = c.call(ctx, op, func(ctx context.Context) error {
		result, err := c.service.EnabledSubscriptionID(ctx, slot)
		if err == nil {
			id = result
		}
		return err
	}, slotAttr(slot))
	return id
}
