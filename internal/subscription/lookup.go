package subscription

import (
	"context"

	"github.com/nkkko/simsub/internal/subid"
	"github.com/nkkko/simsub/internal/visibility"
	"github.com/nkkko/simsub/pkg/proto"
)

// ActiveSubscriptionInfo returns the active record for id, or nil
func (c *Client) ActiveSubscriptionInfo(ctx context.Context, id int32) *proto.SubscriptionInfo {
	const op = "ActiveSubscriptionInfo"
	if !subid.IsValid(id) {
		c.reject(op, "sub_id", id)
		return nil
	}

	var info *proto.SubscriptionInfo
	_ = c.call(ctx, op, func(ctx context.Context) error {
		result, err := c.service.ActiveSubscription(ctx, c.caller, id)
		if err == nil {
			info = result
		}
		return err
	}, subAttr(id))
	return info
}

// ActiveSubscriptionInfoForIccID returns the active record with iccID, or nil
func (c *Client) ActiveSubscriptionInfoForIccID(ctx context.Context, iccID string) *proto.SubscriptionInfo {
	const op = "ActiveSubscriptionInfoForIccID"
	if iccID == "" {
		c.logger.Debug().Str("operation", op).Msg("Empty icc id")
		return nil
	}

	var info *proto.SubscriptionInfo
	_ = c.call(ctx, op, func(ctx context.Context) error {
		result, err := c.service.ActiveSubscriptionForIccID(ctx, c.caller, iccID)
		if err == nil {
			info = result
		}
		return err
	})
	return info
}

// ActiveSubscriptionInfoForSlot returns the active record in slot, or nil
func (c *Client) ActiveSubscriptionInfoForSlot(ctx context.Context, slot int32) *proto.SubscriptionInfo {
	const op = "ActiveSubscriptionInfoForSlot"
	if !c.rules.IsValidSlot(slot) {
		c.reject(op, "slot_index", slot)
		return nil
	}

	var info *proto.SubscriptionInfo
	_ = c.call(ctx, op, func(ctx context.Context) error {
		result, err := c.service.ActiveSubscriptionForSlot(ctx, c.caller, slot)
		if err == nil {
			info = result
		}
		return err
	}, slotAttr(slot))
	return info
}

// AllSubscriptionInfoList returns every record ever seen, active or not.
// The result is never nil.
func (c *Client) AllSubscriptionInfoList(ctx context.Context) []*proto.SubscriptionInfo {
	var list []*proto.SubscriptionInfo
	_ = c.call(ctx, "AllSubscriptionInfoList", func(ctx context.Context) error {
		result, err := c.service.AllSubscriptions(ctx, c.caller)
		if err == nil {
			list = result
		}
		return err
	})
	if list == nil {
		return []*proto.SubscriptionInfo{}
	}
	return list
}

// ActiveSubscriptionInfoList returns the active records sorted by slot and
// then id, or nil when none could be read
func (c *Client) ActiveSubscriptionInfoList(ctx context.Context) []*proto.SubscriptionInfo {
	return c.activeSubscriptionInfoList(ctx, false)
}

// VisibleActiveSubscriptionInfoList is ActiveSubscriptionInfoList without
// the subscriptions hidden from users
func (c *Client) VisibleActiveSubscriptionInfoList(ctx context.Context) []*proto.SubscriptionInfo {
	return c.activeSubscriptionInfoList(ctx, true)
}

func (c *Client) activeSubscriptionInfoList(ctx context.Context, userVisibleOnly bool) []*proto.SubscriptionInfo {
	var list []*proto.SubscriptionInfo
	_ = c.call(ctx, "ActiveSubscriptionInfoList", func(ctx context.Context) error {
		result, err := c.service.ActiveSubscriptions(ctx, c.caller)
		if err == nil {
			list = result
		}
		return err
	})
	if !userVisibleOnly {
		return list
	}
	return visibility.FilterVisible(list)
}

// AvailableSubscriptionInfoList returns active records plus installed
// embedded profiles, or nil
func (c *Client) AvailableSubscriptionInfoList(ctx context.Context) []*proto.SubscriptionInfo {
	var list []*proto.SubscriptionInfo
	_ = c.call(ctx, "AvailableSubscriptionInfoList", func(ctx context.Context) error {
		result, err := c.service.AvailableSubscriptions(ctx, c.caller)
		if err == nil {
			list = result
		}
		return err
	})
	return list
}

// SelectableSubscriptionInfoList returns the available records a user may
// pick from, or nil
func (c *Client) SelectableSubscriptionInfoList(ctx context.Context) []*proto.SubscriptionInfo {
	return visibility.FilterVisible(c.AvailableSubscriptionInfoList(ctx))
}

// AccessibleSubscriptionInfoList returns the embedded profiles the caller is
// allowed to manage, or nil
func (c *Client) AccessibleSubscriptionInfoList(ctx context.Context) []*proto.SubscriptionInfo {
	var list []*proto.SubscriptionInfo
	_ = c.call(ctx, "AccessibleSubscriptionInfoList", func(ctx context.Context) error {
		result, err := c.service.AccessibleSubscriptions(ctx, c.caller)
		if err == nil {
			list = result
		}
		return err
	})
	return list
}

// OpportunisticSubscriptions returns the opportunistic records. The result
// is never nil.
func (c *Client) OpportunisticSubscriptions(ctx context.Context) []*proto.SubscriptionInfo {
	var list []*proto.SubscriptionInfo
	_ = c.call(ctx, "OpportunisticSubscriptions", func(ctx context.Context) error {
		result, err := c.service.OpportunisticSubscriptions(ctx, c.caller)
		if err == nil {
			list = result
		}
		return err
	})
	if list == nil {
		return []*proto.SubscriptionInfo{}
	}
	return list
}

// RequestEmbeddedSubscriptionInfoListRefresh asks the remote service to
// re-read the embedded profiles on cardID
func (c *Client) RequestEmbeddedSubscriptionInfoListRefresh(ctx context.Context, cardID int32) {
	_ = c.call(ctx, "RequestEmbeddedSubscriptionInfoListRefresh", func(ctx context.Context) error {
		return c.service.RequestEmbeddedRefresh(ctx, cardID)
	})
}

// RequestDefaultEmbeddedSubscriptionInfoListRefresh refreshes the built-in
// eUICC
func (c *Client) RequestDefaultEmbeddedSubscriptionInfoListRefresh(ctx context.Context) {
	var cardID int32
	if c.device != nil {
		cardID = c.device.DefaultCardID()
	}
	c.RequestEmbeddedSubscriptionInfoListRefresh(ctx, cardID)
}

// AllSubscriptionInfoCount returns the number of records, 0 on failure
func (c *Client) AllSubscriptionInfoCount(ctx context.Context) int {
	var n int
	_ = c.call(ctx, "AllSubscriptionInfoCount", func(ctx context.Context) error {
		result, err := c.service.AllCount(ctx, c.caller)
		if err == nil {
			n = result
		}
		return err
	})
	return n
}

// ActiveSubscriptionInfoCount returns the number of active records, 0 on
// failure
func (c *Client) ActiveSubscriptionInfoCount(ctx context.Context) int {
	var n int
	_ = c.call(ctx, "ActiveSubscriptionInfoCount", func(ctx context.Context) error {
		result, err := c.service.ActiveCount(ctx, c.caller)
		if err == nil {
			n = result
		}
		return err
	})
	return n
}

// ActiveSubscriptionInfoCountMax returns how many subscriptions can be
// active at once, 0 on failure
func (c *Client) ActiveSubscriptionInfoCountMax(ctx context.Context) int {
	var n int
	_ = c.call(ctx, "ActiveSubscriptionInfoCountMax", func(ctx context.Context) error {
		result, err := c.service.ActiveCountMax(ctx)
		if err == nil {
			n = result
		}
		return err
	})
	return n
}

// SlotIndex returns the slot holding id, or subid.InvalidSlot. The id is
// not gated locally: an invalid id is only logged and the remote service
// answers for it.
func (c *Client) SlotIndex(ctx context.Context, id int32) int32 {
	const op = "SlotIndex"
	if !subid.IsValid(id) {
		c.logger.Debug().Str("operation", op).Int32("sub_id", id).Msg("Invalid subscription id")
	}

	slot := subid.InvalidSlot
	_ = c.call(ctx, op, func(ctx context.Context) error {
		result, err := c.service.SlotIndex(ctx, id)
		if err == nil {
			slot = result
		}
		return err
	}, subAttr(id))
	return slot
}

// SubscriptionIDs returns the ids in slot, or nil
func (c *Client) SubscriptionIDs(ctx context.Context, slot int32) []int32 {
	const op = "SubscriptionIDs"
	if !c.rules.IsValidSlot(slot) {
		c.reject(op, "slot_index", slot)
		return nil
	}

	var ids []int32
	_ = c.call(ctx, op, func(ctx context.Context) error {
		result, err := c.service.SubscriptionIDs(ctx, slot)
		if err == nil {
			ids = result
		}
		return err
	}, slotAttr(slot))
	return ids
}

// PhoneID returns the phone serving id, or subid.InvalidPhone
func (c *Client) PhoneID(ctx context.Context, id int32) int32 {
	const op = "PhoneID"
	if !subid.IsValid(id) {
		c.reject(op, "sub_id", id)
		return subid.InvalidPhone
	}

	phone := subid.InvalidPhone
	_ = c.call(ctx, op, func(ctx context.Context) error {
		result, err := c.service.PhoneID(ctx, id)
		if err == nil {
			phone = result
		}
		return err
	}, subAttr(id))
	return phone
}

// ActiveSubscriptionIDList returns the active ids. The result is never nil.
func (c *Client) ActiveSubscriptionIDList(ctx context.Context) []int32 {
	var ids []int32
	_ = c.call(ctx, "ActiveSubscriptionIDList", func(ctx context.Context) error {
		result, err := c.service.ActiveSubscriptionIDs(ctx)
		if err == nil {
			ids = result
		}
		return err
	})
	if ids == nil {
		return []int32{}
	}
	return ids
}

// IsActiveSubscriptionID reports whether id is active
func (c *Client) IsActiveSubscriptionID(ctx context.Context, id int32) bool {
	var active bool
	_ = c.call(ctx, "IsActiveSubscriptionID", func(ctx context.Context) error {
		result, err := c.service.IsActiveSubscriptionID(ctx, c.caller, id)
		if err == nil {
			active = result
		}
		return err
	}, subAttr(id))
	return active
}

// SimStateForSlot returns the card state of slot, SimState_UNKNOWN on
// failure
func (c *Client) SimStateForSlot(ctx context.Context, slot int32) proto.SimState {
	state := proto.SimState_UNKNOWN
	_ = c.call(ctx, "SimStateForSlot", func(ctx context.Context) error {
		result, err := c.service.SimStateForSlot(ctx, slot)
		if err == nil {
			state = result
		}
		return err
	}, slotAttr(slot))
	return state
}
