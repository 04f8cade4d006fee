package subscription

import (
	"context"

	"github.com/nkkko/simsub/internal/domain"
	"github.com/nkkko/simsub/internal/subid"
	"github.com/nkkko/simsub/pkg/proto"
)

// defaultID reads one default through the resolver
func (c *Client) defaultID(ctx context.Context, op string, kind domain.DefaultKind) int32 {
	id := subid.Invalid
	_ = c.call(ctx, op, func(ctx context.Context) error {
		result, err := c.defaults.Get(ctx, kind)
		if err == nil {
			id = result
		}
		return err
	})
	return id
}

// DefaultSubscriptionID returns the system default subscription, or
// subid.Invalid
func (c *Client) DefaultSubscriptionID(ctx context.Context) int32 {
	return c.defaultID(ctx, "DefaultSubscriptionID", domain.DefaultSystem)
}

// DefaultVoiceSubscriptionID returns the default voice subscription, or
// subid.Invalid
func (c *Client) DefaultVoiceSubscriptionID(ctx context.Context) int32 {
	return c.defaultID(ctx, "DefaultVoiceSubscriptionID", domain.DefaultVoice)
}

// DefaultDataSubscriptionID returns the default data subscription, or
// subid.Invalid
func (c *Client) DefaultDataSubscriptionID(ctx context.Context) int32 {
	return c.defaultID(ctx, "DefaultDataSubscriptionID", domain.DefaultData)
}

// DefaultSMSSubscriptionID returns the default SMS subscription, or
// subid.Invalid
func (c *Client) DefaultSMSSubscriptionID(ctx context.Context) int32 {
	return c.defaultID(ctx, "DefaultSMSSubscriptionID", domain.DefaultSMS)
}

// SetDefaultVoiceSubscriptionID forwards id as the voice default. Failures
// are logged only.
func (c *Client) SetDefaultVoiceSubscriptionID(ctx context.Context, id int32) {
	_ = c.call(ctx, "SetDefaultVoiceSubscriptionID", func(ctx context.Context) error {
		return c.defaults.Set(ctx, domain.DefaultVoice, id)
	}, subAttr(id))
}

// SetDefaultDataSubscriptionID forwards id as the data default. Failures
// are logged only.
func (c *Client) SetDefaultDataSubscriptionID(ctx context.Context, id int32) {
	_ = c.call(ctx, "SetDefaultDataSubscriptionID", func(ctx context.Context) error {
		return c.defaults.Set(ctx, domain.DefaultData, id)
	}, subAttr(id))
}

// SetDefaultSMSSubscriptionID sets the SMS default. It requires a usable
// id and is permission-gated: ErrUnusableSubscriptionID and
// ErrPermissionDenied are returned, other failures only logged.
func (c *Client) SetDefaultSMSSubscriptionID(ctx context.Context, id int32) error {
	const op = "SetDefaultSMSSubscriptionID"
	if !subid.IsUsable(id) {
		c.reject(op, "sub_id", id)
		return c.defaults.SetUsable(ctx, domain.DefaultSMS, id)
	}

	err := c.call(ctx, op, func(ctx context.Context) error {
		return c.defaults.SetUsable(ctx, domain.DefaultSMS, id)
	}, subAttr(id))
	return gated(op, err)
}

// defaultInfo resolves a default kind to its active record
func (c *Client) defaultInfo(ctx context.Context, id int32) *proto.SubscriptionInfo {
	if !subid.IsValid(id) {
		return nil
	}
	return c.ActiveSubscriptionInfo(ctx, id)
}

// DefaultVoiceSubscriptionInfo returns the record of the voice default, or nil
func (c *Client) DefaultVoiceSubscriptionInfo(ctx context.Context) *proto.SubscriptionInfo {
	return c.defaultInfo(ctx, c.DefaultVoiceSubscriptionID(ctx))
}

// DefaultDataSubscriptionInfo returns the record of the data default, or nil
func (c *Client) DefaultDataSubscriptionInfo(ctx context.Context) *proto.SubscriptionInfo {
	return c.defaultInfo(ctx, c.DefaultDataSubscriptionID(ctx))
}

// DefaultSMSSubscriptionInfo returns the record of the SMS default, or nil
func (c *Client) DefaultSMSSubscriptionInfo(ctx context.Context) *proto.SubscriptionInfo {
	return c.defaultInfo(ctx, c.DefaultSMSSubscriptionID(ctx))
}

// DefaultVoicePhoneID returns the phone serving the voice default
func (c *Client) DefaultVoicePhoneID(ctx context.Context) int32 {
	return c.PhoneID(ctx, c.DefaultVoiceSubscriptionID(ctx))
}

// DefaultDataPhoneID returns the phone serving the data default
func (c *Client) DefaultDataPhoneID(ctx context.Context) int32 {
	return c.PhoneID(ctx, c.DefaultDataSubscriptionID(ctx))
}

// DefaultSMSPhoneID returns the phone serving the SMS default
func (c *Client) DefaultSMSPhoneID(ctx context.Context) int32 {
	return c.PhoneID(ctx, c.DefaultSMSSubscriptionID(ctx))
}

// ClearDefaultsForInactiveSubIDs asks the remote service to reset defaults
// that point at inactive subscriptions
func (c *Client) ClearDefaultsForInactiveSubIDs(ctx context.Context) {
	_ = c.call(ctx, "ClearDefaultsForInactiveSubIDs", func(ctx context.Context) error {
		return c.defaults.ClearDefaultsForInactive(ctx)
	})
}

// AllDefaultsSelected reports whether the data, SMS and voice defaults all
// name real subscriptions right now
func (c *Client) AllDefaultsSelected(ctx context.Context) bool {
	var selected bool
	_ = c.call(ctx, "AllDefaultsSelected", func(ctx context.Context) error {
		result, err := c.defaults.AllDefaultsSelected(ctx)
		if err == nil {
			selected = result
		}
		return err
	})
	return selected
}

// PreferredDataSubscriptionID returns the subscription preferred for data
// at the moment, or subid.Default when it cannot be read
func (c *Client) PreferredDataSubscriptionID(ctx context.Context) int32 {
	id := subid.Default
	_ = c.call(ctx, "PreferredDataSubscriptionID", func(ctx context.Context) error {
		result, err := c.service.PreferredDataSubscriptionID(ctx)
		if err == nil {
			id = result
		}
		return err
	})
	return id
}

// SetPreferredDataSubscriptionID prefers id for data. subid.Default hands
// the choice back to the system.
func (c *Client) SetPreferredDataSubscriptionID(ctx context.Context, id int32) {
	c.setPropertyHelper(ctx, "SetPreferredDataSubscriptionID", subid.Default, func(ctx context.Context) (int32, error) {
		return c.service.SetPreferredDataSubscriptionID(ctx, id)
	})
}
