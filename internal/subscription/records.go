package subscription

import (
	"context"
	"strconv"

	"github.com/nkkko/simsub/internal/subid"
	"github.com/nkkko/simsub/pkg/proto"
)

// Property keys understood by the remote service
const (
	PropertyDisplayName     = "display_name"
	PropertyDisplayNumber   = "number"
	PropertyIconTint        = "color"
	PropertyDataRoaming     = "data_roaming"
	PropertyIsOpportunistic = "is_opportunistic"
	PropertyIsMetered       = "is_metered"
	PropertyEnhanced4GMode  = "volte_vt_enabled"
	PropertyVTIMSEnabled    = "vt_ims_enabled"
	PropertyWFCIMSEnabled   = "wfc_ims_enabled"
	PropertyWFCIMSMode      = "wfc_ims_mode"
	PropertyWFCRoamingMode  = "wfc_ims_roaming_mode"
	PropertyWFCRoaming      = "wfc_ims_roaming_enabled"
)

// AddSubscriptionInfoRecord adds or re-activates the record for uniqueID in
// slot. An empty uniqueID is ignored.
func (c *Client) AddSubscriptionInfoRecord(ctx context.Context, uniqueID, displayName string, slot int32, subType proto.SubscriptionType) {
	const op = "AddSubscriptionInfoRecord"
	if uniqueID == "" {
		c.logger.Debug().Str("operation", op).Msg("Empty unique id")
		return
	}

	_ = c.call(ctx, op, func(ctx context.Context) error {
		result, err := c.service.AddSubscription(ctx, uniqueID, displayName, slot, subType)
		if err == nil && result < 0 {
			c.logger.Warn().Str("operation", op).Int32("result", result).Msg("Remote service refused record")
		}
		return err
	}, slotAttr(slot))
}

// RemoveSubscriptionInfoRecord removes the record for uniqueID. An empty
// uniqueID is ignored.
func (c *Client) RemoveSubscriptionInfoRecord(ctx context.Context, uniqueID string, subType proto.SubscriptionType) {
	const op = "RemoveSubscriptionInfoRecord"
	if uniqueID == "" {
		c.logger.Debug().Str("operation", op).Msg("Empty unique id")
		return
	}

	_ = c.call(ctx, op, func(ctx context.Context) error {
		result, err := c.service.RemoveSubscription(ctx, uniqueID, subType)
		if err == nil && result < 0 {
			c.logger.Warn().Str("operation", op).Int32("result", result).Msg("Remote service found no record")
		}
		return err
	})
}

// ClearSubscriptionInfo drops every record
func (c *Client) ClearSubscriptionInfo(ctx context.Context) {
	_ = c.call(ctx, "ClearSubscriptionInfo", func(ctx context.Context) error {
		return c.service.ClearSubscriptions(ctx)
	})
}

// setPropertyHelper runs one record update. It returns -1 for an invalid id
// without calling out, 0 when the remote call fails and the remote row
// count otherwise.
func (c *Client) setPropertyHelper(ctx context.Context, op string, id int32, update func(ctx context.Context) (int32, error)) int32 {
	if !subid.IsValid(id) {
		c.reject(op, "sub_id", id)
		return -1
	}

	var result int32
	_ = c.call(ctx, op, func(ctx context.Context) error {
		n, err := update(ctx)
		if err == nil {
			result = n
		}
		return err
	}, subAttr(id))
	return result
}

// SetIconTint sets the record's icon tint
func (c *Client) SetIconTint(ctx context.Context, tint, id int32) int32 {
	return c.setPropertyHelper(ctx, "SetIconTint", id, func(ctx context.Context) (int32, error) {
		return c.service.SetIconTint(ctx, id, tint)
	})
}

// SetDisplayName sets the record's display name with an undefined source
func (c *Client) SetDisplayName(ctx context.Context, name string, id int32) int32 {
	return c.SetDisplayNameWithSource(ctx, name, id, proto.NameSource_UNDEFINED)
}

// SetDisplayNameWithSource sets the record's display name and its source
func (c *Client) SetDisplayNameWithSource(ctx context.Context, name string, id int32, source proto.NameSource) int32 {
	return c.setPropertyHelper(ctx, "SetDisplayName", id, func(ctx context.Context) (int32, error) {
		return c.service.SetDisplayName(ctx, id, name, source)
	})
}

// SetDisplayNumber sets the record's phone number. An empty number is
// refused with -1.
func (c *Client) SetDisplayNumber(ctx context.Context, number string, id int32) int32 {
	if number == "" {
		c.logger.Debug().Str("operation", "SetDisplayNumber").Msg("Empty number")
		return -1
	}
	return c.setPropertyHelper(ctx, "SetDisplayNumber", id, func(ctx context.Context) (int32, error) {
		return c.service.SetDisplayNumber(ctx, id, number)
	})
}

// SetDataRoaming sets the record's data roaming mode
func (c *Client) SetDataRoaming(ctx context.Context, roaming, id int32) int32 {
	return c.setPropertyHelper(ctx, "SetDataRoaming", id, func(ctx context.Context) (int32, error) {
		return c.service.SetDataRoaming(ctx, id, roaming)
	})
}

// SetSubscriptionProperty stores value under key on the record
func (c *Client) SetSubscriptionProperty(ctx context.Context, id int32, key, value string) {
	_ = c.call(ctx, "SetSubscriptionProperty", func(ctx context.Context) error {
		return c.service.SetProperty(ctx, id, key, value)
	}, subAttr(id))
}

// SubscriptionProperty returns the value stored under key. ok is false when
// the property is unset or could not be read.
func (c *Client) SubscriptionProperty(ctx context.Context, id int32, key string) (value string, ok bool) {
	_ = c.call(ctx, "SubscriptionProperty", func(ctx context.Context) error {
		result, found, err := c.service.Property(ctx, c.caller, id, key)
		if err == nil {
			value, ok = result, found
		}
		return err
	}, subAttr(id))
	return value, ok
}

// BoolSubscriptionProperty reads key as an integer flag (1 is true).
// Missing or malformed values yield def.
func (c *Client) BoolSubscriptionProperty(ctx context.Context, id int32, key string, def bool) bool {
	value, ok := c.SubscriptionProperty(ctx, id, key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("Malformed boolean property")
		return def
	}
	return n == 1
}

// IntSubscriptionProperty reads key as an integer. Missing or malformed
// values yield def.
func (c *Client) IntSubscriptionProperty(ctx context.Context, id int32, key string, def int) int {
	value, ok := c.SubscriptionProperty(ctx, id, key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("Malformed integer property")
		return def
	}
	return n
}
