// Package group coordinates subscription groups.
//
// A group is a set of subscriptions sharing one opaque id minted by the
// remote service. The remote service owns membership; this package only
// validates requests before they leave the process.
package group

import (
	"context"
	"fmt"

	"github.com/nkkko/simsub/internal/domain"
	"github.com/nkkko/simsub/internal/subid"
	"github.com/nkkko/simsub/pkg/proto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Coordinator forwards group operations on behalf of one caller
type Coordinator struct {
	caller  domain.CallerIdentity
	service domain.SubscriptionService
	logger  zerolog.Logger
}

// NewCoordinator creates a coordinator for caller
func NewCoordinator(caller domain.CallerIdentity, service domain.SubscriptionService) *Coordinator {
	return &Coordinator{
		caller:  caller,
		service: service,
		logger:  log.With().Str("component", "group").Str("caller", string(caller)).Logger(),
	}
}

// SetGroup puts exactly ids into one group and returns its id. Invalid ids
// are refused locally with "" and no error; remote failures are returned.
func (c *Coordinator) SetGroup(ctx context.Context, ids []int32) (string, error) {
	if !validIDs(ids) {
		c.logger.Debug().Ints32("ids", ids).Msg("Rejecting group request with invalid ids")
		return "", nil
	}

	groupID, err := c.service.SetGroup(ctx, c.caller, ids)
	if err != nil {
		return "", fmt.Errorf("set group: %w", err)
	}
	return groupID, nil
}

// AddToGroup moves ids into the existing group groupID. It reports whether
// the request was sent and accepted.
func (c *Coordinator) AddToGroup(ctx context.Context, ids []int32, groupID string) (bool, error) {
	if !validIDs(ids) || groupID == "" {
		c.logger.Debug().Ints32("ids", ids).Str("group", groupID).Msg("Rejecting add to group request")
		return false, nil
	}

	if err := c.service.AddToGroup(ctx, c.caller, ids, groupID); err != nil {
		return false, fmt.Errorf("add to group: %w", err)
	}
	return true, nil
}

// RemoveFromGroup takes ids out of their group and reports whether any of
// them was grouped
func (c *Coordinator) RemoveFromGroup(ctx context.Context, ids []int32) (bool, error) {
	if !validIDs(ids) {
		c.logger.Debug().Ints32("ids", ids).Msg("Rejecting ungroup request with invalid ids")
		return false, nil
	}

	removed, err := c.service.RemoveFromGroup(ctx, c.caller, ids)
	if err != nil {
		return false, fmt.Errorf("remove from group: %w", err)
	}
	return removed, nil
}

// Members returns every subscription in id's group, id included. found is
// false when id is invalid, unknown, not in a group or the call failed; an
// empty group is reported as found with no members.
func (c *Coordinator) Members(ctx context.Context, id int32) (members []*proto.SubscriptionInfo, found bool, err error) {
	if !subid.IsValid(id) {
		return nil, false, nil
	}

	list, err := c.service.GroupMembers(ctx, c.caller, id)
	if err != nil {
		return nil, false, fmt.Errorf("group members of %d: %w", id, err)
	}
	if list == nil {
		return nil, false, nil
	}
	return list, true, nil
}

func validIDs(ids []int32) bool {
	if len(ids) == 0 {
		return false
	}
	for _, id := range ids {
		if !subid.IsValid(id) {
			return false
		}
	}
	return true
}
