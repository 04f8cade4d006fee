package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/nkkko/simsub/internal/domain"
	"github.com/nkkko/simsub/pkg/proto"
)

// lockedRecords loads every record in ids. s.mu must be held.
func (s *Service) lockedRecords(ctx context.Context, ids []int32) ([]*proto.SubscriptionInfo, error) {
	recs := make([]*proto.SubscriptionInfo, 0, len(ids))
	for _, id := range ids {
		rec, err := s.record(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, fmt.Errorf("%w: %d", domain.ErrNotFound, id)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// SetGroup puts exactly ids into one group and returns its id. An existing
// group is reused only when its membership already equals ids; otherwise a
// new id is minted and the members leave their previous groups.
func (s *Service) SetGroup(ctx context.Context, caller domain.CallerIdentity, ids []int32) (string, error) {
	if len(ids) == 0 {
		return "", fmt.Errorf("%w: empty subscription list", domain.ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.lockedRecords(ctx, ids)
	if err != nil {
		return "", err
	}
	if err := s.authorize(caller, recs...); err != nil {
		return "", err
	}

	groupID, err := s.lockedExactGroup(ctx, recs)
	if err != nil {
		return "", err
	}
	if groupID != "" {
		return groupID, nil
	}

	groupID = generateGroupID()
	if err := s.lockedJoin(ctx, recs, groupID); err != nil {
		return "", err
	}

	s.logger.Info().Str("group", groupID).Ints32("sub_ids", ids).Msg("Subscriptions grouped")
	s.emit(domain.ListenerSubscriptions, domain.ListenerOpportunistic)
	return groupID, nil
}

// AddToGroup moves ids into the existing group groupID
func (s *Service) AddToGroup(ctx context.Context, caller domain.CallerIdentity, ids []int32, groupID string) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: empty subscription list", domain.ErrInvalidArgument)
	}
	if groupID == "" {
		return fmt.Errorf("%w: empty group id", domain.ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.lockedRecords(ctx, ids)
	if err != nil {
		return err
	}
	if err := s.authorize(caller, recs...); err != nil {
		return err
	}

	existing, err := s.filter(ctx, func(r *proto.SubscriptionInfo) bool {
		return r.GroupUuid == groupID
	})
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		return fmt.Errorf("%w: group %s", domain.ErrNotFound, groupID)
	}

	if err := s.lockedJoin(ctx, recs, groupID); err != nil {
		return err
	}

	s.logger.Info().Str("group", groupID).Ints32("sub_ids", ids).Msg("Subscriptions added to group")
	s.emit(domain.ListenerSubscriptions, domain.ListenerOpportunistic)
	return nil
}

// lockedExactGroup returns the group whose membership is exactly recs, or
// "" when there is none. s.mu must be held.
func (s *Service) lockedExactGroup(ctx context.Context, recs []*proto.SubscriptionInfo) (string, error) {
	groupID := recs[0].GroupUuid
	if groupID == "" {
		return "", nil
	}

	wanted := make(map[int32]bool, len(recs))
	for _, rec := range recs {
		if rec.GroupUuid != groupID {
			return "", nil
		}
		wanted[rec.Id] = true
	}

	members, err := s.filter(ctx, func(r *proto.SubscriptionInfo) bool {
		return r.GroupUuid == groupID
	})
	if err != nil {
		return "", err
	}
	if len(members) != len(wanted) {
		return "", nil
	}
	for _, m := range members {
		if !wanted[m.Id] {
			return "", nil
		}
	}
	return groupID, nil
}

// lockedJoin stores groupID on every record of recs. s.mu must be held.
func (s *Service) lockedJoin(ctx context.Context, recs []*proto.SubscriptionInfo, groupID string) error {
	for _, rec := range recs {
		if rec.GroupUuid == groupID {
			continue
		}
		rec.GroupUuid = groupID
		if err := s.put(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// RemoveFromGroup clears the group of every id. It reports whether any
// record changed.
func (s *Service) RemoveFromGroup(ctx context.Context, caller domain.CallerIdentity, ids []int32) (bool, error) {
	if len(ids) == 0 {
		return false, fmt.Errorf("%w: empty subscription list", domain.ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.lockedRecords(ctx, ids)
	if err != nil {
		return false, err
	}
	if err := s.authorize(caller, recs...); err != nil {
		return false, err
	}

	changed := false
	for _, rec := range recs {
		if rec.GroupUuid == "" {
			continue
		}
		rec.GroupUuid = ""
		if err := s.put(ctx, rec); err != nil {
			return changed, err
		}
		changed = true
	}

	if changed {
		s.logger.Info().Ints32("sub_ids", ids).Msg("Subscriptions removed from group")
		s.emit(domain.ListenerSubscriptions, domain.ListenerOpportunistic)
	}
	return changed, nil
}

// GroupMembers returns every record sharing id's group, nil when id has no
// group
func (s *Service) GroupMembers(ctx context.Context, caller domain.CallerIdentity, id int32) ([]*proto.SubscriptionInfo, error) {
	rec, err := s.record(ctx, id)
	if err != nil || rec == nil || rec.GroupUuid == "" {
		return nil, err
	}

	members, err := s.filter(ctx, func(r *proto.SubscriptionInfo) bool {
		return r.GroupUuid == rec.GroupUuid
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Id < members[j].Id })
	return members, nil
}

// generateGroupID mints group ids; tests replace it for stable ids
var generateGroupID = func() string {
	return uuid.New().String()
}
