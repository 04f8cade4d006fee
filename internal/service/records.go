package service

import (
	"context"
	"fmt"

	"github.com/nkkko/simsub/internal/domain"
	"github.com/nkkko/simsub/internal/subid"
	"github.com/nkkko/simsub/pkg/proto"
)

// ActiveSubscription returns the record for id if it is active
func (s *Service) ActiveSubscription(ctx context.Context, caller domain.CallerIdentity, id int32) (*proto.SubscriptionInfo, error) {
	rec, err := s.record(ctx, id)
	if err != nil || rec == nil || !isActive(rec) {
		return nil, err
	}
	return rec, nil
}

// ActiveSubscriptionForIccID returns the active record with iccID
func (s *Service) ActiveSubscriptionForIccID(ctx context.Context, caller domain.CallerIdentity, iccID string) (*proto.SubscriptionInfo, error) {
	recs, err := s.filter(ctx, func(rec *proto.SubscriptionInfo) bool {
		return rec.IccId == iccID && isActive(rec)
	})
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

// ActiveSubscriptionForSlot returns the active record with the lowest id in
// slot
func (s *Service) ActiveSubscriptionForSlot(ctx context.Context, caller domain.CallerIdentity, slot int32) (*proto.SubscriptionInfo, error) {
	recs, err := s.filter(ctx, func(rec *proto.SubscriptionInfo) bool {
		return rec.SimSlotIndex == slot && isActive(rec)
	})
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

// AllSubscriptions returns every record
func (s *Service) AllSubscriptions(ctx context.Context, caller domain.CallerIdentity) ([]*proto.SubscriptionInfo, error) {
	return s.filter(ctx, func(*proto.SubscriptionInfo) bool { return true })
}

// ActiveSubscriptions returns the active records by slot, nil when none
func (s *Service) ActiveSubscriptions(ctx context.Context, caller domain.CallerIdentity) ([]*proto.SubscriptionInfo, error) {
	recs, err := s.filter(ctx, isActive)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	sortBySlot(recs)
	return recs, nil
}

// AvailableSubscriptions returns active records plus installed embedded
// profiles, nil when none
func (s *Service) AvailableSubscriptions(ctx context.Context, caller domain.CallerIdentity) ([]*proto.SubscriptionInfo, error) {
	recs, err := s.filter(ctx, func(rec *proto.SubscriptionInfo) bool {
		return isActive(rec) || rec.IsEmbedded
	})
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	sortBySlot(recs)
	return recs, nil
}

// AccessibleSubscriptions returns the embedded profiles caller may manage,
// nil when none
func (s *Service) AccessibleSubscriptions(ctx context.Context, caller domain.CallerIdentity) ([]*proto.SubscriptionInfo, error) {
	_, privileged := s.privileged[caller]
	recs, err := s.filter(ctx, func(rec *proto.SubscriptionInfo) bool {
		return rec.IsEmbedded && (privileged || hasAccess(rec, caller))
	})
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs, nil
}

// OpportunisticSubscriptions returns every opportunistic record
func (s *Service) OpportunisticSubscriptions(ctx context.Context, caller domain.CallerIdentity) ([]*proto.SubscriptionInfo, error) {
	return s.filter(ctx, func(rec *proto.SubscriptionInfo) bool {
		return rec.IsOpportunistic
	})
}

// RequestEmbeddedRefresh re-reads the profiles on cardID. The reference
// service has no eUICC to read, so it only tells listeners to re-query.
func (s *Service) RequestEmbeddedRefresh(ctx context.Context, cardID int32) error {
	if cardID < 0 {
		return fmt.Errorf("%w: card id %d", domain.ErrInvalidArgument, cardID)
	}
	s.logger.Info().Int32("card_id", cardID).Msg("Embedded profile refresh requested")
	s.emit(domain.ListenerSubscriptions)
	return nil
}

// AllCount returns the number of records
func (s *Service) AllCount(ctx context.Context, caller domain.CallerIdentity) (int, error) {
	recs, err := s.store.ListRecords(ctx)
	return len(recs), err
}

// ActiveCount returns the number of active records
func (s *Service) ActiveCount(ctx context.Context, caller domain.CallerIdentity) (int, error) {
	recs, err := s.filter(ctx, isActive)
	return len(recs), err
}

// ActiveCountMax returns how many records can be active at once
func (s *Service) ActiveCountMax(ctx context.Context) (int, error) {
	return s.config.MaxActiveSubscriptions, nil
}

// AddSubscription inserts the record for uniqueID or re-activates it in
// slot. A local SIM takes the slot over from any other local record. It
// returns 0 on success.
func (s *Service) AddSubscription(ctx context.Context, uniqueID, displayName string, slot int32, subType proto.SubscriptionType) (int32, error) {
	if uniqueID == "" {
		return -1, fmt.Errorf("%w: empty unique id", domain.ErrInvalidArgument)
	}
	if subType == proto.SubscriptionType_REMOTE_SIM {
		slot = subid.SlotForRemoteSIM
	} else if !subid.IsValidSlot(slot, s.config.SimCount) {
		return -1, fmt.Errorf("%w: slot %d", domain.ErrInvalidArgument, slot)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.store.ListRecords(ctx)
	if err != nil {
		return -1, err
	}

	var rec *proto.SubscriptionInfo
	for _, r := range recs {
		if r.IccId == uniqueID && r.SubscriptionType == subType {
			rec = r
			continue
		}
		if subType == proto.SubscriptionType_LOCAL_SIM && r.SubscriptionType == subType && r.SimSlotIndex == slot {
			r.SimSlotIndex = subid.InvalidSlot
			if err := s.put(ctx, r); err != nil {
				return -1, err
			}
		}
	}

	if rec == nil {
		id, err := s.nextID(ctx, recs)
		if err != nil {
			return -1, err
		}
		rec = &proto.SubscriptionInfo{
			Id:               id,
			IccId:            uniqueID,
			DisplayName:      displayName,
			NameSource:       proto.NameSource_DEFAULT,
			SubscriptionType: subType,
			IsRemovable:      subType == proto.SubscriptionType_LOCAL_SIM,
			IsMetered:        true,
			ProfileClass:     proto.ProfileClass_UNSET,
			CardId:           slot,
		}
	} else if rec.DisplayName == "" {
		rec.DisplayName = displayName
	}
	rec.SimSlotIndex = slot
	rec.IsEnabled = true

	if err := s.put(ctx, rec); err != nil {
		return -1, err
	}

	s.logger.Info().
		Int32("sub_id", rec.Id).
		Int32("slot_index", slot).
		Int32("type", int32(subType)).
		Msg("Subscription added")
	s.emit(domain.ListenerSubscriptions)
	return 0, nil
}

// RemoveSubscription deletes the record for uniqueID. It returns -1 when no
// record matches.
func (s *Service) RemoveSubscription(ctx context.Context, uniqueID string, subType proto.SubscriptionType) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.store.ListRecords(ctx)
	if err != nil {
		return -1, err
	}
	for _, rec := range recs {
		if rec.IccId != uniqueID || rec.SubscriptionType != subType {
			continue
		}
		if err := s.store.DeleteRecord(ctx, rec.Id); err != nil {
			return -1, err
		}
		s.logger.Info().Int32("sub_id", rec.Id).Msg("Subscription removed")
		s.emit(domain.ListenerSubscriptions)
		if rec.IsOpportunistic {
			s.emit(domain.ListenerOpportunistic)
		}
		return 0, nil
	}
	return -1, nil
}

// ClearSubscriptions deletes every record
func (s *Service) ClearSubscriptions(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.store.ListRecords(ctx)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if err := s.store.DeleteRecord(ctx, rec.Id); err != nil {
			return err
		}
	}

	s.logger.Info().Int("count", len(recs)).Msg("Subscriptions cleared")
	s.emit(domain.ListenerSubscriptions, domain.ListenerOpportunistic)
	return nil
}

// ClearSlot marks the local records in slot as removed from the device
func (s *Service) ClearSlot(ctx context.Context, slot int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.store.ListRecords(ctx)
	if err != nil {
		return err
	}
	changed := false
	for _, rec := range recs {
		if rec.SubscriptionType != proto.SubscriptionType_LOCAL_SIM || rec.SimSlotIndex != slot {
			continue
		}
		rec.SimSlotIndex = subid.InvalidSlot
		if err := s.put(ctx, rec); err != nil {
			return err
		}
		changed = true
	}
	delete(s.simStates, slot)

	if changed {
		s.emit(domain.ListenerSubscriptions)
	}
	return nil
}

// SetIconTint sets the record's icon tint
func (s *Service) SetIconTint(ctx context.Context, id, tint int32) (int32, error) {
	n, err := s.update(ctx, "SetIconTint", id, func(rec *proto.SubscriptionInfo) (bool, error) {
		rec.IconTint = tint
		return true, nil
	})
	s.changed(n)
	return n, err
}

// SetDisplayName sets the record's name. An undefined source leaves the
// recorded source unchanged.
func (s *Service) SetDisplayName(ctx context.Context, id int32, name string, source proto.NameSource) (int32, error) {
	n, err := s.update(ctx, "SetDisplayName", id, func(rec *proto.SubscriptionInfo) (bool, error) {
		rec.DisplayName = name
		if source != proto.NameSource_UNDEFINED {
			rec.NameSource = source
		}
		return true, nil
	})
	s.changed(n)
	return n, err
}

// SetDisplayNumber sets the record's phone number
func (s *Service) SetDisplayNumber(ctx context.Context, id int32, number string) (int32, error) {
	n, err := s.update(ctx, "SetDisplayNumber", id, func(rec *proto.SubscriptionInfo) (bool, error) {
		rec.Number = number
		return true, nil
	})
	s.changed(n)
	return n, err
}

// SetDataRoaming sets the record's roaming mode
func (s *Service) SetDataRoaming(ctx context.Context, id, roaming int32) (int32, error) {
	if roaming != proto.DataRoamingDisable && roaming != proto.DataRoamingEnable {
		return 0, fmt.Errorf("%w: data roaming %d", domain.ErrInvalidArgument, roaming)
	}
	n, err := s.update(ctx, "SetDataRoaming", id, func(rec *proto.SubscriptionInfo) (bool, error) {
		rec.DataRoaming = roaming
		return true, nil
	})
	s.changed(n)
	return n, err
}

// changed emits a change signal when rows were written
func (s *Service) changed(rows int32, kinds ...domain.ListenerKind) {
	if rows <= 0 {
		return
	}
	if len(kinds) == 0 {
		kinds = []domain.ListenerKind{domain.ListenerSubscriptions}
	}
	s.emit(kinds...)
}

// SlotIndex returns the slot of an active local record. subid.Default
// resolves to the system default first.
func (s *Service) SlotIndex(ctx context.Context, id int32) (int32, error) {
	if id == subid.Default {
		var err error
		if id, err = s.DefaultSubscriptionID(ctx, domain.DefaultSystem); err != nil {
			return subid.InvalidSlot, err
		}
	}

	rec, err := s.record(ctx, id)
	if err != nil || rec == nil || !isActive(rec) {
		return subid.InvalidSlot, err
	}
	return rec.SimSlotIndex, nil
}

// SubscriptionIDs returns the active ids in slot, nil when none
func (s *Service) SubscriptionIDs(ctx context.Context, slot int32) ([]int32, error) {
	recs, err := s.filter(ctx, func(rec *proto.SubscriptionInfo) bool {
		return rec.SimSlotIndex == slot && isActive(rec)
	})
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	ids := make([]int32, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.Id)
	}
	return ids, nil
}

// PhoneID returns the phone serving id. Each phone serves the slot with
// the same index.
func (s *Service) PhoneID(ctx context.Context, id int32) (int32, error) {
	slot, err := s.SlotIndex(ctx, id)
	if err != nil || !subid.IsValidPhone(slot, s.config.PhoneCount) {
		return subid.InvalidPhone, err
	}
	return slot, nil
}

// ActiveSubscriptionIDs returns the active ids by slot
func (s *Service) ActiveSubscriptionIDs(ctx context.Context) ([]int32, error) {
	recs, err := s.filter(ctx, isActive)
	if err != nil {
		return nil, err
	}
	sortBySlot(recs)
	ids := make([]int32, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.Id)
	}
	return ids, nil
}

// IsActiveSubscriptionID reports whether id is active
func (s *Service) IsActiveSubscriptionID(ctx context.Context, caller domain.CallerIdentity, id int32) (bool, error) {
	rec, err := s.ActiveSubscription(ctx, caller, id)
	return rec != nil, err
}

// SetSimState records the card state reported for slot
func (s *Service) SetSimState(slot int32, state proto.SimState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.simStates[slot] = state
}

// SimStateForSlot returns the reported card state of slot. Without a
// report a slot holding an active record is LOADED and any other is ABSENT.
func (s *Service) SimStateForSlot(ctx context.Context, slot int32) (proto.SimState, error) {
	if !subid.IsValidSlot(slot, s.config.SimCount) {
		return proto.SimState_UNKNOWN, nil
	}

	s.mu.Lock()
	state, ok := s.simStates[slot]
	s.mu.Unlock()
	if ok {
		return state, nil
	}

	ids, err := s.SubscriptionIDs(ctx, slot)
	if err != nil {
		return proto.SimState_UNKNOWN, err
	}
	if len(ids) > 0 {
		return proto.SimState_LOADED, nil
	}
	return proto.SimState_ABSENT, nil
}
