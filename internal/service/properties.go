package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/nkkko/simsub/internal/domain"
	"github.com/nkkko/simsub/internal/subid"
	"github.com/nkkko/simsub/pkg/proto"
)

// Property keys backed by record fields. Every other key lives in the
// record's extras.
const (
	keyDisplayName     = "display_name"
	keyNumber          = "number"
	keyIconTint        = "color"
	keyDataRoaming     = "data_roaming"
	keyIsOpportunistic = "is_opportunistic"
	keyIsMetered       = "is_metered"
	keyGroupUUID       = "group_uuid"
)

func boolString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// readProperty returns the value of key on rec
func readProperty(rec *proto.SubscriptionInfo, key string) (string, bool) {
	switch key {
	case keyDisplayName:
		return rec.DisplayName, true
	case keyNumber:
		return rec.Number, rec.Number != ""
	case keyIconTint:
		return strconv.Itoa(int(rec.IconTint)), true
	case keyDataRoaming:
		return strconv.Itoa(int(rec.DataRoaming)), true
	case keyIsOpportunistic:
		return boolString(rec.IsOpportunistic), true
	case keyIsMetered:
		return boolString(rec.IsMetered), true
	case keyGroupUUID:
		return rec.GroupUuid, rec.GroupUuid != ""
	}
	value, ok := rec.Extras[key]
	return value, ok
}

// writeProperty stores value under key on rec
func writeProperty(rec *proto.SubscriptionInfo, key, value string) error {
	parseInt := func() (int32, error) {
		n, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("%w: %s=%q", domain.ErrInvalidArgument, key, value)
		}
		return int32(n), nil
	}

	switch key {
	case keyDisplayName:
		rec.DisplayName = value
	case keyNumber:
		rec.Number = value
	case keyIconTint:
		n, err := parseInt()
		if err != nil {
			return err
		}
		rec.IconTint = n
	case keyDataRoaming:
		n, err := parseInt()
		if err != nil {
			return err
		}
		rec.DataRoaming = n
	case keyIsOpportunistic, keyIsMetered, keyGroupUUID:
		return fmt.Errorf("%w: %s is read-only", domain.ErrInvalidArgument, key)
	default:
		if rec.Extras == nil {
			rec.Extras = make(map[string]string)
		}
		rec.Extras[key] = value
	}
	return nil
}

// SetProperty stores value under key on the record for id
func (s *Service) SetProperty(ctx context.Context, id int32, key, value string) error {
	if key == "" {
		return fmt.Errorf("%w: empty property key", domain.ErrInvalidArgument)
	}

	n, err := s.update(ctx, "SetProperty", id, func(rec *proto.SubscriptionInfo) (bool, error) {
		if err := writeProperty(rec, key, value); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", domain.ErrNotFound, id)
	}
	s.changed(n)
	return nil
}

// Property returns the value under key. found is false for unknown records
// and unset keys.
func (s *Service) Property(ctx context.Context, caller domain.CallerIdentity, id int32, key string) (string, bool, error) {
	rec, err := s.record(ctx, id)
	if err != nil || rec == nil {
		return "", false, err
	}
	value, found := readProperty(rec, key)
	return value, found, nil
}

// SetOpportunistic flags id as opportunistic. caller must be privileged or
// hold the record's access rules.
func (s *Service) SetOpportunistic(ctx context.Context, caller domain.CallerIdentity, id int32, opportunistic bool) (int32, error) {
	n, err := s.update(ctx, "SetOpportunistic", id, func(rec *proto.SubscriptionInfo) (bool, error) {
		if err := s.authorize(caller, rec); err != nil {
			return false, err
		}
		rec.IsOpportunistic = opportunistic
		return true, nil
	})
	s.changed(n, domain.ListenerSubscriptions, domain.ListenerOpportunistic)
	return n, err
}

// SetMetered flags id as metered. caller must be privileged or hold the
// record's access rules.
func (s *Service) SetMetered(ctx context.Context, caller domain.CallerIdentity, id int32, metered bool) (int32, error) {
	n, err := s.update(ctx, "SetMetered", id, func(rec *proto.SubscriptionInfo) (bool, error) {
		if err := s.authorize(caller, rec); err != nil {
			return false, err
		}
		rec.IsMetered = metered
		return true, nil
	})
	s.changed(n)
	return n, err
}

// SetEnabled enables or disables id. It reports whether the record exists.
func (s *Service) SetEnabled(ctx context.Context, id int32, enable bool) (bool, error) {
	n, err := s.update(ctx, "SetEnabled", id, func(rec *proto.SubscriptionInfo) (bool, error) {
		rec.IsEnabled = enable
		return true, nil
	})
	s.changed(n)
	return n > 0, err
}

// IsEnabled reports whether id exists and is enabled
func (s *Service) IsEnabled(ctx context.Context, id int32) (bool, error) {
	rec, err := s.record(ctx, id)
	if err != nil || rec == nil {
		return false, err
	}
	return rec.IsEnabled, nil
}

// EnabledSubscriptionID returns the enabled local record in slot
func (s *Service) EnabledSubscriptionID(ctx context.Context, slot int32) (int32, error) {
	ids, err := s.SubscriptionIDs(ctx, slot)
	if err != nil || len(ids) == 0 {
		return subid.Invalid, err
	}
	return ids[0], nil
}
