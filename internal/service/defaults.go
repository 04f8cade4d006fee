package service

import (
	"context"
	"fmt"

	"github.com/nkkko/simsub/internal/domain"
	"github.com/nkkko/simsub/internal/subid"
)

var defaultKinds = []domain.DefaultKind{
	domain.DefaultSystem,
	domain.DefaultVoice,
	domain.DefaultData,
	domain.DefaultSMS,
}

func defaultKey(kind domain.DefaultKind) string {
	return metaDefaultPrefix + kind.String()
}

// DefaultSubscriptionID returns the default for kind, subid.Invalid when
// unset. An unset system default falls back to the voice default and then
// to the data default.
func (s *Service) DefaultSubscriptionID(ctx context.Context, kind domain.DefaultKind) (int32, error) {
	id, err := s.getID(ctx, defaultKey(kind), subid.Invalid)
	if err != nil || kind != domain.DefaultSystem || subid.IsValid(id) {
		return id, err
	}

	for _, fallback := range []domain.DefaultKind{domain.DefaultVoice, domain.DefaultData} {
		id, err = s.getID(ctx, defaultKey(fallback), subid.Invalid)
		if err != nil || subid.IsValid(id) {
			return id, err
		}
	}
	return subid.Invalid, nil
}

// SetDefaultSubscriptionID sets the default for kind. subid.Invalid clears
// it and subid.Default copies the system default. Any other id must be
// active.
func (s *Service) SetDefaultSubscriptionID(ctx context.Context, kind domain.DefaultKind, id int32) error {
	if id == subid.Default && kind != domain.DefaultSystem {
		var err error
		if id, err = s.DefaultSubscriptionID(ctx, domain.DefaultSystem); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id != subid.Invalid {
		rec, err := s.record(ctx, id)
		if err != nil {
			return err
		}
		if rec == nil || !isActive(rec) {
			return fmt.Errorf("%w: subscription %d is not active", domain.ErrInvalidArgument, id)
		}
	}

	if err := s.putID(ctx, defaultKey(kind), id); err != nil {
		return err
	}
	s.logger.Info().Str("kind", kind.String()).Int32("sub_id", id).Msg("Default subscription set")
	return nil
}

// ClearDefaultsForInactive resets every default and the preferred data
// subscription that points at an inactive record
func (s *Service) ClearDefaultsForInactive(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(defaultKinds)+1)
	for _, kind := range defaultKinds {
		keys = append(keys, defaultKey(kind))
	}
	keys = append(keys, metaPreferredData)

	for _, key := range keys {
		id, err := s.getID(ctx, key, subid.Invalid)
		if err != nil {
			return err
		}
		if !subid.IsUsable(id) {
			continue
		}

		rec, err := s.record(ctx, id)
		if err != nil {
			return err
		}
		if rec != nil && isActive(rec) {
			continue
		}

		reset := subid.Invalid
		if key == metaPreferredData {
			reset = subid.Default
		}
		if err := s.putID(ctx, key, reset); err != nil {
			return err
		}
		s.logger.Info().Str("key", key).Int32("sub_id", id).Msg("Cleared default for inactive subscription")
	}
	return nil
}

// PreferredDataSubscriptionID returns the subscription preferred for data,
// subid.Default when the system chooses
func (s *Service) PreferredDataSubscriptionID(ctx context.Context) (int32, error) {
	return s.getID(ctx, metaPreferredData, subid.Default)
}

// SetPreferredDataSubscriptionID prefers id for data. subid.Default hands
// the choice back to the system. It returns 0 when id is not active.
func (s *Service) SetPreferredDataSubscriptionID(ctx context.Context, id int32) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != subid.Default {
		rec, err := s.record(ctx, id)
		if err != nil {
			return 0, err
		}
		if rec == nil || !isActive(rec) {
			return 0, nil
		}
	}

	if err := s.putID(ctx, metaPreferredData, id); err != nil {
		return 0, err
	}
	return 1, nil
}
