// Package defaults resolves the default voice, data and SMS subscriptions.
//
// The remote service stores the defaults and is authoritative on what it
// accepts. A stored default may be invalid, the "let the system choose"
// sentinel, or a stale id whose subscription is no longer active.
package defaults

import (
	"context"
	"fmt"

	"github.com/nkkko/simsub/internal/domain"
	"github.com/nkkko/simsub/internal/subid"
)

// Resolver reads and writes default subscriptions
type Resolver struct {
	service domain.SubscriptionService
}

// NewResolver creates a resolver over service
func NewResolver(service domain.SubscriptionService) *Resolver {
	return &Resolver{service: service}
}

// Get returns the stored default for kind. A failed read returns
// subid.Invalid together with the error.
func (r *Resolver) Get(ctx context.Context, kind domain.DefaultKind) (int32, error) {
	id, err := r.service.DefaultSubscriptionID(ctx, kind)
	if err != nil {
		return subid.Invalid, fmt.Errorf("read default %s subscription: %w", kind, err)
	}
	return id, nil
}

// Set forwards id as the default for kind without checking it
func (r *Resolver) Set(ctx context.Context, kind domain.DefaultKind, id int32) error {
	if err := r.service.SetDefaultSubscriptionID(ctx, kind, id); err != nil {
		return fmt.Errorf("set default %s subscription: %w", kind, err)
	}
	return nil
}

// SetUsable is Set for callers that must name a real subscription. Ids
// outside the usable range are refused before reaching the remote service.
func (r *Resolver) SetUsable(ctx context.Context, kind domain.DefaultKind, id int32) error {
	if !subid.IsUsable(id) {
		return fmt.Errorf("set default %s subscription to %d: %w", kind, id, domain.ErrUnusableSubscriptionID)
	}
	return r.Set(ctx, kind, id)
}

// ClearDefaultsForInactive asks the remote service to reset every default
// that points at an inactive subscription
func (r *Resolver) ClearDefaultsForInactive(ctx context.Context) error {
	if err := r.service.ClearDefaultsForInactive(ctx); err != nil {
		return fmt.Errorf("clear defaults for inactive subscriptions: %w", err)
	}
	return nil
}

// AllDefaultsSelected reports whether the data, SMS and voice defaults all
// name real subscriptions. The three reads are not atomic, so a true result
// only holds for the moment it was computed. The first failed read stops
// the check and is returned with false.
func (r *Resolver) AllDefaultsSelected(ctx context.Context) (bool, error) {
	for _, kind := range []domain.DefaultKind{domain.DefaultData, domain.DefaultSMS, domain.DefaultVoice} {
		id, err := r.Get(ctx, kind)
		if err != nil {
			return false, err
		}
		if !subid.IsUsable(id) {
			return false, nil
		}
	}
	return true, nil
}
