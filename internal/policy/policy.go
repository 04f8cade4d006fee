// Package policy is a reference implementation of the remote policy
// service: subscription billing plans and temporary network overrides.
package policy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nkkko/simsub/internal/domain"
	"github.com/nkkko/simsub/pkg/proto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Ensure Service implements domain.PolicyService
var _ domain.PolicyService = (*Service)(nil)

// Config contains policy service configuration
type Config struct {
	// Callers allowed to read and change any subscription's plans
	PrivilegedCallers []string

	// Longest accepted override timeout. Zero means no limit.
	MaxOverrideTimeout time.Duration
}

// DefaultConfig returns a default policy configuration
func DefaultConfig() Config {
	return Config{
		PrivilegedCallers:  []string{"system"},
		MaxOverrideTimeout: 24 * time.Hour,
	}
}

// SubscriptionChecker tells the policy service which subscriptions exist
type SubscriptionChecker interface {
	IsActiveSubscriptionID(ctx context.Context, caller domain.CallerIdentity, id int32) (bool, error)
}

// planSet is the plans installed for one subscription
type planSet struct {
	owner domain.CallerIdentity
	plans []*proto.SubscriptionPlan
}

// override is the active override bits of one subscription and their timers
type override struct {
	mask   proto.OverrideKind
	timers map[proto.OverrideKind]*time.Timer
}

// Service keeps plans and overrides in memory
type Service struct {
	config     Config
	subs       SubscriptionChecker
	privileged map[domain.CallerIdentity]struct{}

	mu        sync.Mutex
	plans     map[int32]*planSet
	overrides map[int32]*override

	logger zerolog.Logger
}

// NewService creates a policy service. subs may be nil, in which case every
// non-negative id is accepted.
func NewService(config Config, subs SubscriptionChecker) *Service {
	privileged := make(map[domain.CallerIdentity]struct{}, len(config.PrivilegedCallers))
	for _, caller := range config.PrivilegedCallers {
		privileged[domain.CallerIdentity(caller)] = struct{}{}
	}

	return &Service{
		config:     config,
		subs:       subs,
		privileged: privileged,
		plans:      make(map[int32]*planSet),
		overrides:  make(map[int32]*override),
		logger:     log.With().Str("component", "policy").Logger(),
	}
}

func (s *Service) isPrivileged(caller domain.CallerIdentity) bool {
	_, ok := s.privileged[caller]
	return ok
}

// checkSubscription fails for ids the subscription service does not know
func (s *Service) checkSubscription(ctx context.Context, caller domain.CallerIdentity, id int32) error {
	if id < 0 {
		return fmt.Errorf("%w: subscription %d", domain.ErrInvalidArgument, id)
	}
	if s.subs == nil {
		return nil
	}
	active, err := s.subs.IsActiveSubscriptionID(ctx, caller, id)
	if err != nil {
		return err
	}
	if !active {
		return fmt.Errorf("%w: subscription %d is not active", domain.ErrInvalidArgument, id)
	}
	return nil
}

// authorize allows privileged callers and the current plans owner. A
// subscription without plans may be claimed by anyone.
func (s *Service) authorize(caller domain.CallerIdentity, id int32) error {
	if s.isPrivileged(caller) {
		return nil
	}
	set, ok := s.plans[id]
	if !ok || set.owner == "" || set.owner == caller {
		return nil
	}
	return fmt.Errorf("%w: plans of subscription %d belong to %s", domain.ErrPermissionDenied, id, set.owner)
}

// SubscriptionPlans returns a copy of the plans of id
func (s *Service) SubscriptionPlans(ctx context.Context, caller domain.CallerIdentity, id int32) ([]*proto.SubscriptionPlan, error) {
	if err := s.checkSubscription(ctx, caller, id); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.authorize(caller, id); err != nil {
		return nil, err
	}
	set, ok := s.plans[id]
	if !ok {
		return []*proto.SubscriptionPlan{}, nil
	}
	out := make([]*proto.SubscriptionPlan, 0, len(set.plans))
	for _, plan := range set.plans {
		p := *plan
		out = append(out, &p)
	}
	return out, nil
}

// SetSubscriptionPlans replaces the plans of id and makes caller their
// owner. An empty list removes the plans and the owner.
func (s *Service) SetSubscriptionPlans(ctx context.Context, caller domain.CallerIdentity, id int32, plans []*proto.SubscriptionPlan) error {
	if err := s.checkSubscription(ctx, caller, id); err != nil {
		return err
	}
	for _, plan := range plans {
		if plan == nil {
			return fmt.Errorf("%w: nil plan", domain.ErrInvalidArgument)
		}
		if plan.CycleStart != nil && plan.CycleEnd != nil && plan.CycleEnd.AsTime().Before(plan.CycleStart.AsTime()) {
			return fmt.Errorf("%w: plan %q ends before it starts", domain.ErrInvalidArgument, plan.Title)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.authorize(caller, id); err != nil {
		return err
	}
	if len(plans) == 0 {
		delete(s.plans, id)
		s.logger.Info().Int32("sub_id", id).Str("caller", string(caller)).Msg("Subscription plans cleared")
		return nil
	}

	stored := make([]*proto.SubscriptionPlan, 0, len(plans))
	for _, plan := range plans {
		p := *plan
		stored = append(stored, &p)
	}
	s.plans[id] = &planSet{owner: caller, plans: stored}

	s.logger.Info().
		Int32("sub_id", id).
		Str("caller", string(caller)).
		Int("plans", len(stored)).
		Msg("Subscription plans set")
	return nil
}

// SubscriptionPlansOwner returns the package owning the plans of id, or ""
func (s *Service) SubscriptionPlansOwner(ctx context.Context, id int32) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.plans[id]
	if !ok {
		return "", nil
	}
	return string(set.owner), nil
}

// SetSubscriptionOverride sets the bits of mask that are set in value and
// clears the others. Set bits expire after timeout unless it is zero.
func (s *Service) SetSubscriptionOverride(ctx context.Context, caller domain.CallerIdentity, id int32, mask, value proto.OverrideKind, timeout time.Duration) error {
	if err := s.checkSubscription(ctx, caller, id); err != nil {
		return err
	}
	if mask == 0 {
		return fmt.Errorf("%w: empty override mask", domain.ErrInvalidArgument)
	}
	if timeout < 0 || (s.config.MaxOverrideTimeout > 0 && timeout > s.config.MaxOverrideTimeout) {
		return fmt.Errorf("%w: override timeout %s", domain.ErrInvalidArgument, timeout)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.authorize(caller, id); err != nil {
		return err
	}
	if !s.isPrivileged(caller) {
		if set, ok := s.plans[id]; !ok || set.owner != caller {
			return fmt.Errorf("%w: %s does not own the plans of subscription %d", domain.ErrPermissionDenied, caller, id)
		}
	}

	o, ok := s.overrides[id]
	if !ok {
		o = &override{timers: make(map[proto.OverrideKind]*time.Timer)}
		s.overrides[id] = o
	}

	for _, bit := range []proto.OverrideKind{proto.OverrideKind_UNMETERED, proto.OverrideKind_CONGESTED} {
		if mask&bit == 0 {
			continue
		}
		if t, ok := o.timers[bit]; ok {
			t.Stop()
			delete(o.timers, bit)
		}
		if value&bit == 0 {
			o.mask &^= bit
			continue
		}
		o.mask |= bit
		if timeout > 0 {
			o.timers[bit] = s.expireAfter(id, bit, timeout)
		}
	}

	s.logger.Debug().
		Int32("sub_id", id).
		Int32("mask", int32(mask)).
		Int32("value", int32(value)).
		Dur("timeout", timeout).
		Msg("Subscription override updated")
	return nil
}

// expireAfter clears bit on id once timeout elapses
func (s *Service) expireAfter(id int32, bit proto.OverrideKind, timeout time.Duration) *time.Timer {
	var t *time.Timer
	t = time.AfterFunc(timeout, func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		o, ok := s.overrides[id]
		if !ok || o.timers[bit] != t {
			return
		}
		delete(o.timers, bit)
		o.mask &^= bit
		s.logger.Debug().Int32("sub_id", id).Int32("bit", int32(bit)).Msg("Subscription override expired")
	})
	return t
}

// Overrides returns the override bits currently set on id
func (s *Service) Overrides(id int32) proto.OverrideKind {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o, ok := s.overrides[id]; ok {
		return o.mask
	}
	return 0
}

// Shutdown stops every pending override timer
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range s.overrides {
		for bit, t := range o.timers {
			t.Stop()
			delete(o.timers, bit)
		}
	}
	return nil
}
