// Package service is a reference implementation of the remote subscription
// service. It keeps records in a domain.RecordStore and reports changes on
// a signal stream consumed by the notification registry.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/nkkko/simsub/internal/domain"
	"github.com/nkkko/simsub/internal/metrics"
	"github.com/nkkko/simsub/internal/subid"
	"github.com/nkkko/simsub/pkg/proto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Ensure Service implements domain.SubscriptionService and feeds the registry
var (
	_ domain.SubscriptionService = (*Service)(nil)
	_ domain.SignalSource        = (*Service)(nil)
)

// Meta keys
const (
	metaNextID        = "next_id"
	metaPreferredData = "preferred_data"
	metaDefaultPrefix = "default:"
)

// Config contains reference service configuration
type Config struct {
	// Callers allowed to group subscriptions and change their flags
	PrivilegedCallers []string

	// Number of subscriptions that can be active at once
	MaxActiveSubscriptions int

	// Device capacity
	SimCount   int
	PhoneCount int
}

// DefaultConfig returns a default service configuration
func DefaultConfig() Config {
	return Config{
		PrivilegedCallers:      []string{"system"},
		MaxActiveSubscriptions: 2,
		SimCount:               2,
		PhoneCount:             2,
	}
}

// Service owns subscription records, defaults and groups
type Service struct {
	config     Config
	store      domain.RecordStore
	privileged map[domain.CallerIdentity]struct{}

	// mu serializes read-modify-write cycles on the store
	mu        sync.Mutex
	simStates map[int32]proto.SimState

	signals *signalQueue

	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewService creates a service over store
func NewService(config Config, store domain.RecordStore) *Service {
	if config.MaxActiveSubscriptions <= 0 {
		config.MaxActiveSubscriptions = config.SimCount
	}

	privileged := make(map[domain.CallerIdentity]struct{}, len(config.PrivilegedCallers))
	for _, caller := range config.PrivilegedCallers {
		privileged[domain.CallerIdentity(caller)] = struct{}{}
	}

	return &Service{
		config:     config,
		store:      store,
		privileged: privileged,
		simStates:  make(map[int32]proto.SimState),
		signals:    newSignalQueue(),
		logger:     log.With().Str("component", "subscription-service").Logger(),
		metrics:    metrics.GetMetrics(),
	}
}

// NextSignal blocks until a change is recorded and returns its kind.
// Signals are returned once each, in emission order.
func (s *Service) NextSignal(ctx context.Context) (domain.ListenerKind, error) {
	return s.signals.next(ctx)
}

// SimCount returns the number of SIM slots
func (s *Service) SimCount() int { return s.config.SimCount }

// PhoneCount returns the number of phones
func (s *Service) PhoneCount() int { return s.config.PhoneCount }

// DefaultCardID returns the card id of the built-in eUICC
func (s *Service) DefaultCardID() int32 { return 0 }

// emit queues change signals for the registry
func (s *Service) emit(kinds ...domain.ListenerKind) {
	for _, kind := range kinds {
		if n := s.signals.push(kind); n > 1 {
			s.logger.Debug().Str("kind", kind.String()).Int("pending", n).Msg("Signal queued behind pending signals")
		}
	}
}

// authorize fails unless caller is privileged or named in every record's
// access rules
func (s *Service) authorize(caller domain.CallerIdentity, recs ...*proto.SubscriptionInfo) error {
	if _, ok := s.privileged[caller]; ok {
		return nil
	}
	for _, rec := range recs {
		if !hasAccess(rec, caller) {
			return fmt.Errorf("%w: %s may not modify subscription %d", domain.ErrPermissionDenied, caller, rec.Id)
		}
	}
	return nil
}

func hasAccess(rec *proto.SubscriptionInfo, caller domain.CallerIdentity) bool {
	for _, rule := range rec.AccessRules {
		if rule == string(caller) {
			return true
		}
	}
	return false
}

// isActive reports whether rec is in use: enabled and either inserted in a
// slot or reached through a remote device
func isActive(rec *proto.SubscriptionInfo) bool {
	if !rec.IsEnabled {
		return false
	}
	return rec.SimSlotIndex >= 0 || rec.SubscriptionType == proto.SubscriptionType_REMOTE_SIM
}

// sortBySlot orders records by slot and then id
func sortBySlot(recs []*proto.SubscriptionInfo) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].SimSlotIndex != recs[j].SimSlotIndex {
			return recs[i].SimSlotIndex < recs[j].SimSlotIndex
		}
		return recs[i].Id < recs[j].Id
	})
}

// record returns the record for id, nil when it does not exist
func (s *Service) record(ctx context.Context, id int32) (*proto.SubscriptionInfo, error) {
	if id < 0 {
		return nil, nil
	}
	rec, err := s.store.GetRecord(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return rec, err
}

// filter returns the records matching keep, never nil
func (s *Service) filter(ctx context.Context, keep func(*proto.SubscriptionInfo) bool) ([]*proto.SubscriptionInfo, error) {
	recs, err := s.store.ListRecords(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*proto.SubscriptionInfo, 0, len(recs))
	for _, rec := range recs {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// update applies fn to the record for id and stores it when fn reports a
// change. It returns the number of rows written.
func (s *Service) update(ctx context.Context, op string, id int32, fn func(rec *proto.SubscriptionInfo) (bool, error)) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.record(ctx, id)
	if err != nil {
		return 0, err
	}
	if rec == nil {
		s.logger.Debug().Str("operation", op).Int32("sub_id", id).Msg("No such subscription")
		return 0, nil
	}

	changed, err := fn(rec)
	if err != nil || !changed {
		return 0, err
	}
	if err := s.put(ctx, rec); err != nil {
		return 0, err
	}
	return 1, nil
}

func (s *Service) put(ctx context.Context, rec *proto.SubscriptionInfo) error {
	rec.UpdatedAt = timestamppb.Now()
	return s.store.PutRecord(ctx, rec)
}

// nextID allocates a record id above both the stored counter and every id
// in recs, so records written before the counter existed are never
// overwritten. s.mu must be held.
func (s *Service) nextID(ctx context.Context, recs []*proto.SubscriptionInfo) (int32, error) {
	next := int32(1)
	value, err := s.store.GetMeta(ctx, metaNextID)
	switch {
	case err == nil:
		n, perr := strconv.ParseInt(string(value), 10, 32)
		if perr != nil {
			return 0, fmt.Errorf("corrupt id counter: %w", perr)
		}
		next = int32(n)
	case !errors.Is(err, domain.ErrNotFound):
		return 0, err
	}

	for _, rec := range recs {
		if rec.Id >= next {
			next = rec.Id + 1
		}
	}

	if !subid.IsUsable(next) {
		return 0, errors.New("subscription ids exhausted")
	}
	if err := s.store.PutMeta(ctx, metaNextID, []byte(strconv.Itoa(int(next)+1))); err != nil {
		return 0, err
	}
	return next, nil
}

// getID reads an id stored under key, fallback when unset
func (s *Service) getID(ctx context.Context, key string, fallback int32) (int32, error) {
	value, err := s.store.GetMeta(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return fallback, nil
	}
	if err != nil {
		return fallback, err
	}
	n, err := strconv.ParseInt(string(value), 10, 32)
	if err != nil {
		return fallback, fmt.Errorf("corrupt value for %s: %w", key, err)
	}
	return int32(n), nil
}

func (s *Service) putID(ctx context.Context, key string, id int32) error {
	return s.store.PutMeta(ctx, key, []byte(strconv.Itoa(int(id))))
}
