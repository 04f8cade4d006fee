package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nkkko/simsub/internal/domain"
	"github.com/nkkko/simsub/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Ensure Registry implements domain.NotificationChannel
var _ domain.NotificationChannel = (*Registry)(nil)

// listenerRecord is one remote registration
type listenerRecord struct {
	Caller       domain.CallerIdentity
	Token        string
	Kind         domain.ListenerKind
	Callback     domain.SignalFunc
	seq          uint64
	RegisteredAt time.Time
}

// Config contains registry configuration
type Config struct {
	// Maximum registrations a single caller may hold
	MaxListenersPerCaller int
}

// DefaultConfig returns a default registry configuration
func DefaultConfig() Config {
	return Config{
		MaxListenersPerCaller: 50,
	}
}

// Registry is the in-process notification channel. It keeps one record per
// listener token and turns every change signal into one callback per
// matching record.
type Registry struct {
	config    Config
	listeners map[string]*listenerRecord
	kindSubs  map[domain.ListenerKind]map[string]struct{} // kind -> set of tokens
	perCaller map[domain.CallerIdentity]int
	seq       uint64
	mu        sync.RWMutex

	// notifyMu serializes fan-out so every record sees signals in emission order
	notifyMu sync.Mutex

	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewRegistry creates a new registry
func NewRegistry(config ...Config) *Registry {
	var cfg Config
	if len(config) > 0 {
		cfg = config[0]
	} else {
		cfg = DefaultConfig()
	}
	if cfg.MaxListenersPerCaller <= 0 {
		cfg.MaxListenersPerCaller = DefaultConfig().MaxListenersPerCaller
	}

	logger := log.With().Str("component", "registry").Logger()

	return &Registry{
		config:    cfg,
		listeners: make(map[string]*listenerRecord),
		kindSubs:  make(map[domain.ListenerKind]map[string]struct{}),
		perCaller: make(map[domain.CallerIdentity]int),
		logger:    logger,
		metrics:   metrics.GetMetrics(),
	}
}

// Start routes every signal of source until ctx ends or source fails
func (r *Registry) Start(ctx context.Context, source domain.SignalSource) error {
	r.logger.Info().Msg("Starting subscription registry")

	for {
		kind, err := source.NextSignal(ctx)
		if err != nil {
			if ctx.Err() != nil {
				r.logger.Info().Msg("Context canceled, stopping registry")
				return ctx.Err()
			}
			return fmt.Errorf("read change signal: %w", err)
		}
		r.Notify(kind)
	}
}

// AddListener registers token for signals of kind. Registering an existing
// token replaces its record.
func (r *Registry) AddListener(ctx context.Context, caller domain.CallerIdentity, token string, kind domain.ListenerKind, callback domain.SignalFunc) error {
	if token == "" || callback == nil {
		return fmt.Errorf("%w: listener needs a token and a callback", domain.ErrInvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, replacing := r.listeners[token]
	held := r.perCaller[caller]
	if replacing && existing.Caller == caller {
		held--
	}
	if held >= r.config.MaxListenersPerCaller {
		return fmt.Errorf("%w: caller %s already holds %d listeners",
			domain.ErrInvalidArgument, caller, held)
	}

	if replacing {
		r.removeLocked(existing)
	}

	r.seq++
	rec := &listenerRecord{
		Caller:       caller,
		Token:        token,
		Kind:         kind,
		Callback:     callback,
		seq:          r.seq,
		RegisteredAt: time.Now(),
	}
	r.listeners[token] = rec
	if _, ok := r.kindSubs[kind]; !ok {
		r.kindSubs[kind] = make(map[string]struct{})
	}
	r.kindSubs[kind][token] = struct{}{}
	r.perCaller[caller]++
	r.metrics.RegistryListeners.WithLabelValues(kind.String()).Inc()

	r.logger.Debug().
		Str("caller", string(caller)).
		Str("token", token).
		Str("kind", kind.String()).
		Msg("Listener added")

	return nil
}

// RemoveListener drops token. Unknown tokens and tokens held by another
// caller are ignored.
func (r *Registry) RemoveListener(ctx context.Context, caller domain.CallerIdentity, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.listeners[token]
	if !ok {
		return nil
	}
	if rec.Caller != caller {
		r.logger.Warn().
			Str("caller", string(caller)).
			Str("owner", string(rec.Caller)).
			Str("token", token).
			Msg("Ignoring remove for a listener owned by another caller")
		return nil
	}

	r.removeLocked(rec)
	r.logger.Debug().Str("caller", string(caller)).Str("token", token).Msg("Listener removed")
	return nil
}

// removeLocked drops rec; r.mu must be held
func (r *Registry) removeLocked(rec *listenerRecord) {
	delete(r.listeners, rec.Token)
	if subs, ok := r.kindSubs[rec.Kind]; ok {
		delete(subs, rec.Token)
		if len(subs) == 0 {
			delete(r.kindSubs, rec.Kind)
		}
	}
	r.perCaller[rec.Caller]--
	if r.perCaller[rec.Caller] <= 0 {
		delete(r.perCaller, rec.Caller)
	}
	r.metrics.RegistryListeners.WithLabelValues(rec.Kind.String()).Dec()
}

// NotifySubscriptionsChanged signals every listener for all subscription changes
func (r *Registry) NotifySubscriptionsChanged() {
	r.Notify(domain.ListenerSubscriptions)
}

// NotifyOpportunisticSubscriptionsChanged signals every opportunistic listener
func (r *Registry) NotifyOpportunisticSubscriptionsChanged() {
	r.Notify(domain.ListenerOpportunistic)
}

// Notify calls back every record of kind in registration order. A record
// whose callback fails is removed; the others are unaffected.
func (r *Registry) Notify(kind domain.ListenerKind) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.metrics.RegistrySignalsTotal.WithLabelValues(kind.String()).Inc()

	// Snapshot so callbacks run without the lock held
	r.mu.RLock()
	tokens, ok := r.kindSubs[kind]
	if !ok {
		r.mu.RUnlock()
		return
	}
	records := make([]*listenerRecord, 0, len(tokens))
	for token := range tokens {
		records = append(records, r.listeners[token])
	}
	r.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool { return records[i].seq < records[j].seq })

	for _, rec := range records {
		if err := rec.Callback(); err != nil {
			r.evict(rec, err)
		}
	}
}

// evict removes rec after a failed delivery unless it was already replaced
func (r *Registry) evict(rec *listenerRecord, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.listeners[rec.Token]; !ok || current != rec {
		return
	}
	r.removeLocked(rec)
	r.metrics.RegistryEvictionsTotal.Inc()

	r.logger.Warn().
		Err(cause).
		Str("caller", string(rec.Caller)).
		Str("token", rec.Token).
		Msg("Removed listener after failed delivery")
}

// Len returns the number of registrations of kind
func (r *Registry) Len(kind domain.ListenerKind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.kindSubs[kind])
}

// Shutdown drops every registration
func (r *Registry) Shutdown(ctx context.Context) error {
	r.logger.Info().Msg("Shutting down subscription registry")

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.listeners {
		r.removeLocked(rec)
	}

	return nil
}
