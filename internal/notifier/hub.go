package notifier

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/nkkko/simsub/internal/domain"
	"github.com/nkkko/simsub/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// registration ties a local listener to the token the remote side knows it by
type registration struct {
	listener *Listener
	token    string

	// Signals arriving before Register finishes are counted in held and
	// posted once the initial delivery is queued
	mu    sync.Mutex
	ready bool
	held  int
}

// hold counts a signal if reg is still being registered
func (r *registration) hold() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ready {
		return false
	}
	r.held++
	return true
}

// open marks reg ready and returns the signals held so far
func (r *registration) open() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ready = true
	held := r.held
	r.held = 0
	return held
}

// Hub multiplexes local listeners over one remote notification channel.
// Each listener is registered remotely under its own token; signals for a
// token are re-posted to that listener's executor.
type Hub struct {
	caller  domain.CallerIdentity
	channel domain.NotificationChannel

	mu        sync.RWMutex
	listeners map[*Listener]*registration
	tokens    map[string]*registration

	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewHub creates a hub that registers listeners on channel as caller
func NewHub(caller domain.CallerIdentity, channel domain.NotificationChannel) *Hub {
	return &Hub{
		caller:    caller,
		channel:   channel,
		listeners: make(map[*Listener]*registration),
		tokens:    make(map[string]*registration),
		logger:    log.With().Str("component", "notifier").Str("caller", string(caller)).Logger(),
		metrics:   metrics.GetMetrics(),
	}
}

// Register adds l and forwards the registration to the remote channel.
// Listeners for all subscription changes get one delivery right away so
// they can pull the current state; it is queued ahead of any signal the
// channel sends while the registration is in flight. A remote failure is
// logged and leaves l unregistered without a delivery.
func (h *Hub) Register(ctx context.Context, l *Listener) {
	if l == nil || l.executor == nil || l.onChanged == nil {
		h.logger.Warn().Msg("Ignoring incomplete listener")
		return
	}

	h.mu.Lock()
	if _, exists := h.listeners[l]; exists {
		h.mu.Unlock()
		h.logger.Debug().Msg("Listener already registered")
		return
	}
	reg := &registration{listener: l, token: generateID()}
	h.listeners[l] = reg
	h.tokens[reg.token] = reg
	h.mu.Unlock()
	h.metrics.ListenersActive.WithLabelValues(l.kind.String()).Inc()

	token := reg.token
	err := h.channel.AddListener(ctx, h.caller, token, l.kind, func() error {
		return h.dispatch(token)
	})
	if err != nil {
		if h.forget(reg) {
			h.metrics.ListenersActive.WithLabelValues(l.kind.String()).Dec()
		}
		h.logger.Error().Err(err).Str("token", token).Msg("Failed to register listener remotely")
		return
	}

	h.logger.Debug().
		Str("token", token).
		Str("kind", l.kind.String()).
		Msg("Listener registered")

	pending := reg.open()
	if l.kind == domain.ListenerSubscriptions {
		pending++
	}
	for i := 0; i < pending; i++ {
		if err := h.post(reg); err != nil {
			h.logger.Warn().Err(err).Str("token", token).Msg("Initial delivery failed")
			if err := h.channel.RemoveListener(ctx, h.caller, token); err != nil {
				h.logger.Error().Err(err).Str("token", token).Msg("Failed to unregister listener remotely")
			}
			return
		}
	}
}

// Unregister removes l locally and remotely. Unknown listeners are ignored.
// A signal already queued on l's executor may still run once.
func (h *Hub) Unregister(ctx context.Context, l *Listener) {
	h.mu.RLock()
	reg, ok := h.listeners[l]
	h.mu.RUnlock()
	if !ok {
		return
	}

	if !h.forget(reg) {
		return
	}
	h.metrics.ListenersActive.WithLabelValues(l.kind.String()).Dec()

	if err := h.channel.RemoveListener(ctx, h.caller, reg.token); err != nil {
		h.logger.Error().Err(err).Str("token", reg.token).Msg("Failed to unregister listener remotely")
		return
	}

	h.logger.Debug().Str("token", reg.token).Msg("Listener unregistered")
}

// Len returns the number of registered listeners
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// dispatch posts one change signal for token. It never runs listener code
// itself. When the listener's executor refuses the task the registration is
// dropped here and the returned error tells the remote side to drop it too.
func (h *Hub) dispatch(token string) error {
	h.mu.RLock()
	reg, ok := h.tokens[token]
	h.mu.RUnlock()
	if !ok {
		// Raced with Unregister
		return nil
	}
	if reg.hold() {
		return nil
	}
	return h.post(reg)
}

// post queues one callback of reg's listener on its executor
func (h *Hub) post(reg *registration) error {
	token := reg.token
	l := reg.listener
	if err := l.executor.Execute(l.onChanged); err != nil {
		if h.forget(reg) {
			h.metrics.ListenersActive.WithLabelValues(l.kind.String()).Dec()
			h.metrics.ListenersDroppedTotal.WithLabelValues(dropReason(err)).Inc()
			h.logger.Warn().Err(err).Str("token", token).Msg("Dropping listener after failed delivery")
		}
		return err
	}

	h.metrics.ListenerDeliveriesTotal.WithLabelValues(l.kind.String()).Inc()
	return nil
}

// forget removes reg if it is still current and reports whether it did
func (h *Hub) forget(reg *registration) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.tokens[reg.token]; !ok || current != reg {
		return false
	}
	delete(h.tokens, reg.token)
	delete(h.listeners, reg.listener)
	return true
}

func dropReason(err error) string {
	if errors.Is(err, domain.ErrExecutorClosed) {
		return "executor_closed"
	}
	return "executor_error"
}

// generateID mints listener tokens; tests replace it for stable tokens
var generateID = func() string {
	return uuid.New().String()
}
