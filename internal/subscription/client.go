// Package subscription is the client facade over the remote subscription
// registry.
//
// Every operation validates its identifiers locally, issues at most one
// remote call and turns a remote failure into the operation's neutral
// result (subid.Invalid, nil, an empty slice, false, -1 or
// SimState_UNKNOWN). Only operations documented as permission-gated
// return an error, and only when the caller lacks the privilege.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nkkko/simsub/internal/defaults"
	"github.com/nkkko/simsub/internal/domain"
	"github.com/nkkko/simsub/internal/group"
	"github.com/nkkko/simsub/internal/metrics"
	"github.com/nkkko/simsub/internal/notifier"
	"github.com/nkkko/simsub/internal/subid"
	"github.com/nkkko/simsub/internal/telemetry"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// Config contains client configuration
type Config struct {
	// Package name of the calling application
	Caller string

	// Upper bound for a single remote call. Zero disables it.
	CallTimeout time.Duration
}

// DefaultConfig returns a default client configuration
func DefaultConfig() Config {
	return Config{
		Caller:      "simsub",
		CallTimeout: 10 * time.Second,
	}
}

// Client is the entry point for subscription queries and updates
type Client struct {
	config  Config
	caller  domain.CallerIdentity
	service domain.SubscriptionService
	policy  domain.PolicyService
	device  domain.DeviceInfo
	rules   subid.Rules

	hub      *notifier.Hub
	defaults *defaults.Resolver
	groups   *group.Coordinator

	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewClient creates a client. The remote collaborators are obtained once by
// the caller and shared by every operation.
func NewClient(
	config Config,
	service domain.SubscriptionService,
	policy domain.PolicyService,
	channel domain.NotificationChannel,
	device domain.DeviceInfo,
) *Client {
	if config.Caller == "" {
		config.Caller = DefaultConfig().Caller
	}

	caller := domain.CallerIdentity(config.Caller)

	return &Client{
		config:   config,
		caller:   caller,
		service:  service,
		policy:   policy,
		device:   device,
		rules:    subid.NewRules(device),
		hub:      notifier.NewHub(caller, channel),
		defaults: defaults.NewResolver(service),
		groups:   group.NewCoordinator(caller, service),
		logger:   log.With().Str("component", "subscription").Str("caller", config.Caller).Logger(),
		metrics:  metrics.GetMetrics(),
	}
}

// Caller returns the identity sent with every remote call
func (c *Client) Caller() domain.CallerIdentity {
	return c.caller
}

// AddListener registers l for change signals. Plain listeners receive one
// delivery right away. A remote failure is logged and leaves l unregistered.
func (c *Client) AddListener(ctx context.Context, l *notifier.Listener) {
	c.hub.Register(ctx, l)
}

// RemoveListener unregisters l
func (c *Client) RemoveListener(ctx context.Context, l *notifier.Listener) {
	c.hub.Unregister(ctx, l)
}

// AddOnSubscriptionsChangedListener registers onChanged on its own serial
// executor and returns the listener handle for removal
func (c *Client) AddOnSubscriptionsChangedListener(ctx context.Context, onChanged func()) *notifier.Listener {
	l := notifier.NewListener(onChanged)
	c.hub.Register(ctx, l)
	return l
}

// RemoveOnSubscriptionsChangedListener unregisters l and releases its executor
func (c *Client) RemoveOnSubscriptionsChangedListener(ctx context.Context, l *notifier.Listener) {
	if l == nil {
		return
	}
	c.hub.Unregister(ctx, l)
	l.Close()
}

// AddOnOpportunisticSubscriptionsChangedListener registers onChanged for
// opportunistic subscription changes, run on exec
func (c *Client) AddOnOpportunisticSubscriptionsChangedListener(ctx context.Context, exec notifier.Executor, onChanged func()) *notifier.Listener {
	l := notifier.NewOpportunisticListener(exec, onChanged)
	c.hub.Register(ctx, l)
	return l
}

// call runs one remote call under the configured timeout and records it
func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context) error, attrs ...attribute.KeyValue) error {
	if c.config.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.CallTimeout)
		defer cancel()
	}

	ctx, span := telemetry.StartSpan(ctx, op, append(attrs, telemetry.AttrCaller.String(string(c.caller)))...)
	start := time.Now()
	err := fn(ctx)
	c.metrics.RemoteCallDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	c.metrics.RemoteCallsTotal.WithLabelValues(op, outcome(err)).Inc()
	telemetry.EndSpan(span, err)

	if err != nil && !errors.Is(err, domain.ErrPermissionDenied) {
		c.logger.Warn().Ctx(ctx).Err(err).Str("operation", op).Msg("Remote call failed")
	}
	return err
}

// reject records an operation answered locally after failed validation
func (c *Client) reject(op string, field string, value int32) {
	c.metrics.RejectedCallsTotal.WithLabelValues(op).Inc()
	c.logger.Debug().Str("operation", op).Int32(field, value).Msg("Invalid identifier")
}

// gated keeps only permission failures
func gated(op string, err error) error {
	if errors.Is(err, domain.ErrPermissionDenied) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrPermissionDenied):
		return "denied"
	default:
		return "error"
	}
}

func subAttr(id int32) attribute.KeyValue {
	return telemetry.AttrSubscriptionID.Int64(int64(id))
}

func slotAttr(slot int32) attribute.KeyValue {
	return telemetry.AttrSlotIndex.Int64(int64(slot))
}
