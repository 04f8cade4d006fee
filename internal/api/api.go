// Package api serves the reference remote services over HTTP: one POST
// route per service method carrying proto.Call/proto.Reply envelopes, and
// a websocket notification channel.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	apierrors "github.com/nkkko/simsub/internal/api/errors"
	"github.com/nkkko/simsub/internal/api/response"
	"github.com/nkkko/simsub/internal/api/validation"
	"github.com/nkkko/simsub/internal/domain"
	"github.com/nkkko/simsub/internal/logging"
	"github.com/nkkko/simsub/internal/metrics"
	"github.com/nkkko/simsub/internal/telemetry"
	"github.com/nkkko/simsub/pkg/proto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config contains API configuration
type Config struct {
	// Server address
	Addr string

	// Timeouts
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration

	// Largest accepted call envelope
	MaxBodyBytes int64

	// Origins allowed by CORS and the websocket upgrade. "*" allows all.
	AllowedOrigins []string

	// Keepalive period of notification connections. Zero disables pings.
	PingInterval time.Duration

	// Prometheus endpoint. Empty disables it.
	MetricsPath string
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    120 * time.Second,
		RequestTimeout: 30 * time.Second,
		MaxBodyBytes:   1024 * 1024, // 1MB
		AllowedOrigins: []string{"*"},
		PingInterval:   30 * time.Second,
		MetricsPath:    "/metrics",
	}
}

// API handles HTTP endpoints
type API struct {
	config   Config
	server   *http.Server
	channel  domain.NotificationChannel
	isub     map[string]method
	policy   map[string]method
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[*session]struct{}

	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewAPI creates a new API instance
func NewAPI(
	config Config,
	subs domain.SubscriptionService,
	policy domain.PolicyService,
	channel domain.NotificationChannel,
) *API {
	defaults := DefaultConfig()
	if config.Addr == "" {
		config.Addr = defaults.Addr
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.IdleTimeout == 0 {
		config.IdleTimeout = defaults.IdleTimeout
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = defaults.RequestTimeout
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = defaults.MaxBodyBytes
	}

	a := &API{
		config:   config,
		channel:  channel,
		isub:     subscriptionMethods(subs),
		policy:   policyMethods(policy),
		sessions: make(map[*session]struct{}),
		logger:   log.With().Str("component", "api").Logger(),
		metrics:  metrics.GetMetrics(),
	}
	a.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return a.originAllowed(r.Header.Get("Origin")) },
	}
	return a
}

// Handler builds the router serving every endpoint
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(logging.HTTPMiddleware())
	r.Use(telemetry.HTTPMiddleware("simsub-api"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.config.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id", "Traceparent"},
		MaxAge:         300,
	}))

	// Health checks
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Metrics endpoint
	if a.config.MetricsPath != "" {
		r.Handle(a.config.MetricsPath, promhttp.Handler())
	}

	// Long-lived, so outside the request timeout
	r.Get(proto.PathNotifications, a.handleNotifications)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(a.config.RequestTimeout))
		r.Post(proto.PathSubscriptionService+"{method}", a.serve("isub", a.isub))
		r.Post(proto.PathPolicyService+"{method}", a.serve("policy", a.policy))
	})

	return r
}

// Start runs the API server until ctx is canceled
func (a *API) Start(ctx context.Context) error {
	a.logger.Info().Str("addr", a.config.Addr).Msg("Starting API server")

	a.mu.Lock()
	a.server = &http.Server{
		Addr:         a.config.Addr,
		Handler:      a.Handler(),
		ReadTimeout:  a.config.ReadTimeout,
		WriteTimeout: a.config.WriteTimeout,
		IdleTimeout:  a.config.IdleTimeout,
	}
	server := a.server
	a.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("API server: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		a.logger.Error().Err(err).Msg("API server error")
		return err
	case <-ctx.Done():
		return nil
	}
}

// serve dispatches POST /<prefix>/{method} to the method table of one service
func (a *API) serve(service string, methods map[string]method) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "method")
		start := time.Now()
		status := http.StatusOK
		defer func() {
			a.metrics.APIRequestsTotal.WithLabelValues(service, name, strconv.Itoa(status)).Inc()
			a.metrics.APIRequestDuration.WithLabelValues(service, name).Observe(time.Since(start).Seconds())
		}()

		fail := func(err error) {
			status = apierrors.FromError(err).HTTPCode
			response.Error(w, r, err)
		}

		m, ok := methods[name]
		if !ok {
			fail(apierrors.NotFoundError("unknown_method", "Unknown method "+service+"."+name))
			return
		}

		call, err := validation.DecodeCall(w, r, a.config.MaxBodyBytes)
		if err != nil {
			a.logger.Debug().Err(err).Str("method", name).Msg("Invalid call")
			fail(err)
			return
		}

		reply, err := m(r.Context(), call)
		if err != nil {
			logger := logging.FromContext(r.Context())
			logger.Debug().
				Ctx(r.Context()).
				Err(err).
				Str("service", service).
				Str("method", name).
				Str("caller", call.Caller).
				Msg("Call failed")
			fail(err)
			return
		}

		response.JSON(w, r, status, reply)
	}
}

func (a *API) originAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	for _, allowed := range a.config.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// Shutdown stops the API server and closes every notification connection
func (a *API) Shutdown(ctx context.Context) error {
	a.logger.Info().Msg("Shutting down API server")

	a.mu.Lock()
	server := a.server
	sessions := make([]*session, 0, len(a.sessions))
	for s := range a.sessions {
		sessions = append(sessions, s)
	}
	a.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
	if server != nil {
		return server.Shutdown(ctx)
	}
	return nil
}
