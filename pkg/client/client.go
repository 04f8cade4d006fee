// Package client talks to a simsub daemon. It provides remote
// implementations of the subscription service, the policy service and the
// notification channel, ready to be handed to subscription.NewClient.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	apierrors "github.com/nkkko/simsub/internal/api/errors"
	"github.com/nkkko/simsub/internal/domain"
	"github.com/nkkko/simsub/pkg/proto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Client is an HTTP client for a simsub daemon
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	headers    http.Header
	dialer     *websocket.Dialer
	timeout    time.Duration
	device     Device

	// Reconnect policy of notification channels
	reconnectInitial time.Duration
	reconnectMax     time.Duration
	reconnectElapsed time.Duration

	logger zerolog.Logger
}

// ClientOption is a function that configures a Client
type ClientOption func(*Client)

// WithTimeout sets the request timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the HTTP client used for calls
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeaders sets additional HTTP headers
func WithHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		for k, v := range headers {
			c.headers.Set(k, v)
		}
	}
}

// WithDevice sets the device capacity reported by Device
func WithDevice(device Device) ClientOption {
	return func(c *Client) {
		c.device = device
	}
}

// WithReconnect sets the backoff used when a notification channel loses
// its connection. A zero maxElapsed retries until the channel is closed.
func WithReconnect(initial, max, maxElapsed time.Duration) ClientOption {
	return func(c *Client) {
		c.reconnectInitial = initial
		c.reconnectMax = max
		c.reconnectElapsed = maxElapsed
	}
}

// New creates a new client for the daemon at baseURL
func New(baseURL string, options ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL scheme %q", u.Scheme)
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")

	c := &Client{
		baseURL:          u,
		httpClient:       &http.Client{Timeout: 10 * time.Second},
		headers:          headers,
		dialer:           websocket.DefaultDialer,
		timeout:          10 * time.Second,
		device:           Device{Sims: 2, Phones: 2},
		reconnectInitial: 100 * time.Millisecond,
		reconnectMax:     10 * time.Second,
		logger:           log.With().Str("component", "simsub-client").Logger(),
	}

	for _, option := range options {
		option(c)
	}

	return c, nil
}

// Subscriptions returns the remote subscription service
func (c *Client) Subscriptions() *Subscriptions {
	return &Subscriptions{client: c}
}

// Policy returns the remote policy service
func (c *Client) Policy() *Policy {
	return &Policy{client: c}
}

// Device returns the configured device capacity
func (c *Client) Device() Device {
	return c.device
}

// envelope is the daemon's response body
type envelope struct {
	Success bool                `json:"success"`
	Data    *proto.Reply        `json:"data"`
	Error   *apierrors.APIError `json:"error"`
}

// invoke posts call to one service method and returns its reply. Errors
// carry the domain sentinels; transport failures are ErrRemoteUnavailable.
func (c *Client) invoke(ctx context.Context, prefix, method string, call *proto.Call) (*proto.Reply, error) {
	body, err := json.Marshal(call)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal call: %w", err)
	}

	u := *c.baseURL
	u.Path = prefix + method

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for k, v := range c.headers {
		req.Header[k] = v
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrRemoteUnavailable, method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: reading reply: %v", domain.ErrRemoteUnavailable, method, err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %s: HTTP %d: undecodable reply", domain.ErrRemoteUnavailable, method, resp.StatusCode)
	}

	if resp.StatusCode >= 400 || !env.Success {
		if env.Error == nil {
			return nil, fmt.Errorf("%w: %s: HTTP %d", domain.ErrRemoteUnavailable, method, resp.StatusCode)
		}
		return nil, apierrors.ToDomain(env.Error.Type, env.Error.Message)
	}
	if env.Data == nil {
		return &proto.Reply{}, nil
	}
	return env.Data, nil
}

// websocketURL returns the notification endpoint
func (c *Client) websocketURL() string {
	u := *c.baseURL
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = proto.PathNotifications
	return u.String()
}

func (c *Client) reconnectBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.reconnectInitial
	b.MaxInterval = c.reconnectMax
	b.MaxElapsedTime = c.reconnectElapsed
	return backoff.WithContext(b, ctx)
}

// Device is a fixed domain.DeviceInfo
type Device struct {
	Sims   int
	Phones int
	CardID int32
}

var _ domain.DeviceInfo = Device{}

// SimCount returns the number of SIM slots
func (d Device) SimCount() int { return d.Sims }

// PhoneCount returns the number of logical modems
func (d Device) PhoneCount() int { return d.Phones }

// DefaultCardID returns the card id of the built-in eUICC
func (d Device) DefaultCardID() int32 { return d.CardID }
