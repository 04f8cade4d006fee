package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	apierrors "github.com/nkkko/simsub/internal/api/errors"
	"github.com/nkkko/simsub/internal/domain"
	"github.com/nkkko/simsub/pkg/proto"
	"github.com/rs/zerolog"
)

var _ domain.NotificationChannel = (*Notifications)(nil)

// listener is one registration made through the channel
type listener struct {
	caller   domain.CallerIdentity
	kind     domain.ListenerKind
	callback domain.SignalFunc
}

// Notifications is a websocket connection to the daemon's notification
// channel. Listener ops wait for the daemon's ack. A lost connection is
// re-dialed with exponential backoff; the registrations are then replayed
// and every listener gets one signal for the changes it may have missed.
type Notifications struct {
	client *Client
	ctx    context.Context
	cancel context.CancelFunc

	// writeMu serializes writers on the connection
	writeMu sync.Mutex

	mu        sync.Mutex
	conn      *websocket.Conn
	listeners map[string]*listener
	waiters   map[string]chan proto.Signal
	err       error

	done   chan struct{}
	logger zerolog.Logger
}

// Notifications connects to the daemon's notification channel. The channel
// lives until Close, independent of ctx.
func (c *Client) Notifications(ctx context.Context) (*Notifications, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	n := &Notifications{
		client:    c,
		ctx:       runCtx,
		cancel:    cancel,
		conn:      conn,
		listeners: make(map[string]*listener),
		waiters:   make(map[string]chan proto.Signal),
		done:      make(chan struct{}),
		logger:    c.logger.With().Str("channel", "notifications").Logger(),
	}

	go n.run(conn)
	return n, nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	headers := c.headers.Clone()
	headers.Del("Content-Type")

	conn, resp, err := c.dialer.DialContext(ctx, c.websocketURL(), headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: websocket handshake: HTTP %d", domain.ErrRemoteUnavailable, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: failed to connect to websocket: %v", domain.ErrRemoteUnavailable, err)
	}
	return conn, nil
}

// AddListener registers token with the daemon and waits for its ack
func (n *Notifications) AddListener(ctx context.Context, caller domain.CallerIdentity, token string, kind domain.ListenerKind, callback domain.SignalFunc) error {
	if token == "" || callback == nil {
		return fmt.Errorf("%w: listener needs a token and a callback", domain.ErrInvalidArgument)
	}

	// Known before the op is sent, so a signal racing the ack is delivered
	rec := &listener{caller: caller, kind: kind, callback: callback}
	n.mu.Lock()
	n.listeners[token] = rec
	n.mu.Unlock()

	err := n.roundTrip(ctx, proto.ListenerOp{
		Op:     proto.ListenerOpAdd,
		Caller: string(caller),
		Token:  token,
		Kind:   int32(kind),
	})
	if err != nil {
		n.forget(token, rec)
		return err
	}
	return nil
}

// RemoveListener drops token locally and at the daemon
func (n *Notifications) RemoveListener(ctx context.Context, caller domain.CallerIdentity, token string) error {
	n.mu.Lock()
	delete(n.listeners, token)
	n.mu.Unlock()

	return n.roundTrip(ctx, proto.ListenerOp{
		Op:     proto.ListenerOpRemove,
		Caller: string(caller),
		Token:  token,
	})
}

// Len returns the number of listeners registered through the channel
func (n *Notifications) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.listeners)
}

// Close ends the channel. Pending and later listener ops fail.
func (n *Notifications) Close() error {
	n.cancel()

	n.mu.Lock()
	conn := n.conn
	n.mu.Unlock()

	var err error
	if conn != nil {
		n.writeMu.Lock()
		err = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		n.writeMu.Unlock()
		_ = conn.Close()
	}

	<-n.done
	return err
}

// roundTrip sends op and waits for the matching ack
func (n *Notifications) roundTrip(ctx context.Context, op proto.ListenerOp) error {
	key := op.Op + "/" + op.Token
	ch := make(chan proto.Signal, 1)

	n.mu.Lock()
	if n.err != nil {
		err := n.err
		n.mu.Unlock()
		return err
	}
	n.waiters[key] = ch
	conn := n.conn
	n.mu.Unlock()

	defer func() {
		n.mu.Lock()
		if n.waiters[key] == ch {
			delete(n.waiters, key)
		}
		n.mu.Unlock()
	}()

	if err := n.write(conn, op); err != nil {
		return fmt.Errorf("%w: sending %s: %v", domain.ErrRemoteUnavailable, op.Op, err)
	}

	select {
	case ack := <-ch:
		if ack.ErrorType == "" && ack.Error == "" {
			return nil
		}
		return apierrors.ToDomain(apierrors.ErrorType(ack.ErrorType), ack.Error)
	case <-ctx.Done():
		return ctx.Err()
	case <-n.done:
		return n.closedErr()
	}
}

func (n *Notifications) write(conn *websocket.Conn, v any) error {
	if conn == nil {
		return fmt.Errorf("not connected")
	}
	n.writeMu.Lock()
	defer n.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(n.client.timeout))
	return conn.WriteJSON(v)
}

func (n *Notifications) closedErr() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	return fmt.Errorf("%w: notification channel closed", domain.ErrRemoteUnavailable)
}

// run reads from conn and replaces it whenever it breaks, until Close or
// until reconnecting gives up
func (n *Notifications) run(conn *websocket.Conn) {
	defer close(n.done)

	for {
		n.read(conn)
		n.failWaiters()

		if n.ctx.Err() != nil {
			n.setErr(fmt.Errorf("%w: notification channel closed", domain.ErrRemoteUnavailable))
			return
		}

		next, err := n.reconnect()
		if err != nil {
			n.logger.Error().Err(err).Msg("Giving up on notification channel")
			n.setErr(fmt.Errorf("%w: notification channel lost: %v", domain.ErrRemoteUnavailable, err))
			return
		}
		conn = next
		n.resync(conn)
	}
}

func (n *Notifications) read(conn *websocket.Conn) {
	defer conn.Close()

	for {
		var sig proto.Signal
		if err := conn.ReadJSON(&sig); err != nil {
			if n.ctx.Err() == nil {
				n.logger.Warn().Err(err).Msg("Notification channel read failed")
			}
			return
		}

		if sig.Ack != "" {
			n.mu.Lock()
			ch := n.waiters[sig.Ack+"/"+sig.Token]
			n.mu.Unlock()
			if ch != nil {
				select {
				case ch <- sig:
				default:
				}
			}
			continue
		}

		n.deliver(sig.Token)
	}
}

// deliver runs the callback of token. A failing listener is dropped here
// and at the daemon.
func (n *Notifications) deliver(token string) {
	n.mu.Lock()
	rec, ok := n.listeners[token]
	n.mu.Unlock()
	if !ok {
		return
	}

	if err := rec.callback(); err != nil {
		n.logger.Debug().Err(err).Str("token", token).Msg("Dropping listener after failed delivery")
		n.forget(token, rec)
		go func() {
			ctx, cancel := context.WithTimeout(n.ctx, n.client.timeout)
			defer cancel()
			if err := n.roundTrip(ctx, proto.ListenerOp{
				Op:     proto.ListenerOpRemove,
				Caller: string(rec.caller),
				Token:  token,
			}); err != nil {
				n.logger.Debug().Err(err).Str("token", token).Msg("Failed to remove dropped listener")
			}
		}()
	}
}

// forget removes token if it still maps to rec
func (n *Notifications) forget(token string, rec *listener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.listeners[token] == rec {
		delete(n.listeners, token)
	}
}

// failWaiters answers every pending op with an unavailable ack
func (n *Notifications) failWaiters() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.conn = nil
	for key, ch := range n.waiters {
		select {
		case ch <- proto.Signal{ErrorType: string(apierrors.ErrorTypeUnavailable), Error: "connection lost"}:
		default:
		}
		delete(n.waiters, key)
	}
}

func (n *Notifications) setErr(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.conn = nil
	if n.err == nil {
		n.err = err
	}
}

func (n *Notifications) reconnect() (*websocket.Conn, error) {
	var conn *websocket.Conn
	attempt := 0

	operation := func() error {
		attempt++
		ctx, cancel := context.WithTimeout(n.ctx, n.client.timeout)
		defer cancel()

		c, err := n.client.dial(ctx)
		if err != nil {
			n.logger.Debug().Err(err).Int("attempt", attempt).Msg("Reconnect failed")
			return err
		}
		conn = c
		return nil
	}

	if err := backoff.Retry(operation, n.client.reconnectBackoff(n.ctx)); err != nil {
		return nil, err
	}

	n.logger.Info().Int("attempts", attempt).Msg("Notification channel reconnected")
	return conn, nil
}

// resync replays every registration on conn and signals each listener once
func (n *Notifications) resync(conn *websocket.Conn) {
	n.mu.Lock()
	n.conn = conn
	tokens := make(map[string]*listener, len(n.listeners))
	for token, rec := range n.listeners {
		tokens[token] = rec
	}
	n.mu.Unlock()

	for token, rec := range tokens {
		// Acks of replayed ops have no waiter and are dropped by read
		err := n.write(conn, proto.ListenerOp{
			Op:     proto.ListenerOpAdd,
			Caller: string(rec.caller),
			Token:  token,
			Kind:   int32(rec.kind),
		})
		if err != nil {
			n.logger.Warn().Err(err).Str("token", token).Msg("Failed to replay listener")
			return
		}
	}

	for token := range tokens {
		n.deliver(token)
	}
}
