package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	apierrors "github.com/nkkko/simsub/internal/api/errors"
	"github.com/nkkko/simsub/internal/domain"
	"github.com/nkkko/simsub/pkg/proto"
	"github.com/rs/zerolog"
)

const (
	// Time allowed to write one message to the peer
	writeWait = 10 * time.Second

	// Largest listener op accepted from the peer
	maxOpBytes = 4096
)

// session is one notification connection. Listener ops arrive on the read
// side; acks and change signals leave through a single writer in the order
// they were queued. Every signal is written, even when an earlier one for
// the same token is still pending.
//
// Tokens are registered under a session prefix, so a peer that reconnects
// and replays its tokens is never affected by the old session's cleanup.
type session struct {
	id           string
	channel      domain.NotificationChannel
	conn         *websocket.Conn
	pingInterval time.Duration
	logger       zerolog.Logger

	mu     sync.Mutex
	queue []proto.Signal
	owned map[string]domain.CallerIdentity

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// handleNotifications upgrades the request and serves the session until the
// peer goes away
func (a *API) handleNotifications(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already answered the request
		a.logger.Debug().Err(err).Msg("Websocket upgrade failed")
		return
	}

	s := &session{
		id:           uuid.New().String(),
		channel:      a.channel,
		conn:         conn,
		pingInterval: a.config.PingInterval,
		logger:       a.logger.With().Str("remote_addr", r.RemoteAddr).Logger(),
		owned:        make(map[string]domain.CallerIdentity),
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
	}

	a.mu.Lock()
	a.sessions[s] = struct{}{}
	a.mu.Unlock()
	a.metrics.APIActiveConnections.Inc()

	defer func() {
		a.mu.Lock()
		delete(a.sessions, s)
		a.mu.Unlock()
		a.metrics.APIActiveConnections.Dec()
	}()

	// The request context ends with the handler, not with the connection
	s.run(context.WithoutCancel(r.Context()))
}

func (s *session) run(ctx context.Context) {
	s.logger.Debug().Msg("Notification session opened")
	go s.writeLoop()

	defer func() {
		s.close()
		s.release(ctx)
		s.logger.Debug().Msg("Notification session closed")
	}()

	s.conn.SetReadLimit(maxOpBytes)
	if s.pingInterval > 0 {
		pongWait := 2 * s.pingInterval
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	for {
		var op proto.ListenerOp
		if err := s.conn.ReadJSON(&op); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn().Err(err).Msg("Notification session read failed")
			}
			return
		}
		s.handle(ctx, &op)
	}
}

// handle applies one listener op and queues its ack
func (s *session) handle(ctx context.Context, op *proto.ListenerOp) {
	caller := domain.CallerIdentity(op.Caller)
	token := op.Token

	var err error
	switch {
	case token == "":
		err = apierrors.ValidationError("required_field_missing", "token is required")
	case op.Op == proto.ListenerOpAdd:
		err = s.channel.AddListener(ctx, caller, s.registryToken(token), domain.ListenerKind(op.Kind), func() error {
			return s.signal(token)
		})
		if err == nil {
			s.mu.Lock()
			s.owned[token] = caller
			s.mu.Unlock()
		}
	case op.Op == proto.ListenerOpRemove:
		err = s.channel.RemoveListener(ctx, caller, s.registryToken(token))
		s.mu.Lock()
		delete(s.owned, token)
		s.mu.Unlock()
	default:
		err = apierrors.ValidationError("unknown_op", "Unknown listener op "+op.Op)
	}

	ack := proto.Signal{Token: token, Ack: op.Op}
	if err != nil {
		apiErr := apierrors.FromError(err)
		ack.Error = apiErr.Message
		ack.ErrorType = string(apiErr.Type)
		s.logger.Debug().Err(err).Str("op", op.Op).Str("token", token).Msg("Listener op failed")
	}
	s.enqueue(ack)
}

func (s *session) registryToken(token string) string {
	return s.id + "/" + token
}

// signal queues a change notification for token. It fails once the
// session is closed, which makes the registry drop the listener.
func (s *session) signal(token string) error {
	select {
	case <-s.done:
		return websocket.ErrCloseSent
	default:
	}

	s.enqueue(proto.Signal{Token: token})
	return nil
}

func (s *session) enqueue(msg proto.Signal) {
	s.mu.Lock()
	s.queue = append(s.queue, msg)
	s.mu.Unlock()
	s.notify()
}

func (s *session) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *session) drain() []proto.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.queue
	s.queue = nil
	return batch
}

func (s *session) writeLoop() {
	var tick <-chan time.Time
	if s.pingInterval > 0 {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
			for _, msg := range s.drain() {
				_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := s.conn.WriteJSON(msg); err != nil {
					s.logger.Debug().Err(err).Msg("Notification write failed")
					s.close()
					return
				}
			}
		case <-tick:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.logger.Debug().Err(err).Msg("Ping failed")
				s.close()
				return
			}
		}
	}
}

// close ends the session. The blocked reader fails on the closed
// connection and releases the listeners.
func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// release removes every listener registered through this session
func (s *session) release(ctx context.Context) {
	s.mu.Lock()
	owned := s.owned
	s.owned = make(map[string]domain.CallerIdentity)
	s.mu.Unlock()

	for token, caller := range owned {
		if err := s.channel.RemoveListener(ctx, caller, s.registryToken(token)); err != nil {
			s.logger.Debug().Err(err).Str("token", token).Msg("Failed to release listener")
		}
	}
}
