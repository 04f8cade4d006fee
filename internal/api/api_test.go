package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	apierrors "github.com/nkkko/simsub/internal/api/errors"
	"github.com/nkkko/simsub/internal/domain"
	"github.com/nkkko/simsub/internal/policy"
	"github.com/nkkko/simsub/internal/registry"
	"github.com/nkkko/simsub/internal/service"
	"github.com/nkkko/simsub/internal/storage"
	"github.com/nkkko/simsub/internal/subid"
	"github.com/nkkko/simsub/pkg/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*httptest.Server
	api      *API
	registry *registry.Registry
}

// envelope mirrors response.Response with a typed payload
type envelope struct {
	Success   bool               `json:"success"`
	RequestID string             `json:"request_id"`
	Data      *proto.Reply       `json:"data"`
	Error     *apierrors.APIError `json:"error"`
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	store := storage.NewMemoryStore()
	for _, rec := range []*proto.SubscriptionInfo{
		{Id: 5, IccId: "icc-5", SimSlotIndex: 0, IsEnabled: true, AccessRules: []string{"com.example.carrier"}},
		{Id: 7, IccId: "icc-7", SimSlotIndex: 1, IsEnabled: true},
		{Id: 9, IccId: "icc-9", SimSlotIndex: subid.InvalidSlot, IsEnabled: true, IsEmbedded: true},
	} {
		require.NoError(t, store.PutRecord(ctx, rec))
	}

	svc := service.NewService(service.DefaultConfig(), store)
	reg := registry.NewRegistry()
	go func() { _ = reg.Start(ctx, svc) }()

	config := DefaultConfig()
	config.PingInterval = 0
	a := NewAPI(config, svc, policy.NewService(policy.DefaultConfig(), svc), reg)

	server := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		_ = a.Shutdown(context.Background())
		server.Close()
		cancel()
	})

	return &testServer{Server: server, api: a, registry: reg}
}

func (s *testServer) call(t *testing.T, path string, call any) (int, *envelope) {
	t.Helper()
	var body bytes.Buffer
	if call != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(call))
	}

	resp, err := http.Post(s.URL+path, "application/json", &body)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, &env
}

func (s *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + proto.PathNotifications
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readSignal(t *testing.T, conn *websocket.Conn) proto.Signal {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var sig proto.Signal
	require.NoError(t, conn.ReadJSON(&sig))
	return sig
}

func TestHealthEndpoints(t *testing.T) {
	s := setupTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(s.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestSubscriptionMethods(t *testing.T) {
	s := setupTestServer(t)

	status, env := s.call(t, proto.PathSubscriptionService+"ActiveSubscription", proto.Call{SubId: 7})
	require.Equal(t, http.StatusOK, status)
	require.True(t, env.Success)
	require.NotNil(t, env.Data.Info)
	assert.Equal(t, "icc-7", env.Data.Info.IccId)
	assert.NotEmpty(t, env.RequestID)

	status, env = s.call(t, proto.PathSubscriptionService+"ActiveSubscriptionIDs", proto.Call{})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []int32{5, 7}, env.Data.Ids)

	status, env = s.call(t, proto.PathSubscriptionService+"SimStateForSlot", proto.Call{SlotIndex: 0})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, proto.SimState_LOADED, env.Data.State)
}

func TestEmptyBodyIsCallWithoutArguments(t *testing.T) {
	s := setupTestServer(t)

	status, env := s.call(t, proto.PathSubscriptionService+"AllCount", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 3, env.Data.Count)
}

func TestPermissionDeniedIsForbidden(t *testing.T) {
	s := setupTestServer(t)

	status, env := s.call(t, proto.PathSubscriptionService+"SetGroup", proto.Call{
		Caller: "com.example.app",
		SubIds: []int32{5, 7},
	})
	assert.Equal(t, http.StatusForbidden, status)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, apierrors.ErrorTypeForbidden, env.Error.Type)
	assert.ErrorIs(t, apierrors.ToDomain(env.Error.Type, env.Error.Message), domain.ErrPermissionDenied)

	status, env = s.call(t, proto.PathSubscriptionService+"SetGroup", proto.Call{
		Caller: "system",
		SubIds: []int32{5, 7},
	})
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, env.Data.Value)
}

func TestCallValidation(t *testing.T) {
	s := setupTestServer(t)

	status, env := s.call(t, proto.PathSubscriptionService+"NoSuchMethod", proto.Call{})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "unknown_method", env.Error.Code)

	status, env = s.call(t, proto.PathSubscriptionService+"SetGroup", proto.Call{Caller: "system"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "required_field_missing", env.Error.Code)

	status, env = s.call(t, proto.PathPolicyService+"SetSubscriptionOverride", proto.Call{
		Caller:    "system",
		SubId:     5,
		TimeoutMs: -1,
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "min_value_not_met", env.Error.Code)

	resp, err := http.Post(s.URL+proto.PathSubscriptionService+"AllCount", "application/json",
		strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var bad envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&bad))
	assert.Equal(t, "invalid_json", bad.Error.Code)
}

func TestPolicyMethods(t *testing.T) {
	s := setupTestServer(t)

	plans := []*proto.SubscriptionPlan{{Title: "Unlimited", DataLimitBytes: 1 << 30}}
	status, _ := s.call(t, proto.PathPolicyService+"SetSubscriptionPlans", proto.Call{
		Caller: "com.example.carrier",
		SubId:  5,
		Plans:  plans,
	})
	require.Equal(t, http.StatusOK, status)

	status, env := s.call(t, proto.PathPolicyService+"SubscriptionPlansOwner", proto.Call{SubId: 5})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "com.example.carrier", env.Data.Value)

	status, env = s.call(t, proto.PathPolicyService+"SubscriptionPlans", proto.Call{
		Caller: "com.example.carrier",
		SubId:  5,
	})
	require.Equal(t, http.StatusOK, status)
	require.Len(t, env.Data.Plans, 1)
	assert.Equal(t, "Unlimited", env.Data.Plans[0].Title)
}

func TestNotificationSession(t *testing.T) {
	s := setupTestServer(t)
	conn := s.dial(t)

	require.NoError(t, conn.WriteJSON(proto.ListenerOp{
		Op:     proto.ListenerOpAdd,
		Caller: "com.example.app",
		Token:  "listener-1",
		Kind:   int32(domain.ListenerSubscriptions),
	}))

	ack := readSignal(t, conn)
	assert.Equal(t, proto.ListenerOpAdd, ack.Ack)
	assert.Equal(t, "listener-1", ack.Token)
	assert.Empty(t, ack.Error)
	assert.Equal(t, 1, s.registry.Len(domain.ListenerSubscriptions))

	status, _ := s.call(t, proto.PathSubscriptionService+"RequestEmbeddedRefresh", proto.Call{CardId: 0})
	require.Equal(t, http.StatusOK, status)

	sig := readSignal(t, conn)
	assert.Equal(t, "listener-1", sig.Token)
	assert.Empty(t, sig.Ack)

	require.NoError(t, conn.WriteJSON(proto.ListenerOp{
		Op:     proto.ListenerOpRemove,
		Caller: "com.example.app",
		Token:  "listener-1",
	}))
	ack = readSignal(t, conn)
	assert.Equal(t, proto.ListenerOpRemove, ack.Ack)
	assert.Equal(t, 0, s.registry.Len(domain.ListenerSubscriptions))
}

func TestNotificationSessionRejectsBadOps(t *testing.T) {
	s := setupTestServer(t)
	conn := s.dial(t)

	require.NoError(t, conn.WriteJSON(proto.ListenerOp{Op: proto.ListenerOpAdd, Caller: "com.example.app"}))
	ack := readSignal(t, conn)
	assert.Equal(t, string(apierrors.ErrorTypeValidation), ack.ErrorType)

	require.NoError(t, conn.WriteJSON(proto.ListenerOp{Op: "subscribe", Token: "listener-2"}))
	ack = readSignal(t, conn)
	assert.Equal(t, "subscribe", ack.Ack)
	assert.Equal(t, string(apierrors.ErrorTypeValidation), ack.ErrorType)
	assert.Equal(t, 0, s.registry.Len(domain.ListenerSubscriptions))
}

func TestClosedSessionReleasesListeners(t *testing.T) {
	s := setupTestServer(t)
	conn := s.dial(t)

	for _, token := range []string{"a", "b"} {
		require.NoError(t, conn.WriteJSON(proto.ListenerOp{
			Op:     proto.ListenerOpAdd,
			Caller: "com.example.app",
			Token:  token,
			Kind:   int32(domain.ListenerOpportunistic),
		}))
		readSignal(t, conn)
	}
	require.Equal(t, 2, s.registry.Len(domain.ListenerOpportunistic))

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		return s.registry.Len(domain.ListenerOpportunistic) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNotificationSessionDeliversEverySignal(t *testing.T) {
	s := setupTestServer(t)
	conn := s.dial(t)

	require.NoError(t, conn.WriteJSON(proto.ListenerOp{
		Op:     proto.ListenerOpAdd,
		Caller: "com.example.app",
		Token:  "listener-1",
		Kind:   int32(domain.ListenerSubscriptions),
	}))
	require.Empty(t, readSignal(t, conn).Error)

	// Back-to-back signals are queued before the writer runs
	s.registry.Notify(domain.ListenerSubscriptions)
	s.registry.Notify(domain.ListenerSubscriptions)

	for i := 0; i < 2; i++ {
		sig := readSignal(t, conn)
		assert.Equal(t, "listener-1", sig.Token)
		assert.Empty(t, sig.Ack)
	}
}
