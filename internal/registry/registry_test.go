package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nkkko/simsub/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder counts callbacks and can be told to fail
type recorder struct {
	mu    sync.Mutex
	calls int
	fail  error
}

func (r *recorder) callback() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.fail
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestRegistryAddListener(t *testing.T) {
	registry := NewRegistry()
	ctx := context.Background()

	rec := &recorder{}
	err := registry.AddListener(ctx, "com.example.app", "token-1", domain.ListenerSubscriptions, rec.callback)
	require.NoError(t, err)

	// Verify internal state
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	assert.Contains(t, registry.listeners, "token-1")
	assert.Contains(t, registry.kindSubs[domain.ListenerSubscriptions], "token-1")
	assert.Equal(t, 1, registry.perCaller["com.example.app"])

	// No signal is sent on registration
	assert.Equal(t, 0, rec.count())
}

func TestRegistryAddListenerValidation(t *testing.T) {
	registry := NewRegistry()
	ctx := context.Background()

	err := registry.AddListener(ctx, "com.example.app", "", domain.ListenerSubscriptions, func() error { return nil })
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	err = registry.AddListener(ctx, "com.example.app", "token-1", domain.ListenerSubscriptions, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestRegistryPerCallerLimit(t *testing.T) {
	registry := NewRegistry(Config{MaxListenersPerCaller: 2})
	ctx := context.Background()
	noop := func() error { return nil }

	require.NoError(t, registry.AddListener(ctx, "app", "t1", domain.ListenerSubscriptions, noop))
	require.NoError(t, registry.AddListener(ctx, "app", "t2", domain.ListenerOpportunistic, noop))

	err := registry.AddListener(ctx, "app", "t3", domain.ListenerSubscriptions, noop)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	// Another caller has its own budget
	assert.NoError(t, registry.AddListener(ctx, "other", "t4", domain.ListenerSubscriptions, noop))

	// Re-registering an existing token does not count twice
	assert.NoError(t, registry.AddListener(ctx, "app", "t1", domain.ListenerSubscriptions, noop))
	assert.Equal(t, 2, registry.perCaller["app"])
}

func TestRegistryLimitErrorKeepsExistingRecord(t *testing.T) {
	registry := NewRegistry(Config{MaxListenersPerCaller: 1})
	ctx := context.Background()

	owner := &recorder{}
	require.NoError(t, registry.AddListener(ctx, "app", "shared", domain.ListenerSubscriptions, owner.callback))
	require.NoError(t, registry.AddListener(ctx, "other", "mine", domain.ListenerSubscriptions, func() error { return nil }))

	// "other" is at its limit, so taking over "shared" fails and leaves it alone
	err := registry.AddListener(ctx, "other", "shared", domain.ListenerOpportunistic, func() error { return nil })
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	assert.Equal(t, 2, registry.Len(domain.ListenerSubscriptions))
	assert.Equal(t, 1, registry.perCaller["app"])
	registry.NotifySubscriptionsChanged()
	assert.Equal(t, 1, owner.count())
}

func TestRegistryRemoveListener(t *testing.T) {
	registry := NewRegistry()
	ctx := context.Background()

	rec := &recorder{}
	require.NoError(t, registry.AddListener(ctx, "app", "token-1", domain.ListenerSubscriptions, rec.callback))

	// A different caller cannot remove it
	require.NoError(t, registry.RemoveListener(ctx, "intruder", "token-1"))
	assert.Equal(t, 1, registry.Len(domain.ListenerSubscriptions))

	require.NoError(t, registry.RemoveListener(ctx, "app", "token-1"))
	assert.Equal(t, 0, registry.Len(domain.ListenerSubscriptions))

	// Removing again is harmless
	require.NoError(t, registry.RemoveListener(ctx, "app", "token-1"))

	registry.NotifySubscriptionsChanged()
	assert.Equal(t, 0, rec.count())
}

func TestRegistryNotifyByKind(t *testing.T) {
	registry := NewRegistry()
	ctx := context.Background()

	all := &recorder{}
	opportunistic := &recorder{}
	require.NoError(t, registry.AddListener(ctx, "app", "all", domain.ListenerSubscriptions, all.callback))
	require.NoError(t, registry.AddListener(ctx, "app", "opp", domain.ListenerOpportunistic, opportunistic.callback))

	registry.NotifySubscriptionsChanged()
	assert.Equal(t, 1, all.count())
	assert.Equal(t, 0, opportunistic.count())

	registry.NotifyOpportunisticSubscriptionsChanged()
	assert.Equal(t, 1, all.count())
	assert.Equal(t, 1, opportunistic.count())
}

func TestRegistryNotifyInRegistrationOrder(t *testing.T) {
	registry := NewRegistry()
	ctx := context.Background()

	var mu sync.Mutex
	var order []string
	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("token-%d", i)
		require.NoError(t, registry.AddListener(ctx, "app", name, domain.ListenerSubscriptions, func() error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}))
	}

	registry.NotifySubscriptionsChanged()

	assert.Equal(t, []string{"token-0", "token-1", "token-2", "token-3", "token-4"}, order)
}

func TestRegistryEvictsFailedListener(t *testing.T) {
	registry := NewRegistry()
	ctx := context.Background()

	healthy := &recorder{}
	broken := &recorder{fail: errors.New("gone")}
	require.NoError(t, registry.AddListener(ctx, "app", "healthy", domain.ListenerSubscriptions, healthy.callback))
	require.NoError(t, registry.AddListener(ctx, "app", "broken", domain.ListenerSubscriptions, broken.callback))

	registry.NotifySubscriptionsChanged()
	assert.Equal(t, 1, healthy.count())
	assert.Equal(t, 1, broken.count())

	// The failed registration is gone, the healthy one stays
	assert.Equal(t, 1, registry.Len(domain.ListenerSubscriptions))

	registry.NotifySubscriptionsChanged()
	assert.Equal(t, 2, healthy.count())
	assert.Equal(t, 1, broken.count())
}

// chanSource feeds the registry from a channel
type chanSource chan domain.ListenerKind

func (c chanSource) NextSignal(ctx context.Context) (domain.ListenerKind, error) {
	select {
	case kind, ok := <-c:
		if !ok {
			return 0, errors.New("source closed")
		}
		return kind, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func TestRegistryStart(t *testing.T) {
	registry := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	require.NoError(t, registry.AddListener(ctx, "app", "token-1", domain.ListenerSubscriptions, rec.callback))

	signals := make(chanSource, 4)
	done := make(chan error, 1)
	go func() {
		done <- registry.Start(ctx, signals)
	}()

	signals <- domain.ListenerSubscriptions
	signals <- domain.ListenerOpportunistic
	signals <- domain.ListenerSubscriptions

	assert.Eventually(t, func() bool { return rec.count() == 2 }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("registry did not stop")
	}
}

func TestRegistryStartStopsOnSourceFailure(t *testing.T) {
	registry := NewRegistry()
	signals := make(chanSource)
	close(signals)

	err := registry.Start(context.Background(), signals)
	assert.ErrorContains(t, err, "source closed")
}

func TestRegistryShutdown(t *testing.T) {
	registry := NewRegistry()
	ctx := context.Background()
	noop := func() error { return nil }

	require.NoError(t, registry.AddListener(ctx, "app", "t1", domain.ListenerSubscriptions, noop))
	require.NoError(t, registry.AddListener(ctx, "app", "t2", domain.ListenerOpportunistic, noop))

	require.NoError(t, registry.Shutdown(ctx))

	assert.Equal(t, 0, registry.Len(domain.ListenerSubscriptions))
	assert.Equal(t, 0, registry.Len(domain.ListenerOpportunistic))
	assert.Empty(t, registry.perCaller)
}
