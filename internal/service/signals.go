package service

import (
	"context"
	"sync"

	"github.com/gammazero/deque"
	"github.com/nkkko/simsub/internal/domain"
)

// signalQueue holds change signals until the registry takes them. Writers
// never block and no signal is dropped.
type signalQueue struct {
	mu      sync.Mutex
	pending deque.Deque[domain.ListenerKind]

	// ready holds a token while pending may be non-empty
	ready chan struct{}
}

func newSignalQueue() *signalQueue {
	return &signalQueue{ready: make(chan struct{}, 1)}
}

// push appends kind and returns the queue length
func (q *signalQueue) push(kind domain.ListenerKind) int {
	q.mu.Lock()
	q.pending.PushBack(kind)
	n := q.pending.Len()
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return n
}

func (q *signalQueue) tryPop() (domain.ListenerKind, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pending.Len() == 0 {
		return 0, false
	}
	return q.pending.PopFront(), true
}

// next blocks until a signal is queued or ctx ends
func (q *signalQueue) next(ctx context.Context) (domain.ListenerKind, error) {
	for {
		if kind, ok := q.tryPop(); ok {
			return kind, nil
		}
		select {
		case <-q.ready:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}
