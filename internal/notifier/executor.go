package notifier

import (
	"sync"

	"github.com/gammazero/deque"
	"github.com/nkkko/simsub/internal/domain"
	"github.com/nkkko/simsub/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Executor is the execution context a listener's callback runs on
type Executor interface {
	// Execute schedules task and must not block on the task itself. It
	// returns domain.ErrExecutorClosed once the executor stops accepting work.
	Execute(task func()) error
}

// ExecutorFunc adapts a function to Executor
type ExecutorFunc func(task func()) error

// Execute calls f(task)
func (f ExecutorFunc) Execute(task func()) error {
	return f(task)
}

// SerialExecutor runs tasks one at a time, in submission order, on its own
// goroutine. The queue is unbounded so Execute never blocks the caller.
type SerialExecutor struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   deque.Deque[func()]
	closed  bool
	done    chan struct{}
	metrics *metrics.Metrics
}

// NewSerialExecutor starts a serial executor
func NewSerialExecutor() *SerialExecutor {
	e := &SerialExecutor{
		done:    make(chan struct{}),
		metrics: metrics.GetMetrics(),
	}
	e.cond = sync.NewCond(&e.mu)

	go e.run()

	return e
}

// Execute queues task behind every task submitted before it
func (e *SerialExecutor) Execute(task func()) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return domain.ErrExecutorClosed
	}

	e.queue.PushBack(task)
	e.metrics.ExecutorQueueDepth.Observe(float64(e.queue.Len()))
	e.cond.Signal()
	return nil
}

// Close stops accepting tasks. Tasks already queued still run.
func (e *SerialExecutor) Close() {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		e.cond.Broadcast()
	}
	e.mu.Unlock()
}

// Done is closed once the executor has drained its queue after Close
func (e *SerialExecutor) Done() <-chan struct{} {
	return e.done
}

func (e *SerialExecutor) run() {
	defer close(e.done)

	for {
		e.mu.Lock()
		for e.queue.Len() == 0 && !e.closed {
			e.cond.Wait()
		}
		if e.queue.Len() == 0 {
			e.mu.Unlock()
			return
		}
		task := e.queue.PopFront()
		e.mu.Unlock()

		e.runTask(task)
	}
}

// runTask keeps a panicking task from killing the executor goroutine
func (e *SerialExecutor) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			e.metrics.ListenerPanicsTotal.Inc()
			log.Error().
				Str("component", "notifier").
				Interface("panic", r).
				Msg("Listener callback panicked")
		}
	}()
	task()
}
