package notifier

import "github.com/nkkko/simsub/internal/domain"

// Listener observes subscription changes. The callback carries no payload;
// it is a prompt to re-query whatever state the listener cares about.
type Listener struct {
	kind      domain.ListenerKind
	executor  Executor
	onChanged func()

	// owned is set when the listener created its own executor
	owned *SerialExecutor
}

// NewListener creates a listener for every subscription change. Callbacks
// run in order on a serial executor created for this listener.
func NewListener(onChanged func()) *Listener {
	exec := NewSerialExecutor()
	return &Listener{
		kind:      domain.ListenerSubscriptions,
		executor:  exec,
		onChanged: onChanged,
		owned:     exec,
	}
}

// NewListenerOn creates a listener for every subscription change whose
// callbacks run on exec
func NewListenerOn(exec Executor, onChanged func()) *Listener {
	return &Listener{
		kind:      domain.ListenerSubscriptions,
		executor:  exec,
		onChanged: onChanged,
	}
}

// NewOpportunisticListener creates a listener for opportunistic
// subscription changes whose callbacks run on exec
func NewOpportunisticListener(exec Executor, onChanged func()) *Listener {
	return &Listener{
		kind:      domain.ListenerOpportunistic,
		executor:  exec,
		onChanged: onChanged,
	}
}

// Kind returns the signals this listener receives
func (l *Listener) Kind() domain.ListenerKind {
	return l.kind
}

// Close releases the executor created by NewListener. Signals arriving
// afterwards fail delivery and the listener is dropped from its hub.
func (l *Listener) Close() {
	if l.owned != nil {
		l.owned.Close()
	}
}
