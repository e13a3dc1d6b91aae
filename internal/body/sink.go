package body

import (
	"context"
	"sync"
)

// State is the settlement state of a Sink.
type State int

const (
	StatePending State = iota
	StateResolved
	StateRejected
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateResolved:
		return "resolved"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Listener observes the settlement of a Sink. Exactly one of data and err is
// non-nil.
type Listener func(data Data, err error)

// Sink is a single-assignment result cell. The Consumer is its only writer;
// any number of goroutines may observe it.
type Sink struct {
	mu        sync.Mutex
	state     State
	data      Data
	err       error
	listeners []Listener
	done      chan struct{}
}

// NewSink returns a pending Sink.
func NewSink() *Sink {
	return &Sink{done: make(chan struct{})}
}

// rejectedSink returns a Sink that is already rejected with err.
func rejectedSink(err error) *Sink {
	s := NewSink()
	s.Reject(err)
	return s
}

// Resolve settles the Sink with data. Settling twice panics.
func (s *Sink) Resolve(data Data) {
	s.settle(StateResolved, data, nil)
}

// Reject settles the Sink with err. Settling twice panics.
func (s *Sink) Reject(err error) {
	s.settle(StateRejected, nil, err)
}

func (s *Sink) settle(state State, data Data, err error) {
	s.mu.Lock()
	if s.state != StatePending {
		s.mu.Unlock()
		panic("body: sink settled twice")
	}
	s.state, s.data, s.err = state, data, err
	listeners := s.listeners
	s.listeners = nil
	close(s.done)
	s.mu.Unlock()

	for _, l := range listeners {
		l(data, err)
	}
}

// Observe registers l. If the Sink is already settled l runs immediately on
// the calling goroutine, otherwise it runs on the goroutine that settles it.
func (s *Sink) Observe(l Listener) {
	s.mu.Lock()
	if s.state == StatePending {
		s.listeners = append(s.listeners, l)
		s.mu.Unlock()
		return
	}
	data, err := s.data, s.err
	s.mu.Unlock()
	l(data, err)
}

// State returns the current settlement state.
func (s *Sink) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Result returns the settled value. Both are nil while pending.
func (s *Sink) Result() (Data, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data, s.err
}

// Done is closed once the Sink settles.
func (s *Sink) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the Sink settles or ctx ends. Ending ctx does not settle
// the Sink.
func (s *Sink) Wait(ctx context.Context) (Data, error) {
	select {
	case <-s.done:
		return s.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
