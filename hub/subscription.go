package hub

import (
	"sync"
	"sync/atomic"

	"github.com/emirpasic/gods/queues/circularbuffer"

	"github.com/yeremiapane/tenant-realtime/events"
)

// Subscription is the in-memory registration of one live stream. Its
// outbound queue is bounded; when full the oldest envelope is dropped.
type Subscription struct {
	ID    string
	Scope events.Scope

	mu     sync.Mutex
	queue  *circularbuffer.Queue
	closed bool

	ready   chan struct{}
	done    chan struct{}
	dropped atomic.Uint64
}

func newSubscription(id string, scope events.Scope, size int) *Subscription {
	if size < 1 {
		size = 1
	}
	return &Subscription{
		ID:    id,
		Scope: scope,
		queue: circularbuffer.New(size),
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// enqueue never blocks. It reports whether env was accepted and whether an
// older envelope had to be dropped to make room.
func (s *Subscription) enqueue(env events.Envelope) (accepted, dropped bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, false
	}
	if s.queue.Full() {
		s.queue.Dequeue()
		dropped = true
	}
	s.queue.Enqueue(env)
	s.mu.Unlock()

	if dropped {
		s.dropped.Add(1)
	}
	select {
	case s.ready <- struct{}{}:
	default:
	}
	return true, dropped
}

// Ready fires after one or more envelopes were queued.
func (s *Subscription) Ready() <-chan struct{} { return s.ready }

// Done is closed once the subscription is unregistered.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Drain removes and returns every queued envelope in publish order.
func (s *Subscription) Drain() []events.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue.Empty() {
		return nil
	}
	out := make([]events.Envelope, 0, s.queue.Size())
	for {
		v, ok := s.queue.Dequeue()
		if !ok {
			break
		}
		out = append(out, v.(events.Envelope))
	}
	return out
}

// Len is the number of queued envelopes.
func (s *Subscription) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Size()
}

// Dropped counts envelopes discarded because the queue was full.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// close releases the queue. Envelopes published afterwards are ignored.
func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.queue.Clear()
	close(s.done)
}
