// Package hub routes envelopes to live subscriptions. Publishing never
// blocks on a consumer: each subscription owns a bounded queue that drops
// its oldest entry when full.
package hub

import (
	"errors"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/tenant-realtime/events"
	"github.com/yeremiapane/tenant-realtime/utils"
)

const (
	DefaultQueueSize = 64
	DefaultShards    = 32
)

// ErrBusClosed is returned by Subscribe after Close.
var ErrBusClosed = errors.New("event bus closed")

// Publisher is what producers depend on.
type Publisher interface {
	Publish(env events.Envelope) int
}

type Options struct {
	QueueSize int
	Shards    int
	Logger    logrus.FieldLogger
}

// Stats is a point-in-time view of the bus counters.
type Stats struct {
	Subscriptions int      `json:"subscriptions"`
	ActiveOrgs    []string `json:"active_orgs"`
	Published     uint64   `json:"published"`
	Delivered     uint64   `json:"delivered"`
	Dropped       uint64   `json:"dropped"`
}

type Bus struct {
	registry  *Registry
	queueSize int
	log       logrus.FieldLogger

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
	closed    atomic.Bool
}

func NewBus(opts Options) *Bus {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Shards <= 0 {
		opts.Shards = DefaultShards
	}
	if opts.Logger == nil {
		opts.Logger = utils.InfoLogger.WithField("component", "hub")
	}
	return &Bus{
		registry:  NewRegistry(opts.Shards),
		queueSize: opts.QueueSize,
		log:       opts.Logger,
	}
}

// Subscribe registers connID under scope.
func (b *Bus) Subscribe(connID string, scope events.Scope) (*Subscription, error) {
	if b.closed.Load() {
		return nil, ErrBusClosed
	}
	sub, err := b.registry.Register(connID, scope, b.queueSize)
	if err != nil {
		return nil, err
	}
	b.log.WithFields(logrus.Fields{"connection_id": connID, "scope": scope.Key()}).Debug("subscription registered")
	return sub, nil
}

// Unsubscribe removes connID. It is safe to call more than once.
func (b *Bus) Unsubscribe(connID string) {
	if b.registry.Unregister(connID) {
		b.log.WithField("connection_id", connID).Debug("subscription removed")
	}
}

// Publish enqueues env onto every matching subscription and returns how
// many accepted it. It does not wait for any consumer.
func (b *Bus) Publish(env events.Envelope) int {
	b.published.Add(1)
	n := 0
	for _, sub := range b.registry.Match(env.Scope) {
		accepted, dropped := sub.enqueue(env)
		if !accepted {
			continue
		}
		n++
		if dropped {
			b.dropped.Add(1)
			b.log.WithFields(logrus.Fields{
				"connection_id": sub.ID,
				"event":         env.Event,
				"dropped":       sub.Dropped(),
			}).Warn("subscription queue full, dropped oldest envelope")
		}
	}
	b.delivered.Add(uint64(n))
	return n
}

// Stats snapshots the counters.
func (b *Bus) Stats() Stats {
	return Stats{
		Subscriptions: b.registry.Len(),
		ActiveOrgs:    b.registry.ActiveOrgs(),
		Published:     b.published.Load(),
		Delivered:     b.delivered.Load(),
		Dropped:       b.dropped.Load(),
	}
}

// ActiveOrgs lists the orgs with at least one live subscription.
func (b *Bus) ActiveOrgs() []string { return b.registry.ActiveOrgs() }

// Len is the number of live subscriptions.
func (b *Bus) Len() int { return b.registry.Len() }

// Closed reports whether Close has been called.
func (b *Bus) Closed() bool { return b.closed.Load() }

// Close removes every subscription and refuses new ones.
func (b *Bus) Close() {
	b.closed.Store(true)
	b.registry.Each(func(s *Subscription) {
		b.registry.Unregister(s.ID)
	})
}
