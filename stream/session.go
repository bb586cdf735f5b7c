package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/tenant-realtime/events"
	"github.com/yeremiapane/tenant-realtime/hub"
	"github.com/yeremiapane/tenant-realtime/utils"
)

const DefaultHeartbeat = 15 * time.Second

var ErrShuttingDown = errors.New("stream manager is shutting down")

// Manager owns every running session so shutdown can cancel them through
// the same teardown path a client disconnect takes.
type Manager struct {
	bus       *hub.Bus
	heartbeat time.Duration
	log       logrus.FieldLogger

	base   context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closing  bool
	wg       sync.WaitGroup
	sessions atomic.Int64
}

type Options struct {
	Heartbeat time.Duration
	Logger    logrus.FieldLogger
}

func NewManager(bus *hub.Bus, opts Options) *Manager {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	if opts.Logger == nil {
		opts.Logger = utils.InfoLogger.WithField("component", "stream")
	}
	base, cancel := context.WithCancel(context.Background())
	return &Manager{
		bus:       bus,
		heartbeat: opts.Heartbeat,
		log:       opts.Logger,
		base:      base,
		cancel:    cancel,
	}
}

// Serve runs a session for scope over t and blocks until it ends. The
// subscription is removed on every exit path. A nil error means the client
// went away or the server shut down.
func (m *Manager) Serve(ctx context.Context, scope events.Scope, t Transport) error {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		return ErrShuttingDown
	}
	m.wg.Add(1)
	m.mu.Unlock()
	defer m.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(m.base, cancel)
	defer stop()

	s := &session{
		id:        uuid.NewString(),
		scope:     scope,
		bus:       m.bus,
		transport: t,
		heartbeat: m.heartbeat,
	}
	s.log = m.log.WithFields(logrus.Fields{"connection_id": s.id, "scope": scope.Key()})

	m.sessions.Add(1)
	defer m.sessions.Add(-1)
	return s.run(ctx)
}

// Accepting reports whether new sessions are still admitted.
func (m *Manager) Accepting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closing
}

// Active is the number of running sessions.
func (m *Manager) Active() int { return int(m.sessions.Load()) }

// Shutdown cancels every session and waits for them to finish or for ctx
// to expire. New sessions are refused afterwards.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closing = true
	m.mu.Unlock()
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type session struct {
	id        string
	scope     events.Scope
	bus       *hub.Bus
	transport Transport
	heartbeat time.Duration
	log       logrus.FieldLogger
}

func (s *session) run(ctx context.Context) error {
	sub, err := s.bus.Subscribe(s.id, s.scope)
	if err != nil {
		return err
	}
	defer s.bus.Unsubscribe(s.id)
	s.log.Info("stream opened")

	if err := s.write(events.EncodeKeepalive("connected")); err != nil {
		return err
	}

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("stream closed by server")
			return nil
		case <-s.transport.Closed():
			s.log.Info("stream closed by client")
			return nil
		case <-sub.Done():
			return nil
		case <-ticker.C:
			if err := s.write(events.EncodeKeepalive("heartbeat")); err != nil {
				return err
			}
		case <-sub.Ready():
			for _, env := range sub.Drain() {
				frame, err := events.Encode(env)
				if err != nil {
					s.log.WithError(err).WithField("event", env.Event).Warn("dropping unencodable envelope")
					continue
				}
				if err := s.write(frame); err != nil {
					return err
				}
			}
		}
	}
}

func (s *session) write(frame []byte) error {
	if err := s.transport.WriteFrame(frame); err != nil {
		s.log.WithError(err).Warn("stream write failed")
		return &TransportError{ConnID: s.id, Err: err}
	}
	return nil
}
