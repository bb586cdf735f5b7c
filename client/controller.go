package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/tenant-realtime/events"
	"github.com/yeremiapane/tenant-realtime/utils"
)

// ErrLivenessTimeout means neither data nor a keepalive arrived in time.
var ErrLivenessTimeout = errors.New("no frame received within liveness timeout")

// DefaultLivenessTimeout is three heartbeat intervals of the server default.
const DefaultLivenessTimeout = 45 * time.Second

// Controller keeps one stream open. Every time it reaches OPEN it calls
// Resync before applying streamed events, since nothing is replayed
// across reconnects.
type Controller struct {
	URL   string
	Token string
	HTTP  *http.Client

	Policy          RetryPolicy
	LivenessTimeout time.Duration

	// Resync refetches authoritative state. It runs on every OPEN.
	Resync func(ctx context.Context) error
	// OnEvent receives each decoded envelope in stream order.
	OnEvent func(env events.Envelope)
	// OnState receives every state transition.
	OnState func(s State)
	// OnError receives connection failures and dropped frames.
	OnError func(err error)

	mu    sync.RWMutex
	state State
	log   logrus.FieldLogger
}

func NewController(url, token string) *Controller {
	return &Controller{
		URL:             url,
		Token:           token,
		HTTP:            &http.Client{},
		Policy:          DefaultRetryPolicy,
		LivenessTimeout: DefaultLivenessTimeout,
		state:           StateClosed,
		log:             utils.InfoLogger.WithField("component", "stream-client"),
	}
}

// State is the current connection state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()
	if changed && c.OnState != nil {
		c.OnState(s)
	}
}

func (c *Controller) report(err error) {
	if c.OnError != nil {
		c.OnError(err)
	}
	if c.log != nil {
		c.log.WithError(err).Debug("stream error")
	}
}

// Run connects and reconnects until ctx is cancelled, then returns in the
// CLOSED state. Authorization failures are reported and retried like any
// other failure.
func (c *Controller) Run(ctx context.Context) error {
	defer c.setState(StateClosed)

	var attempt uint32
	for {
		c.setState(StateConnecting)
		opened, err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			c.report(err)
		}
		if opened {
			attempt = 0
		}
		attempt++

		c.setState(StateReconnecting)
		delay := computeBackoff(c.Policy, attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

type readResult struct {
	frame events.Frame
	err   error
}

// session runs one connection. opened reports whether it reached OPEN.
func (c *Controller) session(ctx context.Context) (opened bool, err error) {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(sctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return false, &StatusError{Code: resp.StatusCode, Message: string(msg)}
	}

	c.setState(StateOpen)
	if c.Resync != nil {
		if err := c.Resync(sctx); err != nil {
			return true, fmt.Errorf("resync: %w", err)
		}
	}

	frames := make(chan readResult)
	go func() {
		dec := events.NewDecoder(resp.Body)
		for {
			fr, err := dec.Next()
			select {
			case frames <- readResult{frame: fr, err: err}:
			case <-sctx.Done():
				return
			}
			if err != nil && !errors.Is(err, events.ErrMalformedEvent) {
				return
			}
		}
	}()

	liveness := c.LivenessTimeout
	if liveness <= 0 {
		liveness = DefaultLivenessTimeout
	}
	timer := time.NewTimer(liveness)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return true, nil
		case <-timer.C:
			return true, ErrLivenessTimeout
		case r := <-frames:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(liveness)

			switch {
			case r.err == nil:
				if r.frame.Kind == events.FrameEvent && c.OnEvent != nil {
					c.OnEvent(r.frame.Envelope)
				}
			case errors.Is(r.err, events.ErrMalformedEvent):
				c.report(r.err)
			case errors.Is(r.err, io.EOF):
				return true, io.ErrUnexpectedEOF
			default:
				return true, r.err
			}
		}
	}
}
