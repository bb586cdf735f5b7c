// Package stream runs one long-lived session per connected client: it
// registers the caller's scope on the bus, writes queued envelopes in
// arrival order, and emits periodic keepalives until either side goes away.
package stream

import (
	"fmt"
)

// Transport is the write side of a client connection.
type Transport interface {
	// WriteFrame writes one encoded frame and pushes it to the client.
	WriteFrame(frame []byte) error
	// Closed fires when the peer is gone.
	Closed() <-chan struct{}
}

// TransportError ends a session. Recovery is the client's job.
type TransportError struct {
	ConnID string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("stream %s: transport: %v", e.ConnID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
