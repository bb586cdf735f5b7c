// Package client consumes the notification stream: it keeps a connection
// open with backoff and liveness detection, resynchronizes after every
// reconnect, and applies events idempotently to a local feed.
package client

// State is the connection state shown as the live indicator.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}
