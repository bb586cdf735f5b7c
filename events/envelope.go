package events

import (
	"fmt"
	"time"
)

// Envelope is the unit published on the bus. It is treated as immutable
// once published.
type Envelope struct {
	Event Name
	Scope Scope
	Data  Payload
	Ts    time.Time
}

// New builds a validated envelope stamped with the current time. The scope
// must be one the event is allowed to travel with.
func New(scope Scope, data Payload) (Envelope, error) {
	if data == nil {
		return Envelope{}, fmt.Errorf("%w: nil payload", errInvalidPayload)
	}
	if err := scope.Validate(); err != nil {
		return Envelope{}, err
	}
	name := data.EventName()
	if !AllowedScope(name, scope.Kind) {
		return Envelope{}, fmt.Errorf("%w: %s cannot be published with %s scope", ErrInvalidScope, name, scope.Kind)
	}
	if err := data.Validate(); err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: name, Scope: scope, Data: data, Ts: time.Now().UTC()}, nil
}

// MustNew is New for payloads built in code; it panics on error.
func MustNew(scope Scope, data Payload) Envelope {
	env, err := New(scope, data)
	if err != nil {
		panic(err)
	}
	return env
}
