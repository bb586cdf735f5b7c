package services

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/tenant-realtime/events"
	"github.com/yeremiapane/tenant-realtime/hub"
	"github.com/yeremiapane/tenant-realtime/utils"
)

// ErrStoreOwnedEvent rejects external events that describe notification
// or metrics state. Only NotificationService and MetricsAggregator emit those.
var ErrStoreOwnedEvent = errors.New("event is emitted by the server only")

// ingressEvents are the names external producers may publish.
var ingressEvents = map[events.Name]bool{
	events.NotificationBroadcast: true,
	events.SupportTicketNew:      true,
	events.SupportReply:          true,
	events.SystemAlert:           true,
}

// EventPublisher is the ingress for events produced outside the
// notification store: operator broadcasts, alerts, ticketing and billing.
type EventPublisher struct {
	Bus hub.Publisher
	log logrus.FieldLogger
}

func NewEventPublisher(bus hub.Publisher) *EventPublisher {
	return &EventPublisher{Bus: bus, log: utils.InfoLogger.WithField("component", "publisher")}
}

// Publish validates and publishes p under scope, returning the number of
// subscriptions that received it.
func (p *EventPublisher) Publish(scope events.Scope, payload events.Payload) (int, error) {
	env, err := events.New(scope, payload)
	if err != nil {
		return 0, err
	}
	n := p.Bus.Publish(env)
	p.log.WithFields(logrus.Fields{"event": env.Event, "scope": scope.Key(), "subscribers": n}).Info("event published")
	return n, nil
}

func (p *EventPublisher) Broadcast(a events.Announcement) (int, error) {
	if a.Type == "" {
		a.Type = "INFO"
	}
	return p.Publish(events.Global(), a)
}

func (p *EventPublisher) Alert(a events.Alert) (int, error) {
	return p.Publish(events.Global(), a)
}

// PublishRaw decodes an externally produced event and routes it. The scope
// is the narrowest one the event allows for the given org and user.
// Notification and metrics events are refused with ErrStoreOwnedEvent.
func (p *EventPublisher) PublishRaw(name events.Name, orgID, userID string, data json.RawMessage) (int, error) {
	if events.Known(name) && !ingressEvents[name] {
		return 0, fmt.Errorf("%w: %s", ErrStoreOwnedEvent, name)
	}
	payload, err := events.DecodePayload(name, data)
	if err != nil {
		return 0, err
	}
	scope, err := ResolveScope(name, orgID, userID)
	if err != nil {
		return 0, err
	}
	return p.Publish(scope, payload)
}

// ResolveScope picks the scope for an external event: a user scope when a
// user is named and allowed, then the org, then Global for org-less events.
func ResolveScope(name events.Name, orgID, userID string) (events.Scope, error) {
	switch {
	case orgID != "" && userID != "" && events.AllowedScope(name, events.ScopeUser):
		return events.User(orgID, userID), nil
	case orgID != "" && events.AllowedScope(name, events.ScopeOrg):
		return events.Org(orgID), nil
	case orgID == "" && events.AllowedScope(name, events.ScopeGlobal):
		return events.Global(), nil
	}
	return events.Scope{}, fmt.Errorf("%w: %s cannot be routed with org %q", events.ErrInvalidScope, name, orgID)
}
