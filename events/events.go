// Package events defines the envelopes exchanged on the bus: the closed set
// of event names, one payload type per name, and the text frame codec used
// on the wire.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yeremiapane/tenant-realtime/models"
)

// Name identifies an event on the wire.
type Name string

const (
	NotificationNew       Name = "notification:new"
	NotificationRead      Name = "notification:read"
	NotificationReadAll   Name = "notification:readAll"
	NotificationBroadcast Name = "notification:broadcast"
	SupportTicketNew      Name = "support:ticket:new"
	SupportReply          Name = "support:reply"
	SystemAlert           Name = "system:alert"
	MetricsUpdate         Name = "metrics:update"
)

// Payload is implemented by every event variant.
type Payload interface {
	EventName() Name
	Validate() error
}

var errInvalidPayload = errors.New("invalid payload")

func invalid(name Name, format string, args ...any) error {
	return fmt.Errorf("%w for %s: %s", errInvalidPayload, name, fmt.Sprintf(format, args...))
}

// NotificationCreated carries the persisted notification.
type NotificationCreated struct {
	models.Notification
}

func (NotificationCreated) EventName() Name { return NotificationNew }

func (p NotificationCreated) Validate() error {
	if p.ID == 0 {
		return invalid(NotificationNew, "missing id")
	}
	if p.OrgID == "" {
		return invalid(NotificationNew, "missing orgId")
	}
	if p.Message == "" {
		return invalid(NotificationNew, "missing message")
	}
	return nil
}

type NotificationMarkedRead struct {
	ID uint `json:"id"`
}

func (NotificationMarkedRead) EventName() Name { return NotificationRead }

func (p NotificationMarkedRead) Validate() error {
	if p.ID == 0 {
		return invalid(NotificationRead, "missing id")
	}
	return nil
}

// NotificationsMarkedRead reports a bulk mark-read; Count is the number of
// rows that changed.
type NotificationsMarkedRead struct {
	Count int64 `json:"count"`
}

func (NotificationsMarkedRead) EventName() Name { return NotificationReadAll }

func (p NotificationsMarkedRead) Validate() error {
	if p.Count < 0 {
		return invalid(NotificationReadAll, "negative count")
	}
	return nil
}

// Announcement is a platform-wide message from an operator.
type Announcement struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (Announcement) EventName() Name { return NotificationBroadcast }

func (p Announcement) Validate() error {
	if p.Message == "" {
		return invalid(NotificationBroadcast, "missing message")
	}
	if p.Type != "" && !models.ValidNotificationType(p.Type) {
		return invalid(NotificationBroadcast, "unknown type %q", p.Type)
	}
	return nil
}

type TicketOpened struct {
	TicketID  string `json:"id"`
	Title     string `json:"title"`
	UserEmail string `json:"userEmail,omitempty"`
	Priority  string `json:"priority,omitempty"`
}

func (TicketOpened) EventName() Name { return SupportTicketNew }

func (p TicketOpened) Validate() error {
	if p.TicketID == "" {
		return invalid(SupportTicketNew, "missing id")
	}
	if p.Title == "" {
		return invalid(SupportTicketNew, "missing title")
	}
	return nil
}

type TicketReply struct {
	TicketID string    `json:"ticketId"`
	ReplyID  string    `json:"replyId,omitempty"`
	Author   string    `json:"author,omitempty"`
	Body     string    `json:"body"`
	SentAt   time.Time `json:"sentAt"`
}

func (TicketReply) EventName() Name { return SupportReply }

func (p TicketReply) Validate() error {
	if p.TicketID == "" {
		return invalid(SupportReply, "missing ticketId")
	}
	if p.Body == "" {
		return invalid(SupportReply, "missing body")
	}
	return nil
}

const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

type Alert struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Source   string `json:"source,omitempty"`
}

func (Alert) EventName() Name { return SystemAlert }

func (p Alert) Validate() error {
	switch p.Severity {
	case SeverityInfo, SeverityWarning, SeverityCritical:
	default:
		return invalid(SystemAlert, "unknown severity %q", p.Severity)
	}
	if p.Message == "" {
		return invalid(SystemAlert, "missing message")
	}
	return nil
}

func (MetricsSnapshot) EventName() Name { return MetricsUpdate }

func (p MetricsSnapshot) Validate() error {
	if p.ComputedAt.IsZero() {
		return invalid(MetricsUpdate, "missing computedAt")
	}
	if len(p.Sections) == 0 {
		return invalid(MetricsUpdate, "no sections")
	}
	return nil
}

// taxonomy lists, per event, the scopes it may be published with and the
// decoder for its payload.
var taxonomy = map[Name]struct {
	scopes []ScopeKind
	decode func(json.RawMessage) (Payload, error)
}{
	NotificationNew:       {[]ScopeKind{ScopeOrg, ScopeUser}, decodeAs[NotificationCreated]},
	NotificationRead:      {[]ScopeKind{ScopeOrg}, decodeAs[NotificationMarkedRead]},
	NotificationReadAll:   {[]ScopeKind{ScopeOrg}, decodeAs[NotificationsMarkedRead]},
	NotificationBroadcast: {[]ScopeKind{ScopeGlobal}, decodeAs[Announcement]},
	SupportTicketNew:      {[]ScopeKind{ScopeOrg}, decodeAs[TicketOpened]},
	SupportReply:          {[]ScopeKind{ScopeOrg}, decodeAs[TicketReply]},
	SystemAlert:           {[]ScopeKind{ScopeGlobal}, decodeAs[Alert]},
	MetricsUpdate:         {[]ScopeKind{ScopeOrg, ScopeGlobal}, decodeAs[MetricsSnapshot]},
}

func decodeAs[T Payload](raw json.RawMessage) (Payload, error) {
	var p T
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return p, nil
}

// DecodePayload parses raw as the payload registered for name and
// validates it.
func DecodePayload(name Name, raw json.RawMessage) (Payload, error) {
	entry, ok := taxonomy[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown event %q", ErrMalformedEvent, name)
	}
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	p, err := entry.decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, name, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return p, nil
}

// Known reports whether name is part of the taxonomy.
func Known(name Name) bool {
	_, ok := taxonomy[name]
	return ok
}

// AllowedScope reports whether name may be published with kind.
func AllowedScope(name Name, kind ScopeKind) bool {
	entry, ok := taxonomy[name]
	if !ok {
		return false
	}
	for _, k := range entry.scopes {
		if k == kind {
			return true
		}
	}
	return false
}
