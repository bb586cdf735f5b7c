package events

import "time"

// SectionStatus is the health of one snapshot section.
type SectionStatus string

const (
	StatusOperational SectionStatus = "OPERATIONAL"
	StatusDegraded    SectionStatus = "DEGRADED"
	StatusOutage      SectionStatus = "OUTAGE"
)

// Section is one named part of a MetricsSnapshot. Error is set when the
// section could only be partially computed.
type Section struct {
	Status SectionStatus  `json:"status"`
	Value  any            `json:"value,omitempty"`
	Detail map[string]any `json:"detail,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// MetricsSnapshot is immutable once published; a newer snapshot replaces
// it as a whole.
type MetricsSnapshot struct {
	ComputedAt time.Time          `json:"computedAt"`
	Scope      string             `json:"scope"`
	Status     SectionStatus      `json:"status"`
	Sections   map[string]Section `json:"sections"`
}
