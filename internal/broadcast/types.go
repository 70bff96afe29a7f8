package broadcast

import (
	"strings"
	"time"
)

// Status is the backend-authoritative lifecycle state of a broadcast.
//
// Valid transitions: pending -> {sent, failed, cancelled}. The terminal
// states never transition again; clients only observe these values, they
// never assign them.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSent, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the backend will never change this status again.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusCancelled || s == StatusFailed
}

// Priority orders broadcasts by urgency. Higher Rank() means more urgent.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// EventType is the closed set of semantic categories a broadcast can carry.
type EventType string

const (
	EventMaintenance     EventType = "maintenance"
	EventSystemStatus    EventType = "system_status"
	EventSecurityAlert   EventType = "security_alert"
	EventISPIssue        EventType = "isp_issue"
	EventDeviceOffline   EventType = "device_offline"
	EventDeviceOnline    EventType = "device_online"
	EventDeviceDegraded  EventType = "device_degraded"
	EventAnomalyDetected EventType = "anomaly_detected"
	EventHighLatency     EventType = "high_latency"
	EventPacketLoss      EventType = "packet_loss"
	EventDeviceAdded     EventType = "device_added"
	EventDeviceRemoved   EventType = "device_removed"
	EventCartographerUp  EventType = "cartographer_up"
	EventCartographerDn  EventType = "cartographer_down"
)

var eventTypes = map[EventType]struct{}{
	EventMaintenance:     {},
	EventSystemStatus:    {},
	EventSecurityAlert:   {},
	EventISPIssue:        {},
	EventDeviceOffline:   {},
	EventDeviceOnline:    {},
	EventDeviceDegraded:  {},
	EventAnomalyDetected: {},
	EventHighLatency:     {},
	EventPacketLoss:      {},
	EventDeviceAdded:     {},
	EventDeviceRemoved:   {},
	EventCartographerUp:  {},
	EventCartographerDn:  {},
}

func (e EventType) Valid() bool {
	_, ok := eventTypes[e]
	return ok
}

// ScheduledBroadcast is one notification scheduled for delivery to all
// members of a network. Field names match the backend wire format.
//
// seen_at is set by the backend the first time ANY client acknowledges the
// broadcast after sending; it is assigned at most once and never cleared.
type ScheduledBroadcast struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	EventType EventType `json:"event_type"`
	Priority  Priority  `json:"priority"`
	NetworkID string    `json:"network_id"`

	// ScheduledAt is the intended delivery time (UTC, ISO-8601 on the wire).
	ScheduledAt time.Time `json:"scheduled_at"`
	// Timezone is the originating timezone label; display-only.
	Timezone string `json:"timezone,omitempty"`

	Status Status `json:"status"`

	SentAt *time.Time `json:"sent_at,omitempty"`
	// SeenAt comes back as a raw string because some backend paths emit
	// naive timestamps without a zone marker. Use SeenTime() to read it.
	SeenAt        string `json:"seen_at,omitempty"`
	UsersNotified int    `json:"users_notified,omitempty"`
}

// SeenTime parses the seen_at field, treating naive timestamps as UTC.
// ok is false when seen_at is absent or unparseable.
func (b *ScheduledBroadcast) SeenTime() (t time.Time, ok bool) {
	s := strings.TrimSpace(b.SeenAt)
	if s == "" {
		return time.Time{}, false
	}
	return ParseTimestampUTC(s)
}

// Seen reports whether the backend has recorded a seen acknowledgement.
// It is true even when the timestamp itself fails to parse; callers that
// need the time should use SeenTime() and fail open on !ok.
func (b *ScheduledBroadcast) Seen() bool {
	return strings.TrimSpace(b.SeenAt) != ""
}
