package domain

import (
	"strconv"
	"time"
)

type TargetID string

// Target is one monitored site. Immutable once loaded from configuration.
type Target struct {
	ID       TargetID `json:"id"`
	URL      string   `json:"url"`
	Selector string   `json:"selector,omitempty"`
	Position int      `json:"position"`
}

type Status string

const (
	StatusUnknown Status = "unknown"
	StatusUp      Status = "up"
	StatusDown    Status = "down"
)

func (s Status) Valid() bool {
	switch s {
	case StatusUnknown, StatusUp, StatusDown:
		return true
	}
	return false
}

type OutcomeKind string

const (
	OutcomeReachable      OutcomeKind = "reachable"
	OutcomeContentChanged OutcomeKind = "content_changed"
	OutcomeUnreachable    OutcomeKind = "unreachable"
)

// Coarse unreachable reasons. Raw error text never ends up in an outcome so
// persisted state compares deterministically.
const (
	ReasonTimeout           = "timeout"
	ReasonConnectionRefused = "connection-refused"
	ReasonDNS               = "dns-error"
	ReasonTLS               = "tls-error"
	ReasonSelectorMiss      = "selector-miss"
	ReasonBody              = "body-error"
	ReasonRequest           = "request-error"
	ReasonNetwork           = "network-error"
)

// HTTPErrorReason renders the reason for a >= 400 response.
func HTTPErrorReason(code int) string {
	return "http-error:" + strconv.Itoa(code)
}

// ProbeOutcome is the normalized result of one check. Never persisted.
type ProbeOutcome struct {
	TargetID    TargetID    `json:"target_id"`
	Kind        OutcomeKind `json:"kind"`
	Reason      string      `json:"reason,omitempty"`
	Fingerprint string      `json:"fingerprint,omitempty"`
	HTTPStatus  int         `json:"http_status,omitempty"`
	LatencyMS   float64     `json:"latency_ms"`
	Timestamp   time.Time   `json:"timestamp"`
}

func (o ProbeOutcome) Reachable() bool {
	return o.Kind == OutcomeReachable || o.Kind == OutcomeContentChanged
}

// Against relabels a reachable outcome as content_changed when its
// fingerprint differs from a known previous one.
func (o ProbeOutcome) Against(prevFingerprint string) ProbeOutcome {
	if o.Kind == OutcomeReachable && prevFingerprint != "" && o.Fingerprint != "" && o.Fingerprint != prevFingerprint {
		o.Kind = OutcomeContentChanged
	}
	return o
}

// TargetState is the persisted, per-target record driven by the engine.
type TargetState struct {
	TargetID            TargetID  `json:"target_id"`
	CanonicalStatus     Status    `json:"canonical_status"`
	LastFingerprint     string    `json:"last_fingerprint,omitempty"`
	ConsecutiveFailures uint      `json:"consecutive_failures"`
	LastNotifiedStatus  Status    `json:"last_notified_status"`
	LastNotifiedAt      time.Time `json:"last_notified_at"`
	LastTransitionAt    time.Time `json:"last_transition_at"`
	LastCheckedAt       time.Time `json:"last_checked_at"`
	LastRemediatedAt    time.Time `json:"last_remediated_at"`
	LastReason          string    `json:"last_reason,omitempty"`
}

func NewTargetState(id TargetID) TargetState {
	return TargetState{
		TargetID:           id,
		CanonicalStatus:    StatusUnknown,
		LastNotifiedStatus: StatusUnknown,
	}
}

type ActionKind string

const (
	ActionNotify         ActionKind = "notify"
	ActionContentChanged ActionKind = "content_changed"
	ActionReminder       ActionKind = "reminder"
	ActionRemediate      ActionKind = "remediate"
)

// Action is an outbound side effect decided by the engine.
type Action struct {
	Kind        ActionKind `json:"kind"`
	TargetID    TargetID   `json:"target_id"`
	From        Status     `json:"from,omitempty"`
	To          Status     `json:"to,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	Fingerprint string     `json:"fingerprint,omitempty"`
	At          time.Time  `json:"at"`
}

func (a Action) IsNotification() bool {
	return a.Kind == ActionNotify || a.Kind == ActionContentChanged || a.Kind == ActionReminder
}
