// Package engine decides, from a fresh probe outcome and the stored state of
// a target, the target's next state and the side effects that are owed.
// Apply and Commit are pure; the scheduler owns I/O and persistence.
package engine

import (
	"time"

	"github.com/hamed0406/sitewatch/internal/domain"
)

type RemediationPolicy string

const (
	// RemediateOnce fires at most once per continuous outage.
	RemediateOnce RemediationPolicy = "once"
	// RemediateRepeat fires every RemediationThreshold consecutive failures.
	RemediateRepeat RemediationPolicy = "repeat"
)

type Policy struct {
	FailureThreshold     uint // consecutive failures before Down; 0 means 1
	RemediationThreshold uint // 0 disables remediation
	RemediationPolicy    RemediationPolicy
	RepeatInterval       time.Duration // 0 disables down reminders
}

func (p Policy) failureThreshold() uint {
	if p.FailureThreshold == 0 {
		return 1
	}
	return p.FailureThreshold
}

// Apply folds one outcome into st. The returned state is meant to be
// persisted before any action is dispatched; LastNotifiedStatus is never
// advanced here except for the initial Up baseline, which owes nobody a
// message.
func Apply(p Policy, o domain.ProbeOutcome, st domain.TargetState) (domain.TargetState, []domain.Action) {
	st = normalize(st, o.TargetID)

	// Same outcome applied twice: only a notification that was never
	// committed is owed again.
	if !o.Timestamp.IsZero() && o.Timestamp.Equal(st.LastCheckedAt) {
		if a, ok := pendingNotify(st, o.Timestamp); ok {
			return st, []domain.Action{a}
		}
		return st, nil
	}

	now := o.Timestamp
	prev := st
	next := st
	next.LastCheckedAt = now

	if o.Reachable() {
		next.ConsecutiveFailures = 0
		next.CanonicalStatus = domain.StatusUp
		next.LastReason = ""
		if o.Fingerprint != "" {
			next.LastFingerprint = o.Fingerprint
		}
	} else {
		next.ConsecutiveFailures++
		next.LastReason = o.Reason
		if next.ConsecutiveFailures >= p.failureThreshold() {
			next.CanonicalStatus = domain.StatusDown
		}
	}

	if next.CanonicalStatus != prev.CanonicalStatus {
		next.LastTransitionAt = now
	}

	var actions []domain.Action

	if next.LastNotifiedStatus == domain.StatusUnknown &&
		next.CanonicalStatus == domain.StatusUp &&
		prev.CanonicalStatus != domain.StatusDown {
		next.LastNotifiedStatus = domain.StatusUp
	}
	if a, ok := pendingNotify(next, now); ok {
		actions = append(actions, a)
	}

	if prev.CanonicalStatus == domain.StatusUp && next.CanonicalStatus == domain.StatusUp &&
		o.Reachable() && prev.LastFingerprint != "" && o.Fingerprint != "" &&
		o.Fingerprint != prev.LastFingerprint {
		actions = append(actions, domain.Action{
			Kind:        domain.ActionContentChanged,
			TargetID:    next.TargetID,
			From:        domain.StatusUp,
			To:          domain.StatusUp,
			Fingerprint: o.Fingerprint,
			At:          now,
		})
	}

	if p.RepeatInterval > 0 &&
		next.CanonicalStatus == domain.StatusDown &&
		next.LastNotifiedStatus == domain.StatusDown &&
		!next.LastNotifiedAt.IsZero() &&
		now.Sub(next.LastNotifiedAt) >= p.RepeatInterval {
		actions = append(actions, domain.Action{
			Kind:     domain.ActionReminder,
			TargetID: next.TargetID,
			From:     domain.StatusDown,
			To:       domain.StatusDown,
			Reason:   next.LastReason,
			At:       now,
		})
	}

	if remediationDue(p, next) {
		actions = append(actions, domain.Action{
			Kind:     domain.ActionRemediate,
			TargetID: next.TargetID,
			From:     prev.CanonicalStatus,
			To:       next.CanonicalStatus,
			Reason:   next.LastReason,
			At:       now,
		})
		// recorded before the trigger runs; see Revert
		next.LastRemediatedAt = now
	}

	return next, actions
}

// Commit records that a was dispatched successfully at the given time.
func Commit(st domain.TargetState, a domain.Action, at time.Time) domain.TargetState {
	switch a.Kind {
	case domain.ActionNotify:
		st.LastNotifiedStatus = a.To
		st.LastNotifiedAt = at
	case domain.ActionReminder:
		st.LastNotifiedAt = at
	case domain.ActionRemediate:
		st.LastRemediatedAt = at
	}
	return st
}

// Revert undoes what Apply recorded for a that the dispatcher could not
// carry out. Only remediation is recorded ahead of dispatch; prev is the
// state Apply started from.
func Revert(st domain.TargetState, a domain.Action, prev domain.TargetState) domain.TargetState {
	if a.Kind == domain.ActionRemediate {
		st.LastRemediatedAt = prev.LastRemediatedAt
	}
	return st
}

func pendingNotify(st domain.TargetState, at time.Time) (domain.Action, bool) {
	if st.CanonicalStatus == domain.StatusUnknown || st.CanonicalStatus == st.LastNotifiedStatus {
		return domain.Action{}, false
	}
	return domain.Action{
		Kind:     domain.ActionNotify,
		TargetID: st.TargetID,
		From:     st.LastNotifiedStatus,
		To:       st.CanonicalStatus,
		Reason:   st.LastReason,
		At:       at,
	}, true
}

func remediationDue(p Policy, st domain.TargetState) bool {
	if p.RemediationThreshold == 0 || st.CanonicalStatus != domain.StatusDown {
		return false
	}
	if st.ConsecutiveFailures < p.RemediationThreshold {
		return false
	}
	if p.RemediationPolicy == RemediateRepeat {
		return st.ConsecutiveFailures%p.RemediationThreshold == 0
	}
	// once: nothing recorded since the outage began
	return st.LastRemediatedAt.Before(st.LastTransitionAt)
}

func normalize(st domain.TargetState, id domain.TargetID) domain.TargetState {
	if st.TargetID == "" {
		st.TargetID = id
	}
	if !st.CanonicalStatus.Valid() {
		st.CanonicalStatus = domain.StatusUnknown
	}
	if !st.LastNotifiedStatus.Valid() {
		st.LastNotifiedStatus = domain.StatusUnknown
	}
	return st
}
