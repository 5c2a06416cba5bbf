package engine

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/sitewatch/internal/domain"
)

var t0 = time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)

// seq feeds outcomes one minute apart and commits every action, as a
// scheduler with a healthy notifier would.
type seq struct {
	p  Policy
	st domain.TargetState
	n  int
	id domain.TargetID
}

func newSeq(id domain.TargetID, p Policy) *seq {
	return &seq{p: p, st: domain.NewTargetState(id), id: id}
}

func (s *seq) outcome(kind domain.OutcomeKind, reason, fp string) domain.ProbeOutcome {
	s.n++
	return domain.ProbeOutcome{
		TargetID:    s.id,
		Kind:        kind,
		Reason:      reason,
		Fingerprint: fp,
		Timestamp:   t0.Add(time.Duration(s.n) * time.Minute),
	}
}

func (s *seq) step(o domain.ProbeOutcome) []domain.Action {
	next, actions := Apply(s.p, o, s.st)
	for _, a := range actions {
		next = Commit(next, a, a.At)
	}
	s.st = next
	return actions
}

func (s *seq) up(fp string) []domain.Action {
	return s.step(s.outcome(domain.OutcomeReachable, "", fp))
}

func (s *seq) down(reason string) []domain.Action {
	return s.step(s.outcome(domain.OutcomeUnreachable, reason, ""))
}

func notify(from, to domain.Status) func(domain.Action) bool {
	return func(a domain.Action) bool { return a.Kind == domain.ActionNotify && a.From == from && a.To == to }
}

func kinds(as []domain.Action) []domain.ActionKind {
	out := make([]domain.ActionKind, 0, len(as))
	for _, a := range as {
		out = append(out, a.Kind)
	}
	return out
}

func TestScenario_UpDownUp(t *testing.T) {
	s := newSeq("T1", Policy{FailureThreshold: 1})

	assert.Empty(t, s.up("hashA"))

	a := s.down(domain.ReasonTimeout)
	require.Len(t, a, 1)
	assert.True(t, notify(domain.StatusUp, domain.StatusDown)(a[0]), "got %+v", a[0])
	assert.Equal(t, domain.ReasonTimeout, a[0].Reason)

	a = s.up("hashA")
	require.Len(t, a, 1)
	assert.True(t, notify(domain.StatusDown, domain.StatusUp)(a[0]), "got %+v", a[0])

	assert.Equal(t, domain.StatusUp, s.st.CanonicalStatus)
	assert.Equal(t, domain.StatusUp, s.st.LastNotifiedStatus)
	assert.Zero(t, s.st.ConsecutiveFailures)
}

func TestScenario_RemediationOncePerOutage(t *testing.T) {
	s := newSeq("T2", Policy{FailureThreshold: 1, RemediationThreshold: 2, RemediationPolicy: RemediateOnce})

	a := s.down(domain.ReasonConnectionRefused)
	require.Len(t, a, 1)
	assert.True(t, notify(domain.StatusUnknown, domain.StatusDown)(a[0]), "got %+v", a[0])

	a = s.down(domain.ReasonConnectionRefused)
	require.Len(t, a, 1)
	assert.Equal(t, domain.ActionRemediate, a[0].Kind)
	assert.Equal(t, domain.TargetID("T2"), a[0].TargetID)

	assert.Empty(t, s.down(domain.ReasonConnectionRefused))
	assert.Empty(t, s.down(domain.ReasonConnectionRefused))

	// a new outage may remediate again
	require.Len(t, s.up("x"), 1)
	require.Len(t, s.down(domain.ReasonTimeout), 1)
	a = s.down(domain.ReasonTimeout)
	assert.Equal(t, []domain.ActionKind{domain.ActionRemediate}, kinds(a))
}

func TestRemediation_FailedTriggerRetriesNextCycle(t *testing.T) {
	p := Policy{FailureThreshold: 1, RemediationThreshold: 2}
	s := newSeq("T", p)
	s.down("timeout")

	// second failure: remediation emitted, the hook call fails
	next, a := Apply(p, s.outcome(domain.OutcomeUnreachable, "timeout", ""), s.st)
	require.Equal(t, []domain.ActionKind{domain.ActionRemediate}, kinds(a))
	s.st = Revert(next, a[0], s.st)
	assert.True(t, s.st.LastRemediatedAt.IsZero())

	a = s.down("timeout")
	assert.Equal(t, []domain.ActionKind{domain.ActionRemediate}, kinds(a))
	assert.Empty(t, s.down("timeout"))
}

func TestRemediation_RecordedBeforeDispatch(t *testing.T) {
	p := Policy{FailureThreshold: 1, RemediationThreshold: 2, RemediationPolicy: RemediateOnce}
	s := newSeq("T", p)
	s.down("timeout")

	// the trigger ran but its commit was never persisted
	next, a := Apply(p, s.outcome(domain.OutcomeUnreachable, "timeout", ""), s.st)
	require.Equal(t, []domain.ActionKind{domain.ActionRemediate}, kinds(a))
	assert.Equal(t, a[0].At, next.LastRemediatedAt)
	s.st = next

	for i := 0; i < 4; i++ {
		assert.Empty(t, s.down("timeout"))
	}
}

func TestRemediation_RepeatPolicy(t *testing.T) {
	s := newSeq("T", Policy{FailureThreshold: 1, RemediationThreshold: 2, RemediationPolicy: RemediateRepeat})
	var fired []int
	for i := 1; i <= 6; i++ {
		for _, a := range s.down("timeout") {
			if a.Kind == domain.ActionRemediate {
				fired = append(fired, i)
			}
		}
	}
	assert.Equal(t, []int{2, 4, 6}, fired)
}

func TestRemediation_DisabledByDefault(t *testing.T) {
	s := newSeq("T", Policy{FailureThreshold: 1})
	for i := 0; i < 10; i++ {
		for _, a := range s.down("timeout") {
			assert.NotEqual(t, domain.ActionRemediate, a.Kind)
		}
	}
}

func TestDebounce_SubThresholdFailuresDoNotNotify(t *testing.T) {
	for _, start := range []string{"unknown", "up"} {
		t.Run(start, func(t *testing.T) {
			s := newSeq("T", Policy{FailureThreshold: 3})
			if start == "up" {
				s.up("a")
			}
			assert.Empty(t, s.down("timeout"))
			assert.Empty(t, s.down("timeout"))
			assert.Empty(t, s.up("a"))
			assert.NotEqual(t, domain.StatusDown, s.st.CanonicalStatus)
		})
	}
}

func TestDebounce_ThresholdReached(t *testing.T) {
	s := newSeq("T", Policy{FailureThreshold: 3})
	s.up("a")
	assert.Empty(t, s.down("timeout"))
	assert.Equal(t, domain.StatusUp, s.st.CanonicalStatus)
	assert.Empty(t, s.down("timeout"))
	a := s.down("timeout")
	require.Len(t, a, 1)
	assert.True(t, notify(domain.StatusUp, domain.StatusDown)(a[0]))
	assert.Equal(t, uint(3), s.st.ConsecutiveFailures)
}

func TestContentChange_NotifiesWithoutTouchingLastNotified(t *testing.T) {
	s := newSeq("T", Policy{FailureThreshold: 1})
	s.up("hashA")
	before := s.st

	a := s.up("hashB")
	require.Len(t, a, 1)
	assert.Equal(t, domain.ActionContentChanged, a[0].Kind)
	assert.Equal(t, "hashB", a[0].Fingerprint)
	assert.Equal(t, before.LastNotifiedStatus, s.st.LastNotifiedStatus)
	assert.Equal(t, before.LastNotifiedAt, s.st.LastNotifiedAt)
	assert.Equal(t, "hashB", s.st.LastFingerprint)

	assert.Empty(t, s.up("hashB"))
}

func TestContentChange_NotOnRecovery(t *testing.T) {
	s := newSeq("T", Policy{FailureThreshold: 1})
	s.up("hashA")
	s.down("timeout")
	a := s.up("hashB")
	assert.Equal(t, []domain.ActionKind{domain.ActionNotify}, kinds(a))
	assert.Equal(t, "hashB", s.st.LastFingerprint)
}

func TestFailedDispatch_NotifyIsReEmitted(t *testing.T) {
	p := Policy{FailureThreshold: 1}
	s := newSeq("T", p)
	s.up("a")

	// dispatch fails: phase-1 state persisted, nothing committed
	next, a := Apply(p, s.outcome(domain.OutcomeUnreachable, "timeout", ""), s.st)
	require.Len(t, a, 1)
	s.st = next
	assert.Equal(t, domain.StatusUp, s.st.LastNotifiedStatus)

	a = s.down("timeout")
	require.Len(t, a, 1)
	assert.True(t, notify(domain.StatusUp, domain.StatusDown)(a[0]))
	assert.Equal(t, domain.StatusDown, s.st.LastNotifiedStatus)
}

func TestRecovery_NotifiedEvenIfDownNeverDelivered(t *testing.T) {
	p := Policy{FailureThreshold: 1}
	st := domain.NewTargetState("T")
	st, a := Apply(p, domain.ProbeOutcome{TargetID: "T", Kind: domain.OutcomeUnreachable, Reason: "timeout", Timestamp: t0}, st)
	require.Len(t, a, 1) // never committed

	_, a = Apply(p, domain.ProbeOutcome{TargetID: "T", Kind: domain.OutcomeReachable, Fingerprint: "x", Timestamp: t0.Add(time.Minute)}, st)
	require.Len(t, a, 1)
	assert.Equal(t, domain.StatusUp, a[0].To)
}

func TestIdempotentReplay(t *testing.T) {
	p := Policy{FailureThreshold: 1, RemediationThreshold: 2}
	st := domain.NewTargetState("T")
	o1 := domain.ProbeOutcome{TargetID: "T", Kind: domain.OutcomeUnreachable, Reason: "timeout", Timestamp: t0}

	st1, a1 := Apply(p, o1, st)
	require.Len(t, a1, 1)

	// crash before advance: replay re-sends only the notification
	st2, a2 := Apply(p, o1, st1)
	assert.Equal(t, st1, st2)
	assert.Equal(t, a1, a2)

	// advanced: replay is silent
	committed := Commit(st1, a1[0], t0)
	st3, a3 := Apply(p, o1, committed)
	assert.Empty(t, a3)
	assert.Equal(t, committed, st3)
}

func TestReminder(t *testing.T) {
	s := newSeq("T", Policy{FailureThreshold: 1, RepeatInterval: 3 * time.Minute})
	s.up("a")
	require.Len(t, s.down("timeout"), 1) // minute 2
	assert.Empty(t, s.down("timeout"))   // 3
	assert.Empty(t, s.down("timeout"))   // 4
	a := s.down("timeout")               // 5
	assert.Equal(t, []domain.ActionKind{domain.ActionReminder}, kinds(a))
	assert.Empty(t, s.down("timeout"))
	assert.Equal(t, domain.StatusDown, s.st.LastNotifiedStatus)
}

func TestApply_FirstProbeCreatesState(t *testing.T) {
	next, _ := Apply(Policy{}, domain.ProbeOutcome{TargetID: "new", Kind: domain.OutcomeUnreachable, Reason: "timeout", Timestamp: t0}, domain.TargetState{})
	assert.Equal(t, domain.TargetID("new"), next.TargetID)
	assert.Equal(t, domain.StatusDown, next.CanonicalStatus)
	assert.Equal(t, domain.StatusUnknown, next.LastNotifiedStatus)
	assert.Equal(t, t0, next.LastTransitionAt)
	assert.Equal(t, t0, next.LastCheckedAt)
}

func TestApply_IsPure(t *testing.T) {
	p := Policy{FailureThreshold: 2, RemediationThreshold: 3}
	st := domain.TargetState{TargetID: "T", CanonicalStatus: domain.StatusUp, LastNotifiedStatus: domain.StatusUp, ConsecutiveFailures: 1, LastFingerprint: "a"}
	o := domain.ProbeOutcome{TargetID: "T", Kind: domain.OutcomeUnreachable, Reason: "timeout", Timestamp: t0}

	s1, a1 := Apply(p, o, st)
	s2, a2 := Apply(p, o, st)
	assert.Equal(t, s1, s2)
	assert.Equal(t, a1, a2)
	assert.Equal(t, uint(1), st.ConsecutiveFailures, "input must not be mutated")
}

func randomOutcomes(r *rand.Rand, n int) []domain.OutcomeKind {
	out := make([]domain.OutcomeKind, n)
	for i := range out {
		switch r.Intn(3) {
		case 0:
			out[i] = domain.OutcomeUnreachable
		default:
			out[i] = domain.OutcomeReachable
		}
	}
	return out
}

func TestProperty_NoRedundantNotify(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for run := 0; run < 200; run++ {
		p := Policy{FailureThreshold: uint(1 + r.Intn(3)), RemediationThreshold: uint(r.Intn(5)), RepeatInterval: time.Duration(r.Intn(3)) * time.Minute}
		st := domain.NewTargetState("T")
		for i, k := range randomOutcomes(r, 40) {
			o := domain.ProbeOutcome{TargetID: "T", Kind: k, Fingerprint: []string{"a", "b"}[r.Intn(2)], Reason: "timeout", Timestamp: t0.Add(time.Duration(i) * time.Minute)}
			if k == domain.OutcomeUnreachable {
				o.Fingerprint = ""
			}
			next, actions := Apply(p, o, st)
			for _, a := range actions {
				if a.Kind == domain.ActionNotify {
					require.NotEqual(t, st.LastNotifiedStatus, a.To, "run %d step %d: redundant notify", run, i)
					require.Equal(t, next.CanonicalStatus, a.To)
				}
				// flaky notifier: commit about half the time
				if r.Intn(2) == 0 {
					next = Commit(next, a, o.Timestamp)
				}
			}
			st = next
		}
	}
}

func TestProperty_OneDownOneUpPerOutage(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for run := 0; run < 200; run++ {
		th := 1 + r.Intn(4)
		s := newSeq("T", Policy{FailureThreshold: uint(th)})

		var all []domain.Action
		// noise that never reaches the threshold
		for i := r.Intn(5); i > 0; i-- {
			all = append(all, s.up("a")...)
			for j := r.Intn(th); j > 0; j-- {
				all = append(all, s.down("timeout")...)
			}
		}
		for i := th + r.Intn(4); i > 0; i-- {
			all = append(all, s.down("timeout")...)
		}
		for i := 1 + r.Intn(3); i > 0; i-- {
			all = append(all, s.up("a")...)
		}

		var downs, ups int
		for _, a := range all {
			if a.Kind != domain.ActionNotify {
				continue
			}
			switch a.To {
			case domain.StatusDown:
				downs++
			case domain.StatusUp:
				ups++
			}
		}
		require.Equal(t, 1, downs, "run %d threshold %d", run, th)
		require.Equal(t, 1, ups, "run %d threshold %d", run, th)
	}
}
