package scheduler

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/engine"
	"github.com/hamed0406/sitewatch/internal/repo"
)

// process runs one target through probe, transition, persist and dispatch.
// The new state is written before any action leaves the process; each
// notification is committed only after it was delivered. A remediation is
// recorded as attempted in that first write, so it fires at most once even
// if the commit write is lost.
func (s *Scheduler) process(ctx context.Context, j job) result {
	t := j.target
	res := result{job: j}
	if ctx.Err() != nil {
		res.abandoned = true
		return res
	}

	ctx, span := s.tracer.Start(ctx, "scheduler.target", trace.WithAttributes(
		attribute.String("cycle_id", j.cycleID),
		attribute.String("target_id", string(t.ID)),
		attribute.String("url", t.URL),
	))
	defer span.End()
	log := s.log.With(zap.String("cycle_id", j.cycleID), zap.String("target_id", string(t.ID)))

	o := s.prober.Probe(ctx, t)
	o.TargetID = t.ID
	if o.Timestamp.IsZero() {
		o.Timestamp = s.now().UTC().Truncate(time.Microsecond)
	}
	if ctx.Err() != nil {
		// a probe cut short by shutdown says nothing about the target
		res.abandoned = true
		span.SetAttributes(attribute.Bool("abandoned", true))
		return res
	}

	stored, err := s.store.Get(ctx, t.ID)
	if err != nil {
		s.metrics.StoreError("get")
		res.err = repo.Wrap("get", t.ID, err)
		spanError(span, res.err)
		return res
	}
	st := domain.NewTargetState(t.ID)
	if stored != nil {
		st = *stored
	}

	o = o.Against(st.LastFingerprint)
	s.metrics.ObserveProbe(o)
	span.SetAttributes(attribute.String("outcome", string(o.Kind)))
	log.Debug("probe_done",
		zap.String("kind", string(o.Kind)),
		zap.String("reason", o.Reason),
		zap.Int("http_status", o.HTTPStatus),
		zap.Float64("latency_ms", o.LatencyMS),
	)

	next, actions := engine.Apply(s.opts.Policy, o, st)
	if ctx.Err() != nil {
		res.abandoned = true
		return res
	}

	if err := s.store.Put(ctx, next); err != nil {
		s.metrics.StoreError("put")
		res.err = repo.Wrap("put", t.ID, err)
		spanError(span, res.err)
		return res
	}
	res.state = next
	res.actions = actions
	s.metrics.SetStatus(t.ID, next.CanonicalStatus)

	if len(actions) == 0 {
		return res
	}

	// Delivery and the commit write finish even if shutdown has begun.
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.FinishTimeout)
	defer cancel()

	committed := next
	delivered, reverted := 0, 0
	for _, a := range actions {
		err := s.disp.Do(fctx, a, t)
		s.metrics.ObserveDispatch(a, err)
		if err != nil {
			res.failed++
			log.Warn("action_failed", zap.String("action", string(a.Kind)), zap.Error(err))
			if a.Kind == domain.ActionRemediate {
				// the hook refused; let the next cycle try again
				committed = engine.Revert(committed, a, st)
				reverted++
			}
			continue
		}
		delivered++
		committed = engine.Commit(committed, a, s.now())
	}
	span.SetAttributes(attribute.Int("actions", len(actions)), attribute.Int("delivered", delivered))

	if delivered == 0 && reverted == 0 {
		return res
	}
	if err := s.store.Put(fctx, committed); err != nil {
		s.metrics.StoreError("commit")
		res.err = repo.Wrap("put", t.ID, err)
		spanError(span, res.err)
		return res
	}
	res.state = committed
	return res
}
