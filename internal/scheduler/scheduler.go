package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/engine"
	"github.com/hamed0406/sitewatch/internal/metrics"
	"github.com/hamed0406/sitewatch/internal/notify"
	"github.com/hamed0406/sitewatch/internal/probe"
	"github.com/hamed0406/sitewatch/internal/repo"
)

// Dispatcher executes engine actions; see dispatch.Dispatcher.
type Dispatcher interface {
	Do(ctx context.Context, a domain.Action, t domain.Target) error
	Announce(ctx context.Context, title, text string) error
}

type Options struct {
	Interval       time.Duration
	Concurrency    int
	ShutdownGrace  time.Duration // in-flight jobs are abandoned after this
	FinishTimeout  time.Duration // bound on dispatch + phase-2 write per target
	Policy         engine.Policy
	StartupMessage bool
	Location       *time.Location
	Metrics        *metrics.Metrics
	Tracer         trace.Tracer
}

// CycleReport summarises one cycle.
type CycleReport struct {
	CycleID        string
	Checked        int
	Skipped        int
	Abandoned      int
	StoreErrors    int
	DispatchErrors int
	Actions        int
}

type Scheduler struct {
	log     *zap.Logger
	targets []domain.Target
	prober  probe.Prober
	store   repo.StateStore
	disp    Dispatcher
	opts    Options
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time

	busy    *inflight
	trigger chan struct{}
}

func New(
	log *zap.Logger,
	targets []domain.Target,
	prober probe.Prober,
	store repo.StateStore,
	disp Dispatcher,
	opts Options,
) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = 15 * time.Second
	}
	if opts.FinishTimeout <= 0 {
		opts.FinishTimeout = time.Minute
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	return &Scheduler{
		log:     log,
		targets: append([]domain.Target(nil), targets...),
		prober:  prober,
		store:   store,
		disp:    disp,
		opts:    opts,
		metrics: opts.Metrics,
		tracer:  tracer,
		now:     time.Now,
		busy:    newInflight(),
		trigger: make(chan struct{}, 1),
	}
}

// Trigger requests an extra cycle as soon as possible. It returns false
// when one is already pending.
func (s *Scheduler) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Run does an immediate cycle, then one per interval and one per Trigger,
// until ctx is cancelled. Outstanding jobs then get ShutdownGrace to finish
// before they are abandoned.
func (s *Scheduler) Run(ctx context.Context) error {
	workCtx, abandon := context.WithCancel(context.WithoutCancel(ctx))
	defer abandon()

	p := newPool(workCtx, ctx.Done(), s.opts.Concurrency, len(s.targets), s.process, s.busy.Release)
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		s.collect(p.results)
	}()

	s.log.Info("scheduler_started",
		zap.Int("targets", len(s.targets)),
		zap.Duration("interval", s.opts.Interval),
		zap.Int("concurrency", s.opts.Concurrency),
	)
	if s.opts.StartupMessage {
		s.announce(ctx)
	}

	t := time.NewTicker(s.opts.Interval)
	defer t.Stop()

	s.runCycle(ctx, p)
	for running := true; running; {
		select {
		case <-ctx.Done():
			running = false
		case <-t.C:
			s.runCycle(ctx, p)
		case <-s.trigger:
			s.log.Info("scheduler_triggered")
			s.runCycle(ctx, p)
		}
	}

	s.log.Info("scheduler_stopping", zap.Int("in_flight", s.busy.Len()), zap.Duration("grace", s.opts.ShutdownGrace))
	if !p.stop(s.opts.ShutdownGrace) {
		s.log.Warn("scheduler_abandoning", zap.Int("in_flight", s.busy.Len()))
		abandon()
		if !p.stop(s.opts.FinishTimeout) {
			s.log.Error("scheduler_stop_timeout", zap.Int("in_flight", s.busy.Len()))
			return errors.New("scheduler: workers did not stop")
		}
	}
	<-collected
	s.log.Info("scheduler_stopped")
	return nil
}

// RunOnce runs a single full cycle and waits for it to finish.
func (s *Scheduler) RunOnce(ctx context.Context) (CycleReport, error) {
	workCtx, abandon := context.WithCancel(context.WithoutCancel(ctx))
	defer abandon()
	stop := context.AfterFunc(ctx, abandon)
	defer stop()

	p := newPool(workCtx, ctx.Done(), s.opts.Concurrency, len(s.targets), s.process, s.busy.Release)
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		s.collect(p.results)
	}()

	report, wg := s.cycle(ctx, p)
	wg.Wait()

	if !p.stop(s.opts.FinishTimeout) {
		return *report, errors.New("scheduler: workers did not stop")
	}
	<-collected
	return *report, ctx.Err()
}

// runCycle starts a cycle and logs its summary once every job it
// submitted has been collected.
func (s *Scheduler) runCycle(ctx context.Context, p *pool) {
	report, wg := s.cycle(ctx, p)
	go func() {
		wg.Wait()
		s.log.Info("cycle_finished",
			zap.String("cycle_id", report.CycleID),
			zap.Int("checked", report.Checked),
			zap.Int("skipped", report.Skipped),
			zap.Int("abandoned", report.Abandoned),
			zap.Int("store_errors", report.StoreErrors),
			zap.Int("dispatch_errors", report.DispatchErrors),
		)
	}()
}

// cycle submits one job per target that is not already in flight. The
// returned WaitGroup is released as each submitted job is collected.
func (s *Scheduler) cycle(ctx context.Context, p *pool) (*CycleReport, *sync.WaitGroup) {
	cycleID := uuid.NewString()
	report := &CycleReport{CycleID: cycleID}
	wg := &sync.WaitGroup{}
	s.metrics.CycleStarted()

	_, span := s.tracer.Start(ctx, "scheduler.cycle", trace.WithAttributes(
		attribute.String("cycle_id", cycleID),
		attribute.Int("targets", len(s.targets)),
	))
	defer span.End()

	log := s.log.With(zap.String("cycle_id", cycleID))
	submitted := 0
	for _, t := range s.targets {
		if !s.busy.Acquire(t.ID) {
			// previous job for this target still outstanding
			report.Skipped++
			s.metrics.Skipped()
			log.Warn("probe_skipped", zap.String("target_id", string(t.ID)))
			continue
		}
		wg.Add(1)
		j := job{cycleID: cycleID, target: t, report: report, done: wg.Done}
		if !p.submit(j) {
			s.busy.Release(t.ID)
			j.done()
			report.Skipped++
			s.metrics.Skipped()
			log.Warn("job_queue_full", zap.String("target_id", string(t.ID)))
			continue
		}
		submitted++
	}
	span.SetAttributes(attribute.Int("submitted", submitted))
	log.Debug("scheduler_cycle", zap.Int("submitted", submitted), zap.Int("skipped", len(s.targets)-submitted))
	return report, wg
}

// collect is the single consumer of the results channel.
func (s *Scheduler) collect(results <-chan result) {
	for r := range results {
		rep := r.job.report
		log := s.log.With(zap.String("cycle_id", r.job.cycleID), zap.String("target_id", string(r.job.target.ID)))
		switch {
		case r.abandoned:
			rep.Abandoned++
			log.Warn("target_abandoned")
		case r.err != nil:
			rep.StoreErrors++
			log.Error("target_cycle_failed", zap.Error(r.err))
		default:
			rep.Checked++
			rep.Actions += len(r.actions)
			rep.DispatchErrors += r.failed
			log.Info("target_checked",
				zap.String("url", r.job.target.URL),
				zap.String("status", string(r.state.CanonicalStatus)),
				zap.Uint("consecutive_failures", r.state.ConsecutiveFailures),
				zap.String("reason", r.state.LastReason),
				zap.Int("actions", len(r.actions)),
				zap.Int("dispatch_failed", r.failed),
			)
		}
		r.job.done()
	}
}

func (s *Scheduler) announce(ctx context.Context) {
	title, text := notify.StartupMessage(s.targets, s.opts.Interval, s.opts.Location)
	actx, cancel := context.WithTimeout(ctx, s.opts.FinishTimeout)
	defer cancel()
	if err := s.disp.Announce(actx, title, text); err != nil {
		s.log.Warn("startup_message_failed", zap.Error(err))
	}
}

func spanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
