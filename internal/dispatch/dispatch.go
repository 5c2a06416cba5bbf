// Package dispatch executes engine actions against the notifier and the
// remediation trigger.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/notify"
	"github.com/hamed0406/sitewatch/internal/remediate"
)

// DispatchError is returned once an action has failed for this cycle.
type DispatchError struct {
	Action   domain.Action
	Attempts int
	Err      error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s %s: failed after %d attempt(s): %v", e.Action.Kind, e.Action.TargetID, e.Attempts, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

type Dispatcher struct {
	notifier  notify.Notifier
	trigger   remediate.Trigger
	policy    RetryPolicy
	serviceID string
	loc       *time.Location
	log       *zap.Logger
}

type Options struct {
	Policy    RetryPolicy
	ServiceID string         // redeploy target; empty uses the target URL
	Location  *time.Location // message timestamps; nil = UTC
}

func New(n notify.Notifier, tr remediate.Trigger, opts Options, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	if tr == nil {
		tr = remediate.Noop{}
	}
	return &Dispatcher{
		notifier:  n,
		trigger:   tr,
		policy:    opts.Policy,
		serviceID: opts.ServiceID,
		loc:       opts.Location,
		log:       log,
	}
}

// Do routes an action to Notify or Remediate.
func (d *Dispatcher) Do(ctx context.Context, a domain.Action, t domain.Target) error {
	if a.Kind == domain.ActionRemediate {
		return d.Remediate(ctx, a, t)
	}
	return d.Notify(ctx, a, t)
}

// Notify sends the message for a, retrying per the policy.
func (d *Dispatcher) Notify(ctx context.Context, a domain.Action, t domain.Target) error {
	title, text := notify.Format(a, t, d.loc)
	attempts, err := d.send(ctx, title, text, zap.String("target", string(a.TargetID)), zap.String("kind", string(a.Kind)))
	if err != nil {
		return &DispatchError{Action: a, Attempts: attempts, Err: err}
	}
	return nil
}

// Announce sends a free-form message (startup notice) with the same policy.
func (d *Dispatcher) Announce(ctx context.Context, title, text string) error {
	_, err := d.send(ctx, title, text, zap.String("kind", "announce"))
	return err
}

func (d *Dispatcher) send(ctx context.Context, title, text string, fields ...zap.Field) (int, error) {
	if d.notifier == nil {
		return 0, errors.New("no notifier configured")
	}
	eventID := uuid.NewString()
	log := d.log.With(append(fields, zap.String("event_id", eventID))...)

	var (
		attempts int
		hint     time.Duration
	)
	op := func() error {
		attempts++
		actx, cancel := d.attemptContext(ctx)
		defer cancel()
		err := d.notifier.Send(actx, title, text)
		if err == nil {
			return nil
		}
		var apiErr *notify.APIError
		if errors.As(err, &apiErr) {
			if !apiErr.Retryable() {
				return backoff.Permanent(err)
			}
			hint = apiErr.RetryAfter
		}
		return err
	}
	notifyFn := func(err error, wait time.Duration) {
		log.Warn("dispatch_retry", zap.Int("attempt", attempts), zap.Duration("wait", wait), zap.Error(err))
	}

	err := backoff.RetryNotify(op, d.policy.backOff(ctx, &hint), notifyFn)
	if err != nil {
		log.Error("dispatch_failed", zap.Int("attempts", attempts), zap.Error(err))
		return attempts, err
	}
	log.Info("dispatch_ok", zap.Int("attempts", attempts))
	return attempts, nil
}

// Remediate makes a single redeploy attempt; a failure is re-evaluated on
// the next cycle rather than retried here.
func (d *Dispatcher) Remediate(ctx context.Context, a domain.Action, t domain.Target) error {
	service := d.serviceID
	if service == "" {
		service = t.URL
	}
	actx, cancel := d.attemptContext(ctx)
	defer cancel()

	log := d.log.With(zap.String("target", string(a.TargetID)), zap.String("service_id", service))
	if err := d.trigger.TriggerRedeploy(actx, service, a.Reason); err != nil {
		log.Error("remediation_failed", zap.Error(err))
		return &DispatchError{Action: a, Attempts: 1, Err: err}
	}
	log.Warn("remediation_triggered", zap.String("reason", a.Reason))
	return nil
}

func (d *Dispatcher) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.policy.Timeout > 0 {
		return context.WithTimeout(ctx, d.policy.Timeout)
	}
	return context.WithCancel(ctx)
}
