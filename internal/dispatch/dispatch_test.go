package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/config"
	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/notify"
)

type fakeNotifier struct {
	mu    sync.Mutex
	errs  []error // returned in order; nil after exhaustion
	calls int
	last  string
}

func (f *fakeNotifier) Send(ctx context.Context, title, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = title
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

type fakeTrigger struct {
	calls   int
	service string
	err     error
}

func (f *fakeTrigger) TriggerRedeploy(ctx context.Context, serviceID, reason string) error {
	f.calls++
	f.service = serviceID
	return f.err
}

func fastPolicy(retries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:      retries,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Timeout:         time.Second,
		MaxRetryAfter:   time.Second,
	}
}

var (
	downAction = domain.Action{Kind: domain.ActionNotify, TargetID: "T1", From: domain.StatusUp, To: domain.StatusDown, Reason: "timeout"}
	target     = domain.Target{ID: "T1", URL: "https://example.com"}
)

func TestNotify_RetriesTransientFailures(t *testing.T) {
	n := &fakeNotifier{errs: []error{errors.New("conn reset"), &notify.APIError{Service: "telegram", StatusCode: 502}}}
	d := New(n, nil, Options{Policy: fastPolicy(3)}, zap.NewNop())

	require.NoError(t, d.Notify(context.Background(), downAction, target))
	assert.Equal(t, 3, n.calls)
	assert.Contains(t, n.last, "DOWN")
}

func TestNotify_GivesUpAfterMaxRetries(t *testing.T) {
	boom := errors.New("network down")
	n := &fakeNotifier{errs: []error{boom, boom, boom, boom, boom}}
	d := New(n, nil, Options{Policy: fastPolicy(2)}, zap.NewNop())

	err := d.Notify(context.Background(), downAction, target)
	var de *DispatchError
	require.True(t, errors.As(err, &de), "got %v", err)
	assert.Equal(t, 3, de.Attempts)
	assert.Equal(t, 3, n.calls)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, downAction, de.Action)
}

func TestNotify_PermanentErrorIsNotRetried(t *testing.T) {
	n := &fakeNotifier{errs: []error{&notify.APIError{Service: "telegram", StatusCode: 400, Description: "chat not found"}}}
	d := New(n, nil, Options{Policy: fastPolicy(3)}, zap.NewNop())

	err := d.Notify(context.Background(), downAction, target)
	require.Error(t, err)
	assert.Equal(t, 1, n.calls)
	var apiErr *notify.APIError
	assert.True(t, errors.As(err, &apiErr))
}

func TestNotify_HonoursRetryAfter(t *testing.T) {
	n := &fakeNotifier{errs: []error{&notify.APIError{Service: "telegram", StatusCode: 429, RetryAfter: 80 * time.Millisecond}}}
	d := New(n, nil, Options{Policy: fastPolicy(1)}, zap.NewNop())

	start := time.Now()
	require.NoError(t, d.Notify(context.Background(), downAction, target))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	assert.Equal(t, 2, n.calls)
}

func TestNotify_StopsOnCancelledContext(t *testing.T) {
	boom := errors.New("still failing")
	n := &fakeNotifier{errs: []error{boom, boom, boom, boom}}
	p := fastPolicy(3)
	p.InitialInterval = time.Hour
	p.MaxInterval = time.Hour
	d := New(n, nil, Options{Policy: p}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := d.Notify(ctx, downAction, target)
	require.Error(t, err)
	assert.Equal(t, 1, n.calls)
}

func TestRemediate_SingleAttempt(t *testing.T) {
	tr := &fakeTrigger{err: errors.New("platform 503")}
	d := New(&fakeNotifier{}, tr, Options{Policy: fastPolicy(3), ServiceID: "svc-web"}, zap.NewNop())

	a := domain.Action{Kind: domain.ActionRemediate, TargetID: "T1"}
	err := d.Do(context.Background(), a, target)
	var de *DispatchError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 1, de.Attempts)
	assert.Equal(t, 1, tr.calls)
	assert.Equal(t, "svc-web", tr.service)
}

func TestRemediate_DefaultsServiceToTargetURL(t *testing.T) {
	tr := &fakeTrigger{}
	d := New(&fakeNotifier{}, tr, Options{Policy: fastPolicy(0)}, nil)
	require.NoError(t, d.Remediate(context.Background(), domain.Action{Kind: domain.ActionRemediate, TargetID: "T1"}, target))
	assert.Equal(t, "https://example.com", tr.service)
}

func TestAnnounce(t *testing.T) {
	n := &fakeNotifier{}
	d := New(n, nil, Options{Policy: fastPolicy(0)}, nil)
	require.NoError(t, d.Announce(context.Background(), "online", "hello"))
	assert.Equal(t, "online", n.last)
}

func TestPolicyFromConfig_KeepsDefaultsForZero(t *testing.T) {
	p := PolicyFromConfig(config.DispatchConfig{MaxRetries: 5})
	assert.Equal(t, 5, p.MaxRetries)
	assert.Equal(t, DefaultRetryPolicy().InitialInterval, p.InitialInterval)
	assert.Equal(t, DefaultRetryPolicy().Timeout, p.Timeout)
}
