package probe

import (
	"context"

	"github.com/hamed0406/sitewatch/internal/domain"
)

// Prober performs a single check against a target. Failures are encoded in
// the returned outcome; nothing is retried here.
type Prober interface {
	Probe(ctx context.Context, t domain.Target) domain.ProbeOutcome
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, t domain.Target) domain.ProbeOutcome

func (f ProberFunc) Probe(ctx context.Context, t domain.Target) domain.ProbeOutcome {
	return f(ctx, t)
}
