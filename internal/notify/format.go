package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/hamed0406/sitewatch/internal/domain"
)

// Format renders an action as a message title and body. loc may be nil
// (UTC).
func Format(a domain.Action, t domain.Target, loc *time.Location) (title, text string) {
	name := t.URL
	if name == "" {
		name = string(a.TargetID)
	}

	switch a.Kind {
	case domain.ActionContentChanged:
		title = "🔔 Content changed: " + name
	case domain.ActionReminder:
		title = "🔴 Still DOWN: " + name
	case domain.ActionRemediate:
		title = "🛠 Redeploy triggered: " + name
	default:
		if a.To == domain.StatusUp {
			title = "🟢 UP: " + name
		} else {
			title = "🔴 DOWN: " + name
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Target: %s", name)
	if a.From != "" && a.To != "" && a.Kind == domain.ActionNotify {
		fmt.Fprintf(&b, "\nStatus: %s → %s", a.From, a.To)
	}
	if t.Selector != "" {
		fmt.Fprintf(&b, "\nSelector: %s", t.Selector)
	}
	if a.Reason != "" {
		fmt.Fprintf(&b, "\nReason: %s", a.Reason)
	}
	fmt.Fprintf(&b, "\nTime: %s", stamp(a.At, loc))
	return title, b.String()
}

// StartupMessage announces the monitor coming online.
func StartupMessage(targets []domain.Target, interval time.Duration, loc *time.Location) (title, text string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Watching %d target(s) every %s", len(targets), interval)
	for _, t := range targets {
		fmt.Fprintf(&b, "\n• %s", t.URL)
	}
	fmt.Fprintf(&b, "\nTime: %s", stamp(time.Now(), loc))
	return "✅ sitewatch online", b.String()
}

func stamp(at time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	if at.IsZero() {
		at = time.Now()
	}
	at = at.In(loc)
	return at.Format("2006-01-02 15:04:05") + " " + loc.String()
}
