package registry

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/hamed0406/sitewatch/internal/config"
	"github.com/hamed0406/sitewatch/internal/domain"
)

// Registry is the read-only set of monitored targets, in configuration order.
type Registry struct {
	targets []domain.Target
	byID    map[domain.TargetID]int
}

// Load turns configured targets into domain targets keyed by canonical URL.
// An empty list, a malformed URL or two entries with the same canonical URL
// yield a *config.ConfigError.
func Load(cfg config.Config) ([]domain.Target, error) {
	if len(cfg.Targets) == 0 {
		return nil, &config.ConfigError{Field: "targets", Reason: "no target URLs configured"}
	}
	out := make([]domain.Target, 0, len(cfg.Targets))
	seen := make(map[domain.TargetID]int, len(cfg.Targets))
	for i, tc := range cfg.Targets {
		field := fmt.Sprintf("targets[%d].url", i)
		canon, err := Canonicalize(tc.URL)
		if err != nil {
			return nil, &config.ConfigError{Field: field, Reason: err.Error()}
		}
		id := domain.TargetID(canon)
		if prev, dup := seen[id]; dup {
			return nil, &config.ConfigError{Field: field, Reason: fmt.Sprintf("duplicate of targets[%d] (%s)", prev, canon)}
		}
		seen[id] = i
		out = append(out, domain.Target{
			ID:       id,
			URL:      strings.TrimSpace(tc.URL),
			Selector: strings.TrimSpace(tc.Selector),
			Position: i,
		})
	}
	return out, nil
}

// New wraps an already loaded target list.
func New(targets []domain.Target) *Registry {
	r := &Registry{
		targets: append([]domain.Target(nil), targets...),
		byID:    make(map[domain.TargetID]int, len(targets)),
	}
	for i, t := range r.targets {
		r.byID[t.ID] = i
	}
	return r
}

// FromConfig is Load followed by New.
func FromConfig(cfg config.Config) (*Registry, error) {
	ts, err := Load(cfg)
	if err != nil {
		return nil, err
	}
	return New(ts), nil
}

// All returns a copy of the targets in configuration order.
func (r *Registry) All() []domain.Target {
	return append([]domain.Target(nil), r.targets...)
}

func (r *Registry) Get(id domain.TargetID) (domain.Target, bool) {
	i, ok := r.byID[id]
	if !ok {
		return domain.Target{}, false
	}
	return r.targets[i], true
}

func (r *Registry) Len() int { return len(r.targets) }

// Canonicalize lowercases scheme and host, strips default ports, drops the
// fragment and trims a trailing slash (except for the root path).
func Canonicalize(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("failed to parse url: %w", err)
	}
	if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("url must be an absolute http or https url")
	}
	if u.Host == "" {
		return "", fmt.Errorf("url has no host")
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if (u.Scheme == "http" && strings.HasSuffix(u.Host, ":80")) ||
		(u.Scheme == "https" && strings.HasSuffix(u.Host, ":443")) {
		u.Host = u.Hostname()
	}
	u.Fragment = ""
	u.RawFragment = ""
	if len(u.Path) > 1 && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimSuffix(u.Path, "/")
		u.RawPath = ""
	}
	return u.String(), nil
}
