package probe

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/hamed0406/sitewatch/internal/domain"
)

const defaultMaxBody = 2 << 20 // 2 MiB

// HTTPProber fetches a target with GET and fingerprints the response body,
// narrowed to a CSS selector when the target has one.
type HTTPProber struct {
	Client    *http.Client
	Timeout   time.Duration
	UserAgent string
	MaxBody   int64
	DNS       DNSCheckFunc // nil disables DNS refinement
	Now       func() time.Time
}

func NewHTTPProber(timeout time.Duration, userAgent string) *HTTPProber {
	return &HTTPProber{
		Client:    &http.Client{Timeout: timeout},
		Timeout:   timeout,
		UserAgent: userAgent,
		MaxBody:   defaultMaxBody,
		DNS:       CheckDNS,
		Now:       time.Now,
	}
}

func (p *HTTPProber) Probe(ctx context.Context, t domain.Target) domain.ProbeOutcome {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	// microsecond precision, as stored by postgres
	out := domain.ProbeOutcome{TargetID: t.ID, Timestamp: now().UTC().Truncate(time.Microsecond)}

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	start := time.Now()
	unreachable := func(reason string) domain.ProbeOutcome {
		out.Kind = domain.OutcomeUnreachable
		out.Reason = reason
		out.LatencyMS = time.Since(start).Seconds() * 1000
		return out
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		return unreachable(domain.ReasonRequest)
	}
	if p.UserAgent != "" {
		req.Header.Set("User-Agent", p.UserAgent)
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return unreachable(p.reason(ctx, req.URL, err))
	}
	defer resp.Body.Close()
	out.HTTPStatus = resp.StatusCode

	if resp.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return unreachable(domain.HTTPErrorReason(resp.StatusCode))
	}

	limit := p.MaxBody
	if limit <= 0 {
		limit = defaultMaxBody
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		if r := Classify(err); r == domain.ReasonTimeout {
			return unreachable(r)
		}
		return unreachable(domain.ReasonBody)
	}

	content := body
	if t.Selector != "" {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return unreachable(domain.ReasonBody)
		}
		sel := doc.Find(t.Selector)
		if sel.Length() == 0 {
			return unreachable(domain.ReasonSelectorMiss)
		}
		content = []byte(normalizeText(sel.Text()))
	}

	out.Kind = domain.OutcomeReachable
	out.Fingerprint = Fingerprint(content)
	out.LatencyMS = time.Since(start).Seconds() * 1000
	return out
}

// reason classifies a transport error; generic network failures are
// refined to dns-error when the host does not resolve.
func (p *HTTPProber) reason(ctx context.Context, u *url.URL, err error) string {
	r := Classify(err)
	if r != domain.ReasonNetwork || p.DNS == nil || ctx.Err() != nil {
		return r
	}
	if p.DNS(ctx, u.Hostname()).Broken() {
		return domain.ReasonDNS
	}
	return r
}

// Fingerprint is the hex SHA-256 of content.
func Fingerprint(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
