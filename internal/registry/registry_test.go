package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/sitewatch/internal/config"
	"github.com/hamed0406/sitewatch/internal/domain"
)

func cfgWith(targets ...config.TargetConfig) config.Config {
	return config.Config{Targets: targets}
}

func TestLoad_PreservesOrderAndCanonicalIDs(t *testing.T) {
	ts, err := Load(cfgWith(
		config.TargetConfig{URL: "HTTPS://Example.COM:443/news/", Selector: " .title "},
		config.TargetConfig{URL: "http://a.example:80/#top"},
	))
	require.NoError(t, err)
	require.Len(t, ts, 2)

	assert.Equal(t, domain.TargetID("https://example.com/news"), ts[0].ID)
	assert.Equal(t, "HTTPS://Example.COM:443/news/", ts[0].URL)
	assert.Equal(t, ".title", ts[0].Selector)
	assert.Equal(t, 0, ts[0].Position)

	assert.Equal(t, domain.TargetID("http://a.example/"), ts[1].ID)
	assert.Equal(t, 1, ts[1].Position)
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string]config.Config{
		"empty":     cfgWith(),
		"malformed": cfgWith(config.TargetConfig{URL: "://nope"}),
		"relative":  cfgWith(config.TargetConfig{URL: "/just/a/path"}),
		"scheme":    cfgWith(config.TargetConfig{URL: "mailto:ops@example.com"}),
		"duplicate": cfgWith(
			config.TargetConfig{URL: "https://example.com/status/"},
			config.TargetConfig{URL: "https://EXAMPLE.com:443/status"},
		),
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(cfg)
			require.Error(t, err)
			var ce *config.ConfigError
			assert.True(t, errors.As(err, &ce), "want *config.ConfigError, got %T", err)
		})
	}
}

func TestRegistry_GetAndAll(t *testing.T) {
	r, err := FromConfig(cfgWith(
		config.TargetConfig{URL: "https://a.example"},
		config.TargetConfig{URL: "https://b.example"},
	))
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())

	got, ok := r.Get("https://b.example")
	require.True(t, ok)
	assert.Equal(t, 1, got.Position)

	_, ok = r.Get("https://c.example")
	assert.False(t, ok)

	all := r.All()
	all[0].URL = "mutated"
	again, _ := r.Get("https://a.example")
	assert.Equal(t, "https://a.example", again.URL)
}

func TestCanonicalize(t *testing.T) {
	cases := []struct{ in, want string }{
		{"https://example.com", "https://example.com"},
		{"https://example.com/", "https://example.com/"},
		{"https://example.com:8443/x/", "https://example.com:8443/x"},
		{"HTTP://Example.com:80/a?q=1#frag", "http://example.com/a?q=1"},
	}
	for _, c := range cases {
		got, err := Canonicalize(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}
