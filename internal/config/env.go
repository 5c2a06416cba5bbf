package config

import (
	"fmt"
	"strings"
)

// ConfigError is a fatal startup problem with the configuration.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

type lookupFunc func(key string) (string, bool)

// targetsFromEnv resolves targets from the legacy variables:
// URL holds one URL or an array; otherwise URL_1, URL_2, ... are read until
// the first gap. Selectors come from URL_<n>_SELECTOR (URL_SELECTOR for a
// single URL).
func targetsFromEnv(lookup lookupFunc) []TargetConfig {
	get := func(k string) string {
		v, _ := lookup(k)
		return strings.TrimSpace(v)
	}

	var out []TargetConfig
	if raw := get("URL"); raw != "" {
		urls := ParseURLList(raw)
		for i, u := range urls {
			sel := get(fmt.Sprintf("URL_%d_SELECTOR", i+1))
			if sel == "" && len(urls) == 1 {
				sel = get("URL_SELECTOR")
			}
			out = append(out, TargetConfig{URL: u, Selector: sel})
		}
		return out
	}

	for i := 1; ; i++ {
		u := get(fmt.Sprintf("URL_%d", i))
		if u == "" {
			break
		}
		out = append(out, TargetConfig{URL: u, Selector: get(fmt.Sprintf("URL_%d_SELECTOR", i))})
	}
	return out
}

// ParseURLList accepts a single URL or an array form, quoted or not:
//
//	https://a.example
//	[https://a.example, https://b.example]
//	["https://a.example", 'https://b.example']
func ParseURLList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if !(strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]")) {
		return []string{raw}
	}
	var out []string
	for _, part := range strings.Split(raw[1:len(raw)-1], ",") {
		p := strings.Trim(strings.TrimSpace(part), `"'`)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
