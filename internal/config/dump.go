package config

import (
	"gopkg.in/yaml.v3"
)

const masked = "****"

// Dump renders the effective configuration as YAML with credentials masked.
func Dump(c Config) ([]byte, error) {
	c.Notify.Telegram.BotToken = mask(c.Notify.Telegram.BotToken)
	c.Notify.SlackWebhook = mask(c.Notify.SlackWebhook)
	c.Remediation.Token = mask(c.Remediation.Token)
	c.Store.DatabaseURL = mask(c.Store.DatabaseURL)
	c.API.PublicAPIKeys = maskAll(c.API.PublicAPIKeys)
	c.API.AdminAPIKeys = maskAll(c.API.AdminAPIKeys)
	return yaml.Marshal(c)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return masked
}

func maskAll(in []string) []string {
	if len(in) == 0 {
		return in
	}
	out := make([]string, len(in))
	for i := range in {
		out[i] = masked
	}
	return out
}
