package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hamed0406/sitewatch/internal/config"
	"github.com/hamed0406/sitewatch/internal/registry"
)

// newPreflightCmd validates configuration without touching the network or
// the state store and prints the effective settings with secrets masked.
func newPreflightCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Validate configuration and print the effective settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfg, err := loadConfig()
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "✖", err)
				return err
			}
			targets, err := registry.Load(cfg)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "✖", err)
				return err
			}
			for _, t := range targets {
				fmt.Fprintln(out, "✔ target", t.ID)
			}
			for _, w := range warnings(cfg) {
				fmt.Fprintln(cmd.ErrOrStderr(), "⚠", w)
			}

			dump, err := config.Dump(cfg)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "---")
			_, _ = out.Write(dump)
			fmt.Fprintln(out, "✔ preflight passed")
			return nil
		},
	}
}

func warnings(cfg config.Config) []string {
	var w []string
	if cfg.API.Addr != "" {
		switch {
		case len(cfg.API.PublicAPIKeys) == 0 && len(cfg.API.AdminAPIKeys) == 0:
			w = append(w, "no API keys configured; every route including POST /api/check is open.")
		case len(cfg.API.AdminAPIKeys) == 0:
			w = append(w, "api.admin_api_keys is empty; POST /api/check is disabled.")
		}
		if len(cfg.API.AllowedOrigins) == 0 {
			w = append(w, "api.allowed_origins is empty; CORS allows every origin.")
		}
	}
	if cfg.Store.Driver == "memory" {
		w = append(w, "store.driver=memory; state is lost on restart and recoveries may be re-announced.")
	}
	for _, k := range append(append([]string(nil), cfg.API.PublicAPIKeys...), cfg.API.AdminAPIKeys...) {
		if strings.ContainsAny(k, " \t") {
			w = append(w, "an API key contains whitespace; use comma-separated keys without spaces.")
			break
		}
	}
	return w
}
