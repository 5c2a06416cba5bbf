package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile string
	logLevel   string

	// set by the build
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sitewatch",
		Short: "Website monitor with deduplicated alerts",
		Long: `sitewatch probes a fixed list of websites on an interval, tracks each
site's up/down state across restarts and sends one notification per real
change of state. Optionally it asks a deploy hook to redeploy a service
after a configurable number of consecutive failures.`,
		Version:      fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage: true,
		RunE:         runDaemon,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (yaml); env vars override it")
	root.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "log level (debug, info, warn, error)")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the monitor until interrupted (default)",
		RunE:  runDaemon,
	})
	root.AddCommand(newOnceCmd())
	root.AddCommand(newPreflightCmd())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sitewatch %s (commit: %s)\n", version, commit)
		},
	})
	return root
}
