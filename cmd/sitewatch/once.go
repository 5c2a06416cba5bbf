package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single check cycle, print a summary and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = a.shutdown(sctx)
			}()

			rep, err := a.scheduler.RunOnce(ctx)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "cycle %s: checked=%d skipped=%d abandoned=%d store_errors=%d dispatch_errors=%d\n",
				rep.CycleID, rep.Checked, rep.Skipped, rep.Abandoned, rep.StoreErrors, rep.DispatchErrors)

			states, lerr := a.store.List(ctx)
			if lerr == nil {
				for _, st := range states {
					fmt.Fprintf(out, "  %-6s %s (failures=%d) %s\n", st.CanonicalStatus, st.TargetID, st.ConsecutiveFailures, st.LastReason)
				}
			}
			if err != nil {
				return err
			}
			if rep.StoreErrors > 0 {
				return fmt.Errorf("%d target(s) could not be persisted", rep.StoreErrors)
			}
			return nil
		},
	}
}
