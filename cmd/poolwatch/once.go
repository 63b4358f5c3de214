package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hamed0406/poolwatch/internal/monitor"
)

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single health-check cycle and print the summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(configPath)
		if err != nil {
			return err
		}
		defer a.logger.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		res, err := a.runner.TryRun(ctx)
		if err != nil {
			return err
		}
		// restarts run detached from the cycle; let them finish before exit
		if werr := a.dispatch.Wait(); werr != nil {
			a.logger.Warn("restarts_failed", zap.Error(werr))
		}

		fmt.Fprint(cmd.OutOrStdout(), monitor.FormatReport(res, a.cfg.Location()))
		if res.Aborted {
			return fmt.Errorf("cycle aborted: %w", ctx.Err())
		}
		return nil
	},
}
