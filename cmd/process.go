package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var processRequeue bool

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run the download and analysis worker pools until interrupted",
	Long:  "Drains queued tasks without running the discovery scheduler or the API. Useful for working off a backlog or running workers on a separate host.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := newAppEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.Migrate(ctx); err != nil {
			return err
		}

		analyzer, err := env.newAnalyzer()
		if err != nil {
			return err
		}

		if processRequeue {
			n, err := env.Store.RequeueRetryable(ctx, cfg.Pipeline.MaxAttempts)
			if err != nil {
				return err
			}
			zap.L().Info("requeued failed filings", zap.Int("count", n))
		}

		return env.newDispatcher(analyzer).Run(ctx)
	},
}

func init() {
	processCmd.Flags().BoolVar(&processRequeue, "requeue", false, "requeue retry-eligible failed filings before starting")
	rootCmd.AddCommand(processCmd)
}
