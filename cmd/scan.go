package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/edgar-monitor/internal/edgar"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one discovery pass against the EDGAR feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := newAppEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.Migrate(ctx); err != nil {
			return err
		}

		scanner := edgar.NewScanner(env.Edgar, env.Store,
			time.Duration(cfg.Edgar.LookbackMinutes)*time.Minute)
		result, err := scanner.Scan(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("scanned %d entries, %d relevant, %d new filings queued\n",
			result.Scanned, result.Relevant, result.New)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
