package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/edgar-monitor/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "edgar-monitor",
	Short: "SEC EDGAR filing monitor",
	Long:  "Watches the EDGAR feed for new filings from monitored companies, downloads and AI-analyzes them, and serves results over a REST API.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
