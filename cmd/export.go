package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/edgar-monitor/internal/export"
	"github.com/sells-group/edgar-monitor/internal/model"
	"github.com/sells-group/edgar-monitor/internal/store"
)

var (
	exportOut    string
	exportForm   string
	exportTicker string
	exportLimit  int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write completed filings to an xlsx digest",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if exportOut == "" {
			return eris.New("--out is required")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := export.WriteDigest(ctx, st, store.FilingFilter{
			FormType: model.FormType(exportForm),
			Ticker:   exportTicker,
			Limit:    exportLimit,
		}, exportOut)
		if err != nil {
			return err
		}

		fmt.Printf("wrote %d filings to %s\n", n, exportOut)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output xlsx path (required)")
	exportCmd.Flags().StringVar(&exportForm, "form", "", "filter by form type (10-K, 10-Q, 8-K, S-1)")
	exportCmd.Flags().StringVar(&exportTicker, "ticker", "", "filter by ticker")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 500, "max filings to export")
	rootCmd.AddCommand(exportCmd)
}
