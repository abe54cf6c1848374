package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/edgar-monitor/internal/fetcher"
)

var companiesCmd = &cobra.Command{
	Use:   "companies",
	Short: "Manage the monitored company universe",
}

var companiesSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Load the SEC ticker map and index membership lists",
	Long:  "Downloads company_tickers.json for the CIK/ticker universe, then applies the configured S&P 500 and NASDAQ 100 membership CSVs.",
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

		companies, err := env.Edgar.CompanyTickers(ctx)
		if err != nil {
			return err
		}
		upserted, err := env.Store.UpsertCompanies(ctx, companies)
		if err != nil {
			return err
		}
		fmt.Printf("upserted %d companies\n", upserted)

		for _, index := range []struct {
			name string
			path string
		}{
			{"sp500", cfg.Edgar.SP500File},
			{"nasdaq100", cfg.Edgar.Nasdaq100File},
		} {
			if index.path == "" {
				zap.L().Info("no membership file configured, skipping",
					zap.String("index", index.name))
				continue
			}
			n, err := applyIndexMembership(ctx, env, index.name, index.path)
			if err != nil {
				return err
			}
			fmt.Printf("marked %d companies as %s members\n", n, index.name)
		}
		return nil
	},
}

// applyIndexMembership reads tickers from the first CSV column and flags
// exactly that set as index members.
func applyIndexMembership(ctx context.Context, env *appEnv, index, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, eris.Wrapf(err, "companies: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	rowCh, errCh := fetcher.StreamCSV(ctx, f, fetcher.CSVOptions{
		HasHeader: true,
		TrimSpace: true,
	})

	var tickers []string
	for row := range rowCh {
		if len(row) == 0 {
			continue
		}
		ticker := strings.ToUpper(strings.TrimSpace(row[0]))
		if ticker != "" {
			tickers = append(tickers, ticker)
		}
	}
	if err := <-errCh; err != nil {
		return 0, eris.Wrapf(err, "companies: read %s", path)
	}
	if len(tickers) == 0 {
		return 0, eris.Errorf("companies: no tickers in %s", path)
	}

	return env.Store.SetIndexMembership(ctx, tickers, index)
}

func init() {
	companiesCmd.AddCommand(companiesSyncCmd)
	rootCmd.AddCommand(companiesCmd)
}
