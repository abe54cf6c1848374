package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline health: filing counts, queue depth, universe size",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stats, err := st.GetStats(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Filings: %d total, %d today\n", stats.TotalFilings, stats.FilingsToday)

		statuses := make([]string, 0, len(stats.ByStatus))
		for status := range stats.ByStatus {
			statuses = append(statuses, status)
		}
		sort.Strings(statuses)
		for _, status := range statuses {
			fmt.Printf("  %-14s %d\n", status, stats.ByStatus[status])
		}

		fmt.Printf("Companies: %d known, %d monitored\n", stats.Companies, stats.Monitored)
		fmt.Printf("Tasks: %d pending, %d claimed\n", stats.PendingTasks, stats.ClaimedTasks)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
