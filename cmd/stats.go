package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"tubedigest/internal"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show processing statistics from the state database",
	Example: `  # Totals and recent activity
  tubedigest stats

  # Include recent failures
  tubedigest stats --failures`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := internal.OpenStore(config.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		stats, err := store.Stats(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Total videos:    %d\n", stats.TotalVideos)
		for _, status := range []internal.Status{
			internal.StatusCompleted, internal.StatusFailed,
			internal.StatusSkipped, internal.StatusDryRun,
		} {
			if count := stats.StatusBreakdown[status]; count > 0 {
				fmt.Printf("  %-13s  %d\n", string(status)+":", count)
			}
		}
		fmt.Printf("Processed today: %d\n", stats.ProcessedToday)
		fmt.Printf("Processed week:  %d\n", stats.ProcessedWeek)

		showFailures, _ := cmd.Flags().GetBool("failures")
		if showFailures {
			failures, err := store.RecentFailures(ctx, 10)
			if err != nil {
				return err
			}
			if len(failures) > 0 {
				fmt.Println("\nRecent failures:")
				for _, rec := range failures {
					fmt.Printf("  %s  %s\n    %s\n", rec.VideoID, rec.Title, rec.ErrorMessage)
				}
			}
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().Bool("failures", false, "Show the most recent failed videos")
	rootCmd.AddCommand(statsCmd)
}
