package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"tubedigest/internal"
)

// cleanupCmd represents the cleanup command
var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete old records from the state database",
	Long: `Deletes records whose processed_at is older than the given number of
days. Old records only matter while their videos can still appear in the
recent-uploads window, so anything older than a few days is safe to
remove.`,
	Example: `  # Delete records older than 30 days (default)
  tubedigest cleanup

  # Delete records older than a week
  tubedigest cleanup --days 7`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		if days <= 0 {
			return fmt.Errorf("--days must be positive, got %d", days)
		}

		store, err := internal.OpenStore(config.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		deleted, err := store.Cleanup(cmd.Context(), days)
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d records older than %d days\n", deleted, days)
		return nil
	},
}

func init() {
	cleanupCmd.Flags().Int("days", 30, "Delete records older than this many days")
	rootCmd.AddCommand(cleanupCmd)
}
