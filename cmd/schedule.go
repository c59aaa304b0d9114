package cmd

import (
	"errors"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"tubedigest/internal"
)

// scheduleCmd represents the schedule command
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the digest pipeline on a cron schedule",
	Long: `Runs in the foreground and triggers a pipeline run on the cron
schedule from the configuration (default "0 8 * * *", daily at 08:00).

If a tick fires while the previous run is still in progress, the tick is
skipped; the missed videos are picked up by the next run.`,
	Example: `  # Daily at 08:00 (config default)
  tubedigest schedule

  # Every 6 hours
  tubedigest schedule --cron "0 */6 * * *"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Validate(false); err != nil {
			return err
		}
		spec, _ := cmd.Flags().GetString("cron")
		if spec == "" {
			spec = config.Schedule
		}

		ctx := cmd.Context()
		scheduler := cron.New()
		_, err := scheduler.AddFunc(spec, func() {
			summary, err := executeRun(ctx, false, 0)
			if err != nil {
				if errors.Is(err, internal.ErrLocked) {
					log.Printf("tubedigest: previous run still in progress, skipping tick")
					return
				}
				log.Printf("tubedigest: scheduled run failed: %v", err)
				return
			}
			log.Printf("tubedigest: scheduled run finished: %d completed, %d failed",
				summary.Completed, summary.Failed)
		})
		if err != nil {
			return fmt.Errorf("invalid cron spec %q: %w", spec, err)
		}

		fmt.Printf("Scheduler started with spec %q. Press Ctrl+C to stop.\n", spec)
		scheduler.Start()
		<-ctx.Done()
		stopCtx := scheduler.Stop()
		<-stopCtx.Done()
		return nil
	},
}

func init() {
	scheduleCmd.Flags().String("cron", "", "Cron spec override (default from config)")
	rootCmd.AddCommand(scheduleCmd)
}
