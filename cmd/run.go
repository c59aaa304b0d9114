package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"tubedigest/internal"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process new uploads and email digests",
	Example: `  # Process uploads from the last 24 hours
  tubedigest run

  # Look back further
  tubedigest run --hours 48

  # Preview: summarize but don't send email
  tubedigest run --dry-run`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		hours, _ := cmd.Flags().GetInt("hours")

		if err := config.Validate(dryRun); err != nil {
			return err
		}

		summary, err := executeRun(cmd.Context(), dryRun, hours)
		if summary != nil {
			printRunSummary(summary)
		}
		if errors.Is(err, internal.ErrLocked) {
			return fmt.Errorf("another run is already in progress: %w", err)
		}
		return err
	},
}

// executeRun wires the pipeline from configuration and performs one run under
// the run lock. Shared by the run and schedule commands.
func executeRun(ctx context.Context, dryRun bool, hours int) (*internal.RunSummary, error) {
	lock, err := internal.AcquireRunLock(config.DataDir)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	store, err := internal.OpenStore(config.DBPath)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	service, err := youtube.NewService(ctx, option.WithAPIKey(config.YouTubeAPIKey))
	if err != nil {
		return nil, fmt.Errorf("creating YouTube service: %w", err)
	}

	ledger := internal.NewQuotaLedger(config.QuotaCeiling, config.QuotaReserve)
	source := internal.NewYouTubeClient(service, ledger, config.CallTimeout)
	transcripts := internal.NewTranscriptClient(config.CallTimeout)

	prompts, err := internal.NewPromptManager(config.Prompt)
	if err != nil {
		return nil, err
	}
	summarizer := internal.NewSummarizer(
		internal.NewOpenAIClient(config.OpenAIAPIKey), prompts, ledger,
		config.SummaryModel, config.TTSVoice, config.MaxTranscriptChars)

	var sender internal.NotificationSender
	if !dryRun {
		emailSender, err := internal.NewEmailSender(config.SMTP)
		if err != nil {
			return nil, err
		}
		sender = emailSender
	}

	options := []internal.PipelineOption{
		internal.WithLanguages(config.Languages),
		internal.WithDurationLimits(config.MinDuration, config.MaxDuration),
	}
	if isatty.IsTerminal(os.Stderr.Fd()) {
		var bar *progressbar.ProgressBar
		options = append(options, internal.WithProgress(func(done, total int) {
			if bar == nil {
				bar = progressbar.NewOptions(total,
					progressbar.OptionSetDescription("processing videos"),
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
				)
			}
			_ = bar.Set(done)
		}))
	}

	pipeline := internal.NewPipeline(store, source, transcripts, summarizer, sender, ledger, options...)

	lookback := config.Lookback
	if hours > 0 {
		lookback = time.Duration(hours) * time.Hour
	}
	return pipeline.Run(ctx, internal.RunOptions{DryRun: dryRun, Lookback: lookback})
}

func printRunSummary(summary *internal.RunSummary) {
	fmt.Println()
	if summary.DryRun {
		fmt.Println("Dry run complete (no emails sent)")
	} else {
		fmt.Println("Run complete")
	}
	fmt.Printf("  Videos found:     %d (%d new)\n", summary.VideosFound, summary.NewVideos)
	fmt.Printf("  Completed:        %d\n", summary.Completed)
	fmt.Printf("  Failed:           %d\n", summary.Failed)
	fmt.Printf("  Skipped:          %d (%d too long)\n", summary.Skipped+summary.SkippedTooLong, summary.SkippedTooLong)
	if summary.Truncated > 0 {
		fmt.Printf("  Truncated:        %d\n", summary.Truncated)
	}
	fmt.Printf("  Quota used:       %d\n", summary.QuotaUsed)
	if summary.QuotaExhausted {
		fmt.Println("  Quota exhausted:  yes (remaining videos deferred to next run)")
	}
	fmt.Printf("  Estimated cost:   $%.4f\n", summary.EstimatedCost)
	fmt.Printf("  Duration:         %s\n", summary.FinishedAt.Sub(summary.StartedAt).Round(time.Second))
}

func init() {
	runCmd.Flags().Bool("dry-run", false, "Process videos but don't send email")
	runCmd.Flags().Int("hours", 0, "Hours to look back for new uploads (default from config)")
	rootCmd.AddCommand(runCmd)
}
