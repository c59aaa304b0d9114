package internal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// Collaborator contracts consumed by the orchestrator. They are supplied by
// construction, never instantiated internally, so the pipeline can be tested
// with fakes.

// SourceClient lists subscriptions and recent uploads from the video
// platform.
type SourceClient interface {
	Subscriptions(ctx context.Context) ([]ChannelRef, error)
	RecentUploads(ctx context.Context, channel ChannelRef, since time.Time) ([]VideoRef, error)
	VideoDuration(ctx context.Context, videoID string) (time.Duration, error)
}

// TranscriptFetcher returns a cleaned transcript, or ErrNoTranscript when no
// caption track exists in any requested language.
type TranscriptFetcher interface {
	Fetch(ctx context.Context, videoID string, languages []string) (*Transcript, error)
}

// SummaryService produces summaries and narrated audio.
type SummaryService interface {
	Summarize(ctx context.Context, transcript *Transcript, video VideoRef) (*Summary, error)
	Narrate(ctx context.Context, text string) ([]byte, error)
}

// NotificationSender delivers one rendered digest. A nil return is the only
// signal that allows the completed commit.
type NotificationSender interface {
	Send(ctx context.Context, digest *Digest) error
}

// RunOptions are the per-invocation knobs of the pipeline entry point.
type RunOptions struct {
	// DryRun skips the notification sender and commits a dry_run audit
	// record instead of completed, so a later real run still processes the
	// video.
	DryRun bool
	// Lookback is how far back an upload counts as recent. Defaults to 24h.
	Lookback time.Duration
}

// Pipeline drives each candidate video through extract → summarize → send →
// commit, consulting the state store so no side-effecting stage ever runs
// twice for the same video. Videos are processed strictly one at a time;
// concurrent runs are excluded externally by the run lock.
type Pipeline struct {
	store       *Store
	source      SourceClient
	transcripts TranscriptFetcher
	summarizer  SummaryService
	sender      NotificationSender
	ledger      *QuotaLedger

	languages      []string
	minDuration    time.Duration
	maxDuration    time.Duration
	summarizeRetry RetryPolicy
	progress       func(done, total int)
}

// PipelineOption customizes pipeline construction.
type PipelineOption func(*Pipeline)

// WithLanguages sets the preferred transcript languages, in order.
func WithLanguages(languages []string) PipelineOption {
	return func(p *Pipeline) {
		if len(languages) > 0 {
			p.languages = languages
		}
	}
}

// WithDurationLimits sets the duration gate. Videos shorter than min or
// longer than max are skipped without billing a single summarization token.
func WithDurationLimits(min, max time.Duration) PipelineOption {
	return func(p *Pipeline) {
		p.minDuration = min
		p.maxDuration = max
	}
}

// WithSummarizeRetry overrides the backoff policy for the summarization and
// narration stage.
func WithSummarizeRetry(policy RetryPolicy) PipelineOption {
	return func(p *Pipeline) { p.summarizeRetry = policy }
}

// WithProgress registers a callback invoked after each video concludes.
func WithProgress(fn func(done, total int)) PipelineOption {
	return func(p *Pipeline) { p.progress = fn }
}

// NewPipeline wires the orchestrator with its collaborators.
func NewPipeline(store *Store, source SourceClient, transcripts TranscriptFetcher,
	summarizer SummaryService, sender NotificationSender, ledger *QuotaLedger,
	options ...PipelineOption) *Pipeline {

	p := &Pipeline{
		store:          store,
		source:         source,
		transcripts:    transcripts,
		summarizer:     summarizer,
		sender:         sender,
		ledger:         ledger,
		languages:      []string{"en"},
		minDuration:    time.Minute,
		maxDuration:    30 * time.Minute,
		summarizeRetry: DefaultRetryPolicy(),
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// Run executes one pipeline invocation and returns its summary. Per-video
// errors always resolve to a state store commit; run-level failures (storage
// unavailable, source fetch broken) return a non-nil error alongside the
// partial summary. A source-fetch failure is surfaced only after the videos
// collected before it were processed, so partial progress is never lost.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*RunSummary, error) {
	lookback := opts.Lookback
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}

	summary := &RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		DryRun:    opts.DryRun,
	}
	log.Printf("tubedigest: run %s started (dry_run=%v lookback=%s)", summary.RunID, opts.DryRun, lookback)

	observed, fetchErr := p.fetchObserved(ctx, summary, time.Now().UTC().Add(-lookback))
	candidates, err := p.filterCandidates(ctx, observed)
	if err != nil {
		summary.FinishedAt = time.Now().UTC()
		return summary, err
	}
	summary.NewVideos = len(candidates)
	log.Printf("tubedigest: %d videos found, %d new", summary.VideosFound, summary.NewVideos)

	for i, video := range candidates {
		if err := ctx.Err(); err != nil {
			summary.FinishedAt = time.Now().UTC()
			return summary, err
		}
		log.Printf("tubedigest: processing %d/%d: %s (%s)", i+1, len(candidates), video.Title, video.VideoID)

		outcome := p.processVideo(ctx, video, opts.DryRun)
		record := &VideoRecord{
			VideoID:      video.VideoID,
			ChannelID:    video.ChannelID,
			ChannelName:  video.ChannelName,
			Title:        video.Title,
			PublishedAt:  video.PublishedAt,
			ProcessedAt:  time.Now().UTC(),
			Status:       outcome.status,
			ErrorMessage: outcome.errorMessage,
		}
		if err := p.store.Commit(ctx, record); err != nil {
			// Storage failure is fatal for the run, not per-video.
			summary.FinishedAt = time.Now().UTC()
			return summary, err
		}
		p.tally(summary, outcome)
		if p.progress != nil {
			p.progress(i+1, len(candidates))
		}
	}

	summary.FinishedAt = time.Now().UTC()
	if p.ledger != nil {
		summary.QuotaUsed = p.ledger.Used()
		summary.EstimatedCost = p.ledger.Cost()
	}
	p.logReport(summary)
	if fetchErr != nil {
		return summary, fmt.Errorf("source fetch incomplete: %w", fetchErr)
	}
	return summary, nil
}

// fetchObserved runs the source-fetch phase. Quota exhaustion only sets the
// run flag; transient per-channel failures are tolerated. Any other failure
// stops the phase and is returned so the run reports it after the videos
// collected before it are processed.
func (p *Pipeline) fetchObserved(ctx context.Context, summary *RunSummary, since time.Time) ([]VideoRef, error) {
	var fetchErr error
	channels, err := p.source.Subscriptions(ctx)
	if err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			summary.QuotaExhausted = true
			log.Printf("tubedigest: quota exhausted while listing subscriptions: %v", err)
		} else {
			log.Printf("tubedigest: listing subscriptions failed: %v", err)
			fetchErr = err
		}
	}
	log.Printf("tubedigest: found %d subscribed channels", len(channels))

	var observed []VideoRef
	for _, channel := range channels {
		videos, err := p.source.RecentUploads(ctx, channel, since)
		observed = append(observed, videos...)
		if err == nil {
			continue
		}
		if errors.Is(err, ErrQuotaExceeded) {
			summary.QuotaExhausted = true
			log.Printf("tubedigest: quota exhausted fetching uploads, processing what was collected")
			break
		}
		log.Printf("tubedigest: error fetching videos from %s: %v", channel.Name, err)
		if !IsTransient(err) {
			// An auth failure hits every channel alike; stop making doomed
			// calls and surface it.
			fetchErr = err
			break
		}
	}
	summary.VideosFound = len(observed)
	return observed, fetchErr
}

// filterCandidates dedupes the observed videos and drops those the state
// store already marks terminal.
func (p *Pipeline) filterCandidates(ctx context.Context, observed []VideoRef) ([]VideoRef, error) {
	seen := make(map[string]bool, len(observed))
	var candidates []VideoRef
	for _, video := range observed {
		if video.VideoID == "" || seen[video.VideoID] {
			continue
		}
		seen[video.VideoID] = true

		terminal, err := p.store.HasTerminalRecord(ctx, video.VideoID)
		if err != nil {
			return nil, err
		}
		if terminal {
			continue
		}
		candidates = append(candidates, video)
	}
	return candidates, nil
}

// videoOutcome is the tagged result of one per-video attempt. Transitions of
// the state machine are a function of the prior stage's outcome, not of
// errors used as control flow.
type videoOutcome struct {
	status       Status
	errorMessage string
	truncated    bool
	tooLong      bool
}

// processVideo drives one candidate through the linear state machine:
// candidate → extracting → summarizing → sending → committed. Failure at any
// stage short-circuits the remaining stages for this video only; the caller
// commits exactly one record per attempt.
func (p *Pipeline) processVideo(ctx context.Context, video VideoRef, dryRun bool) videoOutcome {
	// Duration gate, cheapest check first.
	duration, err := p.source.VideoDuration(ctx, video.VideoID)
	if err != nil {
		return videoOutcome{status: StatusFailed, errorMessage: err.Error()}
	}
	if duration == 0 {
		return videoOutcome{status: StatusSkipped, errorMessage: "could not fetch video duration"}
	}
	if p.minDuration > 0 && duration < p.minDuration {
		return videoOutcome{
			status:       StatusSkipped,
			errorMessage: fmt.Sprintf("video too short (%s)", duration),
		}
	}
	if p.maxDuration > 0 && duration > p.maxDuration {
		return videoOutcome{
			status:       StatusSkipped,
			errorMessage: fmt.Sprintf("video too long (%s)", duration),
			tooLong:      true,
		}
	}

	// Extracting.
	transcript, err := p.transcripts.Fetch(ctx, video.VideoID, p.languages)
	if err != nil {
		if errors.Is(err, ErrNoTranscript) {
			return videoOutcome{status: StatusSkipped, errorMessage: "no transcript available"}
		}
		return videoOutcome{status: StatusFailed, errorMessage: err.Error()}
	}

	// Summarizing and narrating, retried as one billed stage.
	var summary *Summary
	var audio []byte
	err = p.summarizeRetry.Do(ctx, func(ctx context.Context) error {
		var err error
		summary, err = p.summarizer.Summarize(ctx, transcript, video)
		if err != nil {
			return err
		}
		audio, err = p.summarizer.Narrate(ctx, summary.Text)
		return err
	})
	if err != nil {
		return videoOutcome{status: StatusFailed, errorMessage: err.Error()}
	}

	// Sending. In dry-run mode the sender is never invoked and an audit
	// record is committed instead of completed.
	if dryRun {
		log.Printf("tubedigest: dry run, email not sent for %s", video.VideoID)
		return videoOutcome{status: StatusDryRun, truncated: summary.Truncated}
	}
	err = p.sender.Send(ctx, &Digest{Video: video, Summary: summary.Text, Audio: audio})
	if err != nil {
		return videoOutcome{status: StatusFailed, errorMessage: err.Error(), truncated: summary.Truncated}
	}
	return videoOutcome{status: StatusCompleted, truncated: summary.Truncated}
}

func (p *Pipeline) tally(summary *RunSummary, outcome videoOutcome) {
	switch outcome.status {
	case StatusCompleted, StatusDryRun:
		summary.Completed++
	case StatusFailed:
		summary.Failed++
	case StatusSkipped:
		if outcome.tooLong {
			summary.SkippedTooLong++
		} else {
			summary.Skipped++
		}
	}
	if outcome.truncated {
		summary.Truncated++
	}
}

func (p *Pipeline) logReport(summary *RunSummary) {
	log.Printf("tubedigest: run %s finished in %s", summary.RunID, summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond))
	log.Printf("tubedigest: found=%d new=%d completed=%d failed=%d skipped=%d skipped_too_long=%d truncated=%d",
		summary.VideosFound, summary.NewVideos, summary.Completed, summary.Failed,
		summary.Skipped, summary.SkippedTooLong, summary.Truncated)
	log.Printf("tubedigest: quota_used=%d quota_exhausted=%v estimated_cost=$%.4f",
		summary.QuotaUsed, summary.QuotaExhausted, summary.EstimatedCost)
}
