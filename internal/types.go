package internal

import (
	"time"
	"unicode/utf8"
)

// Status is the processing state of a video record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	// StatusDryRun records a video that reached the send stage during a dry
	// run. It is an audit marker, not a terminal state: a later real run
	// processes the video normally.
	StatusDryRun Status = "dry_run"
)

// Terminal reports whether this status prevents reprocessing on later runs.
// Failed videos become candidates again on the next run; dry-run audit
// records never block.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusSkipped
}

// VideoRecord is one row in the processed_videos table, keyed by the stable
// YouTube video ID. Descriptive metadata is set once at first observation
// and never re-fetched.
type VideoRecord struct {
	VideoID      string
	ChannelID    string
	ChannelName  string
	Title        string
	PublishedAt  time.Time
	ProcessedAt  time.Time
	Status       Status
	ErrorMessage string
}

// ChannelRef identifies one subscribed channel.
type ChannelRef struct {
	ChannelID string
	Name      string
}

// VideoRef is a candidate video observed from a channel's uploads.
type VideoRef struct {
	VideoID      string
	ChannelID    string
	ChannelName  string
	Title        string
	PublishedAt  time.Time
	ThumbnailURL string
}

// URL returns the canonical watch URL for the video.
func (v VideoRef) URL() string {
	return "https://youtube.com/watch?v=" + v.VideoID
}

// cutAtRuneBoundary returns the longest prefix of s that is at most max
// bytes long and does not split a multi-byte rune.
func cutAtRuneBoundary(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// Transcript is a cleaned caption track for one video.
type Transcript struct {
	VideoID  string
	Language string
	// Generated is true when the track is auto-generated (ASR).
	Generated bool
	Text      string
}

// Summary is the summarizer output for one transcript.
type Summary struct {
	Text string
	// Truncated is true when the transcript exceeded the input size limit
	// and only a prefix was summarized.
	Truncated bool
	// EstimatedCost is the estimated USD cost of the completion call.
	EstimatedCost float64
}

// Digest is the rendered notification payload for one completed video.
type Digest struct {
	Video   VideoRef
	Summary string
	// Audio is the MP3 narration of the summary, attached to the email.
	Audio []byte
}

// RunSummary aggregates one pipeline invocation for the end-of-run report.
// It has no persisted identity.
type RunSummary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	DryRun     bool

	VideosFound    int
	NewVideos      int
	Completed      int
	Failed         int
	Skipped        int
	SkippedTooLong int
	Truncated      int

	QuotaUsed      int
	QuotaExhausted bool
	EstimatedCost  float64
}
