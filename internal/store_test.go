package internal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestStore_CommitAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	published := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rec := &VideoRecord{
		VideoID:     "v1",
		ChannelID:   "ch1",
		ChannelName: "Channel One",
		Title:       "A Video",
		PublishedAt: published,
		Status:      StatusCompleted,
	}
	if err := store.Commit(ctx, rec); err != nil {
		t.Fatalf("commit: %v", err)
	}

	got, err := store.Get(ctx, "v1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "A Video" || got.Status != StatusCompleted {
		t.Fatalf("unexpected record: %+v", got)
	}
	if !got.PublishedAt.Equal(published) {
		t.Fatalf("expected published %v, got %v", published, got.PublishedAt)
	}
	if got.ProcessedAt.IsZero() {
		t.Fatal("expected processed_at to be set")
	}
}

func TestStore_GetMissingReturnsNotFound(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_CommitIsIdempotentUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := &VideoRecord{VideoID: "v1", ChannelID: "ch1", Title: "A Video", Status: StatusFailed, ErrorMessage: "smtp timeout"}
	if err := store.Commit(ctx, rec); err != nil {
		t.Fatalf("first commit: %v", err)
	}

	// Re-committing with a new status overwrites in place, never duplicates.
	rec.Status = StatusCompleted
	rec.ErrorMessage = ""
	if err := store.Commit(ctx, rec); err != nil {
		t.Fatalf("second commit: %v", err)
	}

	records, err := store.All(ctx)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record after upsert, got %d", len(records))
	}
	if records[0].Status != StatusCompleted || records[0].ErrorMessage != "" {
		t.Fatalf("expected overwritten record, got %+v", records[0])
	}
}

func TestStore_CommitRequiresVideoID(t *testing.T) {
	store := newTestStore(t)
	if err := store.Commit(context.Background(), &VideoRecord{Status: StatusCompleted}); err == nil {
		t.Fatal("expected error for empty video id")
	}
}

func TestStore_HasTerminalRecordPerStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cases := []struct {
		status   Status
		terminal bool
	}{
		{StatusCompleted, true},
		{StatusSkipped, true},
		{StatusFailed, false},
		{StatusDryRun, false},
		{StatusPending, false},
	}
	for _, tc := range cases {
		videoID := "v-" + string(tc.status)
		if err := store.Commit(ctx, &VideoRecord{VideoID: videoID, ChannelID: "ch1", Title: "t", Status: tc.status}); err != nil {
			t.Fatalf("commit %s: %v", tc.status, err)
		}
		terminal, err := store.HasTerminalRecord(ctx, videoID)
		if err != nil {
			t.Fatalf("lookup %s: %v", tc.status, err)
		}
		if terminal != tc.terminal {
			t.Errorf("status %s: terminal = %v, want %v", tc.status, terminal, tc.terminal)
		}
	}

	terminal, err := store.HasTerminalRecord(ctx, "missing")
	if err != nil {
		t.Fatalf("lookup missing: %v", err)
	}
	if terminal {
		t.Fatal("missing record must not be terminal")
	}
}

func TestStore_Stats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, status := range []Status{StatusCompleted, StatusCompleted, StatusFailed, StatusSkipped} {
		rec := &VideoRecord{
			VideoID:   "v" + string(rune('1'+i)),
			ChannelID: "ch1",
			Title:     "t",
			Status:    status,
		}
		if err := store.Commit(ctx, rec); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalVideos != 4 {
		t.Fatalf("expected 4 total, got %d", stats.TotalVideos)
	}
	if stats.StatusBreakdown[StatusCompleted] != 2 || stats.StatusBreakdown[StatusFailed] != 1 {
		t.Fatalf("unexpected breakdown: %+v", stats.StatusBreakdown)
	}
	if stats.ProcessedToday != 4 || stats.ProcessedWeek != 4 {
		t.Fatalf("expected all records counted as recent, got today=%d week=%d", stats.ProcessedToday, stats.ProcessedWeek)
	}
}

func TestStore_RecentFailures(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		rec := &VideoRecord{
			VideoID:      "f" + string(rune('1'+i)),
			ChannelID:    "ch1",
			Title:        "t",
			ProcessedAt:  base.Add(time.Duration(i) * time.Minute),
			Status:       StatusFailed,
			ErrorMessage: "boom",
		}
		if err := store.Commit(ctx, rec); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}
	if err := store.Commit(ctx, &VideoRecord{VideoID: "ok", ChannelID: "ch1", Title: "t", Status: StatusCompleted}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	failures, err := store.RecentFailures(ctx, 2)
	if err != nil {
		t.Fatalf("failures: %v", err)
	}
	if len(failures) != 2 {
		t.Fatalf("expected 2 failures, got %d", len(failures))
	}
	if failures[0].VideoID != "f3" {
		t.Fatalf("expected newest failure first, got %s", failures[0].VideoID)
	}
}

func TestStore_CleanupRemovesOldRecords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old := &VideoRecord{
		VideoID:     "old",
		ChannelID:   "ch1",
		Title:       "t",
		ProcessedAt: time.Now().UTC().AddDate(0, 0, -60),
		Status:      StatusCompleted,
	}
	recent := &VideoRecord{VideoID: "recent", ChannelID: "ch1", Title: "t", Status: StatusCompleted}
	for _, rec := range []*VideoRecord{old, recent} {
		if err := store.Commit(ctx, rec); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}

	deleted, err := store.Cleanup(ctx, 30)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted, got %d", deleted)
	}
	if _, err := store.Get(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected old record gone, got %v", err)
	}
	if _, err := store.Get(ctx, "recent"); err != nil {
		t.Fatalf("expected recent record kept: %v", err)
	}
}

func TestOpenStore_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "videos.db")
	store, err := OpenStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	if err := store.Commit(context.Background(), &VideoRecord{VideoID: "v1", ChannelID: "ch1", Title: "t", Status: StatusCompleted}); err != nil {
		t.Fatalf("commit: %v", err)
	}
}
