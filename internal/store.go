package internal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the durable table of per-video processing records. It is the
// sole source of truth for whether a video has been fully handled.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the SQLite database at path. Pass ":memory:"
// for an in-memory store in tests.
func OpenStore(path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, &StorageError{Op: "open", Err: fmt.Errorf("creating data directory: %w", err)}
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}
	db.SetMaxOpenConns(1) // SQLite: single writer

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, &StorageError{Op: "init schema", Err: err}
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS processed_videos (
			video_id      TEXT PRIMARY KEY,
			channel_id    TEXT NOT NULL,
			channel_name  TEXT,
			title         TEXT NOT NULL,
			published_at  TEXT,
			processed_at  TEXT NOT NULL,
			status        TEXT NOT NULL DEFAULT 'completed',
			error_message TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_processed_at ON processed_videos(processed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_channel_id ON processed_videos(channel_id)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// HasTerminalRecord reports whether video_id already has a record whose
// status prevents reprocessing (completed or skipped). Failed and dry_run
// records do not block.
func (s *Store) HasTerminalRecord(ctx context.Context, videoID string) (bool, error) {
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM processed_videos WHERE video_id = ?`, videoID,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, &StorageError{Op: "lookup", VideoID: videoID, Err: err}
	}
	return Status(status).Terminal(), nil
}

// Get returns the record for video_id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, videoID string) (*VideoRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT video_id, channel_id, channel_name, title, published_at, processed_at, status, error_message
		 FROM processed_videos WHERE video_id = ?`, videoID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, videoID)
	}
	if err != nil {
		return nil, &StorageError{Op: "get", VideoID: videoID, Err: err}
	}
	return rec, nil
}

// Commit upserts the record keyed by video_id. The upsert is atomic and
// idempotent: repeating it leaves a row with the same meaning, and
// concurrent commits resolve to last-writer-wins without corrupting the row.
func (s *Store) Commit(ctx context.Context, rec *VideoRecord) error {
	if rec.VideoID == "" {
		return &StorageError{Op: "commit", Err: errors.New("video id is required")}
	}
	processedAt := rec.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO processed_videos
			(video_id, channel_id, channel_name, title, published_at, processed_at, status, error_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(video_id) DO UPDATE SET
			processed_at = excluded.processed_at,
			status = excluded.status,
			error_message = excluded.error_message`,
		rec.VideoID, rec.ChannelID, rec.ChannelName, rec.Title,
		formatTime(rec.PublishedAt), processedAt.Format(time.RFC3339),
		string(rec.Status), rec.ErrorMessage,
	)
	if err != nil {
		return &StorageError{Op: "commit", VideoID: rec.VideoID, Err: err}
	}
	return nil
}

// StoreStats summarizes the processed_videos table for operational
// inspection.
type StoreStats struct {
	TotalVideos     int
	StatusBreakdown map[Status]int
	ProcessedToday  int
	ProcessedWeek   int
}

// Stats returns totals, a per-status breakdown, and recent activity counts.
func (s *Store) Stats(ctx context.Context) (*StoreStats, error) {
	stats := &StoreStats{StatusBreakdown: make(map[Status]int)}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM processed_videos`,
	).Scan(&stats.TotalVideos); err != nil {
		return nil, &StorageError{Op: "stats", Err: err}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM processed_videos GROUP BY status`)
	if err != nil {
		return nil, &StorageError{Op: "stats", Err: err}
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, &StorageError{Op: "stats", Err: err}
		}
		stats.StatusBreakdown[Status(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "stats", Err: err}
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM processed_videos WHERE date(processed_at) = date('now')`,
	).Scan(&stats.ProcessedToday); err != nil {
		return nil, &StorageError{Op: "stats", Err: err}
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM processed_videos WHERE date(processed_at) >= date('now', '-7 days')`,
	).Scan(&stats.ProcessedWeek); err != nil {
		return nil, &StorageError{Op: "stats", Err: err}
	}
	return stats, nil
}

// RecentFailures returns the most recently failed videos, newest first.
func (s *Store) RecentFailures(ctx context.Context, limit int) ([]VideoRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT video_id, channel_id, channel_name, title, published_at, processed_at, status, error_message
		 FROM processed_videos WHERE status = ? ORDER BY processed_at DESC LIMIT ?`,
		string(StatusFailed), limit)
	if err != nil {
		return nil, &StorageError{Op: "failures", Err: err}
	}
	defer rows.Close()
	return collectRecords(rows)
}

// All returns every record for full-table operational inspection, newest
// first.
func (s *Store) All(ctx context.Context) ([]VideoRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT video_id, channel_id, channel_name, title, published_at, processed_at, status, error_message
		 FROM processed_videos ORDER BY processed_at DESC`)
	if err != nil {
		return nil, &StorageError{Op: "scan", Err: err}
	}
	defer rows.Close()
	return collectRecords(rows)
}

// Cleanup deletes records older than the given number of days and returns
// the number removed. Maintenance only; normal operation never deletes.
func (s *Store) Cleanup(ctx context.Context, days int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM processed_videos WHERE date(processed_at) < date('now', ?)`,
		fmt.Sprintf("-%d days", days))
	if err != nil {
		return 0, &StorageError{Op: "cleanup", Err: err}
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, &StorageError{Op: "cleanup", Err: err}
	}
	return deleted, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*VideoRecord, error) {
	var rec VideoRecord
	var status string
	var channelName, publishedAt, errorMessage sql.NullString
	var processedAt string
	if err := row.Scan(&rec.VideoID, &rec.ChannelID, &channelName, &rec.Title,
		&publishedAt, &processedAt, &status, &errorMessage); err != nil {
		return nil, err
	}
	rec.ChannelName = channelName.String
	rec.ErrorMessage = errorMessage.String
	rec.Status = Status(status)
	if publishedAt.String != "" {
		if t, err := time.Parse(time.RFC3339, publishedAt.String); err == nil {
			rec.PublishedAt = t
		}
	}
	if t, err := time.Parse(time.RFC3339, processedAt); err == nil {
		rec.ProcessedAt = t
	}
	return &rec, nil
}

func collectRecords(rows *sql.Rows) ([]VideoRecord, error) {
	var records []VideoRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, &StorageError{Op: "scan", Err: err}
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "scan", Err: err}
	}
	return records, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
