package store

import (
	"context"
	"fmt"
	"time"
)

// HistoryRetention is how long terminal scan outcomes are kept.
const HistoryRetention = 30 * 24 * time.Hour

// HistoryEntry is the recorded outcome of one processed scan.
type HistoryEntry struct {
	ID          int64     `db:"id" json:"id"`
	EventID     string    `db:"event_id" json:"eventId"`
	TagID       string    `db:"tag_id" json:"tagId"`
	State       string    `db:"state" json:"state"`
	Artist      string    `db:"artist" json:"artist,omitempty"`
	Album       string    `db:"album" json:"album,omitempty"`
	Submitted   int       `db:"submitted" json:"submitted"`
	Accepted    int       `db:"accepted" json:"accepted"`
	Ignored     int       `db:"ignored" json:"ignored"`
	Error       string    `db:"error" json:"error,omitempty"`
	ProcessedAt time.Time `db:"-" json:"processedAt"`
}

type historyRow struct {
	HistoryEntry
	ProcessedAtUnix int64 `db:"processed_at"`
}

// History is the append-only log of scan outcomes for one app ID.
type History struct {
	store *Store
	appID string
	now   func() time.Time
}

// NewHistory returns the history repository scoped to appID.
func NewHistory(s *Store, appID string) *History {
	return &History{store: s, appID: appID, now: time.Now}
}

// Record appends entry and returns its ID. A zero ProcessedAt is set to now.
func (h *History) Record(ctx context.Context, entry HistoryEntry) (int64, error) {
	if entry.ProcessedAt.IsZero() {
		entry.ProcessedAt = h.now()
	}

	result, err := h.store.db.ExecContext(ctx, `
		INSERT INTO scan_history
			(app_id, event_id, tag_id, state, artist, album, submitted, accepted, ignored, error, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, h.appID, entry.EventID, entry.TagID, entry.State, entry.Artist, entry.Album,
		entry.Submitted, entry.Accepted, entry.Ignored, entry.Error, entry.ProcessedAt.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to record scan history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get insert id: %w", err)
	}
	return id, nil
}

// List returns the most recent entries, newest first. A limit <= 0 means no limit.
func (h *History) List(ctx context.Context, limit int) ([]HistoryEntry, error) {
	query := `
		SELECT id, event_id, tag_id, state, artist, album, submitted, accepted, ignored, error, processed_at
		FROM scan_history
		WHERE app_id = ?
		ORDER BY processed_at DESC, id DESC
	`
	args := []any{h.appID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var rows []historyRow
	if err := h.store.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query scan history: %w", err)
	}

	entries := make([]HistoryEntry, 0, len(rows))
	for _, r := range rows {
		e := r.HistoryEntry
		e.ProcessedAt = time.Unix(r.ProcessedAtUnix, 0)
		entries = append(entries, e)
	}
	return entries, nil
}

// Cleanup removes entries older than maxAge and returns how many were deleted.
func (h *History) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := h.now().Add(-maxAge).Unix()

	result, err := h.store.db.ExecContext(ctx,
		`DELETE FROM scan_history WHERE app_id = ? AND processed_at < ?`, h.appID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup scan history: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}
