package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrEmptyTag is returned when publishing a scan without a tag ID.
var ErrEmptyTag = errors.New("store: empty tag id")

// Scan event sources.
const (
	SourceMQTT   = "mqtt"
	SourceHTTP   = "http"
	SourceReader = "reader"
	SourceCLI    = "cli"
)

// ScanEvent is one observation of a tag by a reader. Events are transient:
// the processor deletes the row when it claims it.
type ScanEvent struct {
	ID         string    `json:"id"`
	TagID      string    `json:"tagId"`
	Source     string    `json:"source"`
	ReceivedAt time.Time `json:"receivedAt"`
}

type eventRow struct {
	ID         string `db:"id"`
	TagID      string `db:"tag_id"`
	Source     string `db:"source"`
	ReceivedAt int64  `db:"received_at"`
}

// Events is the inbound scan event table for one app ID.
type Events struct {
	store *Store
	appID string
	now   func() time.Time
}

// NewEvents returns the event repository scoped to appID.
func NewEvents(s *Store, appID string) *Events {
	return &Events{store: s, appID: appID, now: time.Now}
}

// Publish records a scan of tagID and returns the stored event.
func (e *Events) Publish(ctx context.Context, tagID, source string) (ScanEvent, error) {
	tagID = NormalizeTag(tagID)
	if tagID == "" {
		return ScanEvent{}, ErrEmptyTag
	}

	ev := ScanEvent{
		ID:         uuid.NewString(),
		TagID:      tagID,
		Source:     source,
		ReceivedAt: e.now(),
	}

	_, err := e.store.db.ExecContext(ctx, `
		INSERT INTO scan_events (id, app_id, tag_id, source, received_at)
		VALUES (?, ?, ?, ?, ?)
	`, ev.ID, e.appID, ev.TagID, ev.Source, ev.ReceivedAt.UnixNano())
	if err != nil {
		return ScanEvent{}, fmt.Errorf("failed to publish scan of %s: %w", tagID, err)
	}
	return ev, nil
}

// Pending returns unclaimed events, oldest first. A limit <= 0 means no limit.
func (e *Events) Pending(ctx context.Context, limit int) ([]ScanEvent, error) {
	query := `
		SELECT id, tag_id, source, received_at
		FROM scan_events
		WHERE app_id = ?
		ORDER BY received_at ASC, id ASC
	`
	args := []any{e.appID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var rows []eventRow
	if err := e.store.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query pending scans: %w", err)
	}

	events := make([]ScanEvent, 0, len(rows))
	for _, r := range rows {
		events = append(events, ScanEvent{
			ID:         r.ID,
			TagID:      r.TagID,
			Source:     r.Source,
			ReceivedAt: time.Unix(0, r.ReceivedAt),
		})
	}
	return events, nil
}

// Claim deletes the event row. It reports true only to the single caller
// whose delete removed the row; every other caller gets false.
func (e *Events) Claim(ctx context.Context, id string) (bool, error) {
	result, err := e.store.db.ExecContext(ctx,
		`DELETE FROM scan_events WHERE id = ? AND app_id = ?`, id, e.appID)
	if err != nil {
		return false, fmt.Errorf("failed to claim scan %s: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}
