package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidAlbum is returned when an album mapping lacks a tag, artist or title.
var ErrInvalidAlbum = errors.New("store: album mapping requires tag, artist and album")

// Album maps one RFID tag to a release.
type Album struct {
	TagID     string    `json:"tagId"`
	Artist    string    `json:"artist"`
	Album     string    `json:"album"`
	Owner     string    `json:"owner,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type albumRow struct {
	TagID     string `db:"tag_id"`
	Artist    string `db:"artist"`
	Album     string `db:"album"`
	Owner     string `db:"owner"`
	UpdatedAt int64  `db:"updated_at"`
}

func (r albumRow) album() Album {
	return Album{
		TagID:     r.TagID,
		Artist:    r.Artist,
		Album:     r.Album,
		Owner:     r.Owner,
		UpdatedAt: unixTime(r.UpdatedAt),
	}
}

// Albums is the tag-to-album mapping table for one app ID.
type Albums struct {
	store *Store
	appID string
	now   func() time.Time
}

// NewAlbums returns the mapping repository scoped to appID.
func NewAlbums(s *Store, appID string) *Albums {
	return &Albums{store: s, appID: appID, now: time.Now}
}

// Resolve looks up the album for tagID. An unknown tag yields (nil, nil).
func (a *Albums) Resolve(ctx context.Context, tagID string) (*Album, error) {
	tagID = NormalizeTag(tagID)
	if tagID == "" {
		return nil, nil
	}

	var row albumRow
	err := a.store.db.GetContext(ctx, &row, `
		SELECT tag_id, artist, album, owner, updated_at
		FROM albums
		WHERE app_id = ? AND tag_id = ?
	`, a.appID, tagID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tag %s: %w", tagID, err)
	}

	album := row.album()
	return &album, nil
}

// Upsert creates or replaces the mapping for album.TagID. Last write wins.
func (a *Albums) Upsert(ctx context.Context, album Album) error {
	album.TagID = NormalizeTag(album.TagID)
	album.Artist = strings.TrimSpace(album.Artist)
	album.Album = strings.TrimSpace(album.Album)
	if album.TagID == "" || album.Artist == "" || album.Album == "" {
		return ErrInvalidAlbum
	}

	_, err := a.store.db.ExecContext(ctx, `
		INSERT INTO albums (app_id, tag_id, artist, album, owner, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(app_id, tag_id) DO UPDATE SET
			artist = excluded.artist,
			album = excluded.album,
			owner = excluded.owner,
			updated_at = excluded.updated_at
	`, a.appID, album.TagID, album.Artist, album.Album, strings.TrimSpace(album.Owner), a.now().Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert album %s: %w", album.TagID, err)
	}
	return nil
}

// Delete removes the mapping for tagID, returning ErrNotFound if none exists.
func (a *Albums) Delete(ctx context.Context, tagID string) error {
	tagID = NormalizeTag(tagID)

	result, err := a.store.db.ExecContext(ctx,
		`DELETE FROM albums WHERE app_id = ? AND tag_id = ?`, a.appID, tagID)
	if err != nil {
		return fmt.Errorf("failed to delete album %s: %w", tagID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("album %s: %w", tagID, ErrNotFound)
	}
	return nil
}

// List returns every mapping ordered by artist then album.
func (a *Albums) List(ctx context.Context) ([]Album, error) {
	var rows []albumRow
	err := a.store.db.SelectContext(ctx, &rows, `
		SELECT tag_id, artist, album, owner, updated_at
		FROM albums
		WHERE app_id = ?
		ORDER BY artist COLLATE NOCASE, album COLLATE NOCASE, tag_id
	`, a.appID)
	if err != nil {
		return nil, fmt.Errorf("failed to list albums: %w", err)
	}

	albums := make([]Album, 0, len(rows))
	for _, r := range rows {
		albums = append(albums, r.album())
	}
	return albums, nil
}
