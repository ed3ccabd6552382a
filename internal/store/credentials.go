package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Credential holds the Last.fm application credentials for a user.
type Credential struct {
	APIKey    string
	APISecret string
	Username  string
	UpdatedAt time.Time
}

// Session is an authorized Last.fm session.
type Session struct {
	Key       string
	Name      string
	UpdatedAt time.Time
}

// Credentials stores the credential and session rows for one
// (app ID, user ID) pair.
type Credentials struct {
	store  *Store
	appID  string
	userID string
	now    func() time.Time
}

// NewCredentials returns the credential repository for appID and userID.
func NewCredentials(s *Store, appID, userID string) *Credentials {
	return &Credentials{store: s, appID: appID, userID: userID, now: time.Now}
}

// Get returns the stored credential, or (nil, nil) if none has been saved.
func (c *Credentials) Get(ctx context.Context) (*Credential, error) {
	var row struct {
		APIKey    string `db:"api_key"`
		APISecret string `db:"api_secret"`
		Username  string `db:"username"`
		UpdatedAt int64  `db:"updated_at"`
	}
	err := c.store.db.GetContext(ctx, &row, `
		SELECT api_key, api_secret, username, updated_at
		FROM credentials
		WHERE app_id = ? AND user_id = ?
	`, c.appID, c.userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	return &Credential{
		APIKey:    row.APIKey,
		APISecret: row.APISecret,
		Username:  row.Username,
		UpdatedAt: unixTime(row.UpdatedAt),
	}, nil
}

// Put saves cred, replacing any previous credential.
func (c *Credentials) Put(ctx context.Context, cred Credential) error {
	if cred.APIKey == "" {
		return fmt.Errorf("credentials require an api key")
	}
	_, err := c.store.db.ExecContext(ctx, `
		INSERT INTO credentials (app_id, user_id, api_key, api_secret, username, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(app_id, user_id) DO UPDATE SET
			api_key = excluded.api_key,
			api_secret = excluded.api_secret,
			username = excluded.username,
			updated_at = excluded.updated_at
	`, c.appID, c.userID, cred.APIKey, cred.APISecret, cred.Username, c.now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

// GetSession returns the stored session, or (nil, nil) if none has been saved.
func (c *Credentials) GetSession(ctx context.Context) (*Session, error) {
	var row struct {
		Key       string `db:"session_key"`
		Name      string `db:"name"`
		UpdatedAt int64  `db:"updated_at"`
	}
	err := c.store.db.GetContext(ctx, &row, `
		SELECT session_key, name, updated_at
		FROM sessions
		WHERE app_id = ? AND user_id = ?
	`, c.appID, c.userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	return &Session{Key: row.Key, Name: row.Name, UpdatedAt: unixTime(row.UpdatedAt)}, nil
}

// PutSession saves sess, replacing any previous session.
func (c *Credentials) PutSession(ctx context.Context, sess Session) error {
	if sess.Key == "" {
		return fmt.Errorf("session requires a key")
	}
	_, err := c.store.db.ExecContext(ctx, `
		INSERT INTO sessions (app_id, user_id, session_key, name, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(app_id, user_id) DO UPDATE SET
			session_key = excluded.session_key,
			name = excluded.name,
			updated_at = excluded.updated_at
	`, c.appID, c.userID, sess.Key, sess.Name, c.now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}
