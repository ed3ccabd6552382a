package scrobbler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jfmyers9/crate/pkg/lastfm"
	"github.com/rs/zerolog"
)

// Options configures a Client.
type Options struct {
	APIKey     string
	APISecret  string
	SessionKey string
	Username   string // Passed to album.getinfo; optional

	BaseURL string        // Defaults to lastfm.DefaultBaseURL
	Timeout time.Duration // Per-request timeout; defaults to lastfm.DefaultTimeout

	Logger zerolog.Logger
}

// Client wraps the Last.fm API client
type Client struct {
	client   *lastfm.Client
	username string
	logger   zerolog.Logger
}

// Result summarizes a submitted batch.
type Result struct {
	Submitted int
	Accepted  int
	Ignored   int
}

// New creates a new Last.fm client
func New(opts Options) (*Client, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = lastfm.DefaultTimeout
	}

	logger := opts.Logger.With().Str("component", "lastfm").Logger()

	client, err := lastfm.NewClient(lastfm.Config{
		APIKey:     opts.APIKey,
		APISecret:  opts.APISecret,
		SessionKey: opts.SessionKey,
		BaseURL:    opts.BaseURL,
		HTTPClient: &http.Client{Timeout: timeout},
		Logger:     zerologAdapter{logger: logger},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create lastfm client: %w", err)
	}

	return &Client{
		client:   client,
		username: opts.Username,
		logger:   logger,
	}, nil
}

// AuthenticateWithToken initiates the authentication flow
// Returns the auth URL that the user should visit
func (c *Client) AuthenticateWithToken(ctx context.Context) (token string, authURL string, err error) {
	tokenResp, err := c.client.Auth().GetToken(ctx)
	if err != nil {
		return "", "", fmt.Errorf("failed to get auth token: %w", err)
	}

	authURL = c.client.Auth().GetAuthURL(tokenResp.Token)
	return tokenResp.Token, authURL, nil
}

// GetSession completes the authentication flow after user authorization.
// The returned session should be stored for future use.
func (c *Client) GetSession(ctx context.Context, token string) (*lastfm.Session, error) {
	session, err := c.client.Auth().GetSession(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to login with token: %w", err)
	}

	c.client.SetSessionKey(session.Key)
	return session, nil
}

// FetchTracklist returns the named tracks of an album in Last.fm's order.
func (c *Client) FetchTracklist(ctx context.Context, artist, album string) ([]Track, error) {
	info, err := c.client.Album().GetInfo(ctx, artist, album, c.username)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tracklist for %s - %s: %w", artist, album, err)
	}

	tracks := TracksFromAlbum(info.Tracks)
	c.logger.Debug().
		Str("artist", artist).
		Str("album", album).
		Int("tracks", len(tracks)).
		Int("dropped", len(info.Tracks)-len(tracks)).
		Msg("Fetched tracklist")

	return tracks, nil
}

// Submit sends every entry of batch in slice order, splitting it into
// requests of at most MaxBatchSize. Counts are summed across requests; on
// error the counts of the requests that completed are returned with it.
func (c *Client) Submit(ctx context.Context, batch *Batch) (Result, error) {
	if batch == nil || len(batch.Entries) == 0 {
		return Result{}, ErrEmptyTracklist
	}
	if batch.SessionKey != "" {
		c.client.SetSessionKey(batch.SessionKey)
	}

	var result Result
	for start := 0; start < len(batch.Entries); start += MaxBatchSize {
		end := min(start+MaxBatchSize, len(batch.Entries))
		chunk := batch.Entries[start:end]

		// Only artist, track, album and timestamp are sent per entry
		scrobbles := make([]lastfm.Scrobble, len(chunk))
		for i, e := range chunk {
			scrobbles[i] = lastfm.Scrobble{
				Track: lastfm.Track{
					Artist: e.Artist,
					Track:  e.Track,
					Album:  e.Album,
				},
				Timestamp: e.Timestamp,
			}
		}

		resp, err := c.client.Scrobble().ScrobbleBatch(ctx, scrobbles)
		if err != nil {
			return result, fmt.Errorf("failed to scrobble batch: %w", err)
		}

		result.Submitted += len(chunk)
		result.Accepted += resp.Accepted
		result.Ignored += resp.Ignored

		for _, s := range resp.Scrobbles {
			if s.IgnoredMessage.Code != 0 {
				c.logger.Warn().
					Str("track", s.Track).
					Int("code", s.IgnoredMessage.Code).
					Str("reason", s.IgnoredMessage.Text).
					Msg("Scrobble ignored")
			}
		}
	}

	return result, nil
}

// IsAuthenticated checks if the client has a valid session
func (c *Client) IsAuthenticated() bool {
	return c.client.GetSessionKey() != ""
}

// GetSessionKey returns the current session key
func (c *Client) GetSessionKey() string {
	return c.client.GetSessionKey()
}
