// Package catalog looks up releases by barcode in the Discogs database so a
// tag can be mapped by scanning the sleeve instead of typing the title.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/unicode/norm"
)

const (
	// DefaultBaseURL is the Discogs API endpoint.
	DefaultBaseURL = "https://api.discogs.com"

	// DefaultTimeout bounds a lookup.
	DefaultTimeout = 10 * time.Second

	// UnknownArtist is used when a result carries no artist.
	UnknownArtist = "Unknown Artist"

	userAgent = "crate/1.0 +https://github.com/jfmyers9/crate"
)

var (
	// ErrNoMatch is returned when the barcode matches no release.
	ErrNoMatch = errors.New("catalog: no release matches barcode")

	// ErrEmptyBarcode is returned for a blank barcode.
	ErrEmptyBarcode = errors.New("catalog: empty barcode")
)

// Release is the artist and title found for a barcode.
type Release struct {
	Artist  string `json:"artist"`
	Album   string `json:"album"`
	Year    string `json:"year,omitempty"`
	Barcode string `json:"barcode"`
}

// Config configures a Client.
type Config struct {
	Token      string // Personal access token; optional but rate limits are low without it
	BaseURL    string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client queries the Discogs database search.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// New creates a Client.
func New(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		token:      cfg.Token,
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     cfg.Logger.With().Str("component", "catalog").Logger(),
	}
}

type searchResponse struct {
	Results []struct {
		Title  string          `json:"title"`
		Year   json.RawMessage `json:"year"`
		Artist json.RawMessage `json:"artist"`
	} `json:"results"`
}

// LookupBarcode returns the first release matching barcode.
func (c *Client) LookupBarcode(ctx context.Context, barcode string) (*Release, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return nil, ErrEmptyBarcode
	}

	q := url.Values{}
	q.Set("barcode", barcode)
	q.Set("type", "release")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/database/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Discogs token="+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog lookup failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog lookup failed: unexpected status code %d", resp.StatusCode)
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("failed to decode catalog response: %w", err)
	}
	if len(sr.Results) == 0 {
		return nil, ErrNoMatch
	}

	first := sr.Results[0]
	release := splitTitle(first.Title, firstString(first.Artist))
	release.Year = firstString(first.Year)
	release.Barcode = barcode

	c.logger.Debug().
		Str("barcode", barcode).
		Str("artist", release.Artist).
		Str("album", release.Album).
		Int("results", len(sr.Results)).
		Msg("Barcode matched")

	return release, nil
}

// splitTitle splits a Discogs "Artist - Title" string on its first " - ".
func splitTitle(title, fallbackArtist string) *Release {
	title = strings.TrimSpace(norm.NFC.String(title))
	if artist, album, ok := strings.Cut(title, " - "); ok {
		return &Release{Artist: strings.TrimSpace(artist), Album: strings.TrimSpace(album)}
	}

	artist := strings.TrimSpace(norm.NFC.String(fallbackArtist))
	if artist == "" {
		artist = UnknownArtist
	}
	return &Release{Artist: artist, Album: title}
}

// firstString decodes a field that may be a string, a number or a list of strings.
func firstString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return list[0]
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
