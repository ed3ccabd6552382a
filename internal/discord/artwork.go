package discord

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// negativeCacheTTL is how long a miss is remembered before retrying.
const negativeCacheTTL = 30 * time.Minute

// artworkLookup finds cover art URLs through the iTunes Search API and
// remembers them per album. Hits are kept for the life of the process.
type artworkLookup struct {
	mu       sync.Mutex
	cache    map[string]artworkEntry
	client   *http.Client
	endpoint string
	now      func() time.Time
}

type artworkEntry struct {
	url     string
	expires time.Time // zero for hits
}

func newArtworkLookup() *artworkLookup {
	return &artworkLookup{
		cache:    make(map[string]artworkEntry),
		client:   &http.Client{Timeout: 3 * time.Second},
		endpoint: "https://itunes.apple.com/search",
		now:      time.Now,
	}
}

type itunesResponse struct {
	Results []itunesResult `json:"results"`
}

type itunesResult struct {
	ArtworkURL100 string `json:"artworkUrl100"`
}

// Lookup returns a cover URL for the album, or "" when none is found.
func (a *artworkLookup) Lookup(ctx context.Context, artist, album string) string {
	key := strings.ToLower(artist + "\x00" + album)
	a.mu.Lock()
	if e, ok := a.cache[key]; ok && (e.expires.IsZero() || a.now().Before(e.expires)) {
		a.mu.Unlock()
		return e.url
	}
	a.mu.Unlock()

	entry := artworkEntry{url: a.fetch(ctx, artist, album)}
	if entry.url == "" {
		entry.expires = a.now().Add(negativeCacheTTL)
	}

	a.mu.Lock()
	a.cache[key] = entry
	a.mu.Unlock()
	return entry.url
}

func (a *artworkLookup) fetch(ctx context.Context, artist, album string) string {
	query := url.Values{
		"term":   {artist + " " + album},
		"entity": {"album"},
		"limit":  {"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return ""
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return ""
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return ""
	}

	var result itunesResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return ""
	}
	if len(result.Results) == 0 || result.Results[0].ArtworkURL100 == "" {
		return ""
	}

	// 100x100 is the size the search returns; the CDN serves any size.
	return strings.Replace(result.Results[0].ArtworkURL100, "100x100bb", "600x600bb", 1)
}
