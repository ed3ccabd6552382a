package lastfm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// ScrobbleService provides scrobbling operations for the Last.fm API.
type ScrobbleService struct {
	client *Client
}

const (
	// MaxBatchSize is the maximum number of scrobbles allowed in a single batch.
	MaxBatchSize = 50
)

// ScrobbleBatch submits multiple scrobbles to Last.fm in a single request.
//
// Up to MaxBatchSize scrobbles can be submitted at once; larger slices are
// rejected with ErrBatchTooLarge so that nothing is silently dropped.
// Entries are indexed in slice order (artist[0], track[0], ...).
//
// Requires authentication (session key must be set via SetSessionKey).
//
// Example:
//
//	scrobbles := []lastfm.Scrobble{
//	    {
//	        Track:     lastfm.Track{Artist: "Pink Floyd", Track: "Speak to Me"},
//	        Timestamp: time.Now().Add(-4 * time.Minute),
//	    },
//	    {
//	        Track:     lastfm.Track{Artist: "Pink Floyd", Track: "Breathe"},
//	        Timestamp: time.Now(),
//	    },
//	}
//	resp, err := client.Scrobble().ScrobbleBatch(ctx, scrobbles)
//	if err != nil {
//	    log.Printf("Failed to scrobble batch: %v", err)
//	}
//	fmt.Printf("Accepted: %d, Ignored: %d\n", resp.Accepted, resp.Ignored)
func (s *ScrobbleService) ScrobbleBatch(ctx context.Context, scrobbles []Scrobble) (*ScrobbleResponse, error) {
	if s.client.sessionKey == "" {
		return nil, ErrNoSessionKey
	}
	if len(scrobbles) == 0 {
		return &ScrobbleResponse{}, nil
	}
	if len(scrobbles) > MaxBatchSize {
		return nil, fmt.Errorf("%w: got %d, max %d", ErrBatchTooLarge, len(scrobbles), MaxBatchSize)
	}

	params := map[string]string{
		"sk": s.client.sessionKey,
	}

	// Add batch parameters with indexed keys
	for i, scrobble := range scrobbles {
		idx := fmt.Sprintf("[%d]", i)
		params["artist"+idx] = scrobble.Track.Artist
		params["track"+idx] = scrobble.Track.Track
		params["timestamp"+idx] = strconv.FormatInt(scrobble.Timestamp.Unix(), 10)

		// Add optional parameters
		if scrobble.Track.Album != "" {
			params["album"+idx] = scrobble.Track.Album
		}
		if scrobble.Track.AlbumArtist != "" {
			params["albumArtist"+idx] = scrobble.Track.AlbumArtist
		}
		if scrobble.Track.Duration > 0 {
			params["duration"+idx] = strconv.Itoa(scrobble.Track.Duration)
		}
		if scrobble.Track.TrackNumber > 0 {
			params["trackNumber"+idx] = strconv.Itoa(scrobble.Track.TrackNumber)
		}
		if scrobble.Track.MBTrackID != "" {
			params["mbid"+idx] = scrobble.Track.MBTrackID
		}
	}

	raw, err := s.client.Request(ctx, "track.scrobble", params, http.MethodPost, true)
	if err != nil {
		return nil, err
	}

	resp, err := unmarshalScrobbles(raw)
	if err != nil {
		return nil, &TransportError{Method: "track.scrobble", Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}

	return resp, nil
}

// scrobbleResponse represents the JSON response from track.scrobble.
type scrobbleResponse struct {
	Scrobbles *struct {
		Attr struct {
			Accepted flexInt `json:"accepted"`
			Ignored  flexInt `json:"ignored"`
		} `json:"@attr"`
		Scrobble oneOrMany[scrobbleJSON] `json:"scrobble"`
	} `json:"scrobbles"`
}

type scrobbleJSON struct {
	Artist         textField `json:"artist"`
	Track          textField `json:"track"`
	Album          textField `json:"album"`
	Timestamp      flexInt   `json:"timestamp"`
	IgnoredMessage struct {
		Code flexInt `json:"code"`
		Text string  `json:"#text"`
	} `json:"ignoredMessage"`
}

// unmarshalScrobbles parses the JSON response from track.scrobble.
func unmarshalScrobbles(data []byte) (*ScrobbleResponse, error) {
	var resp scrobbleResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scrobble response: %w", err)
	}
	if resp.Scrobbles == nil {
		return nil, fmt.Errorf("missing scrobbles element")
	}

	result := &ScrobbleResponse{
		Accepted:  int(resp.Scrobbles.Attr.Accepted),
		Ignored:   int(resp.Scrobbles.Attr.Ignored),
		Scrobbles: make([]ScrobbleResult, 0, len(resp.Scrobbles.Scrobble)),
	}

	for _, s := range resp.Scrobbles.Scrobble {
		result.Scrobbles = append(result.Scrobbles, ScrobbleResult{
			Artist:    string(s.Artist),
			Track:     string(s.Track),
			Album:     string(s.Album),
			Timestamp: int64(s.Timestamp),
			IgnoredMessage: IgnoredMessage{
				Code: int(s.IgnoredMessage.Code),
				Text: s.IgnoredMessage.Text,
			},
		})
	}

	return result, nil
}
