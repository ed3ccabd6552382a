package lastfm

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// Track represents a music track for scrobbling.
type Track struct {
	Artist      string // Required: Artist name
	Track       string // Required: Track name
	Album       string // Optional: Album name
	AlbumArtist string // Optional: Album artist (if different from track artist)
	Duration    int    // Optional: Track duration in seconds
	TrackNumber int    // Optional: Track number on album
	MBTrackID   string // Optional: MusicBrainz track ID
}

// Scrobble represents a single scrobble with timestamp.
type Scrobble struct {
	Track     Track     // The track being scrobbled
	Timestamp time.Time // When the track was played
}

// Token represents an authentication token from auth.getToken.
type Token struct {
	Token string // The authentication token
}

// Session represents an authenticated session from auth.getSession.
type Session struct {
	Key        string // Session key for authenticated requests
	Username   string // Last.fm username
	Subscriber bool   // Whether user is a subscriber
}

// AlbumInfo represents the response from album.getinfo.
type AlbumInfo struct {
	Artist string
	Name   string
	MBID   string
	URL    string
	Tracks []AlbumTrack // In the order Last.fm returned them
}

// AlbumTrack is one entry of an album's tracklist.
type AlbumTrack struct {
	Name     string
	Duration int // Seconds, 0 when unknown
	Rank     int // 1-based position reported by Last.fm, 0 when absent
}

// IgnoredMessage explains why Last.fm ignored a scrobble.
type IgnoredMessage struct {
	Code int
	Text string
}

// ScrobbleResult is the per-entry result of track.scrobble.
type ScrobbleResult struct {
	Artist         string
	Track          string
	Album          string
	Timestamp      int64
	IgnoredMessage IgnoredMessage
}

// ScrobbleResponse represents the response from track.scrobble.
type ScrobbleResponse struct {
	Accepted  int // Number of scrobbles accepted
	Ignored   int // Number of scrobbles ignored
	Scrobbles []ScrobbleResult
}

// flexInt decodes integers Last.fm sends either as numbers or as strings.
type flexInt int

func (n *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*n = 0
			return nil
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			return err
		}
		*n = flexInt(v)
		return nil
	}
	var v json.Number
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	i, err := v.Int64()
	if err != nil {
		f, ferr := v.Float64()
		if ferr != nil {
			return err
		}
		i = int64(f)
	}
	*n = flexInt(i)
	return nil
}

// textField decodes values sent as {"#text": "...", "corrected": "0"}
// as well as plain strings.
type textField string

func (t *textField) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var obj struct {
			Text string `json:"#text"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		*t = textField(obj.Text)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*t = textField(s)
	return nil
}

// oneOrMany decodes a field that Last.fm sends as a bare object when it
// holds a single element and as an array otherwise.
type oneOrMany[T any] []T

func (l *oneOrMany[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) || bytes.Equal(data, []byte(`""`)) {
		*l = nil
		return nil
	}
	if data[0] == '[' {
		var items []T
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	var one T
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*l = oneOrMany[T]{one}
	return nil
}
