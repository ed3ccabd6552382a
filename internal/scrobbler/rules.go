package scrobbler

import (
	"errors"
	"strings"
	"time"

	"github.com/jfmyers9/crate/pkg/lastfm"
)

// Album scrobbling rules
const (
	// TrackSpacing is the gap synthesized between consecutive tracks. The
	// last track of a batch is stamped with the reference time and each
	// earlier track TrackSpacing before the one after it.
	TrackSpacing = 240 * time.Second

	// MaxBatchSize is the largest number of entries sent in one request.
	MaxBatchSize = lastfm.MaxBatchSize
)

// ErrEmptyTracklist is returned when an album has no scrobblable tracks.
var ErrEmptyTracklist = errors.New("scrobbler: empty tracklist")

// Track is one named track of an album in play order.
type Track struct {
	Name     string
	Position int // 1-based position in the submitted order
}

// Entry is one scrobble of a batch.
type Entry struct {
	Artist    string
	Album     string
	Track     string
	Timestamp time.Time
}

// Batch is the ordered set of entries produced for one scan.
type Batch struct {
	Entries    []Entry
	SessionKey string
}

// BuildBatch turns an album tracklist into a batch of scrobbles ending at now.
//
// Entry i of N is stamped now - TrackSpacing*(N-1-i), so the album reads as
// if it had just finished playing. The input order is preserved. The result
// depends only on its arguments.
func BuildBatch(artist, album string, tracks []Track, sessionKey string, now time.Time) (*Batch, error) {
	if len(tracks) == 0 {
		return nil, ErrEmptyTracklist
	}

	n := len(tracks)
	end := now.Unix()
	spacing := int64(TrackSpacing / time.Second)

	entries := make([]Entry, n)
	for i, t := range tracks {
		entries[i] = Entry{
			Artist:    artist,
			Album:     album,
			Track:     t.Name,
			Timestamp: time.Unix(end-spacing*int64(n-1-i), 0),
		}
	}

	return &Batch{Entries: entries, SessionKey: sessionKey}, nil
}

// TracksFromAlbum normalizes a Last.fm tracklist, dropping tracks without a
// name and numbering the remainder in service order.
func TracksFromAlbum(tracks []lastfm.AlbumTrack) []Track {
	out := make([]Track, 0, len(tracks))
	for _, t := range tracks {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			continue
		}
		out = append(out, Track{Name: name, Position: len(out) + 1})
	}
	return out
}
