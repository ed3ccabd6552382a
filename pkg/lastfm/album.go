package lastfm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// AlbumService provides album lookups.
type AlbumService struct {
	client *Client
}

type albumInfoResponse struct {
	Album struct {
		Name   string `json:"name"`
		Artist string `json:"artist"`
		MBID   string `json:"mbid"`
		URL    string `json:"url"`
		Tracks struct {
			Track oneOrMany[albumTrackJSON] `json:"track"`
		} `json:"tracks"`
	} `json:"album"`
}

type albumTrackJSON struct {
	Name     string  `json:"name"`
	Duration flexInt `json:"duration"`
	Attr     struct {
		Rank flexInt `json:"rank"`
	} `json:"@attr"`
}

// GetInfo fetches album metadata and its canonical tracklist.
//
// album.getinfo is unsigned. The username is optional; Last.fm uses it to
// personalize the response. A single-track album, which Last.fm returns as
// a bare object rather than a list, is normalized to a one-element slice.
// The returned tracks keep the order Last.fm sent them in.
//
// Example:
//
//	info, err := client.Album().GetInfo(ctx, "Pink Floyd", "The Dark Side of the Moon", "rj")
//	for _, t := range info.Tracks {
//	    fmt.Println(t.Rank, t.Name)
//	}
func (a *AlbumService) GetInfo(ctx context.Context, artist, album, username string) (*AlbumInfo, error) {
	params := map[string]string{
		"artist": artist,
		"album":  album,
	}
	if username != "" {
		params["username"] = username
	}

	raw, err := a.client.Request(ctx, "album.getinfo", params, http.MethodGet, false)
	if err != nil {
		return nil, err
	}

	info, err := unmarshalAlbumInfo(raw)
	if err != nil {
		return nil, &TransportError{Method: "album.getinfo", Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	return info, nil
}

// unmarshalAlbumInfo parses the JSON response from album.getinfo.
func unmarshalAlbumInfo(data []byte) (*AlbumInfo, error) {
	var resp albumInfoResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}

	info := &AlbumInfo{
		Artist: resp.Album.Artist,
		Name:   resp.Album.Name,
		MBID:   resp.Album.MBID,
		URL:    resp.Album.URL,
		Tracks: make([]AlbumTrack, 0, len(resp.Album.Tracks.Track)),
	}
	for _, t := range resp.Album.Tracks.Track {
		info.Tracks = append(info.Tracks, AlbumTrack{
			Name:     t.Name,
			Duration: int(t.Duration),
			Rank:     int(t.Attr.Rank),
		})
	}
	return info, nil
}
