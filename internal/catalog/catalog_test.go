package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestLookupBarcode(t *testing.T) {
	tests := []struct {
		name       string
		response   string
		wantArtist string
		wantAlbum  string
		wantYear   string
	}{
		{
			name:       "artist - title",
			response:   `{"results":[{"title":"Pink Floyd - The Dark Side Of The Moon","year":"1973"},{"title":"Other - Release"}]}`,
			wantArtist: "Pink Floyd",
			wantAlbum:  "The Dark Side Of The Moon",
			wantYear:   "1973",
		},
		{
			name:       "splits on first delimiter only",
			response:   `{"results":[{"title":"Sigur Rós - ( ) - Untitled","year":2002}]}`,
			wantArtist: "Sigur Rós",
			wantAlbum:  "( ) - Untitled",
			wantYear:   "2002",
		},
		{
			name:       "no delimiter uses artist field",
			response:   `{"results":[{"title":"Remain in Light","artist":["Talking Heads"]}]}`,
			wantArtist: "Talking Heads",
			wantAlbum:  "Remain in Light",
		},
		{
			name:       "no delimiter and no artist",
			response:   `{"results":[{"title":"Untitled Tape"}]}`,
			wantArtist: UnknownArtist,
			wantAlbum:  "Untitled Tape",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/database/search" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				if r.URL.Query().Get("barcode") != "5099902894225" {
					t.Errorf("unexpected barcode %s", r.URL.Query().Get("barcode"))
				}
				if r.URL.Query().Get("type") != "release" {
					t.Errorf("expected type=release")
				}
				if got := r.Header.Get("Authorization"); got != "Discogs token=tok" {
					t.Errorf("unexpected authorization header %q", got)
				}
				_, _ = w.Write([]byte(tt.response))
			}))
			defer server.Close()

			client := New(Config{Token: "tok", BaseURL: server.URL, Logger: zerolog.Nop()})
			release, err := client.LookupBarcode(context.Background(), " 5099902894225 ")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if release.Artist != tt.wantArtist || release.Album != tt.wantAlbum {
				t.Errorf("expected %q / %q, got %q / %q", tt.wantArtist, tt.wantAlbum, release.Artist, release.Album)
			}
			if release.Year != tt.wantYear {
				t.Errorf("expected year %q, got %q", tt.wantYear, release.Year)
			}
			if release.Barcode != "5099902894225" {
				t.Errorf("unexpected barcode %q", release.Barcode)
			}
		})
	}
}

func TestLookupBarcode_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		response string
		wantErr  error
	}{
		{name: "no results", status: http.StatusOK, response: `{"results":[]}`, wantErr: ErrNoMatch},
		{name: "server error", status: http.StatusInternalServerError, response: `oops`},
		{name: "bad json", status: http.StatusOK, response: `{"results":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Authorization") != "" {
					t.Error("expected no authorization header without a token")
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.response))
			}))
			defer server.Close()

			client := New(Config{BaseURL: server.URL + "/", Logger: zerolog.Nop()})
			_, err := client.LookupBarcode(context.Background(), "123")
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLookupBarcode_Empty(t *testing.T) {
	client := New(Config{Logger: zerolog.Nop()})
	if _, err := client.LookupBarcode(context.Background(), "  "); !errors.Is(err, ErrEmptyBarcode) {
		t.Errorf("expected ErrEmptyBarcode, got %v", err)
	}
}
