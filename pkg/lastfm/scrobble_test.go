package lastfm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// TestScrobbleService_ScrobbleBatch tests the ScrobbleBatch method.
func TestScrobbleService_ScrobbleBatch(t *testing.T) {
	baseTime := time.Unix(1700000000, 0)

	tests := []struct {
		name         string
		scrobbles    []Scrobble
		response     string
		wantAccepted int
		wantIgnored  int
		wantResults  int
		wantErr      bool
		errContains  string
	}{
		{
			name: "two tracks accepted",
			scrobbles: []Scrobble{
				{Track: Track{Artist: "Pink Floyd", Track: "Speak to Me", Album: "The Dark Side of the Moon"}, Timestamp: baseTime.Add(-4 * time.Minute)},
				{Track: Track{Artist: "Pink Floyd", Track: "Breathe", Album: "The Dark Side of the Moon"}, Timestamp: baseTime},
			},
			response: `{"scrobbles":{"scrobble":[
				{"artist":{"corrected":"0","#text":"Pink Floyd"},"track":{"corrected":"0","#text":"Speak to Me"},"album":{"corrected":"0","#text":"The Dark Side of the Moon"},"timestamp":"1699999760","ignoredMessage":{"code":"0","#text":""}},
				{"artist":{"corrected":"0","#text":"Pink Floyd"},"track":{"corrected":"0","#text":"Breathe"},"album":{"corrected":"0","#text":"The Dark Side of the Moon"},"timestamp":"1700000000","ignoredMessage":{"code":"0","#text":""}}
			],"@attr":{"ignored":0,"accepted":2}}}`,
			wantAccepted: 2,
			wantIgnored:  0,
			wantResults:  2,
		},
		{
			name: "single scrobble object with ignored message",
			scrobbles: []Scrobble{
				{Track: Track{Artist: "Pink Floyd", Track: "Time"}, Timestamp: baseTime},
			},
			response: `{"scrobbles":{"scrobble":{"artist":{"#text":"Pink Floyd"},"track":{"#text":"Time"},"album":{"#text":""},"timestamp":"1700000000","ignoredMessage":{"code":"1","#text":"Artist was ignored"}},"@attr":{"ignored":"1","accepted":"0"}}}`,
			wantAccepted: 0,
			wantIgnored:  1,
			wantResults:  1,
		},
		{
			name: "api error - invalid session key",
			scrobbles: []Scrobble{
				{Track: Track{Artist: "Pink Floyd", Track: "Money"}, Timestamp: baseTime},
			},
			response:    `{"error":9,"message":"Invalid session key - Please re-authenticate"}`,
			wantErr:     true,
			errContains: "error 9",
		},
		{
			name: "missing scrobbles element",
			scrobbles: []Scrobble{
				{Track: Track{Artist: "Pink Floyd", Track: "Money"}, Timestamp: baseTime},
			},
			response:    `{}`,
			wantErr:     true,
			errContains: "missing scrobbles",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("expected POST request, got %s", r.Method)
				}
				if err := r.ParseForm(); err != nil {
					t.Fatalf("failed to parse form: %v", err)
				}
				if method := r.FormValue("method"); method != "track.scrobble" {
					t.Errorf("expected method track.scrobble, got %s", method)
				}
				if sk := r.FormValue("sk"); sk != "test-session-key" {
					t.Errorf("expected sk test-session-key, got %s", sk)
				}

				for i, s := range tt.scrobbles {
					if got := r.FormValue(fmt.Sprintf("artist[%d]", i)); got != s.Track.Artist {
						t.Errorf("artist[%d]: expected %s, got %s", i, s.Track.Artist, got)
					}
					if got := r.FormValue(fmt.Sprintf("track[%d]", i)); got != s.Track.Track {
						t.Errorf("track[%d]: expected %s, got %s", i, s.Track.Track, got)
					}
					wantTS := fmt.Sprintf("%d", s.Timestamp.Unix())
					if got := r.FormValue(fmt.Sprintf("timestamp[%d]", i)); got != wantTS {
						t.Errorf("timestamp[%d]: expected %s, got %s", i, wantTS, got)
					}
					if s.Track.Album != "" {
						if got := r.FormValue(fmt.Sprintf("album[%d]", i)); got != s.Track.Album {
							t.Errorf("album[%d]: expected %s, got %s", i, s.Track.Album, got)
						}
					}
				}

				_, _ = w.Write([]byte(tt.response))
			}))
			defer server.Close()

			client := newTestClient(t, server.URL)
			resp, err := client.Scrobble().ScrobbleBatch(context.Background(), tt.scrobbles)

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("expected error to contain %q, got %v", tt.errContains, err)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.Accepted != tt.wantAccepted {
				t.Errorf("expected accepted %d, got %d", tt.wantAccepted, resp.Accepted)
			}
			if resp.Ignored != tt.wantIgnored {
				t.Errorf("expected ignored %d, got %d", tt.wantIgnored, resp.Ignored)
			}
			if len(resp.Scrobbles) != tt.wantResults {
				t.Fatalf("expected %d results, got %d", tt.wantResults, len(resp.Scrobbles))
			}
			if tt.wantIgnored > 0 && resp.Scrobbles[0].IgnoredMessage.Text == "" {
				t.Error("expected ignored message text")
			}
		})
	}
}

// TestScrobbleService_ScrobbleBatch_MaxBatchSize tests that oversized batches are rejected.
func TestScrobbleService_ScrobbleBatch_MaxBatchSize(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		_, _ = w.Write([]byte(`{"scrobbles":{"@attr":{"accepted":50,"ignored":0}}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	scrobbles := make([]Scrobble, MaxBatchSize+1)
	for i := range scrobbles {
		scrobbles[i] = Scrobble{
			Track:     Track{Artist: "Artist", Track: fmt.Sprintf("Track %d", i)},
			Timestamp: time.Unix(1700000000+int64(i), 0),
		}
	}

	_, err := client.Scrobble().ScrobbleBatch(context.Background(), scrobbles)
	if !errors.Is(err, ErrBatchTooLarge) {
		t.Fatalf("expected ErrBatchTooLarge, got %v", err)
	}
	if requests != 0 {
		t.Errorf("expected no requests, got %d", requests)
	}

	resp, err := client.Scrobble().ScrobbleBatch(context.Background(), scrobbles[:MaxBatchSize])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Accepted != MaxBatchSize {
		t.Errorf("expected %d accepted, got %d", MaxBatchSize, resp.Accepted)
	}
}

// TestScrobbleService_NoSessionKey tests that scrobbling requires a session key.
func TestScrobbleService_NoSessionKey(t *testing.T) {
	client, err := NewClient(Config{
		APIKey:    "test-api-key",
		APISecret: "test-secret",
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	_, err = client.Scrobble().ScrobbleBatch(context.Background(), []Scrobble{
		{Track: Track{Artist: "A", Track: "B"}, Timestamp: time.Now()},
	})
	if !errors.Is(err, ErrNoSessionKey) {
		t.Fatalf("expected ErrNoSessionKey, got %v", err)
	}
}

// TestScrobbleService_EmptyBatch tests that an empty batch makes no request.
func TestScrobbleService_EmptyBatch(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:0/")
	resp, err := client.Scrobble().ScrobbleBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Accepted != 0 || resp.Ignored != 0 {
		t.Errorf("expected zero counts, got %+v", resp)
	}
}

// ExampleScrobbleService_ScrobbleBatch demonstrates submitting an album side.
func ExampleScrobbleService_ScrobbleBatch() {
	client, err := NewClient(Config{
		APIKey:     "your-api-key",
		APISecret:  "your-api-secret",
		SessionKey: "your-session-key",
	})
	if err != nil {
		log.Fatal(err)
	}

	now := time.Now()
	scrobbles := []Scrobble{
		{Track: Track{Artist: "Pink Floyd", Track: "Speak to Me"}, Timestamp: now.Add(-4 * time.Minute)},
		{Track: Track{Artist: "Pink Floyd", Track: "Breathe"}, Timestamp: now},
	}

	resp, err := client.Scrobble().ScrobbleBatch(context.Background(), scrobbles)
	if err != nil {
		log.Printf("Failed to scrobble batch: %v", err)
		return
	}
	fmt.Printf("Accepted: %d, Ignored: %d\n", resp.Accepted, resp.Ignored)
}
