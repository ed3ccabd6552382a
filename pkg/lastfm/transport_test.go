package lastfm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

// captured records what the test server received.
type captured struct {
	method      string
	contentType string
	query       url.Values
	form        url.Values
}

func newCaptureServer(t *testing.T, status int, body string) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.method = r.Method
		c.contentType = r.Header.Get("Content-Type")
		c.query = r.URL.Query()
		if r.Method == http.MethodPost {
			raw, err := io.ReadAll(r.Body)
			if err != nil {
				t.Fatalf("failed to read body: %v", err)
			}
			c.form, err = url.ParseQuery(string(raw))
			if err != nil {
				t.Fatalf("failed to parse body: %v", err)
			}
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, c
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(Config{
		APIKey:     "test-api-key",
		APISecret:  "test-secret",
		SessionKey: "test-session-key",
		BaseURL:    baseURL,
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return client
}

func TestRequest_GetEncodesQuery(t *testing.T) {
	server, got := newCaptureServer(t, http.StatusOK, `{"ok":true}`)
	client := newTestClient(t, server.URL)

	raw, err := client.Request(context.Background(), "album.getinfo",
		map[string]string{"artist": "Pink Floyd", "album": "Animals"}, http.MethodGet, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(raw) != `{"ok":true}` {
		t.Errorf("unexpected body %s", raw)
	}

	if got.method != http.MethodGet {
		t.Errorf("expected GET, got %s", got.method)
	}
	for k, want := range map[string]string{
		"method":  "album.getinfo",
		"artist":  "Pink Floyd",
		"album":   "Animals",
		"api_key": "test-api-key",
		"format":  "json",
	} {
		if v := got.query.Get(k); v != want {
			t.Errorf("expected %s=%q, got %q", k, want, v)
		}
	}
	if got.query.Has("api_sig") {
		t.Error("unsigned request must not carry api_sig")
	}
}

func TestRequest_PostEncodesFormAndSignsBeforeFormat(t *testing.T) {
	server, got := newCaptureServer(t, http.StatusOK, `{"scrobbles":{}}`)
	client := newTestClient(t, server.URL)

	params := map[string]string{"sk": "test-session-key", "artist[0]": "Pink Floyd"}
	if _, err := client.Request(context.Background(), "track.scrobble", params, http.MethodPost, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.method != http.MethodPost {
		t.Errorf("expected POST, got %s", got.method)
	}
	if got.contentType != "application/x-www-form-urlencoded" {
		t.Errorf("unexpected content type %q", got.contentType)
	}
	if len(got.query) != 0 {
		t.Errorf("expected empty query string, got %v", got.query)
	}
	if got.form.Get("format") != "json" {
		t.Errorf("expected format=json in body")
	}

	signed := map[string]string{
		"method":    "track.scrobble",
		"api_key":   "test-api-key",
		"sk":        "test-session-key",
		"artist[0]": "Pink Floyd",
	}
	want := Sign(signed, "test-secret")
	if sig := got.form.Get("api_sig"); sig != want {
		t.Errorf("api_sig = %s, want %s (signed without format)", sig, want)
	}

	withFormat := map[string]string{"format": "json"}
	for k, v := range signed {
		withFormat[k] = v
	}
	if got.form.Get("api_sig") == Sign(withFormat, "test-secret") {
		t.Error("api_sig must not cover the format parameter")
	}
}

func TestRequest_CallerFormatIsNotSigned(t *testing.T) {
	server, got := newCaptureServer(t, http.StatusOK, `{}`)
	client := newTestClient(t, server.URL)

	params := map[string]string{"token": "t", "format": "xml"}
	if _, err := client.Request(context.Background(), "auth.getSession", params, http.MethodGet, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := Sign(map[string]string{"token": "t", "method": "auth.getSession", "api_key": "test-api-key"}, "test-secret")
	if sig := got.query.Get("api_sig"); sig != want {
		t.Errorf("api_sig = %s, want %s", sig, want)
	}
	if got.query.Get("format") != "json" {
		t.Errorf("expected format json, got %s", got.query.Get("format"))
	}
}

func TestRequest_Errors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantCode      int
		wantTransport bool
	}{
		{
			name:     "service error with 200",
			status:   http.StatusOK,
			body:     `{"error":6,"message":"Album not found"}`,
			wantCode: 6,
		},
		{
			name:     "service error with 403",
			status:   http.StatusForbidden,
			body:     `{"error":9,"message":"Invalid session key - Please re-authenticate"}`,
			wantCode: 9,
		},
		{
			name:          "non-json error page",
			status:        http.StatusBadGateway,
			body:          `<html>bad gateway</html>`,
			wantTransport: true,
		},
		{
			name:          "malformed success body",
			status:        http.StatusOK,
			body:          `{"album":`,
			wantTransport: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := newCaptureServer(t, tt.status, tt.body)
			client := newTestClient(t, server.URL)

			_, err := client.Request(context.Background(), "album.getinfo", nil, http.MethodGet, false)
			if err == nil {
				t.Fatal("expected error, got nil")
			}

			if tt.wantTransport {
				var transportErr *TransportError
				if !errors.As(err, &transportErr) {
					t.Fatalf("expected *TransportError, got %T: %v", err, err)
				}
				if !errors.Is(err, ErrMalformedResponse) {
					t.Errorf("expected ErrMalformedResponse, got %v", err)
				}
				return
			}

			var apiErr *Error
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *Error, got %T: %v", err, err)
			}
			if apiErr.Code != tt.wantCode {
				t.Errorf("expected code %d, got %d", tt.wantCode, apiErr.Code)
			}
			if !errors.Is(err, &Error{Code: tt.wantCode}) {
				t.Error("expected errors.Is to match on code")
			}
		})
	}
}

func TestRequest_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := server.URL
	server.Close()

	client := newTestClient(t, baseURL)
	_, err := client.Request(context.Background(), "album.getinfo", nil, http.MethodGet, false)

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected *TransportError, got %T: %v", err, err)
	}
	if transportErr.Method != "album.getinfo" {
		t.Errorf("expected method album.getinfo, got %s", transportErr.Method)
	}
}

func TestRequest_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client, err := NewClient(Config{
		APIKey:     "test-api-key",
		BaseURL:    server.URL,
		HTTPClient: &http.Client{Timeout: 20 * time.Millisecond},
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	_, err = client.Request(context.Background(), "album.getinfo", nil, http.MethodGet, false)
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected *TransportError, got %T: %v", err, err)
	}
	if !transportErr.Timeout() {
		t.Errorf("expected timeout, got %v", transportErr.Err)
	}
}

func TestRequest_UnsupportedVerb(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:0/")
	if _, err := client.Request(context.Background(), "album.getinfo", nil, http.MethodPut, false); err == nil {
		t.Fatal("expected error for PUT")
	}
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(Config{APISecret: "secret"})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestError_Temporary(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{ErrCodeServiceOffline, true},
		{ErrCodeTempUnavailable, true},
		{ErrCodeRateLimitExceeded, true},
		{ErrCodeInvalidSessionKey, false},
		{ErrCodeInvalidSignature, false},
	}
	for _, tt := range tests {
		e := &Error{Code: tt.code}
		if got := e.Temporary(); got != tt.want {
			t.Errorf("code %d: Temporary() = %v, want %v", tt.code, got, tt.want)
		}
	}
}
