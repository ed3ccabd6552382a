// Package lastfm provides a client library for the Last.fm API 2.0.
//
// # Overview
//
// This package implements a small Go client for the Last.fm API, focusing
// on what is needed to scrobble whole albums: authentication, album lookups
// and batch scrobbling. It provides a type-safe API with context support and
// structured errors. Responses are requested as JSON.
//
// # Quick Start
//
// First, create a client with your API credentials:
//
//	client, err := lastfm.NewClient(lastfm.Config{
//	    APIKey:    "your-api-key",
//	    APISecret: "your-api-secret",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Authentication
//
// Last.fm uses a token-based authentication flow:
//
//  1. Get a token from Last.fm
//  2. Direct the user to authorize the token
//  3. Exchange the token for a session key
//  4. Store and reuse the session key
//
// Example:
//
//	token, err := client.Auth().GetToken(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("Please visit:", client.Auth().GetAuthURL(token.Token))
//
//	session, err := client.Auth().GetSession(ctx, token.Token)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client.SetSessionKey(session.Key)
//
// # Albums
//
// album.getinfo returns the canonical tracklist. Single-track albums, which
// Last.fm encodes as a bare object, are normalized to a one-element slice:
//
//	info, err := client.Album().GetInfo(ctx, "Pink Floyd", "Animals", "")
//
// # Scrobbling
//
// Once authenticated, submit up to 50 scrobbles per request:
//
//	resp, err := client.Scrobble().ScrobbleBatch(ctx, scrobbles)
//
// # Signing
//
// Signed requests carry an api_sig computed by Sign over every parameter
// except format and callback. Request appends format=json only after the
// signature has been computed; signing after adding format produces a
// signature Last.fm rejects with error 13.
//
// # Error Handling
//
// A call fails with *Error when Last.fm answered and rejected it, and with
// *TransportError when no usable answer arrived (network failure, timeout,
// malformed body). The client never retries:
//
//	resp, err := client.Scrobble().ScrobbleBatch(ctx, scrobbles)
//	var apiErr *lastfm.Error
//	if errors.As(err, &apiErr) && apiErr.Code == lastfm.ErrCodeInvalidSessionKey {
//	    // re-authenticate
//	}
//
// # Configuration
//
// The client can be configured with custom HTTP clients, base URLs (for testing),
// and optional loggers:
//
//	client, err := lastfm.NewClient(lastfm.Config{
//	    APIKey:     "your-api-key",
//	    APISecret:  "your-api-secret",
//	    SessionKey: "saved-session-key",
//	    HTTPClient: &http.Client{Timeout: 30 * time.Second},
//	    Logger:     myLogger, // Implements lastfm.Logger interface
//	})
//
// # API Coverage
//
// Currently implemented:
//   - Authentication (auth.getToken, auth.getSession)
//   - Albums (album.getinfo)
//   - Scrobbling (track.scrobble)
//
// For more information about the Last.fm API:
// https://www.last.fm/api/scrobbling
package lastfm
