package lastfm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// AuthService provides authentication operations for the Last.fm API.
type AuthService struct {
	client *Client
}

// AuthURL is where users authorize a request token.
const AuthURL = "https://www.last.fm/api/auth/"

// GetToken requests an authentication token from Last.fm.
//
// This is the first step in the authentication flow. After obtaining a token,
// the user must authorize it by visiting the URL returned by GetAuthURL.
//
// Example:
//
//	token, err := client.Auth().GetToken(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("Visit:", client.Auth().GetAuthURL(token.Token))
func (a *AuthService) GetToken(ctx context.Context) (*Token, error) {
	raw, err := a.client.Request(ctx, "auth.getToken", nil, http.MethodGet, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &TransportError{Method: "auth.getToken", Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	if resp.Token == "" {
		return nil, &TransportError{Method: "auth.getToken", Err: fmt.Errorf("%w: empty token", ErrMalformedResponse)}
	}

	return &Token{Token: resp.Token}, nil
}

// GetAuthURL returns the URL where users authorize the token.
//
// After calling GetToken, direct the user to this URL to authorize
// the application. Once authorized, call GetSession to exchange the
// token for a session key.
func (a *AuthService) GetAuthURL(token string) string {
	q := url.Values{}
	q.Set("api_key", a.client.apiKey)
	q.Set("token", token)
	return AuthURL + "?" + q.Encode()
}

// GetSession exchanges an authorized token for a session key.
//
// After the user has authorized the token at the URL from GetAuthURL,
// call this method to exchange the token for a permanent session key.
// The session key should be stored and used for all future authenticated
// requests.
//
// Example:
//
//	session, err := client.Auth().GetSession(ctx, token.Token)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client.SetSessionKey(session.Key)
func (a *AuthService) GetSession(ctx context.Context, token string) (*Session, error) {
	params := map[string]string{"token": token}

	raw, err := a.client.Request(ctx, "auth.getSession", params, http.MethodGet, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Session struct {
			Name       string  `json:"name"`
			Key        string  `json:"key"`
			Subscriber flexInt `json:"subscriber"`
		} `json:"session"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &TransportError{Method: "auth.getSession", Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	if resp.Session.Key == "" {
		return nil, &TransportError{Method: "auth.getSession", Err: fmt.Errorf("%w: empty session key", ErrMalformedResponse)}
	}

	return &Session{
		Key:        resp.Session.Key,
		Username:   resp.Session.Name,
		Subscriber: resp.Session.Subscriber != 0,
	}, nil
}
