package lastfm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// maxResponseSize caps how much of a response body is read.
const maxResponseSize = 4 << 20

// apiErrorResponse is the JSON error envelope returned by Last.fm.
type apiErrorResponse struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}

// Request makes a single HTTP request to the Last.fm API and returns the
// raw JSON body of a successful response.
//
// It handles:
// - Injecting the method and api_key parameters
// - Signature calculation for signed requests, before format is added
// - GET (query string) or POST (form body) encoding
// - Mapping service errors to *Error and everything else to *TransportError
//
// Request never retries; the caller decides what to do with a failure.
func (c *Client) Request(ctx context.Context, method string, params map[string]string, verb string, signed bool) (json.RawMessage, error) {
	reqParams := make(map[string]string, len(params)+2)
	for k, v := range params {
		reqParams[k] = v
	}
	delete(reqParams, "format")
	delete(reqParams, "callback")
	reqParams["method"] = method
	reqParams["api_key"] = c.apiKey

	values := url.Values{}
	for k, v := range reqParams {
		values.Set(k, v)
	}

	if signed {
		if c.apiSecret == "" {
			return nil, ErrNoAPISecret
		}
		values.Set("api_sig", Sign(reqParams, c.apiSecret))
	}

	// format is never part of the signed set
	values.Set("format", "json")

	req, err := c.newRequest(ctx, verb, values)
	if err != nil {
		return nil, err
	}

	c.logDebugf("lastfm: calling %s (%s)", method, verb)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Method: method, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &TransportError{Method: method, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	raw, err := parseResponse(method, resp.StatusCode, body)
	if err != nil {
		c.logDebugf("lastfm: %s failed: %v", method, err)
		return nil, err
	}

	c.logDebugf("lastfm: %s succeeded", method)
	return raw, nil
}

// newRequest builds the HTTP request for the given verb.
func (c *Client) newRequest(ctx context.Context, verb string, values url.Values) (*http.Request, error) {
	var (
		req *http.Request
		err error
	)

	switch verb {
	case http.MethodGet:
		u, perr := url.Parse(c.baseURL)
		if perr != nil {
			return nil, fmt.Errorf("lastfm: invalid base URL: %w", perr)
		}
		u.RawQuery = values.Encode()
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	case http.MethodPost:
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(values.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	default:
		return nil, fmt.Errorf("lastfm: unsupported HTTP verb %q", verb)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// parseResponse turns a response into either the raw JSON body or an error.
//
// Last.fm reports service errors as {"error": code, "message": "..."},
// sometimes with a 200 status and sometimes with a 4xx/5xx status.
func parseResponse(method string, status int, body []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)

	var apiErr apiErrorResponse
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &apiErr); err == nil && apiErr.Error != 0 {
			return nil, &Error{Code: apiErr.Error, Message: apiErr.Message}
		}
	}

	if status < 200 || status >= 300 {
		return nil, &TransportError{
			Method: method,
			Err:    fmt.Errorf("%w: unexpected status code %d", ErrMalformedResponse, status),
		}
	}

	if !json.Valid(trimmed) {
		return nil, &TransportError{Method: method, Err: ErrMalformedResponse}
	}

	return json.RawMessage(trimmed), nil
}
