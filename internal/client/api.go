// Package client talks to a navdir server and keeps a local cache of the
// configuration document that survives across processes.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"navdir/internal/domain"
)

// SessionCookieName matches the cookie issued by the server.
const SessionCookieName = "nav_admin"

var (
	// ErrUnauthorized means the session is missing, invalid or expired.
	ErrUnauthorized = errors.New("unauthorized")
)

// StatusError is any other non-2xx answer.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// API is a thin HTTP client for the /api endpoints. It keeps the session
// cookie in a jar.
type API struct {
	base *url.URL
	http *http.Client
}

// NewAPI creates a client for the server at baseURL, e.g.
// "http://localhost:8080".
func NewAPI(baseURL string) (*API, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported server url scheme %q", base.Scheme)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &API{
		base: base,
		http: &http.Client{Timeout: 30 * time.Second, Jar: jar},
	}, nil
}

// Session returns the current session token, or "".
func (a *API) Session() string {
	for _, c := range a.http.Jar.Cookies(a.base) {
		if c.Name == SessionCookieName {
			return c.Value
		}
	}
	return ""
}

// SetSession installs a token saved by an earlier process.
func (a *API) SetSession(token string) {
	a.http.Jar.SetCookies(a.base, []*http.Cookie{{Name: SessionCookieName, Value: token, Path: "/"}})
}

// Login signs in and stores the session cookie.
func (a *API) Login(ctx context.Context, username, password string) (string, error) {
	var out struct {
		Username string `json:"username"`
	}
	resp, err := a.do(ctx, http.MethodPost, "/api/login", map[string]string{"username": username, "password": password}, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return "", domain.ErrInvalidCredentials
	}
	if err := checkStatus(resp); err != nil {
		return "", err
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	return out.Username, nil
}

// Logout clears the session cookie on both sides.
func (a *API) Logout(ctx context.Context) error {
	resp, err := a.do(ctx, http.MethodPost, "/api/logout", struct{}{}, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// Me returns the signed-in username, or "" when anonymous.
func (a *API) Me(ctx context.Context) (string, error) {
	resp, err := a.do(ctx, http.MethodGet, "/api/me", nil, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return "", err
	}

	var out struct {
		Username *string `json:"username"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode me response: %w", err)
	}
	if out.Username == nil {
		return "", nil
	}
	return *out.Username, nil
}

// GetConfig fetches the document. domain.ErrNotFound means nothing has been
// saved yet.
func (a *API) GetConfig(ctx context.Context) (*domain.Document, error) {
	resp, err := a.do(ctx, http.MethodGet, "/api/config", nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrNotFound
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return &domain.Document{Body: body, ETag: resp.Header.Get("ETag")}, nil
}

// PutConfig saves body. A non-empty ifMatch makes the write conditional; a
// failed precondition returns *domain.ConflictError.
func (a *API) PutConfig(ctx context.Context, body []byte, ifMatch string) (string, error) {
	header := http.Header{}
	if ifMatch != "" {
		header.Set("If-Match", ifMatch)
	}
	resp, err := a.do(ctx, http.MethodPut, "/api/config", json.RawMessage(body), header)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		var out struct {
			ETag *string `json:"etag"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&out)
		return "", &domain.ConflictError{ETag: out.ETag}
	}
	if err := checkStatus(resp); err != nil {
		return "", err
	}
	return resp.Header.Get("ETag"), nil
}

// EventsURL is the websocket endpoint for config change events.
func (a *API) EventsURL() string {
	u := *a.base
	u.Scheme = "ws"
	if a.base.Scheme == "https" {
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/config/events"
	return u.String()
}

func (a *API) do(ctx context.Context, method, path string, body any, header http.Header) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.base.String()+path, reader)
	if err != nil {
		return nil, err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

// checkStatus maps non-2xx answers that every endpoint shares.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusTooManyRequests:
		secs, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return &domain.RateLimitError{RetryAfter: time.Duration(secs) * time.Second}
	}
	return &StatusError{Status: resp.StatusCode, Message: body.Error}
}
