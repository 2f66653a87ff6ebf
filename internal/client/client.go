// Package client talks to hearth-server. Client implements store.Store over
// the server's table API and keeps the login session on disk.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/existflow/hearth/internal/logger"
	"github.com/existflow/hearth/internal/model"
	"github.com/existflow/hearth/internal/store"
)

// DefaultServerURL is used when neither the config nor the session names a server
const DefaultServerURL = "http://localhost:8080"

var (
	// ErrNotLoggedIn is returned for table calls without a session
	ErrNotLoggedIn = errors.New("not logged in, run 'hearth auth login' first")
	// ErrUnauthorized is returned when the server rejects the session
	ErrUnauthorized = errors.New("session rejected by server, log in again")
)

// Session is the persisted login state
type Session struct {
	ServerURL string    `json:"server_url"`
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Client is the hearth-server client
type Client struct {
	session    *Session
	path       string
	httpClient *http.Client
	streamer   *http.Client
	log        *logger.Logger
}

// DefaultSessionPath returns ~/.hearth/session.json
func DefaultSessionPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".hearth", "session.json"), nil
}

// New creates a client with the session stored at path. A non-empty
// serverURL overrides the one saved in the session.
func New(serverURL, path string, log *logger.Logger) (*Client, error) {
	c := &Client{
		path:       path,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		streamer:   &http.Client{},
		log:        log,
	}
	if err := c.loadSession(); err != nil {
		return nil, err
	}
	if serverURL != "" {
		c.session.ServerURL = serverURL
	}
	if c.session.ServerURL == "" {
		c.session.ServerURL = DefaultServerURL
	}
	c.session.ServerURL = strings.TrimRight(c.session.ServerURL, "/")
	return c, nil
}

func (c *Client) loadSession() error {
	c.session = &Session{}
	if c.path == "" {
		return nil
	}
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read session: %w", err)
	}
	if err := json.Unmarshal(data, c.session); err != nil {
		return fmt.Errorf("failed to parse session %s: %w", c.path, err)
	}
	return nil
}

func (c *Client) saveSession() error {
	if c.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c.session, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0600)
}

// ServerURL returns the server base URL
func (c *Client) ServerURL() string {
	return c.session.ServerURL
}

// UserID returns the logged-in user's id, empty when logged out
func (c *Client) UserID() string {
	return c.session.UserID
}

// Username returns the logged-in user's name
func (c *Client) Username() string {
	return c.session.Username
}

// IsLoggedIn returns true if a session token is present and not expired
func (c *Client) IsLoggedIn() bool {
	if c.session.Token == "" {
		return false
	}
	return c.session.ExpiresAt.IsZero() || time.Now().Before(c.session.ExpiresAt)
}

type authResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Register creates an account and logs in
func (c *Client) Register(ctx context.Context, username, email, password string) error {
	var res authResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/register", nil, map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}, &res)
	if err != nil {
		return fmt.Errorf("register failed: %w", err)
	}
	return c.storeSession(username, res)
}

// Login authenticates with username and password
func (c *Client) Login(ctx context.Context, username, password string) error {
	var res authResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/login", nil, map[string]string{
		"username": username,
		"password": password,
	}, &res)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	return c.storeSession(username, res)
}

func (c *Client) storeSession(username string, res authResponse) error {
	c.session.Token = res.Token
	c.session.UserID = res.UserID
	c.session.Username = username
	c.session.ExpiresAt = res.ExpiresAt
	return c.saveSession()
}

// Logout ends the session on the server, best effort, and forgets it locally
func (c *Client) Logout(ctx context.Context) error {
	if c.session.Token != "" {
		if err := c.do(ctx, http.MethodPost, "/api/v1/logout", nil, nil, nil); err != nil {
			c.log.Warn("server logout failed", logger.Err(err))
		}
	}
	c.session.Token = ""
	c.session.UserID = ""
	c.session.Username = ""
	c.session.ExpiresAt = time.Time{}
	return c.saveSession()
}

// Me returns the logged-in user
func (c *Client) Me(ctx context.Context) (model.User, error) {
	var u model.User
	if err := c.do(ctx, http.MethodGet, "/api/v1/me", nil, nil, &u); err != nil {
		return model.User{}, err
	}
	return u, nil
}

// apiError is the error body written by the server
type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// errorFor maps a failed response to the store's sentinel errors
func errorFor(status int, body []byte) error {
	var ae apiError
	if err := json.Unmarshal(body, &ae); err != nil || ae.Error == "" {
		ae.Error = strings.TrimSpace(string(body))
		if ae.Error == "" {
			ae.Error = http.StatusText(status)
		}
	}

	var sentinel error
	switch {
	case status == http.StatusUnauthorized:
		sentinel = ErrUnauthorized
	case status == http.StatusConflict || ae.Code == "conflict":
		sentinel = store.ErrConflict
	case ae.Code == "unknown_table":
		sentinel = store.ErrUnknownTable
	case ae.Code == "unknown_column":
		sentinel = store.ErrUnknownColumn
	case ae.Code == "invalid_value":
		sentinel = store.ErrInvalidValue
	case status == http.StatusNotFound:
		sentinel = store.ErrNotFound
	}
	if sentinel != nil {
		return fmt.Errorf("%w: %s", sentinel, ae.Error)
	}
	return fmt.Errorf("server error (%d): %s", status, ae.Error)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query map[string]string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.session.ServerURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if len(query) > 0 {
		q := req.URL.Query()
		for k, v := range query {
			if v != "" {
				q.Set(k, v)
			}
		}
		req.URL.RawQuery = q.Encode()
	}
	if c.session.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.session.Token)
	}
	return req, nil
}

// do sends a JSON request and decodes a JSON response into out
func (c *Client) do(ctx context.Context, method, path string, query map[string]string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer resp.Body.Close()
	c.log.Debug("api call",
		logger.F("method", method),
		logger.F("path", path),
		logger.F("status", resp.StatusCode),
		logger.F("duration", time.Since(start).String()))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorFor(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
