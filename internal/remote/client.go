// Package remote implements the client for the file-management API that
// quotagate administers.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dohr-michael/quotagate/internal/quota"
)

// Entry is one item in the remote file listing.
type Entry struct {
	Name     string    `json:"name"`
	Path     string    `json:"path,omitempty"`
	Size     int64     `json:"size,omitempty"`
	Modified time.Time `json:"modified,omitempty"`
}

// APIError is a non-2xx response from the management API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote api: %s", http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("remote api: %s (status %d)", e.Message, e.StatusCode)
}

// HTTPStatus returns the response status code.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// Client talks to the management API. Request timeouts live here — callers do
// not impose their own.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a client for the given API base URL. A zero timeout
// defaults to 30 seconds.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// ListEntries fetches the full entry listing.
func (c *Client) ListEntries(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	if err := c.get(ctx, "/entries", &entries); err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return entries, nil
}

// Quota fetches quota data for a single entry.
func (c *Client) Quota(ctx context.Context, name string) (quota.Usage, error) {
	var usage quota.Usage
	path := "/quota?name=" + url.QueryEscape(name)
	if err := c.get(ctx, path, &usage); err != nil {
		return quota.Usage{}, fmt.Errorf("quota %q: %w", name, err)
	}
	return usage, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// errorMessage extracts {"error": "..."} from an error response body.
func errorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(data))
}
