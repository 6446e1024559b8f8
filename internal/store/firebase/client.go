// Package firebase is the secondary store client for a Firebase Realtime
// Database, addressed through its REST interface. Records live at
// users/{owner}/saves/current and carry their own lastSaved field.
package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"progress-sync-service/internal/store"
)

type Config struct {
	BaseURL   string
	AuthToken string
	Timeout   time.Duration
}

type Client struct {
	baseURL   string
	authToken string
	http      *http.Client
}

var _ store.Client = (*Client)(nil)

func New(cfg Config) *Client {
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		authToken: cfg.AuthToken,
		http:      &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) recordURL(owner store.OwnerID) string {
	u := c.baseURL + "/users/" + url.PathEscape(owner.String()) + "/saves/current.json"
	if c.authToken != "" {
		u += "?" + url.Values{"auth": {c.authToken}}.Encode()
	}
	return u
}

// Put overwrites the owner's record. The backend has no versions, so
// expectedVersion is ignored and the result never conflicts.
func (c *Client) Put(ctx context.Context, owner store.OwnerID, record store.Record, _ int64) (store.PutResult, error) {
	body, err := json.Marshal(record)
	if err != nil {
		return store.PutResult{}, fmt.Errorf("failed to encode record: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.recordURL(owner), bytes.NewReader(body))
	if err != nil {
		return store.PutResult{}, fmt.Errorf("failed to build put request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if _, err := c.do(req); err != nil {
		return store.PutResult{}, err
	}
	return store.PutResult{Status: store.PutOK}, nil
}

func (c *Client) Get(ctx context.Context, owner store.OwnerID) (store.GetResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.recordURL(owner), nil)
	if err != nil {
		return store.GetResult{}, fmt.Errorf("failed to build get request: %w", err)
	}
	data, err := c.do(req)
	if err != nil {
		return store.GetResult{}, err
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return store.GetResult{}, nil
	}
	var record store.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return store.GetResult{}, fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	return store.GetResult{Exists: true, Record: record}, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %w", store.ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &e)
		return nil, fmt.Errorf("%w: %s %s returned status %d: %s",
			store.ErrUnavailable, req.Method, req.URL.Path, resp.StatusCode, e.Error)
	}
	return data, nil
}
