// Package httpapi is the primary store client for the JSON save/load API.
package httpapi

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

const (
	DefaultSavePath = "/save.php"
	DefaultLoadPath = "/load.php"

	requestIDHeader = "X-Request-ID"
	maxErrorBody    = 4 << 10
)

type Config struct {
	BaseURL  string
	SavePath string
	LoadPath string
	Timeout  time.Duration
}

type Client struct {
	baseURL  string
	savePath string
	loadPath string
	http     *http.Client
}

var _ store.Client = (*Client)(nil)

func New(cfg Config) *Client {
	if cfg.SavePath == "" {
		cfg.SavePath = DefaultSavePath
	}
	if cfg.LoadPath == "" {
		cfg.LoadPath = DefaultLoadPath
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		savePath: cfg.SavePath,
		loadPath: cfg.LoadPath,
		http:     &http.Client{Timeout: cfg.Timeout},
	}
}

type saveRequest struct {
	Username  string       `json:"username"`
	Data      store.Record `json:"data"`
	Version   int64        `json:"version"`
	Timestamp int64        `json:"timestamp"`
}

type saveResponse struct {
	Success       bool   `json:"success"`
	Version       int64  `json:"version"`
	ServerVersion int64  `json:"serverVersion"`
	Error         string `json:"error"`
}

type loadResponse struct {
	Success bool            `json:"success"`
	Exists  bool            `json:"exists"`
	Data    json.RawMessage `json:"data"`
	Version int64           `json:"version"`
	Error   string          `json:"error"`
}

func (c *Client) Put(ctx context.Context, owner store.OwnerID, record store.Record, expectedVersion int64) (store.PutResult, error) {
	body, err := json.Marshal(saveRequest{
		Username:  owner.String(),
		Data:      record,
		Version:   expectedVersion,
		Timestamp: record.LastSaved,
	})
	if err != nil {
		return store.PutResult{}, fmt.Errorf("failed to encode save request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.savePath, bytes.NewReader(body))
	if err != nil {
		return store.PutResult{}, fmt.Errorf("failed to build save request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var res saveResponse
	status, err := c.do(req, &res)
	if err != nil {
		return store.PutResult{}, err
	}

	switch {
	case status == http.StatusConflict:
		return store.PutResult{Status: store.PutConflict, Version: res.ServerVersion}, nil
	case status >= 200 && status < 300 && res.Success:
		version := res.Version
		if version == 0 {
			version = expectedVersion + 1
		}
		return store.PutResult{Status: store.PutOK, Version: version}, nil
	default:
		return store.PutResult{}, fmt.Errorf("%w: save returned status %d: %s", store.ErrUnavailable, status, res.Error)
	}
}

func (c *Client) Get(ctx context.Context, owner store.OwnerID) (store.GetResult, error) {
	u := c.baseURL + c.loadPath + "?" + url.Values{"username": {owner.String()}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return store.GetResult{}, fmt.Errorf("failed to build load request: %w", err)
	}

	var res loadResponse
	status, err := c.do(req, &res)
	if err != nil {
		return store.GetResult{}, err
	}
	if status < 200 || status >= 300 || !res.Success {
		return store.GetResult{}, fmt.Errorf("%w: load returned status %d: %s", store.ErrUnavailable, status, res.Error)
	}
	if !res.Exists || len(res.Data) == 0 || string(res.Data) == "null" {
		return store.GetResult{}, nil
	}

	var record store.Record
	if err := json.Unmarshal(res.Data, &record); err != nil {
		return store.GetResult{}, fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	return store.GetResult{Exists: true, Record: record, Version: res.Version}, nil
}

// do sends req and decodes a JSON body into out. Only transport failures and
// undecodable bodies are errors; the status code is left to the caller.
func (c *Client) do(req *http.Request, out any) (int, error) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%w: failed to read response: %w", store.ErrUnavailable, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		return resp.StatusCode, fmt.Errorf("%w: status %d with undecodable body %q", store.ErrUnavailable, resp.StatusCode, data)
	}
	return resp.StatusCode, nil
}
