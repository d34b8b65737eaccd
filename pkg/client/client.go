// Package client is a Go client for the ytdln stream API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
)

// ErrNotFound is returned when the server does not know the task id.
var ErrNotFound = errors.New("stream not found")

// Client communicates with a ytdln server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// CreateRequest starts a stream.
type CreateRequest struct {
	URL       string `json:"url"`
	Format    string `json:"format,omitempty"`
	AudioOnly bool   `json:"audioOnly,omitempty"`
}

// CreateResponse is the response from the create endpoint.
type CreateResponse struct {
	TaskID    string `json:"taskId"`
	Status    string `json:"status"`
	StreamURL string `json:"streamUrl"`
	StatusURL string `json:"statusUrl"`
}

// Progress is the merged progress of a stream.
type Progress struct {
	Percent          float64 `json:"percent"`
	Speed            string  `json:"speed"`
	ETA              string  `json:"eta"`
	Total            string  `json:"total"`
	Frame            int64   `json:"frame"`
	FPS              float64 `json:"fps"`
	Time             string  `json:"time"`
	Bitrate          string  `json:"bitrate"`
	EncodeSpeed      string  `json:"encodeSpeed"`
	BytesTransferred int64   `json:"bytesTransferred"`
	FileSizeBytes    int64   `json:"fileSizeBytes"`
	Source           string  `json:"source"`
}

// Status is the response from the status endpoint.
type Status struct {
	TaskID          string   `json:"taskId"`
	Status          string   `json:"status"`
	URL             string   `json:"url"`
	Uptime          float64  `json:"uptime"`
	ExtractorAlive  bool     `json:"extractorAlive"`
	TranscoderAlive bool     `json:"transcoderAlive"`
	Progress        Progress `json:"progress"`
	Error           *string  `json:"error"`
	ErrorCode       string   `json:"errorCode,omitempty"`
}

// Terminal reports whether the stream has finished.
func (s *Status) Terminal() bool {
	return s.Status == "completed" || s.Status == "stopped" || s.Status == "error"
}

// StopResponse is the response from the stop endpoint.
type StopResponse struct {
	TaskID  string `json:"taskId"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ListResponse is the response from the list endpoint.
type ListResponse struct {
	Streams []Status `json:"streams"`
	Count   int      `json:"count"`
}

// ErrorResponse represents an error from the server.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Stream is an open live output.
type Stream struct {
	Body io.ReadCloser
	// ContentLength is -1 when the server streams without a length.
	ContentLength int64
	ContentType   string
	Filename      string
}

// NewClient creates a new client. Requests other than the live stream are
// bounded by timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
		timeout:    timeout,
	}
}

// BaseURL returns the base URL of the server.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Create starts a new stream session.
func (c *Client) Create(ctx context.Context, req CreateRequest) (*CreateResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	var resp CreateResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/streams", bytes.NewReader(body), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status returns the status of a stream.
func (c *Client) Status(ctx context.Context, taskID string) (*Status, error) {
	var resp Status
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/streams/"+taskID+"/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop stops a stream.
func (c *Client) Stop(ctx context.Context, taskID string) error {
	var resp StopResponse
	return c.doRequest(ctx, http.MethodPost, "/api/v1/streams/"+taskID+"/stop", nil, &resp)
}

// List returns all live streams.
func (c *Client) List(ctx context.Context) ([]Status, error) {
	var resp ListResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/streams", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Streams, nil
}

// IsAvailable checks if the server is reachable.
func (c *Client) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return c.doRequest(ctx, http.MethodGet, "/health", nil, nil) == nil
}

// Open opens the live output of a stream. The caller must close Body.
// Cancelling ctx disconnects, which stops the session on the server.
func (c *Client) Open(ctx context.Context, taskID string) (*Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/streams/"+taskID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, responseError(resp.StatusCode, body)
	}

	s := &Stream{
		Body:          resp.Body,
		ContentLength: resp.ContentLength,
		ContentType:   resp.Header.Get("Content-Type"),
		Filename:      taskID,
	}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		s.Filename = params["filename"]
	}
	return s, nil
}

// doRequest performs an HTTP request to the server.
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader, result interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return responseError(resp.StatusCode, respBody)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

func responseError(status int, body []byte) error {
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		if status == http.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrNotFound, errResp.Error)
		}
		return fmt.Errorf("%s: %s", errResp.Code, errResp.Error)
	}
	return fmt.Errorf("request failed with status %d: %s", status, strings.TrimSpace(string(body)))
}
