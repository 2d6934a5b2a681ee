package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrStreamStart is returned when the query endpoint does not hand back a readable stream
	ErrStreamStart = errors.New("failed to start stream")

	ErrProjects = errors.New("failed to fetch projects")
)

const errorBodyLimit = 512

// QueryRequest is the body of POST /query
type QueryRequest struct {
	Question  string `json:"question"`
	ProjectID string `json:"project_id"`
	SessionID string `json:"session_id,omitempty"`
}

// QueryTransport opens an abortable event stream for a question
type QueryTransport interface {
	Query(ctx context.Context, req QueryRequest) (io.ReadCloser, error)
}

// ProjectLister lists the projects a question can target
type ProjectLister interface {
	ListProjects(ctx context.Context) ([]string, error)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client with a 30s response-header timeout
func NewClient(baseURL string) *Client {
	return NewClientWithTimeout(baseURL, 30*time.Second)
}

// NewClientWithTimeout bounds the wait for response headers only. The
// streamed body has no deadline; callers cancel through the context.
func NewClientWithTimeout(baseURL string, headerTimeout time.Duration) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = headerTimeout

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Transport: transport},
	}
}

// BaseURL returns the service root the client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Query posts the question and returns the response body for decoding.
// The caller must close it.
func (c *Client) Query(ctx context.Context, req QueryRequest) (io.ReadCloser, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/query", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStreamStart, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrStreamStart, describeFailure(resp))
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, fmt.Errorf("%w: response has no body", ErrStreamStart)
	}

	return resp.Body, nil
}

// ListProjects fetches the indexed project ids
func (c *Client) ListProjects(ctx context.Context) ([]string, error) {
	url := fmt.Sprintf("%s/projects", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProjects, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", ErrProjects, describeFailure(resp))
	}

	var projects []string
	if err := json.NewDecoder(resp.Body).Decode(&projects); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %w", ErrProjects, err)
	}
	return projects, nil
}

// describeFailure summarizes a non-success response, preferring a JSON
// {"error": "..."} message over the raw body.
func describeFailure(resp *http.Response) string {
	errorBody, err := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	if err != nil {
		return fmt.Sprintf("status %d (failed to read error response: %v)", resp.StatusCode, err)
	}

	var errorResp struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(errorBody, &errorResp) == nil && errorResp.Error != "" {
		return fmt.Sprintf("status %d: %s", resp.StatusCode, errorResp.Error)
	}

	body := strings.TrimSpace(string(errorBody))
	if body == "" {
		return fmt.Sprintf("status %d", resp.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", resp.StatusCode, body)
}

var (
	_ QueryTransport = (*Client)(nil)
	_ ProjectLister  = (*Client)(nil)
)
