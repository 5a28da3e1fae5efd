package agentrelay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// DefaultPollInterval is the wait between polls in WaitUntilCompleted.
const DefaultPollInterval = 500 * time.Millisecond

// Client wraps the HTTP interactions with the AgentRelay REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu          sync.RWMutex
	accessToken string
}

// TaskRequest represents the payload accepted by the dispatch and task
// submission endpoints.
type TaskRequest struct {
	ID             string         `json:"id,omitempty"`
	Type           string         `json:"type,omitempty"`
	Content        string         `json:"content"`
	TargetLanguage string         `json:"target_language,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// SearchResult mirrors a single internet search hit attached to a response.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Response is the synchronous dispatch result.
type Response struct {
	Role         string         `json:"role"`
	Output       string         `json:"output"`
	Entities     []string       `json:"entities,omitempty"`
	Sources      []SearchResult `json:"sources,omitempty"`
	Observations string         `json:"observations,omitempty"`
}

// Task describes an asynchronous task record.
type Task struct {
	ID             string         `json:"id"`
	Type           string         `json:"type,omitempty"`
	Content        string         `json:"content"`
	TargetLanguage string         `json:"target_language,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Status         string         `json:"status"`
	Attempts       int            `json:"attempts"`
	MaxRetries     int            `json:"max_retries"`
	LastError      string         `json:"last_error,omitempty"`
	ErrorCode      string         `json:"error_code,omitempty"`
	Result         *Response      `json:"result,omitempty"`
	CreatedAt      int64          `json:"created_at"`
	UpdatedAt      int64          `json:"updated_at"`
}

// Task statuses reported by the server.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// TaskStats aggregates task counts by status.
type TaskStats struct {
	Total           int   `json:"total"`
	Pending         int   `json:"pending"`
	Running         int   `json:"running"`
	Succeeded       int   `json:"succeeded"`
	Failed          int   `json:"failed"`
	OldestUpdatedAt int64 `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64 `json:"newest_updated_at,omitempty"`
}

// ListQuery filters task listings.
type ListQuery struct {
	Limit     int
	Offset    int
	Statuses  []string
	Types     []string
	Query     string
	Ascending bool
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("agentrelay api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("agentrelay api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the AgentRelay API. When httpClient is
// nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) *Client {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		panic(fmt.Sprintf("invalid base url: %v", err))
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}
}

// AccessToken returns the currently stored token string.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// SetAccessToken stores a static bearer token for subsequent calls.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

// Dispatch runs a task synchronously and returns the agent response.
func (c *Client) Dispatch(ctx context.Context, request TaskRequest) (Response, error) {
	var response Response
	if err := c.post(ctx, "/api/v1/dispatch", request, &response); err != nil {
		return Response{}, err
	}
	return response, nil
}

// SubmitTask queues a task for asynchronous execution.
func (c *Client) SubmitTask(ctx context.Context, request TaskRequest) (Task, error) {
	var created Task
	if err := c.post(ctx, "/api/v1/tasks", request, &created); err != nil {
		return Task{}, err
	}
	return created, nil
}

// GetTask fetches task details by identifier.
func (c *Client) GetTask(ctx context.Context, taskID string) (Task, error) {
	var detail Task
	endpoint := "/api/v1/tasks/" + url.PathEscape(taskID)
	if err := c.get(ctx, endpoint, &detail); err != nil {
		return Task{}, err
	}
	return detail, nil
}

// ListTasks returns tasks matching the query.
func (c *Client) ListTasks(ctx context.Context, query ListQuery) ([]Task, error) {
	values := url.Values{}
	if query.Limit > 0 {
		values.Set("limit", fmt.Sprintf("%d", query.Limit))
	}
	if query.Offset > 0 {
		values.Set("offset", fmt.Sprintf("%d", query.Offset))
	}
	if len(query.Statuses) > 0 {
		values.Set("status", joinComma(query.Statuses))
	}
	if len(query.Types) > 0 {
		values.Set("type", joinComma(query.Types))
	}
	if query.Query != "" {
		values.Set("q", query.Query)
	}
	if query.Ascending {
		values.Set("order", "asc")
	}
	endpoint := "/api/v1/tasks"
	if encoded := values.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	var tasks []Task
	if err := c.get(ctx, endpoint, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// Stats returns the aggregated task counters.
func (c *Client) Stats(ctx context.Context) (TaskStats, error) {
	var stats TaskStats
	if err := c.get(ctx, "/api/v1/tasks/stats", &stats); err != nil {
		return TaskStats{}, err
	}
	return stats, nil
}

// WaitUntilCompleted polls the task until it reaches a terminal status or the
// context is cancelled.
func (c *Client) WaitUntilCompleted(ctx context.Context, taskID string, interval time.Duration) (Task, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		detail, err := c.GetTask(ctx, taskID)
		if err != nil {
			return Task{}, err
		}
		if detail.Status == StatusSucceeded || detail.Status == StatusFailed {
			return detail, nil
		}
		select {
		case <-ctx.Done():
			return Task{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func joinComma(values []string) string {
	out := ""
	for i, value := range values {
		if i > 0 {
			out += ","
		}
		out += value
	}
	return out
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, parsed.Path), RawQuery: parsed.RawQuery}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if token := c.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
