// Package agentflow provides a small HTTP client for the AgentFlow REST API.
package agentflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client.
const DefaultHTTPTimeout = 30 * time.Second

// Client wraps the HTTP interactions with the AgentFlow REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu     sync.RWMutex
	apiKey string
}

// ToolCall mirrors one recorded capability invocation.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Result    any            `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Step mirrors one executed step.
type Step struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	ToolCalls   []ToolCall `json:"tool_calls"`
	Completed   bool       `json:"completed"`
	Result      any        `json:"result,omitempty"`
}

// Execution is the record returned for a processed query.
type Execution struct {
	ID          string     `json:"id"`
	Query       string     `json:"query"`
	Steps       []Step     `json:"steps"`
	Status      string     `json:"status"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	FinalResult string     `json:"final_result,omitempty"`
}

// Memory is the exported history of a session.
type Memory struct {
	Executions []Execution    `json:"executions"`
	Context    map[string]any `json:"context"`
}

// TaskSubmission represents the payload required to create a new task.
type TaskSubmission struct {
	ID        string `json:"id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Query     string `json:"query"`
}

// Task describes an asynchronous query.
type Task struct {
	ID          string `json:"id"`
	SessionID   string `json:"session_id"`
	Query       string `json:"query"`
	Status      string `json:"status"`
	ExecutionID string `json:"execution_id,omitempty"`
	FinalResult string `json:"final_result,omitempty"`
	ErrorCode   string `json:"error_code,omitempty"`
	LastError   string `json:"last_error,omitempty"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

// Terminal reports whether the task reached a final status.
func (t Task) Terminal() bool {
	return t.Status == "completed" || t.Status == "failed"
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("agentflow api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("agentflow api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the AgentFlow API. When httpClient is
// nil, a default client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: scheme and host are required", rawURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// SetAPIKey sets the key sent as a bearer token on every request.
func (c *Client) SetAPIKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiKey = key
}

// APIKey returns the currently stored key.
func (c *Client) APIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey
}

// RunQuery executes a query synchronously within the given session. An empty
// session uses the server default.
func (c *Client) RunQuery(ctx context.Context, sessionID, query string) (Execution, error) {
	var exec Execution
	payload := map[string]string{"session_id": sessionID, "query": query}
	if err := c.post(ctx, "/api/v1/executions", payload, &exec); err != nil {
		return Execution{}, err
	}
	return exec, nil
}

// ExportMemory downloads the memory of a session.
func (c *Client) ExportMemory(ctx context.Context, sessionID string) (Memory, error) {
	var memory Memory
	endpoint := "/api/v1/sessions/" + sessionID + "/memory"
	if err := c.get(ctx, endpoint, nil, &memory); err != nil {
		return Memory{}, err
	}
	return memory, nil
}

// ListExecutions returns the executions of a session, newest first.
func (c *Client) ListExecutions(ctx context.Context, sessionID string, limit int) ([]Execution, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", fmt.Sprint(limit))
	}
	var out struct {
		Executions []Execution `json:"executions"`
	}
	endpoint := "/api/v1/sessions/" + sessionID + "/executions"
	if err := c.get(ctx, endpoint, query, &out); err != nil {
		return nil, err
	}
	return out.Executions, nil
}

// SubmitTask queues a query for asynchronous processing.
func (c *Client) SubmitTask(ctx context.Context, submission TaskSubmission) (Task, error) {
	var created Task
	if err := c.post(ctx, "/api/v1/tasks", submission, &created); err != nil {
		return Task{}, err
	}
	return created, nil
}

// GetTask fetches task details by identifier.
func (c *Client) GetTask(ctx context.Context, taskID string) (Task, error) {
	var detail Task
	if err := c.get(ctx, "/api/v1/tasks/"+taskID, nil, &detail); err != nil {
		return Task{}, err
	}
	return detail, nil
}

// WaitForTask polls the task until it reaches a terminal status or ctx ends.
func (c *Client) WaitForTask(ctx context.Context, taskID string, interval time.Duration) (Task, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		current, err := c.GetTask(ctx, taskID)
		if err != nil {
			return Task{}, err
		}
		if current.Terminal() {
			return current, nil
		}
		select {
		case <-ctx.Done():
			return current, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	u := *c.baseURL
	u.Path = path.Join(c.baseURL.Path, endpoint)
	u.RawPath = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if key := c.APIKey(); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
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
			_ = json.Unmarshal(data, &struct {
				Error *APIError `json:"error"`
			}{Error: apiErr})
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// IsNotFound reports whether err is an API error with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
