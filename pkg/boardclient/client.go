package boardclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Client is a hand-rolled HTTP client for a board-server's task API. There
// is no generated OpenAPI client in this tree to build on, so this talks to
// the API surface directly with net/http, using a functional-options
// constructor shape.
type Client struct {
	baseURL string
	opts    *options
	ws      *WebSocketClient
}

// New creates a new Client against a running board-server.
func New(baseURL string, opts ...Option) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	return &Client{baseURL: baseURL, opts: o}
}

// CreateTaskRequest mirrors internal/api/handlers.CreateTaskRequest.
type CreateTaskRequest struct {
	FnName   string          `json:"fn_name,omitempty"`
	Class    string          `json:"class,omitempty"`
	Blocking bool            `json:"blocking,omitempty"`
	Remote   bool            `json:"remote,omitempty"`
	Message  string          `json:"message,omitempty"`
	Args     json.RawMessage `json:"args,omitempty"`
}

// CreateTaskResponse mirrors internal/api/handlers.CreateTaskResponse.
type CreateTaskResponse struct {
	ID     string `json:"id"`
	FnName string `json:"fn_name"`
	Class  string `json:"class"`
	Status string `json:"status"`
}

// TaskResult mirrors internal/api/handlers.TaskResult.
type TaskResult struct {
	ID          string `json:"id"`
	FnName      string `json:"fn_name"`
	Class       string `json:"class"`
	Status      string `json:"status"`
	Response    []byte `json:"response,omitempty"`
	Error       string `json:"error,omitempty"`
	CreatedAt   string `json:"created_at"`
	CompletedAt string `json:"completed_at,omitempty"`
}

// QueueDepths mirrors the response of GET /tasks and GET /admin/queues.
type QueueDepths struct {
	PrimaryDepth    int   `json:"primary_depth"`
	SecondaryDepths []int `json:"secondary_depths"`
}

// HistoryRecord mirrors board.HistoryRecord's JSON projection.
type HistoryRecord struct {
	FnName      string  `json:"fn_name"`
	Completions int64   `json:"completions"`
	Executions  int64   `json:"executions"`
	Yields      int64   `json:"yields"`
	MeanCPUTime int64   `json:"mean_cpu_time"`
	MeanYields  float64 `json:"mean_yields"`
}

// LeakedEntry mirrors remote.LeakedEntry's JSON projection.
type LeakedEntry struct {
	EnvelopeID string `json:"envelope_id"`
	Message    string `json:"message"`
	Blocking   bool   `json:"blocking"`
	LeakedAt   string `json:"leaked_at"`
}

// CreateTask submits POST /tasks.
func (c *Client) CreateTask(ctx context.Context, req CreateTaskRequest) (*CreateTaskResponse, error) {
	var resp CreateTaskResponse
	if err := c.do(ctx, http.MethodPost, "/tasks", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetTask fetches GET /tasks/{id}.
func (c *Client) GetTask(ctx context.Context, id string) (*TaskResult, error) {
	var res TaskResult
	if err := c.do(ctx, http.MethodGet, "/tasks/"+id, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// QueueStatistics fetches GET /tasks' queue-depth summary.
func (c *Client) QueueStatistics(ctx context.Context) (*QueueDepths, error) {
	var depths QueueDepths
	if err := c.do(ctx, http.MethodGet, "/tasks", nil, &depths); err != nil {
		return nil, err
	}
	return &depths, nil
}

// History fetches GET /history.
func (c *Client) History(ctx context.Context) ([]HistoryRecord, error) {
	var body struct {
		Records []HistoryRecord `json:"records"`
	}
	if err := c.do(ctx, http.MethodGet, "/history", nil, &body); err != nil {
		return nil, err
	}
	return body.Records, nil
}

// HistoryText fetches GET /history?format=text, the human-readable table.
func (c *Client) HistoryText(ctx context.Context) (string, error) {
	resp, err := c.raw(ctx, http.MethodGet, "/history?format=text", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("boardclient: failed to read history text: %w", err)
	}
	return string(data), nil
}

// AdminQueues fetches GET /admin/queues.
func (c *Client) AdminQueues(ctx context.Context) (*QueueDepths, error) {
	var depths QueueDepths
	if err := c.do(ctx, http.MethodGet, "/admin/queues", nil, &depths); err != nil {
		return nil, err
	}
	return &depths, nil
}

// Kill issues POST /admin/kill, force-terminating the board.
func (c *Client) Kill(ctx context.Context) (bool, error) {
	var body struct {
		Killed bool `json:"killed"`
	}
	if err := c.do(ctx, http.MethodPost, "/admin/kill", nil, &body); err != nil {
		return false, err
	}
	return body.Killed, nil
}

// LeakedEnvelopes fetches GET /admin/leaked.
func (c *Client) LeakedEnvelopes(ctx context.Context) ([]LeakedEntry, error) {
	var body struct {
		Entries []LeakedEntry `json:"entries"`
	}
	if err := c.do(ctx, http.MethodGet, "/admin/leaked", nil, &body); err != nil {
		return nil, err
	}
	return body.Entries, nil
}

// CheckHealth fetches GET /health.
func (c *Client) CheckHealth(ctx context.Context) error {
	resp, err := c.raw(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("boardclient: unhealthy status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("boardclient: failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	resp, err := c.raw(ctx, method, path, reader)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var errBody struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		if errBody.Message != "" {
			return fmt.Errorf("boardclient: %s: %s", errBody.Error, errBody.Message)
		}
		return fmt.Errorf("boardclient: unexpected status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("boardclient: failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) raw(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("boardclient: failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.opts.applyHeaders(req)

	resp, err := c.opts.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("boardclient: request failed: %w", err)
	}
	return resp, nil
}

// ConnectWebSocket establishes a WebSocket connection for the board's
// live event feed.
func (c *Client) ConnectWebSocket(ctx context.Context) error {
	if c.ws != nil && c.ws.IsConnected() {
		return nil
	}
	c.ws = newWebSocketClient(c.baseURL, c.opts.apiKey)
	return c.ws.Connect(ctx)
}

// Events returns a channel that receives WebSocket events. Call
// ConnectWebSocket first.
func (c *Client) Events() <-chan *Event {
	if c.ws == nil {
		ch := make(chan *Event)
		close(ch)
		return ch
	}
	return c.ws.Events()
}

// CloseWebSocket closes the WebSocket connection.
func (c *Client) CloseWebSocket() error {
	if c.ws == nil {
		return nil
	}
	return c.ws.Close()
}

// SubscribeEvents sends a subscribe request for specific event types over
// the open WebSocket connection. The board server only logs the request;
// it keeps sending every event type to the connection.
func (c *Client) SubscribeEvents(eventTypes ...EventType) error {
	if c.ws == nil {
		return fmt.Errorf("boardclient: websocket not connected")
	}
	return c.ws.Subscribe(eventTypes...)
}
