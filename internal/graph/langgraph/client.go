// Package langgraph streams swarm updates from a LangGraph API server.
package langgraph

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"redswarm/internal/graph"
	"redswarm/internal/logging"
)

// Config addresses the graph server.
type Config struct {
	BaseURL     string            `mapstructure:"base_url" yaml:"base_url"`
	AssistantID string            `mapstructure:"assistant_id" yaml:"assistant_id"`
	APIKey      string            `mapstructure:"api_key" yaml:"api_key"`
	Headers     map[string]string `mapstructure:"headers" yaml:"headers"`
	// RequestTimeout bounds non-streaming calls. Streams are bounded by
	// their context only, since sandboxed tools may run for tens of minutes.
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

const (
	DefaultAssistantID    = "swarm"
	defaultRequestTimeout = 30 * time.Second
	maxSSELine            = 8 * 1024 * 1024
)

// Client implements graph.Graph and graph.Checkpointer.
type Client struct {
	baseURL     string
	assistantID string
	apiKey      string
	headers     map[string]string
	timeout     time.Duration
	httpClient  *http.Client
	logger      logging.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the transport client. It must not set a global
// timeout, or long streams are cut off.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithLogger(logger logging.Logger) Option {
	return func(c *Client) { c.logger = logging.OrNop(logger) }
}

func New(cfg Config, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("langgraph: base url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("langgraph: invalid base url %q: %w", cfg.BaseURL, err)
	}
	assistant := strings.TrimSpace(cfg.AssistantID)
	if assistant == "" {
		assistant = DefaultAssistantID
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	c := &Client{
		baseURL:     base,
		assistantID: assistant,
		apiKey:      cfg.APIKey,
		headers:     cfg.Headers,
		timeout:     timeout,
		httpClient:  &http.Client{},
		logger:      logging.NewComponentLogger("LangGraphClient"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type streamRequest struct {
	AssistantID     string       `json:"assistant_id"`
	Input           streamInput  `json:"input"`
	StreamMode      []string     `json:"stream_mode"`
	StreamSubgraphs bool         `json:"stream_subgraphs"`
	Config          streamConfig `json:"config"`
	IfNotExists     string       `json:"if_not_exists,omitempty"`
}

type streamInput struct {
	Messages []graph.RawMessage `json:"messages"`
}

type streamConfig struct {
	RecursionLimit int            `json:"recursion_limit,omitempty"`
	Configurable   map[string]any `json:"configurable"`
}

// Stream starts a run on the thread and returns its update stream.
func (c *Client) Stream(ctx context.Context, input graph.RawMessage, thread graph.ThreadConfig) (graph.UpdateStream, error) {
	if thread.ThreadID == "" {
		return nil, fmt.Errorf("langgraph: thread id is required")
	}
	if err := c.ensureThread(ctx, thread.ThreadID); err != nil {
		return nil, err
	}

	payload := streamRequest{
		AssistantID:     c.assistantID,
		Input:           streamInput{Messages: []graph.RawMessage{input}},
		StreamMode:      []string{"updates"},
		StreamSubgraphs: true,
		Config: streamConfig{
			RecursionLimit: thread.RecursionLimit,
			Configurable:   thread.ConfigurableMap(),
		},
		IfNotExists: "create",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("langgraph: marshal run request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/threads/%s/runs/stream", c.baseURL, url.PathEscape(thread.ThreadID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.decorate(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	c.logger.Debug("POST %s (assistant=%s)", endpoint, c.assistantID)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("langgraph: start run: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		return nil, statusError("start run", resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELine)
	return &sseStream{body: resp.Body, scanner: scanner, logger: c.logger}, nil
}

// ensureThread creates the thread when it does not exist yet.
func (c *Client) ensureThread(ctx context.Context, threadID string) error {
	body, _ := json.Marshal(map[string]any{"thread_id": threadID, "if_exists": "do_nothing"})
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/threads", bytes.NewReader(body))
	if err != nil {
		return err
	}
	c.decorate(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("langgraph: create thread: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusConflict {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError("create thread", resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// ClearThread deletes the thread and its checkpoints. A missing thread is
// already clear.
func (c *Client) ClearThread(ctx context.Context, threadID string) error {
	if threadID == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/threads/%s", c.baseURL, url.PathEscape(threadID))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	c.decorate(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("langgraph: clear thread: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError("clear thread", resp)
	}
	c.logger.Debug("Cleared thread %s", threadID)
	return nil
}

// Ping checks that the server answers its liveness endpoint.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ok", nil)
	if err != nil {
		return err
	}
	c.decorate(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("langgraph: ping: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError("ping", resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) decorate(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
}

func statusError(op string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	detail := strings.TrimSpace(string(data))
	if detail == "" {
		detail = http.StatusText(resp.StatusCode)
	}
	return fmt.Errorf("langgraph: %s: status %d: %s", op, resp.StatusCode, detail)
}
