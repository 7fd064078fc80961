// Package mcp connects askflow to the Model Context Protocol: Client calls
// tools on remote servers (web search backends) and Server exposes the
// engine as an "ask" tool.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sweetpotato0/askflow/pkg/logging"
)

var (
	// ErrClientClosed is returned when the MCP client has been closed.
	ErrClientClosed = errors.New("mcp client closed")
)

// Option configures optional MCP client behaviour.
type Option func(*clientConfig)

type clientConfig struct {
	implementation   sdkmcp.Implementation
	logger           *slog.Logger
	args             []string
	env              []string
	keepAlive        time.Duration
	terminateTimeout time.Duration
	httpClient       *http.Client
}

// WithLogger replaces the component logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *clientConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithCommandArgs configures additional arguments when launching an stdio MCP server.
func WithCommandArgs(args ...string) Option {
	return func(cfg *clientConfig) {
		cfg.args = append(cfg.args, args...)
	}
}

// WithCommandEnv appends environment variables when launching an stdio MCP server.
func WithCommandEnv(env ...string) Option {
	return func(cfg *clientConfig) {
		cfg.env = append(cfg.env, env...)
	}
}

// WithKeepAlive configures periodic ping requests to keep the session healthy.
func WithKeepAlive(interval time.Duration) Option {
	return func(cfg *clientConfig) {
		cfg.keepAlive = interval
	}
}

// WithTerminateTimeout sets how long to wait for graceful server shutdown before sending SIGTERM.
func WithTerminateTimeout(d time.Duration) Option {
	return func(cfg *clientConfig) {
		cfg.terminateTimeout = d
	}
}

// WithHTTPClient supplies a custom HTTP client for the streamable transport.
func WithHTTPClient(client *http.Client) Option {
	return func(cfg *clientConfig) {
		cfg.httpClient = client
	}
}

// Client wraps an SDK client session.
type Client struct {
	session *sdkmcp.ClientSession
	logger  *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewStdioClient launches an MCP server command using the stdio transport and performs
// the initialization handshake.
func NewStdioClient(ctx context.Context, command string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(command) == "" {
		return nil, errors.New("mcp: command cannot be empty")
	}
	cfg := newConfig(opts)

	cmd := exec.Command(command, cfg.args...)
	if len(cfg.env) > 0 {
		cmd.Env = append(os.Environ(), cfg.env...)
	}
	cmd.Stderr = logWriter{logger: cfg.logger}

	return connect(ctx, cfg, &sdkmcp.CommandTransport{
		Command:           cmd,
		TerminateDuration: cfg.terminateTimeout,
	})
}

// NewStreamableClient connects to an MCP server over the streamable HTTP transport.
func NewStreamableClient(ctx context.Context, endpoint string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, errors.New("mcp: endpoint cannot be empty")
	}
	cfg := newConfig(opts)

	transport := &sdkmcp.StreamableClientTransport{Endpoint: endpoint}
	if cfg.httpClient != nil {
		transport.HTTPClient = cfg.httpClient
	}
	return connect(ctx, cfg, transport)
}

// Connect performs the handshake over an arbitrary transport, such as one half
// of sdkmcp.NewInMemoryTransports.
func Connect(ctx context.Context, transport sdkmcp.Transport, opts ...Option) (*Client, error) {
	return connect(ctx, newConfig(opts), transport)
}

func connect(ctx context.Context, cfg clientConfig, transport sdkmcp.Transport) (*Client, error) {
	client := &Client{
		logger: cfg.logger,
		done:   make(chan struct{}),
	}
	sdkClient := sdkmcp.NewClient(&cfg.implementation, &sdkmcp.ClientOptions{
		LoggingMessageHandler: func(_ context.Context, req *sdkmcp.LoggingMessageRequest) {
			if req != nil && req.Params != nil {
				client.logger.Debug("mcp server log", "level", req.Params.Level, "data", req.Params.Data)
			}
		},
		KeepAlive: cfg.keepAlive,
	})

	session, err := sdkClient.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp: connect failed: %w", err)
	}
	client.session = session
	if res := session.InitializeResult(); res != nil && res.ServerInfo != nil {
		client.logger.Info("mcp session established", "server", res.ServerInfo.Name, "version", res.ServerInfo.Version)
	}

	go client.monitorSession()
	return client, nil
}

// Close terminates the MCP client and underlying transport.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.session != nil {
			c.closeErr = c.session.Close()
		}
		close(c.done)
	})
	return c.closeErr
}

// Done returns a channel that is closed when the client shuts down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) monitorSession() {
	if err := c.session.Wait(); err != nil && !errors.Is(err, sdkmcp.ErrConnectionClosed) {
		c.logger.Warn("mcp session ended with error", "error", err)
	}
	_ = c.Close()
}

// ToolError is returned when the MCP server reports an error response.
type ToolError struct {
	Name    string
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("mcp tool %s: %s", e.Name, e.Message)
}

// ToolNames lists every tool the server exposes.
func (c *Client) ToolNames(ctx context.Context) ([]string, error) {
	if c.closed() {
		return nil, ErrClientClosed
	}
	var names []string
	params := &sdkmcp.ListToolsParams{}
	for {
		res, err := c.session.ListTools(ctx, params)
		if err != nil {
			return nil, err
		}
		for _, tool := range res.Tools {
			names = append(names, tool.Name)
		}
		if res.NextCursor == "" {
			return names, nil
		}
		params.Cursor = res.NextCursor
	}
}

// CallTool invokes a remote tool and returns its text content. Structured
// content, when present, is returned as JSON instead.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	if c.closed() {
		return "", ErrClientClosed
	}
	result, err := c.session.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return "", err
	}

	text := normalizeContent(result.Content)
	if result.IsError {
		if text == "" {
			text = "tool returned error without message"
		}
		return "", &ToolError{Name: name, Message: text}
	}
	return text, nil
}

func (c *Client) closed() bool {
	if c == nil || c.session == nil {
		return true
	}
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func normalizeContent(content []sdkmcp.Content) string {
	parts := make([]string, 0, len(content))
	for _, item := range content {
		switch v := item.(type) {
		case *sdkmcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if data, err := item.MarshalJSON(); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func newConfig(opts []Option) clientConfig {
	cfg := clientConfig{
		implementation: sdkmcp.Implementation{Name: "askflow", Version: Version},
		logger:         logging.WithComponent("mcp_client"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

type logWriter struct {
	logger *slog.Logger
}

func (w logWriter) Write(p []byte) (int, error) {
	if msg := strings.TrimSpace(string(p)); msg != "" {
		w.logger.Debug("mcp server stderr", "line", msg)
	}
	return len(p), nil
}
