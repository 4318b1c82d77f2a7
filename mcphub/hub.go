// Package mcphub maintains named MCP service connections and exposes
// availability checks and tool invocation over them. It is the host's
// service registry: integrations ask it whether a service is connected
// right now and route tool calls through it.
package mcphub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	clientName    = "recall-go"
	clientVersion = "0.1.0"
)

// service is one registered connection.
type service struct {
	config Config
	client *client.Client
	state  State
}

// Hub owns a set of named service connections.
type Hub struct {
	mu       sync.RWMutex
	services map[string]*service
	logger   *slog.Logger
}

// New creates an empty Hub. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		services: make(map[string]*service),
		logger:   logger,
	}
}

// Connect registers a service and establishes its connection. An
// already registered name is reconnected with the new config.
func (h *Hub) Connect(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.services[cfg.Name]; ok && existing.client != nil {
		existing.client.Close()
	}

	svc := &service{config: cfg, state: StateDisconnected}
	h.services[cfg.Name] = svc

	cli, err := h.dial(ctx, cfg)
	if err != nil {
		svc.state = StateError
		h.logger.Warn("[mcphub] connect failed", "service", cfg.Name, "type", cfg.Type, "error", err)
		return fmt.Errorf("mcphub: connect %q: %w", cfg.Name, err)
	}

	svc.client = cli
	svc.state = StateConnected
	h.logger.Info("[mcphub] service connected", "service", cfg.Name, "type", cfg.Type)
	return nil
}

// dial builds the transport, starts the client, and runs the MCP
// initialize handshake.
func (h *Hub) dial(ctx context.Context, cfg Config) (*client.Client, error) {
	var (
		cli *client.Client
		err error
	)

	switch cfg.Type {
	case ConnectionTypeHTTP:
		var t transport.Interface
		t, err = transport.NewStreamableHTTP(cfg.URL, transport.WithHTTPHeaders(cfg.Headers))
		if err == nil {
			cli = client.NewClient(t)
		}
	case ConnectionTypeSSE:
		var t transport.Interface
		t, err = transport.NewSSE(cfg.URL, transport.WithHeaders(cfg.Headers))
		if err == nil {
			cli = client.NewClient(t)
		}
	case ConnectionTypeStdio:
		cli = client.NewClient(transport.NewStdio(cfg.Command, cfg.Env, cfg.Args...))
	case ConnectionTypeInProcess:
		cli, err = client.NewInProcessClient(cfg.Server)
	}
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.connectTimeout())
	defer cancel()

	if err := cli.Start(dialCtx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("start transport: %w", err)
	}

	initReq := mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    clientName,
				Version: clientVersion,
			},
		},
	}
	if _, err := cli.Initialize(dialCtx, initReq); err != nil {
		cli.Close()
		return nil, fmt.Errorf("initialize: %w", err)
	}
	return cli, nil
}

// Disconnect closes a service's connection and marks it disconnected.
// The registration stays so Reconnect can restore it.
func (h *Hub) Disconnect(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	svc, ok := h.services[name]
	if !ok {
		return fmt.Errorf("mcphub: unknown service %q", name)
	}
	if svc.client != nil {
		svc.client.Close()
		svc.client = nil
	}
	svc.state = StateDisconnected
	h.logger.Info("[mcphub] service disconnected", "service", name)
	return nil
}

// Reconnect re-dials a registered service using its stored config.
func (h *Hub) Reconnect(ctx context.Context, name string) error {
	h.mu.RLock()
	svc, ok := h.services[name]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("mcphub: unknown service %q", name)
	}
	return h.Connect(ctx, svc.config)
}

// Status returns the current state of a named service. Unregistered
// names report StateDisconnected.
func (h *Hub) Status(name string) State {
	h.mu.RLock()
	defer h.mu.RUnlock()

	svc, ok := h.services[name]
	if !ok {
		return StateDisconnected
	}
	return svc.state
}

// IsConnected reports whether a named service exists and is currently
// connected. The answer reflects registry state at call time; it is
// never cached.
func (h *Hub) IsConnected(name string) bool {
	return h.Status(name) == StateConnected
}

// CallTool invokes a tool on a connected service.
func (h *Hub) CallTool(ctx context.Context, serviceName, tool string, args map[string]any) (*mcp.CallToolResult, error) {
	// Snapshot the service state under the lock; Connect, Disconnect,
	// and the error path below write these fields concurrently.
	h.mu.RLock()
	svc, ok := h.services[serviceName]
	var (
		cli         *client.Client
		connected   bool
		callTimeout time.Duration
	)
	if ok {
		cli = svc.client
		connected = svc.state == StateConnected
		callTimeout = svc.config.CallTimeout
	}
	h.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("mcphub: unknown service %q", serviceName)
	}
	if !connected || cli == nil {
		return nil, fmt.Errorf("mcphub: service %q is not connected", serviceName)
	}

	if callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, callTimeout)
		defer cancel()
	}

	req := mcp.CallToolRequest{
		Request: mcp.Request{Method: string(mcp.MethodToolsCall)},
		Params: mcp.CallToolParams{
			Name:      tool,
			Arguments: args,
		},
	}
	res, err := cli.CallTool(ctx, req)
	if err != nil {
		h.mu.Lock()
		svc.state = StateError
		h.mu.Unlock()
		h.logger.Warn("[mcphub] tool call failed", "service", serviceName, "tool", tool, "error", err)
		return nil, fmt.Errorf("mcphub: call %s/%s: %w", serviceName, tool, err)
	}
	return res, nil
}

// Close disconnects every registered service.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for name, svc := range h.services {
		if svc.client != nil {
			svc.client.Close()
			svc.client = nil
		}
		svc.state = StateDisconnected
		h.logger.Info("[mcphub] service closed", "service", name)
	}
}
