package mcphub

import (
	"context"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func TestConfigValidate(t *testing.T) {
	srv := server.NewMCPServer("test", "0.0.1")

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid http", Config{Name: "svc", Type: ConnectionTypeHTTP, URL: "http://localhost:9000/mcp"}, false},
		{"valid sse", Config{Name: "svc", Type: ConnectionTypeSSE, URL: "http://localhost:9000/sse"}, false},
		{"valid stdio", Config{Name: "svc", Type: ConnectionTypeStdio, Command: "memory-server"}, false},
		{"valid inprocess", Config{Name: "svc", Type: ConnectionTypeInProcess, Server: srv}, false},
		{"missing name", Config{Type: ConnectionTypeHTTP, URL: "http://x"}, true},
		{"http without url", Config{Name: "svc", Type: ConnectionTypeHTTP}, true},
		{"sse without url", Config{Name: "svc", Type: ConnectionTypeSSE}, true},
		{"stdio without command", Config{Name: "svc", Type: ConnectionTypeStdio}, true},
		{"inprocess without server", Config{Name: "svc", Type: ConnectionTypeInProcess}, true},
		{"unknown type", Config{Name: "svc", Type: "carrier-pigeon"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// pingServer builds an in-process MCP server with a single echo tool.
func pingServer() *server.MCPServer {
	srv := server.NewMCPServer("ping", "0.0.1", server.WithToolCapabilities(true))
	srv.AddTool(
		mcp.NewTool("ping", mcp.WithDescription("echo back the message"),
			mcp.WithString("message", mcp.Required()),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			msg, _ := req.GetArguments()["message"].(string)
			return mcp.NewToolResultText("pong: " + msg), nil
		},
	)
	return srv
}

func TestHubInProcessLifecycle(t *testing.T) {
	hub := New(nil)
	defer hub.Close()
	ctx := context.Background()

	if hub.IsConnected("ping") {
		t.Error("unregistered service reported connected")
	}
	if got := hub.Status("ping"); got != StateDisconnected {
		t.Errorf("Status = %s, want disconnected", got)
	}

	if err := hub.Connect(ctx, Config{
		Name:   "ping",
		Type:   ConnectionTypeInProcess,
		Server: pingServer(),
	}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !hub.IsConnected("ping") {
		t.Fatal("service not connected after Connect")
	}

	res, err := hub.CallTool(ctx, "ping", "ping", map[string]any{"message": "hello"})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if len(res.Content) == 0 {
		t.Fatal("empty result content")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok || tc.Text != "pong: hello" {
		t.Errorf("result = %+v", res.Content[0])
	}

	if err := hub.Disconnect("ping"); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if hub.IsConnected("ping") {
		t.Error("service still connected after Disconnect")
	}
	if _, err := hub.CallTool(ctx, "ping", "ping", map[string]any{"message": "x"}); err == nil {
		t.Error("CallTool on disconnected service should fail")
	}

	if err := hub.Reconnect(ctx, "ping"); err != nil {
		t.Fatalf("Reconnect: %v", err)
	}
	if !hub.IsConnected("ping") {
		t.Error("service not connected after Reconnect")
	}
}

// Callers on one task may invoke tools while another task reconnects
// the same service; state reads and writes must stay consistent.
func TestHubConcurrentCallsAndReconnects(t *testing.T) {
	hub := New(nil)
	defer hub.Close()
	ctx := context.Background()

	if err := hub.Connect(ctx, Config{
		Name:   "ping",
		Type:   ConnectionTypeInProcess,
		Server: pingServer(),
	}); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				res, err := hub.CallTool(ctx, "ping", "ping", map[string]any{"message": "x"})
				if err != nil {
					// Expected while the service is mid-reconnect.
					continue
				}
				if res == nil || len(res.Content) == 0 {
					t.Error("successful call returned empty result")
					return
				}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 25; i++ {
			if err := hub.Disconnect("ping"); err != nil {
				t.Errorf("Disconnect: %v", err)
				return
			}
			if err := hub.Reconnect(ctx, "ping"); err != nil {
				t.Errorf("Reconnect: %v", err)
				return
			}
		}
	}()
	wg.Wait()

	if !hub.IsConnected("ping") {
		t.Error("service not connected after reconnect churn")
	}
	if _, err := hub.CallTool(ctx, "ping", "ping", map[string]any{"message": "final"}); err != nil {
		t.Errorf("CallTool after churn: %v", err)
	}
}

func TestHubUnknownService(t *testing.T) {
	hub := New(nil)
	ctx := context.Background()

	if _, err := hub.CallTool(ctx, "ghost", "ping", nil); err == nil {
		t.Error("expected error for unknown service")
	}
	if err := hub.Disconnect("ghost"); err == nil {
		t.Error("expected error for unknown service")
	}
	if err := hub.Reconnect(ctx, "ghost"); err == nil {
		t.Error("expected error for unknown service")
	}
}

func TestHubRejectsInvalidConfig(t *testing.T) {
	hub := New(nil)
	if err := hub.Connect(context.Background(), Config{Name: "bad", Type: ConnectionTypeHTTP}); err == nil {
		t.Error("expected validation error")
	}
}
