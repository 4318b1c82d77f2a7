package mcphub

import (
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/server"
)

// ConnectionType selects the transport used to reach a service.
type ConnectionType string

const (
	ConnectionTypeHTTP      ConnectionType = "http"
	ConnectionTypeSSE       ConnectionType = "sse"
	ConnectionTypeStdio     ConnectionType = "stdio"
	ConnectionTypeInProcess ConnectionType = "inprocess"
)

// State is the current connection state of a registered service.
type State string

const (
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateError        State = "error"
)

// Config describes one service registration.
type Config struct {
	// Name is the registry key services are looked up by.
	Name string

	Type ConnectionType

	// URL is required for http and sse connections.
	URL string

	// Command and Args describe a stdio child process.
	Command string
	Args    []string

	// Env holds extra KEY=VALUE pairs for stdio processes.
	Env []string

	// Headers are sent on http and sse connections.
	Headers map[string]string

	// Server is the in-process MCP server for inprocess connections.
	Server *server.MCPServer

	// ConnectTimeout bounds transport start plus initialize.
	// Zero means DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// CallTimeout bounds a single tool call. Zero means no extra bound
	// beyond the caller's context.
	CallTimeout time.Duration
}

// DefaultConnectTimeout applies when Config.ConnectTimeout is zero.
const DefaultConnectTimeout = 30 * time.Second

// Validate checks that the config names a service and carries the
// fields its connection type needs.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("mcphub: config missing name")
	}
	switch c.Type {
	case ConnectionTypeHTTP, ConnectionTypeSSE:
		if c.URL == "" {
			return fmt.Errorf("mcphub: %s service %q missing url", c.Type, c.Name)
		}
	case ConnectionTypeStdio:
		if c.Command == "" {
			return fmt.Errorf("mcphub: stdio service %q missing command", c.Name)
		}
	case ConnectionTypeInProcess:
		if c.Server == nil {
			return fmt.Errorf("mcphub: inprocess service %q missing server", c.Name)
		}
	default:
		return fmt.Errorf("mcphub: service %q has unknown connection type %q", c.Name, c.Type)
	}
	return nil
}

func (c *Config) connectTimeout() time.Duration {
	if c.ConnectTimeout > 0 {
		return c.ConnectTimeout
	}
	return DefaultConnectTimeout
}
