package memory

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// Invoker is the narrow slice of the host's service registry the client
// needs: a live availability probe and generic tool invocation.
// *mcphub.Hub satisfies it; so does *memsvc.Service for embedded hosts
// that skip the hub entirely.
type Invoker interface {
	// IsConnected reports whether the named service is currently
	// connected. Implementations must answer from live registry state,
	// never from a cache.
	IsConnected(name string) bool

	// CallTool invokes a tool on the named service.
	CallTool(ctx context.Context, service, tool string, args map[string]any) (*mcp.CallToolResult, error)
}

// RecalledMemory is one item returned by an enrich_context call.
// Score and Distance are alternative relevance signals; services send
// one or the other, rarely both. Higher score and lower distance both
// mean more relevant.
type RecalledMemory struct {
	Text       string         `json:"text"`
	SourceID   string         `json:"sourceId"`
	ChunkIndex int            `json:"chunkIndex"`
	Score      *float64       `json:"score,omitempty"`
	Distance   *float64       `json:"distance,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Tool names exposed by a memory service.
const (
	ToolEnrichContext     = "enrich_context"
	ToolStoreExchange     = "store_exchange"
	ToolGetLastChunkIndex = "get_last_chunk_index"
	ToolGetCoreIdentity   = "get_core_identity"
)

// ClientConfig tunes the memory client.
type ClientConfig struct {
	// Service is the registry name of the memory service.
	// Default: "memory".
	Service string

	// TopK is the number of memories requested per enrichment.
	// Default: 3.
	TopK int

	// HistoryWindow is how many trailing transcript entries feed the
	// conversationContext string (3 exchange pairs). Default: 6.
	HistoryWindow int
}

// DefaultServiceName is the registry entry the client looks up when
// ClientConfig.Service is empty.
const DefaultServiceName = "memory"

func (c ClientConfig) withDefaults() ClientConfig {
	if c.Service == "" {
		c.Service = DefaultServiceName
	}
	if c.TopK <= 0 {
		c.TopK = 3
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = 6
	}
	return c
}
