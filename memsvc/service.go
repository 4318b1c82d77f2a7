// Package memsvc is a local, in-process memory service. It stores
// conversation exchanges in an embedded vector database and answers the
// four memory tools (enrich_context, store_exchange,
// get_last_chunk_index, get_core_identity) over MCP, so the SDK runs
// end to end without an external deployment.
package memsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/becomeliminal/recall-go/memory"
)

// ServiceConfig configures the local memory service.
type ServiceConfig struct {
	// Name is the registry name the service answers to. Default: "memory".
	Name string

	// Identity is the payload returned by get_core_identity.
	Identity map[string]any

	// Embedder defaults to a hash embedder when nil.
	Embedder Embedder

	// Logger defaults to slog.Default() when nil.
	Logger *slog.Logger
}

// Service exposes the store through MCP tools. It also implements the
// memory client's Invoker directly, so embedded hosts can wire the
// client straight to it without a hub or transport in between.
type Service struct {
	name     string
	store    *Store
	identity map[string]any
	logger   *slog.Logger
	server   *server.MCPServer
}

// NewService builds the store and registers the four tools.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Name == "" {
		cfg.Name = "memory"
	}
	if cfg.Embedder == nil {
		cfg.Embedder = NewHashEmbedder(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	store, err := NewStore(cfg.Embedder, cfg.Logger)
	if err != nil {
		return nil, err
	}

	s := &Service{
		name:     cfg.Name,
		store:    store,
		identity: cfg.Identity,
		logger:   cfg.Logger,
		server: server.NewMCPServer(
			cfg.Name,
			"0.1.0",
			server.WithToolCapabilities(true),
			server.WithRecovery(),
		),
	}
	s.registerTools()
	return s, nil
}

// Server returns the underlying MCP server, for in-process connections
// through a hub.
func (s *Service) Server() *server.MCPServer {
	return s.server
}

// Store returns the backing store.
func (s *Service) Store() *Store {
	return s.store
}

// IsConnected implements the memory client's Invoker. An in-process
// service is always reachable under its own name.
func (s *Service) IsConnected(name string) bool {
	return name == s.name
}

// CallTool implements the memory client's Invoker by dispatching
// directly to the tool handlers, skipping any transport.
func (s *Service) CallTool(ctx context.Context, service, tool string, args map[string]any) (*mcp.CallToolResult, error) {
	if service != s.name {
		return nil, fmt.Errorf("memsvc: unknown service %q", service)
	}

	var envelope any
	switch tool {
	case memory.ToolEnrichContext:
		envelope = s.enrichContext(ctx, args)
	case memory.ToolStoreExchange:
		envelope = s.storeExchange(ctx, args)
	case memory.ToolGetLastChunkIndex:
		envelope = s.lastChunkIndex(args)
	case memory.ToolGetCoreIdentity:
		envelope = s.coreIdentity()
	default:
		return nil, fmt.Errorf("memsvc: unknown tool %q", tool)
	}
	return envelopeResult(envelope)
}

func (s *Service) registerTools() {
	s.server.AddTool(
		mcp.NewTool(memory.ToolEnrichContext,
			mcp.WithDescription("Recall stored exchanges relevant to a query"),
			mcp.WithString("query", mcp.Required(), mcp.Description("The text to recall against")),
			mcp.WithString("conversationContext", mcp.Description("Recent turns as role-prefixed lines")),
			mcp.WithNumber("topK", mcp.Description("Maximum memories to return")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return envelopeResult(s.enrichContext(ctx, req.GetArguments()))
		},
	)

	s.server.AddTool(
		mcp.NewTool(memory.ToolStoreExchange,
			mcp.WithDescription("Persist one user/assistant exchange"),
			mcp.WithString("userMessage", mcp.Description("The user side of the exchange")),
			mcp.WithString("assistantResponse", mcp.Description("The assistant side of the exchange")),
			mcp.WithString("taskId", mcp.Description("Source conversation id")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return envelopeResult(s.storeExchange(ctx, req.GetArguments()))
		},
	)

	s.server.AddTool(
		mcp.NewTool(memory.ToolGetLastChunkIndex,
			mcp.WithDescription("Last recorded chunk index for a source"),
			mcp.WithString("sourceId", mcp.Required(), mcp.Description("Source conversation id")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return envelopeResult(s.lastChunkIndex(req.GetArguments()))
		},
	)

	s.server.AddTool(
		mcp.NewTool(memory.ToolGetCoreIdentity,
			mcp.WithDescription("The service's structured identity payload"),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return envelopeResult(s.coreIdentity())
		},
	)
}

func (s *Service) enrichContext(ctx context.Context, args map[string]any) any {
	query, _ := args["query"].(string)
	if query == "" {
		return failure("query is required")
	}
	topK := intArg(args, "topK", 3)

	recalls, err := s.store.Search(ctx, query, topK)
	if err != nil {
		s.logger.Warn("[memsvc] search failed", "error", err)
		return failure(err.Error())
	}
	if recalls == nil {
		recalls = []Recall{}
	}
	return map[string]any{
		"success":           true,
		"recalled_memories": recalls,
	}
}

func (s *Service) storeExchange(ctx context.Context, args map[string]any) any {
	userText, _ := args["userMessage"].(string)
	assistantText, _ := args["assistantResponse"].(string)
	if userText == "" && assistantText == "" {
		return failure("exchange is empty")
	}
	taskID, _ := args["taskId"].(string)

	ex := Exchange{
		SourceID:      taskID,
		UserText:      userText,
		AssistantText: assistantText,
	}
	if metadata, ok := args["metadata"].(map[string]any); ok {
		ex.UserTimestamp = int64Arg(metadata, "userTimestamp")
		ex.AssistantTimestamp = int64Arg(metadata, "assistantTimestamp")
	}

	chunk, deduped, err := s.store.Save(ctx, ex)
	if err != nil {
		s.logger.Warn("[memsvc] store failed", "source", taskID, "error", err)
		return failure(err.Error())
	}
	if deduped {
		s.logger.Debug("[memsvc] duplicate exchange ignored", "source", taskID)
		return map[string]any{"success": true, "deduplicated": true}
	}
	return map[string]any{"success": true, "chunkIndex": chunk}
}

func (s *Service) lastChunkIndex(args map[string]any) any {
	sourceID, _ := args["sourceId"].(string)
	if sourceID == "" {
		return failure("sourceId is required")
	}
	return map[string]any{
		"success":        true,
		"lastChunkIndex": s.store.LastChunkIndex(sourceID),
	}
}

func (s *Service) coreIdentity() any {
	identity := s.identity
	if identity == nil {
		identity = map[string]any{}
	}
	return map[string]any{
		"success":  true,
		"identity": identity,
	}
}

// envelopeResult serializes an envelope into the single text content
// block the wire contract expects.
func envelopeResult(envelope any) (*mcp.CallToolResult, error) {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("memsvc: marshal envelope: %w", err)
	}
	return mcp.NewToolResultText(string(payload)), nil
}

func failure(reason string) any {
	return map[string]any{"success": false, "error": reason}
}

// intArg reads a numeric argument that JSON decoding may have turned
// into a float64.
func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}

func int64Arg(args map[string]any, key string) int64 {
	switch v := args[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}
