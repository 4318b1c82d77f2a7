package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/becomeliminal/recall-go/core"
	"github.com/becomeliminal/recall-go/sanitize"
)

// Client maps the four memory-service operations onto tool calls. Every
// operation is gated on the service being connected and degrades to its
// empty result on any failure; none of them ever return an error to the
// caller. A memory failure must never break the conversation turn.
type Client struct {
	invoker   Invoker
	sanitizer *sanitize.Sanitizer
	config    ClientConfig
	logger    *slog.Logger
}

// NewClient creates a memory client over the given invoker. A nil
// logger falls back to slog.Default().
func NewClient(invoker Invoker, config ClientConfig, logger *slog.Logger) (*Client, error) {
	if invoker == nil {
		return nil, fmt.Errorf("memory: invoker is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		invoker:   invoker,
		sanitizer: sanitize.New(),
		config:    config.withDefaults(),
		logger:    logger,
	}, nil
}

// Available reports whether the memory service is reachable right now.
func (c *Client) Available() bool {
	return c.invoker.IsConnected(c.config.Service)
}

// EnrichContext queries the service for memories relevant to the query,
// sending the trailing history window as conversation context. Returns
// an empty slice when the service is unavailable, the response is
// malformed, or the call fails.
func (c *Client) EnrichContext(ctx context.Context, query string, recentHistory []core.Message) []RecalledMemory {
	if !c.Available() {
		c.logger.Warn("[recall] memory service unavailable, skipping enrichment")
		return nil
	}

	args := map[string]any{
		"query": query,
		"topK":  c.config.TopK,
	}
	if cc := c.conversationContext(recentHistory); cc != "" {
		args["conversationContext"] = cc
	}

	payload, err := c.call(ctx, ToolEnrichContext, args)
	if err != nil {
		c.logger.Warn("[recall] enrich_context failed", "error", err)
		return nil
	}

	var envelope struct {
		Success          bool            `json:"success"`
		RecalledMemories json.RawMessage `json:"recalled_memories"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil || !envelope.Success {
		c.logger.Warn("[recall] enrich_context returned unusable response", "error", err)
		return nil
	}

	var memories []RecalledMemory
	if err := json.Unmarshal(envelope.RecalledMemories, &memories); err != nil {
		c.logger.Warn("[recall] recalled_memories is not an array", "error", err)
		return nil
	}
	return memories
}

// StoreExchange persists one user/assistant pair. Both sides are
// reduced to plain text and sanitized first; if both end up empty the
// call is skipped. Failures are logged, never returned.
func (c *Client) StoreExchange(ctx context.Context, userMsg, assistantMsg core.Message, taskID string) {
	if !c.Available() {
		c.logger.Warn("[recall] memory service unavailable, skipping store")
		return
	}

	userText := c.sanitizer.Clean(core.StorageText(userMsg))
	assistantText := c.sanitizer.Clean(assistantMsg.Text())
	if userText == "" && assistantText == "" {
		c.logger.Debug("[recall] exchange empty after sanitization, skipping store", "task", taskID)
		return
	}

	metadata := map[string]any{}
	if userMsg.Timestamp != 0 {
		metadata["userTimestamp"] = userMsg.Timestamp
	}
	if assistantMsg.Timestamp != 0 {
		metadata["assistantTimestamp"] = assistantMsg.Timestamp
	}

	args := map[string]any{
		"userMessage":       userText,
		"assistantResponse": assistantText,
		"taskId":            taskID,
	}
	if len(metadata) > 0 {
		args["metadata"] = metadata
	}

	payload, err := c.call(ctx, ToolStoreExchange, args)
	if err != nil {
		c.logger.Warn("[recall] store_exchange failed", "task", taskID, "error", err)
		return
	}

	var envelope struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil || !envelope.Success {
		c.logger.Warn("[recall] store_exchange rejected", "task", taskID, "error", err)
	}
}

// LastChunkIndex returns the service's last recorded chunk index for a
// source, or -1 when unavailable or unparseable.
func (c *Client) LastChunkIndex(ctx context.Context, sourceID string) int {
	if !c.Available() {
		return -1
	}

	payload, err := c.call(ctx, ToolGetLastChunkIndex, map[string]any{"sourceId": sourceID})
	if err != nil {
		c.logger.Warn("[recall] get_last_chunk_index failed", "source", sourceID, "error", err)
		return -1
	}

	var envelope struct {
		Success        bool `json:"success"`
		LastChunkIndex *int `json:"lastChunkIndex"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil || !envelope.Success || envelope.LastChunkIndex == nil {
		return -1
	}
	return *envelope.LastChunkIndex
}

// CoreIdentity fetches the service's structured identity payload, or
// nil on any failure.
func (c *Client) CoreIdentity(ctx context.Context) map[string]any {
	if !c.Available() {
		return nil
	}

	payload, err := c.call(ctx, ToolGetCoreIdentity, map[string]any{})
	if err != nil {
		c.logger.Warn("[recall] get_core_identity failed", "error", err)
		return nil
	}

	var envelope struct {
		Success  bool           `json:"success"`
		Identity map[string]any `json:"identity"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil || !envelope.Success {
		return nil
	}
	return envelope.Identity
}

// call invokes a tool and returns the JSON payload of its first text
// content block.
func (c *Client) call(ctx context.Context, tool string, args map[string]any) ([]byte, error) {
	res, err := c.invoker.CallTool(ctx, c.config.Service, tool, args)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("nil result")
	}
	text, ok := firstText(res)
	if !ok {
		return nil, fmt.Errorf("response has no text content")
	}
	if res.IsError {
		return nil, fmt.Errorf("tool error: %s", text)
	}
	return []byte(text), nil
}

// firstText extracts the first text content block from a tool result.
func firstText(res *mcp.CallToolResult) (string, bool) {
	for _, content := range res.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			return tc.Text, true
		}
	}
	return "", false
}

// conversationContext reduces the trailing history window to
// "{role}: {text}" lines, one sanitized entry per line.
func (c *Client) conversationContext(history []core.Message) string {
	if len(history) > c.config.HistoryWindow {
		history = history[len(history)-c.config.HistoryWindow:]
	}

	var lines []string
	for _, m := range history {
		text := c.sanitizer.Clean(m.Text())
		if text == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, text))
	}
	return strings.Join(lines, "\n")
}
