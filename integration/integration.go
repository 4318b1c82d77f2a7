// Package integration wires memory recall and storage into a
// conversation engine's event stream. One Integration instance serves
// one task: it enriches outgoing user turns with recalled context,
// records finished exchanges, and keeps the remote store reconciled
// with the local transcript through a cursor-based history sync.
package integration

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/becomeliminal/recall-go/core"
	"github.com/becomeliminal/recall-go/memory"
	"github.com/becomeliminal/recall-go/sanitize"
)

// Config wires an Integration to its collaborators. All fields except
// Logger are required.
type Config struct {
	// TaskID scopes every operation; events carrying another task's id
	// are ignored entirely.
	TaskID string

	// Transcript is read access to the host's message log.
	Transcript Transcript

	// Events is the engine's subscription surface.
	Events Events

	// Client performs the remote memory operations.
	Client *memory.Client

	// Logger defaults to slog.Default() when nil.
	Logger *slog.Logger
}

// Integration is the per-task memory facade. Construction subscribes
// both event handlers and kicks off an initial history sync in the
// background, so an instance created mid-conversation backfills the
// turns it missed.
type Integration struct {
	taskID     string
	transcript Transcript
	client     *memory.Client
	sanitizer  *sanitize.Sanitizer
	logger     *slog.Logger

	// mu guards cursor; SyncHistory may be reached from the response
	// handler and from manual calls at the same time.
	mu     sync.Mutex
	cursor int
}

// New validates the wiring, subscribes to the event stream, and starts
// the construction-time sync. Missing collaborators are a wiring bug
// and fail fast; nothing after construction returns an error.
func New(cfg Config) (*Integration, error) {
	if cfg.TaskID == "" {
		return nil, fmt.Errorf("integration: task id is required")
	}
	if cfg.Transcript == nil {
		return nil, fmt.Errorf("integration: transcript is required")
	}
	if cfg.Events == nil {
		return nil, fmt.Errorf("integration: events is required")
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("integration: memory client is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	i := &Integration{
		taskID:     cfg.TaskID,
		transcript: cfg.Transcript,
		client:     cfg.Client,
		sanitizer:  sanitize.New(),
		logger:     logger,
		cursor:     -1,
	}

	cfg.Events.OnBeforeEnrichment(i.handleEnrichment)
	cfg.Events.OnAfterResponse(i.handleResponse)

	// Backfill anything stored before this instance existed. Errors
	// are logged inside; the result is never awaited.
	go i.SyncHistory(context.Background())

	return i, nil
}

// IsAvailable reports whether the memory service is reachable right now.
func (i *Integration) IsAvailable() bool {
	return i.client.Available()
}

// CoreIdentity fetches the memory service's identity payload, or nil.
func (i *Integration) CoreIdentity(ctx context.Context) map[string]any {
	return i.client.CoreIdentity(ctx)
}

// Cursor returns the index of the last transcript message confirmed
// handed to the store, -1 before any pair has been stored.
func (i *Integration) Cursor() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.cursor
}

// handleEnrichment strips stale recall blocks from the outgoing
// content, derives and sanitizes the query, and registers the remote
// recall on the event's task group. The recall block is prepended only
// after the remote call resolves, never during emission.
func (i *Integration) handleEnrichment(ctx context.Context, ev *EnrichmentEvent) {
	if ev.TaskID != i.taskID {
		return
	}
	if ev.Content == nil {
		return
	}

	// A retried turn can still carry the recall block from its first
	// attempt; storing or querying it would recall memories of
	// memories.
	stripRecallBlocks(ev.Content)

	query := i.sanitizer.Clean(core.DeriveText(*ev.Content))
	if query == "" {
		return
	}

	content := ev.Content
	history := ev.History
	work := func() error {
		memories := i.client.EnrichContext(ctx, query, history)
		if len(memories) == 0 {
			return nil
		}
		block := core.Text(formatRecallBlock(memories))
		*content = append([]core.ContentBlock{block}, *content...)
		i.logger.Info("[recall] enriched user turn", "task", i.taskID, "memories", len(memories))
		return nil
	}

	if ev.Tasks != nil {
		ev.Tasks.Go(work)
		return
	}
	_ = work()
}

// handleResponse stores the finished exchange, or runs a full history
// sync when the assistant announced completion. A single event cannot
// know about turns it missed; the completion signal is the moment to
// reconcile everything.
func (i *Integration) handleResponse(ctx context.Context, ev *ResponseEvent) {
	if ev.TaskID != i.taskID {
		return
	}

	if sanitize.ContainsCompletionSignal(ev.AssistantMessage.Text()) {
		i.SyncHistory(ctx)
		return
	}
	i.client.StoreExchange(ctx, ev.UserMessage, ev.AssistantMessage, i.taskID)
}

// SyncHistory replays every unstored consecutive user→assistant pair
// from the transcript through the store, advancing the cursor past each
// pair after its store attempt settles. Failed stores are retried on
// the next invocation because the cursor only moves after a best-effort
// attempt, in ascending index order. Safe to call at any time; no-op
// when the service is unavailable.
func (i *Integration) SyncHistory(ctx context.Context) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.client.Available() {
		i.logger.Warn("[recall] memory service unavailable, skipping history sync", "task", i.taskID)
		return
	}

	// Diagnostic only: chunk indices and message indices don't align
	// one-to-one, so the local cursor stays authoritative.
	remoteIndex := i.client.LastChunkIndex(ctx, i.taskID)
	i.logger.Debug("[recall] syncing history", "task", i.taskID, "cursor", i.cursor, "remoteChunkIndex", remoteIndex)

	msgs := i.transcript.Messages()
	stored := 0
	j := i.cursor + 1
	for j < len(msgs)-1 {
		if msgs[j].Role == core.RoleUser && msgs[j+1].Role == core.RoleAssistant {
			i.client.StoreExchange(ctx, msgs[j], msgs[j+1], i.taskID)
			i.cursor = j + 1
			stored++
			j += 2
			continue
		}
		j++
	}

	if stored > 0 {
		i.logger.Info("[recall] history sync complete", "task", i.taskID, "pairs", stored, "cursor", i.cursor)
	}
}

// stripRecallBlocks removes, in place, every text block that is a
// previously injected recall block.
func stripRecallBlocks(content *[]core.ContentBlock) {
	blocks := *content
	kept := blocks[:0]
	for _, b := range blocks {
		if b.Type == core.BlockText && sanitize.IsRecallBlock(b.Text) {
			continue
		}
		kept = append(kept, b)
	}
	*content = kept
}

// formatRecallBlock renders recalled memories as a single delimited
// text block. Score is preferred as the relevance label, then distance,
// then the chunk index.
func formatRecallBlock(memories []memory.RecalledMemory) string {
	entries := make([]string, 0, len(memories))
	for n, m := range memories {
		var label string
		switch {
		case m.Score != nil:
			label = fmt.Sprintf("Score: %.2f", *m.Score)
		case m.Distance != nil:
			label = fmt.Sprintf("Distance: %.2f", *m.Distance)
		default:
			label = fmt.Sprintf("Chunk: %d", m.ChunkIndex)
		}
		entries = append(entries, fmt.Sprintf("Memory %d (Source: %s, %s):\n%s", n+1, m.SourceID, label, m.Text))
	}
	return sanitize.RecallOpen + "\n" + strings.Join(entries, "\n---\n") + "\n" + sanitize.RecallClose
}
