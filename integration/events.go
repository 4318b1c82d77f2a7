package integration

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/becomeliminal/recall-go/core"
)

// EnrichmentEvent fires before a user turn is sent to the model. The
// payload is mutable: handlers edit Content in place and register any
// async work on Tasks so the emitter can await completion before
// finalizing the turn. Emission itself never blocks on remote calls.
type EnrichmentEvent struct {
	TaskID string

	// Content is the outgoing user content, mutated in place.
	Content *[]core.ContentBlock

	// History is the trailing transcript slice for conversation context.
	History []core.Message

	// Tasks collects the handlers' async work. A nil Tasks makes
	// handlers run their work inline instead.
	Tasks *errgroup.Group
}

// ResponseEvent fires after an assistant response has been processed.
// The payload is read-only.
type ResponseEvent struct {
	TaskID           string
	UserMessage      core.Message
	AssistantMessage core.Message
}

// Events is the subscription surface a conversation engine exposes.
// The integration depends only on this interface, not on any concrete
// event-emitter implementation.
type Events interface {
	OnBeforeEnrichment(handler func(ctx context.Context, ev *EnrichmentEvent))
	OnAfterResponse(handler func(ctx context.Context, ev *ResponseEvent))
}

// Bus is a minimal Events implementation for hosts and tests. Handlers
// run synchronously, in subscription order, on the emitting goroutine;
// long work belongs on the event's Tasks group.
type Bus struct {
	mu         sync.Mutex
	enrichment []func(ctx context.Context, ev *EnrichmentEvent)
	response   []func(ctx context.Context, ev *ResponseEvent)
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) OnBeforeEnrichment(handler func(ctx context.Context, ev *EnrichmentEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enrichment = append(b.enrichment, handler)
}

func (b *Bus) OnAfterResponse(handler func(ctx context.Context, ev *ResponseEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.response = append(b.response, handler)
}

// EmitBeforeEnrichment delivers the event to every subscriber. The
// caller must wait on ev.Tasks afterwards to observe handler results.
func (b *Bus) EmitBeforeEnrichment(ctx context.Context, ev *EnrichmentEvent) {
	b.mu.Lock()
	handlers := append([]func(ctx context.Context, ev *EnrichmentEvent){}, b.enrichment...)
	b.mu.Unlock()

	for _, h := range handlers {
		h(ctx, ev)
	}
}

// EmitAfterResponse delivers the event to every subscriber.
func (b *Bus) EmitAfterResponse(ctx context.Context, ev *ResponseEvent) {
	b.mu.Lock()
	handlers := append([]func(ctx context.Context, ev *ResponseEvent){}, b.response...)
	b.mu.Unlock()

	for _, h := range handlers {
		h(ctx, ev)
	}
}

// Transcript gives read access to the host's append-only message log.
type Transcript interface {
	Messages() []core.Message
}
