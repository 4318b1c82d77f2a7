package memsvc

import (
	"context"
	"errors"
	"testing"
)

// flakyEmbedder fails a set number of Embed calls before delegating.
type flakyEmbedder struct {
	inner    Embedder
	failures int
}

func (f *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("embedding backend down")
	}
	return f.inner.Embed(ctx, text)
}

func (f *flakyEmbedder) Dimensions() int { return f.inner.Dimensions() }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(NewHashEmbedder(64), nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestStoreSaveAndSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chunk, deduped, err := s.Save(ctx, Exchange{
		SourceID:      "task-1",
		UserText:      "what db are we using",
		AssistantText: "postgres with pgvector",
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if deduped || chunk != 0 {
		t.Errorf("chunk=%d deduped=%v, want 0/false", chunk, deduped)
	}

	recalls, err := s.Search(ctx, "database choice", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(recalls) != 1 {
		t.Fatalf("got %d recalls, want 1", len(recalls))
	}
	r := recalls[0]
	if r.SourceID != "task-1" || r.ChunkIndex != 0 {
		t.Errorf("recall = %+v", r)
	}
	if r.Text != "user: what db are we using\nassistant: postgres with pgvector" {
		t.Errorf("recall text = %q", r.Text)
	}
}

func TestStoreChunkIndices(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	exchanges := []Exchange{
		{SourceID: "task-1", UserText: "a", AssistantText: "b"},
		{SourceID: "task-1", UserText: "c", AssistantText: "d"},
		{SourceID: "task-2", UserText: "e", AssistantText: "f"},
	}
	var chunks []int
	for _, ex := range exchanges {
		chunk, _, err := s.Save(ctx, ex)
		if err != nil {
			t.Fatalf("Save: %v", err)
		}
		chunks = append(chunks, chunk)
	}

	if chunks[0] != 0 || chunks[1] != 1 {
		t.Errorf("task-1 chunks = %v, want 0 then 1", chunks[:2])
	}
	if chunks[2] != 0 {
		t.Errorf("task-2 first chunk = %d, want 0", chunks[2])
	}

	if got := s.LastChunkIndex("task-1"); got != 1 {
		t.Errorf("LastChunkIndex(task-1) = %d, want 1", got)
	}
	if got := s.LastChunkIndex("task-2"); got != 0 {
		t.Errorf("LastChunkIndex(task-2) = %d, want 0", got)
	}
	if got := s.LastChunkIndex("nope"); got != -1 {
		t.Errorf("LastChunkIndex(nope) = %d, want -1", got)
	}
}

func TestStoreDedup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ex := Exchange{SourceID: "task-1", UserText: "remember this", AssistantText: "noted"}
	if _, deduped, err := s.Save(ctx, ex); err != nil || deduped {
		t.Fatalf("first save: deduped=%v err=%v", deduped, err)
	}
	if _, deduped, err := s.Save(ctx, ex); err != nil || !deduped {
		t.Fatalf("second save: deduped=%v err=%v, want dedup", deduped, err)
	}

	// The duplicate must not consume a chunk index.
	if got := s.LastChunkIndex("task-1"); got != 0 {
		t.Errorf("LastChunkIndex = %d, want 0", got)
	}

	recalls, err := s.Search(ctx, "remember", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(recalls) != 1 {
		t.Errorf("got %d recalls after dedup, want 1", len(recalls))
	}
}

func TestSaveRetriesAfterEmbedFailure(t *testing.T) {
	s, err := NewStore(&flakyEmbedder{inner: NewHashEmbedder(64), failures: 1}, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	ctx := context.Background()
	ex := Exchange{SourceID: "task-1", UserText: "keep this", AssistantText: "stored"}

	if _, _, err := s.Save(ctx, ex); err == nil {
		t.Fatal("expected first save to fail")
	}

	// A failed save must leave no trace behind.
	if got := s.LastChunkIndex("task-1"); got != -1 {
		t.Errorf("LastChunkIndex after failed save = %d, want -1", got)
	}

	chunk, deduped, err := s.Save(ctx, ex)
	if err != nil {
		t.Fatalf("retry save: %v", err)
	}
	if deduped {
		t.Fatal("retry was treated as a duplicate of the failed save")
	}
	if chunk != 0 {
		t.Errorf("retry chunk = %d, want 0", chunk)
	}
	if got := s.LastChunkIndex("task-1"); got != 0 {
		t.Errorf("LastChunkIndex after retry = %d, want 0", got)
	}

	recalls, err := s.Search(ctx, "keep", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(recalls) != 1 {
		t.Fatalf("got %d recalls after retry, want 1", len(recalls))
	}
	if recalls[0].SourceID != "task-1" || recalls[0].ChunkIndex != 0 {
		t.Errorf("recall = %+v", recalls[0])
	}
}

func TestSearchTopKAcrossSources(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, ex := range []Exchange{
		{SourceID: "task-1", UserText: "alpha", AssistantText: "one"},
		{SourceID: "task-1", UserText: "beta", AssistantText: "two"},
		{SourceID: "task-2", UserText: "gamma", AssistantText: "three"},
		{SourceID: "task-3", UserText: "delta", AssistantText: "four"},
	} {
		if _, _, err := s.Save(ctx, ex); err != nil {
			t.Fatalf("Save #%d: %v", i, err)
		}
	}

	recalls, err := s.Search(ctx, "anything at all", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(recalls) != 2 {
		t.Errorf("got %d recalls, want topK=2", len(recalls))
	}
	for i := 1; i < len(recalls); i++ {
		if recalls[i].Score > recalls[i-1].Score {
			t.Errorf("recalls not sorted by score: %v", recalls)
		}
	}
}

func TestSearchEmptyStore(t *testing.T) {
	s := newTestStore(t)

	recalls, err := s.Search(context.Background(), "anything", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(recalls) != 0 {
		t.Errorf("got %d recalls from empty store", len(recalls))
	}
}

func TestHashEmbedderDeterministic(t *testing.T) {
	e := NewHashEmbedder(32)
	ctx := context.Background()

	a1, err := e.Embed(ctx, "same text")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	a2, _ := e.Embed(ctx, "same text")
	b, _ := e.Embed(ctx, "different text")

	for i := range a1 {
		if a1[i] != a2[i] {
			t.Fatal("embeddings for identical text differ")
		}
	}
	same := true
	for i := range a1 {
		if a1[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("embeddings for different texts are identical")
	}

	var norm float64
	for _, v := range a1 {
		norm += float64(v) * float64(v)
	}
	if norm < 0.99 || norm > 1.01 {
		t.Errorf("embedding not unit length: %f", norm)
	}
}
