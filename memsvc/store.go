package memsvc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
)

// Exchange is one stored user/assistant pair.
type Exchange struct {
	SourceID           string
	UserText           string
	AssistantText      string
	UserTimestamp      int64
	AssistantTimestamp int64
}

// Recall is one scored search hit.
type Recall struct {
	Text       string  `json:"text"`
	SourceID   string  `json:"sourceId"`
	ChunkIndex int     `json:"chunkIndex"`
	Score      float64 `json:"score"`
}

// Store keeps exchanges in a chromem-go vector database, one collection
// per source, with a ristretto cache over searches. Re-storing an
// identical exchange is a no-op, so history re-syncs don't duplicate.
type Store struct {
	db       *chromem.DB
	embedder Embedder
	logger   *slog.Logger
	cache    *ristretto.Cache

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
	seen        map[string]bool
	lastChunk   map[string]int

	// generation invalidates cached searches; bumped on every save.
	generation uint64
}

// NewStore creates an empty store around the given embedder.
func NewStore(embedder Embedder, logger *slog.Logger) (*Store, error) {
	if embedder == nil {
		return nil, fmt.Errorf("memsvc: embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1 << 24,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("memsvc: create cache: %w", err)
	}

	return &Store{
		db:          chromem.NewDB(),
		embedder:    embedder,
		logger:      logger,
		cache:       cache,
		collections: make(map[string]*chromem.Collection),
		seen:        make(map[string]bool),
		lastChunk:   make(map[string]int),
	}, nil
}

// Save stores one exchange. Returns the chunk index assigned to it, or
// the sentinel -1 with deduped=true when an identical exchange was
// already stored. A failed save leaves no trace: the dedup key, chunk
// counter, and cache generation only move once the document is in the
// collection, so the same exchange can be retried.
func (s *Store) Save(ctx context.Context, ex Exchange) (chunkIndex int, deduped bool, err error) {
	key := contentHash(ex)

	s.mu.RLock()
	dup := s.seen[key]
	s.mu.RUnlock()
	if dup {
		return -1, true, nil
	}

	text := exchangeText(ex)
	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return 0, false, fmt.Errorf("memsvc: embed exchange: %w", err)
	}

	col, err := s.collection(ex.SourceID)
	if err != nil {
		return 0, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[key] {
		return -1, true, nil
	}
	if last, ok := s.lastChunk[ex.SourceID]; ok {
		chunkIndex = last + 1
	}

	metadata := map[string]string{
		"sourceId":   ex.SourceID,
		"chunkIndex": strconv.Itoa(chunkIndex),
	}
	if ex.UserTimestamp != 0 {
		metadata["userTimestamp"] = strconv.FormatInt(ex.UserTimestamp, 10)
	}
	if ex.AssistantTimestamp != 0 {
		metadata["assistantTimestamp"] = strconv.FormatInt(ex.AssistantTimestamp, 10)
	}

	doc := chromem.Document{
		ID:        uuid.NewString(),
		Content:   text,
		Embedding: embedding,
		Metadata:  metadata,
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return 0, false, fmt.Errorf("memsvc: add document: %w", err)
	}

	s.seen[key] = true
	s.lastChunk[ex.SourceID] = chunkIndex
	s.generation++

	s.logger.Debug("[memsvc] stored exchange", "source", ex.SourceID, "chunk", chunkIndex)
	return chunkIndex, false, nil
}

// Search finds the topK most similar exchanges across every source.
func (s *Store) Search(ctx context.Context, query string, topK int) ([]Recall, error) {
	if topK <= 0 {
		topK = 3
	}

	s.mu.RLock()
	generation := s.generation
	cols := make([]*chromem.Collection, 0, len(s.collections))
	for _, col := range s.collections {
		cols = append(cols, col)
	}
	s.mu.RUnlock()

	cacheKey := searchKey(query, topK, generation)
	if cached, ok := s.cache.Get(cacheKey); ok {
		if recalls, ok := cached.([]Recall); ok {
			return recalls, nil
		}
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("memsvc: embed query: %w", err)
	}

	var merged []Recall
	for _, col := range cols {
		results, err := queryCollection(ctx, col, embedding, topK)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			chunk, _ := strconv.Atoi(r.Metadata["chunkIndex"])
			merged = append(merged, Recall{
				Text:       r.Content,
				SourceID:   r.Metadata["sourceId"],
				ChunkIndex: chunk,
				Score:      float64(r.Similarity),
			})
		}
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if len(merged) > topK {
		merged = merged[:topK]
	}

	s.cache.Set(cacheKey, merged, int64(len(merged)+1))
	return merged, nil
}

// LastChunkIndex returns the highest chunk index recorded for a source,
// or -1 when the source has no stored exchanges.
func (s *Store) LastChunkIndex(sourceID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.lastChunk[sourceID]
	if !ok {
		return -1
	}
	return idx
}

// collection returns the per-source collection, creating it on first use.
func (s *Store) collection(sourceID string) (*chromem.Collection, error) {
	s.mu.RLock()
	col, ok := s.collections[sourceID]
	s.mu.RUnlock()
	if ok {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.collections[sourceID]; ok {
		return col, nil
	}

	name := "source_" + sourceID
	col, err := s.db.CreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("memsvc: create collection: %w", err)
	}
	s.collections[sourceID] = col
	return col, nil
}

// queryCollection wraps chromem's limit restriction: nResults must not
// exceed the collection size, so retry with smaller limits until it
// fits.
func queryCollection(ctx context.Context, col *chromem.Collection, embedding []float32, limit int) ([]chromem.Result, error) {
	for n := limit; n >= 1; n-- {
		results, err := col.QueryEmbedding(ctx, embedding, n, nil, nil)
		if err == nil {
			return results, nil
		}
		if isInsufficientDocsError(err) {
			if n == 1 {
				return nil, nil
			}
			continue
		}
		return nil, fmt.Errorf("memsvc: query collection: %w", err)
	}
	return nil, nil
}

func isInsufficientDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}

// exchangeText is the stored document body; search hits return it as
// the recalled memory text.
func exchangeText(ex Exchange) string {
	switch {
	case ex.UserText == "":
		return "assistant: " + ex.AssistantText
	case ex.AssistantText == "":
		return "user: " + ex.UserText
	default:
		return "user: " + ex.UserText + "\nassistant: " + ex.AssistantText
	}
}

// contentHash identifies an exchange for dedup purposes.
func contentHash(ex Exchange) string {
	h := sha256.New()
	h.Write([]byte(ex.SourceID))
	h.Write([]byte{0})
	h.Write([]byte(ex.UserText))
	h.Write([]byte{0})
	h.Write([]byte(ex.AssistantText))
	return hex.EncodeToString(h.Sum(nil))
}

func searchKey(query string, topK int, generation uint64) string {
	h := sha256.Sum256([]byte(query))
	return fmt.Sprintf("%s|%d|%d", hex.EncodeToString(h[:8]), topK, generation)
}
