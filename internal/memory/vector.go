package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	chromem "github.com/philippgille/chromem-go"
)

// VectorStore persists texts into named collections and answers
// similarity queries against them.
type VectorStore interface {
	// Upsert stores text under id in collection, creating the collection
	// on first use.
	Upsert(ctx context.Context, collection, id, text string, metadata map[string]string) error
	// Query returns at most limit entries of collection ranked by
	// similarity to text. A missing or empty collection yields no results
	// and no error.
	Query(ctx context.Context, collection, text string, limit int) ([]Recollection, error)
}

// ChromemStore is a [VectorStore] backed by chromem-go. It persists to a
// directory when one is configured and stays in memory otherwise.
type ChromemStore struct {
	db     *chromem.DB
	embed  chromem.EmbeddingFunc
	logger *slog.Logger
}

// NewChromemStore opens the vector store at path. An empty path gives an
// in-memory store.
func NewChromemStore(path string, compress bool, embed chromem.EmbeddingFunc, logger *slog.Logger) (*ChromemStore, error) {
	if embed == nil {
		return nil, fmt.Errorf("vector store: embedding function is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, compress)
		if err != nil {
			return nil, fmt.Errorf("open vector store %s: %w", path, err)
		}
	}

	logger.Info("vector store opened", "path", path, "collections", len(db.ListCollections()))
	return &ChromemStore{db: db, embed: embed, logger: logger}, nil
}

// Upsert implements [VectorStore].
func (s *ChromemStore) Upsert(ctx context.Context, collection, id, text string, metadata map[string]string) error {
	col, err := s.db.GetOrCreateCollection(collection, nil, s.embed)
	if err != nil {
		return fmt.Errorf("collection %s: %w", collection, err)
	}
	doc := chromem.Document{
		ID:       id,
		Content:  text,
		Metadata: metadata,
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document %s to %s: %w", id, collection, err)
	}
	s.logger.Debug("vector document stored", "collection", collection, "id", id, "len", len(text))
	return nil
}

// Query implements [VectorStore]. Distance is reported as 1 - cosine
// similarity, so smaller is closer.
func (s *ChromemStore) Query(ctx context.Context, collection, text string, limit int) ([]Recollection, error) {
	col := s.db.GetCollection(collection, s.embed)
	if col == nil {
		return []Recollection{}, nil
	}
	n := min(limit, col.Count())
	if n <= 0 {
		return []Recollection{}, nil
	}

	start := time.Now()
	results, err := col.Query(ctx, text, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}

	out := make([]Recollection, 0, len(results))
	for _, r := range results {
		out = append(out, Recollection{
			ID:       r.ID,
			Text:     r.Content,
			Distance: 1 - r.Similarity,
		})
	}
	s.logger.Debug("vector query",
		"collection", collection,
		"results", len(out),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return out, nil
}

// Count returns the number of documents in collection.
func (s *ChromemStore) Count(collection string) int {
	col := s.db.GetCollection(collection, s.embed)
	if col == nil {
		return 0
	}
	return col.Count()
}

// NewDocumentID returns "{clientID}-{8 hex}".
func NewDocumentID(clientID string) string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return clientID + "-" + hex.EncodeToString(b[:])
}
