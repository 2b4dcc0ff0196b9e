package memory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/khariha/ferris-wheel/internal/history"
	"github.com/khariha/ferris-wheel/internal/llm"
)

// ConversationRecord is one stored run. Messages never include system
// entries.
type ConversationRecord struct {
	ID        string        `json:"id"`
	ClientID  string        `json:"clientUUID"`
	Messages  []llm.Message `json:"messages"`
	CreatedAt time.Time     `json:"createdAt"`
}

// ConversationStore is the document-store side of persistence.
type ConversationStore interface {
	InsertConversation(ctx context.Context, rec ConversationRecord) error
	// Conversations returns a client's records, oldest first.
	Conversations(ctx context.Context, clientID string) ([]ConversationRecord, error)
}

// Store writes conversations and recollections.
type Store struct {
	docs    ConversationStore
	vectors VectorStore
	logger  *slog.Logger
	now     func() time.Time
}

// NewStore returns a Store. Either backend may be nil when the caller
// never uses the matching operation.
func NewStore(docs ConversationStore, vectors VectorStore, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		docs:    docs,
		vectors: vectors,
		logger:  logger.With("component", "memory"),
		now:     time.Now,
	}
}

// PersistConversation stores the non-system turns of msgs as one record.
// Nothing is written when no such turn remains.
func (s *Store) PersistConversation(ctx context.Context, clientID string, msgs []llm.Message) error {
	if s.docs == nil {
		return fmt.Errorf("persist conversation: no document store configured")
	}
	turns := history.WithoutSystem(msgs)
	if len(turns) == 0 {
		s.logger.Debug("conversation empty, not persisted", "client_id", clientID)
		return nil
	}

	id, _ := uuid.NewV7()
	rec := ConversationRecord{
		ID:        id.String(),
		ClientID:  clientID,
		Messages:  turns,
		CreatedAt: s.now().UTC(),
	}
	if err := s.docs.InsertConversation(ctx, rec); err != nil {
		return fmt.Errorf("persist conversation for %s: %w", clientID, err)
	}
	s.logger.Info("conversation persisted", "client_id", clientID, "id", rec.ID, "messages", len(turns))
	return nil
}

// PersistMemory stores text as a recollection for clientID.
func (s *Store) PersistMemory(ctx context.Context, clientID, text string) error {
	if s.vectors == nil {
		return fmt.Errorf("persist memory: no vector store configured")
	}
	id := NewDocumentID(clientID)
	meta := map[string]string{
		"clientUUID": clientID,
		"kind":       KindMemory,
		"createdAt":  s.now().UTC().Format(time.RFC3339),
	}
	if err := s.vectors.Upsert(ctx, CollectionName(clientID, KindMemory), id, text, meta); err != nil {
		return fmt.Errorf("persist memory for %s: %w", clientID, err)
	}
	s.logger.Info("memory persisted", "client_id", clientID, "id", id)
	return nil
}

// Conversations lists a client's stored conversations, oldest first.
func (s *Store) Conversations(ctx context.Context, clientID string) ([]ConversationRecord, error) {
	if s.docs == nil {
		return nil, fmt.Errorf("conversations: no document store configured")
	}
	recs, err := s.docs.Conversations(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("conversations for %s: %w", clientID, err)
	}
	return recs, nil
}
