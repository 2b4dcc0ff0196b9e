package memory

import (
	"context"
	"hash/fnv"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"testing"
	"unicode"

	"github.com/khariha/ferris-wheel/internal/llm"
)

const testDims = 64

// bagOfWords is a deterministic embedding: each lowercased word bumps one
// hashed dimension and the result is normalized.
func bagOfWords(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, testDims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%testDims]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm == 0 {
		v[0] = 1
		return v, nil
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestVectors(t *testing.T) *ChromemStore {
	t.Helper()
	s, err := NewChromemStore("", false, bagOfWords, discardLogger())
	if err != nil {
		t.Fatalf("NewChromemStore: %v", err)
	}
	return s
}

// memConversations is an in-memory ConversationStore.
type memConversations struct {
	mu   sync.Mutex
	recs []ConversationRecord
}

func (m *memConversations) InsertConversation(_ context.Context, rec ConversationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memConversations) Conversations(_ context.Context, clientID string) ([]ConversationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ConversationRecord
	for _, r := range m.recs {
		if r.ClientID == clientID {
			out = append(out, r)
		}
	}
	return out, nil
}

type mockLLM struct {
	reply string
	err   error
	calls []llm.ChatRequest
}

func (m *mockLLM) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	m.calls = append(m.calls, req)
	if m.err != nil {
		return nil, m.err
	}
	return &llm.ChatResponse{
		FinishReason: llm.FinishFinal,
		Message:      llm.Message{Role: llm.RoleAssistant, Content: m.reply},
	}, nil
}

func (m *mockLLM) Ping(context.Context) error { return nil }
