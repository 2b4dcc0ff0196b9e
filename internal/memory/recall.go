// Package memory stores and recalls what the assistant learned about each
// client.
//
// Recollections live in per-client vector collections and are recalled by
// semantic similarity. Conversations are kept verbatim, minus system
// messages, in the document store.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// KindMemory is the collection kind for recollections of past exchanges.
const KindMemory = "memory"

// CollectionName returns the vector collection that holds records of kind
// for one client. Collections never mix clients.
func CollectionName(clientID, kind string) string {
	return kind + "_collection_" + clientID
}

// Recollection is one recalled text and its distance from the query.
type Recollection struct {
	ID       string  `json:"id,omitempty"`
	Text     string  `json:"text"`
	Distance float32 `json:"distance"`
}

// RankAscendingDistance orders rs so the closest match comes first. Ties
// keep their original order.
func RankAscendingDistance(rs []Recollection) {
	sort.SliceStable(rs, func(i, j int) bool {
		return rs[i].Distance < rs[j].Distance
	})
}

// RenderContext formats rs as a single context note, most relevant first.
// It returns "" for an empty slice.
func RenderContext(rs []Recollection) string {
	if len(rs) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("###CONTEXT: ")
	for i, r := range rs {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(r.Text)
	}
	return sb.String()
}

// Recaller queries a client's collections.
type Recaller struct {
	store  VectorStore
	logger *slog.Logger
}

// NewRecaller returns a Recaller over store.
func NewRecaller(store VectorStore, logger *slog.Logger) *Recaller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recaller{store: store, logger: logger.With("component", "recall")}
}

// Recall returns up to limit recollections of kind for clientID, ranked
// by ascending distance.
func (r *Recaller) Recall(ctx context.Context, clientID, kind, query string, limit int) ([]Recollection, error) {
	if clientID == "" {
		return nil, fmt.Errorf("recall: client id is required")
	}
	if limit <= 0 {
		return []Recollection{}, nil
	}
	rs, err := r.store.Query(ctx, CollectionName(clientID, kind), query, limit)
	if err != nil {
		return nil, fmt.Errorf("recall %s for %s: %w", kind, clientID, err)
	}
	RankAscendingDistance(rs)
	r.logger.Debug("recall complete", "client_id", clientID, "kind", kind, "results", len(rs))
	return rs, nil
}
