package core

import (
	"context"
	"fmt"
	"math"
	"sort"

	"ragserver/internal/store"
)

// TopK bounds the merged context size handed to the model.
const TopK = 4

// NullRetriever returns a retriever that yields no context; the chat
// service then invokes the model without retrieval.
func NullRetriever() Retriever {
	return nullRetriever{}
}

type nullRetriever struct{}

func (nullRetriever) Retrieve(context.Context, string) ([]string, error) {
	return nil, nil
}

// IsNullRetriever reports whether r performs no retrieval at all.
func IsNullRetriever(r Retriever) bool {
	_, ok := r.(nullRetriever)
	return ok
}

// EnsembleRetriever merges similarity-search results from several
// collections with equal weight per collection: member rankings are
// interleaved round-robin, best hit of each collection first, so a large
// collection cannot crowd out a small one by chunk count alone. Consumers
// needing size-proportional weighting should pre-aggregate collections.
type EnsembleRetriever struct {
	embedder Embedder
	members  []*collectionSearcher
	topK     int
}

func NewEnsembleRetriever(embedder Embedder, members []*collectionSearcher) *EnsembleRetriever {
	return &EnsembleRetriever{
		embedder: embedder,
		members:  members,
		topK:     TopK,
	}
}

func (r *EnsembleRetriever) Retrieve(ctx context.Context, query string) ([]string, error) {
	queryVec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	ranked := make([][]string, len(r.members))
	for i, m := range r.members {
		ranked[i] = m.search(queryVec, r.topK)
	}

	// Round-robin across members by rank, de-duplicating identical text.
	seen := make(map[string]bool)
	var merged []string
	for rank := 0; rank < r.topK && len(merged) < r.topK; rank++ {
		for _, hits := range ranked {
			if rank >= len(hits) || seen[hits[rank]] {
				continue
			}
			seen[hits[rank]] = true
			merged = append(merged, hits[rank])
			if len(merged) == r.topK {
				break
			}
		}
	}
	return merged, nil
}

// collectionSearcher scores one collection's chunks against a query vector.
type collectionSearcher struct {
	collectionID string
	chunks       []store.ChunkRecord
}

// newCollectionSearcher returns nil when no chunk carries an embedding.
func newCollectionSearcher(collectionID string, records []store.ChunkRecord) *collectionSearcher {
	embedded := make([]store.ChunkRecord, 0, len(records))
	for _, rec := range records {
		if len(rec.Embedding) > 0 {
			embedded = append(embedded, rec)
		}
	}
	if len(embedded) == 0 {
		return nil
	}
	return &collectionSearcher{collectionID: collectionID, chunks: embedded}
}

type scoredChunk struct {
	content    string
	similarity float32
}

func (c *collectionSearcher) search(queryVec []float32, k int) []string {
	scored := make([]scoredChunk, 0, len(c.chunks))
	for _, rec := range c.chunks {
		scored = append(scored, scoredChunk{
			content:    rec.Content,
			similarity: cosineSimilarity(queryVec, rec.Embedding),
		})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].similarity > scored[j].similarity
	})
	if k > len(scored) {
		k = len(scored)
	}
	results := make([]string, 0, k)
	for _, s := range scored[:k] {
		results = append(results, s.content)
	}
	return results
}

// cosineSimilarity returns 0 for mismatched dimensions or zero vectors, so
// such chunks rank last instead of failing the search.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}
