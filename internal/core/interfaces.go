package core

import (
	"context"

	"github.com/tmc/langchaingo/llms"

	"ragserver/internal/llm"
)

// Embedder is the embedding provider collaborator. Satisfied by the
// langchaingo embedder that internal/llm constructs, and by test doubles.
// Ingestion embeds chunk by chunk to keep its at-least-once contract, so a
// single-text method is all consumers need.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ModelSelector resolves a per-request model configuration to a concrete
// chat backend.
type ModelSelector interface {
	Select(cfg llm.ModelConfig) (llms.Model, error)
}

// Retriever produces ranked context chunks for a question. A retriever over
// an empty collection set returns no context rather than failing.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]string, error)
}
