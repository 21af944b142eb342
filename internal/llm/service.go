// Package llm constructs the language-model and embedding collaborators.
// Two chat backends exist: a local Ollama server and a hosted
// OpenAI-compatible API; which one serves a request is purely a
// configuration choice, keyed on the presence of an API key.
package llm

import (
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// ModelConfig selects and tunes the backend for a single request.
type ModelConfig struct {
	Model       string  `json:"model_name"`
	Temperature float64 `json:"temperature"`
	// APIKey, when set, routes the request to the hosted API backend.
	APIKey string `json:"api_key,omitempty"`
}

type Service struct {
	ollamaURL    string
	hostedURL    string
	defaultModel string
	embedder     embeddings.Embedder
	logger       *slog.Logger
}

// NewService wires the embedding client against the Ollama server's
// OpenAI-compatible endpoint. The token is a placeholder; local servers do
// not check it.
func NewService(ollamaURL, hostedURL, embeddingModel, defaultModel string) (*Service, error) {
	client, err := openai.New(
		openai.WithBaseURL(ollamaURL+"/v1"),
		openai.WithToken("none"),
		openai.WithEmbeddingModel(embeddingModel),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	return &Service{
		ollamaURL:    ollamaURL,
		hostedURL:    hostedURL,
		defaultModel: defaultModel,
		embedder:     embedder,
		logger:       slog.Default().With("component", "llm"),
	}, nil
}

// Embedder returns the embedding provider shared by ingestion and retrieval.
func (s *Service) Embedder() embeddings.Embedder {
	return s.embedder
}

// Select builds the chat model for one request.
func (s *Service) Select(cfg ModelConfig) (llms.Model, error) {
	model := cfg.Model
	if model == "" {
		model = s.defaultModel
	}

	if cfg.APIKey != "" {
		s.logger.Debug("selecting hosted backend", "model", model)
		m, err := openai.New(
			openai.WithBaseURL(s.hostedURL),
			openai.WithToken(cfg.APIKey),
			openai.WithModel(model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create hosted chat model: %w", err)
		}
		return m, nil
	}

	s.logger.Debug("selecting ollama backend", "model", model)
	m, err := ollama.New(
		ollama.WithServerURL(s.ollamaURL),
		ollama.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama chat model: %w", err)
	}
	return m, nil
}
