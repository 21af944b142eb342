package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"ragserver/internal/llm"
	"ragserver/internal/store"
)

const (
	// historyWindow bounds the rolling dialogue history handed to the
	// model; the persisted transcript is unbounded.
	historyWindow = 10

	// DefaultSessionName is the session recreated by ResetAll.
	DefaultSessionName = "Default Chat"

	welcomeMessage = "Welcome to your new chat!"

	systemInstruction = "You are a helpful assistant. Answer questions using the provided " +
		"document context when it is present. If the context does not contain the answer, " +
		"say that you don't have the information rather than making something up. " +
		"Keep answers concise and directly related to the question."
)

// ChatService owns per-(tenant, session) transcripts and drives
// conversation turns through the selected language model.
type ChatService struct {
	dbStore *store.SQLiteStore
	models  ModelSelector
	logger  *slog.Logger
}

func NewChatService(db *store.SQLiteStore, models ModelSelector) *ChatService {
	return &ChatService{
		dbStore: db,
		models:  models,
		logger:  slog.Default().With("component", "chat"),
	}
}

// Ask runs one conversation turn. The user's question is persisted before
// the model is invoked, so a generation failure can only lose the reply,
// never the question. When the retriever yields context chunks they are
// included in the prompt and returned as sources; otherwise the model is
// invoked on the dialogue history alone.
func (s *ChatService) Ask(ctx context.Context, tenant, sessionName, question string, retriever Retriever, cfg llm.ModelConfig) (string, []string, error) {
	history, err := s.dbStore.GetLastNMessages(tenant, sessionName, historyWindow)
	if err != nil {
		s.logger.Warn("failed to load dialogue history, proceeding without it",
			"tenant", tenant, "session", sessionName, "err", err)
		history = nil
	}

	userMsg := store.Message{
		Tenant:      tenant,
		SessionName: sessionName,
		Content:     question,
		IsUser:      true,
	}
	if err := s.dbStore.AppendMessage(&userMsg); err != nil {
		return "", nil, fmt.Errorf("failed to persist question: %w", err)
	}

	var sources []string
	if retriever != nil {
		sources, err = retriever.Retrieve(ctx, question)
		if err != nil {
			return "", nil, fmt.Errorf("failed to retrieve context: %w", err)
		}
	}

	messages := buildPrompt(history, question, sources)

	model, err := s.models.Select(cfg)
	if err != nil {
		return "", nil, fmt.Errorf("failed to select model backend: %w", err)
	}

	resp, err := model.GenerateContent(ctx, messages, llms.WithTemperature(cfg.Temperature))
	if err != nil {
		return "", nil, fmt.Errorf("model generation failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return "", nil, fmt.Errorf("model returned an empty response")
	}
	answer := resp.Choices[0].Content

	assistantMsg := store.Message{
		Tenant:      tenant,
		SessionName: sessionName,
		Content:     answer,
		IsUser:      false,
	}
	if err := s.dbStore.AppendMessage(&assistantMsg); err != nil {
		return "", nil, fmt.Errorf("failed to persist answer: %w", err)
	}

	return answer, sources, nil
}

func buildPrompt(history []store.Message, question string, sources []string) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(history)+2)
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, systemInstruction))

	for _, msg := range history {
		role := llms.ChatMessageTypeAI
		if msg.IsUser {
			role = llms.ChatMessageTypeHuman
		}
		messages = append(messages, llms.TextParts(role, msg.Content))
	}

	var final string
	if len(sources) > 0 {
		final = fmt.Sprintf(
			"Use the following context to answer.\n\n--- CONTEXT START ---\n%s\n--- CONTEXT END ---\n\nQuestion: %s",
			strings.Join(sources, "\n\n"), question)
	} else {
		final = question
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, final))
	return messages
}

// Complete runs a single retrieval-augmented model call without touching
// any transcript. Used by the structured-export endpoints, whose turns are
// not part of a conversation.
func (s *ChatService) Complete(ctx context.Context, question string, retriever Retriever, cfg llm.ModelConfig) (string, error) {
	var sources []string
	var err error
	if retriever != nil {
		sources, err = retriever.Retrieve(ctx, question)
		if err != nil {
			return "", fmt.Errorf("failed to retrieve context: %w", err)
		}
	}

	model, err := s.models.Select(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to select model backend: %w", err)
	}
	resp, err := model.GenerateContent(ctx, buildPrompt(nil, question, sources), llms.WithTemperature(cfg.Temperature))
	if err != nil {
		return "", fmt.Errorf("model generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model returned an empty response")
	}
	return resp.Choices[0].Content, nil
}

// History returns the tenant's transcripts grouped by session name.
func (s *ChatService) History(tenant string) (map[string][]store.Message, error) {
	messages, err := s.dbStore.GetMessagesByTenant(tenant)
	if err != nil {
		return nil, err
	}
	grouped := make(map[string][]store.Message)
	for _, msg := range messages {
		grouped[msg.SessionName] = append(grouped[msg.SessionName], msg)
	}
	return grouped, nil
}

// RenameSession moves a transcript to a new name; store.ErrNotFound if no
// messages exist under the old name.
func (s *ChatService) RenameSession(tenant, oldName, newName string) error {
	if oldName == "" || newName == "" {
		return fmt.Errorf("old and new session names are required")
	}
	return s.dbStore.RenameSession(tenant, oldName, newName)
}

// DeleteSession deletes a session's transcript. Deleting the tenant's only
// remaining session returns store.ErrLastSession and changes nothing.
func (s *ChatService) DeleteSession(tenant, sessionName string) error {
	return s.dbStore.DeleteSession(tenant, sessionName)
}

// ResetAll wipes every session of the tenant and recreates the default one
// with a single assistant welcome message.
func (s *ChatService) ResetAll(tenant string) error {
	return s.dbStore.ResetSessions(tenant, DefaultSessionName, welcomeMessage)
}
