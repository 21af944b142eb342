package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"ragserver/internal/llm"
	"ragserver/internal/store"
)

// scriptedModel replies with a fixed answer and records the prompt it saw.
type scriptedModel struct {
	answer   string
	err      error
	received []llms.MessageContent
}

func (m *scriptedModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.received = messages
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: m.answer}},
	}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := m.GenerateContent(ctx, []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)}, options...)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

type scriptedSelector struct {
	model *scriptedModel
	cfg   llm.ModelConfig
}

func (s *scriptedSelector) Select(cfg llm.ModelConfig) (llms.Model, error) {
	s.cfg = cfg
	return s.model, nil
}

// staticRetriever returns the same chunks for every query.
type staticRetriever struct {
	chunks []string
}

func (r *staticRetriever) Retrieve(context.Context, string) ([]string, error) {
	return r.chunks, nil
}

func newTestChatService(t *testing.T, model *scriptedModel) (*ChatService, *store.SQLiteStore, *scriptedSelector) {
	t.Helper()
	dbStore, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { dbStore.Close() })

	selector := &scriptedSelector{model: model}
	return NewChatService(dbStore, selector), dbStore, selector
}

func TestAskPersistsBothTurns(t *testing.T) {
	model := &scriptedModel{answer: "the capital is Paris"}
	service, dbStore, selector := newTestChatService(t, model)

	retriever := &staticRetriever{chunks: []string{"France's capital is Paris."}}
	cfg := llm.ModelConfig{Model: "llama3", Temperature: 0.2}

	answer, sources, err := service.Ask(context.Background(), "alice", "Default Chat",
		"What is the capital of France?", retriever, cfg)
	require.NoError(t, err)
	assert.Equal(t, "the capital is Paris", answer)
	assert.Equal(t, []string{"France's capital is Paris."}, sources)
	assert.Equal(t, cfg, selector.cfg)

	messages, err := dbStore.GetLastNMessages("alice", "Default Chat", 10)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.True(t, messages[0].IsUser)
	assert.Equal(t, "What is the capital of France?", messages[0].Content)
	assert.False(t, messages[1].IsUser)
	assert.Equal(t, "the capital is Paris", messages[1].Content)
}

func TestAskIncludesContextInPrompt(t *testing.T) {
	model := &scriptedModel{answer: "ok"}
	service, _, _ := newTestChatService(t, model)

	retriever := &staticRetriever{chunks: []string{"alpha chunk", "beta chunk"}}
	_, _, err := service.Ask(context.Background(), "alice", "Default Chat",
		"a question", retriever, llm.ModelConfig{})
	require.NoError(t, err)

	require.NotEmpty(t, model.received)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.received[0].Role)

	last := model.received[len(model.received)-1]
	assert.Equal(t, llms.ChatMessageTypeHuman, last.Role)
	text, ok := last.Parts[0].(llms.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "alpha chunk")
	assert.Contains(t, text.Text, "beta chunk")
	assert.Contains(t, text.Text, "a question")
}

func TestAskWithoutRetrieverSendsBareQuestion(t *testing.T) {
	model := &scriptedModel{answer: "ok"}
	service, _, _ := newTestChatService(t, model)

	_, sources, err := service.Ask(context.Background(), "alice", "Default Chat",
		"just a question", nil, llm.ModelConfig{})
	require.NoError(t, err)
	assert.Empty(t, sources)

	last := model.received[len(model.received)-1]
	text, ok := last.Parts[0].(llms.TextContent)
	require.True(t, ok)
	assert.Equal(t, "just a question", text.Text)
}

func TestAskQuestionNotDuplicatedInHistory(t *testing.T) {
	model := &scriptedModel{answer: "first answer"}
	service, _, _ := newTestChatService(t, model)

	_, _, err := service.Ask(context.Background(), "alice", "Default Chat",
		"first question", nil, llm.ModelConfig{})
	require.NoError(t, err)

	model.answer = "second answer"
	_, _, err = service.Ask(context.Background(), "alice", "Default Chat",
		"second question", nil, llm.ModelConfig{})
	require.NoError(t, err)

	// system + first question + first answer + current question
	require.Len(t, model.received, 4)
	text := model.received[3].Parts[0].(llms.TextContent)
	assert.Equal(t, "second question", text.Text)
	first := model.received[1].Parts[0].(llms.TextContent)
	assert.Equal(t, "first question", first.Text)
}

func TestAskGenerationFailureKeepsQuestion(t *testing.T) {
	model := &scriptedModel{err: errors.New("backend down")}
	service, dbStore, _ := newTestChatService(t, model)

	_, _, err := service.Ask(context.Background(), "alice", "Default Chat",
		"a doomed question", nil, llm.ModelConfig{})
	require.Error(t, err)

	messages, dbErr := dbStore.GetLastNMessages("alice", "Default Chat", 10)
	require.NoError(t, dbErr)
	require.Len(t, messages, 1)
	assert.True(t, messages[0].IsUser)
	assert.Equal(t, "a doomed question", messages[0].Content)
}

func TestCompleteDoesNotTouchTranscript(t *testing.T) {
	model := &scriptedModel{answer: "generated report"}
	service, _, _ := newTestChatService(t, model)

	answer, err := service.Complete(context.Background(), "generate things",
		&staticRetriever{chunks: []string{"source"}}, llm.ModelConfig{})
	require.NoError(t, err)
	assert.Equal(t, "generated report", answer)

	history, err := service.History("alice")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestHistoryGroupsBySession(t *testing.T) {
	model := &scriptedModel{answer: "ok"}
	service, dbStore, _ := newTestChatService(t, model)

	require.NoError(t, dbStore.AppendMessage(&store.Message{
		Tenant: "alice", SessionName: "Default Chat", Content: "hello", IsUser: true,
	}))
	require.NoError(t, dbStore.AppendMessage(&store.Message{
		Tenant: "alice", SessionName: "Second Chat", Content: "hi", IsUser: true,
	}))

	history, err := service.History("alice")
	require.NoError(t, err)
	assert.Len(t, history, 2)
	assert.Len(t, history["Default Chat"], 1)
	assert.Len(t, history["Second Chat"], 1)
}

func TestResetAllRecreatesDefaultSession(t *testing.T) {
	model := &scriptedModel{answer: "ok"}
	service, dbStore, _ := newTestChatService(t, model)

	require.NoError(t, dbStore.AppendMessage(&store.Message{
		Tenant: "alice", SessionName: "Anything", Content: "hello", IsUser: true,
	}))

	require.NoError(t, service.ResetAll("alice"))

	history, err := service.History("alice")
	require.NoError(t, err)
	require.Len(t, history, 1)
	messages := history[DefaultSessionName]
	require.Len(t, messages, 1)
	assert.False(t, messages[0].IsUser)
}

func TestRenameSessionValidation(t *testing.T) {
	model := &scriptedModel{answer: "ok"}
	service, _, _ := newTestChatService(t, model)

	assert.Error(t, service.RenameSession("alice", "", "New"))
	assert.Error(t, service.RenameSession("alice", "Old", ""))
	assert.ErrorIs(t, service.RenameSession("alice", "Missing", "New"), store.ErrNotFound)
}
