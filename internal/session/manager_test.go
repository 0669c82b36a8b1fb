package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"companion/internal/config"
	"companion/internal/store"
	"companion/pkg/chattypes"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := &config.Config{
		BaseURL:     "http://localhost:1234/v1",
		Model:       "test-model",
		Temperature: 0.7,
		MaxWindow:   50,
		Style:       "friend",
		SessionsDir: t.TempDir(),
		Autosave:    true,
	}
	return NewManager(cfg, store.New(cfg.SessionsDir))
}

func testResponse(content string) *chattypes.ChatResponse {
	return &chattypes.ChatResponse{
		Message: chattypes.Message{
			Role:    chattypes.RoleAssistant,
			Content: content,
		},
		Usage: chattypes.UsageStats{PromptTokens: 5, CompletionTokens: 7, TotalTokens: 12},
	}
}

func TestManager_StartNew_Defaults(t *testing.T) {
	m := newTestManager(t)

	conv := m.StartNew("", "")
	require.NotNil(t, conv)
	assert.Same(t, conv, m.Current())

	assert.NotEmpty(t, conv.ID)
	assert.True(t, strings.HasPrefix(conv.Title, "Chat "), "default title should be timestamp-derived, got %q", conv.Title)
	assert.Equal(t, DefaultSystemPrompt("friend"), conv.SystemPrompt)
	assert.Empty(t, conv.Turns)
	assert.False(t, conv.CreatedAt.IsZero())
	assert.Equal(t, "friend", conv.Metadata["style"])
	assert.Equal(t, "test-model", conv.Metadata["model"])
	assert.Equal(t, "0.7", conv.Metadata["temperature"])
}

func TestManager_StartNew_ExplicitValues(t *testing.T) {
	m := newTestManager(t)

	conv := m.StartNew("Trip planning", "You are a travel agent.")
	assert.Equal(t, "Trip planning", conv.Title)
	assert.Equal(t, "You are a travel agent.", conv.SystemPrompt)
}

func TestManager_StartNew_ReplacesCurrentWithoutSaving(t *testing.T) {
	m := newTestManager(t)

	first := m.StartNew("First", "")
	second := m.StartNew("Second", "")

	assert.NotEqual(t, first.ID, second.ID)
	assert.Same(t, second, m.Current())

	// The discarded conversation was never written to disk.
	summaries, err := m.ListSummaries()
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestManager_AppendUserMessage_StartsImplicitly(t *testing.T) {
	m := newTestManager(t)
	require.Nil(t, m.Current())

	turn := m.AppendUserMessage("hello there")
	require.NotNil(t, m.Current())
	require.NotNil(t, turn)

	assert.Equal(t, chattypes.RoleUser, turn.UserMessage.Role)
	assert.Equal(t, "hello there", turn.UserMessage.Content)
	assert.False(t, turn.Complete())
	assert.Equal(t, 1, m.Current().TurnCount())
}

func TestManager_AppendAndComplete_TurnLifecycle(t *testing.T) {
	m := newTestManager(t)
	m.StartNew("", "")

	turn := m.AppendUserMessage("what is the capital of France?")
	require.Same(t, turn, m.Current().LastIncompleteTurn())

	err := m.CompleteWithResponse(testResponse("Paris."))
	require.NoError(t, err)

	assert.True(t, turn.Complete())
	assert.Equal(t, "Paris.", turn.AssistantResponse.Message.Content)
	assert.Nil(t, m.Current().LastIncompleteTurn())

	// Only the newest turn may ever be incomplete.
	m.AppendUserMessage("and of Italy?")
	for i, tn := range m.Current().Turns[:len(m.Current().Turns)-1] {
		assert.True(t, tn.Complete(), "turn %d should be complete", i)
	}
}

func TestManager_CompleteWithResponse_Errors(t *testing.T) {
	m := newTestManager(t)

	err := m.CompleteWithResponse(testResponse("orphan"))
	assert.ErrorIs(t, err, ErrNoActiveConversation)

	m.StartNew("", "")
	err = m.CompleteWithResponse(testResponse("orphan"))
	assert.ErrorIs(t, err, ErrNoIncompleteTurn)

	m.AppendUserMessage("hi")
	require.NoError(t, m.CompleteWithResponse(testResponse("hello")))

	// A second completion has nothing to attach to.
	err = m.CompleteWithResponse(testResponse("again"))
	assert.ErrorIs(t, err, ErrNoIncompleteTurn)
}

func TestManager_DiscardIncompleteTurn(t *testing.T) {
	m := newTestManager(t)

	assert.False(t, m.DiscardIncompleteTurn(), "nothing to discard without a conversation")

	m.StartNew("", "")
	assert.False(t, m.DiscardIncompleteTurn(), "nothing to discard without turns")

	m.AppendUserMessage("first")
	require.NoError(t, m.CompleteWithResponse(testResponse("reply")))
	m.AppendUserMessage("interrupted")

	assert.True(t, m.DiscardIncompleteTurn())
	assert.Equal(t, 1, m.Current().TurnCount())
	assert.Nil(t, m.Current().LastIncompleteTurn())

	assert.False(t, m.DiscardIncompleteTurn(), "complete turns are never discarded")
	assert.Equal(t, 1, m.Current().TurnCount())
}

func TestManager_ModelWindow_Bounded(t *testing.T) {
	m := newTestManager(t)
	m.StartNew("", "You are terse.")

	for i := 0; i < 5; i++ {
		m.AppendUserMessage("question")
		require.NoError(t, m.CompleteWithResponse(testResponse("answer")))
	}

	messages := m.ModelWindow(2)

	// System prompt plus two turns of user/assistant pairs.
	require.Len(t, messages, 5)
	assert.Equal(t, chattypes.RoleSystem, messages[0].Role)
	assert.Equal(t, "You are terse.", messages[0].Content)
	assert.Equal(t, chattypes.RoleUser, messages[1].Role)
	assert.Equal(t, chattypes.RoleAssistant, messages[2].Role)
	assert.Equal(t, chattypes.RoleUser, messages[3].Role)
	assert.Equal(t, chattypes.RoleAssistant, messages[4].Role)
}

func TestManager_ModelWindow_IncompleteLastTurn(t *testing.T) {
	m := newTestManager(t)
	m.StartNew("", "You are terse.")

	m.AppendUserMessage("first")
	require.NoError(t, m.CompleteWithResponse(testResponse("reply")))
	m.AppendUserMessage("pending")

	messages := m.ModelWindow(10)

	// The pending turn contributes its user message but no assistant message.
	require.Len(t, messages, 4)
	assert.Equal(t, chattypes.RoleUser, messages[3].Role)
	assert.Equal(t, "pending", messages[3].Content)
}

func TestManager_ModelWindow_Unbounded(t *testing.T) {
	m := newTestManager(t)
	m.StartNew("", "prompt")

	for i := 0; i < 7; i++ {
		m.AppendUserMessage("q")
		require.NoError(t, m.CompleteWithResponse(testResponse("a")))
	}

	assert.Len(t, m.ModelWindow(0), 15)
	assert.Len(t, m.ModelWindow(-1), 15)
}

func TestManager_ModelWindow_NoSystemPrompt(t *testing.T) {
	m := newTestManager(t)
	conv := m.StartNew("", "ignored")
	conv.SystemPrompt = ""

	m.AppendUserMessage("hi")

	messages := m.ModelWindow(10)
	require.Len(t, messages, 1)
	assert.Equal(t, chattypes.RoleUser, messages[0].Role)
}

func TestManager_ModelWindow_NoConversation(t *testing.T) {
	m := newTestManager(t)
	assert.Nil(t, m.ModelWindow(10))
}

func TestManager_SaveAndLoad(t *testing.T) {
	m := newTestManager(t)
	m.StartNew("Persisted", "")
	m.AppendUserMessage("remember this")
	require.NoError(t, m.CompleteWithResponse(testResponse("saved")))
	id := m.Current().ID

	path, err := m.Save()
	require.NoError(t, err)
	assert.FileExists(t, path)

	m.Clear()
	require.Nil(t, m.Current())

	conv, err := m.Load(id)
	require.NoError(t, err)
	assert.Same(t, conv, m.Current())
	assert.Equal(t, "Persisted", conv.Title)
	assert.Equal(t, 1, conv.TurnCount())
}

func TestManager_Save_NoActiveConversation(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Save()
	assert.ErrorIs(t, err, ErrNoActiveConversation)
}

func TestManager_Load_NotFound(t *testing.T) {
	m := newTestManager(t)
	m.StartNew("Keep me", "")

	_, err := m.Load("no-such-id")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// A failed load leaves the current conversation untouched.
	require.NotNil(t, m.Current())
	assert.Equal(t, "Keep me", m.Current().Title)
}

func TestManager_Autosave(t *testing.T) {
	m := newTestManager(t)

	// No conversation: autosave is a no-op.
	m.Autosave()

	m.StartNew("Auto", "")
	m.AppendUserMessage("hi")
	m.Autosave()

	summaries, err := m.ListSummaries()
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "Auto", summaries[0].Title)
}

func TestManager_Autosave_Disabled(t *testing.T) {
	m := newTestManager(t)
	m.cfg.Autosave = false

	m.StartNew("No autosave", "")
	m.Autosave()

	summaries, err := m.ListSummaries()
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestManager_Autosave_SwallowsErrors(t *testing.T) {
	m := newTestManager(t)

	// Point the sessions directory at a regular file so saving fails.
	blocked := filepath.Join(t.TempDir(), "blocked")
	require.NoError(t, os.WriteFile(blocked, []byte("x"), 0644))
	m.store = store.New(blocked)

	m.StartNew("Doomed", "")
	m.AppendUserMessage("hi")

	// Must not panic or surface the failure.
	m.Autosave()
}

func TestManager_Export_SavesCurrentFirst(t *testing.T) {
	m := newTestManager(t)
	m.StartNew("Exported", "")
	m.AppendUserMessage("latest state")
	require.NoError(t, m.CompleteWithResponse(testResponse("included")))
	id := m.Current().ID

	dest := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, m.Export(id, dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Contains(t, string(data), "latest state")
	assert.Contains(t, string(data), "included")
}

func TestManager_Export_NotFound(t *testing.T) {
	m := newTestManager(t)

	err := m.Export("missing", filepath.Join(t.TempDir(), "out.json"))
	assert.ErrorIs(t, err, store.ErrNotFound)
}
