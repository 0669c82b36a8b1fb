package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"companion/pkg/chattypes"
)

func newTestConversation(id string, turns int) *chattypes.Conversation {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	conv := &chattypes.Conversation{
		ID:           id,
		Title:        "Test Conversation " + id,
		CreatedAt:    now,
		UpdatedAt:    now,
		Turns:        make([]*chattypes.Turn, 0, turns),
		SystemPrompt: "You are a helpful assistant.",
		Metadata:     map[string]string{"style": "friend"},
	}
	for i := 0; i < turns; i++ {
		conv.Turns = append(conv.Turns, &chattypes.Turn{
			ID:        fmt.Sprintf("%s-turn-%d", id, i),
			Timestamp: now.Add(time.Duration(i) * time.Minute),
			UserMessage: chattypes.Message{
				Role:    chattypes.RoleUser,
				Content: fmt.Sprintf("user message %d", i),
			},
			AssistantResponse: &chattypes.ChatResponse{
				Message: chattypes.Message{
					Role:    chattypes.RoleAssistant,
					Content: fmt.Sprintf("assistant reply %d", i),
				},
				Usage: chattypes.UsageStats{
					PromptTokens:     10,
					CompletionTokens: 20,
					TotalTokens:      30,
				},
				Stats: chattypes.PerformanceStats{
					TokensPerSecond: 42.5,
					StopReason:      "eosFound",
				},
				Model:        "test-model",
				FinishReason: "stop",
			},
		})
	}
	return conv
}

func TestStore_SaveAndLoad_RoundTrip(t *testing.T) {
	st := New(t.TempDir())
	conv := newTestConversation("conv-1", 3)

	// Leave the last turn incomplete, as it is mid-generation.
	conv.Turns[2].AssistantResponse = nil

	path, err := st.Save(conv)
	require.NoError(t, err)
	assert.Equal(t, st.Path("conv-1"), path)

	loaded, err := st.Load("conv-1")
	require.NoError(t, err)

	assert.Equal(t, conv.ID, loaded.ID)
	assert.Equal(t, conv.Title, loaded.Title)
	assert.Equal(t, conv.SystemPrompt, loaded.SystemPrompt)
	assert.Equal(t, conv.Metadata, loaded.Metadata)
	assert.True(t, conv.CreatedAt.Equal(loaded.CreatedAt), "created_at should survive the round trip")
	assert.True(t, conv.UpdatedAt.Equal(loaded.UpdatedAt), "updated_at should survive the round trip")

	require.Len(t, loaded.Turns, 3)
	for i, turn := range loaded.Turns {
		assert.Equal(t, conv.Turns[i].ID, turn.ID)
		assert.True(t, conv.Turns[i].Timestamp.Equal(turn.Timestamp))
		assert.Equal(t, conv.Turns[i].UserMessage, turn.UserMessage)
	}
	assert.Equal(t, conv.Turns[0].AssistantResponse, loaded.Turns[0].AssistantResponse)
	assert.Nil(t, loaded.Turns[2].AssistantResponse, "incomplete turn must stay incomplete")
}

func TestStore_SaveAndLoad_LargeConversation(t *testing.T) {
	st := New(t.TempDir())
	conv := newTestConversation("conv-large", 100)

	_, err := st.Save(conv)
	require.NoError(t, err)

	loaded, err := st.Load("conv-large")
	require.NoError(t, err)
	assert.Equal(t, 100, loaded.TurnCount())
	assert.Equal(t, "assistant reply 99", loaded.Turns[99].AssistantResponse.Message.Content)
}

func TestStore_Save_OverwritesExisting(t *testing.T) {
	st := New(t.TempDir())
	conv := newTestConversation("conv-2", 1)

	_, err := st.Save(conv)
	require.NoError(t, err)

	conv.Title = "Renamed"
	_, err = st.Save(conv)
	require.NoError(t, err)

	loaded, err := st.Load("conv-2")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", loaded.Title)
}

func TestStore_Save_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)

	_, err := st.Save(newTestConversation("conv-3", 2))
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.False(t, strings.HasSuffix(entry.Name(), ".tmp"), "temp file left behind: %s", entry.Name())
	}
}

func TestStore_Load_NotFound(t *testing.T) {
	st := New(t.TempDir())

	_, err := st.Load("does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Load_CorruptRecord(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "invalid json", content: "{not json"},
		{name: "missing required fields", content: `{"id": "x"}`},
		{name: "missing timestamps", content: `{"id": "x", "title": "y"}`},
		{name: "malformed turn", content: `{"id": "x", "title": "y", "created_at": "2026-03-14T09:26:53Z", "updated_at": "2026-03-14T09:26:53Z", "turns": [{"id": ""}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			st := New(dir)
			require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte(tt.content), 0644))

			_, err := st.Load("bad")
			assert.ErrorIs(t, err, ErrCorruptRecord)
		})
	}
}

func TestStore_List_OrderedByUpdatedAt(t *testing.T) {
	st := New(t.TempDir())
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"first", "second", "third"} {
		conv := newTestConversation(id, 1)
		conv.UpdatedAt = base.Add(time.Duration(i) * time.Hour)
		_, err := st.Save(conv)
		require.NoError(t, err)
	}

	summaries, err := st.List()
	require.NoError(t, err)
	require.Len(t, summaries, 3)

	// Most recently updated first.
	assert.Equal(t, "third", summaries[0].ID)
	assert.Equal(t, "second", summaries[1].ID)
	assert.Equal(t, "first", summaries[2].ID)
	assert.Equal(t, 1, summaries[0].TurnCount)
}

func TestStore_List_SkipsUnparseableFiles(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)

	_, err := st.Save(newTestConversation("good", 1))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "garbage.json"), []byte("not json at all"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	summaries, err := st.List()
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "good", summaries[0].ID)
}

func TestStore_List_MissingDirectory(t *testing.T) {
	st := New(filepath.Join(t.TempDir(), "never-created"))

	summaries, err := st.List()
	assert.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestStore_Export(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)

	_, err := st.Save(newTestConversation("conv-4", 2))
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "export.json")
	require.NoError(t, st.Export("conv-4", dest))

	original, err := os.ReadFile(st.Path("conv-4"))
	require.NoError(t, err)
	exported, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, original, exported, "export must copy the stored document verbatim")
}

func TestStore_Export_NotFound(t *testing.T) {
	st := New(t.TempDir())

	err := st.Export("missing", filepath.Join(t.TempDir(), "out.json"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDecodeConversation_ValidDocument(t *testing.T) {
	data := []byte(`{
		"id": "abc",
		"title": "Morning chat",
		"created_at": "2026-03-14T09:26:53Z",
		"updated_at": "2026-03-14T09:30:00Z",
		"turns": []
	}`)

	conv, err := decodeConversation(data)
	require.NoError(t, err)
	assert.Equal(t, "abc", conv.ID)
	assert.Equal(t, "Morning chat", conv.Title)
	assert.True(t, conv.UpdatedAt.After(conv.CreatedAt))
}
