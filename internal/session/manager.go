// Package session implements the conversation manager: it owns the current
// in-memory conversation, sequences turns, builds the bounded message window
// sent to the model, and drives persistence through the session store.
package session

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"companion/internal/config"
	"companion/internal/logger"
	"companion/internal/store"
	"companion/pkg/chattypes"
)

// Sentinel errors for precondition violations, consumed with errors.Is.
var (
	// ErrNoActiveConversation means an operation requiring a current
	// conversation was called while none is active.
	ErrNoActiveConversation = errors.New("no active conversation")

	// ErrNoIncompleteTurn means there is no trailing turn awaiting a response.
	ErrNoIncompleteTurn = errors.New("no incomplete turn to complete")
)

// Manager owns the single current conversation. It is an explicit handle
// passed by the caller; there is no ambient global state. All mutation goes
// through it, and the only shared mutable state is the current-conversation
// slot.
type Manager struct {
	cfg     *config.Config
	store   *store.Store
	current *chattypes.Conversation
}

// NewManager creates a conversation manager backed by the given store.
func NewManager(cfg *config.Config, st *store.Store) *Manager {
	return &Manager{
		cfg:   cfg,
		store: st,
	}
}

// Current returns the active conversation, or nil when none is active.
func (m *Manager) Current() *chattypes.Conversation {
	return m.current
}

// Clear discards the active conversation without saving.
func (m *Manager) Clear() {
	m.current = nil
}

// StartNew creates a new conversation and makes it current, replacing any
// previous conversation without an implicit save. An empty title defaults to
// one derived from the timestamp; an empty systemPrompt defaults to the
// configured personality style's prompt.
func (m *Manager) StartNew(title, systemPrompt string) *chattypes.Conversation {
	now := time.Now().UTC()

	if title == "" {
		title = "Chat " + now.Format("2006-01-02 15:04")
	}
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt(m.cfg.Style)
	}

	conv := &chattypes.Conversation{
		ID:           uuid.NewString(),
		Title:        title,
		CreatedAt:    now,
		UpdatedAt:    now,
		Turns:        make([]*chattypes.Turn, 0),
		SystemPrompt: systemPrompt,
		Metadata: map[string]string{
			"style":       m.cfg.Style,
			"model":       m.cfg.Model,
			"temperature": strconv.FormatFloat(m.cfg.Temperature, 'g', -1, 64),
		},
	}
	m.current = conv

	logger.Info("Started new conversation", "conversation_id", conv.ID, "title", title, "style", m.cfg.Style)
	return conv
}

// AppendUserMessage appends a new incomplete turn wrapping text as a user
// message. A conversation is started implicitly when none is active.
func (m *Manager) AppendUserMessage(text string) *chattypes.Turn {
	if m.current == nil {
		m.StartNew("", "")
	}

	turn := &chattypes.Turn{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		UserMessage: chattypes.Message{
			Role:    chattypes.RoleUser,
			Content: text,
		},
	}
	m.current.Turns = append(m.current.Turns, turn)
	m.current.UpdatedAt = time.Now().UTC()

	logger.Debug("Added user message",
		"conversation_id", m.current.ID,
		"turn_id", turn.ID,
		"message_length", len(text))

	return turn
}

// CompleteWithResponse attaches resp to the last incomplete turn. It fails
// when no conversation is active or when the last turn already has a response
// (or there are no turns at all). The manager only ever completes the most
// recent incomplete turn, so earlier turns can never be completed out of
// order.
func (m *Manager) CompleteWithResponse(resp *chattypes.ChatResponse) error {
	if m.current == nil {
		return ErrNoActiveConversation
	}

	turn := m.current.LastIncompleteTurn()
	if turn == nil {
		return ErrNoIncompleteTurn
	}

	turn.AssistantResponse = resp
	m.current.UpdatedAt = time.Now().UTC()

	logger.Debug("Added assistant response",
		"conversation_id", m.current.ID,
		"turn_id", turn.ID,
		"response_length", len(resp.Message.Content),
		"tokens_used", resp.Usage.TotalTokens)

	return nil
}

// DiscardIncompleteTurn removes the trailing incomplete turn, returning the
// conversation to its state before the last AppendUserMessage. It reports
// whether a turn was discarded. Used when a model call is interrupted or
// fails, so an in-flight turn is never left half-completed.
func (m *Manager) DiscardIncompleteTurn() bool {
	if m.current == nil {
		return false
	}
	turn := m.current.LastIncompleteTurn()
	if turn == nil {
		return false
	}

	m.current.Turns = m.current.Turns[:len(m.current.Turns)-1]
	m.current.UpdatedAt = time.Now().UTC()

	logger.Debug("Discarded incomplete turn", "conversation_id", m.current.ID, "turn_id", turn.ID)
	return true
}

// ModelWindow builds the message list for the model: the system prompt first
// when present, then for each of the last maxTurns turns the user message
// followed by the assistant message (assistant only when the turn is
// complete). maxTurns <= 0 means unbounded. Turns beyond the window are
// deliberately dropped from context; older history stays on disk but is not
// resent to the model.
func (m *Manager) ModelWindow(maxTurns int) []chattypes.Message {
	if m.current == nil {
		return nil
	}

	var messages []chattypes.Message
	if m.current.SystemPrompt != "" {
		messages = append(messages, chattypes.Message{
			Role:    chattypes.RoleSystem,
			Content: m.current.SystemPrompt,
		})
	}

	turns := m.current.Turns
	if maxTurns > 0 && len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}

	for _, turn := range turns {
		messages = append(messages, turn.UserMessage)
		if turn.Complete() {
			messages = append(messages, turn.AssistantResponse.Message)
		}
	}

	return messages
}

// Window builds the model window using the configured session memory limit.
func (m *Manager) Window() []chattypes.Message {
	return m.ModelWindow(m.cfg.MaxWindow)
}

// Save persists the active conversation and returns its document path.
func (m *Manager) Save() (string, error) {
	if m.current == nil {
		return "", ErrNoActiveConversation
	}
	return m.store.Save(m.current)
}

// Load replaces the active conversation with the persisted one for id. Any
// unsaved current conversation is discarded; there is no merge.
func (m *Manager) Load(id string) (*chattypes.Conversation, error) {
	conv, err := m.store.Load(id)
	if err != nil {
		return nil, err
	}

	m.current = conv
	logger.Info("Conversation loaded", "conversation_id", conv.ID, "turns", conv.TurnCount())
	return conv, nil
}

// ListSummaries enumerates all persisted conversations, most recently
// updated first.
func (m *Manager) ListSummaries() ([]chattypes.ConversationSummary, error) {
	return m.store.List()
}

// Autosave persists the active conversation when autosaving is enabled.
// Failures are downgraded to a logged warning; autosave must never interrupt
// the chat loop.
func (m *Manager) Autosave() {
	if !m.cfg.Autosave || m.current == nil {
		return
	}
	if _, err := m.store.Save(m.current); err != nil {
		logger.Warn("Autosave failed", "conversation_id", m.current.ID, "error", err)
	}
}

// Export writes the persisted document for id verbatim to destPath. When the
// active conversation is the one being exported it is saved first so the
// export reflects its latest state.
func (m *Manager) Export(id, destPath string) error {
	if m.current != nil && m.current.ID == id {
		if _, err := m.store.Save(m.current); err != nil {
			return fmt.Errorf("failed to save conversation before export: %w", err)
		}
	}
	return m.store.Export(id, destPath)
}
