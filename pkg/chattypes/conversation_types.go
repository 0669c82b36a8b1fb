// Package chattypes defines the conversation and session data model for Companion.
// This file contains the core types for conversation history, turn sequencing,
// and the on-disk session record format.
package chattypes

import "time"

// Message roles understood by the model endpoint.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single role-tagged message. Messages are immutable once created.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Turn is one user message plus an optional assistant response.
// A turn is incomplete until its response is set; only the last turn of a
// conversation may ever be incomplete.
type Turn struct {
	ID                string            `json:"id"`
	Timestamp         time.Time         `json:"timestamp"`
	UserMessage       Message           `json:"user_message"`
	AssistantResponse *ChatResponse     `json:"assistant_response,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// Complete reports whether the turn has an assistant response attached.
func (t *Turn) Complete() bool {
	return t.AssistantResponse != nil
}

// Conversation is an ordered, append-only sequence of turns plus metadata.
// It is serialized wholesale to a single JSON document per conversation.
type Conversation struct {
	ID           string            `json:"id"`            // Unique conversation identifier
	Title        string            `json:"title"`         // Human-readable title
	CreatedAt    time.Time         `json:"created_at"`    // Creation timestamp
	UpdatedAt    time.Time         `json:"updated_at"`    // Last modification timestamp
	Turns        []*Turn           `json:"turns"`         // Ordered conversation history
	SystemPrompt string            `json:"system_prompt,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// LastIncompleteTurn returns the trailing turn that has no assistant response,
// or nil when the conversation is empty or fully completed.
func (c *Conversation) LastIncompleteTurn() *Turn {
	if len(c.Turns) == 0 {
		return nil
	}
	last := c.Turns[len(c.Turns)-1]
	if last.Complete() {
		return nil
	}
	return last
}

// TurnCount returns the number of turns in the conversation.
func (c *Conversation) TurnCount() int {
	return len(c.Turns)
}

// ConversationSummary is the listing view of a persisted conversation.
type ConversationSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	TurnCount int       `json:"turn_count"`
}
