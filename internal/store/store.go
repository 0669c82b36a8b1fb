// Package store implements the session store: one JSON document per
// conversation, addressed by conversation id, under a sessions directory.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"companion/internal/logger"
	"companion/pkg/chattypes"
)

// Sentinel errors for store operations, consumed with errors.Is.
var (
	// ErrNotFound means no record exists for the requested conversation id.
	ErrNotFound = errors.New("conversation not found")

	// ErrCorruptRecord means a persisted document could not be parsed into a
	// well-formed conversation.
	ErrCorruptRecord = errors.New("corrupt conversation record")

	// ErrPersistence means an I/O failure while writing a record.
	ErrPersistence = errors.New("persistence failure")
)

// Store reads and writes conversation documents under a single directory.
// Every save rewrites the whole document; there are no partial updates.
type Store struct {
	dir string
}

// New creates a Store rooted at dir. The directory is created lazily on the
// first save.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the sessions directory this store operates on.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the document path for a conversation id.
func (s *Store) Path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Save serializes the full conversation to its document, overwriting any
// existing one. The document is written to a temp file in the same directory
// and renamed into place so a crash mid-write never leaves a truncated file.
func (s *Store) Save(conv *chattypes.Conversation) (string, error) {
	jsonData, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return "", fmt.Errorf("%w: failed to marshal conversation: %v", ErrPersistence, err)
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("%w: failed to create sessions directory: %v", ErrPersistence, err)
	}

	target := s.Path(conv.ID)
	tmp, err := os.CreateTemp(s.dir, conv.ID+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("%w: failed to create temp file: %v", ErrPersistence, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(jsonData); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("%w: failed to write conversation: %v", ErrPersistence, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("%w: failed to close temp file: %v", ErrPersistence, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("%w: failed to replace conversation file: %v", ErrPersistence, err)
	}

	logger.Debug("Conversation saved", "conversation_id", conv.ID, "path", target, "turns", conv.TurnCount())
	return target, nil
}

// Load reads and parses the document for id.
func (s *Store) Load(id string) (*chattypes.Conversation, error) {
	path := s.Path(id)

	jsonData, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to read conversation file: %w", err)
	}

	conv, err := decodeConversation(jsonData)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, id, err)
	}

	logger.Debug("Conversation loaded", "conversation_id", id, "turns", conv.TurnCount())
	return conv, nil
}

// List enumerates all persisted conversations as summaries, ordered by
// last-updated descending. Documents that fail to parse are logged and
// skipped; they never fail the listing.
func (s *Store) List() ([]chattypes.ConversationSummary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var summaries []chattypes.ConversationSummary
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		jsonData, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("Failed to read conversation file", "path", path, "error", err)
			continue
		}
		conv, err := decodeConversation(jsonData)
		if err != nil {
			logger.Warn("Skipping unparseable conversation file", "path", path, "error", err)
			continue
		}
		summaries = append(summaries, chattypes.ConversationSummary{
			ID:        conv.ID,
			Title:     conv.Title,
			CreatedAt: conv.CreatedAt,
			UpdatedAt: conv.UpdatedAt,
			TurnCount: conv.TurnCount(),
		})
	}

	// Ties keep directory enumeration order
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})

	return summaries, nil
}

// Export copies the stored document for id verbatim to destPath.
func (s *Store) Export(id, destPath string) error {
	jsonData, err := os.ReadFile(s.Path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("failed to read conversation file: %w", err)
	}

	if err := os.WriteFile(destPath, jsonData, 0644); err != nil {
		return fmt.Errorf("%w: failed to write export file: %v", ErrPersistence, err)
	}

	logger.Info("Conversation exported", "conversation_id", id, "path", destPath)
	return nil
}

// decodeConversation parses a document and rejects records missing required
// fields or carrying malformed timestamps.
func decodeConversation(jsonData []byte) (*chattypes.Conversation, error) {
	var conv chattypes.Conversation
	if err := json.Unmarshal(jsonData, &conv); err != nil {
		return nil, err
	}

	if conv.ID == "" {
		return nil, errors.New("missing id")
	}
	if conv.Title == "" {
		return nil, errors.New("missing title")
	}
	if conv.CreatedAt.IsZero() || conv.UpdatedAt.IsZero() {
		return nil, errors.New("missing timestamps")
	}
	for _, turn := range conv.Turns {
		if turn.ID == "" || turn.Timestamp.IsZero() {
			return nil, errors.New("malformed turn")
		}
	}

	return &conv, nil
}
