// Package snapshot persists conversation state: a versioned JSON snapshot
// schema, a trailing-edge debounced writer, a GORM-backed row store keyed
// by session id, and a cron-scheduled retention sweep.
package snapshot

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/westrik/parley/internal/conversation"
)

// SchemaVersion is written into every snapshot. The decoder tolerates
// older payloads rather than hard-rejecting on version mismatch.
const SchemaVersion = 1

// Snapshot is the persisted form of one session's conversation.
type Snapshot struct {
	SchemaVersion int                      `json:"schemaVersion"`
	SessionID     string                   `json:"sessionId"`
	CurrentMode   conversation.Mode        `json:"currentMode"`
	Messages      []conversation.Message   `json:"messages"`
	LastMessageAt *time.Time               `json:"lastMessageAt,omitempty"`
	MessageCount  int                      `json:"messageCount"`
}

// Capture builds a Snapshot from the store's current sorted view.
func Capture(store *conversation.Store) Snapshot {
	msgs := store.SortedView()
	snap := Snapshot{
		SchemaVersion: SchemaVersion,
		SessionID:     store.SessionID(),
		CurrentMode:   store.Mode(),
		Messages:      msgs,
		MessageCount:  len(msgs),
	}
	if ts, ok := store.LastActivity(); ok {
		snap.LastMessageAt = &ts
	}
	return snap
}

// Encode serializes a snapshot to JSON.
func Encode(s Snapshot) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode session %s: %w", s.SessionID, err)
	}
	return data, nil
}

// Decode parses a snapshot payload. The decoder is forward-compatible:
// unknown fields are ignored and missing optional fields fall back to
// defaults, so legacy snapshots written before newer fields existed still
// load. Only malformed JSON is an error.
func Decode(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: decode: %w", err)
	}
	if s.SchemaVersion == 0 {
		// Legacy payload written before versioning.
		s.SchemaVersion = SchemaVersion
	}
	if s.CurrentMode == "" {
		s.CurrentMode = conversation.ModeVoice
	}
	if s.MessageCount != len(s.Messages) {
		s.MessageCount = len(s.Messages)
	}
	return s, nil
}
