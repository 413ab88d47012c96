// Package models defines the GORM models persisted by the engine.
package models

import "time"

// ConversationSnapshot is the durable copy of one session's transcript.
// One row per session, keyed by SessionID; the Payload column holds the
// versioned JSON snapshot written by the debounced persistence layer.
type ConversationSnapshot struct {
	ID            uint       `gorm:"primaryKey;autoIncrement"`
	SessionID     string     `gorm:"size:128;uniqueIndex;not null"`
	Mode          string     `gorm:"size:8;default:voice"`
	SchemaVersion int        `gorm:"not null;default:1"`
	Payload       string     `gorm:"type:mediumtext;not null"`
	MessageCount  int        `gorm:"not null;default:0"`
	LastMessageAt *time.Time `gorm:"index"`
	CreatedAt     time.Time
	UpdatedAt     time.Time `gorm:"index"`
}
