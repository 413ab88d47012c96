// Package conversation implements the reconciliation core: an ordered,
// deduplicated message store and the turn reconciler that feeds it from
// interim/final speech segments and explicit text messages.
package conversation

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Sender identifies one of the two conversation participants.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// MessageType is the union tag of a Message. It is immutable after creation.
type MessageType string

const (
	TypeTranscription MessageType = "transcription"
	TypeChat          MessageType = "chat"
)

// Mode describes how the session is primarily driven. Informational only.
type Mode string

const (
	ModeVoice Mode = "voice"
	ModeChat  Mode = "chat"
)

// DeliveryData is the delivery method for chat messages sent over the
// realtime data channel.
const DeliveryData = "data-channel"

// Message is one entry in a conversation transcript. The Type tag selects
// which variant fields are meaningful: transcription messages carry
// IsFinal/Confidence/Language, chat messages carry DeliveryMethod.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"messageType"`
	Sender    Sender      `json:"sender"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`

	// Transcription variant.
	IsFinal    bool     `json:"isFinal,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Language   string   `json:"language,omitempty"`

	// Chat variant.
	DeliveryMethod string `json:"deliveryMethod,omitempty"`
}

// idCounter disambiguates ids minted within the same nanosecond.
var idCounter atomic.Uint64

// NewID returns an opaque message id, unique within the process.
func NewID() string {
	return fmt.Sprintf("msg-%d-%d", time.Now().UnixNano(), idCounter.Add(1))
}

// Segment is one interim or final unit of transcribed speech delivered by
// the upstream realtime transport.
type Segment struct {
	Text       string    `json:"text"`
	Final      bool      `json:"final"`
	Speaker    Sender    `json:"speaker"`
	Timestamp  time.Time `json:"timestamp"`
	Language   string    `json:"language,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
}

// Preview is the ephemeral per-speaker interim text shown while speech is
// still being transcribed. It is never persisted.
type Preview struct {
	Speaker   Sender    `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
