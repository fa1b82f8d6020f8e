package types

import (
	"time"

	"github.com/google/uuid"
)

// SessionMode tags which endpoint produced a session record.
type SessionMode string

const (
	ModeChat          SessionMode = "chat"
	ModeVoice         SessionMode = "voice"
	ModeVoiceEmulated SessionMode = "voice-emulated"
)

// Session is one logged interaction turn. Rows are append-only: each turn is
// written exactly once and never removed.
type Session struct {
	SessionID      uuid.UUID      `json:"session_id"`
	UserID         uuid.UUID      `json:"user_id"`
	Transcript     string         `json:"transcript"`
	StructuredData map[string]any `json:"structured_data,omitempty"`
	Mode           SessionMode    `json:"mode"`
	Timestamp      time.Time      `json:"timestamp"`
}

// SessionSummary is the bounded view of a past session handed to the model:
// the transcript truncated to a bounded length, plus when/how it happened.
type SessionSummary struct {
	Timestamp time.Time   `json:"timestamp"`
	Mode      SessionMode `json:"mode"`
	Summary   string      `json:"summary"`
}
