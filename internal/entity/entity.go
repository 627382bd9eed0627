package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser Role = "user"
	RoleAI   Role = "ai"
)

// SubmissionRequest is one user turn handed to the automaton.
type SubmissionRequest struct {
	Text       string
	Attachment string
}

// ExtractedReply is the text scraped from the most recent message bubble.
type ExtractedReply struct {
	Text  string
	Found bool
}

// CompletionState is the Completion Detector's state for one await call.
type CompletionState int

const (
	CompletionIdle CompletionState = iota
	CompletionSubmitting
	CompletionGenerating
	CompletionStabilizing
	CompletionDone
	CompletionTimedOut
)

func (s CompletionState) String() string {
	switch s {
	case CompletionIdle:
		return "idle"
	case CompletionSubmitting:
		return "submitting"
	case CompletionGenerating:
		return "generating"
	case CompletionStabilizing:
		return "stabilizing"
	case CompletionDone:
		return "done"
	case CompletionTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

type Account struct {
	ID        uuid.UUID
	Email     string
	Password  string
	CreatedAt time.Time
}

type BrowserSession struct {
	ID           uuid.UUID
	SessionID    string
	AccountEmail *string
	SiteName     string
	StorageState json.RawMessage
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Chat struct {
	ID           uuid.UUID `json:"id"`
	ChatID       string    `json:"chat_id"`
	SessionID    string    `json:"-"`
	AccountEmail *string   `json:"-"`
	Title        *string   `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
}

type Message struct {
	ID        uuid.UUID `json:"id"`
	ChatID    string    `json:"chat_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	ImageURL  *string   `json:"image_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TurnRequest is one message sent to a conversation. An empty ChatID starts
// a new conversation. ImageTemporary marks ImagePath as a scratch file deleted after the turn, so
// the path is not recorded with the message.
type TurnRequest struct {
	ChatID         string
	Text           string
	ImagePath      string
	ImageTemporary bool
}

// Turn is the outcome of one send/await/extract cycle.
type Turn struct {
	ChatID   string
	Response string
	Partial  bool
}
