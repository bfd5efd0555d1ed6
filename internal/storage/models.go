package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Conversation maps a caller-facing conversation identifier to the latest
// completion-service response identifier, so follow-up questions resume the
// provider-side thread.
type Conversation struct {
	ID         string
	ResponseID string
	UpdatedAt  time.Time
}

// Interaction is one answered (or failed) question, kept for auditing.
type Interaction struct {
	ID             string
	ConversationID string
	Question       string
	PipelineJSON   string // generated aggregation pipeline stored as text
	Answer         string
	Success        bool
	Error          string
	DurationMs     int64
	CreatedAt      time.Time
}
