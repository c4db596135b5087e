package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageEvent records one completed model call (or cache-hit-equivalent).
// Append-only; aggregated by UTC day and month windows for limit enforcement.
type UsageEvent struct {
	ID             uuid.UUID  `json:"id"`
	ChatbotID      uuid.UUID  `json:"chatbot_id"`
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
	InputTokens    int        `json:"input_tokens"`
	OutputTokens   int        `json:"output_tokens"`
	Model          string     `json:"model"`
	Cost           float64    `json:"cost"`
	CacheHit       bool       `json:"cache_hit"`
	CreatedAt      time.Time  `json:"created_at"`
}
