package models

import (
	"time"

	"github.com/google/uuid"
)

// CacheEntry is a previously generated answer keyed by (chatbot, question
// hash). Expiry is a strict TTL; hits increment HitCount but never extend
// ExpiresAt. Multiple rows with the same key may coexist; lookups take the
// most recent.
type CacheEntry struct {
	ID           uuid.UUID `json:"id"`
	ChatbotID    uuid.UUID `json:"chatbot_id"`
	QuestionHash string    `json:"question_hash"`
	Question     string    `json:"question"`
	Response     string    `json:"response"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	HitCount     int       `json:"hit_count"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}
