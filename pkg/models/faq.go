package models

import (
	"time"

	"github.com/google/uuid"
)

// FAQ is one curated question/answer pair appended to the system prompt.
type FAQ struct {
	ID        uuid.UUID `json:"id"`
	ChatbotID uuid.UUID `json:"chatbot_id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
