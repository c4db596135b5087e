package models

import (
	"time"

	"github.com/google/uuid"
)

// Lead is a contact record derived from a conversation transcript. At most
// one lead is created per conversation.
type Lead struct {
	ID             uuid.UUID `json:"id"`
	TenantID       uuid.UUID `json:"tenant_id"`
	ChatbotID      uuid.UUID `json:"chatbot_id"`
	ChatbotKind    string    `json:"chatbot_kind"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone"`
	Data           JSONBMap  `json:"data"`
	CreatedAt      time.Time `json:"created_at"`
}
