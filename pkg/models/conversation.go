package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is one visitor session against one chatbot.
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	ChatbotID uuid.UUID `json:"chatbot_id"`
	VisitorID string    `json:"visitor_id"`
	Status    string    `json:"status"`
	Summary   *Summary  `json:"summary,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Conversation statuses.
const (
	ConversationActive = "active"
	ConversationEnded  = "ended"
)

// Summary holds the AI-derived rollup of a conversation transcript.
type Summary struct {
	Summary             string    `json:"summary"`
	KeyPoints           []string  `json:"key_points"`
	ActionItems         []string  `json:"action_items"`
	Sentiment           string    `json:"sentiment"`
	SentimentNotes      string    `json:"sentiment_notes"`
	ConversationOutcome string    `json:"conversation_outcome"`
	TopicsDiscussed     []string  `json:"topics_discussed"`
	LeadInfo            *LeadInfo `json:"lead_info,omitempty"`
}

// LeadInfo is contact information extracted from a transcript. All fields are
// optional; a summary with no identifiable contact yields a nil LeadInfo.
type LeadInfo struct {
	Name          string `json:"name,omitempty"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Company       string `json:"company,omitempty"`
	InterestLevel string `json:"interest_level,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

// HasContact reports whether the lead info carries at least one way to reach
// the person.
func (l *LeadInfo) HasContact() bool {
	return l != nil && (l.Name != "" || l.Email != "" || l.Phone != "")
}

// Message is one turn in a conversation. Immutable once written; the ordered
// sequence of messages is the literal prompt history.
type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}
