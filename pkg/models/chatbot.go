// Package models contains domain types for voxtro-engine.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Chatbot is one configured assistant belonging to a tenant. The same record
// backs web chat, voice, and WhatsApp surfaces; Kind distinguishes them.
type Chatbot struct {
	ID                 uuid.UUID `json:"id"`
	TenantID           uuid.UUID `json:"tenant_id"`
	Name               string    `json:"name"`
	Kind               string    `json:"kind"`
	SystemPrompt       string    `json:"system_prompt"`
	KnowledgeBase      string    `json:"knowledge_base"`
	Model              string    `json:"model"`
	Temperature        float32   `json:"temperature"`
	MaxTokens          int       `json:"max_tokens"`
	CacheEnabled       bool      `json:"cache_enabled"`
	CacheDurationHours int       `json:"cache_duration_hours"`
	DailyTokenLimit    int       `json:"daily_token_limit"`
	MonthlyTokenLimit  int       `json:"monthly_token_limit"`
	Active             bool      `json:"active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Chatbot kinds.
const (
	ChatbotKindWeb      = "chatbot"
	ChatbotKindVoice    = "voice"
	ChatbotKindWhatsApp = "whatsapp"
)

// Action is a capability the model may invoke during a conversation.
// URL, Headers, and BodyTemplate may contain {{param}} placeholders that are
// substituted from the model-supplied arguments at execution time.
type Action struct {
	ID          uuid.UUID `json:"id"`
	ChatbotID   uuid.UUID `json:"chatbot_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`

	// Parameters is the raw JSON parameter spec as configured by the tenant.
	// It may be an object schema or an array of field descriptors; it is
	// normalized into a JSON-Schema object before being sent to the provider.
	Parameters   json.RawMessage `json:"parameters"`
	Kind         string          `json:"kind"`
	URL          string          `json:"url"`
	Method       string          `json:"method"`
	Headers      JSONBMap        `json:"headers"`
	BodyTemplate string          `json:"body_template"`
	Active       bool            `json:"active"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Action kinds.
const (
	ActionKindAPI     = "api"
	ActionKindWebhook = "webhook"
)

// JSONBMap is a map type that handles PostgreSQL JSONB serialization.
type JSONBMap map[string]interface{}

// Value implements driver.Valuer for database serialization.
func (j JSONBMap) Value() (driver.Value, error) {
	if j == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner for database deserialization.
func (j *JSONBMap) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into JSONBMap", value)
	}

	return json.Unmarshal(bytes, j)
}
