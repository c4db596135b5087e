// Package repositories provides data access for voxtro-engine domain types.
package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/voxtro/voxtro-engine/pkg/apperrors"
	"github.com/voxtro/voxtro-engine/pkg/database"
	"github.com/voxtro/voxtro-engine/pkg/models"
)

// ChatbotRepository provides read access to assistant configuration.
type ChatbotRepository interface {
	// GetByID returns the chatbot with the given id, or apperrors.ErrNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Chatbot, error)

	// ListActiveActions returns the chatbot's active actions ordered by name.
	ListActiveActions(ctx context.Context, chatbotID uuid.UUID) ([]*models.Action, error)
}

type chatbotRepository struct {
	db *database.DB
}

// NewChatbotRepository creates a new ChatbotRepository.
func NewChatbotRepository(db *database.DB) ChatbotRepository {
	return &chatbotRepository{db: db}
}

var _ ChatbotRepository = (*chatbotRepository)(nil)

func (r *chatbotRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Chatbot, error) {
	query := `
		SELECT id, tenant_id, name, kind, system_prompt, knowledge_base, model,
		       temperature, max_tokens, cache_enabled, cache_duration_hours,
		       daily_token_limit, monthly_token_limit, active, created_at, updated_at
		FROM chatbots
		WHERE id = $1`

	var c models.Chatbot
	err := r.db.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.TenantID, &c.Name, &c.Kind, &c.SystemPrompt, &c.KnowledgeBase,
		&c.Model, &c.Temperature, &c.MaxTokens, &c.CacheEnabled, &c.CacheDurationHours,
		&c.DailyTokenLimit, &c.MonthlyTokenLimit, &c.Active, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chatbot: %w", err)
	}

	return &c, nil
}

func (r *chatbotRepository) ListActiveActions(ctx context.Context, chatbotID uuid.UUID) ([]*models.Action, error) {
	query := `
		SELECT id, chatbot_id, name, description, parameters, kind, url, method,
		       headers, body_template, active, created_at
		FROM chatbot_actions
		WHERE chatbot_id = $1 AND active = true
		ORDER BY name`

	rows, err := r.db.Query(ctx, query, chatbotID)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}
	defer rows.Close()

	var actions []*models.Action
	for rows.Next() {
		var a models.Action
		if err := rows.Scan(
			&a.ID, &a.ChatbotID, &a.Name, &a.Description, &a.Parameters,
			&a.Kind, &a.URL, &a.Method, &a.Headers, &a.BodyTemplate,
			&a.Active, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		actions = append(actions, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating actions: %w", err)
	}

	return actions, nil
}
