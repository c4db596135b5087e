package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/voxtro/voxtro-engine/pkg/database"
	"github.com/voxtro/voxtro-engine/pkg/models"
)

// UsageRepository provides data access for token usage events.
type UsageRepository interface {
	// Insert appends one usage event.
	Insert(ctx context.Context, event *models.UsageEvent) error

	// SumTokensSince returns the total input+output tokens recorded for a
	// chatbot at or after the given instant.
	SumTokensSince(ctx context.Context, chatbotID uuid.UUID, since time.Time) (int, error)
}

type usageRepository struct {
	db *database.DB
}

// NewUsageRepository creates a new UsageRepository.
func NewUsageRepository(db *database.DB) UsageRepository {
	return &usageRepository{db: db}
}

var _ UsageRepository = (*usageRepository)(nil)

func (r *usageRepository) Insert(ctx context.Context, event *models.UsageEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO token_usage (
			id, chatbot_id, conversation_id, input_tokens, output_tokens,
			model, cost, cache_hit, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Exec(ctx, query,
		event.ID, event.ChatbotID, event.ConversationID,
		event.InputTokens, event.OutputTokens, event.Model,
		event.Cost, event.CacheHit, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert usage event: %w", err)
	}

	return nil
}

func (r *usageRepository) SumTokensSince(ctx context.Context, chatbotID uuid.UUID, since time.Time) (int, error) {
	query := `
		SELECT COALESCE(SUM(input_tokens + output_tokens), 0)
		FROM token_usage
		WHERE chatbot_id = $1 AND created_at >= $2`

	var total int
	if err := r.db.QueryRow(ctx, query, chatbotID, since).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum token usage: %w", err)
	}

	return total, nil
}
