package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/voxtro/voxtro-engine/pkg/apperrors"
	"github.com/voxtro/voxtro-engine/pkg/database"
	"github.com/voxtro/voxtro-engine/pkg/models"
)

// ConversationRepository provides data access for conversations.
type ConversationRepository interface {
	// FindActive returns the most recent non-ended conversation for the
	// (chatbot, visitor) pair, or apperrors.ErrNotFound.
	FindActive(ctx context.Context, chatbotID uuid.UUID, visitorID string) (*models.Conversation, error)

	// Create inserts a new active conversation.
	Create(ctx context.Context, chatbotID uuid.UUID, visitorID string) (*models.Conversation, error)

	// GetByID returns the conversation with the given id, or apperrors.ErrNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error)

	// UpdateSummary stores the AI-derived summary on a conversation.
	UpdateSummary(ctx context.Context, id uuid.UUID, summary *models.Summary) error

	// End marks a conversation as ended.
	End(ctx context.Context, id uuid.UUID) error
}

type conversationRepository struct {
	db *database.DB
}

// NewConversationRepository creates a new ConversationRepository.
func NewConversationRepository(db *database.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

var _ ConversationRepository = (*conversationRepository)(nil)

func (r *conversationRepository) FindActive(ctx context.Context, chatbotID uuid.UUID, visitorID string) (*models.Conversation, error) {
	query := `
		SELECT id, chatbot_id, visitor_id, status, summary, created_at, updated_at
		FROM conversations
		WHERE chatbot_id = $1 AND visitor_id = $2 AND status != $3
		ORDER BY created_at DESC
		LIMIT 1`

	conv, err := scanConversation(r.db.QueryRow(ctx, query, chatbotID, visitorID, models.ConversationEnded))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find conversation: %w", err)
	}

	return conv, nil
}

func (r *conversationRepository) Create(ctx context.Context, chatbotID uuid.UUID, visitorID string) (*models.Conversation, error) {
	conv := &models.Conversation{
		ID:        uuid.New(),
		ChatbotID: chatbotID,
		VisitorID: visitorID,
		Status:    models.ConversationActive,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	query := `
		INSERT INTO conversations (id, chatbot_id, visitor_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.Exec(ctx, query,
		conv.ID, conv.ChatbotID, conv.VisitorID, conv.Status, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	return conv, nil
}

func (r *conversationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	query := `
		SELECT id, chatbot_id, visitor_id, status, summary, created_at, updated_at
		FROM conversations
		WHERE id = $1`

	conv, err := scanConversation(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	return conv, nil
}

func (r *conversationRepository) UpdateSummary(ctx context.Context, id uuid.UUID, summary *models.Summary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	query := `
		UPDATE conversations
		SET summary = $2, updated_at = $3
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, summaryJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func (r *conversationRepository) End(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE conversations
		SET status = $2, updated_at = $3
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, models.ConversationEnded, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to end conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func scanConversation(row pgx.Row) (*models.Conversation, error) {
	var conv models.Conversation
	var summaryJSON []byte

	err := row.Scan(
		&conv.ID, &conv.ChatbotID, &conv.VisitorID, &conv.Status,
		&summaryJSON, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(summaryJSON) > 0 {
		var summary models.Summary
		if err := json.Unmarshal(summaryJSON, &summary); err != nil {
			return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
		}
		conv.Summary = &summary
	}

	return &conv, nil
}
