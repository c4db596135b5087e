package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/voxtro/voxtro-engine/pkg/database"
	"github.com/voxtro/voxtro-engine/pkg/models"
)

// LeadRepository provides data access for extracted leads.
type LeadRepository interface {
	// ExistsForConversation reports whether a lead has already been created
	// from the given conversation.
	ExistsForConversation(ctx context.Context, conversationID uuid.UUID) (bool, error)

	// Insert writes a new lead.
	Insert(ctx context.Context, lead *models.Lead) error

	// ListByTenant returns a tenant's leads, newest first.
	ListByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]*models.Lead, error)
}

type leadRepository struct {
	db *database.DB
}

// NewLeadRepository creates a new LeadRepository.
func NewLeadRepository(db *database.DB) LeadRepository {
	return &leadRepository{db: db}
}

var _ LeadRepository = (*leadRepository)(nil)

func (r *leadRepository) ExistsForConversation(ctx context.Context, conversationID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM leads WHERE conversation_id = $1)`,
		conversationID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check lead existence: %w", err)
	}

	return exists, nil
}

func (r *leadRepository) Insert(ctx context.Context, lead *models.Lead) error {
	if lead.ID == uuid.Nil {
		lead.ID = uuid.New()
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO leads (
			id, tenant_id, chatbot_id, chatbot_kind, conversation_id,
			name, email, phone, data, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.Exec(ctx, query,
		lead.ID, lead.TenantID, lead.ChatbotID, lead.ChatbotKind,
		lead.ConversationID, lead.Name, lead.Email, lead.Phone,
		lead.Data, lead.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert lead: %w", err)
	}

	return nil
}

func (r *leadRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]*models.Lead, error) {
	query := `
		SELECT id, tenant_id, chatbot_id, chatbot_kind, conversation_id,
		       name, email, phone, data, created_at
		FROM leads
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}
	defer rows.Close()

	var leads []*models.Lead
	for rows.Next() {
		var l models.Lead
		if err := rows.Scan(
			&l.ID, &l.TenantID, &l.ChatbotID, &l.ChatbotKind, &l.ConversationID,
			&l.Name, &l.Email, &l.Phone, &l.Data, &l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan lead: %w", err)
		}
		leads = append(leads, &l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating leads: %w", err)
	}

	return leads, nil
}
