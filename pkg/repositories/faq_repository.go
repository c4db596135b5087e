package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/voxtro/voxtro-engine/pkg/database"
	"github.com/voxtro/voxtro-engine/pkg/models"
)

// FAQRepository provides read access to curated question/answer pairs.
type FAQRepository interface {
	// ListActive returns up to limit active FAQs for a chatbot, oldest first.
	ListActive(ctx context.Context, chatbotID uuid.UUID, limit int) ([]*models.FAQ, error)
}

type faqRepository struct {
	db *database.DB
}

// NewFAQRepository creates a new FAQRepository.
func NewFAQRepository(db *database.DB) FAQRepository {
	return &faqRepository{db: db}
}

var _ FAQRepository = (*faqRepository)(nil)

func (r *faqRepository) ListActive(ctx context.Context, chatbotID uuid.UUID, limit int) ([]*models.FAQ, error) {
	query := `
		SELECT id, chatbot_id, question, answer, active, created_at
		FROM faqs
		WHERE chatbot_id = $1 AND active = true
		ORDER BY created_at ASC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, chatbotID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query faqs: %w", err)
	}
	defer rows.Close()

	var faqs []*models.FAQ
	for rows.Next() {
		var f models.FAQ
		if err := rows.Scan(&f.ID, &f.ChatbotID, &f.Question, &f.Answer, &f.Active, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan faq: %w", err)
		}
		faqs = append(faqs, &f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating faqs: %w", err)
	}

	return faqs, nil
}
