package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/voxtro/voxtro-engine/pkg/apperrors"
	"github.com/voxtro/voxtro-engine/pkg/database"
	"github.com/voxtro/voxtro-engine/pkg/models"
)

// CacheRepository provides data access for cached responses.
type CacheRepository interface {
	// DeleteExpired removes all entries past their expiry, across all chatbots.
	DeleteExpired(ctx context.Context) error

	// FindLatest returns the most recent non-expired entry for the
	// (chatbot, question hash) key, or apperrors.ErrNotFound.
	FindLatest(ctx context.Context, chatbotID uuid.UUID, questionHash string) (*models.CacheEntry, error)

	// IncrementHitCount bumps the hit counter on an entry. Expiry is not
	// refreshed.
	IncrementHitCount(ctx context.Context, id uuid.UUID) error

	// Insert writes a new cache entry. Entries with the same key may coexist.
	Insert(ctx context.Context, entry *models.CacheEntry) error
}

type cacheRepository struct {
	db *database.DB
}

// NewCacheRepository creates a new CacheRepository.
func NewCacheRepository(db *database.DB) CacheRepository {
	return &cacheRepository{db: db}
}

var _ CacheRepository = (*cacheRepository)(nil)

func (r *cacheRepository) DeleteExpired(ctx context.Context) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM response_cache WHERE expires_at <= $1`,
		time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to delete expired cache entries: %w", err)
	}

	return nil
}

func (r *cacheRepository) FindLatest(ctx context.Context, chatbotID uuid.UUID, questionHash string) (*models.CacheEntry, error) {
	query := `
		SELECT id, chatbot_id, question_hash, question, response, model,
		       input_tokens, output_tokens, hit_count, expires_at, created_at
		FROM response_cache
		WHERE chatbot_id = $1 AND question_hash = $2 AND expires_at > $3
		ORDER BY created_at DESC
		LIMIT 1`

	var e models.CacheEntry
	err := r.db.QueryRow(ctx, query, chatbotID, questionHash, time.Now().UTC()).Scan(
		&e.ID, &e.ChatbotID, &e.QuestionHash, &e.Question, &e.Response, &e.Model,
		&e.InputTokens, &e.OutputTokens, &e.HitCount, &e.ExpiresAt, &e.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find cache entry: %w", err)
	}

	return &e, nil
}

func (r *cacheRepository) IncrementHitCount(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`UPDATE response_cache SET hit_count = hit_count + 1 WHERE id = $1`,
		id)
	if err != nil {
		return fmt.Errorf("failed to increment hit count: %w", err)
	}

	return nil
}

func (r *cacheRepository) Insert(ctx context.Context, entry *models.CacheEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO response_cache (
			id, chatbot_id, question_hash, question, response, model,
			input_tokens, output_tokens, hit_count, expires_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.Exec(ctx, query,
		entry.ID, entry.ChatbotID, entry.QuestionHash, entry.Question,
		entry.Response, entry.Model, entry.InputTokens, entry.OutputTokens,
		entry.HitCount, entry.ExpiresAt, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert cache entry: %w", err)
	}

	return nil
}
