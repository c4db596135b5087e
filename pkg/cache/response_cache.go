// Package cache provides the first-turn response cache.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voxtro/voxtro-engine/pkg/apperrors"
	"github.com/voxtro/voxtro-engine/pkg/models"
	"github.com/voxtro/voxtro-engine/pkg/repositories"
	"github.com/voxtro/voxtro-engine/pkg/tokens"
)

// Stored question text is truncated for audit purposes; the hash is computed
// over the full normalized question.
const maxStoredQuestionLen = 500

// CachedAnswer is a cache hit.
type CachedAnswer struct {
	Response string
	Model    string
}

// ResponseCache maps (chatbot, normalized question) to a previously generated
// answer. It is a pure optimization: every store failure degrades to a miss
// or a no-op, never an error.
type ResponseCache interface {
	// Lookup returns the most recent non-expired answer for the question, or
	// nil on miss. Expired entries are garbage-collected as a side effect and
	// a hit increments the entry's counter without refreshing its expiry.
	Lookup(ctx context.Context, chatbotID uuid.UUID, question string) *CachedAnswer

	// Store writes a new entry expiring ttlHours from now.
	Store(ctx context.Context, chatbotID uuid.UUID, question, response, model string, ttlHours int)
}

type responseCache struct {
	repo   repositories.CacheRepository
	logger *zap.Logger
}

// NewResponseCache creates a ResponseCache backed by the cache repository.
func NewResponseCache(repo repositories.CacheRepository, logger *zap.Logger) ResponseCache {
	return &responseCache{
		repo:   repo,
		logger: logger.Named("cache"),
	}
}

var _ ResponseCache = (*responseCache)(nil)

func (c *responseCache) Lookup(ctx context.Context, chatbotID uuid.UUID, question string) *CachedAnswer {
	hash := hashQuestion(question)

	if err := c.repo.DeleteExpired(ctx); err != nil {
		c.logger.Warn("failed to delete expired cache entries", zap.Error(err))
	}

	entry, err := c.repo.FindLatest(ctx, chatbotID, hash)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			c.logger.Warn("cache lookup failed, treating as miss",
				zap.String("chatbot_id", chatbotID.String()),
				zap.Error(err))
		}
		return nil
	}

	if err := c.repo.IncrementHitCount(ctx, entry.ID); err != nil {
		c.logger.Warn("failed to increment cache hit count",
			zap.String("entry_id", entry.ID.String()),
			zap.Error(err))
	}

	c.logger.Debug("cache hit",
		zap.String("chatbot_id", chatbotID.String()),
		zap.Int("hit_count", entry.HitCount+1))

	return &CachedAnswer{
		Response: entry.Response,
		Model:    entry.Model,
	}
}

func (c *responseCache) Store(ctx context.Context, chatbotID uuid.UUID, question, response, model string, ttlHours int) {
	normalized := normalizeQuestion(question)
	stored := normalized
	if len(stored) > maxStoredQuestionLen {
		stored = stored[:maxStoredQuestionLen]
	}

	entry := &models.CacheEntry{
		ChatbotID:    chatbotID,
		QuestionHash: hashQuestion(question),
		Question:     stored,
		Response:     response,
		Model:        model,
		InputTokens:  tokens.EstimateTokens(normalized),
		OutputTokens: tokens.EstimateTokens(response),
		ExpiresAt:    time.Now().UTC().Add(time.Duration(ttlHours) * time.Hour),
	}

	if err := c.repo.Insert(ctx, entry); err != nil {
		c.logger.Warn("failed to store cache entry",
			zap.String("chatbot_id", chatbotID.String()),
			zap.Error(err))
	}
}

func normalizeQuestion(question string) string {
	return strings.ToLower(strings.TrimSpace(question))
}

func hashQuestion(question string) string {
	sum := md5.Sum([]byte(normalizeQuestion(question)))
	return hex.EncodeToString(sum[:])
}
