// Package tokens provides token estimation, cost computation, and usage
// limit enforcement.
package tokens

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voxtro/voxtro-engine/pkg/apperrors"
	"github.com/voxtro/voxtro-engine/pkg/models"
	"github.com/voxtro/voxtro-engine/pkg/repositories"
)

// User-facing limit messages.
const (
	dailyLimitMessage   = "Daily token limit reached. Please try again tomorrow."
	monthlyLimitMessage = "Monthly token limit reached. Please upgrade your plan."
)

// ModelRate is the per-1K-token price for one model.
type ModelRate struct {
	Input  float64
	Output float64
}

// Pricing maps model names to their per-1K-token rates.
type Pricing map[string]ModelRate

// DefaultPricing returns the built-in pricing table.
func DefaultPricing() Pricing {
	return Pricing{
		"gpt-4o-mini":   {Input: 0.00015, Output: 0.0006},
		"gpt-4o":        {Input: 0.0025, Output: 0.01},
		"gpt-4":         {Input: 0.03, Output: 0.06},
		"gpt-3.5-turbo": {Input: 0.0015, Output: 0.002},
	}
}

// EstimateTokens approximates the token count of a text as length/4. Used
// only when provider-reported usage is missing; authoritative counts always
// win.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// Accountant records usage events and answers limit queries. Both operations
// fail open: metering must never block a user-facing response.
type Accountant interface {
	// Record appends one usage event. Failures are logged and swallowed.
	Record(ctx context.Context, chatbotID uuid.UUID, conversationID *uuid.UUID, inputTokens, outputTokens int, model string, cacheHit bool)

	// CheckLimits returns a TokenLimitError if the chatbot's current UTC-day
	// or UTC-month usage meets or exceeds its limit (daily checked first).
	// Zero limits are unset; with either limit unset nothing is enforced.
	// Query failures yield nil.
	CheckLimits(ctx context.Context, chatbotID uuid.UUID, dailyLimit, monthlyLimit int) *apperrors.TokenLimitError
}

type accountant struct {
	usageRepo    repositories.UsageRepository
	pricing      Pricing
	defaultModel string
	logger       *zap.Logger
}

// NewAccountant creates an Accountant backed by the usage repository. Unknown
// models are priced at the defaultModel rate.
func NewAccountant(usageRepo repositories.UsageRepository, pricing Pricing, defaultModel string, logger *zap.Logger) Accountant {
	return &accountant{
		usageRepo:    usageRepo,
		pricing:      pricing,
		defaultModel: defaultModel,
		logger:       logger.Named("tokens"),
	}
}

var _ Accountant = (*accountant)(nil)

// Cost computes the price of one completion in dollars.
func (p Pricing) Cost(model string, inputTokens, outputTokens int, defaultModel string) float64 {
	rate, ok := p[model]
	if !ok {
		rate = p[defaultModel]
	}
	return (float64(inputTokens)*rate.Input + float64(outputTokens)*rate.Output) / 1000
}

func (a *accountant) Record(ctx context.Context, chatbotID uuid.UUID, conversationID *uuid.UUID, inputTokens, outputTokens int, model string, cacheHit bool) {
	event := &models.UsageEvent{
		ChatbotID:      chatbotID,
		ConversationID: conversationID,
		InputTokens:    inputTokens,
		OutputTokens:   outputTokens,
		Model:          model,
		Cost:           a.pricing.Cost(model, inputTokens, outputTokens, a.defaultModel),
		CacheHit:       cacheHit,
	}

	if err := a.usageRepo.Insert(ctx, event); err != nil {
		a.logger.Warn("failed to record usage event",
			zap.String("chatbot_id", chatbotID.String()),
			zap.Error(err))
	}
}

func (a *accountant) CheckLimits(ctx context.Context, chatbotID uuid.UUID, dailyLimit, monthlyLimit int) *apperrors.TokenLimitError {
	// Plans configure both limits or neither; a lone limit is treated as
	// unset.
	if dailyLimit <= 0 || monthlyLimit <= 0 {
		return nil
	}

	now := time.Now().UTC()

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	used, err := a.usageRepo.SumTokensSince(ctx, chatbotID, dayStart)
	if err != nil {
		a.logger.Warn("daily limit check failed, allowing request",
			zap.String("chatbot_id", chatbotID.String()),
			zap.Error(err))
		return nil
	}
	if used >= dailyLimit {
		return &apperrors.TokenLimitError{Message: dailyLimitMessage}
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	used, err = a.usageRepo.SumTokensSince(ctx, chatbotID, monthStart)
	if err != nil {
		a.logger.Warn("monthly limit check failed, allowing request",
			zap.String("chatbot_id", chatbotID.String()),
			zap.Error(err))
		return nil
	}
	if used >= monthlyLimit {
		return &apperrors.TokenLimitError{Message: monthlyLimitMessage}
	}

	return nil
}
