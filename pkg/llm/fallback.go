package llm

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/voxtro/voxtro-engine/pkg/apperrors"
)

// languageContinuityPrompt is injected when a fallback model serves a
// conversation already in progress. Fallback models tend to default to
// English regardless of the conversation language.
const languageContinuityPrompt = "IMPORTANT: Continue responding in the same language the user has been using in their recent messages. Do not switch languages."

// DefaultFallbackChains returns the static per-model fallback table. The
// requested model is always tried first; an unknown model simply has no
// fallbacks.
func DefaultFallbackChains() map[string][]string {
	return map[string][]string{
		"gpt-4o-mini":   {"gpt-4o", "gpt-3.5-turbo"},
		"gpt-4o":        {"gpt-4o-mini"},
		"gpt-4":         {"gpt-4o", "gpt-4o-mini"},
		"gpt-3.5-turbo": {"gpt-4o-mini"},
	}
}

// FallbackClient wraps a CompletionClient with the retry, backoff, and
// model-substitution policy. Per-day rate limits skip straight to the next
// candidate model; per-minute limits get a bounded wait and a retry; timeouts
// get exponential backoff on the same model; fatal errors propagate
// immediately.
//
// Rate-limit state is local to a single Complete call. Concurrent requests
// each rediscover provider-side limits independently.
type FallbackClient struct {
	client     CompletionClient
	chains     map[string][]string
	maxRetries int
	maxBackoff time.Duration
	logger     *zap.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// FallbackConfig holds configuration for creating a FallbackClient.
type FallbackConfig struct {
	Chains     map[string][]string // Per-model fallback table
	MaxRetries int                 // Attempts per candidate model, defaults to 3
	MaxBackoff time.Duration       // Cap on any single wait, defaults to 60s
}

// NewFallbackClient creates a FallbackClient wrapping the given client.
func NewFallbackClient(client CompletionClient, cfg *FallbackConfig, logger *zap.Logger) *FallbackClient {
	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 3
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff == 0 {
		maxBackoff = 60 * time.Second
	}

	return &FallbackClient{
		client:     client,
		chains:     cfg.Chains,
		maxRetries: maxRetries,
		maxBackoff: maxBackoff,
		logger:     logger.Named("fallback"),
		sleep:      sleepContext,
	}
}

var _ CompletionClient = (*FallbackClient)(nil)

// Complete runs the fallback state machine over the candidate model list
// until one model answers, a fatal error occurs, retries exhaust on timeouts,
// or every candidate is rate-limited.
func (f *FallbackClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
	candidates := append([]string{req.Model}, f.chains[req.Model]...)
	usingFallback := false

	for _, model := range candidates {
		result, err := f.tryModel(ctx, req, model, usingFallback)
		if err == nil {
			if model != req.Model {
				f.logger.Info("request served by fallback model",
					zap.String("requested", req.Model),
					zap.String("used", result.ModelUsed))
			}
			return result, nil
		}

		var provErr *Error
		if errors.As(err, &provErr) && provErr.Type == ErrorTypeRateLimited {
			// This model is out of quota for now; move on to the next.
			usingFallback = true
			f.logger.Warn("model rate limited, advancing to next candidate",
				zap.String("model", model),
				zap.String("scope", string(provErr.Scope)))
			continue
		}

		return nil, err
	}

	f.logger.Error("all candidate models rate limited",
		zap.String("requested", req.Model),
		zap.Strings("candidates", candidates))
	return nil, apperrors.ErrCapacityExceeded
}

// tryModel makes up to maxRetries attempts against one model. It returns a
// rate-limited *Error once the model should be abandoned, or propagates any
// fatal or exhausted-timeout error as-is.
func (f *FallbackClient) tryModel(ctx context.Context, req *CompletionRequest, model string, usingFallback bool) (*CompletionResult, error) {
	attempt := &CompletionRequest{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Tools:       req.Tools,
	}
	if usingFallback && conversationTurns(req.Messages) > 1 {
		attempt.Messages = injectLanguageContinuity(req.Messages)
	}

	var lastErr error
	for i := 0; i < f.maxRetries; i++ {
		result, err := f.client.Complete(ctx, attempt)
		if err == nil {
			if result.ModelUsed == "" {
				result.ModelUsed = model
			}
			return result, nil
		}
		lastErr = err

		var provErr *Error
		if !errors.As(err, &provErr) || provErr.Type == ErrorTypeFatal {
			return nil, err
		}

		switch provErr.Type {
		case ErrorTypeRateLimited:
			if provErr.Scope == ScopePerDay {
				// Daily quota cannot recover within this request.
				return nil, err
			}
			if i == f.maxRetries-1 {
				return nil, err
			}
			wait := provErr.RetryAfter << i
			if wait > f.maxBackoff {
				wait = f.maxBackoff
			}
			f.logger.Info("per-minute rate limit, backing off",
				zap.String("model", model),
				zap.Int("attempt", i+1),
				zap.Duration("wait", wait))
			if err := f.sleep(ctx, wait); err != nil {
				return nil, err
			}

		case ErrorTypeTimeout:
			if i == f.maxRetries-1 {
				return nil, err
			}
			wait := time.Second << i
			if wait > f.maxBackoff {
				wait = f.maxBackoff
			}
			f.logger.Info("transient failure, backing off",
				zap.String("model", model),
				zap.Int("attempt", i+1),
				zap.Duration("wait", wait))
			if err := f.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}
	}

	return nil, lastErr
}

// conversationTurns counts user and assistant messages in the prompt.
func conversationTurns(messages []Message) int {
	count := 0
	for _, m := range messages {
		if m.Role == RoleUser || m.Role == RoleAssistant {
			count++
		}
	}
	return count
}

// injectLanguageContinuity inserts the language instruction immediately after
// the primary system prompt, or at the front if there is none.
func injectLanguageContinuity(messages []Message) []Message {
	patch := Message{Role: RoleSystem, Content: languageContinuityPrompt}

	insertAt := 0
	if len(messages) > 0 && messages[0].Role == RoleSystem {
		insertAt = 1
	}

	out := make([]Message, 0, len(messages)+1)
	out = append(out, messages[:insertAt]...)
	out = append(out, patch)
	out = append(out, messages[insertAt:]...)
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
