package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ProviderClient is a stateless wrapper around one OpenAI-compatible
// chat-completions endpoint. Each Complete call is a single deterministic
// attempt; retries and fallback are the FallbackClient's job.
type ProviderClient struct {
	client         *openai.Client
	endpoint       string
	requestTimeout time.Duration
	logger         *zap.Logger
}

// ClientConfig holds configuration for creating a provider client.
type ClientConfig struct {
	Endpoint       string // Base URL, e.g., "https://api.openai.com/v1"
	APIKey         string
	RequestTimeout time.Duration // Per-call bound, defaults to 60s
}

// NewProviderClient creates a new provider client.
func NewProviderClient(cfg *ClientConfig, logger *zap.Logger) (*ProviderClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &ProviderClient{
		client:         openai.NewClientWithConfig(clientConfig),
		endpoint:       cfg.Endpoint,
		requestTimeout: timeout,
		logger:         logger.Named("llm"),
	}, nil
}

var _ CompletionClient = (*ProviderClient)(nil)

// Complete performs one chat completion request.
func (c *ProviderClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	c.logger.Debug("completion request",
		zap.String("model", req.Model),
		zap.Int("messages", len(req.Messages)),
		zap.Int("tools", len(req.Tools)))

	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    buildOpenAIMessages(req.Messages),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Tools:       buildOpenAITools(req.Tools),
	})
	if err != nil {
		c.logger.Warn("completion request failed",
			zap.String("model", req.Model),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, c.classifyError(req.Model, err)
	}

	if len(resp.Choices) == 0 {
		return nil, &Error{
			Type:    ErrorTypeFatal,
			Message: "no choices in response",
			Model:   req.Model,
		}
	}

	choice := resp.Choices[0].Message

	c.logger.Info("completion request completed",
		zap.String("model", resp.Model),
		zap.Int("input_tokens", resp.Usage.PromptTokens),
		zap.Int("output_tokens", resp.Usage.CompletionTokens),
		zap.Int("tool_calls", len(choice.ToolCalls)),
		zap.Duration("elapsed", time.Since(start)))

	result := &CompletionResult{
		Content: choice.Content,
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
		ModelUsed: resp.Model,
	}
	if result.ModelUsed == "" {
		result.ModelUsed = req.Model
	}

	for _, tc := range choice.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, ToolCall{
			ID:   tc.ID,
			Type: string(tc.Type),
			Function: ToolCallFunc{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}

	return result, nil
}

// classifyError maps a go-openai error into the closed set of outcome
// variants the fallback state machine branches on.
func (c *ProviderClient) classifyError(model string, err error) *Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == 429 {
			scope, retryAfter := ParseRateLimitMessage(apiErr.Message)
			return &Error{
				Type:       ErrorTypeRateLimited,
				Message:    apiErr.Message,
				StatusCode: 429,
				Model:      model,
				Cause:      err,
				Scope:      scope,
				RetryAfter: retryAfter,
			}
		}
		return &Error{
			Type:       ErrorTypeFatal,
			Message:    apiErr.Message,
			StatusCode: apiErr.HTTPStatusCode,
			Model:      model,
			Cause:      err,
		}
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{
			Type:    ErrorTypeTimeout,
			Message: "request timed out",
			Model:   model,
			Cause:   err,
		}
	}

	return &Error{
		Type:    ErrorTypeFatal,
		Message: "provider request failed",
		Model:   model,
		Cause:   err,
	}
}

func buildOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolType(tc.Type),
				Function: openai.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func buildOpenAITools(tools []ToolDefinition) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}

	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}
