// Package services contains the conversation orchestration and summary
// derivation logic.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voxtro/voxtro-engine/pkg/apperrors"
	"github.com/voxtro/voxtro-engine/pkg/cache"
	"github.com/voxtro/voxtro-engine/pkg/llm"
	"github.com/voxtro/voxtro-engine/pkg/models"
	"github.com/voxtro/voxtro-engine/pkg/repositories"
	"github.com/voxtro/voxtro-engine/pkg/tokens"
)

const (
	historyLimit        = 20
	faqLimit            = 20
	knowledgeBaseCap    = 8000
	defaultSystemPrompt = "You are a helpful assistant."
	defaultResponseText = "Processing..."
	defaultCacheHours   = 168
)

// PreviewConversationID is returned instead of a conversation id when a
// request runs in preview mode and nothing is persisted.
const PreviewConversationID = "preview"

// ChatRequest is one inbound visitor message. ConversationID, when set,
// continues that exact conversation instead of resolving by visitor.
type ChatRequest struct {
	ChatbotID      uuid.UUID
	ConversationID *uuid.UUID
	VisitorID      string
	Message        string
	Preview        bool
}

// ChatResponse is the orchestrator's answer.
type ChatResponse struct {
	ConversationID string         `json:"conversation_id"`
	Message        string         `json:"message"`
	ToolCalls      []llm.ToolCall `json:"actions,omitempty"`
	CacheHit       bool           `json:"cache_hit,omitempty"`
}

// ToolExecutorFactory binds a chatbot's action list into a ToolExecutor for
// one turn. Implemented by llm.ActionExecutor.
type ToolExecutorFactory interface {
	WithActions(actions []*models.Action) llm.ToolExecutor
}

// ChatService orchestrates one inbound message end to end: configuration and
// history loading, the cache-or-generate decision, the provider call with
// fallback, the tool round-trip, persistence, and metering.
type ChatService interface {
	HandleMessage(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

type chatService struct {
	chatbots      repositories.ChatbotRepository
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	faqs          repositories.FAQRepository
	responseCache cache.ResponseCache
	accountant    tokens.Accountant
	completions   llm.CompletionClient
	executors     ToolExecutorFactory
	defaultModel  string
	logger        *zap.Logger
}

// ChatServiceConfig holds the collaborators for a ChatService.
type ChatServiceConfig struct {
	Chatbots      repositories.ChatbotRepository
	Conversations repositories.ConversationRepository
	Messages      repositories.MessageRepository
	FAQs          repositories.FAQRepository
	ResponseCache cache.ResponseCache
	Accountant    tokens.Accountant
	Completions   llm.CompletionClient
	Executors     ToolExecutorFactory
	DefaultModel  string
}

// NewChatService creates a ChatService.
func NewChatService(cfg *ChatServiceConfig, logger *zap.Logger) ChatService {
	return &chatService{
		chatbots:      cfg.Chatbots,
		conversations: cfg.Conversations,
		messages:      cfg.Messages,
		faqs:          cfg.FAQs,
		responseCache: cfg.ResponseCache,
		accountant:    cfg.Accountant,
		completions:   cfg.Completions,
		executors:     cfg.Executors,
		defaultModel:  cfg.DefaultModel,
		logger:        logger.Named("chat"),
	}
}

var _ ChatService = (*chatService)(nil)

func (s *chatService) HandleMessage(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	chatbot, err := s.chatbots.GetByID(ctx, req.ChatbotID)
	if err != nil {
		return nil, err
	}
	if !req.Preview && !chatbot.Active {
		return nil, apperrors.ErrAssistantInactive
	}

	var conversation *models.Conversation
	if !req.Preview {
		conversation, err = s.resolveConversation(ctx, chatbot.ID, req)
		if err != nil {
			return nil, err
		}

		if err := s.messages.Insert(ctx, &models.Message{
			ConversationID: conversation.ID,
			Role:           llm.RoleUser,
			Content:        req.Message,
		}); err != nil {
			return nil, fmt.Errorf("failed to persist user message: %w", err)
		}

		// Gate on token budgets before any model spend. Enforcement needs
		// both limits configured; preview traffic is never gated.
		if chatbot.DailyTokenLimit > 0 && chatbot.MonthlyTokenLimit > 0 {
			if limitErr := s.accountant.CheckLimits(ctx, chatbot.ID, chatbot.DailyTokenLimit, chatbot.MonthlyTokenLimit); limitErr != nil {
				return nil, limitErr
			}
		}
	}

	isFirstTurn := s.isFirstTurn(ctx, conversation, req.Preview)

	if !req.Preview && chatbot.CacheEnabled && isFirstTurn {
		if answer := s.responseCache.Lookup(ctx, chatbot.ID, req.Message); answer != nil {
			if err := s.messages.Insert(ctx, &models.Message{
				ConversationID: conversation.ID,
				Role:           llm.RoleAssistant,
				Content:        answer.Response,
			}); err != nil {
				s.logger.Warn("failed to persist cached assistant message", zap.Error(err))
			}
			return &ChatResponse{
				ConversationID: conversation.ID.String(),
				Message:        answer.Response,
				CacheHit:       true,
			}, nil
		}
	}

	prompt := s.buildPrompt(ctx, chatbot, conversation, req)

	actions := s.loadActions(ctx, chatbot.ID)
	tools := llm.BuildToolDefinitions(actions)

	model := chatbot.Model
	if model == "" {
		model = s.defaultModel
	}

	result, err := s.completions.Complete(ctx, &llm.CompletionRequest{
		Model:       model,
		Messages:    prompt,
		Temperature: chatbot.Temperature,
		MaxTokens:   chatbot.MaxTokens,
		Tools:       tools,
	})
	if err != nil {
		return nil, err
	}

	content := result.Content
	usage := result.Usage
	modelUsed := result.ModelUsed
	toolCalls := result.ToolCalls

	if len(toolCalls) > 0 {
		content, usage, modelUsed, err = s.runToolRoundTrip(ctx, chatbot, prompt, result, actions)
		if err != nil {
			return nil, err
		}
		usage = result.Usage.Add(usage)
	}

	if !req.Preview && content != "" {
		if err := s.messages.Insert(ctx, &models.Message{
			ConversationID: conversation.ID,
			Role:           llm.RoleAssistant,
			Content:        content,
		}); err != nil {
			s.logger.Warn("failed to persist assistant message", zap.Error(err))
		}
	}

	// Providers occasionally omit the usage block. Estimate the missing
	// counts so the limit gate still sees this turn's spend.
	if usage.InputTokens == 0 {
		usage.InputTokens = tokens.EstimateTokens(promptText(prompt))
	}
	if usage.OutputTokens == 0 {
		usage.OutputTokens = tokens.EstimateTokens(content)
	}

	var conversationID *uuid.UUID
	if conversation != nil {
		conversationID = &conversation.ID
	}
	s.accountant.Record(ctx, chatbot.ID, conversationID, usage.InputTokens, usage.OutputTokens, modelUsed, false)

	if !req.Preview && chatbot.CacheEnabled && isFirstTurn && content != "" {
		ttl := chatbot.CacheDurationHours
		if ttl <= 0 {
			ttl = defaultCacheHours
		}
		s.responseCache.Store(ctx, chatbot.ID, req.Message, content, modelUsed, ttl)
	}

	if content == "" {
		content = defaultResponseText
	}

	resp := &ChatResponse{
		ConversationID: PreviewConversationID,
		Message:        content,
		ToolCalls:      toolCalls,
	}
	if conversation != nil {
		resp.ConversationID = conversation.ID.String()
	}
	return resp, nil
}

// resolveConversation returns the conversation this message belongs to. A
// client-supplied id wins and is used directly after an ownership check;
// otherwise the visitor's active conversation is found or a new one started.
// Concurrent first messages can race and create duplicates; the most recent
// one wins on the next lookup.
func (s *chatService) resolveConversation(ctx context.Context, chatbotID uuid.UUID, req *ChatRequest) (*models.Conversation, error) {
	if req.ConversationID != nil {
		conversation, err := s.conversations.GetByID(ctx, *req.ConversationID)
		if err != nil {
			return nil, err
		}
		if conversation.ChatbotID != chatbotID {
			return nil, apperrors.ErrNotFound
		}
		return conversation, nil
	}

	conversation, err := s.conversations.FindActive(ctx, chatbotID, req.VisitorID)
	if err == nil {
		return conversation, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to resolve conversation: %w", err)
	}

	conversation, err = s.conversations.Create(ctx, chatbotID, req.VisitorID)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conversation, nil
}

// isFirstTurn reports whether the just-saved user message is the only one in
// the conversation. Computed once and threaded through the cache decisions.
func (s *chatService) isFirstTurn(ctx context.Context, conversation *models.Conversation, preview bool) bool {
	if preview || conversation == nil {
		return false
	}

	count, err := s.messages.Count(ctx, conversation.ID)
	if err != nil {
		s.logger.Warn("failed to count messages, skipping cache",
			zap.String("conversation_id", conversation.ID.String()),
			zap.Error(err))
		return false
	}
	return count == 1
}

// loadActions fetches the chatbot's active actions. A load failure disables
// tool calling for this turn rather than failing the response.
func (s *chatService) loadActions(ctx context.Context, chatbotID uuid.UUID) []*models.Action {
	actions, err := s.chatbots.ListActiveActions(ctx, chatbotID)
	if err != nil {
		s.logger.Warn("failed to load actions",
			zap.String("chatbot_id", chatbotID.String()),
			zap.Error(err))
		return nil
	}
	return actions
}

func (s *chatService) buildPrompt(ctx context.Context, chatbot *models.Chatbot, conversation *models.Conversation, req *ChatRequest) []llm.Message {
	system := chatbot.SystemPrompt
	if system == "" {
		system = defaultSystemPrompt
	}

	if kb := strings.TrimSpace(chatbot.KnowledgeBase); kb != "" {
		if len(kb) > knowledgeBaseCap {
			kb = kb[:knowledgeBaseCap]
		}
		system += "\n\nUse the following knowledge base to answer questions:\n" + kb
	}

	if faqBlock := s.buildFAQBlock(ctx, chatbot.ID); faqBlock != "" {
		system += "\n\nFrequently asked questions:\n" + faqBlock
	}

	prompt := []llm.Message{{Role: llm.RoleSystem, Content: system}}

	if conversation != nil {
		history, err := s.messages.ListRecent(ctx, conversation.ID, historyLimit)
		if err != nil {
			s.logger.Warn("failed to load history, using current message only",
				zap.String("conversation_id", conversation.ID.String()),
				zap.Error(err))
		}
		if len(history) > 0 {
			for _, m := range history {
				prompt = append(prompt, llm.Message{Role: m.Role, Content: m.Content})
			}
			return prompt
		}
	}

	return append(prompt, llm.Message{Role: llm.RoleUser, Content: req.Message})
}

// promptText flattens the prompt for token estimation.
func promptText(prompt []llm.Message) string {
	var b strings.Builder
	for _, m := range prompt {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

func (s *chatService) buildFAQBlock(ctx context.Context, chatbotID uuid.UUID) string {
	faqs, err := s.faqs.ListActive(ctx, chatbotID, faqLimit)
	if err != nil {
		s.logger.Warn("failed to load faqs", zap.Error(err))
		return ""
	}
	if len(faqs) == 0 {
		return ""
	}

	var b strings.Builder
	for _, f := range faqs {
		fmt.Fprintf(&b, "Q: %s\nA: %s\n", f.Question, f.Answer)
	}
	return strings.TrimSpace(b.String())
}

// runToolRoundTrip executes the model's tool calls and makes the second
// provider pass for the final natural-language answer. Tools are omitted from
// the second request so it always produces text.
func (s *chatService) runToolRoundTrip(ctx context.Context, chatbot *models.Chatbot, prompt []llm.Message, first *llm.CompletionResult, actions []*models.Action) (string, llm.Usage, string, error) {
	executor := s.executors.WithActions(actions)

	augmented := append([]llm.Message{}, prompt...)
	augmented = append(augmented, llm.Message{
		Role:      llm.RoleAssistant,
		Content:   first.Content,
		ToolCalls: first.ToolCalls,
	})

	for _, call := range first.ToolCalls {
		s.logger.Info("executing tool call",
			zap.String("chatbot_id", chatbot.ID.String()),
			zap.String("tool", call.Function.Name))

		result := executor.ExecuteTool(ctx, call.Function.Name, call.Function.Arguments)
		augmented = append(augmented, llm.Message{
			Role:       llm.RoleTool,
			Content:    result,
			ToolCallID: call.ID,
		})
	}

	model := chatbot.Model
	if model == "" {
		model = s.defaultModel
	}

	second, err := s.completions.Complete(ctx, &llm.CompletionRequest{
		Model:       model,
		Messages:    augmented,
		Temperature: chatbot.Temperature,
		MaxTokens:   chatbot.MaxTokens,
	})
	if err != nil {
		return "", llm.Usage{}, "", err
	}

	return second.Content, second.Usage, second.ModelUsed, nil
}
