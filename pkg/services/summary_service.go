package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voxtro/voxtro-engine/pkg/llm"
	"github.com/voxtro/voxtro-engine/pkg/models"
	"github.com/voxtro/voxtro-engine/pkg/repositories"
	"github.com/voxtro/voxtro-engine/pkg/retry"
	"github.com/voxtro/voxtro-engine/pkg/tokens"
)

const summaryPromptTemplate = `Analyze the following customer conversation transcript and respond with a JSON object containing these fields:
- summary: a short free-text summary of the conversation
- key_points: array of the most important points
- action_items: array of follow-ups the business should take
- sentiment: one of "positive", "neutral", "negative"
- sentiment_notes: short explanation of the sentiment
- conversation_outcome: how the conversation concluded
- topics_discussed: array of topics
- lead_info: object with name, email, phone, company, interest_level, notes for any contact details the customer shared, or null if none

Respond with JSON only.

Transcript:
%s`

// SummaryService ends a conversation, derives its structured summary, and
// opportunistically creates a lead when the transcript yields contact info.
type SummaryService interface {
	EndConversation(ctx context.Context, conversationID uuid.UUID) (*models.Summary, error)
}

type summaryService struct {
	chatbots      repositories.ChatbotRepository
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	leads         repositories.LeadRepository
	accountant    tokens.Accountant
	completions   llm.CompletionClient
	defaultModel  string
	logger        *zap.Logger
}

// SummaryServiceConfig holds the collaborators for a SummaryService.
type SummaryServiceConfig struct {
	Chatbots      repositories.ChatbotRepository
	Conversations repositories.ConversationRepository
	Messages      repositories.MessageRepository
	Leads         repositories.LeadRepository
	Accountant    tokens.Accountant
	Completions   llm.CompletionClient
	DefaultModel  string
}

// NewSummaryService creates a SummaryService.
func NewSummaryService(cfg *SummaryServiceConfig, logger *zap.Logger) SummaryService {
	return &summaryService{
		chatbots:      cfg.Chatbots,
		conversations: cfg.Conversations,
		messages:      cfg.Messages,
		leads:         cfg.Leads,
		accountant:    cfg.Accountant,
		completions:   cfg.Completions,
		defaultModel:  cfg.DefaultModel,
		logger:        logger.Named("summary"),
	}
}

var _ SummaryService = (*summaryService)(nil)

func (s *summaryService) EndConversation(ctx context.Context, conversationID uuid.UUID) (*models.Summary, error) {
	conversation, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	chatbot, err := s.chatbots.GetByID(ctx, conversation.ChatbotID)
	if err != nil {
		return nil, err
	}

	transcript, err := s.buildTranscript(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if err := s.conversations.End(ctx, conversationID); err != nil {
		return nil, err
	}

	if transcript == "" {
		return nil, nil
	}

	model := chatbot.Model
	if model == "" {
		model = s.defaultModel
	}

	result, err := s.completions.Complete(ctx, &llm.CompletionRequest{
		Model: model,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: fmt.Sprintf(summaryPromptTemplate, transcript)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate summary: %w", err)
	}

	s.accountant.Record(ctx, chatbot.ID, &conversationID, result.Usage.InputTokens, result.Usage.OutputTokens, result.ModelUsed, false)

	summary, err := llm.ParseJSONResponse[models.Summary](result.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse summary: %w", err)
	}

	err = retry.DoIfRetryable(ctx, retry.DefaultConfig(), func() error {
		return s.conversations.UpdateSummary(ctx, conversationID, &summary)
	})
	if err != nil {
		return nil, err
	}

	s.maybeCreateLead(ctx, chatbot, conversation, summary.LeadInfo)

	return &summary, nil
}

func (s *summaryService) buildTranscript(ctx context.Context, conversationID uuid.UUID) (string, error) {
	messages, err := s.messages.ListAll(ctx, conversationID)
	if err != nil {
		return "", fmt.Errorf("failed to load transcript: %w", err)
	}

	var b strings.Builder
	for _, m := range messages {
		if m.Role == llm.RoleTool {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	return strings.TrimSpace(b.String()), nil
}

// maybeCreateLead creates at most one lead per conversation. Lead creation is
// a post-response side effect; failures are logged and never propagated.
func (s *summaryService) maybeCreateLead(ctx context.Context, chatbot *models.Chatbot, conversation *models.Conversation, info *models.LeadInfo) {
	if !info.HasContact() {
		return
	}

	exists, err := s.leads.ExistsForConversation(ctx, conversation.ID)
	if err != nil {
		s.logger.Warn("failed to check existing lead",
			zap.String("conversation_id", conversation.ID.String()),
			zap.Error(err))
		return
	}
	if exists {
		return
	}

	lead := &models.Lead{
		TenantID:       chatbot.TenantID,
		ChatbotID:      chatbot.ID,
		ChatbotKind:    chatbot.Kind,
		ConversationID: conversation.ID,
		Name:           info.Name,
		Email:          info.Email,
		Phone:          info.Phone,
		Data:           models.JSONBMap{},
	}
	if info.Company != "" {
		lead.Data["company"] = info.Company
	}
	if info.InterestLevel != "" {
		lead.Data["interest_level"] = info.InterestLevel
	}
	if info.Notes != "" {
		lead.Data["notes"] = info.Notes
	}

	if err := s.leads.Insert(ctx, lead); err != nil {
		s.logger.Warn("failed to create lead",
			zap.String("conversation_id", conversation.ID.String()),
			zap.Error(err))
		return
	}

	s.logger.Info("lead created",
		zap.String("conversation_id", conversation.ID.String()),
		zap.String("chatbot_id", chatbot.ID.String()))
}
