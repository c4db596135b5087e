package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/voxtro/voxtro-engine/pkg/apperrors"
	"github.com/voxtro/voxtro-engine/pkg/cache"
	"github.com/voxtro/voxtro-engine/pkg/llm"
	"github.com/voxtro/voxtro-engine/pkg/models"
)

type mockChatbotRepo struct {
	getByIDFunc           func(ctx context.Context, id uuid.UUID) (*models.Chatbot, error)
	listActiveActionsFunc func(ctx context.Context, chatbotID uuid.UUID) ([]*models.Action, error)
}

func (m *mockChatbotRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Chatbot, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockChatbotRepo) ListActiveActions(ctx context.Context, chatbotID uuid.UUID) ([]*models.Action, error) {
	if m.listActiveActionsFunc != nil {
		return m.listActiveActionsFunc(ctx, chatbotID)
	}
	return nil, nil
}

type mockConversationRepo struct {
	findActiveFunc    func(ctx context.Context, chatbotID uuid.UUID, visitorID string) (*models.Conversation, error)
	createFunc        func(ctx context.Context, chatbotID uuid.UUID, visitorID string) (*models.Conversation, error)
	getByIDFunc       func(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	updateSummaryFunc func(ctx context.Context, id uuid.UUID, summary *models.Summary) error
	endFunc           func(ctx context.Context, id uuid.UUID) error

	createCalls        int
	updateSummaryCalls int
	endCalls           int
	lastSummary        *models.Summary
}

func (m *mockConversationRepo) FindActive(ctx context.Context, chatbotID uuid.UUID, visitorID string) (*models.Conversation, error) {
	if m.findActiveFunc != nil {
		return m.findActiveFunc(ctx, chatbotID, visitorID)
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockConversationRepo) Create(ctx context.Context, chatbotID uuid.UUID, visitorID string) (*models.Conversation, error) {
	m.createCalls++
	if m.createFunc != nil {
		return m.createFunc(ctx, chatbotID, visitorID)
	}
	return &models.Conversation{
		ID:        uuid.New(),
		ChatbotID: chatbotID,
		VisitorID: visitorID,
		Status:    models.ConversationActive,
	}, nil
}

func (m *mockConversationRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockConversationRepo) UpdateSummary(ctx context.Context, id uuid.UUID, summary *models.Summary) error {
	m.updateSummaryCalls++
	m.lastSummary = summary
	if m.updateSummaryFunc != nil {
		return m.updateSummaryFunc(ctx, id, summary)
	}
	return nil
}

func (m *mockConversationRepo) End(ctx context.Context, id uuid.UUID) error {
	m.endCalls++
	if m.endFunc != nil {
		return m.endFunc(ctx, id)
	}
	return nil
}

type mockMessageRepo struct {
	insertFunc     func(ctx context.Context, msg *models.Message) error
	listRecentFunc func(ctx context.Context, conversationID uuid.UUID, limit int) ([]*models.Message, error)
	listAllFunc    func(ctx context.Context, conversationID uuid.UUID) ([]*models.Message, error)
	countFunc      func(ctx context.Context, conversationID uuid.UUID) (int, error)

	inserted []*models.Message
}

func (m *mockMessageRepo) Insert(ctx context.Context, msg *models.Message) error {
	m.inserted = append(m.inserted, msg)
	if m.insertFunc != nil {
		return m.insertFunc(ctx, msg)
	}
	return nil
}

func (m *mockMessageRepo) ListRecent(ctx context.Context, conversationID uuid.UUID, limit int) ([]*models.Message, error) {
	if m.listRecentFunc != nil {
		return m.listRecentFunc(ctx, conversationID, limit)
	}
	return nil, nil
}

func (m *mockMessageRepo) ListAll(ctx context.Context, conversationID uuid.UUID) ([]*models.Message, error) {
	if m.listAllFunc != nil {
		return m.listAllFunc(ctx, conversationID)
	}
	return nil, nil
}

func (m *mockMessageRepo) Count(ctx context.Context, conversationID uuid.UUID) (int, error) {
	if m.countFunc != nil {
		return m.countFunc(ctx, conversationID)
	}
	return len(m.inserted), nil
}

// insertedByRole returns the inserted messages with the given role.
func (m *mockMessageRepo) insertedByRole(role string) []*models.Message {
	var out []*models.Message
	for _, msg := range m.inserted {
		if msg.Role == role {
			out = append(out, msg)
		}
	}
	return out
}

type mockFAQRepo struct {
	listActiveFunc func(ctx context.Context, chatbotID uuid.UUID, limit int) ([]*models.FAQ, error)
}

func (m *mockFAQRepo) ListActive(ctx context.Context, chatbotID uuid.UUID, limit int) ([]*models.FAQ, error) {
	if m.listActiveFunc != nil {
		return m.listActiveFunc(ctx, chatbotID, limit)
	}
	return nil, nil
}

type mockLeadRepo struct {
	existsFunc func(ctx context.Context, conversationID uuid.UUID) (bool, error)
	insertFunc func(ctx context.Context, lead *models.Lead) error

	existsCalls int
	inserted    []*models.Lead
}

func (m *mockLeadRepo) ExistsForConversation(ctx context.Context, conversationID uuid.UUID) (bool, error) {
	m.existsCalls++
	if m.existsFunc != nil {
		return m.existsFunc(ctx, conversationID)
	}
	return false, nil
}

func (m *mockLeadRepo) Insert(ctx context.Context, lead *models.Lead) error {
	m.inserted = append(m.inserted, lead)
	if m.insertFunc != nil {
		return m.insertFunc(ctx, lead)
	}
	return nil
}

func (m *mockLeadRepo) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]*models.Lead, error) {
	return m.inserted, nil
}

type mockResponseCache struct {
	lookupFunc func(ctx context.Context, chatbotID uuid.UUID, question string) *cache.CachedAnswer

	lookupCalls int
	storeCalls  int
	storedQ     string
	storedResp  string
	storedModel string
	storedTTL   int
}

func (m *mockResponseCache) Lookup(ctx context.Context, chatbotID uuid.UUID, question string) *cache.CachedAnswer {
	m.lookupCalls++
	if m.lookupFunc != nil {
		return m.lookupFunc(ctx, chatbotID, question)
	}
	return nil
}

func (m *mockResponseCache) Store(ctx context.Context, chatbotID uuid.UUID, question, response, model string, ttlHours int) {
	m.storeCalls++
	m.storedQ = question
	m.storedResp = response
	m.storedModel = model
	m.storedTTL = ttlHours
}

type mockAccountant struct {
	checkLimitsFunc func(ctx context.Context, chatbotID uuid.UUID, dailyLimit, monthlyLimit int) *apperrors.TokenLimitError

	recordCalls      int
	checkLimitsCalls int
	recordedInput    int
	recordedOutput   int
	recordedModel    string
}

func (m *mockAccountant) Record(ctx context.Context, chatbotID uuid.UUID, conversationID *uuid.UUID, inputTokens, outputTokens int, model string, cacheHit bool) {
	m.recordCalls++
	m.recordedInput = inputTokens
	m.recordedOutput = outputTokens
	m.recordedModel = model
}

func (m *mockAccountant) CheckLimits(ctx context.Context, chatbotID uuid.UUID, dailyLimit, monthlyLimit int) *apperrors.TokenLimitError {
	m.checkLimitsCalls++
	if m.checkLimitsFunc != nil {
		return m.checkLimitsFunc(ctx, chatbotID, dailyLimit, monthlyLimit)
	}
	return nil
}

type mockExecutorFactory struct {
	executor *llm.MockToolExecutor
}

func (m *mockExecutorFactory) WithActions(actions []*models.Action) llm.ToolExecutor {
	return m.executor
}

func historyMessage(conversationID uuid.UUID, role, content string, offset time.Duration) *models.Message {
	return &models.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now().Add(offset),
	}
}
