package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/voxtro/voxtro-engine/pkg/apperrors"
	"github.com/voxtro/voxtro-engine/pkg/cache"
	"github.com/voxtro/voxtro-engine/pkg/llm"
	"github.com/voxtro/voxtro-engine/pkg/models"
)

type chatFixture struct {
	chatbots      *mockChatbotRepo
	conversations *mockConversationRepo
	messages      *mockMessageRepo
	faqs          *mockFAQRepo
	cache         *mockResponseCache
	accountant    *mockAccountant
	completions   *llm.MockCompletionClient
	executor      *llm.MockToolExecutor

	service ChatService
}

func newChatFixture(chatbot *models.Chatbot) *chatFixture {
	f := &chatFixture{
		chatbots: &mockChatbotRepo{
			getByIDFunc: func(ctx context.Context, id uuid.UUID) (*models.Chatbot, error) {
				if chatbot != nil && id == chatbot.ID {
					return chatbot, nil
				}
				return nil, apperrors.ErrNotFound
			},
		},
		conversations: &mockConversationRepo{},
		messages:      &mockMessageRepo{},
		faqs:          &mockFAQRepo{},
		cache:         &mockResponseCache{},
		accountant:    &mockAccountant{},
		completions:   &llm.MockCompletionClient{},
		executor:      &llm.MockToolExecutor{},
	}

	f.service = NewChatService(&ChatServiceConfig{
		Chatbots:      f.chatbots,
		Conversations: f.conversations,
		Messages:      f.messages,
		FAQs:          f.faqs,
		ResponseCache: f.cache,
		Accountant:    f.accountant,
		Completions:   f.completions,
		Executors:     &mockExecutorFactory{executor: f.executor},
		DefaultModel:  "gpt-4o-mini",
	}, zap.NewNop())

	return f
}

func testChatbot() *models.Chatbot {
	return &models.Chatbot{
		ID:           uuid.New(),
		TenantID:     uuid.New(),
		Name:         "Support Bot",
		Kind:         models.ChatbotKindWeb,
		SystemPrompt: "You are a support agent.",
		Model:        "gpt-4o-mini",
		Temperature:  0.7,
		MaxTokens:    500,
		Active:       true,
	}
}

func TestHandleMessageUnknownChatbot(t *testing.T) {
	f := newChatFixture(nil)

	_, err := f.service.HandleMessage(context.Background(), &ChatRequest{
		ChatbotID: uuid.New(),
		VisitorID: "v1",
		Message:   "hello",
	})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestHandleMessageInactiveChatbot(t *testing.T) {
	chatbot := testChatbot()
	chatbot.Active = false
	f := newChatFixture(chatbot)

	_, err := f.service.HandleMessage(context.Background(), &ChatRequest{
		ChatbotID: chatbot.ID,
		VisitorID: "v1",
		Message:   "hello",
	})
	assert.ErrorIs(t, err, apperrors.ErrAssistantInactive)
}

func TestHandleMessagePreviewAllowsInactive(t *testing.T) {
	chatbot := testChatbot()
	chatbot.Active = false
	f := newChatFixture(chatbot)

	resp, err := f.service.HandleMessage(context.Background(), &ChatRequest{
		ChatbotID: chatbot.ID,
		VisitorID: "v1",
		Message:   "hello",
		Preview:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, PreviewConversationID, resp.ConversationID)
}

func TestHandleMessagePreviewPersistsNothing(t *testing.T) {
	chatbot := testChatbot()
	chatbot.CacheEnabled = true
	f := newChatFixture(chatbot)

	resp, err := f.service.HandleMessage(context.Background(), &ChatRequest{
		ChatbotID: chatbot.ID,
		VisitorID: "v1",
		Message:   "hello",
		Preview:   true,
	})
	require.NoError(t, err)

	assert.Equal(t, PreviewConversationID, resp.ConversationID)
	assert.Empty(t, f.messages.inserted)
	assert.Equal(t, 0, f.conversations.createCalls)
	// Preview never touches the cache.
	assert.Equal(t, 0, f.cache.lookupCalls)
	assert.Equal(t, 0, f.cache.storeCalls)
}

func TestHandleMessageFirstTurnFlow(t *testing.T) {
	chatbot := testChatbot()
	chatbot.CacheEnabled = true
	chatbot.CacheDurationHours = 168
	f := newChatFixture(chatbot)

	f.completions.CompleteFunc = func(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResult, error) {
		return &llm.CompletionResult{
			Content:   "We are open 9-5.",
			Usage:     llm.Usage{InputTokens: 50, OutputTokens: 12},
			ModelUsed: req.Model,
		}, nil
	}

	resp, err := f.service.HandleMessage(context.Background(), &ChatRequest{
		ChatbotID: chatbot.ID,
		VisitorID: "v1",
		Message:   "What are your hours?",
	})
	require.NoError(t, err)

	assert.Equal(t, "We are open 9-5.", resp.Message)
	assert.Equal(t, 1, f.conversations.createCalls)
	assert.Len(t, f.messages.insertedByRole(llm.RoleUser), 1)
	assert.Len(t, f.messages.insertedByRole(llm.RoleAssistant), 1)

	// Usage recorded from provider-reported counts.
	assert.Equal(t, 1, f.accountant.recordCalls)
	assert.Equal(t, 50, f.accountant.recordedInput)
	assert.Equal(t, 12, f.accountant.recordedOutput)

	// First turn with caching enabled stores the answer.
	assert.Equal(t, 1, f.cache.storeCalls)
	assert.Equal(t, "What are your hours?", f.cache.storedQ)
	assert.Equal(t, "We are open 9-5.", f.cache.storedResp)
	assert.Equal(t, 168, f.cache.storedTTL)
}

func TestHandleMessageCacheHitSkipsProvider(t *testing.T) {
	chatbot := testChatbot()
	chatbot.CacheEnabled = true
	f := newChatFixture(chatbot)

	f.cache.lookupFunc = func(ctx context.Context, chatbotID uuid.UUID, question string) *cache.CachedAnswer {
		return &cache.CachedAnswer{Response: "We are open 9-5.", Model: "gpt-4o-mini"}
	}

	resp, err := f.service.HandleMessage(context.Background(), &ChatRequest{
		ChatbotID: chatbot.ID,
		VisitorID: "v2",
		Message:   "What are your hours?",
	})
	require.NoError(t, err)

	assert.True(t, resp.CacheHit)
	assert.Equal(t, "We are open 9-5.", resp.Message)
	// Zero provider calls, no accounting, no second store.
	assert.Empty(t, f.completions.Calls)
	assert.Equal(t, 0, f.accountant.recordCalls)
	assert.Equal(t, 0, f.cache.storeCalls)
	// New conversation created for this visitor; cached answer persisted.
	assert.Equal(t, 1, f.conversations.createCalls)
	assert.Len(t, f.messages.insertedByRole(llm.RoleAssistant), 1)
	assert.Equal(t, "We are open 9-5.", f.messages.insertedByRole(llm.RoleAssistant)[0].Content)
}

func TestHandleMessageCacheNotConsultedMidConversation(t *testing.T) {
	chatbot := testChatbot()
	chatbot.CacheEnabled = true
	f := newChatFixture(chatbot)

	convID := uuid.New()
	f.conversations.findActiveFunc = func(ctx context.Context, chatbotID uuid.UUID, visitorID string) (*models.Conversation, error) {
		return &models.Conversation{ID: convID, ChatbotID: chatbotID, VisitorID: visitorID, Status: models.ConversationActive}, nil
	}
	// Conversation already has history plus the just-saved user message.
	f.messages.countFunc = func(ctx context.Context, conversationID uuid.UUID) (int, error) {
		return 3, nil
	}
	f.messages.listRecentFunc = func(ctx context.Context, conversationID uuid.UUID, limit int) ([]*models.Message, error) {
		return []*models.Message{
			historyMessage(convID, llm.RoleUser, "hi", -2*time.Minute),
			historyMessage(convID, llm.RoleAssistant, "hello!", -time.Minute),
			historyMessage(convID, llm.RoleUser, "what are your hours?", 0),
		}, nil
	}

	_, err := f.service.HandleMessage(context.Background(), &ChatRequest{
		ChatbotID: chatbot.ID,
		VisitorID: "v1",
		Message:   "what are your hours?",
	})
	require.NoError(t, err)

	assert.Equal(t, 0, f.cache.lookupCalls)
	assert.Equal(t, 0, f.cache.storeCalls)
}

func TestHandleMessageHistoryBoundsPrompt(t *testing.T) {
	chatbot := testChatbot()
	f := newChatFixture(chatbot)

	convID := uuid.New()
	f.conversations.findActiveFunc = func(ctx context.Context, chatbotID uuid.UUID, visitorID string) (*models.Conversation, error) {
		return &models.Conversation{ID: convID, ChatbotID: chatbotID, Status: models.ConversationActive}, nil
	}

	var gotLimit int
	f.messages.listRecentFunc = func(ctx context.Context, conversationID uuid.UUID, limit int) ([]*models.Message, error) {
		gotLimit = limit
		return []*models.Message{
			historyMessage(convID, llm.RoleUser, "hi", -time.Minute),
			historyMessage(convID, llm.RoleUser, "still there?", 0),
		}, nil
	}

	_, err := f.service.HandleMessage(context.Background(), &ChatRequest{
		ChatbotID: chatbot.ID,
		VisitorID: "v1",
		Message:   "still there?",
	})
	require.NoError(t, err)

	assert.Equal(t, 20, gotLimit)
	require.Len(t, f.completions.Calls, 1)
	prompt := f.completions.Calls[0].Messages
	require.Len(t, prompt, 3)
	assert.Equal(t, llm.RoleSystem, prompt[0].Role)
	assert.Equal(t, "hi", prompt[1].Content)
	assert.Equal(t, "still there?", prompt[2].Content)
}

func TestHandleMessageSystemPromptIncludesKnowledgeAndFAQs(t *testing.T) {
	chatbot := testChatbot()
	chatbot.KnowledgeBase = "We sell garden tools."
	f := newChatFixture(chatbot)

	f.faqs.listActiveFunc = func(ctx context.Context, chatbotID uuid.UUID, limit int) ([]*models.FAQ, error) {
		return []*models.FAQ{
			{Question: "Do you ship?", Answer: "Yes, worldwide."},
		}, nil
	}

	_, err := f.service.HandleMessage(context.Background(), &ChatRequest{
		ChatbotID: chatbot.ID,
		VisitorID: "v1",
		Message:   "hi",
	})
	require.NoError(t, err)

	require.Len(t, f.completions.Calls, 1)
	system := f.completions.Calls[0].Messages[0]
	assert.Equal(t, llm.RoleSystem, system.Role)
	assert.Contains(t, system.Content, "You are a support agent.")
	assert.Contains(t, system.Content, "We sell garden tools.")
	assert.Contains(t, system.Content, "Q: Do you ship?")
	assert.Contains(t, system.Content, "A: Yes, worldwide.")
}

func TestHandleMessageKnowledgeBaseCapped(t *testing.T) {
	chatbot := testChatbot()
	big := make([]byte, 20000)
	for i := range big {
		big[i] = 'k'
	}
	chatbot.KnowledgeBase = string(big)
	f := newChatFixture(chatbot)

	_, err := f.service.HandleMessage(context.Background(), &ChatRequest{
		ChatbotID: chatbot.ID,
		VisitorID: "v1",
		Message:   "hi",
	})
	require.NoError(t, err)

	system := f.completions.Calls[0].Messages[0].Content
	assert.Less(t, len(system), 10000)
}

func TestHandleMessageTokenLimitGate(t *testing.T) {
	chatbot := testChatbot()
	chatbot.DailyTokenLimit = 1000
	chatbot.MonthlyTokenLimit = 10000
	f := newChatFixture(chatbot)

	f.accountant.checkLimitsFunc = func(ctx context.Context, chatbotID uuid.UUID, dailyLimit, monthlyLimit int) *apperrors.TokenLimitError {
		return &apperrors.TokenLimitError{Message: "Daily token limit reached. Please try again tomorrow."}
	}

	_, err := f.service.HandleMessage(context.Background(), &ChatRequest{
		ChatbotID: chatbot.ID,
		VisitorID: "v1",
		Message:   "hello",
	})

	assert.ErrorIs(t, err, apperrors.ErrTokenLimitReached)
	// Gate fires before any model spend.
	assert.Empty(t, f.completions.Calls)
}

func TestHandleMessageNoLimitsSkipsCheck(t *testing.T) {
	chatbot := testChatbot()
	f := newChatFixture(chatbot)

	_, err := f.service.HandleMessage(context.Background(), &ChatRequest{
		ChatbotID: chatbot.ID,
		VisitorID: "v1",
		Message:   "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, f.accountant.checkLimitsCalls)
}

func TestHandleMessageSingleLimitSkipsCheck(t *testing.T) {
	chatbot := testChatbot()
	chatbot.DailyTokenLimit = 1000
	f := newChatFixture(chatbot)

	_, err := f.service.HandleMessage(context.Background(), &ChatRequest{
		ChatbotID: chatbot.ID,
		VisitorID: "v1",
		Message:   "hello",
	})
	require.NoError(t, err)
	// Limits are enforced as a pair; one configured limit alone is unset.
	assert.Equal(t, 0, f.accountant.checkLimitsCalls)
}

func TestHandleMessagePreviewSkipsLimitCheck(t *testing.T) {
	chatbot := testChatbot()
	chatbot.DailyTokenLimit = 1000
	chatbot.MonthlyTokenLimit = 10000
	f := newChatFixture(chatbot)

	_, err := f.service.HandleMessage(context.Background(), &ChatRequest{
		ChatbotID: chatbot.ID,
		VisitorID: "v1",
		Message:   "hello",
		Preview:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, f.accountant.checkLimitsCalls)
}

func TestHandleMessageToolRoundTrip(t *testing.T) {
	chatbot := testChatbot()
	f := newChatFixture(chatbot)

	f.chatbots.listActiveActionsFunc = func(ctx context.Context, chatbotID uuid.UUID) ([]*models.Action, error) {
		return []*models.Action{
			{Name: "check_order", Description: "Look up an order", Kind: models.ActionKindAPI, Method: "GET"},
		}, nil
	}
	f.executor.ExecuteToolFunc = func(ctx context.Context, name string, arguments string) string {
		return `{"status": "shipped"}`
	}

	call := 0
	f.completions.CompleteFunc = func(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResult, error) {
		call++
		if call == 1 {
			return &llm.CompletionResult{
				ToolCalls: []llm.ToolCall{
					{ID: "call_1", Type: "function", Function: llm.ToolCallFunc{Name: "check_order", Arguments: `{"order_id": "42"}`}},
				},
				Usage:     llm.Usage{InputTokens: 100, OutputTokens: 20},
				ModelUsed: req.Model,
			}, nil
		}
		return &llm.CompletionResult{
			Content:   "Your order has shipped.",
			Usage:     llm.Usage{InputTokens: 140, OutputTokens: 15},
			ModelUsed: req.Model,
		}, nil
	}

	resp, err := f.service.HandleMessage(context.Background(), &ChatRequest{
		ChatbotID: chatbot.ID,
		VisitorID: "v1",
		Message:   "Where is order 42?",
	})
	require.NoError(t, err)

	assert.Equal(t, "Your order has shipped.", resp.Message)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "check_order", resp.ToolCalls[0].Function.Name)

	// Exactly two provider calls: tools on the first, omitted on the second.
	require.Len(t, f.completions.Calls, 2)
	assert.NotEmpty(t, f.completions.Calls[0].Tools)
	assert.Empty(t, f.completions.Calls[1].Tools)

	// Executor invoked once with the parsed arguments.
	assert.Equal(t, 1, f.executor.ExecuteToolCalls)
	assert.Equal(t, "check_order", f.executor.LastName)
	assert.Equal(t, `{"order_id": "42"}`, f.executor.LastArguments)

	// Second prompt carries the assistant tool-call message and one tool result.
	second := f.completions.Calls[1].Messages
	assistantMsg := second[len(second)-2]
	toolMsg := second[len(second)-1]
	assert.Equal(t, llm.RoleAssistant, assistantMsg.Role)
	require.Len(t, assistantMsg.ToolCalls, 1)
	assert.Equal(t, llm.RoleTool, toolMsg.Role)
	assert.Equal(t, "call_1", toolMsg.ToolCallID)
	assert.Equal(t, `{"status": "shipped"}`, toolMsg.Content)

	// Usage is the sum of both calls.
	assert.Equal(t, 240, f.accountant.recordedInput)
	assert.Equal(t, 35, f.accountant.recordedOutput)
}

func TestHandleMessageUnresolvedToolStillCompletes(t *testing.T) {
	chatbot := testChatbot()
	f := newChatFixture(chatbot)

	f.executor.ExecuteToolFunc = func(ctx context.Context, name string, arguments string) string {
		return `Action "vanished" not found`
	}

	call := 0
	f.completions.CompleteFunc = func(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResult, error) {
		call++
		if call == 1 {
			return &llm.CompletionResult{
				ToolCalls: []llm.ToolCall{
					{ID: "call_1", Type: "function", Function: llm.ToolCallFunc{Name: "vanished", Arguments: `{}`}},
				},
				ModelUsed: req.Model,
			}, nil
		}
		return &llm.CompletionResult{Content: "I could not run that action.", ModelUsed: req.Model}, nil
	}

	resp, err := f.service.HandleMessage(context.Background(), &ChatRequest{
		ChatbotID: chatbot.ID,
		VisitorID: "v1",
		Message:   "do the thing",
	})
	require.NoError(t, err)
	assert.Equal(t, "I could not run that action.", resp.Message)

	second := f.completions.Calls[1].Messages
	assert.Contains(t, second[len(second)-1].Content, "not found")
}

func TestHandleMessageEmptyContentDefaults(t *testing.T) {
	chatbot := testChatbot()
	f := newChatFixture(chatbot)

	f.completions.CompleteFunc = func(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResult, error) {
		return &llm.CompletionResult{Content: "", ModelUsed: req.Model}, nil
	}

	resp, err := f.service.HandleMessage(context.Background(), &ChatRequest{
		ChatbotID: chatbot.ID,
		VisitorID: "v1",
		Message:   "hello",
	})
	require.NoError(t, err)

	assert.Equal(t, "Processing...", resp.Message)
	// Empty content is never persisted or cached.
	assert.Empty(t, f.messages.insertedByRole(llm.RoleAssistant))
	assert.Equal(t, 0, f.cache.storeCalls)
}

func TestHandleMessageCapacityExceededPropagates(t *testing.T) {
	chatbot := testChatbot()
	f := newChatFixture(chatbot)

	f.completions.CompleteFunc = func(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResult, error) {
		return nil, apperrors.ErrCapacityExceeded
	}

	_, err := f.service.HandleMessage(context.Background(), &ChatRequest{
		ChatbotID: chatbot.ID,
		VisitorID: "v1",
		Message:   "hello",
	})
	assert.ErrorIs(t, err, apperrors.ErrCapacityExceeded)
	assert.Equal(t, 0, f.accountant.recordCalls)
}

func TestHandleMessageReusesActiveConversation(t *testing.T) {
	chatbot := testChatbot()
	f := newChatFixture(chatbot)

	convID := uuid.New()
	f.conversations.findActiveFunc = func(ctx context.Context, chatbotID uuid.UUID, visitorID string) (*models.Conversation, error) {
		return &models.Conversation{ID: convID, ChatbotID: chatbotID, VisitorID: visitorID, Status: models.ConversationActive}, nil
	}

	resp, err := f.service.HandleMessage(context.Background(), &ChatRequest{
		ChatbotID: chatbot.ID,
		VisitorID: "v1",
		Message:   "hello again",
	})
	require.NoError(t, err)

	assert.Equal(t, convID.String(), resp.ConversationID)
	assert.Equal(t, 0, f.conversations.createCalls)
}

func TestHandleMessageClientSuppliedConversationWins(t *testing.T) {
	chatbot := testChatbot()
	f := newChatFixture(chatbot)

	suppliedID := uuid.New()
	f.conversations.getByIDFunc = func(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
		if id == suppliedID {
			return &models.Conversation{ID: suppliedID, ChatbotID: chatbot.ID, VisitorID: "v1", Status: models.ConversationActive}, nil
		}
		return nil, apperrors.ErrNotFound
	}
	// The visitor also has a different active conversation; the supplied id
	// must win over the visitor lookup.
	f.conversations.findActiveFunc = func(ctx context.Context, chatbotID uuid.UUID, visitorID string) (*models.Conversation, error) {
		return &models.Conversation{ID: uuid.New(), ChatbotID: chatbotID, VisitorID: visitorID, Status: models.ConversationActive}, nil
	}

	resp, err := f.service.HandleMessage(context.Background(), &ChatRequest{
		ChatbotID:      chatbot.ID,
		ConversationID: &suppliedID,
		VisitorID:      "v1",
		Message:        "continuing our chat",
	})
	require.NoError(t, err)

	assert.Equal(t, suppliedID.String(), resp.ConversationID)
	assert.Equal(t, 0, f.conversations.createCalls)
	require.Len(t, f.messages.inserted, 2)
	assert.Equal(t, suppliedID, f.messages.inserted[0].ConversationID)
}

func TestHandleMessageClientSuppliedConversationWrongChatbot(t *testing.T) {
	chatbot := testChatbot()
	f := newChatFixture(chatbot)

	suppliedID := uuid.New()
	f.conversations.getByIDFunc = func(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
		return &models.Conversation{ID: suppliedID, ChatbotID: uuid.New(), Status: models.ConversationActive}, nil
	}

	_, err := f.service.HandleMessage(context.Background(), &ChatRequest{
		ChatbotID:      chatbot.ID,
		ConversationID: &suppliedID,
		VisitorID:      "v1",
		Message:        "hello",
	})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Empty(t, f.completions.Calls)
}

func TestHandleMessageEstimatesMissingUsage(t *testing.T) {
	chatbot := testChatbot()
	f := newChatFixture(chatbot)

	f.completions.CompleteFunc = func(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResult, error) {
		return &llm.CompletionResult{
			Content:   "We are open nine to five.",
			ModelUsed: req.Model,
		}, nil
	}

	_, err := f.service.HandleMessage(context.Background(), &ChatRequest{
		ChatbotID: chatbot.ID,
		VisitorID: "v1",
		Message:   "What are your hours?",
	})
	require.NoError(t, err)

	// A response without a usage block still produces a non-zero usage
	// event, estimated from the prompt and the answer text.
	assert.Equal(t, 1, f.accountant.recordCalls)
	assert.Greater(t, f.accountant.recordedInput, 0)
	assert.Equal(t, len("We are open nine to five.")/4, f.accountant.recordedOutput)
}

func TestHandleMessageFallsBackToDefaultModel(t *testing.T) {
	chatbot := testChatbot()
	chatbot.Model = ""
	f := newChatFixture(chatbot)

	_, err := f.service.HandleMessage(context.Background(), &ChatRequest{
		ChatbotID: chatbot.ID,
		VisitorID: "v1",
		Message:   "hello",
	})
	require.NoError(t, err)

	require.Len(t, f.completions.Calls, 1)
	assert.Equal(t, "gpt-4o-mini", f.completions.Calls[0].Model)
}
