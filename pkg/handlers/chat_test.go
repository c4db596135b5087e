package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/voxtro/voxtro-engine/pkg/apperrors"
	"github.com/voxtro/voxtro-engine/pkg/models"
	"github.com/voxtro/voxtro-engine/pkg/services"
)

type mockChatService struct {
	handleFunc func(ctx context.Context, req *services.ChatRequest) (*services.ChatResponse, error)
	lastReq    *services.ChatRequest
}

func (m *mockChatService) HandleMessage(ctx context.Context, req *services.ChatRequest) (*services.ChatResponse, error) {
	m.lastReq = req
	if m.handleFunc != nil {
		return m.handleFunc(ctx, req)
	}
	return &services.ChatResponse{ConversationID: uuid.NewString(), Message: "hello"}, nil
}

type mockSummaryService struct {
	endFunc func(ctx context.Context, conversationID uuid.UUID) (*models.Summary, error)
}

func (m *mockSummaryService) EndConversation(ctx context.Context, conversationID uuid.UUID) (*models.Summary, error) {
	if m.endFunc != nil {
		return m.endFunc(ctx, conversationID)
	}
	return &models.Summary{Summary: "done"}, nil
}

func newChatTestServer(chat *mockChatService, summary *mockSummaryService) *httptest.Server {
	mux := http.NewServeMux()
	NewChatHandler(chat, summary, zap.NewNop()).RegisterRoutes(mux)
	return httptest.NewServer(mux)
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	encoded, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(encoded))
	require.NoError(t, err)
	return resp
}

func TestHandleMessageSuccess(t *testing.T) {
	chat := &mockChatService{}
	server := newChatTestServer(chat, &mockSummaryService{})
	defer server.Close()

	chatbotID := uuid.NewString()
	resp := postJSON(t, server.URL+"/api/chat", map[string]interface{}{
		"chatbot_id": chatbotID,
		"visitor_id": "v1",
		"message":    "hi there",
	})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body services.ChatResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "hello", body.Message)

	require.NotNil(t, chat.lastReq)
	assert.Equal(t, chatbotID, chat.lastReq.ChatbotID.String())
	assert.Equal(t, "v1", chat.lastReq.VisitorID)
	assert.False(t, chat.lastReq.Preview)
}

func TestHandleMessageValidation(t *testing.T) {
	server := newChatTestServer(&mockChatService{}, &mockSummaryService{})
	defer server.Close()

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"bad uuid", map[string]interface{}{"chatbot_id": "nope", "visitor_id": "v1", "message": "hi"}},
		{"missing message", map[string]interface{}{"chatbot_id": uuid.NewString(), "visitor_id": "v1"}},
		{"missing visitor outside preview", map[string]interface{}{"chatbot_id": uuid.NewString(), "message": "hi"}},
		{"bad conversation uuid", map[string]interface{}{"chatbot_id": uuid.NewString(), "visitor_id": "v1", "message": "hi", "conversation_id": "nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, server.URL+"/api/chat", tt.body)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestHandleMessageConversationIDThreadedThrough(t *testing.T) {
	chat := &mockChatService{}
	server := newChatTestServer(chat, &mockSummaryService{})
	defer server.Close()

	conversationID := uuid.New()
	resp := postJSON(t, server.URL+"/api/chat", map[string]interface{}{
		"chatbot_id":      uuid.NewString(),
		"visitor_id":      "v1",
		"message":         "hi again",
		"conversation_id": conversationID.String(),
	})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, chat.lastReq)
	require.NotNil(t, chat.lastReq.ConversationID)
	assert.Equal(t, conversationID, *chat.lastReq.ConversationID)
}

func TestHandleMessageOmittedConversationID(t *testing.T) {
	chat := &mockChatService{}
	server := newChatTestServer(chat, &mockSummaryService{})
	defer server.Close()

	resp := postJSON(t, server.URL+"/api/chat", map[string]interface{}{
		"chatbot_id": uuid.NewString(),
		"visitor_id": "v1",
		"message":    "hi",
	})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, chat.lastReq.ConversationID)
}

func TestHandleMessagePreviewWithoutVisitor(t *testing.T) {
	chat := &mockChatService{}
	server := newChatTestServer(chat, &mockSummaryService{})
	defer server.Close()

	resp := postJSON(t, server.URL+"/api/chat", map[string]interface{}{
		"chatbot_id":   uuid.NewString(),
		"message":      "hi",
		"preview_mode": true,
	})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, chat.lastReq.Preview)
}

func TestHandleMessageErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", apperrors.ErrNotFound, http.StatusNotFound, "not_found"},
		{"inactive", apperrors.ErrAssistantInactive, http.StatusNotFound, "not_found"},
		{"token limit", &apperrors.TokenLimitError{Message: "Daily token limit reached. Please try again tomorrow."}, http.StatusTooManyRequests, "limit_reached"},
		{"capacity", apperrors.ErrCapacityExceeded, http.StatusTooManyRequests, "capacity_exceeded"},
		{"generic", assert.AnError, http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat := &mockChatService{
				handleFunc: func(ctx context.Context, req *services.ChatRequest) (*services.ChatResponse, error) {
					return nil, tt.err
				},
			}
			server := newChatTestServer(chat, &mockSummaryService{})
			defer server.Close()

			resp := postJSON(t, server.URL+"/api/chat", map[string]interface{}{
				"chatbot_id": uuid.NewString(),
				"visitor_id": "v1",
				"message":    "hi",
			})
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.wantCode, body["error"])
		})
	}
}

func TestHandleMessageLimitMessagePassedThrough(t *testing.T) {
	chat := &mockChatService{
		handleFunc: func(ctx context.Context, req *services.ChatRequest) (*services.ChatResponse, error) {
			return nil, &apperrors.TokenLimitError{Message: "Monthly token limit reached. Please upgrade your plan."}
		},
	}
	server := newChatTestServer(chat, &mockSummaryService{})
	defer server.Close()

	resp := postJSON(t, server.URL+"/api/chat", map[string]interface{}{
		"chatbot_id": uuid.NewString(),
		"visitor_id": "v1",
		"message":    "hi",
	})
	defer resp.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Monthly token limit reached. Please upgrade your plan.", body["message"])
}

func TestEndConversation(t *testing.T) {
	server := newChatTestServer(&mockChatService{}, &mockSummaryService{})
	defer server.Close()

	conversationID := uuid.NewString()
	resp := postJSON(t, server.URL+"/api/conversations/"+conversationID+"/end", nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, conversationID, body["conversation_id"])
	assert.Equal(t, "ended", body["status"])
}

func TestEndConversationBadID(t *testing.T) {
	server := newChatTestServer(&mockChatService{}, &mockSummaryService{})
	defer server.Close()

	resp := postJSON(t, server.URL+"/api/conversations/not-a-uuid/end", nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
