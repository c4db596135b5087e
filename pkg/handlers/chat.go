package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voxtro/voxtro-engine/pkg/apperrors"
	"github.com/voxtro/voxtro-engine/pkg/services"
)

// ChatMessageRequest is the inbound payload for a visitor message.
type ChatMessageRequest struct {
	ChatbotID      string `json:"chatbot_id"`
	VisitorID      string `json:"visitor_id"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	PreviewMode    bool   `json:"preview_mode,omitempty"`
}

// ChatHandler handles the conversational endpoints.
type ChatHandler struct {
	chat    services.ChatService
	summary services.SummaryService
	logger  *zap.Logger
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(chat services.ChatService, summary services.SummaryService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, summary: summary, logger: logger}
}

// RegisterRoutes registers the chat handler's routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.HandleMessage)
	mux.HandleFunc("POST /api/conversations/{id}/end", h.EndConversation)
}

// HandleMessage handles POST /api/chat requests.
func (h *ChatHandler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req ChatMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	chatbotID, err := uuid.Parse(req.ChatbotID)
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "chatbot_id must be a valid UUID")
		return
	}
	if req.Message == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "message is required")
		return
	}
	if req.VisitorID == "" && !req.PreviewMode {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "visitor_id is required")
		return
	}

	var conversationID *uuid.UUID
	if req.ConversationID != "" {
		id, err := uuid.Parse(req.ConversationID)
		if err != nil {
			_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "conversation_id must be a valid UUID")
			return
		}
		conversationID = &id
	}

	resp, err := h.chat.HandleMessage(r.Context(), &services.ChatRequest{
		ChatbotID:      chatbotID,
		ConversationID: conversationID,
		VisitorID:      req.VisitorID,
		Message:        req.Message,
		Preview:        req.PreviewMode,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode chat response", zap.Error(err))
	}
}

// EndConversation handles POST /api/conversations/{id}/end requests.
// Ends the conversation, derives its summary, and extracts a lead if the
// transcript contains contact info.
func (h *ChatHandler) EndConversation(w http.ResponseWriter, r *http.Request) {
	conversationID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "conversation id must be a valid UUID")
		return
	}

	summary, err := h.summary.EndConversation(r.Context(), conversationID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]interface{}{
		"conversation_id": conversationID.String(),
		"status":          "ended",
		"summary":         summary,
	}); err != nil {
		h.logger.Error("Failed to encode end-conversation response", zap.Error(err))
	}
}

// writeServiceError maps service errors onto the HTTP boundary. Only
// not-found, capacity/limit, and fatal conditions reach the client; detail
// stays in the logs.
func (h *ChatHandler) writeServiceError(w http.ResponseWriter, err error) {
	var limitErr *apperrors.TokenLimitError

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		_ = ErrorResponse(w, http.StatusNotFound, "not_found", "assistant or conversation not found")
	case errors.Is(err, apperrors.ErrAssistantInactive):
		_ = ErrorResponse(w, http.StatusNotFound, "not_found", "assistant is inactive")
	case errors.As(err, &limitErr):
		_ = ErrorResponse(w, http.StatusTooManyRequests, "limit_reached", limitErr.Message)
	case errors.Is(err, apperrors.ErrCapacityExceeded):
		_ = ErrorResponse(w, http.StatusTooManyRequests, "capacity_exceeded", "All models are currently busy. Please try again shortly.")
	default:
		h.logger.Error("chat request failed", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "something went wrong")
	}
}
