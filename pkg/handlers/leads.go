package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voxtro/voxtro-engine/pkg/repositories"
)

const defaultLeadPageSize = 50

// LeadsHandler exposes extracted leads to tenant dashboards.
type LeadsHandler struct {
	leads  repositories.LeadRepository
	logger *zap.Logger
}

// NewLeadsHandler creates a new LeadsHandler.
func NewLeadsHandler(leads repositories.LeadRepository, logger *zap.Logger) *LeadsHandler {
	return &LeadsHandler{leads: leads, logger: logger}
}

// RegisterRoutes registers the leads handler's routes on the given mux.
func (h *LeadsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/leads", h.List)
}

// List handles GET /api/leads?tenant_id=...&limit=... requests.
func (h *LeadsHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(r.URL.Query().Get("tenant_id"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "tenant_id must be a valid UUID")
		return
	}

	limit := defaultLeadPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}

	leads, err := h.leads.ListByTenant(r.Context(), tenantID, limit)
	if err != nil {
		h.logger.Error("failed to list leads", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "something went wrong")
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]interface{}{
		"leads": leads,
		"count": len(leads),
	}); err != nil {
		h.logger.Error("Failed to encode leads response", zap.Error(err))
	}
}
