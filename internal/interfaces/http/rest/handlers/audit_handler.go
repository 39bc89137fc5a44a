package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"arbiter-backend/internal/application/services"
	"arbiter-backend/internal/domain/audit"
	"arbiter-backend/pkg/api"
)

// AuditHandler serves the audit endpoints.
type AuditHandler struct {
	service *services.AuditService
	logger  *zap.Logger
}

// NewAuditHandler creates an audit handler.
func NewAuditHandler(service *services.AuditService, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{service: service, logger: logger}
}

// RunAudit handles POST /api/v1/audits. The audit runs synchronously;
// the response carries the full report whatever the verdict.
func (h *AuditHandler) RunAudit(w http.ResponseWriter, r *http.Request) {
	var req api.RunAuditRequest
	if err := decodeRequest(r, &req); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	report, err := h.service.RunAudit(r.Context(), services.RunAuditCommand{
		EvidenceCID:  req.EvidenceCID,
		ThreadID:     req.ThreadID,
		ExpectedRoot: req.ExpectedRoot,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusCreated, report)
}

// GetAudit handles GET /api/v1/audits/{auditID}.
func (h *AuditHandler) GetAudit(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.GetAudit(r.Context(), chi.URLParam(r, "auditID"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, report)
}

// ListThreadAudits handles GET /api/v1/threads/{threadID}/audits. A
// thread with no audits yields an empty list, not an error.
func (h *AuditHandler) ListThreadAudits(w http.ResponseWriter, r *http.Request) {
	reports, err := h.service.ListThreadAudits(r.Context(), chi.URLParam(r, "threadID"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if reports == nil {
		reports = []*audit.Report{}
	}
	api.Success(w, http.StatusOK, reports)
}
