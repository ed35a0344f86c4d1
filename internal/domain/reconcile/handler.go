package reconcile

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/promohub/promohub-api/internal/domain/livead"
	"github.com/promohub/promohub-api/internal/pkg/errorhandler"
	"github.com/promohub/promohub-api/internal/pkg/response"
)

type Handler struct {
	auditor  *Auditor
	recorder *Recorder
}

func NewHandler(auditor *Auditor, recorder *Recorder) *Handler {
	return &Handler{auditor: auditor, recorder: recorder}
}

// Audit handles POST /internal/reconciliation/audit
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	report, err := h.auditor.AuditAll(r.Context())
	if err != nil {
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "AUDIT_FAILED", "reconciliation audit failed", err)
		return
	}
	response.OK(w, report)
}

// LiveAd handles GET /internal/reconciliation/live-ads/{id}
func (h *Handler) LiveAd(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid live ad id")
		return
	}

	audit, err := h.auditor.AuditAd(r.Context(), id)
	if errors.Is(err, livead.ErrNotFound) {
		response.Error(w, http.StatusNotFound, livead.CodeNotFound, "live ad not found")
		return
	}
	if err != nil {
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "AUDIT_FAILED", "audit failed", err)
		return
	}
	events, err := h.recorder.ForLiveAd(r.Context(), id)
	if err != nil {
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "AUDIT_FAILED", "event lookup failed", err)
		return
	}

	response.OK(w, map[string]interface{}{
		"audit":  audit,
		"events": events,
	})
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/audit", h.Audit)
	r.Get("/live-ads/{id}", h.LiveAd)
	return r
}
