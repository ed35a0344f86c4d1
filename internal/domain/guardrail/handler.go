package guardrail

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/promohub/promohub-api/internal/pkg/errorhandler"
	"github.com/promohub/promohub-api/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Sweep handles POST /internal/guardrail/sweep
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	dryRun := false
	if raw := r.URL.Query().Get("dry_run"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			response.BadRequest(w, "dry_run must be a boolean")
			return
		}
		dryRun = v
	}

	summary, err := h.svc.Sweep(r.Context(), dryRun)
	if err != nil {
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "SWEEP_FAILED", "guardrail sweep failed", err)
		return
	}
	response.OK(w, summary)
}

// Archived handles GET /internal/guardrail/sweeps?key=...
func (h *Handler) Archived(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if !strings.HasPrefix(key, archivePrefix+"/") || !strings.HasSuffix(key, ".json") {
		response.BadRequest(w, "key must name an archived sweep")
		return
	}

	summary, err := h.svc.Archived(r.Context(), key)
	switch {
	case errors.Is(err, ErrArchiveNotFound):
		response.NotFound(w, "archived sweep not found")
	case errors.Is(err, ErrArchiveDisabled):
		response.ServiceUnavailable(w, "ARCHIVE_DISABLED", err.Error())
	case err != nil:
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "ARCHIVE_READ_FAILED", "failed to read archived sweep", err)
	default:
		response.OK(w, summary)
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/sweep", h.Sweep)
	r.Get("/sweeps", h.Archived)
	return r
}
