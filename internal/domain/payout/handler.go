package payout

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/promohub/promohub-api/internal/middleware"
	"github.com/promohub/promohub-api/internal/pkg/errorhandler"
	"github.com/promohub/promohub-api/internal/pkg/response"
	"github.com/promohub/promohub-api/internal/pkg/validator"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Record handles POST /internal/conversions/{eventID}/payout
func (h *Handler) Record(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "eventID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, CodeMissingEventID, "a valid event id is required")
		return
	}

	res, err := h.svc.RecordConversionPayout(r.Context(), eventID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if res.AlreadyProcessed {
		response.OK(w, res)
		return
	}
	response.Created(w, res)
}

// Complete handles POST /internal/payouts/{id}/complete
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid payout id")
		return
	}

	var req CompleteRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	p, err := h.svc.Complete(r.Context(), id, req.TransferReference)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, p)
}

// List handles GET /wallet/payouts
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	email := middleware.GetEmail(r.Context())
	if email == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	items, err := h.svc.ListForAffiliate(r.Context(), email, ListFilter{Limit: limit, Offset: offset})
	if err != nil {
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, CodeInternal, "failed to list payouts", err)
		return
	}
	response.OK(w, items)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := Code(err)
	switch {
	case errors.Is(err, ErrMissingEventID), errors.Is(err, ErrMissingReference):
		response.Error(w, http.StatusBadRequest, code, err.Error())
	case errors.Is(err, ErrEventNotFound), errors.Is(err, ErrPayoutNotFound):
		response.Error(w, http.StatusNotFound, code, err.Error())
	case errors.Is(err, ErrAlreadyCompleted):
		response.Error(w, http.StatusConflict, code, err.Error())
	case IsBusinessError(err):
		response.Error(w, http.StatusUnprocessableEntity, code, err.Error())
	default:
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, CodeInternal, "payout processing failed", err)
	}
}

// InternalRoutes are mounted under /internal behind the cron secret.
func (h *Handler) InternalRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/conversions/{eventID}/payout", h.Record)
	r.Post("/payouts/{id}/complete", h.Complete)
	return r
}
