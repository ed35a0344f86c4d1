package wallet

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/promohub/promohub-api/internal/middleware"
	"github.com/promohub/promohub-api/internal/pkg/response"
	"github.com/promohub/promohub-api/internal/pkg/validator"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Balance handles GET /wallet/balance. The figure is advisory (cached for a few seconds).
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	email := middleware.GetEmail(r.Context())
	if email == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	available, err := h.svc.DisplayBalance(r.Context(), email)
	if err != nil {
		log.Error().Err(err).Str("affiliate_email", email).Msg("wallet balance read failed")
		response.Error(w, http.StatusServiceUnavailable, Code(err), "wallet balance is temporarily unavailable")
		return
	}

	response.OK(w, map[string]interface{}{"available_balance": available})
}

// TopUps handles GET /wallet/topups
func (h *Handler) TopUps(w http.ResponseWriter, r *http.Request) {
	email := middleware.GetEmail(r.Context())
	if email == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	items, err := h.svc.ListTopUps(r.Context(), email, parsePagination(r))
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, items)
}

// Deductions handles GET /wallet/deductions
func (h *Handler) Deductions(w http.ResponseWriter, r *http.Request) {
	email := middleware.GetEmail(r.Context())
	if email == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	items, err := h.svc.ListDeductions(r.Context(), email, parsePagination(r))
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, items)
}

// Debit handles POST /internal/wallet/debits
func (h *Handler) Debit(w http.ResponseWriter, r *http.Request) {
	var req DebitInput
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	d, bal, err := h.svc.Debit(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrMissingAffiliate):
			response.Error(w, http.StatusBadRequest, Code(err), err.Error())
		case errors.Is(err, ErrInsufficientFunds):
			response.ErrorWithDetails(w, http.StatusConflict, CodeInsufficientBalance, "insufficient wallet balance", map[string]string{
				"available_balance": bal.Available.String(),
				"requested_amount":  req.Amount.String(),
			})
		case errors.Is(err, ErrLedgerRead):
			response.Error(w, http.StatusServiceUnavailable, CodeLedgerReadFailure, "ledger is temporarily unavailable")
		default:
			response.InternalError(w)
		}
		return
	}

	response.Created(w, map[string]interface{}{
		"deduction": d,
		"wallet":    bal,
	})
}

// Routes returns the affiliate-facing wallet routes.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/balance", h.Balance)
	r.Get("/topups", h.TopUps)
	r.Get("/deductions", h.Deductions)
	return r
}

// InternalRoutes returns routes for trusted callers.
func (h *Handler) InternalRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/debits", h.Debit)
	return r
}

func parsePagination(r *http.Request) Pagination {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	return Pagination{Limit: limit, Offset: offset}.normalized()
}
