package settlement

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/promohub/promohub-api/internal/domain/livead"
	"github.com/promohub/promohub-api/internal/domain/wallet"
	"github.com/promohub/promohub-api/internal/pkg/errorhandler"
	"github.com/promohub/promohub-api/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Settle handles POST /internal/settlements/live-ads/{id}
func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, CodeMissingLiveAdID, "a valid live ad id is required")
		return
	}

	res, err := h.svc.Settle(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, res)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	code := Code(err)

	if ib, ok := AsInsufficient(err); ok {
		response.ErrorWithDetails(w, http.StatusConflict, code, "insufficient wallet balance", map[string]string{
			"unpaid_before":     ib.UnpaidBefore.String(),
			"available_balance": ib.AvailableBalance.String(),
		})
		return
	}

	switch {
	case errors.Is(err, ErrMissingLiveAdID):
		response.Error(w, http.StatusBadRequest, code, err.Error())
	case errors.Is(err, livead.ErrNotFound):
		response.Error(w, http.StatusNotFound, code, "live ad not found")
	case errors.Is(err, ErrMissingFields):
		response.Error(w, http.StatusUnprocessableEntity, code, err.Error())
	case errors.Is(err, wallet.ErrLedgerRead):
		errorhandler.HandleError(ctx, w, http.StatusServiceUnavailable, code, "ledger is temporarily unavailable", err)
	default:
		errorhandler.HandleError(ctx, w, http.StatusInternalServerError, code, "settlement failed", err)
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/live-ads/{id}", h.Settle)
	return r
}
