package wallet

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/promohub/promohub-api/internal/pkg/money"
	"github.com/promohub/promohub-api/internal/pkg/response"
)

const (
	maxWebhookBody        = 65536
	metadataAffiliate     = "affiliate_email"
	metadataFeeCents      = "fee_cents"
	metadataPurpose       = "purpose"
	purposeWalletTopUp    = "wallet_topup"
	eventPaymentSucceeded = "payment_intent.succeeded"
)

// WebhookHandler turns Stripe payment confirmations into ledger top-ups.
type WebhookHandler struct {
	svc    *Service
	secret string
}

func NewWebhookHandler(svc *Service, secret string) *WebhookHandler {
	return &WebhookHandler{svc: svc, secret: secret}
}

// Stripe handles POST /webhooks/stripe
func (h *WebhookHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		response.BadRequest(w, "unreadable body")
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), h.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		log.Warn().Err(err).Msg("stripe webhook signature verification failed")
		response.BadRequest(w, "invalid signature")
		return
	}

	if event.Type != eventPaymentSucceeded {
		response.OK(w, map[string]interface{}{"received": true, "ignored": true})
		return
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		response.BadRequest(w, "invalid payment intent payload")
		return
	}
	if pi.Metadata[metadataPurpose] != purposeWalletTopUp {
		response.OK(w, map[string]interface{}{"received": true, "ignored": true})
		return
	}

	in, err := topUpFromPaymentIntent(&pi)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	topUp, created, err := h.svc.RecordTopUp(r.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, ErrReferenceConflict):
			response.Conflict(w, "payment reference already recorded with a different amount")
		case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrMissingAffiliate), errors.Is(err, ErrMissingReference):
			response.Error(w, http.StatusBadRequest, Code(err), err.Error())
		default:
			// Non-2xx makes Stripe redeliver.
			log.Error().Err(err).Str("payment_intent", pi.ID).Msg("failed to record wallet topup")
			response.InternalError(w)
		}
		return
	}

	response.OK(w, map[string]interface{}{
		"received": true,
		"created":  created,
		"topup_id": topUp.ID,
	})
}

func topUpFromPaymentIntent(pi *stripe.PaymentIntent) (TopUpInput, error) {
	fee := decimal.Zero
	if raw := pi.Metadata[metadataFeeCents]; raw != "" {
		cents, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || cents < 0 {
			return TopUpInput{}, errors.New("invalid fee_cents metadata")
		}
		fee = money.FromMinorUnits(cents)
	}
	return TopUpInput{
		AffiliateEmail:   pi.Metadata[metadataAffiliate],
		AmountGross:      money.FromMinorUnits(pi.Amount),
		Fee:              fee,
		PaymentReference: pi.ID,
	}, nil
}

func (h *WebhookHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/stripe", h.Stripe)
	return r
}
