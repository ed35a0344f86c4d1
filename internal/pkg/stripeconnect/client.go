package stripeconnect

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/transfer"

	"github.com/promohub/promohub-api/internal/pkg/errorhandler"
	"github.com/promohub/promohub-api/internal/pkg/money"
	"github.com/promohub/promohub-api/internal/pkg/validator"
)

var (
	ErrNotConfigured   = errors.New("stripe secret key is not configured")
	ErrInvalidTransfer = errors.New("transfer requires destination, positive amount and a valid currency")
)

// TransferRequest moves money from the platform balance to a connected account.
type TransferRequest struct {
	Destination    string
	Amount         decimal.Decimal
	Currency       string
	IdempotencyKey string
	Metadata       map[string]string
}

// Transfer is the part of the Stripe object callers report back.
type Transfer struct {
	ID          string          `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Destination string          `json:"destination"`
}

type Config struct {
	SecretKey string
	// APIURL overrides the Stripe endpoint, used against stripe-mock and in tests.
	APIURL     string
	Timeout    time.Duration
	MaxRetries int64
}

type Client struct {
	transfers transfer.Client
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, ErrNotConfigured
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		LeveledLogger:     zerologAdapter{},
		MaxNetworkRetries: stripe.Int64(cfg.MaxRetries),
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripe.String(strings.TrimRight(cfg.APIURL, "/"))
	}

	return &Client{
		transfers: transfer.Client{
			B:   stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
			Key: cfg.SecretKey,
		},
	}, nil
}

// CreateTransfer creates a Connect transfer. The idempotency key makes a
// retried call for the same settlement return the original transfer.
func (c *Client) CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	if strings.TrimSpace(req.Destination) == "" || !money.Positive(req.Amount) {
		return nil, ErrInvalidTransfer
	}
	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	if err := validator.ValidateVar(currency, "currency"); err != nil {
		return nil, fmt.Errorf("%w: currency %q", ErrInvalidTransfer, req.Currency)
	}

	params := &stripe.TransferParams{
		Amount:      stripe.Int64(money.ToMinorUnits(req.Amount)),
		Currency:    stripe.String(currency),
		Destination: stripe.String(req.Destination),
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	tr, err := c.transfers.New(params)
	if err != nil {
		status := 0
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) {
			status = stripeErr.HTTPStatusCode
		}
		errorhandler.LogExternalServiceError(ctx, "stripe", "/v1/transfers", status, err, "")
		return nil, describe(err)
	}

	out := &Transfer{
		ID:       tr.ID,
		Amount:   money.FromMinorUnits(tr.Amount),
		Currency: string(tr.Currency),
	}
	if tr.Destination != nil {
		out.Destination = tr.Destination.ID
	}
	return out, nil
}

func describe(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		return fmt.Errorf("stripe transfer failed: status=%d code=%s: %s", se.HTTPStatusCode, se.Code, se.Msg)
	}
	return fmt.Errorf("stripe transfer failed: %w", err)
}

// zerologAdapter routes stripe-go's internal logging into the service log.
type zerologAdapter struct{}

func (zerologAdapter) Debugf(format string, v ...interface{}) {
	log.Debug().Str("component", "stripe").Msgf(format, v...)
}

func (zerologAdapter) Infof(format string, v ...interface{}) {
	log.Debug().Str("component", "stripe").Msgf(format, v...)
}

func (zerologAdapter) Warnf(format string, v ...interface{}) {
	log.Warn().Str("component", "stripe").Msgf(format, v...)
}

func (zerologAdapter) Errorf(format string, v ...interface{}) {
	log.Error().Str("component", "stripe").Msgf(format, v...)
}
