package payout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/promohub/promohub-api/internal/domain/realtime"
	"github.com/promohub/promohub-api/internal/pkg/logger"
	"github.com/promohub/promohub-api/internal/pkg/money"
)

type Store interface {
	GetEvent(ctx context.Context, id uuid.UUID) (*ConversionEvent, error)
	GetAttribution(ctx context.Context, campaignID uuid.UUID) (*Attribution, error)
	GetBySourceEvent(ctx context.Context, eventID uuid.UUID) (*Payout, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Payout, error)
	Insert(ctx context.Context, p *Payout) error
	Complete(ctx context.Context, id uuid.UUID, transferRef string) (*Payout, error)
	ListByAffiliate(ctx context.Context, affiliateEmail string, f ListFilter) ([]Payout, error)
}

type Notifier interface {
	Notify(email string, event realtime.Event)
}

type Service struct {
	store    Store
	notifier Notifier
}

// NewService creates the payout processor. notifier may be nil.
func NewService(store Store, notifier Notifier) *Service {
	return &Service{store: store, notifier: notifier}
}

// Commission is gross * percent / 100 rounded to cents.
func Commission(gross, percent decimal.Decimal) decimal.Decimal {
	return money.Round(gross.Mul(percent).Div(decimal.NewFromInt(100)))
}

// RecordConversionPayout creates the pending payout for a conversion event.
// Calling it again for the same event returns the existing row.
func (s *Service) RecordConversionPayout(ctx context.Context, eventID uuid.UUID) (*Result, error) {
	if eventID == uuid.Nil {
		return nil, ErrMissingEventID
	}
	ctx = logger.With(ctx, "event_id", eventID.String())
	l := logger.FromContext(ctx)

	existing, err := s.store.GetBySourceEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &Result{OK: true, AffiliatePayout: existing, AlreadyProcessed: true}, nil
	}

	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.EventType != EventTypeConversion {
		return nil, fmt.Errorf("%w: got %q", ErrNotConversion, event.EventType)
	}
	if !event.Amount.Valid || !event.Amount.Decimal.IsPositive() {
		return nil, ErrMissingAmount
	}
	if !event.CampaignID.Valid {
		return nil, ErrCampaignNotFound
	}

	attr, err := s.store.GetAttribution(ctx, event.CampaignID.UUID)
	if err != nil {
		return nil, err
	}
	if !attr.OfferID.Valid || !attr.OfferExists {
		return nil, ErrOfferNotFound
	}
	if !attr.CommissionPercent.Valid || !attr.CommissionPercent.Decimal.IsPositive() {
		return nil, ErrInvalidCommission
	}

	amount := Commission(event.Amount.Decimal, attr.CommissionPercent.Decimal)
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: commission rounds to %s", ErrInvalidCommission, amount.StringFixed(2))
	}

	p := &Payout{
		AffiliateEmail: strings.ToLower(strings.TrimSpace(attr.AffiliateEmail)),
		Amount:         amount,
		Status:         StatusPending,
		SourceEventID:  eventID,
	}
	if err := s.store.Insert(ctx, p); err != nil {
		if !errors.Is(err, ErrDuplicateEvent) {
			return nil, err
		}
		// A concurrent call inserted first.
		existing, lookupErr := s.store.GetBySourceEvent(ctx, eventID)
		if lookupErr != nil {
			return nil, lookupErr
		}
		return &Result{OK: true, AffiliatePayout: existing, AlreadyProcessed: true}, nil
	}

	l.Info().
		Str("payout_id", p.ID.String()).
		Str("affiliate_email", p.AffiliateEmail).
		Str("amount", p.Amount.StringFixed(2)).
		Msg("conversion payout recorded")

	if s.notifier != nil {
		s.notifier.Notify(p.AffiliateEmail, realtime.Event{
			Type: realtime.EventPayoutRecorded,
			Data: map[string]string{"payout_id": p.ID.String(), "amount": p.Amount.StringFixed(2)},
		})
	}

	return &Result{OK: true, AffiliatePayout: p}, nil
}

// Complete marks a pending payout as transferred. Repeating the call with the
// same reference is a no-op.
func (s *Service) Complete(ctx context.Context, payoutID uuid.UUID, transferRef string) (*Payout, error) {
	transferRef = strings.TrimSpace(transferRef)
	if transferRef == "" {
		return nil, ErrMissingReference
	}

	p, err := s.store.Complete(ctx, payoutID, transferRef)
	if err != nil {
		return nil, err
	}
	if p != nil {
		logger.FromContext(ctx).Info().Str("payout_id", payoutID.String()).Str("transfer_reference", transferRef).Msg("payout completed")
		return p, nil
	}

	current, err := s.store.GetByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if current.Status == StatusCompleted && current.TransferRef() == transferRef {
		return current, nil
	}
	return nil, ErrAlreadyCompleted
}

func (s *Service) ListForAffiliate(ctx context.Context, affiliateEmail string, f ListFilter) ([]Payout, error) {
	return s.store.ListByAffiliate(ctx, strings.ToLower(strings.TrimSpace(affiliateEmail)), f.normalized())
}
