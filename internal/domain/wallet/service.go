package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/promohub/promohub-api/internal/pkg/money"
)

// Store is the ledger persistence the service depends on.
type Store interface {
	SumSucceededTopUpsNet(ctx context.Context, affiliateEmail string) (decimal.Decimal, error)
	SumDeductions(ctx context.Context, affiliateEmail string) (decimal.Decimal, error)
	SumSettlementDeductions(ctx context.Context, liveAdID uuid.UUID) (decimal.Decimal, error)
	InsertTopUp(ctx context.Context, t *TopUp) error
	GetTopUpByReference(ctx context.Context, reference string) (*TopUp, error)
	InsertDeduction(ctx context.Context, d *Deduction) error
	ListTopUps(ctx context.Context, affiliateEmail string, p Pagination) ([]TopUp, error)
	ListDeductions(ctx context.Context, affiliateEmail string, p Pagination) ([]Deduction, error)
}

type Service struct {
	store Store
	cache BalanceCache
}

// NewService creates the wallet service. cache may be nil.
func NewService(store Store, cache BalanceCache) *Service {
	return &Service{store: store, cache: cache}
}

// NormalizeEmail is the canonical form of an affiliate identity.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// AvailableBalance re-derives the balance from ledger sums. A read failure is
// returned as ErrLedgerRead and must never be read as a zero balance.
func (s *Service) AvailableBalance(ctx context.Context, affiliateEmail string) (Balance, error) {
	email := NormalizeEmail(affiliateEmail)
	if email == "" {
		return Balance{}, ErrMissingAffiliate
	}

	topUps, err := s.store.SumSucceededTopUpsNet(ctx, email)
	if err != nil {
		return Balance{}, asReadFailure(err)
	}
	deductions, err := s.store.SumDeductions(ctx, email)
	if err != nil {
		return Balance{}, asReadFailure(err)
	}

	return Balance{
		AffiliateEmail:  email,
		TotalTopUpsNet:  topUps,
		TotalDeductions: deductions,
		Available:       topUps.Sub(deductions),
	}, nil
}

// DisplayBalance serves the dashboard figure through the advisory cache.
func (s *Service) DisplayBalance(ctx context.Context, affiliateEmail string) (decimal.Decimal, error) {
	email := NormalizeEmail(affiliateEmail)
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, email); ok {
			return cached, nil
		}
	}

	var (
		gen       int64
		cacheable bool
	)
	if s.cache != nil {
		gen, cacheable = s.cache.Generation(ctx, email)
	}
	bal, err := s.AvailableBalance(ctx, email)
	if err != nil {
		return decimal.Zero, err
	}
	if cacheable {
		s.cache.SetIfGeneration(ctx, email, gen, bal.Available)
	}
	return bal.Available, nil
}

// RecordTopUp stores a succeeded funding payment. Replaying the same payment
// reference with the same amount is a no-op and returns created=false.
func (s *Service) RecordTopUp(ctx context.Context, in TopUpInput) (*TopUp, bool, error) {
	email := NormalizeEmail(in.AffiliateEmail)
	if email == "" {
		return nil, false, ErrMissingAffiliate
	}
	ref := strings.TrimSpace(in.PaymentReference)
	if ref == "" {
		return nil, false, ErrMissingReference
	}
	if !money.Positive(in.AmountGross) || in.Fee.Sign() < 0 || in.Fee.GreaterThanOrEqual(in.AmountGross) {
		return nil, false, ErrInvalidAmount
	}

	t := &TopUp{
		AffiliateEmail:   email,
		AmountGross:      money.Round(in.AmountGross),
		Fee:              money.Round(in.Fee),
		PaymentReference: ref,
		Status:           TopUpStatusSucceeded,
	}
	t.AmountNet = t.AmountGross.Sub(t.Fee)

	err := s.store.InsertTopUp(ctx, t)
	if errors.Is(err, ErrDuplicateReference) {
		existing, getErr := s.store.GetTopUpByReference(ctx, ref)
		if getErr != nil {
			return nil, false, getErr
		}
		if existing == nil || !existing.AmountGross.Equal(t.AmountGross) || existing.AffiliateEmail != email {
			return nil, false, ErrReferenceConflict
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	s.invalidate(ctx, email)
	log.Info().
		Str("affiliate_email", email).
		Str("amount_net", t.AmountNet.String()).
		Str("payment_reference", ref).
		Msg("wallet topup recorded")
	return t, true, nil
}

// AppendDeduction writes a deduction without a balance check. The settlement
// engine calls it after its own balance check and claim. An unset source is
// a settlement charge.
func (s *Service) AppendDeduction(ctx context.Context, d *Deduction) error {
	if d.Source == "" {
		d.Source = SourceSettlement
	}
	d.AffiliateEmail = NormalizeEmail(d.AffiliateEmail)
	if d.AffiliateEmail == "" {
		return ErrMissingAffiliate
	}
	if !money.Positive(d.Amount) {
		return ErrInvalidAmount
	}
	if err := s.store.InsertDeduction(ctx, d); err != nil {
		return err
	}
	s.invalidate(ctx, d.AffiliateEmail)
	return nil
}

// Debit is the manual debit path: it checks the derived balance, then appends.
// A live ad tag is kept for reference but never counts as settled spend.
func (s *Service) Debit(ctx context.Context, in DebitInput) (*Deduction, Balance, error) {
	if !money.Positive(in.Amount) {
		return nil, Balance{}, ErrInvalidAmount
	}
	bal, err := s.AvailableBalance(ctx, in.AffiliateEmail)
	if err != nil {
		return nil, Balance{}, err
	}
	amount := money.Round(in.Amount)
	if bal.Available.LessThan(amount) {
		return nil, bal, ErrInsufficientFunds
	}

	d := &Deduction{
		AffiliateEmail: bal.AffiliateEmail,
		BusinessID:     nullUUID(in.BusinessID),
		OfferID:        nullUUID(in.OfferID),
		LiveAdID:       nullUUID(in.LiveAdID),
		Source:         SourceManual,
		Amount:         amount,
		Description:    strings.TrimSpace(in.Description),
	}
	if err := s.AppendDeduction(ctx, d); err != nil {
		return nil, bal, err
	}

	bal.TotalDeductions = bal.TotalDeductions.Add(amount)
	bal.Available = bal.Available.Sub(amount)
	log.Info().
		Str("affiliate_email", d.AffiliateEmail).
		Str("amount", amount.String()).
		Str("deduction_id", d.ID.String()).
		Msg("manual wallet debit applied")
	return d, bal, nil
}

// DeductedForLiveAd sums the settlement deductions tagged to one ad.
func (s *Service) DeductedForLiveAd(ctx context.Context, liveAdID uuid.UUID) (decimal.Decimal, error) {
	total, err := s.store.SumSettlementDeductions(ctx, liveAdID)
	if err != nil {
		return decimal.Zero, asReadFailure(err)
	}
	return total, nil
}

func (s *Service) ListTopUps(ctx context.Context, affiliateEmail string, p Pagination) ([]TopUp, error) {
	return s.store.ListTopUps(ctx, NormalizeEmail(affiliateEmail), p.normalized())
}

func (s *Service) ListDeductions(ctx context.Context, affiliateEmail string, p Pagination) ([]Deduction, error) {
	return s.store.ListDeductions(ctx, NormalizeEmail(affiliateEmail), p.normalized())
}

func (s *Service) invalidate(ctx context.Context, email string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, email)
	}
}

func asReadFailure(err error) error {
	if errors.Is(err, ErrLedgerRead) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrLedgerRead, err)
}
