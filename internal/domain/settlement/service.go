package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/promohub/promohub-api/internal/domain/livead"
	"github.com/promohub/promohub-api/internal/domain/reconcile"
	"github.com/promohub/promohub-api/internal/domain/wallet"
	"github.com/promohub/promohub-api/internal/pkg/logger"
	"github.com/promohub/promohub-api/internal/pkg/stripeconnect"
)

type AdStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*livead.LiveAd, error)
	ClaimTransfer(ctx context.Context, id uuid.UUID, expected, next decimal.Decimal) (bool, error)
	RevertClaim(ctx context.Context, id uuid.UUID, claimed, original decimal.Decimal) (bool, error)
}

type Ledger interface {
	AvailableBalance(ctx context.Context, affiliateEmail string) (wallet.Balance, error)
	AppendDeduction(ctx context.Context, d *wallet.Deduction) error
}

type PayoutAccounts interface {
	PayoutAccount(ctx context.Context, businessID uuid.UUID) (string, error)
}

type Transferrer interface {
	CreateTransfer(ctx context.Context, req stripeconnect.TransferRequest) (*stripeconnect.Transfer, error)
}

type Reconciler interface {
	Record(ctx context.Context, liveAdID uuid.UUID, kind reconcile.Kind, expected, actual decimal.Decimal, detail string)
}

// Service settles an ad's unpaid spend against the affiliate wallet.
type Service struct {
	ads       AdStore
	ledger    Ledger
	accounts  PayoutAccounts
	transfers Transferrer
	recon     Reconciler
	currency  string
}

// NewService wires the engine. transfers may be nil when the payment platform
// is not configured; settlements then stop after the ledger write.
func NewService(ads AdStore, ledger Ledger, accounts PayoutAccounts, transfers Transferrer, recon Reconciler, currency string) *Service {
	if currency == "" {
		currency = "usd"
	}
	return &Service{
		ads:       ads,
		ledger:    ledger,
		accounts:  accounts,
		transfers: transfers,
		recon:     recon,
		currency:  strings.ToLower(currency),
	}
}

// Settle runs one settlement attempt for the ad. The compare-and-swap on
// spend_transferred is the only serialization point between concurrent calls.
func (s *Service) Settle(ctx context.Context, liveAdID uuid.UUID) (*Result, error) {
	if liveAdID == uuid.Nil {
		return nil, ErrMissingLiveAdID
	}
	ctx = logger.With(ctx, "live_ad_id", liveAdID.String())
	l := logger.FromContext(ctx)

	// 1. load and compute unpaid
	ad, err := s.ads.GetByID(ctx, liveAdID)
	if err != nil {
		return nil, err
	}
	if err := requireFields(ad); err != nil {
		return nil, err
	}

	transferredBefore := ad.SpendTransferred
	unpaidBefore := ad.Unpaid()
	if !unpaidBefore.IsPositive() {
		return &Result{
			LiveAdID:      ad.ID,
			Success:       true,
			ChargedAmount: decimal.Zero,
			UnpaidBefore:  unpaidBefore,
			UnpaidAfter:   unpaidBefore,
		}, nil
	}

	// 2. balance check; a read failure aborts
	bal, err := s.ledger.AvailableBalance(ctx, ad.AffiliateEmail)
	if err != nil {
		return nil, err
	}
	if !bal.Available.IsPositive() || bal.Available.LessThan(unpaidBefore) {
		return nil, &InsufficientBalanceError{UnpaidBefore: unpaidBefore, AvailableBalance: bal.Available}
	}

	// 3. claim
	transferredAfter := transferredBefore.Add(unpaidBefore)
	claimed, err := s.ads.ClaimTransfer(ctx, ad.ID, transferredBefore, transferredAfter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClaimFailed, err)
	}
	if !claimed {
		return s.lostClaim(ctx, ad.ID, unpaidBefore)
	}

	// 4. deduction
	charged := unpaidBefore
	d := &wallet.Deduction{
		AffiliateEmail: ad.AffiliateEmail,
		BusinessID:     ad.BusinessID,
		OfferID:        ad.OfferID,
		LiveAdID:       uuid.NullUUID{UUID: ad.ID, Valid: true},
		Source:         wallet.SourceSettlement,
		Amount:         charged,
		Description:    fmt.Sprintf("Ad spend settlement for live ad %s", ad.ID),
	}
	if err := s.ledger.AppendDeduction(ctx, d); err != nil {
		// 5. reverse claim, record either way
		s.rollback(ctx, ad.ID, transferredBefore, transferredAfter, err)
		return nil, fmt.Errorf("%w: %v", ErrDeductionInsert, err)
	}

	res := &Result{
		LiveAdID:      ad.ID,
		Success:       true,
		ChargedAmount: charged,
		UnpaidBefore:  unpaidBefore,
		UnpaidAfter:   ad.Spend.Sub(transferredAfter),
		Wallet: &WalletState{
			AvailableBalanceBefore: bal.Available,
			AvailableBalanceAfter:  bal.Available.Sub(charged),
		},
		DeductionID: &d.ID,
	}
	l.Info().
		Str("affiliate_email", ad.AffiliateEmail).
		Str("charged", charged.String()).
		Str("spend_transferred", transferredAfter.String()).
		Msg("ad spend settled to ledger")

	// 6. payout account
	account, err := s.accounts.PayoutAccount(ctx, ad.BusinessID.UUID)
	if err != nil {
		l.Warn().Err(err).Msg("payout account lookup failed")
		res.Note = "payout account lookup failed; wallet charged, transfer skipped"
		res.TransferError = err.Error()
		return res, nil
	}
	if account == "" {
		res.Note = NoteNoPayoutAccount
		return res, nil
	}

	// 7. transfer; failure never rolls back the ledger
	if s.transfers == nil {
		res.TransferError = "payment platform not configured"
		return res, nil
	}
	tr, err := s.transfers.CreateTransfer(ctx, stripeconnect.TransferRequest{
		Destination:    account,
		Amount:         charged,
		Currency:       s.currency,
		IdempotencyKey: IdempotencyKey(ad.ID, transferredAfter),
		Metadata: map[string]string{
			"live_ad_id":      ad.ID.String(),
			"affiliate_email": ad.AffiliateEmail,
			"deduction_id":    d.ID.String(),
		},
	})
	if err != nil {
		l.Error().Err(err).Str("destination", account).Msg("settlement transfer failed; ledger kept")
		res.TransferError = err.Error()
		return res, nil
	}
	res.Transfer = tr
	return res, nil
}

// IdempotencyKey is stable for one claim: a retry for the same claimed total
// maps to the same transfer.
func IdempotencyKey(liveAdID uuid.UUID, transferredAfter decimal.Decimal) string {
	return fmt.Sprintf("settle:%s:%s", liveAdID, transferredAfter.StringFixed(2))
}

func (s *Service) lostClaim(ctx context.Context, id uuid.UUID, unpaidBefore decimal.Decimal) (*Result, error) {
	current, err := s.ads.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info().Msg("settlement claim lost to concurrent attempt")
	return &Result{
		LiveAdID:       id,
		Success:        true,
		ChargedAmount:  decimal.Zero,
		UnpaidBefore:   unpaidBefore,
		UnpaidAfter:    current.Unpaid(),
		AlreadySettled: true,
	}, nil
}

func (s *Service) rollback(ctx context.Context, id uuid.UUID, before, after decimal.Decimal, cause error) {
	l := logger.FromContext(ctx)
	reverted, err := s.ads.RevertClaim(ctx, id, after, before)
	switch {
	case err == nil && reverted:
		l.Warn().Err(cause).Msg("deduction insert failed; claim reverted")
		s.record(ctx, id, reconcile.KindClaimReverted, before, before,
			fmt.Sprintf("deduction insert failed (%v); spend_transferred reverted to %s", cause, before))
	default:
		detail := fmt.Sprintf("deduction insert failed (%v); revert from %s to %s did not apply", cause, after, before)
		if err != nil {
			detail += fmt.Sprintf(": %v", err)
		}
		l.Error().Err(cause).Msg("deduction insert failed and claim revert did not apply")
		s.record(ctx, id, reconcile.KindClaimWithoutDeduction, before, after, detail)
	}
}

func (s *Service) record(ctx context.Context, id uuid.UUID, kind reconcile.Kind, expected, actual decimal.Decimal, detail string) {
	if s.recon != nil {
		s.recon.Record(ctx, id, kind, expected, actual, detail)
	}
}

func requireFields(ad *livead.LiveAd) error {
	var missing []string
	if strings.TrimSpace(ad.AffiliateEmail) == "" {
		missing = append(missing, "affiliate_email")
	}
	if !ad.BusinessID.Valid {
		missing = append(missing, "business_id")
	}
	if !ad.OfferID.Valid {
		missing = append(missing, "offer_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingFields, strings.Join(missing, ", "))
	}
	return nil
}

// AsInsufficient unwraps the before-state from an insufficient-balance error.
func AsInsufficient(err error) (*InsufficientBalanceError, bool) {
	var ib *InsufficientBalanceError
	ok := errors.As(err, &ib)
	return ib, ok
}
