package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/promohub/promohub-api/internal/pkg/database"
)

const queryTimeout = 3 * time.Second

// Repository is the sqlx-backed ledger store. Rows are only ever inserted.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) SumSucceededTopUpsNet(ctx context.Context, affiliateEmail string) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var total decimal.Decimal
	err := r.db.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(amount_net), 0)
		FROM wallet_topups
		WHERE affiliate_email = $1 AND status = $2
	`, affiliateEmail, string(TopUpStatusSucceeded))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: sum topups: %v", ErrLedgerRead, err)
	}
	return total, nil
}

func (r *Repository) SumDeductions(ctx context.Context, affiliateEmail string) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var total decimal.Decimal
	err := r.db.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(amount), 0)
		FROM wallet_deductions
		WHERE affiliate_email = $1
	`, affiliateEmail)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: sum deductions: %v", ErrLedgerRead, err)
	}
	return total, nil
}

func (r *Repository) SumSettlementDeductions(ctx context.Context, liveAdID uuid.UUID) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var total decimal.Decimal
	err := r.db.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(amount), 0)
		FROM wallet_deductions
		WHERE live_ad_id = $1 AND source = $2
	`, liveAdID, string(SourceSettlement))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: sum ad deductions: %v", ErrLedgerRead, err)
	}
	return total, nil
}

func (r *Repository) InsertTopUp(ctx context.Context, t *TopUp) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	err := r.db.GetContext(ctx, t, `
		INSERT INTO wallet_topups (affiliate_email, amount_gross, fee, amount_net, payment_reference, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, affiliate_email, amount_gross, fee, amount_net, payment_reference, status, created_at
	`, t.AffiliateEmail, t.AmountGross, t.Fee, t.AmountNet, t.PaymentReference, string(t.Status))
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicateReference
		}
		return fmt.Errorf("%w: insert topup: %v", ErrLedgerWrite, err)
	}
	return nil
}

func (r *Repository) GetTopUpByReference(ctx context.Context, reference string) (*TopUp, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var t TopUp
	err := r.db.GetContext(ctx, &t, `
		SELECT id, affiliate_email, amount_gross, fee, amount_net, payment_reference, status, created_at
		FROM wallet_topups
		WHERE payment_reference = $1
	`, reference)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get topup: %v", ErrLedgerRead, err)
	}
	return &t, nil
}

func (r *Repository) InsertDeduction(ctx context.Context, d *Deduction) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	err := r.db.GetContext(ctx, d, `
		INSERT INTO wallet_deductions (affiliate_email, business_id, offer_id, live_ad_id, source, amount, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, affiliate_email, business_id, offer_id, live_ad_id, source, amount, description, created_at
	`, d.AffiliateEmail, d.BusinessID, d.OfferID, d.LiveAdID, string(d.Source), d.Amount, d.Description)
	if err != nil {
		return fmt.Errorf("%w: insert deduction: %v", ErrLedgerWrite, err)
	}
	return nil
}

func (r *Repository) ListTopUps(ctx context.Context, affiliateEmail string, p Pagination) ([]TopUp, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	p = p.normalized()
	out := make([]TopUp, 0)
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, affiliate_email, amount_gross, fee, amount_net, payment_reference, status, created_at
		FROM wallet_topups
		WHERE affiliate_email = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, affiliateEmail, p.Limit, p.Offset)
	if err != nil {
		return nil, fmt.Errorf("%w: list topups: %v", ErrLedgerRead, err)
	}
	return out, nil
}

func (r *Repository) ListDeductions(ctx context.Context, affiliateEmail string, p Pagination) ([]Deduction, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	p = p.normalized()
	out := make([]Deduction, 0)
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, affiliate_email, business_id, offer_id, live_ad_id, source, amount, description, created_at
		FROM wallet_deductions
		WHERE affiliate_email = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, affiliateEmail, p.Limit, p.Offset)
	if err != nil {
		return nil, fmt.Errorf("%w: list deductions: %v", ErrLedgerRead, err)
	}
	return out, nil
}
