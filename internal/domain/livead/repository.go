package livead

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const queryTimeout = 3 * time.Second

const selectColumns = `
	id, affiliate_email, business_id, offer_id, campaign_id, meta_ad_id, meta_ad_account_id,
	spend, spend_transferred, clicks, status, billing_state, last_synced_at, created_at, updated_at`

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*LiveAd, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var ad LiveAd
	err := r.db.GetContext(ctx, &ad, `SELECT `+selectColumns+` FROM live_ads WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get live ad: %w", err)
	}
	return &ad, nil
}

// ListByStatus returns ads ordered by affiliate so callers can batch per wallet.
func (r *Repository) ListByStatus(ctx context.Context, status Status) ([]LiveAd, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	ads := make([]LiveAd, 0)
	err := r.db.SelectContext(ctx, &ads, `
		SELECT `+selectColumns+`
		FROM live_ads
		WHERE status = $1
		ORDER BY affiliate_email, created_at
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list live ads: %w", err)
	}
	return ads, nil
}

// ListAll is used by the reconciliation audit.
func (r *Repository) ListAll(ctx context.Context) ([]LiveAd, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	ads := make([]LiveAd, 0)
	if err := r.db.SelectContext(ctx, &ads, `SELECT `+selectColumns+` FROM live_ads ORDER BY created_at`); err != nil {
		return nil, fmt.Errorf("list live ads: %w", err)
	}
	return ads, nil
}

// UpdateSpend stores a fresh platform reading. Spend is kept monotonic with
// GREATEST so a stale or lower reading never moves it backwards.
func (r *Repository) UpdateSpend(ctx context.Context, id uuid.UUID, spend decimal.Decimal, clicks int64) (*LiveAd, error) {
	if spend.IsNegative() {
		return nil, ErrNegativeSpend
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var ad LiveAd
	err := r.db.GetContext(ctx, &ad, `
		UPDATE live_ads
		SET spend = GREATEST(spend, $2),
		    clicks = GREATEST(clicks, $3),
		    last_synced_at = now(),
		    updated_at = now()
		WHERE id = $1
		RETURNING `+selectColumns, id, spend, clicks)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update spend: %w", err)
	}
	return &ad, nil
}

// ClaimTransfer moves spend_transferred from expected to next only if it still
// equals expected and next stays within spend. false with a nil error means
// another settlement won the claim.
func (r *Repository) ClaimTransfer(ctx context.Context, id uuid.UUID, expected, next decimal.Decimal) (bool, error) {
	if !next.GreaterThan(expected) {
		return false, ErrInvalidClaim
	}
	return r.swapTransferred(ctx, id, expected, next)
}

// RevertClaim is the reverse compare-and-swap used when the deduction write fails.
func (r *Repository) RevertClaim(ctx context.Context, id uuid.UUID, claimed, original decimal.Decimal) (bool, error) {
	return r.swapTransferred(ctx, id, claimed, original)
}

func (r *Repository) swapTransferred(ctx context.Context, id uuid.UUID, from, to decimal.Decimal) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE live_ads
		SET spend_transferred = $3, updated_at = now()
		WHERE id = $1 AND spend_transferred = $2 AND $3 <= spend AND $3 >= 0
	`, id, from, to)
	if err != nil {
		return false, fmt.Errorf("swap spend_transferred: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("swap spend_transferred: %w", err)
	}
	return rows == 1, nil
}

// MarkPaused flips an active ad to paused with the given billing state.
func (r *Repository) MarkPaused(ctx context.Context, id uuid.UUID, billingState string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE live_ads
		SET status = $2, billing_state = $3, updated_at = now()
		WHERE id = $1
	`, id, string(StatusPaused), billingState)
	if err != nil {
		return fmt.Errorf("mark paused: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}
