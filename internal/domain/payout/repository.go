package payout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/promohub/promohub-api/internal/pkg/database"
)

const queryTimeout = 3 * time.Second

const payoutColumns = `id, affiliate_email, amount, status, source_event_id, transfer_reference, created_at, completed_at`

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetEvent(ctx context.Context, id uuid.UUID) (*ConversionEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var e ConversionEvent
	err := r.db.GetContext(ctx, &e, `
		SELECT id, event_type, campaign_id, amount, created_at
		FROM tracking_events
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &e, nil
}

// GetAttribution resolves the campaign and, when present, its offer.
func (r *Repository) GetAttribution(ctx context.Context, campaignID uuid.UUID) (*Attribution, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var a Attribution
	err := r.db.GetContext(ctx, &a, `
		SELECT c.id AS campaign_id, c.affiliate_email, c.offer_id,
		       (o.id IS NOT NULL) AS offer_exists, o.commission_percent
		FROM campaigns c
		LEFT JOIN offers o ON o.id = c.offer_id
		WHERE c.id = $1
	`, campaignID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCampaignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get attribution: %w", err)
	}
	return &a, nil
}

func (r *Repository) GetBySourceEvent(ctx context.Context, eventID uuid.UUID) (*Payout, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var p Payout
	err := r.db.GetContext(ctx, &p, `SELECT `+payoutColumns+` FROM wallet_payouts WHERE source_event_id = $1`, eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get payout by event: %w", err)
	}
	return &p, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Payout, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var p Payout
	err := r.db.GetContext(ctx, &p, `SELECT `+payoutColumns+` FROM wallet_payouts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPayoutNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payout: %w", err)
	}
	return &p, nil
}

// Insert writes a pending payout. A second row for the same event yields ErrDuplicateEvent.
func (r *Repository) Insert(ctx context.Context, p *Payout) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	err := r.db.GetContext(ctx, p, `
		INSERT INTO wallet_payouts (affiliate_email, amount, status, source_event_id)
		VALUES ($1, $2, $3, $4)
		RETURNING `+payoutColumns, p.AffiliateEmail, p.Amount, string(StatusPending), p.SourceEventID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicateEvent
		}
		return fmt.Errorf("insert payout: %w", err)
	}
	return nil
}

// Complete moves a pending payout to completed. It returns (nil, nil) when no
// pending row matched.
func (r *Repository) Complete(ctx context.Context, id uuid.UUID, transferRef string) (*Payout, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var p Payout
	err := r.db.GetContext(ctx, &p, `
		UPDATE wallet_payouts
		SET status = $2, transfer_reference = $3, completed_at = now()
		WHERE id = $1 AND status = $4
		RETURNING `+payoutColumns, id, string(StatusCompleted), transferRef, string(StatusPending))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("complete payout: %w", err)
	}
	return &p, nil
}

func (r *Repository) ListByAffiliate(ctx context.Context, affiliateEmail string, f ListFilter) ([]Payout, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	items := make([]Payout, 0)
	err := r.db.SelectContext(ctx, &items, `
		SELECT `+payoutColumns+`
		FROM wallet_payouts
		WHERE affiliate_email = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, affiliateEmail, f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}
	return items, nil
}
