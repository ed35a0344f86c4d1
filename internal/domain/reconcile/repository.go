package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(ctx context.Context, e *Event) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	err := r.db.GetContext(ctx, e, `
		INSERT INTO reconciliation_events (live_ad_id, kind, expected, actual, detail)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, live_ad_id, kind, expected, actual, detail, created_at
	`, e.LiveAdID, string(e.Kind), e.Expected, e.Actual, e.Detail)
	if err != nil {
		return fmt.Errorf("insert reconciliation event: %w", err)
	}
	return nil
}

func (r *Repository) ListByLiveAd(ctx context.Context, liveAdID uuid.UUID) ([]Event, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	out := make([]Event, 0)
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, live_ad_id, kind, expected, actual, detail, created_at
		FROM reconciliation_events
		WHERE live_ad_id = $1
		ORDER BY created_at DESC
	`, liveAdID)
	if err != nil {
		return nil, fmt.Errorf("list reconciliation events: %w", err)
	}
	return out, nil
}
