package business

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const queryTimeout = 3 * time.Second

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Business, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var b Business
	err := r.db.GetContext(ctx, &b, `SELECT id, name, stripe_account_id, created_at FROM businesses WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get business: %w", err)
	}
	return &b, nil
}

// PayoutAccount returns the business's connected payout account, or "" if none.
func (r *Repository) PayoutAccount(ctx context.Context, id uuid.UUID) (string, error) {
	b, err := r.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return b.PayoutAccount(), nil
}

// MetaConnection returns the stored credential; an unusable one is reported as missing.
func (r *Repository) MetaConnection(ctx context.Context, businessID uuid.UUID) (*MetaConnection, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var c MetaConnection
	err := r.db.GetContext(ctx, &c, `
		SELECT business_id, access_token, ad_account_id, status, expires_at, updated_at
		FROM meta_connections
		WHERE business_id = $1
	`, businessID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConnectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get meta connection: %w", err)
	}
	if !c.Usable(time.Now()) {
		return nil, ErrConnectionNotFound
	}
	return &c, nil
}
