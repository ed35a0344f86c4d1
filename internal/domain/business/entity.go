package business

import (
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Business struct {
	ID              uuid.UUID      `db:"id" json:"id"`
	Name            string         `db:"name" json:"name"`
	StripeAccountID sql.NullString `db:"stripe_account_id" json:"-"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
}

// PayoutAccount returns the connected account id, or "" when onboarding never finished.
func (b *Business) PayoutAccount() string {
	if !b.StripeAccountID.Valid {
		return ""
	}
	return strings.TrimSpace(b.StripeAccountID.String)
}

const ConnectionStatusActive = "active"

// MetaConnection holds a business's ad-platform credential. Token refresh
// happens elsewhere; this service only reads it.
type MetaConnection struct {
	BusinessID  uuid.UUID  `db:"business_id"`
	AccessToken string     `db:"access_token"`
	AdAccountID string     `db:"ad_account_id"`
	Status      string     `db:"status"`
	ExpiresAt   *time.Time `db:"expires_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

// Usable reports whether the credential can be sent to the Graph API.
func (c *MetaConnection) Usable(now time.Time) bool {
	if c == nil || strings.TrimSpace(c.AccessToken) == "" || c.Status != ConnectionStatusActive {
		return false
	}
	return c.ExpiresAt == nil || c.ExpiresAt.After(now)
}
