package livead

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusPaused   Status = "paused"
	StatusArchived Status = "archived"
)

// BillingPausedInsufficient is the dashboard billing state of an auto-paused ad.
const BillingPausedInsufficient = "paused_insufficient_balance"

// LiveAd is the spend-tracking projection of one running ad.
// spend only grows; spend_transferred only grows through ClaimTransfer and
// never exceeds spend.
type LiveAd struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	AffiliateEmail   string          `db:"affiliate_email" json:"affiliate_email"`
	BusinessID       uuid.NullUUID   `db:"business_id" json:"business_id"`
	OfferID          uuid.NullUUID   `db:"offer_id" json:"offer_id"`
	CampaignID       uuid.NullUUID   `db:"campaign_id" json:"campaign_id"`
	MetaAdID         string          `db:"meta_ad_id" json:"meta_ad_id"`
	MetaAdAccountID  string          `db:"meta_ad_account_id" json:"meta_ad_account_id"`
	Spend            decimal.Decimal `db:"spend" json:"spend"`
	SpendTransferred decimal.Decimal `db:"spend_transferred" json:"spend_transferred"`
	Clicks           int64           `db:"clicks" json:"clicks"`
	Status           Status          `db:"status" json:"status"`
	BillingState     string          `db:"billing_state" json:"billing_state"`
	LastSyncedAt     *time.Time      `db:"last_synced_at" json:"last_synced_at,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// Unpaid is spend not yet settled to the business. Never negative.
func (a *LiveAd) Unpaid() decimal.Decimal {
	u := a.Spend.Sub(a.SpendTransferred)
	if u.IsNegative() {
		return decimal.Zero
	}
	return u
}
