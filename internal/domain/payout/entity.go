package payout

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

const EventTypeConversion = "conversion"

// Payout is the commission owed to an affiliate for one conversion.
// Only the pending -> completed transition mutates a row.
type Payout struct {
	ID                uuid.UUID       `db:"id" json:"id"`
	AffiliateEmail    string          `db:"affiliate_email" json:"affiliate_email"`
	Amount            decimal.Decimal `db:"amount" json:"amount"`
	Status            Status          `db:"status" json:"status"`
	SourceEventID     uuid.UUID       `db:"source_event_id" json:"source_event_id"`
	TransferReference *string         `db:"transfer_reference" json:"transfer_reference,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	CompletedAt       *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
}

// TransferRef returns the external transfer reference, if any.
func (p *Payout) TransferRef() string {
	if p.TransferReference != nil {
		return *p.TransferReference
	}
	return ""
}

// ConversionEvent is a tracked event as stored by the tracking pipeline.
type ConversionEvent struct {
	ID         uuid.UUID           `db:"id"`
	EventType  string              `db:"event_type"`
	CampaignID uuid.NullUUID       `db:"campaign_id"`
	Amount     decimal.NullDecimal `db:"amount"`
	CreatedAt  time.Time           `db:"created_at"`
}

// Attribution is the campaign -> offer chain used to price a conversion.
type Attribution struct {
	CampaignID        uuid.UUID           `db:"campaign_id"`
	AffiliateEmail    string              `db:"affiliate_email"`
	OfferID           uuid.NullUUID       `db:"offer_id"`
	OfferExists       bool                `db:"offer_exists"`
	CommissionPercent decimal.NullDecimal `db:"commission_percent"`
}

// Result is returned by RecordConversionPayout.
type Result struct {
	OK               bool    `json:"ok"`
	AffiliatePayout  *Payout `json:"affiliate_payout"`
	AlreadyProcessed bool    `json:"already_processed,omitempty"`
}

type CompleteRequest struct {
	TransferReference string `json:"transfer_reference" validate:"required,max=255"`
}

type ListFilter struct {
	Limit  int
	Offset int
}

func (f ListFilter) normalized() ListFilter {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
