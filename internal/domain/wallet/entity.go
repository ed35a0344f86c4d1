package wallet

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TopUpStatus string

const (
	TopUpStatusSucceeded TopUpStatus = "succeeded"
	TopUpStatusPending   TopUpStatus = "pending"
	TopUpStatusFailed    TopUpStatus = "failed"
)

// TopUp is one funding event. Only succeeded rows count toward the balance.
type TopUp struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	AffiliateEmail   string          `db:"affiliate_email" json:"affiliate_email"`
	AmountGross      decimal.Decimal `db:"amount_gross" json:"amount_gross"`
	Fee              decimal.Decimal `db:"fee" json:"fee"`
	AmountNet        decimal.Decimal `db:"amount_net" json:"amount_net"`
	PaymentReference string          `db:"payment_reference" json:"payment_reference"`
	Status           TopUpStatus     `db:"status" json:"status"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}

// DeductionSource tells settlement charges apart from manual debits. Only
// settlement rows count toward an ad's spend_transferred.
type DeductionSource string

const (
	SourceSettlement DeductionSource = "settlement"
	SourceManual     DeductionSource = "manual"
)

// Deduction is one append-only debit against a wallet.
type Deduction struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	AffiliateEmail string          `db:"affiliate_email" json:"affiliate_email"`
	BusinessID     uuid.NullUUID   `db:"business_id" json:"business_id"`
	OfferID        uuid.NullUUID   `db:"offer_id" json:"offer_id"`
	LiveAdID       uuid.NullUUID   `db:"live_ad_id" json:"live_ad_id"`
	Source         DeductionSource `db:"source" json:"source"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	Description    string          `db:"description" json:"description"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// Balance is derived from ledger rows on every read; it is never stored.
type Balance struct {
	AffiliateEmail  string          `json:"affiliate_email"`
	TotalTopUpsNet  decimal.Decimal `json:"total_topups_net"`
	TotalDeductions decimal.Decimal `json:"total_deductions"`
	Available       decimal.Decimal `json:"available_balance"`
}

// Pagination controls simple list pagination.
type Pagination struct {
	Limit  int
	Offset int
}

func (p Pagination) normalized() Pagination {
	if p.Limit <= 0 || p.Limit > 100 {
		p.Limit = 20
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// TopUpInput describes a completed funding payment.
type TopUpInput struct {
	AffiliateEmail   string
	AmountGross      decimal.Decimal
	Fee              decimal.Decimal
	PaymentReference string
}

// DebitInput describes a manual or administrative debit.
type DebitInput struct {
	AffiliateEmail string          `json:"affiliate_email" validate:"required,email"`
	BusinessID     *uuid.UUID      `json:"business_id"`
	OfferID        *uuid.UUID      `json:"offer_id"`
	LiveAdID       *uuid.UUID      `json:"live_ad_id"`
	Amount         decimal.Decimal `json:"amount" validate:"required,money"`
	Description    string          `json:"description" validate:"required,max=500"`
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil || *id == uuid.Nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
