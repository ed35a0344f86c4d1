package reconcile

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Kind string

const (
	// A settlement claim was reverted after the deduction insert failed.
	KindClaimReverted Kind = "claim_reverted"
	// The claim could not be reverted: spend_transferred advanced with no deduction.
	KindClaimWithoutDeduction Kind = "claim_without_deduction"
	// Deductions tagged to an ad do not add up to its spend_transferred.
	KindLedgerMismatch Kind = "ledger_mismatch"
)

// Event is a structured "needs an operator" record.
type Event struct {
	ID        uuid.UUID        `db:"id" json:"id"`
	LiveAdID  uuid.NullUUID    `db:"live_ad_id" json:"live_ad_id"`
	Kind      Kind             `db:"kind" json:"kind"`
	Expected  *decimal.Decimal `db:"expected" json:"expected,omitempty"`
	Actual    *decimal.Decimal `db:"actual" json:"actual,omitempty"`
	Detail    string           `db:"detail" json:"detail"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}

// AdAudit is the result of checking one ad's deductions against its counter.
type AdAudit struct {
	LiveAdID         uuid.UUID       `json:"live_ad_id"`
	SpendTransferred decimal.Decimal `json:"spend_transferred"`
	Deducted         decimal.Decimal `json:"deducted"`
	Consistent       bool            `json:"consistent"`
}

// AuditReport summarizes a full audit pass.
type AuditReport struct {
	Checked    int `json:"checked"`
	Mismatched int `json:"mismatched"`
	Failed     int `json:"failed"`
	// Mismatches that cleared on the confirming re-read.
	Transient  int       `json:"transient"`
	Mismatches []AdAudit `json:"mismatches"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
