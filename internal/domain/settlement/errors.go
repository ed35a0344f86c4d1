package settlement

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/promohub/promohub-api/internal/domain/livead"
	"github.com/promohub/promohub-api/internal/domain/wallet"
)

var (
	ErrMissingLiveAdID   = errors.New("live ad id is required")
	ErrMissingFields     = errors.New("live ad is missing required fields")
	ErrInsufficientFunds = errors.New("insufficient wallet balance")
	ErrClaimFailed       = errors.New("settlement claim failed")
	ErrDeductionInsert   = errors.New("deduction insert failed")
)

const (
	CodeMissingLiveAdID     = "MISSING_LIVE_AD_ID"
	CodeLiveAdNotFound      = livead.CodeNotFound
	CodeMissingFields       = "MISSING_REQUIRED_FIELDS_ON_LIVE_AD"
	CodeInsufficientBalance = wallet.CodeInsufficientBalance
	CodeLedgerReadFailure   = wallet.CodeLedgerReadFailure
	CodeClaimFailed         = "SETTLEMENT_CLAIM_FAILED"
	CodeDeductionInsert     = "DEDUCTION_INSERT_FAILED"
	CodeInternal            = "INTERNAL_ERROR"
)

// InsufficientBalanceError carries the before-state so the caller can decide
// to pause the ad.
type InsufficientBalanceError struct {
	UnpaidBefore     decimal.Decimal
	AvailableBalance decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient wallet balance: unpaid %s, available %s", e.UnpaidBefore, e.AvailableBalance)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientFunds }

// Code maps a settlement error to its stable string code.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrMissingLiveAdID):
		return CodeMissingLiveAdID
	case errors.Is(err, livead.ErrNotFound):
		return CodeLiveAdNotFound
	case errors.Is(err, ErrMissingFields):
		return CodeMissingFields
	case errors.Is(err, ErrInsufficientFunds):
		return CodeInsufficientBalance
	case errors.Is(err, wallet.ErrLedgerRead):
		return CodeLedgerReadFailure
	case errors.Is(err, ErrClaimFailed):
		return CodeClaimFailed
	case errors.Is(err, ErrDeductionInsert):
		return CodeDeductionInsert
	default:
		return CodeInternal
	}
}
