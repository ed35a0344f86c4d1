package wallet

import "errors"

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrMissingAffiliate   = errors.New("affiliate identity is required")
	ErrMissingReference   = errors.New("payment reference is required")
	ErrInsufficientFunds  = errors.New("insufficient wallet balance")
	ErrDuplicateReference = errors.New("duplicate payment reference")
	ErrReferenceConflict  = errors.New("payment reference already used with different amount")
	ErrLedgerRead         = errors.New("ledger read failure")
	ErrLedgerWrite        = errors.New("ledger write failure")
)

const (
	CodeInvalidAmount       = "INVALID_AMOUNT"
	CodeMissingAffiliate    = "MISSING_AFFILIATE"
	CodeMissingReference    = "MISSING_PAYMENT_REFERENCE"
	CodeInsufficientBalance = "INSUFFICIENT_WALLET_BALANCE"
	CodeReferenceConflict   = "PAYMENT_REFERENCE_CONFLICT"
	CodeLedgerReadFailure   = "LEDGER_READ_FAILURE"
	CodeLedgerWriteFailure  = "LEDGER_WRITE_FAILURE"
	CodeInternal            = "INTERNAL_ERROR"
)

// Code maps a wallet error to its stable string code.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidAmount):
		return CodeInvalidAmount
	case errors.Is(err, ErrMissingAffiliate):
		return CodeMissingAffiliate
	case errors.Is(err, ErrMissingReference):
		return CodeMissingReference
	case errors.Is(err, ErrInsufficientFunds):
		return CodeInsufficientBalance
	case errors.Is(err, ErrReferenceConflict):
		return CodeReferenceConflict
	case errors.Is(err, ErrLedgerRead):
		return CodeLedgerReadFailure
	case errors.Is(err, ErrLedgerWrite):
		return CodeLedgerWriteFailure
	default:
		return CodeInternal
	}
}
