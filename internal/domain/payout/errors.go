package payout

import "errors"

var (
	ErrMissingEventID    = errors.New("conversion event id is required")
	ErrEventNotFound     = errors.New("conversion event not found")
	ErrNotConversion     = errors.New("event is not a conversion")
	ErrMissingAmount     = errors.New("conversion event has no amount")
	ErrCampaignNotFound  = errors.New("campaign not found")
	ErrOfferNotFound     = errors.New("offer not found")
	ErrInvalidCommission = errors.New("offer commission is not positive")
	ErrDuplicateEvent    = errors.New("payout already recorded for event")
	ErrPayoutNotFound    = errors.New("payout not found")
	ErrAlreadyCompleted  = errors.New("payout already completed with a different reference")
	ErrMissingReference  = errors.New("transfer reference is required")
)

const (
	CodeMissingEventID    = "MISSING_EVENT_ID"
	CodeEventNotFound     = "EVENT_NOT_FOUND"
	CodeNotConversion     = "EVENT_NOT_CONVERSION"
	CodeMissingAmount     = "MISSING_AMOUNT"
	CodeCampaignNotFound  = "CAMPAIGN_NOT_FOUND"
	CodeOfferNotFound     = "OFFER_NOT_FOUND"
	CodeInvalidCommission = "INVALID_COMMISSION"
	CodePayoutNotFound    = "PAYOUT_NOT_FOUND"
	CodeAlreadyCompleted  = "PAYOUT_ALREADY_COMPLETED"
	CodeMissingReference  = "MISSING_TRANSFER_REFERENCE"
	CodeInternal          = "INTERNAL_ERROR"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrMissingEventID, CodeMissingEventID},
	{ErrEventNotFound, CodeEventNotFound},
	{ErrNotConversion, CodeNotConversion},
	{ErrMissingAmount, CodeMissingAmount},
	{ErrCampaignNotFound, CodeCampaignNotFound},
	{ErrOfferNotFound, CodeOfferNotFound},
	{ErrInvalidCommission, CodeInvalidCommission},
	{ErrPayoutNotFound, CodePayoutNotFound},
	{ErrAlreadyCompleted, CodeAlreadyCompleted},
	{ErrMissingReference, CodeMissingReference},
}

// Code maps a payout error to its stable string code.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// IsBusinessError reports whether retrying err can never succeed.
func IsBusinessError(err error) bool {
	return Code(err) != CodeInternal
}
