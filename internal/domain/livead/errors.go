package livead

import "errors"

var (
	ErrNotFound      = errors.New("live ad not found")
	ErrInvalidClaim  = errors.New("claim target must be above current transferred and within spend")
	ErrNegativeSpend = errors.New("spend cannot be negative")
)

const CodeNotFound = "LIVE_AD_NOT_FOUND"
