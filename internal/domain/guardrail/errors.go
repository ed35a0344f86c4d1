package guardrail

import "errors"

var (
	ErrArchiveDisabled = errors.New("sweep archive is not configured")
	ErrArchiveNotFound = errors.New("archived sweep not found")
)

const (
	CodePauseFailed      = "META_PAUSE_FAILED"
	CodeLocalPauseFailed = "LOCAL_PAUSE_FAILED"
)
