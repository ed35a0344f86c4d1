package business

import "errors"

var (
	ErrNotFound           = errors.New("business not found")
	ErrConnectionNotFound = errors.New("meta connection not found")
)

const CodeConnectionNotFound = "META_CONNECTION_NOT_FOUND"
