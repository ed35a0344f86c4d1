package storage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("object not found")

// ObjectStore is the archive sink for sweep and audit reports.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Config holds S3-compatible connection settings (AWS, R2, MinIO).
type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
}
