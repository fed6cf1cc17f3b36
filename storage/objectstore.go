package storage

import (
	"context"
	"errors"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrInvalidKey     = errors.New("invalid storage key")
)

// UploadRequest is one file handed to the object store
type UploadRequest struct {
	Name        string
	ContentType string
	Data        []byte
}

// UploadResult describes where the uploaded bytes ended up. Created is false
// when identical content was already stored under the same key.
type UploadResult struct {
	StorageKey  string `json:"storage_key"`
	PublicURL   string `json:"public_url"`
	ContentHash string `json:"content_hash"`
	SizeBytes   int64  `json:"size_bytes"`
	Created     bool   `json:"created"`
}

// ObjectStore is the content-addressed CDN backend. Delete reports
// ErrObjectNotFound for keys that do not exist; callers treat that as success.
type ObjectStore interface {
	Upload(ctx context.Context, req UploadRequest) (UploadResult, error)
	Delete(ctx context.Context, storageKey string) error
}
