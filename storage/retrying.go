package storage

import (
	"context"
	"errors"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

// RetryingStore retries deletes with exponential backoff. Uploads are passed
// through untouched so each failure still surfaces against its own file.
type RetryingStore struct {
	delegate     ObjectStore
	buildBackoff func() backoff.BackOff
}

// NewRetryingStore wraps delegate; a nil factory retries for at most maxElapsed
func NewRetryingStore(delegate ObjectStore, maxElapsed time.Duration, factory func() backoff.BackOff) *RetryingStore {
	if factory == nil {
		factory = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxElapsedTime = maxElapsed
			return b
		}
	}
	return &RetryingStore{delegate: delegate, buildBackoff: factory}
}

func (s *RetryingStore) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	return s.delegate.Upload(ctx, req)
}

func (s *RetryingStore) Delete(ctx context.Context, storageKey string) error {
	return backoff.Retry(func() error {
		err := s.delegate.Delete(ctx, storageKey)
		if isPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(s.buildBackoff(), ctx))
}

// isPermanent reports errors that another attempt cannot fix
func isPermanent(err error) bool {
	return errors.Is(err, ErrObjectNotFound) ||
		errors.Is(err, ErrInvalidKey) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

var _ ObjectStore = (*RetryingStore)(nil)
