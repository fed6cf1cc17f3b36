package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyStore struct {
	ObjectStore
	deleteFailures int
	deleteCalls    int
	uploadCalls    int
}

func (f *flakyStore) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	f.uploadCalls++
	return UploadResult{}, errors.New("upload broken")
}

func (f *flakyStore) Delete(ctx context.Context, key string) error {
	f.deleteCalls++
	if f.deleteFailures > 0 {
		f.deleteFailures--
		return errors.New("flaky")
	}
	return f.ObjectStore.Delete(ctx, key)
}

func constantBackoff(retries uint64) func() backoff.BackOff {
	return func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), retries)
	}
}

func TestRetryingStoreRetriesDelete(t *testing.T) {
	base := newMemStore()
	res, err := base.Upload(context.Background(), UploadRequest{Name: "a.png", ContentType: "image/png", Data: []byte("x")})
	require.NoError(t, err)

	flaky := &flakyStore{ObjectStore: base, deleteFailures: 2}
	store := NewRetryingStore(flaky, 0, constantBackoff(3))

	require.NoError(t, store.Delete(context.Background(), res.StorageKey))
	assert.Equal(t, 3, flaky.deleteCalls)
}

func TestRetryingStoreGivesUp(t *testing.T) {
	flaky := &flakyStore{ObjectStore: newMemStore(), deleteFailures: 10}
	store := NewRetryingStore(flaky, 0, constantBackoff(2))

	assert.Error(t, store.Delete(context.Background(), "images/x.png"))
	assert.Equal(t, 3, flaky.deleteCalls)
}

func TestRetryingStoreDoesNotRetryNotFound(t *testing.T) {
	flaky := &flakyStore{ObjectStore: newMemStore()}
	store := NewRetryingStore(flaky, 0, constantBackoff(5))

	err := store.Delete(context.Background(), "images/missing.png")
	assert.ErrorIs(t, err, ErrObjectNotFound)
	assert.Equal(t, 1, flaky.deleteCalls)
}

func TestRetryingStoreDoesNotRetryInvalidKey(t *testing.T) {
	flaky := &flakyStore{ObjectStore: newMemStore()}
	store := NewRetryingStore(flaky, 0, constantBackoff(5))

	for _, key := range []string{"", "/images/a.png", "images/../etc/passwd"} {
		flaky.deleteCalls = 0
		err := store.Delete(context.Background(), key)
		assert.ErrorIs(t, err, ErrInvalidKey, key)
		assert.Equal(t, 1, flaky.deleteCalls, key)
	}
}

func TestRetryingStoreDoesNotRetryUploads(t *testing.T) {
	flaky := &flakyStore{ObjectStore: newMemStore()}
	store := NewRetryingStore(flaky, time.Second, nil)

	_, err := store.Upload(context.Background(), UploadRequest{Name: "a.png", Data: []byte("x")})
	assert.Error(t, err)
	assert.Equal(t, 1, flaky.uploadCalls)
}
