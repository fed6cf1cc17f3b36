package storage

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservedStoreRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	observer, err := NewPrometheusObserver("test_storage", reg)
	require.NoError(t, err)

	store := NewObservedStore(newMemStore(), observer)
	ctx := context.Background()

	res, err := store.Upload(ctx, UploadRequest{Name: "a.png", ContentType: "image/png", Data: []byte("12345")})
	require.NoError(t, err)
	assert.Equal(t, float64(5), testutil.ToFloat64(observer.uploadBytes))

	require.NoError(t, store.Delete(ctx, res.StorageKey))
	assert.ErrorIs(t, store.Delete(ctx, res.StorageKey), ErrObjectNotFound)
	assert.Error(t, store.Delete(ctx, "../bad"))

	assert.Equal(t, float64(1), testutil.ToFloat64(observer.operationErrors.WithLabelValues("delete")))
	assert.Equal(t, float64(0), testutil.ToFloat64(observer.operationErrors.WithLabelValues("upload")))
}

func TestPrometheusObserverReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPrometheusObserver("shared", reg)
	require.NoError(t, err)
	second, err := NewPrometheusObserver("shared", reg)
	require.NoError(t, err)

	second.RecordUpload(0, 7, nil)
	assert.Equal(t, float64(7), testutil.ToFloat64(first.uploadBytes))
}
