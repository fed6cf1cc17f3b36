package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer captures telemetry for object store operations
type Observer interface {
	RecordUpload(duration time.Duration, sizeBytes int64, err error)
	RecordDelete(duration time.Duration, err error)
}

// PrometheusObserver exports object store metrics to Prometheus
type PrometheusObserver struct {
	operationDuration *prometheus.HistogramVec
	operationErrors   *prometheus.CounterVec
	uploadBytes       prometheus.Counter
}

// NewPrometheusObserver registers the storage metrics, reusing collectors that
// are already registered under the same names
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if namespace == "" {
		namespace = "image_storage"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	observer := &PrometheusObserver{
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of object store operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		operationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Count of failed object store operations.",
		}, []string{"operation"}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes_total",
			Help:      "Cumulative payload size successfully uploaded to the object store.",
		}),
	}

	if err := reg.Register(observer.operationDuration); err != nil {
		existing, err := existingCollector[*prometheus.HistogramVec](err)
		if err != nil {
			return nil, fmt.Errorf("register storage histogram: %w", err)
		}
		observer.operationDuration = existing
	}
	if err := reg.Register(observer.operationErrors); err != nil {
		existing, err := existingCollector[*prometheus.CounterVec](err)
		if err != nil {
			return nil, fmt.Errorf("register storage error counter: %w", err)
		}
		observer.operationErrors = existing
	}
	if err := reg.Register(observer.uploadBytes); err != nil {
		existing, err := existingCollector[prometheus.Counter](err)
		if err != nil {
			return nil, fmt.Errorf("register uploaded bytes counter: %w", err)
		}
		observer.uploadBytes = existing
	}

	return observer, nil
}

func existingCollector[C prometheus.Collector](err error) (C, error) {
	var zero C
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return zero, err
	}
	existing, ok := are.ExistingCollector.(C)
	if !ok {
		return zero, err
	}
	return existing, nil
}

func (o *PrometheusObserver) RecordUpload(duration time.Duration, sizeBytes int64, err error) {
	if o == nil {
		return
	}
	o.operationDuration.WithLabelValues("upload").Observe(duration.Seconds())
	if err != nil {
		o.operationErrors.WithLabelValues("upload").Inc()
		return
	}
	o.uploadBytes.Add(float64(sizeBytes))
}

func (o *PrometheusObserver) RecordDelete(duration time.Duration, err error) {
	if o == nil {
		return
	}
	o.operationDuration.WithLabelValues("delete").Observe(duration.Seconds())
	// a missing object is what the caller wanted anyway
	if err != nil && !errors.Is(err, ErrObjectNotFound) {
		o.operationErrors.WithLabelValues("delete").Inc()
	}
}

// ObservedStore reports every operation of the wrapped store to an Observer
type ObservedStore struct {
	delegate ObjectStore
	observer Observer
}

func NewObservedStore(delegate ObjectStore, observer Observer) *ObservedStore {
	return &ObservedStore{delegate: delegate, observer: observer}
}

func (s *ObservedStore) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	start := time.Now()
	res, err := s.delegate.Upload(ctx, req)
	if s.observer != nil {
		s.observer.RecordUpload(time.Since(start), res.SizeBytes, err)
	}
	return res, err
}

func (s *ObservedStore) Delete(ctx context.Context, storageKey string) error {
	start := time.Now()
	err := s.delegate.Delete(ctx, storageKey)
	if s.observer != nil {
		s.observer.RecordDelete(time.Since(start), err)
	}
	return err
}

var (
	_ ObjectStore = (*ObservedStore)(nil)
	_ Observer    = (*PrometheusObserver)(nil)
)
