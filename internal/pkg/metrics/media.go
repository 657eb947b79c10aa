// Package metrics exports Prometheus collectors for the media subsystem.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultNamespace = "blog_media"

// MediaObserver records ingest, delete and reconcile outcomes
type MediaObserver struct {
	duration       *prometheus.HistogramVec
	failures       *prometheus.CounterVec
	ingestedBytes  prometheus.Counter
	reconcileItems *prometheus.CounterVec
}

// NewMediaObserver registers the media collectors on reg, reusing any that are
// already registered
func NewMediaObserver(namespace string, reg prometheus.Registerer) (*MediaObserver, error) {
	if namespace == "" {
		namespace = defaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	o := &MediaObserver{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of media operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Count of failed media operations.",
		}, []string{"operation"}),
		ingestedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_bytes_total",
			Help:      "Bytes accepted by the ingest pipeline.",
		}),
		reconcileItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciled_items_total",
			Help:      "Items removed by storage reconciliation.",
		}, []string{"kind"}),
	}

	var err error
	if o.duration, err = register(reg, o.duration); err != nil {
		return nil, err
	}
	if o.failures, err = register(reg, o.failures); err != nil {
		return nil, err
	}
	if o.ingestedBytes, err = register(reg, o.ingestedBytes); err != nil {
		return nil, err
	}
	if o.reconcileItems, err = register(reg, o.reconcileItems); err != nil {
		return nil, err
	}
	return o, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register media metric: %w", err)
	}
	return c, nil
}

// RecordIngest tracks an upload attempt
func (o *MediaObserver) RecordIngest(duration time.Duration, sizeBytes int64, err error) {
	if o == nil {
		return
	}
	o.observe("ingest", duration, err)
	if err == nil && sizeBytes > 0 {
		o.ingestedBytes.Add(float64(sizeBytes))
	}
}

// RecordDelete tracks an explicit deletion
func (o *MediaObserver) RecordDelete(duration time.Duration, err error) {
	if o == nil {
		return
	}
	o.observe("delete", duration, err)
}

// RecordReconcile tracks a sweep and what it removed
func (o *MediaObserver) RecordReconcile(duration time.Duration, files, records, dirs int, err error) {
	if o == nil {
		return
	}
	o.observe("reconcile", duration, err)
	o.reconcileItems.WithLabelValues("file").Add(float64(files))
	o.reconcileItems.WithLabelValues("record").Add(float64(records))
	o.reconcileItems.WithLabelValues("directory").Add(float64(dirs))
}

func (o *MediaObserver) observe(op string, duration time.Duration, err error) {
	o.duration.WithLabelValues(op).Observe(duration.Seconds())
	if err != nil {
		o.failures.WithLabelValues(op).Inc()
	}
}

// Handler serves the metrics gathered by g
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
