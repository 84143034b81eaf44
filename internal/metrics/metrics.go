// Package metrics exposes Prometheus counters for copy and sync activity.
//
// A nil *Metrics is valid and records nothing, so components can take one
// unconditionally.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "s3sync"

// Metrics holds the collectors registered for one client.
type Metrics struct {
	objectsCopied     prometheus.Counter
	copyFailures      prometheus.Counter
	batchesDispatched prometheus.Counter
	retries           *prometheus.CounterVec
	resumes           prometheus.Counter
	objectsUploaded   prometheus.Counter
	objectsDownloaded prometheus.Counter
	transferFailures  *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. Collectors that
// are already registered are reused.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		objectsCopied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "objects_copied_total",
			Help:      "Objects copied by batch copy.",
		}),
		copyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "copy_failures_total",
			Help:      "Copy commands that failed, counted per attempt.",
		}),
		batchesDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_dispatched_total",
			Help:      "Copy batches dispatched.",
		}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Retry passes started.",
		}, []string{"operation"}),
		resumes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "multipart_resumes_total",
			Help:      "Interrupted multipart uploads resumed.",
		}),
		objectsUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "objects_uploaded_total",
			Help:      "Objects uploaded by directory push.",
		}),
		objectsDownloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "objects_downloaded_total",
			Help:      "Objects downloaded by directory pull.",
		}),
		transferFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfer_failures_total",
			Help:      "Per-object transfer failures.",
		}, []string{"direction"}),
	}

	if reg == nil {
		return m
	}

	m.objectsCopied = register(reg, m.objectsCopied)
	m.copyFailures = register(reg, m.copyFailures)
	m.batchesDispatched = register(reg, m.batchesDispatched)
	m.retries = register(reg, m.retries)
	m.resumes = register(reg, m.resumes)
	m.objectsUploaded = register(reg, m.objectsUploaded)
	m.objectsDownloaded = register(reg, m.objectsDownloaded)
	m.transferFailures = register(reg, m.transferFailures)
	return m
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}

// BatchDispatched records one executed copy batch and its outcome.
func (m *Metrics) BatchDispatched(succeeded, failed int) {
	if m == nil {
		return
	}
	m.batchesDispatched.Inc()
	m.objectsCopied.Add(float64(succeeded))
	m.copyFailures.Add(float64(failed))
}

// Retry records the start of a retry pass for operation.
func (m *Metrics) Retry(operation string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(operation).Inc()
}

// Resume records a multipart resume.
func (m *Metrics) Resume() {
	if m == nil {
		return
	}
	m.resumes.Inc()
}

// Uploaded records one uploaded object.
func (m *Metrics) Uploaded() {
	if m == nil {
		return
	}
	m.objectsUploaded.Inc()
}

// Downloaded records one downloaded object.
func (m *Metrics) Downloaded() {
	if m == nil {
		return
	}
	m.objectsDownloaded.Inc()
}

// TransferFailed records n failed objects for direction ("upload" or "download").
func (m *Metrics) TransferFailed(direction string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.transferFailures.WithLabelValues(direction).Add(float64(n))
}
