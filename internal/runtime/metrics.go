package runtime

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	errspkg "github.com/drblury/dispatchflow/internal/runtime/errors"
)

const defaultMetricsNamespace = "dispatchflow"

// DispatchMetrics holds the Prometheus collectors fed by the metrics
// behavior and by notification fan-out. Call Register before the mediator
// starts dispatching.
type DispatchMetrics struct {
	mu         sync.Mutex
	registered bool

	requestsTotal        *prometheus.CounterVec
	requestDuration      *prometheus.HistogramVec
	recoveriesTotal      *prometheus.CounterVec
	publishesTotal       *prometheus.CounterVec
	handlerFailuresTotal *prometheus.CounterVec
	publishDuration      *prometheus.HistogramVec
}

// NewDispatchMetrics builds unregistered collectors. An empty namespace
// uses "dispatchflow".
func NewDispatchMetrics(namespace string) *DispatchMetrics {
	if namespace == "" {
		namespace = defaultMetricsNamespace
	}
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mediator",
			Name:      name,
			Help:      help,
		}, labels)
	}
	histogram := func(name, help string, labels ...string) *prometheus.HistogramVec {
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mediator",
			Name:      name,
			Help:      help,
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, labels)
	}

	return &DispatchMetrics{
		requestsTotal:        counter("requests_total", "Requests dispatched through the pipeline by outcome", "request_type", "outcome"),
		requestDuration:      histogram("request_duration_seconds", "Time spent in the pipeline below the metrics behavior", "request_type"),
		recoveriesTotal:      counter("recoveries_total", "Failed requests answered by an exception handler", "request_type"),
		publishesTotal:       counter("publishes_total", "Notifications published by outcome", "notification_type", "outcome"),
		handlerFailuresTotal: counter("notification_handler_failures_total", "Failed notification handler invocations", "notification_type", "handler"),
		publishDuration:      histogram("publish_duration_seconds", "Time until every notification handler finished", "notification_type"),
	}
}

// Register adds the collectors to registerer. Collectors already present
// (for example from a second mediator in the same process) are reused.
// Calling Register again is a no-op.
func (m *DispatchMetrics) Register(registerer prometheus.Registerer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	var err error
	if m.requestsTotal, err = registerCollector(registerer, m.requestsTotal); err != nil {
		return err
	}
	if m.requestDuration, err = registerCollector(registerer, m.requestDuration); err != nil {
		return err
	}
	if m.recoveriesTotal, err = registerCollector(registerer, m.recoveriesTotal); err != nil {
		return err
	}
	if m.publishesTotal, err = registerCollector(registerer, m.publishesTotal); err != nil {
		return err
	}
	if m.handlerFailuresTotal, err = registerCollector(registerer, m.handlerFailuresTotal); err != nil {
		return err
	}
	if m.publishDuration, err = registerCollector(registerer, m.publishDuration); err != nil {
		return err
	}

	m.registered = true
	return nil
}

func registerCollector[C prometheus.Collector](registerer prometheus.Registerer, collector C) (C, error) {
	if err := registerer.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return collector, err
	}
	return collector, nil
}

// ObserveRequest records the outcome of one pass through the pipeline.
func (m *DispatchMetrics) ObserveRequest(requestType string, duration time.Duration, err error) {
	m.requestsTotal.WithLabelValues(requestType, outcomeOf(err)).Inc()
	m.requestDuration.WithLabelValues(requestType).Observe(duration.Seconds())
}

// ObserveRecovery records a failure turned into a response.
func (m *DispatchMetrics) ObserveRecovery(requestType string) {
	m.recoveriesTotal.WithLabelValues(requestType).Inc()
}

// ObservePublish records a completed fan-out.
func (m *DispatchMetrics) ObservePublish(notificationType string, duration time.Duration, failures []errspkg.HandlerError) {
	outcome := "success"
	if len(failures) > 0 {
		outcome = "failure"
	}
	m.publishesTotal.WithLabelValues(notificationType, outcome).Inc()
	m.publishDuration.WithLabelValues(notificationType).Observe(duration.Seconds())
	for _, failure := range failures {
		m.handlerFailuresTotal.WithLabelValues(notificationType, failure.Handler).Inc()
	}
}

func outcomeOf(err error) string {
	var panicErr *errspkg.PanicError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &panicErr):
		return "panic"
	case errspkg.IsPermanent(err):
		return "rejected"
	default:
		return "failure"
	}
}
