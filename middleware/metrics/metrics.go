// Package metrics provides Prometheus metrics for snapmink.
//
// Metrics implements snapmink.SnapshotMetrics and can wrap the event log
// and snapshot adapters:
//
//	m := metrics.New(metrics.WithMetricsServiceName("accounts"))
//	m.MustRegister()
//
//	store := snapmink.New(m.WrapEventStore(adapter))
//	snapshots := snapmink.NewAdapterSnapshotStore(m.WrapSnapshotStore(snapshotAdapter))
//	repo := snapmink.NewSnapshottingRepositoryFromStore(store, snapshots, factory,
//	    snapmink.WithSnapshotMetrics(m))
//
// The metrics collected include:
//   - Aggregate loads by source (snapshot or full replay) and events replayed
//   - Snapshot writes, rebuild outcomes and their durations
//   - Event log and snapshot store operations, with snapshot hit/miss counts
//   - Error counts by type
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AshkanYarmoradi/go-snapmink"
	"github.com/AshkanYarmoradi/go-snapmink/adapters"
)

// Metric labels.
const (
	LabelAggregateType = "aggregate_type"
	LabelEventType     = "event_type"
	LabelSource        = "source"
	LabelOutcome       = "outcome"
	LabelOperation     = "operation"
	LabelStatus        = "status"
	LabelErrorType     = "error_type"
	LabelService       = "service"
)

// Status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusHit     = "hit"
	StatusMiss    = "miss"
)

// Operation values.
const (
	OperationAppend         = "append"
	OperationLoad           = "load"
	OperationLoadRange      = "load_range"
	OperationGetStreamInfo  = "get_stream_info"
	OperationSaveSnapshot   = "save_snapshot"
	OperationLoadSnapshot   = "load_snapshot"
	OperationDeleteSnapshot = "delete_snapshot"
)

// Metrics holds all Prometheus metrics for snapmink.
type Metrics struct {
	namespace   string
	subsystem   string
	serviceName string

	// Repository metrics
	loadsTotal      *prometheus.CounterVec
	loadDuration    *prometheus.HistogramVec
	eventsReplayed  *prometheus.HistogramVec
	snapshotsTotal  *prometheus.CounterVec
	snapshotLatency *prometheus.HistogramVec
	rebuildsTotal   *prometheus.CounterVec
	rebuildDuration *prometheus.HistogramVec

	// Adapter metrics
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	eventsAppended    *prometheus.CounterVec
	eventsLoaded      *prometheus.CounterVec
	snapshotBytes     *prometheus.HistogramVec

	errorsTotal *prometheus.CounterVec
}

var _ snapmink.SnapshotMetrics = (*Metrics)(nil)

// MetricsOption configures Metrics.
type MetricsOption func(*Metrics)

// WithNamespace sets the Prometheus namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(m *Metrics) {
		m.namespace = namespace
	}
}

// WithSubsystem sets the Prometheus subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(m *Metrics) {
		m.subsystem = subsystem
	}
}

// WithMetricsServiceName sets the service name label.
func WithMetricsServiceName(name string) MetricsOption {
	return func(m *Metrics) {
		m.serviceName = name
	}
}

// New creates a new Metrics instance.
func New(opts ...MetricsOption) *Metrics {
	m := &Metrics{
		namespace:   "snapmink",
		serviceName: "unknown",
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initMetrics()
	return m
}

func (m *Metrics) counter(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	}, append([]string{LabelService}, labels...))
}

func (m *Metrics) histogram(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}, append([]string{LabelService}, labels...))
}

func (m *Metrics) initMetrics() {
	m.loadsTotal = m.counter("aggregate_loads_total",
		"Total number of aggregate loads by source.",
		LabelAggregateType, LabelSource, LabelStatus)
	m.loadDuration = m.histogram("aggregate_load_duration_seconds",
		"Duration of aggregate loads in seconds.", prometheus.DefBuckets,
		LabelAggregateType, LabelSource)
	m.eventsReplayed = m.histogram("aggregate_events_replayed",
		"Number of events replayed per aggregate load.", prometheus.ExponentialBuckets(1, 4, 8),
		LabelAggregateType, LabelSource)

	m.snapshotsTotal = m.counter("snapshots_written_total",
		"Total number of snapshot writes.",
		LabelAggregateType, LabelStatus)
	m.snapshotLatency = m.histogram("snapshot_write_duration_seconds",
		"Duration of snapshot writes in seconds.", prometheus.DefBuckets,
		LabelAggregateType)

	m.rebuildsTotal = m.counter("snapshot_rebuilds_total",
		"Total number of snapshot rebuilds by outcome.",
		LabelAggregateType, LabelOutcome)
	m.rebuildDuration = m.histogram("snapshot_rebuild_duration_seconds",
		"Duration of snapshot rebuilds in seconds.", prometheus.DefBuckets,
		LabelAggregateType)

	m.operationsTotal = m.counter("adapter_operations_total",
		"Total number of event log and snapshot store operations.",
		LabelOperation, LabelStatus)
	m.operationDuration = m.histogram("adapter_operation_duration_seconds",
		"Duration of event log and snapshot store operations in seconds.", prometheus.DefBuckets,
		LabelOperation)
	m.eventsAppended = m.counter("events_appended_total",
		"Total number of events appended to streams.",
		LabelEventType)
	m.eventsLoaded = m.counter("events_loaded_total",
		"Total number of events loaded from streams.")
	m.snapshotBytes = m.histogram("snapshot_size_bytes",
		"Size of encoded snapshot state in bytes.", prometheus.ExponentialBuckets(64, 4, 8))

	m.errorsTotal = m.counter("errors_total",
		"Total number of errors by type.",
		LabelErrorType)
}

// Collectors returns all Prometheus collectors for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.loadsTotal,
		m.loadDuration,
		m.eventsReplayed,
		m.snapshotsTotal,
		m.snapshotLatency,
		m.rebuildsTotal,
		m.rebuildDuration,
		m.operationsTotal,
		m.operationDuration,
		m.eventsAppended,
		m.eventsLoaded,
		m.snapshotBytes,
		m.errorsTotal,
	}
}

// MustRegister registers all collectors with the default registry.
// Panics if registration fails.
func (m *Metrics) MustRegister() {
	prometheus.MustRegister(m.Collectors()...)
}

// Register registers all collectors with the given registry.
func (m *Metrics) Register(registry prometheus.Registerer) error {
	for _, collector := range m.Collectors() {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}

// RecordLoad implements snapmink.SnapshotMetrics.
func (m *Metrics) RecordLoad(aggregateType string, source snapmink.LoadSource, replayed int, duration time.Duration, err error) {
	src := string(source)
	m.loadsTotal.WithLabelValues(m.serviceName, aggregateType, src, status(err)).Inc()
	m.loadDuration.WithLabelValues(m.serviceName, aggregateType, src).Observe(duration.Seconds())
	if err != nil {
		m.RecordError(errorTypeName(err))
		return
	}
	m.eventsReplayed.WithLabelValues(m.serviceName, aggregateType, src).Observe(float64(replayed))
}

// RecordSnapshotSaved implements snapmink.SnapshotMetrics.
func (m *Metrics) RecordSnapshotSaved(aggregateType string, playhead int64, duration time.Duration, err error) {
	m.snapshotsTotal.WithLabelValues(m.serviceName, aggregateType, status(err)).Inc()
	m.snapshotLatency.WithLabelValues(m.serviceName, aggregateType).Observe(duration.Seconds())
	if err != nil {
		m.RecordError(errorTypeName(err))
	}
}

// RecordRebuild implements snapmink.SnapshotMetrics.
func (m *Metrics) RecordRebuild(aggregateType string, outcome snapmink.RebuildOutcome, duration time.Duration) {
	m.rebuildsTotal.WithLabelValues(m.serviceName, aggregateType, string(outcome)).Inc()
	m.rebuildDuration.WithLabelValues(m.serviceName, aggregateType).Observe(duration.Seconds())
}

// RecordError records a custom error.
func (m *Metrics) RecordError(errorType string) {
	m.errorsTotal.WithLabelValues(m.serviceName, errorType).Inc()
}

func (m *Metrics) observe(operation string, start time.Time, st string) {
	m.operationDuration.WithLabelValues(m.serviceName, operation).Observe(time.Since(start).Seconds())
	m.operationsTotal.WithLabelValues(m.serviceName, operation, st).Inc()
}

// errorTypeName maps an error to a stable label value.
func errorTypeName(err error) string {
	if err == nil {
		return "none"
	}

	switch {
	case errors.Is(err, snapmink.ErrConcurrencyConflict):
		return "concurrency_conflict"
	case errors.Is(err, snapmink.ErrAggregateNotFound):
		return "aggregate_not_found"
	case errors.Is(err, snapmink.ErrStreamNotFound):
		return "stream_not_found"
	case errors.Is(err, snapmink.ErrEventOutOfOrder):
		return "event_out_of_order"
	case errors.Is(err, snapmink.ErrInvalidSnapshot):
		return "invalid_snapshot"
	case errors.Is(err, snapmink.ErrSnapshotUnsupported):
		return "snapshot_unsupported"
	case errors.Is(err, snapmink.ErrInvalidPlayhead):
		return "invalid_playhead"
	case errors.Is(err, snapmink.ErrSerializationFailed):
		return "serialization_failed"
	case errors.Is(err, snapmink.ErrEventTypeNotRegistered):
		return "event_type_not_registered"
	case errors.Is(err, snapmink.ErrNilAggregate):
		return "nil_aggregate"
	case errors.Is(err, adapters.ErrEmptyStreamID):
		return "empty_stream_id"
	case errors.Is(err, adapters.ErrNoEvents):
		return "no_events"
	case errors.Is(err, adapters.ErrInvalidVersion):
		return "invalid_version"
	case errors.Is(err, adapters.ErrInvalidRange):
		return "invalid_range"
	case errors.Is(err, adapters.ErrAdapterClosed):
		return "adapter_closed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "context"
	default:
		return "unknown"
	}
}

// EventStoreMiddleware wraps an EventStoreAdapter with metrics.
type EventStoreMiddleware struct {
	adapter adapters.EventStoreAdapter
	metrics *Metrics
}

var _ adapters.EventStoreAdapter = (*EventStoreMiddleware)(nil)

// WrapEventStore wraps an adapter with metrics collection.
func (m *Metrics) WrapEventStore(adapter adapters.EventStoreAdapter) *EventStoreMiddleware {
	return &EventStoreMiddleware{adapter: adapter, metrics: m}
}

// Append stores events with metrics.
func (em *EventStoreMiddleware) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	start := time.Now()
	stored, err := em.adapter.Append(ctx, streamID, events, expectedVersion)
	em.metrics.observe(OperationAppend, start, status(err))

	if err != nil {
		em.metrics.RecordError(errorTypeName(err))
		return stored, err
	}
	for _, e := range events {
		em.metrics.eventsAppended.WithLabelValues(em.metrics.serviceName, e.Type).Inc()
	}
	return stored, nil
}

// Load retrieves events with metrics.
func (em *EventStoreMiddleware) Load(ctx context.Context, streamID string, fromVersion int64) ([]adapters.StoredEvent, error) {
	start := time.Now()
	events, err := em.adapter.Load(ctx, streamID, fromVersion)
	em.recordLoad(OperationLoad, start, len(events), err)
	return events, err
}

// LoadRange retrieves a bounded range of events with metrics.
func (em *EventStoreMiddleware) LoadRange(ctx context.Context, streamID string, fromVersion, toVersion int64) ([]adapters.StoredEvent, error) {
	start := time.Now()
	events, err := em.adapter.LoadRange(ctx, streamID, fromVersion, toVersion)
	em.recordLoad(OperationLoadRange, start, len(events), err)
	return events, err
}

func (em *EventStoreMiddleware) recordLoad(operation string, start time.Time, n int, err error) {
	em.metrics.observe(operation, start, status(err))
	if err != nil {
		em.metrics.RecordError(errorTypeName(err))
		return
	}
	em.metrics.eventsLoaded.WithLabelValues(em.metrics.serviceName).Add(float64(n))
}

// GetStreamInfo returns stream metadata with metrics.
func (em *EventStoreMiddleware) GetStreamInfo(ctx context.Context, streamID string) (*adapters.StreamInfo, error) {
	start := time.Now()
	info, err := em.adapter.GetStreamInfo(ctx, streamID)
	em.metrics.observe(OperationGetStreamInfo, start, status(err))
	return info, err
}

// Initialize initializes the wrapped adapter.
func (em *EventStoreMiddleware) Initialize(ctx context.Context) error {
	return em.adapter.Initialize(ctx)
}

// Close closes the wrapped adapter.
func (em *EventStoreMiddleware) Close() error {
	return em.adapter.Close()
}

// SnapshotStoreMiddleware wraps a SnapshotAdapter with metrics.
type SnapshotStoreMiddleware struct {
	adapter adapters.SnapshotAdapter
	metrics *Metrics
}

var _ adapters.SnapshotAdapter = (*SnapshotStoreMiddleware)(nil)

// WrapSnapshotStore wraps a snapshot adapter with metrics collection.
func (m *Metrics) WrapSnapshotStore(adapter adapters.SnapshotAdapter) *SnapshotStoreMiddleware {
	return &SnapshotStoreMiddleware{adapter: adapter, metrics: m}
}

// Unwrap returns the wrapped adapter.
func (sm *SnapshotStoreMiddleware) Unwrap() adapters.SnapshotAdapter {
	return sm.adapter
}

// SaveSnapshot stores a snapshot with metrics.
func (sm *SnapshotStoreMiddleware) SaveSnapshot(ctx context.Context, streamID string, version int64, data []byte) error {
	start := time.Now()
	err := sm.adapter.SaveSnapshot(ctx, streamID, version, data)
	sm.metrics.observe(OperationSaveSnapshot, start, status(err))
	if err != nil {
		sm.metrics.RecordError(errorTypeName(err))
		return err
	}
	sm.metrics.snapshotBytes.WithLabelValues(sm.metrics.serviceName).Observe(float64(len(data)))
	return nil
}

// LoadSnapshot loads a snapshot, counting hits and misses.
func (sm *SnapshotStoreMiddleware) LoadSnapshot(ctx context.Context, streamID string) (*adapters.SnapshotRecord, error) {
	start := time.Now()
	rec, err := sm.adapter.LoadSnapshot(ctx, streamID)

	st := StatusHit
	switch {
	case err != nil:
		st = StatusError
		sm.metrics.RecordError(errorTypeName(err))
	case rec == nil:
		st = StatusMiss
	}
	sm.metrics.observe(OperationLoadSnapshot, start, st)
	return rec, err
}

// DeleteSnapshot removes a snapshot with metrics.
func (sm *SnapshotStoreMiddleware) DeleteSnapshot(ctx context.Context, streamID string) error {
	start := time.Now()
	err := sm.adapter.DeleteSnapshot(ctx, streamID)
	sm.metrics.observe(OperationDeleteSnapshot, start, status(err))
	return err
}

// LoadsTotal returns the aggregate loads counter.
func (m *Metrics) LoadsTotal() *prometheus.CounterVec {
	return m.loadsTotal
}

// EventsReplayed returns the replayed events histogram.
func (m *Metrics) EventsReplayed() *prometheus.HistogramVec {
	return m.eventsReplayed
}

// SnapshotsTotal returns the snapshot writes counter.
func (m *Metrics) SnapshotsTotal() *prometheus.CounterVec {
	return m.snapshotsTotal
}

// RebuildsTotal returns the rebuilds counter.
func (m *Metrics) RebuildsTotal() *prometheus.CounterVec {
	return m.rebuildsTotal
}

// OperationsTotal returns the adapter operations counter.
func (m *Metrics) OperationsTotal() *prometheus.CounterVec {
	return m.operationsTotal
}

// EventsAppendedTotal returns the events appended counter.
func (m *Metrics) EventsAppendedTotal() *prometheus.CounterVec {
	return m.eventsAppended
}

// EventsLoadedTotal returns the events loaded counter.
func (m *Metrics) EventsLoadedTotal() *prometheus.CounterVec {
	return m.eventsLoaded
}

// ErrorsTotal returns the errors counter.
func (m *Metrics) ErrorsTotal() *prometheus.CounterVec {
	return m.errorsTotal
}
