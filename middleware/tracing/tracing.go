// Package tracing provides OpenTelemetry integration for snapmink.
//
// Spans can be recorded at three levels: the repository (one span per
// load or save), the event log adapter and the snapshot adapter. Nested
// use shows where a slow load spent its time:
//
//	tp := sdktrace.NewTracerProvider(...)
//	otel.SetTracerProvider(tp)
//
//	tracer := tracing.NewTracer(tracing.WithServiceName("orders"))
//	store := snapmink.New(tracing.NewEventStoreMiddleware(adapter, tracer))
//	snapshots := snapmink.NewAdapterSnapshotStore(tracing.NewSnapshotStoreMiddleware(snapshotAdapter, tracer))
//	repo := tracing.NewRepositoryMiddleware(
//	    snapmink.NewSnapshottingRepositoryFromStore(store, snapshots, factory), tracer)
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AshkanYarmoradi/go-snapmink"
	"github.com/AshkanYarmoradi/go-snapmink/adapters"
)

const (
	// TracerName is the instrumentation name of the snapmink tracer.
	TracerName = "github.com/AshkanYarmoradi/go-snapmink"

	// DefaultServiceName is the default service name for spans.
	DefaultServiceName = "snapmink"
)

// Tracer wraps an OpenTelemetry tracer for snapmink operations.
type Tracer struct {
	tracer      trace.Tracer
	serviceName string
}

// TracerOption configures a Tracer.
type TracerOption func(*Tracer)

// WithTracerProvider sets a custom TracerProvider.
func WithTracerProvider(tp trace.TracerProvider) TracerOption {
	return func(t *Tracer) {
		t.tracer = tp.Tracer(TracerName)
	}
}

// WithServiceName sets the service name for spans.
func WithServiceName(name string) TracerOption {
	return func(t *Tracer) {
		t.serviceName = name
	}
}

// NewTracer creates a new Tracer with the global TracerProvider.
func NewTracer(opts ...TracerOption) *Tracer {
	t := &Tracer{
		tracer:      otel.Tracer(TracerName),
		serviceName: DefaultServiceName,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// Tracer returns the underlying OpenTelemetry tracer.
func (t *Tracer) Tracer() trace.Tracer {
	return t.tracer
}

// ServiceName returns the configured service name.
func (t *Tracer) ServiceName() string {
	return t.serviceName
}

func (t *Tracer) start(ctx context.Context, name string, kind trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, name, trace.WithSpanKind(kind))
	span.SetAttributes(attribute.String("snapmink.service", t.serviceName))
	span.SetAttributes(attrs...)
	return ctx, span
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// RepositoryMiddleware wraps a snapmink.Repository with tracing.
type RepositoryMiddleware struct {
	repo   snapmink.Repository
	tracer *Tracer
}

var _ snapmink.Repository = (*RepositoryMiddleware)(nil)

// NewRepositoryMiddleware wraps a repository with tracing.
func NewRepositoryMiddleware(repo snapmink.Repository, tracer *Tracer) *RepositoryMiddleware {
	return &RepositoryMiddleware{repo: repo, tracer: tracer}
}

// Load loads an aggregate with tracing.
func (m *RepositoryMiddleware) Load(ctx context.Context, id string) (snapmink.Aggregate, error) {
	ctx, span := m.tracer.start(ctx, "repository.load", trace.SpanKindInternal,
		attribute.String("snapmink.aggregate_id", id))
	defer span.End()

	agg, err := m.repo.Load(ctx, id)
	if err == nil {
		span.SetAttributes(
			attribute.String("snapmink.aggregate_type", agg.AggregateType()),
			attribute.Int64("snapmink.playhead", agg.Version()),
		)
	}
	finish(span, err)
	return agg, err
}

// LoadUntilPlayhead loads an aggregate as of playhead with tracing.
func (m *RepositoryMiddleware) LoadUntilPlayhead(ctx context.Context, id string, playhead int64) (snapmink.Aggregate, error) {
	ctx, span := m.tracer.start(ctx, "repository.load_until_playhead", trace.SpanKindInternal,
		attribute.String("snapmink.aggregate_id", id),
		attribute.Int64("snapmink.target_playhead", playhead))
	defer span.End()

	agg, err := m.repo.LoadUntilPlayhead(ctx, id, playhead)
	if err == nil {
		span.SetAttributes(attribute.Int64("snapmink.playhead", agg.Version()))
	}
	finish(span, err)
	return agg, err
}

// Save saves an aggregate with tracing.
func (m *RepositoryMiddleware) Save(ctx context.Context, agg snapmink.Aggregate) error {
	if agg == nil {
		return m.repo.Save(ctx, agg)
	}

	ctx, span := m.tracer.start(ctx, "repository.save", trace.SpanKindInternal,
		attribute.String("snapmink.stream_id", snapmink.StreamIDFor(agg)),
		attribute.Int64("snapmink.expected_playhead", agg.Version()),
		attribute.Int("snapmink.events.pending", snapmink.PendingEventCount(agg)))
	defer span.End()

	err := m.repo.Save(ctx, agg)
	if err == nil {
		span.SetAttributes(attribute.Int64("snapmink.playhead", agg.Version()))
	}
	finish(span, err)
	return err
}

// EventStoreMiddleware wraps an EventStoreAdapter with tracing.
type EventStoreMiddleware struct {
	adapter adapters.EventStoreAdapter
	tracer  *Tracer
}

var _ adapters.EventStoreAdapter = (*EventStoreMiddleware)(nil)

// NewEventStoreMiddleware wraps an adapter with tracing.
func NewEventStoreMiddleware(adapter adapters.EventStoreAdapter, tracer *Tracer) *EventStoreMiddleware {
	return &EventStoreMiddleware{adapter: adapter, tracer: tracer}
}

// Append stores events with tracing.
func (m *EventStoreMiddleware) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	eventTypes := make([]string, len(events))
	for i, e := range events {
		eventTypes[i] = e.Type
	}

	ctx, span := m.tracer.start(ctx, "eventstore.append", trace.SpanKindClient,
		attribute.String("snapmink.stream_id", streamID),
		attribute.Int64("snapmink.expected_version", expectedVersion),
		attribute.Int("snapmink.events.count", len(events)),
		attribute.StringSlice("snapmink.events.types", eventTypes))
	defer span.End()

	stored, err := m.adapter.Append(ctx, streamID, events, expectedVersion)
	if err == nil && len(stored) > 0 {
		span.SetAttributes(attribute.Int64("snapmink.stored.version", stored[len(stored)-1].Version))
	}
	finish(span, err)
	return stored, err
}

// Load retrieves events with tracing.
func (m *EventStoreMiddleware) Load(ctx context.Context, streamID string, fromVersion int64) ([]adapters.StoredEvent, error) {
	ctx, span := m.tracer.start(ctx, "eventstore.load", trace.SpanKindClient,
		attribute.String("snapmink.stream_id", streamID),
		attribute.Int64("snapmink.from_version", fromVersion))
	defer span.End()

	events, err := m.adapter.Load(ctx, streamID, fromVersion)
	if err == nil {
		span.SetAttributes(attribute.Int("snapmink.events.loaded", len(events)))
	}
	finish(span, err)
	return events, err
}

// LoadRange retrieves a bounded range of events with tracing.
func (m *EventStoreMiddleware) LoadRange(ctx context.Context, streamID string, fromVersion, toVersion int64) ([]adapters.StoredEvent, error) {
	ctx, span := m.tracer.start(ctx, "eventstore.load_range", trace.SpanKindClient,
		attribute.String("snapmink.stream_id", streamID),
		attribute.Int64("snapmink.from_version", fromVersion),
		attribute.Int64("snapmink.to_version", toVersion))
	defer span.End()

	events, err := m.adapter.LoadRange(ctx, streamID, fromVersion, toVersion)
	if err == nil {
		span.SetAttributes(attribute.Int("snapmink.events.loaded", len(events)))
	}
	finish(span, err)
	return events, err
}

// GetStreamInfo returns stream metadata with tracing.
func (m *EventStoreMiddleware) GetStreamInfo(ctx context.Context, streamID string) (*adapters.StreamInfo, error) {
	ctx, span := m.tracer.start(ctx, "eventstore.get_stream_info", trace.SpanKindClient,
		attribute.String("snapmink.stream_id", streamID))
	defer span.End()

	info, err := m.adapter.GetStreamInfo(ctx, streamID)
	if err == nil {
		span.SetAttributes(attribute.Int64("snapmink.stream.version", info.Version))
	}
	finish(span, err)
	return info, err
}

// Initialize initializes the adapter with tracing.
func (m *EventStoreMiddleware) Initialize(ctx context.Context) error {
	ctx, span := m.tracer.start(ctx, "eventstore.initialize", trace.SpanKindClient)
	defer span.End()

	err := m.adapter.Initialize(ctx)
	finish(span, err)
	return err
}

// Close closes the adapter.
func (m *EventStoreMiddleware) Close() error {
	return m.adapter.Close()
}

// SnapshotStoreMiddleware wraps a SnapshotAdapter with tracing.
type SnapshotStoreMiddleware struct {
	adapter adapters.SnapshotAdapter
	tracer  *Tracer
}

var _ adapters.SnapshotAdapter = (*SnapshotStoreMiddleware)(nil)

// NewSnapshotStoreMiddleware wraps a snapshot adapter with tracing.
func NewSnapshotStoreMiddleware(adapter adapters.SnapshotAdapter, tracer *Tracer) *SnapshotStoreMiddleware {
	return &SnapshotStoreMiddleware{adapter: adapter, tracer: tracer}
}

// Unwrap returns the wrapped adapter.
func (m *SnapshotStoreMiddleware) Unwrap() adapters.SnapshotAdapter {
	return m.adapter
}

// SaveSnapshot stores a snapshot with tracing.
func (m *SnapshotStoreMiddleware) SaveSnapshot(ctx context.Context, streamID string, version int64, data []byte) error {
	ctx, span := m.tracer.start(ctx, "snapshot.save", trace.SpanKindClient,
		attribute.String("snapmink.stream_id", streamID),
		attribute.Int64("snapmink.snapshot.playhead", version),
		attribute.Int("snapmink.snapshot.bytes", len(data)))
	defer span.End()

	err := m.adapter.SaveSnapshot(ctx, streamID, version, data)
	finish(span, err)
	return err
}

// LoadSnapshot loads a snapshot with tracing.
func (m *SnapshotStoreMiddleware) LoadSnapshot(ctx context.Context, streamID string) (*adapters.SnapshotRecord, error) {
	ctx, span := m.tracer.start(ctx, "snapshot.load", trace.SpanKindClient,
		attribute.String("snapmink.stream_id", streamID))
	defer span.End()

	rec, err := m.adapter.LoadSnapshot(ctx, streamID)
	if err == nil {
		span.SetAttributes(attribute.Bool("snapmink.snapshot.hit", rec != nil))
		if rec != nil {
			span.SetAttributes(attribute.Int64("snapmink.snapshot.playhead", rec.Version))
		}
	}
	finish(span, err)
	return rec, err
}

// DeleteSnapshot removes a snapshot with tracing.
func (m *SnapshotStoreMiddleware) DeleteSnapshot(ctx context.Context, streamID string) error {
	ctx, span := m.tracer.start(ctx, "snapshot.delete", trace.SpanKindClient,
		attribute.String("snapmink.stream_id", streamID))
	defer span.End()

	err := m.adapter.DeleteSnapshot(ctx, streamID)
	finish(span, err)
	return err
}
