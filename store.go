package snapmink

import (
	"context"
	"fmt"
	"time"

	"github.com/AshkanYarmoradi/go-snapmink/adapters"
)

// EventStore is the append-only event log over a pluggable adapter.
// It serializes domain events on the way in and deserializes them on the
// way out, and implements EventLog for the repositories.
type EventStore struct {
	adapter    adapters.EventStoreAdapter
	serializer Serializer
	logger     Logger
}

// Logger defines the logging interface used throughout snapmink.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// noopLogger is a no-op logger implementation.
type noopLogger struct{}

func (l *noopLogger) Debug(msg string, args ...interface{}) {}
func (l *noopLogger) Info(msg string, args ...interface{})  {}
func (l *noopLogger) Warn(msg string, args ...interface{})  {}
func (l *noopLogger) Error(msg string, args ...interface{}) {}

// Option configures an EventStore.
type Option func(*EventStore)

// WithSerializer sets a custom serializer.
func WithSerializer(s Serializer) Option {
	return func(es *EventStore) {
		es.serializer = s
	}
}

// WithLogger sets a custom logger.
func WithLogger(l Logger) Option {
	return func(es *EventStore) {
		es.logger = l
	}
}

// New creates a new EventStore with the given adapter and options.
func New(adapter adapters.EventStoreAdapter, opts ...Option) *EventStore {
	es := &EventStore{
		adapter:    adapter,
		serializer: NewJSONSerializer(),
		logger:     &noopLogger{},
	}

	for _, opt := range opts {
		opt(es)
	}

	return es
}

// Serializer returns the event store's serializer.
func (s *EventStore) Serializer() Serializer {
	return s.serializer
}

// Adapter returns the underlying adapter.
func (s *EventStore) Adapter() adapters.EventStoreAdapter {
	return s.adapter
}

// RegisterEvents registers event types with the serializer when it keeps
// a registry. Required for deserializing events back to their Go types.
func (s *EventStore) RegisterEvents(events ...interface{}) {
	if r, ok := s.serializer.(interface{ RegisterAll(...interface{}) }); ok {
		r.RegisterAll(events...)
	}
}

// StreamInfo contains metadata about an event stream.
type StreamInfo struct {
	StreamID   string
	Category   string
	Version    int64
	EventCount int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AppendOption configures an append operation.
type AppendOption func(*appendConfig)

type appendConfig struct {
	metadata        Metadata
	expectedVersion int64
}

// ExpectVersion sets the expected stream version for optimistic concurrency.
func ExpectVersion(v int64) AppendOption {
	return func(c *appendConfig) {
		c.expectedVersion = v
	}
}

// WithAppendMetadata sets metadata for all events in the append operation.
func WithAppendMetadata(m Metadata) AppendOption {
	return func(c *appendConfig) {
		c.metadata = m
	}
}

// Append stores events to the specified stream.
func (s *EventStore) Append(ctx context.Context, streamID string, events []interface{}, opts ...AppendOption) error {
	config := &appendConfig{expectedVersion: AnyVersion}
	for _, opt := range opts {
		opt(config)
	}

	_, err := s.append(ctx, streamID, events, config)
	return err
}

func (s *EventStore) append(ctx context.Context, streamID string, events []interface{}, config *appendConfig) ([]adapters.StoredEvent, error) {
	if streamID == "" {
		return nil, ErrEmptyStreamID
	}
	if len(events) == 0 {
		return nil, ErrNoEvents
	}

	records := make([]adapters.EventRecord, len(events))
	for i, event := range events {
		eventData, err := SerializeEvent(s.serializer, event, config.metadata)
		if err != nil {
			return nil, fmt.Errorf("snapmink: failed to serialize event %d: %w", i, err)
		}

		records[i] = adapters.EventRecord{
			Type:     eventData.Type,
			Data:     eventData.Data,
			Metadata: convertMetadataToAdapter(eventData.Metadata),
		}
	}

	stored, err := s.adapter.Append(ctx, streamID, records, config.expectedVersion)
	if err != nil {
		s.logger.Warn("append failed", "stream", streamID, "expected", config.expectedVersion, "error", err)
		return nil, err
	}

	s.logger.Debug("events appended", "stream", streamID, "count", len(stored))
	return stored, nil
}

// LoadAll retrieves every event of a stream in order.
// Returns ErrStreamNotFound if the stream has no events.
func (s *EventStore) LoadAll(ctx context.Context, streamID string) ([]Event, error) {
	events, err := s.LoadFrom(ctx, streamID, 0)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, NewStreamNotFoundError(streamID)
	}
	return events, nil
}

// LoadFrom retrieves events with a version strictly greater than fromVersion.
func (s *EventStore) LoadFrom(ctx context.Context, streamID string, fromVersion int64) ([]Event, error) {
	if streamID == "" {
		return nil, ErrEmptyStreamID
	}

	stored, err := s.adapter.Load(ctx, streamID, fromVersion)
	if err != nil {
		return nil, err
	}
	return s.deserialize(stored)
}

// LoadRange retrieves events with fromVersion < version <= toVersion.
func (s *EventStore) LoadRange(ctx context.Context, streamID string, fromVersion, toVersion int64) ([]Event, error) {
	if streamID == "" {
		return nil, ErrEmptyStreamID
	}

	stored, err := s.adapter.LoadRange(ctx, streamID, fromVersion, toVersion)
	if err != nil {
		return nil, err
	}
	return s.deserialize(stored)
}

func (s *EventStore) deserialize(stored []adapters.StoredEvent) ([]Event, error) {
	events := make([]Event, len(stored))
	for i, e := range stored {
		event, err := DeserializeEvent(s.serializer, convertStoredEventFromAdapter(e))
		if err != nil {
			return nil, fmt.Errorf("snapmink: failed to deserialize event %d of %q: %w", e.Version, e.StreamID, err)
		}
		events[i] = event
	}
	return events, nil
}

// LoadRaw retrieves raw (non-deserialized) events from a stream.
func (s *EventStore) LoadRaw(ctx context.Context, streamID string, fromVersion int64) ([]StoredEvent, error) {
	if streamID == "" {
		return nil, ErrEmptyStreamID
	}

	stored, err := s.adapter.Load(ctx, streamID, fromVersion)
	if err != nil {
		return nil, err
	}

	result := make([]StoredEvent, len(stored))
	for i, e := range stored {
		result[i] = convertStoredEventFromAdapter(e)
	}
	return result, nil
}

// SaveAggregate persists uncommitted events from an aggregate.
// The aggregate's version is used for optimistic concurrency control.
//
// After a successful save the playhead is advanced by the number of events
// written (when the aggregate implements VersionSetter) and the uncommitted
// events are cleared.
func (s *EventStore) SaveAggregate(ctx context.Context, agg Aggregate, opts ...AppendOption) error {
	if agg == nil {
		return ErrNilAggregate
	}

	events := agg.UncommittedEvents()
	if len(events) == 0 {
		return nil
	}

	expectedVersion := agg.Version()
	config := &appendConfig{expectedVersion: expectedVersion}
	for _, opt := range opts {
		opt(config)
	}

	stored, err := s.append(ctx, StreamIDFor(agg), events, config)
	if err != nil {
		return err
	}

	if setter, ok := agg.(VersionSetter); ok {
		setter.SetVersion(stored[len(stored)-1].Version)
	}
	agg.ClearUncommittedEvents()

	return nil
}

// GetStreamInfo returns metadata about a stream.
func (s *EventStore) GetStreamInfo(ctx context.Context, streamID string) (*StreamInfo, error) {
	if streamID == "" {
		return nil, ErrEmptyStreamID
	}

	info, err := s.adapter.GetStreamInfo(ctx, streamID)
	if err != nil {
		return nil, err
	}

	return &StreamInfo{
		StreamID:   info.StreamID,
		Category:   info.Category,
		Version:    info.Version,
		EventCount: info.EventCount,
		CreatedAt:  info.CreatedAt,
		UpdatedAt:  info.UpdatedAt,
	}, nil
}

// Initialize sets up the required storage schema.
func (s *EventStore) Initialize(ctx context.Context) error {
	return s.adapter.Initialize(ctx)
}

// Close releases resources held by the event store.
func (s *EventStore) Close() error {
	return s.adapter.Close()
}

var (
	_ EventLog    = (*EventStore)(nil)
	_ EventStream = (*EventStore)(nil)
)
