package snapmink

import (
	"errors"
	"fmt"

	"github.com/AshkanYarmoradi/go-snapmink/adapters"
)

// Sentinel errors for common error conditions.
// Use errors.Is() to check for these errors.
var (
	// ErrStreamNotFound indicates the requested stream does not exist.
	ErrStreamNotFound = adapters.ErrStreamNotFound

	// ErrConcurrencyConflict indicates an optimistic concurrency violation.
	ErrConcurrencyConflict = adapters.ErrConcurrencyConflict

	// ErrEmptyStreamID indicates an empty stream ID was provided.
	ErrEmptyStreamID = adapters.ErrEmptyStreamID

	// ErrNoEvents indicates no events were provided for append.
	ErrNoEvents = adapters.ErrNoEvents

	// ErrAggregateNotFound indicates an aggregate has no events and no usable snapshot.
	ErrAggregateNotFound = errors.New("snapmink: aggregate not found")

	// ErrNilAggregate indicates a nil aggregate was passed or produced.
	ErrNilAggregate = errors.New("snapmink: nil aggregate")

	// ErrSerializationFailed indicates event or state serialization failed.
	ErrSerializationFailed = errors.New("snapmink: serialization failed")

	// ErrEventTypeNotRegistered indicates an unknown event type was encountered.
	ErrEventTypeNotRegistered = errors.New("snapmink: event type not registered")

	// ErrEventOutOfOrder indicates an event did not directly follow the aggregate's playhead.
	ErrEventOutOfOrder = errors.New("snapmink: event out of order")

	// ErrInvalidPlayhead indicates a negative or otherwise unusable playhead was requested.
	ErrInvalidPlayhead = errors.New("snapmink: invalid playhead")

	// ErrSnapshotUnsupported indicates an aggregate cannot be snapshotted
	// because it does not implement VersionSetter.
	ErrSnapshotUnsupported = errors.New("snapmink: aggregate does not support snapshots")

	// ErrInvalidSnapshot indicates a snapshot value failed validation.
	ErrInvalidSnapshot = errors.New("snapmink: invalid snapshot")
)

// ConcurrencyError provides details about an optimistic concurrency conflict.
type ConcurrencyError = adapters.ConcurrencyError

// StreamNotFoundError provides details about a missing stream.
type StreamNotFoundError = adapters.StreamNotFoundError

// NewConcurrencyError creates a new ConcurrencyError.
var NewConcurrencyError = adapters.NewConcurrencyError

// NewStreamNotFoundError creates a new StreamNotFoundError.
var NewStreamNotFoundError = adapters.NewStreamNotFoundError

// AggregateNotFoundError provides detailed information about a missing aggregate.
type AggregateNotFoundError struct {
	AggregateType string
	AggregateID   string
}

// Error returns the error message.
func (e *AggregateNotFoundError) Error() string {
	return fmt.Sprintf("snapmink: aggregate %s %q not found", e.AggregateType, e.AggregateID)
}

// Is reports whether this error matches the target error.
func (e *AggregateNotFoundError) Is(target error) bool {
	return target == ErrAggregateNotFound
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *AggregateNotFoundError) Unwrap() error {
	return ErrAggregateNotFound
}

// NewAggregateNotFoundError creates a new AggregateNotFoundError.
func NewAggregateNotFoundError(aggregateType, aggregateID string) *AggregateNotFoundError {
	return &AggregateNotFoundError{AggregateType: aggregateType, AggregateID: aggregateID}
}

// EventOrderError reports an event whose position does not directly follow
// the aggregate's playhead.
type EventOrderError struct {
	StreamID     string
	Playhead     int64
	EventVersion int64
}

// Error returns the error message.
func (e *EventOrderError) Error() string {
	return fmt.Sprintf("snapmink: event %d on stream %q does not follow playhead %d",
		e.EventVersion, e.StreamID, e.Playhead)
}

// Is reports whether this error matches the target error.
func (e *EventOrderError) Is(target error) bool {
	return target == ErrEventOutOfOrder
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *EventOrderError) Unwrap() error {
	return ErrEventOutOfOrder
}

// SerializationError provides detailed information about a serialization failure.
type SerializationError struct {
	EventType string
	Operation string // "serialize" or "deserialize"
	Cause     error
}

// Error returns the error message.
func (e *SerializationError) Error() string {
	return fmt.Sprintf("snapmink: failed to %s %q: %v", e.Operation, e.EventType, e.Cause)
}

// Is reports whether this error matches the target error.
func (e *SerializationError) Is(target error) bool {
	return target == ErrSerializationFailed
}

// Unwrap returns the underlying cause for errors.Unwrap().
func (e *SerializationError) Unwrap() error {
	return e.Cause
}

// NewSerializationError creates a new SerializationError.
func NewSerializationError(eventType, operation string, cause error) *SerializationError {
	return &SerializationError{
		EventType: eventType,
		Operation: operation,
		Cause:     cause,
	}
}

// EventTypeNotRegisteredError provides detailed information about an unregistered event type.
type EventTypeNotRegisteredError struct {
	EventType string
}

// Error returns the error message.
func (e *EventTypeNotRegisteredError) Error() string {
	return fmt.Sprintf("snapmink: event type %q not registered", e.EventType)
}

// Is reports whether this error matches the target error.
func (e *EventTypeNotRegisteredError) Is(target error) bool {
	return target == ErrEventTypeNotRegistered
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *EventTypeNotRegisteredError) Unwrap() error {
	return ErrEventTypeNotRegistered
}

// NewEventTypeNotRegisteredError creates a new EventTypeNotRegisteredError.
func NewEventTypeNotRegisteredError(eventType string) *EventTypeNotRegisteredError {
	return &EventTypeNotRegisteredError{EventType: eventType}
}
